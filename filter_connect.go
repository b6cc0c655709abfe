// filter_connect.go provides connecting and disconnecting the upstream
// byte source.

package avbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asticode/go-astikit"
	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/mediatype"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/reader"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

// discovery is the one-shot "all initial streams are exposed" signal of
// one pipeline build.
type discovery struct {
	doneOnce sync.Once
	doneCh   chan struct{}
	errCh    chan error
}

func newDiscovery() *discovery {
	return &discovery{
		doneCh: make(chan struct{}),
		errCh:  make(chan error, 1),
	}
}

func (d *discovery) complete() bool {
	completed := false
	d.doneOnce.Do(func() {
		close(d.doneCh)
		completed = true
	})
	return completed
}

func (d *discovery) isComplete() bool {
	select {
	case <-d.doneCh:
		return true
	default:
		return false
	}
}

func (d *discovery) fail(err error) {
	select {
	case d.errCh <- err:
	default:
	}
}

func (d *discovery) wait(ctx context.Context, timeout time.Duration) error {
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeoutCh:
		return fmt.Errorf("no streams discovered within %v: %w", timeout, types.ErrTimeout)
	case err := <-d.errCh:
		return err
	case <-d.doneCh:
		return nil
	}
}

// Connect connects the input pin to the upstream peer, which must
// provide a reader.AsyncReader. It builds the pipeline and returns after
// the initial streams are exposed as output ports.
func (f *Filter) Connect(
	ctx context.Context,
	peer graph.Peer,
	mediaType *mediatype.MediaType,
) (_err error) {
	ctx = f.ctx(ctx)
	logger.Debugf(ctx, "Connect(%s)", mediaType)
	defer func() { logger.Debugf(ctx, "/Connect(%s): %v", mediaType, _err) }()
	return xsync.DoA3R1(ctx, &f.stateChangeLocker, f.connect, ctx, peer, mediaType)
}

func (f *Filter) connect(
	ctx context.Context,
	peer graph.Peer,
	mediaType *mediatype.MediaType,
) (_err error) {
	if f.getConnection() != nil {
		return graph.ErrAlreadyConnected
	}
	if mediaType == nil || mediaType.Major != types.MediaTypeStream {
		return fmt.Errorf("%w: %s", graph.ErrTypeNotAccepted, mediaType)
	}
	if peer == nil {
		return fmt.Errorf("no peer: %w", graph.ErrInvalidArgument)
	}
	if dir := peer.Direction(); dir != graph.PinDirectionOutput {
		return fmt.Errorf("%w: the peer is an %s pin", graph.ErrInvalidDirection, dir)
	}
	r, ok := peer.(reader.AsyncReader)
	if !ok {
		return fmt.Errorf("%w: the peer %T is not an asynchronous reader", graph.ErrNoInterface, peer)
	}
	logger.TraceDump(ctx, "connect media type", mediaType)

	closer := astikit.NewCloser()
	defer func() {
		if _err == nil {
			return
		}
		logger.Debugf(ctx, "rolling back the connection: %v", _err)
		if err := closer.Close(); err != nil {
			logger.Errorf(ctx, "unable to roll back: %v", err)
		}
	}()

	factory := f.config.PipelineFactory
	if factory == nil {
		return ErrBuildPipeline{Err: errors.New("no pipeline factory configured")}
	}

	total, _, err := r.Length(ctx)
	if err != nil {
		return fmt.Errorf("unable to get the length of the input: %w", err)
	}

	conn := &connection{
		peer:      peer,
		reader:    r,
		mediaType: mediaType,
		length:    total,
		discovery: newDiscovery(),
	}
	conn.source = newSourceBridge(f, conn)

	p, err := factory.NewPipeline(ctx, pipeline.Config{
		Name:       "avbridge-" + f.ID.String(),
		Source:     &sourceHandler{filter: f, bridge: conn.source},
		Decode:     &decodeHandler{filter: f},
		Bus:        &busHandler{filter: f},
		PreferPush: f.config.PreferPush,
	})
	if err != nil {
		return ErrBuildPipeline{Err: err}
	}
	conn.pipeline = p
	closer.Add(func() {
		f.closePipeline(ctx, p)
	})

	f.locker.Do(ctx, func() {
		f.connection = conn
	})
	closer.Add(func() {
		for _, port := range f.takePorts(ctx) {
			port.destroy(ctx)
		}
	})
	closer.Add(func() {
		f.locker.Do(ctx, func() {
			f.connection = nil
		})
	})

	f.initial.Store(true)
	defer f.initial.Store(false)
	if err := f.discover(ctx, conn); err != nil {
		return fmt.Errorf("unable to discover the streams: %w", err)
	}

	alloc, err := r.RequestAllocator(ctx, nil, f.config.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("unable to get an allocator from the upstream: %w", err)
	}
	if err := alloc.Commit(ctx); err != nil {
		return fmt.Errorf("unable to commit the allocator %s: %w", alloc, err)
	}
	closer.Add(func() {
		if err := alloc.Decommit(ctx); err != nil {
			logger.Errorf(ctx, "unable to decommit the allocator: %v", err)
		}
	})
	f.locker.Do(ctx, func() {
		conn.pool = alloc
	})
	return nil
}

// discover prerolls the pipeline until every initial stream is exposed
// and returns it to ready.
func (f *Filter) discover(ctx context.Context, conn *connection) (_err error) {
	logger.Debugf(ctx, "discover")
	defer func() { logger.Debugf(ctx, "/discover: %v", _err) }()

	ret, err := conn.pipeline.SetState(ctx, pipeline.StatePaused)
	if err != nil {
		return fmt.Errorf("unable to pause the pipeline: %w", err)
	}
	logger.Debugf(ctx, "waiting for the streams (%s)", ret)
	if err := conn.discovery.wait(ctx, f.config.DiscoveryTimeout); err != nil {
		return err
	}

	f.suppressFlush.Store(true)
	defer f.suppressFlush.Store(false)
	if _, err := conn.pipeline.SetState(ctx, pipeline.StateReady); err != nil {
		return fmt.Errorf("unable to return the pipeline to ready: %w", err)
	}
	return f.waitPipelineState(ctx, conn.pipeline)
}

func (f *Filter) waitPipelineState(ctx context.Context, p pipeline.Pipeline) error {
	timeout := f.config.StateChangeTimeout
	if timeout <= 0 {
		timeout = -1
	}
	ret, state, err := p.GetState(ctx, timeout)
	switch {
	case err != nil:
		return fmt.Errorf("unable to get the state of the pipeline: %w", err)
	case ret == pipeline.StateChangeAsync:
		return fmt.Errorf("the pipeline is still changing its state from %s: %w", state, types.ErrTimeout)
	case ret == pipeline.StateChangeFailure:
		return fmt.Errorf("the pipeline failed to change its state from %s", state)
	}
	return nil
}

func (f *Filter) closePipeline(ctx context.Context, p pipeline.Pipeline) {
	f.suppressFlush.Store(true)
	defer f.suppressFlush.Store(false)
	if err := p.Close(ctx); err != nil {
		logger.Errorf(ctx, "unable to close the pipeline: %v", err)
	}
}

func (f *Filter) takePorts(ctx context.Context) []*OutputPort {
	return xsync.DoR1(ctx, &f.locker, func() []*OutputPort {
		ports := f.ports
		f.ports = nil
		f.nextPortIndex = 0
		return ports
	})
}

// Disconnect releases the pipeline, the output ports and the upstream
// resources. It is allowed only while stopped.
func (f *Filter) Disconnect(ctx context.Context) (_err error) {
	ctx = f.ctx(ctx)
	logger.Debugf(ctx, "Disconnect")
	defer func() { logger.Debugf(ctx, "/Disconnect: %v", _err) }()
	return xsync.DoA1R1(ctx, &f.stateChangeLocker, f.disconnect, ctx)
}

func (f *Filter) disconnect(ctx context.Context) error {
	if state := f.getState(); state != types.StateStopped {
		return fmt.Errorf("unable to disconnect while %s: %w", state, types.ErrWrongState)
	}
	conn := xsync.DoR1(ctx, &f.locker, func() *connection {
		conn := f.connection
		f.connection = nil
		return conn
	})
	if conn == nil {
		return nil
	}

	f.closePipeline(ctx, conn.pipeline)
	for _, port := range f.takePorts(ctx) {
		port.destroy(ctx)
	}
	if conn.pool != nil {
		if err := conn.pool.Decommit(ctx); err != nil {
			return fmt.Errorf("unable to decommit the input allocator: %w", err)
		}
	}
	return nil
}
