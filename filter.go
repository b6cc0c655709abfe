// filter.go provides the Filter: the graph-visible side of the bridge.

// Package avbridge bridges a pull/push filter graph onto an independently
// threaded media pipeline: the Filter reads container bytes from its
// upstream pin, lets the pipeline demux and decode them, and exposes every
// discovered elementary stream as an OutputPort.
package avbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/facebookincubator/go-belt"
	"github.com/google/uuid"
	"github.com/xaionaro-go/avbridge/dispatcher"
	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/mediatype"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/reader"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

const errorChanSize = 16

type Filter struct {
	ID uuid.UUID

	config            config
	dispatcher        *dispatcher.Dispatcher
	releaseDispatcher bool

	// stateChangeLocker serializes Connect, Disconnect and the state
	// transitions; pipeline callbacks never take it.
	stateChangeLocker xsync.Mutex

	locker xsync.Mutex

	// access only when locker is locked:
	state      types.State
	connection *connection
	ports      []*OutputPort
	startTime  types.ReferenceTime

	// nextPortIndex is reserved together with the decision to create a
	// port, so concurrently exposed streams get distinct port names.
	nextPortIndex int

	initial       atomic.Bool
	suppressFlush atomic.Bool

	errCh     chan error
	closeOnce sync.Once
}

// connection is everything acquired by a successful Connect.
type connection struct {
	peer      graph.Peer
	reader    reader.AsyncReader
	mediaType *mediatype.MediaType
	length    int64
	pipeline  pipeline.Pipeline
	pool      *pool.Pool
	source    *sourceBridge
	discovery *discovery
}

// Pin is a connection point of the filter.
type Pin interface {
	Name() string
	Direction() graph.PinDirection
}

type InputPin struct {
	filter *Filter
}

var _ Pin = (*InputPin)(nil)

func (*InputPin) Name() string {
	return "input"
}

func (*InputPin) Direction() graph.PinDirection {
	return graph.PinDirectionInput
}

// ConnectedTo returns the upstream peer, nil if not connected.
func (pin *InputPin) ConnectedTo() graph.Peer {
	conn := pin.filter.getConnection()
	if conn == nil {
		return nil
	}
	return conn.peer
}

func New(ctx context.Context, opts ...Option) *Filter {
	f := &Filter{
		ID:     uuid.New(),
		config: Options(opts).config(),
		state:  types.StateStopped,
		errCh:  make(chan error, errorChanSize),
	}
	ctx = f.ctx(ctx)
	logger.Debugf(ctx, "New")
	defer func() { logger.Debugf(ctx, "/New") }()
	f.dispatcher = f.config.Dispatcher
	if f.dispatcher == nil {
		f.dispatcher = dispatcher.Acquire(ctx, f.config.DispatcherOptions...)
		f.releaseDispatcher = true
	}
	return f
}

func (f *Filter) String() string {
	return fmt.Sprintf("Filter(%s)", f.ID)
}

func (f *Filter) ctx(ctx context.Context) context.Context {
	return belt.WithField(ctx, "filter_id", f.ID.String())
}

func (f *Filter) getConnection() *connection {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &f.locker, func() *connection {
		return f.connection
	})
}

func (f *Filter) getState() types.State {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &f.locker, func() types.State {
		return f.state
	})
}

func (f *Filter) setState(ctx context.Context, state types.State) {
	logger.Debugf(ctx, "state: %s", state)
	f.locker.Do(ctx, func() {
		f.state = state
	})
}

// StartTime returns the nominal start time given to the last Run.
func (f *Filter) StartTime() types.ReferenceTime {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &f.locker, func() types.ReferenceTime {
		return f.startTime
	})
}

func (f *Filter) InputPin() *InputPin {
	return &InputPin{filter: f}
}

// Pins returns the input pin followed by the output ports.
func (f *Filter) Pins() []Pin {
	pins := []Pin{f.InputPin()}
	for _, port := range f.OutputPorts() {
		pins = append(pins, port)
	}
	return pins
}

func (f *Filter) OutputPorts() []*OutputPort {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &f.locker, func() []*OutputPort {
		return append([]*OutputPort(nil), f.ports...)
	})
}

// Pipeline returns the inner pipeline, nil if not connected.
func (f *Filter) Pipeline() pipeline.Pipeline {
	conn := f.getConnection()
	if conn == nil {
		return nil
	}
	return conn.pipeline
}

// ErrorChan delivers fatal streaming failures. Errors are dropped if
// nobody reads them.
func (f *Filter) ErrorChan() <-chan error {
	return f.errCh
}

func (f *Filter) reportError(ctx context.Context, err error) {
	logger.Errorf(ctx, "%v", err)
	select {
	case f.errCh <- err:
	default:
		logger.Debugf(ctx, "the error channel is full, dropping: %v", err)
	}
}

func (f *Filter) Close(ctx context.Context) (_err error) {
	ctx = f.ctx(ctx)
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()
	f.closeOnce.Do(func() {
		var errs []error
		if err := f.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to stop: %w", err))
		}
		if err := f.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("unable to disconnect: %w", err))
		}
		if f.releaseDispatcher {
			dispatcher.Release(ctx)
		}
		_err = errors.Join(errs...)
	})
	return
}
