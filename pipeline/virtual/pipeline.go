// pipeline.go provides a pure-Go pipeline demuxing the AVBv container.

// Package virtual implements pipeline.Factory in-process: typefinding,
// demuxing and "decoding" of a small packetized container, with the pad,
// flush, seek and state semantics of a real media framework.
package virtual

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

const (
	DefaultChunkSize       = 4096
	DefaultFallbackDecoder = "Virtual Generic Decoder"
)

type Config struct {
	// AsyncStateChanges makes the transition to paused complete only
	// after the streams are discovered.
	AsyncStateChanges bool

	// ChunkSize is the amount of bytes requested per pull.
	ChunkSize int

	// FallbackDecoder is offered to autoplugging after the stream's
	// own decoder.
	FallbackDecoder string
}

type Pipeline struct {
	config  pipeline.Config
	options Config
	srcPad  *sourcePad

	locker xsync.Mutex

	// access only when locker is locked:
	state          pipeline.State
	closed         bool
	outPads        []*outPad
	sinkPads       []*sinkPad
	sinkPadSerial  int
	demux          demuxer
	segment        pipeline.Segment
	pendingSegment *pipeline.Segment
	pendingClip    pipeline.ClockTime
	clip           pipeline.ClockTime
	rate           float64
	task           *task
	prerolledCh    chan struct{}
	prerollOnce    *sync.Once
	asyncPending   bool
	qosEvents      []pipeline.EventQoS
	decoders       map[int]string
	eos            bool
}

var _ pipeline.Pipeline = (*Pipeline)(nil)

func newPipeline(cfg pipeline.Config, opts Config) *Pipeline {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.FallbackDecoder == "" {
		opts.FallbackDecoder = DefaultFallbackDecoder
	}
	p := &Pipeline{
		config:   cfg,
		options:  opts,
		state:    pipeline.StateNull,
		rate:     1,
		decoders: map[int]string{},
	}
	p.srcPad = &sourcePad{pipeline: p}
	p.resetBuildLocked()
	return p
}

func (p *Pipeline) String() string {
	return fmt.Sprintf("VirtualPipeline(%s)", p.config.Name)
}

func (p *Pipeline) resetBuildLocked() {
	p.outPads = nil
	p.demux = demuxer{offset: 0}
	p.segment = pipeline.NewTimeSegment()
	p.segment.Rate = p.rate
	p.pendingSegment = nil
	p.clip = 0
	p.eos = false
	p.prerolledCh = make(chan struct{})
	p.prerollOnce = &sync.Once{}
	p.asyncPending = false
}

func (p *Pipeline) SourcePad() pipeline.SourcePad {
	return p.srcPad
}

func (p *Pipeline) NewSinkPad(
	ctx context.Context,
	name string,
	handler pipeline.SinkHandler,
	opts pipeline.SinkPadOptions,
) (pipeline.SinkPad, error) {
	if handler == nil {
		return nil, fmt.Errorf("no handler")
	}
	return xsync.DoR2(ctx, &p.locker, func() (pipeline.SinkPad, error) {
		if p.closed {
			return nil, fmt.Errorf("the pipeline is closed")
		}
		if name == "" {
			name = fmt.Sprintf("sink_%d", p.sinkPadSerial)
		}
		p.sinkPadSerial++
		pad := &sinkPad{
			pipeline: p,
			name:     name,
			handler:  handler,
			opts:     opts,
		}
		p.sinkPads = append(p.sinkPads, pad)
		return pad, nil
	})
}

func (p *Pipeline) removeSinkPad(pad *sinkPad) {
	p.locker.Do(context.Background(), func() {
		for idx, cmp := range p.sinkPads {
			if cmp == pad {
				p.sinkPads = append(p.sinkPads[:idx], p.sinkPads[idx+1:]...)
				return
			}
		}
	})
}

func (p *Pipeline) getState() pipeline.State {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() pipeline.State {
		return p.state
	})
}

func (p *Pipeline) setState(state pipeline.State) {
	p.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		p.state = state
	})
}

func (p *Pipeline) SetState(
	ctx context.Context,
	target pipeline.State,
) (_ret pipeline.StateChangeReturn, _err error) {
	logger.Debugf(ctx, "SetState(%s)", target)
	defer func() { logger.Debugf(ctx, "/SetState(%s): %s %v", target, _ret, _err) }()
	if target < pipeline.StateNull || target > pipeline.StatePlaying {
		return pipeline.StateChangeFailure, fmt.Errorf("invalid target state %s", target)
	}
	ret := pipeline.StateChangeSuccess
	for {
		cur := p.getState()
		if cur == target {
			return ret, nil
		}
		var (
			stepRet pipeline.StateChangeReturn
			err     error
		)
		switch {
		case cur == pipeline.StateNull:
			p.setState(pipeline.StateReady)
			continue
		case cur == pipeline.StateReady && target > cur:
			stepRet, err = p.readyToPaused(ctx)
		case cur == pipeline.StateReady:
			p.setState(pipeline.StateNull)
			continue
		case cur == pipeline.StatePaused && target > cur:
			p.setState(pipeline.StatePlaying)
			p.post(ctx, &pipeline.MessageStateChanged{Source: p.config.Name, Old: cur, New: pipeline.StatePlaying, Pending: pipeline.StateVoidPending})
			continue
		case cur == pipeline.StatePaused:
			stepRet, err = p.pausedToReady(ctx)
		case cur == pipeline.StatePlaying:
			p.setState(pipeline.StatePaused)
			p.post(ctx, &pipeline.MessageStateChanged{Source: p.config.Name, Old: cur, New: pipeline.StatePaused, Pending: pipeline.StateVoidPending})
			continue
		}
		if err != nil {
			return pipeline.StateChangeFailure, err
		}
		if stepRet == pipeline.StateChangeAsync {
			ret = pipeline.StateChangeAsync
		}
	}
}

func (p *Pipeline) readyToPaused(ctx context.Context) (pipeline.StateChangeReturn, error) {
	logger.Tracef(ctx, "readyToPaused")
	defer func() { logger.Tracef(ctx, "/readyToPaused") }()

	mode := pipeline.PadModePush
	if src := p.config.Source; src != nil && !p.config.PreferPush {
		q := &pipeline.QueryScheduling{}
		if src.HandleQuery(ctx, q) && q.HasMode(pipeline.PadModePull) {
			mode = pipeline.PadModePull
		}
	}

	p.locker.Do(ctx, func() {
		p.resetBuildLocked()
		p.asyncPending = p.options.AsyncStateChanges
		p.state = pipeline.StatePaused
	})
	p.srcPad.flushing.Store(false)
	p.srcPad.setMode(mode)

	if src := p.config.Source; src != nil {
		if err := src.ActivateMode(ctx, mode, true); err != nil {
			p.srcPad.setMode(pipeline.PadModeNone)
			p.setState(pipeline.StateReady)
			return pipeline.StateChangeFailure, fmt.Errorf("unable to activate the source in %s mode: %w", mode, err)
		}
	}
	if mode == pipeline.PadModePull {
		p.startTask(ctx)
	}
	p.post(ctx, &pipeline.MessageStateChanged{Source: p.config.Name, Old: pipeline.StateReady, New: pipeline.StatePaused, Pending: pipeline.StateVoidPending})
	if p.options.AsyncStateChanges {
		return pipeline.StateChangeAsync, nil
	}
	return pipeline.StateChangeSuccess, nil
}

func (p *Pipeline) pausedToReady(ctx context.Context) (pipeline.StateChangeReturn, error) {
	logger.Tracef(ctx, "pausedToReady")
	defer func() { logger.Tracef(ctx, "/pausedToReady") }()

	p.srcPad.flushing.Store(true)
	mode := p.srcPad.Mode()
	if mode == pipeline.PadModePull {
		p.stopTask(ctx)
	}
	var err error
	if src := p.config.Source; src != nil && mode != pipeline.PadModeNone {
		err = src.ActivateMode(ctx, mode, false)
	}
	p.srcPad.setMode(pipeline.PadModeNone)

	pads := xsync.DoR1(ctx, &p.locker, func() []*outPad {
		return p.outPads
	})

	// decoders hand a flush-start to their peers while shutting down
	// and never follow it with a flush-stop
	for _, pad := range pads {
		pad.sendEvent(ctx, &pipeline.EventFlushStart{})
	}
	for _, pad := range pads {
		pad.unlinkAny(ctx)
		if dec := p.config.Decode; dec != nil {
			dec.PadRemoved(ctx, pad)
		}
	}

	p.locker.Do(ctx, func() {
		p.resetBuildLocked()
		p.state = pipeline.StateReady
	})
	p.post(ctx, &pipeline.MessageStateChanged{Source: p.config.Name, Old: pipeline.StatePaused, New: pipeline.StateReady, Pending: pipeline.StateVoidPending})
	if err != nil {
		return pipeline.StateChangeFailure, fmt.Errorf("unable to deactivate the source: %w", err)
	}
	return pipeline.StateChangeSuccess, nil
}

func (p *Pipeline) GetState(
	ctx context.Context,
	timeout time.Duration,
) (pipeline.StateChangeReturn, pipeline.State, error) {
	type snapshot struct {
		state        pipeline.State
		asyncPending bool
		prerolledCh  chan struct{}
	}
	s := xsync.DoR1(ctx, &p.locker, func() snapshot {
		return snapshot{state: p.state, asyncPending: p.asyncPending, prerolledCh: p.prerolledCh}
	})
	if !s.asyncPending {
		return pipeline.StateChangeSuccess, s.state, nil
	}

	var timeoutCh <-chan time.Time
	switch {
	case timeout == 0:
		select {
		case <-s.prerolledCh:
			return pipeline.StateChangeSuccess, p.getState(), nil
		default:
			return pipeline.StateChangeAsync, s.state, nil
		}
	case timeout > 0:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	select {
	case <-ctx.Done():
		return pipeline.StateChangeFailure, s.state, ctx.Err()
	case <-timeoutCh:
		return pipeline.StateChangeAsync, s.state, nil
	case <-s.prerolledCh:
		return pipeline.StateChangeSuccess, p.getState(), nil
	}
}

func (p *Pipeline) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close") }()
	if p.getState() > pipeline.StateReady {
		if _, err := p.SetState(ctx, pipeline.StateNull); err != nil {
			logger.Warnf(ctx, "unable to stop the pipeline: %v", err)
		}
	}
	p.locker.Do(ctx, func() {
		p.closed = true
		p.state = pipeline.StateNull
		p.sinkPads = nil
	})
	return nil
}

func (p *Pipeline) post(ctx context.Context, msg pipeline.Message) {
	if p.config.Bus == nil {
		return
	}
	p.config.Bus.HandleMessage(ctx, msg)
}

func (p *Pipeline) postError(ctx context.Context, err error) {
	logger.Debugf(ctx, "streaming error: %v", err)
	p.post(ctx, &pipeline.MessageError{Source: p.config.Name, Err: err})
}

func (p *Pipeline) markPrerolled(ctx context.Context) {
	type prerollState struct {
		once  *sync.Once
		ch    chan struct{}
		async bool
	}
	s := xsync.DoR1(ctx, &p.locker, func() prerollState {
		return prerollState{once: p.prerollOnce, ch: p.prerolledCh, async: p.asyncPending}
	})
	s.once.Do(func() {
		p.locker.Do(ctx, func() {
			p.asyncPending = false
		})
		close(s.ch)
		if s.async {
			p.post(ctx, &pipeline.MessageAsyncDone{})
		}
	})
}

func (p *Pipeline) currentSegment() pipeline.Segment {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() pipeline.Segment {
		return p.segment
	})
}

func (p *Pipeline) recordQoS(ev pipeline.EventQoS) {
	p.locker.Do(context.Background(), func() {
		p.qosEvents = append(p.qosEvents, ev)
	})
}

// QoSEvents returns the quality-of-service events received so far.
func (p *Pipeline) QoSEvents() []pipeline.EventQoS {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() []pipeline.EventQoS {
		return append([]pipeline.EventQoS(nil), p.qosEvents...)
	})
}

// SelectedDecoders returns the decoder chosen by autoplugging per stream.
func (p *Pipeline) SelectedDecoders() map[int]string {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() map[int]string {
		r := make(map[int]string, len(p.decoders))
		for k, v := range p.decoders {
			r[k] = v
		}
		return r
	})
}

// SinkPads returns the sink pads created on the pipeline.
func (p *Pipeline) SinkPads() []pipeline.SinkPad {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() []pipeline.SinkPad {
		r := make([]pipeline.SinkPad, 0, len(p.sinkPads))
		for _, pad := range p.sinkPads {
			r = append(r, pad)
		}
		return r
	})
}

type task struct {
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func (t *task) stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

func (t *task) isStopped() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

func (p *Pipeline) startTask(ctx context.Context) {
	t := &task{
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	p.locker.Do(ctx, func() {
		p.task = t
	})
	observability.Go(xcontext.DetachDone(ctx), func(ctx context.Context) {
		defer close(t.doneCh)
		p.pullLoop(ctx, t)
	})
}

func (p *Pipeline) stopTask(ctx context.Context) {
	t := xsync.DoR1(ctx, &p.locker, func() *task {
		t := p.task
		p.task = nil
		return t
	})
	if t == nil {
		return
	}
	t.stop()
	<-t.doneCh
}
