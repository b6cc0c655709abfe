package gst

import (
	"context"
	"fmt"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

type Pipeline struct {
	config   pipeline.Config
	options  Config
	pipeline *gst.Pipeline
	appSrc   *app.Source
	decode   *gst.Element
	srcPad   *sourcePad
	closeCh  chan struct{}
	doneCh   chan struct{}

	locker xsync.Mutex

	// access only when locker is locked:
	target   pipeline.State
	outPads  map[string]*outPad
	sinkPads []*sinkPad
	closed   bool
}

var _ pipeline.Pipeline = (*Pipeline)(nil)

func newPipeline(
	ctx context.Context,
	cfg pipeline.Config,
	opts Config,
) (_ret *Pipeline, _err error) {
	p := &Pipeline{
		config:  cfg,
		options: opts,
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
		target:  pipeline.StateNull,
		outPads: map[string]*outPad{},
	}

	var err error
	p.pipeline, err = gst.NewPipeline(cfg.Name)
	if err != nil {
		return nil, fmt.Errorf("unable to create the pipeline: %w", err)
	}
	defer func() {
		if _err != nil {
			p.pipeline.SetState(gst.StateNull)
		}
	}()

	p.appSrc, err = app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("unable to create appsrc: %w", err)
	}
	p.decode, err = gst.NewElement("decodebin")
	if err != nil {
		return nil, fmt.Errorf("unable to create decodebin: %w", err)
	}
	if err := p.pipeline.AddMany(p.appSrc.Element, p.decode); err != nil {
		return nil, fmt.Errorf("unable to add the elements: %w", err)
	}
	if err := gst.ElementLinkMany(p.appSrc.Element, p.decode); err != nil {
		return nil, fmt.Errorf("unable to link appsrc to decodebin: %w", err)
	}

	p.srcPad = newSourcePad(p)
	if err := p.srcPad.configure(ctx); err != nil {
		return nil, err
	}
	if err := p.connectDecodeSignals(ctx); err != nil {
		return nil, err
	}

	observability.Go(xcontext.DetachDone(ctx), p.busLoop)
	return p, nil
}

func (p *Pipeline) connectDecodeSignals(ctx context.Context) error {
	if p.config.Decode == nil {
		return nil
	}
	decode := p.config.Decode
	if _, err := p.decode.Connect("pad-added", func(self *gst.Element, pad *gst.Pad) {
		if pad.GetDirection() != gst.PadDirectionSource {
			return
		}
		decode.PadAdded(ctx, p.getOutPad(pad))
	}); err != nil {
		return fmt.Errorf("unable to connect to 'pad-added': %w", err)
	}
	if _, err := p.decode.Connect("pad-removed", func(self *gst.Element, pad *gst.Pad) {
		if out := p.takeOutPad(pad); out != nil {
			decode.PadRemoved(ctx, out)
		}
	}); err != nil {
		return fmt.Errorf("unable to connect to 'pad-removed': %w", err)
	}
	if _, err := p.decode.Connect("no-more-pads", func(self *gst.Element) {
		decode.NoMorePads(ctx)
	}); err != nil {
		return fmt.Errorf("unable to connect to 'no-more-pads': %w", err)
	}
	if _, err := p.decode.Connect("unknown-type", func(self *gst.Element, pad *gst.Pad, caps *gst.Caps) {
		decode.UnknownType(ctx, p.getOutPad(pad), fromGstCaps(caps))
	}); err != nil {
		return fmt.Errorf("unable to connect to 'unknown-type': %w", err)
	}
	if _, err := p.decode.Connect("autoplug-select", func(
		self *gst.Element,
		pad *gst.Pad,
		caps *gst.Caps,
		factory *gst.ElementFactory,
	) int {
		info := pipeline.ElementFactoryInfo{
			Name:     factory.GetName(),
			LongName: factory.GetMetadata("long-name"),
			Klass:    factory.GetMetadata("klass"),
		}
		// the values of the result enumeration match GstAutoplugSelectResult
		return int(decode.AutoplugSelect(ctx, p.getOutPad(pad), fromGstCaps(caps), info))
	}); err != nil {
		return fmt.Errorf("unable to connect to 'autoplug-select': %w", err)
	}
	return nil
}

func (p *Pipeline) getOutPad(pad *gst.Pad) *outPad {
	name := pad.GetName()
	return xsync.DoR1(context.Background(), &p.locker, func() *outPad {
		if out, ok := p.outPads[name]; ok {
			return out
		}
		out := &outPad{pipeline: p, pad: pad, name: name}
		p.outPads[name] = out
		return out
	})
}

func (p *Pipeline) takeOutPad(pad *gst.Pad) *outPad {
	name := pad.GetName()
	return xsync.DoR1(context.Background(), &p.locker, func() *outPad {
		out := p.outPads[name]
		delete(p.outPads, name)
		return out
	})
}

func (p *Pipeline) SourcePad() pipeline.SourcePad {
	return p.srcPad
}

func (p *Pipeline) SetState(
	ctx context.Context,
	state pipeline.State,
) (_ret pipeline.StateChangeReturn, _err error) {
	logger.Debugf(ctx, "SetState(%s)", state)
	defer func() { logger.Debugf(ctx, "/SetState(%s): %s %v", state, _ret, _err) }()

	prev := xsync.DoR1(ctx, &p.locker, func() pipeline.State {
		prev := p.target
		p.target = state
		return prev
	})
	// need-data can arrive during the transition; appsrc refuses pushed
	// buffers until the transition has activated its pad.
	activating := prev <= pipeline.StateReady && state >= pipeline.StatePaused
	if activating && !p.srcPad.activatesAfterStateChange() {
		if err := p.srcPad.activate(ctx, true); err != nil {
			return pipeline.StateChangeFailure, err
		}
	}
	if err := p.pipeline.SetState(toGstState(state)); err != nil {
		return pipeline.StateChangeFailure, fmt.Errorf("unable to set the state %s: %w", state, err)
	}
	if activating && p.srcPad.activatesAfterStateChange() {
		if err := p.srcPad.activate(ctx, true); err != nil {
			return pipeline.StateChangeFailure, err
		}
	}
	if prev >= pipeline.StatePaused && state <= pipeline.StateReady {
		if err := p.srcPad.activate(ctx, false); err != nil {
			return pipeline.StateChangeFailure, err
		}
	}
	ret, _ := p.pipeline.GetState(gst.StateVoidPending, gst.ClockTime(0))
	return fromGstStateChange(ret), nil
}

func (p *Pipeline) GetState(
	ctx context.Context,
	timeout time.Duration,
) (pipeline.StateChangeReturn, pipeline.State, error) {
	gstTimeout := gst.ClockTimeNone
	if timeout >= 0 {
		gstTimeout = gst.ClockTime(timeout.Nanoseconds())
	}
	ret, state := p.pipeline.GetState(gst.StateVoidPending, gstTimeout)
	if ret == gst.StateChangeFailure {
		return fromGstStateChange(ret), fromGstState(state), fmt.Errorf("the pipeline failed its state change")
	}
	return fromGstStateChange(ret), fromGstState(state), nil
}

func (p *Pipeline) NewSinkPad(
	ctx context.Context,
	name string,
	handler pipeline.SinkHandler,
	opts pipeline.SinkPadOptions,
) (pipeline.SinkPad, error) {
	s, err := newSinkPad(ctx, p, name, handler, opts)
	if err != nil {
		return nil, err
	}
	p.locker.Do(ctx, func() {
		p.sinkPads = append(p.sinkPads, s)
	})
	return s, nil
}

func (p *Pipeline) forgetSinkPad(s *sinkPad) {
	p.locker.Do(context.Background(), func() {
		for idx, candidate := range p.sinkPads {
			if candidate == s {
				p.sinkPads = append(p.sinkPads[:idx], p.sinkPads[idx+1:]...)
				return
			}
		}
	})
}

func (p *Pipeline) Close(ctx context.Context) (_err error) {
	logger.Debugf(ctx, "Close")
	defer func() { logger.Debugf(ctx, "/Close: %v", _err) }()

	alreadyClosed := xsync.DoR1(ctx, &p.locker, func() bool {
		closed := p.closed
		p.closed = true
		return closed
	})
	if alreadyClosed {
		return nil
	}
	_, err := p.SetState(ctx, pipeline.StateNull)
	close(p.closeCh)
	<-p.doneCh
	return err
}

// busLoop forwards the bus messages to the bus handler until closed.
func (p *Pipeline) busLoop(ctx context.Context) {
	defer close(p.doneCh)
	bus := p.pipeline.GetPipelineBus()
	interval := p.options.BusPollInterval
	if interval == 0 {
		interval = DefaultConfig().BusPollInterval
	}
	for {
		select {
		case <-p.closeCh:
			return
		default:
		}
		msg := bus.TimedPop(interval)
		if msg == nil {
			continue
		}
		if m := fromGstMessage(msg); m != nil && p.config.Bus != nil {
			p.config.Bus.HandleMessage(ctx, m)
		}
	}
}

func fromGstMessage(msg *gst.Message) pipeline.Message {
	switch msg.Type() {
	case gst.MessageError:
		gerr := msg.ParseError()
		return &pipeline.MessageError{
			Source: msg.Source(),
			Err:    fmt.Errorf("%s", gerr.Error()),
			Debug:  gerr.DebugString(),
		}
	case gst.MessageWarning:
		gwarn := msg.ParseWarning()
		return &pipeline.MessageWarning{
			Source: msg.Source(),
			Err:    fmt.Errorf("%s", gwarn.Error()),
			Debug:  gwarn.DebugString(),
		}
	case gst.MessageEOS:
		return &pipeline.MessageEOS{}
	case gst.MessageStateChanged:
		oldState, newState := msg.ParseStateChanged()
		return &pipeline.MessageStateChanged{
			Source: msg.Source(),
			Old:    fromGstState(oldState),
			New:    fromGstState(newState),
		}
	case gst.MessageAsyncDone:
		return &pipeline.MessageAsyncDone{}
	}
	return nil
}
