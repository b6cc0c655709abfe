package gst

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
)

// outPad is a decodebin source pad.
type outPad struct {
	pipeline *Pipeline
	pad      *gst.Pad
	name     string
}

var _ pipeline.Pad = (*outPad)(nil)

func (pad *outPad) String() string {
	return pad.name
}

func (pad *outPad) Name() string {
	return pad.name
}

func (pad *outPad) Caps() *pipeline.Caps {
	return fromGstCaps(pad.pad.GetCurrentCaps())
}

func (pad *outPad) IsLinked() bool {
	return pad.pad.IsLinked()
}

func (pad *outPad) Link(ctx context.Context, sink pipeline.SinkPad) error {
	s, ok := sink.(*sinkPad)
	if !ok || s.pipeline != pad.pipeline {
		return fmt.Errorf("sink pad %v does not belong to this pipeline", sink)
	}
	if ret := pad.pad.Link(s.entry); ret != gst.PadLinkOK {
		return fmt.Errorf("unable to link '%s' to '%s': %v", pad.name, s.name, ret)
	}
	return nil
}

func (pad *outPad) Unlink(ctx context.Context, sink pipeline.SinkPad) error {
	s, ok := sink.(*sinkPad)
	if !ok {
		return fmt.Errorf("sink pad %v does not belong to this pipeline", sink)
	}
	if !pad.pad.Unlink(s.entry) {
		return fmt.Errorf("'%s' is not linked to '%s'", pad.name, s.name)
	}
	return nil
}

func (pad *outPad) QueryPosition(ctx context.Context, format pipeline.Format) (int64, bool) {
	ok, position := pad.pad.QueryPosition(toGstFormat(format))
	return position, ok
}

func (pad *outPad) QueryDuration(ctx context.Context, format pipeline.Format) (int64, bool) {
	ok, duration := pad.pad.QueryDuration(toGstFormat(format))
	return duration, ok && duration > 0
}

// sinkPad is a [videoconvert ! videoflip !] appsink branch. Buffers are
// handed to the sink handler from the appsink callbacks, so the handler's
// flow return travels upstream; serialized events are taken by a probe on
// the appsink pad.
type sinkPad struct {
	pipeline *Pipeline
	name     string
	handler  pipeline.SinkHandler
	elements []*gst.Element
	appSink  *app.Sink
	entry    *gst.Pad
	probe    uint64
	tail     *gst.Pad

	active   atomic.Bool
	flushing atomic.Bool
}

var _ pipeline.SinkPad = (*sinkPad)(nil)

func newSinkPad(
	ctx context.Context,
	p *Pipeline,
	name string,
	handler pipeline.SinkHandler,
	opts pipeline.SinkPadOptions,
) (_ret *sinkPad, _err error) {
	logger.Debugf(ctx, "newSinkPad(%s)", name)
	defer func() { logger.Debugf(ctx, "/newSinkPad(%s): %v", name, _err) }()

	s := &sinkPad{
		pipeline: p,
		name:     name,
		handler:  handler,
	}
	if opts.NormalizeVideo {
		convert, err := gst.NewElement("videoconvert")
		if err != nil {
			return nil, fmt.Errorf("unable to create videoconvert: %w", err)
		}
		s.elements = append(s.elements, convert)
		if p.options.FlipVideo {
			flip, err := gst.NewElementWithProperties("videoflip", map[string]interface{}{
				"method": "vertical-flip",
			})
			if err != nil {
				return nil, fmt.Errorf("unable to create videoflip: %w", err)
			}
			s.elements = append(s.elements, flip)
		}
	}
	appSink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("unable to create appsink: %w", err)
	}
	if err := appSink.SetProperty("sync", false); err != nil {
		return nil, fmt.Errorf("unable to disable clock sync of appsink: %w", err)
	}
	s.appSink = appSink
	s.elements = append(s.elements, appSink.Element)

	if err := p.pipeline.AddMany(s.elements...); err != nil {
		return nil, fmt.Errorf("unable to add the elements of '%s': %w", name, err)
	}
	if len(s.elements) > 1 {
		if err := gst.ElementLinkMany(s.elements...); err != nil {
			return nil, fmt.Errorf("unable to link the elements of '%s': %w", name, err)
		}
	}
	s.entry = s.elements[0].GetStaticPad("sink")
	s.tail = appSink.GetStaticPad("sink")
	if s.entry == nil || s.tail == nil {
		return nil, fmt.Errorf("no sink pad in the elements of '%s'", name)
	}
	appSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(self *app.Sink) gst.FlowReturn {
			return toGstFlow(s.onNewSample(ctx, self))
		},
	})
	s.probe = s.tail.AddProbe(
		gst.PadProbeTypeEventDownstream|gst.PadProbeTypeEventFlush,
		func(_ *gst.Pad, info *gst.PadProbeInfo) gst.PadProbeReturn {
			return s.onEvent(ctx, info)
		},
	)
	for _, elem := range s.elements {
		elem.SyncStateWithParent()
	}
	return s, nil
}

func (s *sinkPad) onNewSample(ctx context.Context, sink *app.Sink) pipeline.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return pipeline.FlowFlushing
	}
	buf := sample.GetBuffer()
	if buf == nil {
		return pipeline.FlowOK
	}
	return s.chain(ctx, fromGstBuffer(buf))
}

// chain returns the handler's verdict to the streaming thread.
func (s *sinkPad) chain(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	if !s.active.Load() || s.flushing.Load() {
		buf.Release()
		return pipeline.FlowFlushing
	}
	flow := s.handler.Chain(ctx, buf)
	if flow != pipeline.FlowOK {
		logger.Tracef(ctx, "'%s' chain: %s", s.name, flow)
	}
	return flow
}

func (s *sinkPad) onEvent(ctx context.Context, info *gst.PadProbeInfo) gst.PadProbeReturn {
	gstEv := info.GetEvent()
	if gstEv == nil {
		return gst.PadProbeOK
	}
	ev := fromGstEvent(gstEv)
	if ev == nil {
		return gst.PadProbeOK
	}
	switch ev.(type) {
	case *pipeline.EventFlushStart:
		s.flushing.Store(true)
	case *pipeline.EventFlushStop:
		s.flushing.Store(false)
	}
	if !s.handler.HandleEvent(ctx, ev) {
		logger.Debugf(ctx, "'%s' did not handle %s", s.name, ev)
	}
	return gst.PadProbeOK
}

func (s *sinkPad) String() string {
	return s.name
}

func (s *sinkPad) Name() string {
	return s.name
}

func (s *sinkPad) SetActive(ctx context.Context, active bool) error {
	s.active.Store(active)
	s.flushing.Store(!active)
	return nil
}

func (s *sinkPad) IsFlushing() bool {
	return s.flushing.Load()
}

func (s *sinkPad) ClearFlushing() {
	s.flushing.Store(false)
}

func (s *sinkPad) SendUpstreamEvent(ctx context.Context, ev pipeline.Event) bool {
	gstEv := toGstEvent(ev)
	if gstEv == nil {
		return false
	}
	if _, ok := ev.(*pipeline.EventSeek); ok {
		return s.pipeline.pipeline.SendEvent(gstEv)
	}
	return s.entry.PushEvent(gstEv)
}

func (s *sinkPad) Close(ctx context.Context) error {
	logger.Debugf(ctx, "Close(%s)", s.name)
	defer func() { logger.Debugf(ctx, "/Close(%s)", s.name) }()
	s.active.Store(false)
	s.tail.RemoveProbe(s.probe)
	for _, elem := range s.elements {
		if err := elem.SetState(gst.StateNull); err != nil {
			logger.Debugf(ctx, "unable to stop %s: %v", elem.GetName(), err)
		}
	}
	s.pipeline.forgetSinkPad(s)
	if err := s.pipeline.pipeline.RemoveMany(s.elements...); err != nil {
		return fmt.Errorf("unable to remove the elements of '%s': %w", s.name, err)
	}
	return nil
}
