// source.go provides feeding appsrc from the source handler.
//
// Pull scheduling is served by a random-access appsrc: every need-data is
// answered with a GetRange at the current offset. Push scheduling uses a
// seekable appsrc fed by the caller through Push.

package gst

import (
	"context"
	"fmt"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/xsync"
)

type sourcePad struct {
	pipeline *Pipeline
	handler  pipeline.SourceHandler
	mode     pipeline.PadMode

	locker xsync.Mutex

	// access only when locker is locked:
	active bool
	offset uint64
	eos    bool
}

var _ pipeline.SourcePad = (*sourcePad)(nil)

func newSourcePad(p *Pipeline) *sourcePad {
	s := &sourcePad{
		pipeline: p,
		handler:  p.config.Source,
		mode:     pipeline.PadModePull,
	}
	if p.config.PreferPush {
		s.mode = pipeline.PadModePush
	}
	return s
}

func (s *sourcePad) configure(ctx context.Context) error {
	if s.handler == nil {
		return fmt.Errorf("no source handler")
	}
	src := s.pipeline.appSrc
	q := &pipeline.QueryDuration{Format: pipeline.FormatBytes}
	if s.handler.HandleQuery(ctx, q) && q.Duration > 0 {
		src.SetSize(q.Duration)
	}
	src.SetProperty("format", gst.FormatBytes)
	switch s.mode {
	case pipeline.PadModePull:
		src.SetStreamType(app.AppStreamTypeRandomAccess)
	default:
		src.SetStreamType(app.AppStreamTypeSeekable)
	}
	src.SetCallbacks(&app.SourceCallbacks{
		NeedDataFunc: func(self *app.Source, length uint) {
			s.needData(ctx, length)
		},
		SeekDataFunc: func(self *app.Source, offset uint64) bool {
			return s.seekData(ctx, offset)
		},
	})
	return nil
}

func (s *sourcePad) activate(ctx context.Context, active bool) error {
	changed := xsync.DoR1(ctx, &s.locker, func() bool {
		if s.active == active {
			return false
		}
		s.active = active
		if active {
			s.offset = 0
			s.eos = false
		}
		return true
	})
	if !changed {
		return nil
	}
	return s.handler.ActivateMode(ctx, s.mode, active)
}

func (s *sourcePad) activatesAfterStateChange() bool {
	return s.mode == pipeline.PadModePush
}

func (s *sourcePad) Mode() pipeline.PadMode {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &s.locker, func() pipeline.PadMode {
		if !s.active {
			return pipeline.PadModeNone
		}
		return s.mode
	})
}

func (s *sourcePad) needData(ctx context.Context, length uint) {
	if s.mode != pipeline.PadModePull {
		return
	}
	type request struct {
		offset uint64
		skip   bool
	}
	req := xsync.DoR1(ctx, &s.locker, func() request {
		return request{offset: s.offset, skip: !s.active || s.eos}
	})
	if req.skip {
		return
	}
	buf, flow := s.handler.GetRange(ctx, req.offset, length)
	switch {
	case flow == pipeline.FlowEOS:
		s.endOfStream(ctx)
		return
	case flow != pipeline.FlowOK:
		logger.Debugf(ctx, "GetRange(%d, %d): %s", req.offset, length, flow)
		if flow.IsFatal() {
			s.endOfStream(ctx)
		}
		return
	}
	defer buf.Release()
	s.locker.Do(ctx, func() {
		s.offset = req.offset + uint64(len(buf.Data))
	})
	if ret := s.pipeline.appSrc.PushBuffer(toGstBuffer(buf)); ret != gst.FlowOK {
		logger.Debugf(ctx, "appsrc refused a buffer: %s", fromGstFlow(ret))
	}
}

func (s *sourcePad) endOfStream(ctx context.Context) {
	s.locker.Do(ctx, func() {
		s.eos = true
	})
	if ret := s.pipeline.appSrc.EndStream(); ret != gst.FlowOK {
		logger.Debugf(ctx, "unable to end the stream: %s", fromGstFlow(ret))
	}
}

func (s *sourcePad) seekData(ctx context.Context, offset uint64) bool {
	logger.Debugf(ctx, "seekData(%d)", offset)
	if s.mode == pipeline.PadModePull {
		s.locker.Do(ctx, func() {
			s.offset = offset
			s.eos = false
		})
		return true
	}
	// appsrc has already flushed itself
	return s.handler.HandleEvent(ctx, &pipeline.EventSeek{
		Rate:      1,
		Format:    pipeline.FormatBytes,
		Flags:     pipeline.SeekFlagNone,
		StartType: pipeline.SeekTypeSet,
		Start:     int64(offset),
		StopType:  pipeline.SeekTypeNone,
		Stop:      -1,
	})
}

func (s *sourcePad) Push(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	defer buf.Release()
	return fromGstFlow(s.pipeline.appSrc.PushBuffer(toGstBuffer(buf)))
}

func (s *sourcePad) PushEvent(ctx context.Context, ev pipeline.Event) bool {
	if _, ok := ev.(*pipeline.EventEOS); ok {
		return s.pipeline.appSrc.EndStream() == gst.FlowOK
	}
	gstEv := toGstEvent(ev)
	if gstEv == nil {
		return false
	}
	pad := s.pipeline.appSrc.GetStaticPad("src")
	if pad == nil {
		return false
	}
	return pad.PushEvent(gstEv)
}
