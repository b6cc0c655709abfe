// pads.go provides the pads of the virtual pipeline: the input pad fed by
// the bridge, the exposed stream pads and the caller-owned sink pads.

package virtual

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/xsync"
)

type sourcePad struct {
	pipeline *Pipeline
	mode     atomic.Int32
	flushing atomic.Bool

	// pushLocker serializes the data pushed in with the flush handling.
	pushLocker xsync.Mutex
}

var _ pipeline.SourcePad = (*sourcePad)(nil)

func (pad *sourcePad) Mode() pipeline.PadMode {
	return pipeline.PadMode(pad.mode.Load())
}

func (pad *sourcePad) setMode(mode pipeline.PadMode) {
	pad.mode.Store(int32(mode))
}

func (pad *sourcePad) Push(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	defer buf.Release()
	if pad.flushing.Load() || pad.Mode() != pipeline.PadModePush {
		return pipeline.FlowFlushing
	}
	return xsync.DoR1(xsync.WithNoLogging(ctx, true), &pad.pushLocker, func() pipeline.FlowReturn {
		if pad.flushing.Load() {
			return pipeline.FlowFlushing
		}
		return pad.pipeline.handlePushedData(ctx, buf)
	})
}

func (pad *sourcePad) PushEvent(ctx context.Context, ev pipeline.Event) bool {
	logger.Debugf(ctx, "source pad event: %s", ev)
	p := pad.pipeline
	switch ev := ev.(type) {
	case *pipeline.EventFlushStart:
		pad.flushing.Store(true)
		p.sendDownstream(ctx, ev)
		return true
	case *pipeline.EventFlushStop:
		pad.pushLocker.Do(xsync.WithNoLogging(ctx, true), func() {
			p.applyFlushStop(ctx)
			pad.flushing.Store(false)
		})
		p.sendDownstream(ctx, ev)
		return true
	case *pipeline.EventEOS:
		p.endOfStream(ctx)
		return true
	case *pipeline.EventSegment:
		return ev.Segment.Format == pipeline.FormatBytes
	}
	return false
}

// outPad exposes one stream of the container.
type outPad struct {
	pipeline *Pipeline
	name     string
	stream   int
	caps     *pipeline.Caps
	duration pipeline.ClockTime

	locker xsync.Mutex

	// access only when locker is locked:
	peer         *sinkPad
	needSegment  bool
	discont      bool
	lastPosition pipeline.ClockTime
	lastFlow     pipeline.FlowReturn
}

var _ pipeline.Pad = (*outPad)(nil)

func newOutPad(p *Pipeline, stream int, info StreamInfo) *outPad {
	return &outPad{
		pipeline:     p,
		name:         fmt.Sprintf("src_%d", stream),
		stream:       stream,
		caps:         info.Caps,
		duration:     info.Duration,
		needSegment:  true,
		lastPosition: pipeline.ClockTimeNone,
	}
}

func (pad *outPad) String() string {
	return pad.name
}

func (pad *outPad) Name() string {
	return pad.name
}

func (pad *outPad) Caps() *pipeline.Caps {
	return pad.caps
}

func (pad *outPad) IsLinked() bool {
	return pad.getPeer() != nil
}

func (pad *outPad) getPeer() *sinkPad {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &pad.locker, func() *sinkPad {
		return pad.peer
	})
}

func (pad *outPad) Link(ctx context.Context, sink pipeline.SinkPad) error {
	s, ok := sink.(*sinkPad)
	if !ok || s.pipeline != pad.pipeline {
		return fmt.Errorf("sink pad %v does not belong to this pipeline", sink)
	}
	err := xsync.DoR1(ctx, &pad.locker, func() error {
		if pad.peer != nil {
			return fmt.Errorf("pad '%s' is already linked to '%s'", pad.name, pad.peer.name)
		}
		if !s.setPeer(pad) {
			return fmt.Errorf("sink pad '%s' is already linked", s.name)
		}
		pad.peer = s
		return nil
	})
	if err != nil {
		return err
	}
	logger.Debugf(ctx, "linked %s -> %s", pad.name, s.name)
	return nil
}

func (pad *outPad) Unlink(ctx context.Context, sink pipeline.SinkPad) error {
	return xsync.DoR1(ctx, &pad.locker, func() error {
		if pad.peer == nil || pipeline.SinkPad(pad.peer) != sink {
			return fmt.Errorf("pad '%s' is not linked to %v", pad.name, sink)
		}
		pad.peer.clearPeer(pad)
		pad.peer = nil
		return nil
	})
}

func (pad *outPad) unlinkAny(ctx context.Context) {
	pad.locker.Do(ctx, func() {
		if pad.peer == nil {
			return
		}
		pad.peer.clearPeer(pad)
		pad.peer = nil
	})
}

func (pad *outPad) QueryPosition(ctx context.Context, format pipeline.Format) (int64, bool) {
	if format != pipeline.FormatTime {
		return 0, false
	}
	return xsync.DoR2(ctx, &pad.locker, func() (int64, bool) {
		if !pad.lastPosition.IsValid() {
			return 0, false
		}
		return int64(pad.lastPosition), true
	})
}

func (pad *outPad) QueryDuration(ctx context.Context, format pipeline.Format) (int64, bool) {
	if format != pipeline.FormatTime || pad.duration == 0 || !pad.duration.IsValid() {
		return 0, false
	}
	return int64(pad.duration), true
}

func (pad *outPad) markDiscont(position pipeline.ClockTime) {
	pad.locker.Do(context.Background(), func() {
		pad.needSegment = true
		pad.discont = true
		pad.lastPosition = position
	})
}

func (pad *outPad) markSegment() {
	pad.locker.Do(context.Background(), func() {
		pad.needSegment = true
	})
}

func (pad *outPad) push(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	type pushState struct {
		peer    *sinkPad
		segment bool
	}
	st := xsync.DoR1(xsync.WithNoLogging(ctx, true), &pad.locker, func() pushState {
		if pad.peer == nil {
			return pushState{}
		}
		st := pushState{peer: pad.peer, segment: pad.needSegment}
		pad.needSegment = false
		if pad.discont {
			buf.Flags |= pipeline.BufferFlagDiscont
			pad.discont = false
		}
		if buf.PTS.IsValid() {
			pad.lastPosition = buf.PTS
		}
		return st
	})
	var flow pipeline.FlowReturn
	switch {
	case st.peer == nil:
		buf.Release()
		flow = pipeline.FlowNotLinked
	default:
		if st.segment {
			st.peer.event(ctx, &pipeline.EventSegment{Segment: pad.pipeline.currentSegment()})
		}
		flow = st.peer.chain(ctx, buf)
	}
	pad.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		pad.lastFlow = flow
	})
	return flow
}

func (pad *outPad) getLastFlow() pipeline.FlowReturn {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &pad.locker, func() pipeline.FlowReturn {
		return pad.lastFlow
	})
}

func (pad *outPad) sendEvent(ctx context.Context, ev pipeline.Event) {
	if peer := pad.getPeer(); peer != nil {
		peer.event(ctx, ev)
	}
}

// sinkPad is created by the user of the pipeline to receive a stream.
type sinkPad struct {
	pipeline *Pipeline
	name     string
	handler  pipeline.SinkHandler
	opts     pipeline.SinkPadOptions

	active   atomic.Bool
	flushing atomic.Bool
	peer     atomic.Pointer[outPad]

	flippedFrames atomic.Uint64
}

var _ pipeline.SinkPad = (*sinkPad)(nil)

func (pad *sinkPad) String() string {
	return pad.name
}

func (pad *sinkPad) Name() string {
	return pad.name
}

func (pad *sinkPad) setPeer(peer *outPad) bool {
	return pad.peer.CompareAndSwap(nil, peer)
}

func (pad *sinkPad) clearPeer(peer *outPad) {
	pad.peer.CompareAndSwap(peer, nil)
}

func (pad *sinkPad) SetActive(ctx context.Context, active bool) error {
	logger.Debugf(ctx, "sink pad %s: SetActive(%t)", pad.name, active)
	pad.active.Store(active)
	if active {
		pad.flushing.Store(false)
	}
	return nil
}

func (pad *sinkPad) IsFlushing() bool {
	return pad.flushing.Load()
}

func (pad *sinkPad) ClearFlushing() {
	pad.flushing.Store(false)
}

func (pad *sinkPad) SendUpstreamEvent(ctx context.Context, ev pipeline.Event) bool {
	peer := pad.peer.Load()
	switch ev := ev.(type) {
	case *pipeline.EventQoS:
		pad.pipeline.recordQoS(*ev)
		return peer != nil
	case *pipeline.EventSeek:
		if peer == nil {
			return false
		}
		return pad.pipeline.handleOutputSeek(ctx, ev)
	}
	return false
}

func (pad *sinkPad) Close(ctx context.Context) error {
	if peer := pad.peer.Load(); peer != nil {
		peer.unlinkAny(ctx)
	}
	pad.active.Store(false)
	pad.pipeline.removeSinkPad(pad)
	return nil
}

// FlippedFrames returns the amount of frames the orientation adapter
// turned upside down.
func (pad *sinkPad) FlippedFrames() uint64 {
	return pad.flippedFrames.Load()
}

func (pad *sinkPad) chain(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	if !pad.active.Load() || pad.flushing.Load() {
		buf.Release()
		return pipeline.FlowFlushing
	}
	if pad.opts.NormalizeVideo {
		pad.normalize(ctx, buf)
	}
	return pad.handler.Chain(ctx, buf)
}

func (pad *sinkPad) normalize(ctx context.Context, buf *pipeline.Buffer) {
	peer := pad.peer.Load()
	if peer == nil {
		return
	}
	info, err := pipeline.ParseVideoInfo(peer.caps)
	if err != nil {
		return
	}
	flipped, ok := flipVertically(buf.Data, info)
	if !ok {
		logger.Debugf(ctx, "unable to flip a frame of %d bytes (%s)", len(buf.Data), peer.caps)
		return
	}
	buf.Data = flipped
	pad.flippedFrames.Add(1)
}

func (pad *sinkPad) event(ctx context.Context, ev pipeline.Event) {
	switch ev.(type) {
	case *pipeline.EventFlushStart:
		pad.flushing.Store(true)
	case *pipeline.EventFlushStop:
		pad.flushing.Store(false)
	default:
		if pad.flushing.Load() {
			logger.Debugf(ctx, "sink pad %s is flushing, dropping %s", pad.name, ev)
			return
		}
	}
	pad.handler.HandleEvent(ctx, ev)
}
