// streaming.go provides the streaming side of the virtual pipeline: the
// pull task, demuxing, pad exposure, delivery and seeking.

package virtual

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/xsync"
)

func (p *Pipeline) pullLoop(ctx context.Context, t *task) {
	logger.Debugf(ctx, "pullLoop")
	defer func() { logger.Debugf(ctx, "/pullLoop") }()

	src := p.config.Source
	if src == nil {
		return
	}
	for !t.isStopped() {
		offset := xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() int64 {
			return p.demux.end()
		})
		buf, flow := src.GetRange(ctx, uint64(offset), uint(p.options.ChunkSize))
		if t.isStopped() {
			if buf != nil {
				buf.Release()
			}
			return
		}
		if flow == pipeline.FlowOK && (buf == nil || len(buf.Data) == 0) {
			flow = pipeline.FlowEOS
		}
		switch flow {
		case pipeline.FlowOK:
		case pipeline.FlowEOS:
			if buf != nil {
				buf.Release()
			}
			p.endOfStream(ctx)
			return
		default:
			if buf != nil {
				buf.Release()
			}
			p.pauseTask(ctx, flow, nil)
			return
		}

		flow, err := p.process(ctx, uint64(offset), buf)
		buf.Release()
		if flow != pipeline.FlowOK {
			p.pauseTask(ctx, flow, err)
			return
		}
	}
}

func (p *Pipeline) pauseTask(ctx context.Context, flow pipeline.FlowReturn, err error) {
	logger.Debugf(ctx, "pausing the task: %s", flow)
	p.reportFlow(ctx, flow, err)
}

func (p *Pipeline) reportFlow(ctx context.Context, flow pipeline.FlowReturn, err error) {
	switch {
	case err != nil:
		p.postError(ctx, err)
	case flow.IsFatal():
		p.postError(ctx, fmt.Errorf("internal data stream error: %s", flow))
	}
}

func (p *Pipeline) handlePushedData(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	flow, err := p.process(ctx, buf.Offset, buf)
	p.reportFlow(ctx, flow, err)
	return flow
}

func (p *Pipeline) process(
	ctx context.Context,
	offset uint64,
	buf *pipeline.Buffer,
) (pipeline.FlowReturn, error) {
	p.locker.Do(xsync.WithNoLogging(ctx, true), func() {
		p.demux.feed(offset, buf.Data)
	})
	return p.drain(ctx)
}

type demuxItem struct {
	header *Header
	packet *Packet
	err    error
}

func (p *Pipeline) drain(ctx context.Context) (pipeline.FlowReturn, error) {
	for {
		item := xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() demuxItem {
			h, pkt, err := p.demux.next()
			return demuxItem{header: h, packet: pkt, err: err}
		})
		switch {
		case errors.Is(item.err, errNeedMoreData):
			return pipeline.FlowOK, nil
		case item.err != nil:
			return pipeline.FlowError, fmt.Errorf("unable to demux the stream: %w", item.err)
		case item.header != nil:
			p.exposePads(ctx, item.header)
		default:
			if flow := p.deliver(ctx, item.packet); flow != pipeline.FlowOK {
				return flow, nil
			}
		}
	}
}

func decoderKlass(caps *pipeline.Caps) string {
	switch caps.Family() {
	case "audio":
		return "Codec/Decoder/Audio"
	case "video":
		return "Codec/Decoder/Video"
	}
	return "Codec/Decoder"
}

func factoryName(longName string) string {
	return strings.ToLower(strings.ReplaceAll(longName, " ", ""))
}

// autoplug asks the decode handler to pick a decoder for the stream and
// returns false if every candidate was skipped.
func (p *Pipeline) autoplug(ctx context.Context, pad *outPad, info StreamInfo) (string, bool) {
	var candidates []string
	if info.Decoder != "" {
		candidates = append(candidates, info.Decoder)
	}
	if p.options.FallbackDecoder != info.Decoder {
		candidates = append(candidates, p.options.FallbackDecoder)
	}
	dec := p.config.Decode
	if dec == nil {
		return candidates[0], true
	}
	for _, name := range candidates {
		factory := pipeline.ElementFactoryInfo{
			Name:     factoryName(name),
			LongName: name,
			Klass:    decoderKlass(info.Caps),
		}
		switch r := dec.AutoplugSelect(ctx, pad, info.Caps, factory); r {
		case pipeline.AutoplugSelectTry:
			return name, true
		case pipeline.AutoplugSelectExpose:
			return "", true
		case pipeline.AutoplugSelectSkip:
			logger.Debugf(ctx, "decoder '%s' is skipped for %s", name, pad.name)
		default:
			logger.Warnf(ctx, "unexpected autoplug-select result %d, skipping '%s'", r, name)
		}
	}
	return "", false
}

func (p *Pipeline) exposePads(ctx context.Context, h *Header) {
	logger.Debugf(ctx, "exposePads: %d streams", len(h.Streams))
	defer func() { logger.Debugf(ctx, "/exposePads") }()

	dec := p.config.Decode
	for idx, info := range h.Streams {
		pad := newOutPad(p, idx, info)
		name, ok := p.autoplug(ctx, pad, info)
		if !ok {
			logger.Debugf(ctx, "no decoder for %s (%s)", pad.name, info.Caps)
			if dec != nil {
				dec.UnknownType(ctx, pad, info.Caps)
			}
			continue
		}
		p.locker.Do(ctx, func() {
			p.outPads = append(p.outPads, pad)
			p.decoders[idx] = name
		})
		if dec != nil {
			dec.PadAdded(ctx, pad)
		}
	}
	if dec != nil {
		dec.NoMorePads(ctx)
	}
	p.markPrerolled(ctx)
}

func (p *Pipeline) getOutPads() []*outPad {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() []*outPad {
		return append([]*outPad(nil), p.outPads...)
	})
}

func (p *Pipeline) deliver(ctx context.Context, pkt *Packet) pipeline.FlowReturn {
	type target struct {
		pad  *outPad
		clip pipeline.ClockTime
	}
	tgt := xsync.DoR1(xsync.WithNoLogging(ctx, true), &p.locker, func() target {
		for _, pad := range p.outPads {
			if pad.stream == pkt.Stream {
				return target{pad: pad, clip: p.clip}
			}
		}
		return target{}
	})
	if tgt.pad == nil {
		return pipeline.FlowOK
	}
	if pkt.PTS.IsValid() && pkt.PTS < tgt.clip {
		return pipeline.FlowOK
	}

	buf := pipeline.NewBuffer(pkt.Payload)
	buf.PTS = pkt.PTS
	buf.Duration = pkt.Duration
	if pkt.Flags&PacketFlagKeyFrame == 0 {
		buf.Flags |= pipeline.BufferFlagDeltaUnit
	}
	if pkt.Flags&PacketFlagLive != 0 {
		buf.Flags |= pipeline.BufferFlagLive
	}
	flow := tgt.pad.push(ctx, buf)
	return p.combineFlows(flow)
}

// combineFlows reports not-linked only if none of the pads is linked.
func (p *Pipeline) combineFlows(flow pipeline.FlowReturn) pipeline.FlowReturn {
	if flow != pipeline.FlowNotLinked {
		return flow
	}
	for _, pad := range p.getOutPads() {
		if pad.getLastFlow() != pipeline.FlowNotLinked {
			return pipeline.FlowOK
		}
	}
	return pipeline.FlowNotLinked
}

func (p *Pipeline) sendDownstream(ctx context.Context, ev pipeline.Event) {
	for _, pad := range p.getOutPads() {
		pad.sendEvent(ctx, ev)
	}
}

func (p *Pipeline) endOfStream(ctx context.Context) {
	logger.Debugf(ctx, "endOfStream")
	defer func() { logger.Debugf(ctx, "/endOfStream") }()

	known := xsync.DoR1(ctx, &p.locker, func() bool {
		p.eos = true
		return p.demux.header != nil
	})
	if !known {
		p.postError(ctx, fmt.Errorf("unable to find the type of the stream"))
		return
	}
	p.sendDownstream(ctx, &pipeline.EventEOS{})
	p.post(ctx, &pipeline.MessageEOS{})
}

// applyFlushStop is called on the input pad flush-stop, with the
// streaming locked out.
func (p *Pipeline) applyFlushStop(ctx context.Context) {
	position := xsync.DoR1(ctx, &p.locker, func() pipeline.ClockTime {
		if p.pendingSegment != nil {
			p.segment = *p.pendingSegment
			p.clip = p.pendingClip
			p.pendingSegment = nil
		}
		p.demux.reset(-1)
		p.eos = false
		return p.segment.Start
	})
	for _, pad := range p.getOutPads() {
		pad.markDiscont(position)
	}
}

func (p *Pipeline) handleOutputSeek(ctx context.Context, ev *pipeline.EventSeek) (_ret bool) {
	logger.Debugf(ctx, "handleOutputSeek: %s", ev)
	defer func() { logger.Debugf(ctx, "/handleOutputSeek: %t", _ret) }()

	if ev.Format != pipeline.FormatTime {
		return false
	}
	if ev.Rate == 0 {
		return false
	}

	if ev.StartType == pipeline.SeekTypeNone && ev.StopType == pipeline.SeekTypeNone {
		p.locker.Do(ctx, func() {
			p.rate = ev.Rate
			p.segment.Rate = ev.Rate
		})
		for _, pad := range p.getOutPads() {
			pad.markSegment()
		}
		return true
	}

	type plan struct {
		header  *Header
		segment pipeline.Segment
		clip    pipeline.ClockTime
		offset  int64
	}
	pl := xsync.DoR1(ctx, &p.locker, func() plan {
		h := p.demux.header
		if h == nil {
			return plan{}
		}
		seg := p.segment
		seg.Rate = ev.Rate
		start := seg.Start
		if ev.StartType == pipeline.SeekTypeSet {
			start = pipeline.ClockTime(max(ev.Start, 0))
		}
		offset, keyPTS := h.SeekOffset(start)
		clip := start
		if ev.Flags&pipeline.SeekFlagKeyUnit != 0 {
			start, clip = keyPTS, keyPTS
		}
		seg.Start, seg.Time, seg.Position, seg.Base = start, start, start, 0
		switch ev.StopType {
		case pipeline.SeekTypeSet:
			seg.Stop = pipeline.ClockTime(max(ev.Stop, 0))
		case pipeline.SeekTypeEnd:
			seg.Stop = pipeline.ClockTimeNone
		}
		return plan{header: h, segment: seg, clip: clip, offset: offset}
	})
	if pl.header == nil {
		logger.Debugf(ctx, "the stream is not demuxed yet, unable to seek")
		return false
	}

	switch p.srcPad.Mode() {
	case pipeline.PadModePull:
		return p.seekPull(ctx, ev, pl.segment, pl.clip, pl.offset)
	case pipeline.PadModePush:
		return p.seekPush(ctx, ev, pl.segment, pl.clip, pl.offset)
	}
	return false
}

func (p *Pipeline) seekPull(
	ctx context.Context,
	ev *pipeline.EventSeek,
	seg pipeline.Segment,
	clip pipeline.ClockTime,
	offset int64,
) bool {
	flush := ev.Flags&pipeline.SeekFlagFlush != 0
	if flush {
		p.sendDownstream(ctx, &pipeline.EventFlushStart{})
	}
	p.stopTask(ctx)
	p.locker.Do(ctx, func() {
		p.rate = seg.Rate
		p.segment = seg
		p.clip = clip
		p.demux.reset(offset)
		p.eos = false
	})
	for _, pad := range p.getOutPads() {
		pad.markDiscont(seg.Start)
	}
	if flush {
		p.sendDownstream(ctx, &pipeline.EventFlushStop{ResetTime: true})
	}
	p.startTask(ctx)
	return true
}

// seekPush asks upstream to continue from the offset; the new segment is
// applied when the flush comes back through the input pad. The virtual
// demuxer cannot resynchronize without a flush, so one is always requested.
func (p *Pipeline) seekPush(
	ctx context.Context,
	ev *pipeline.EventSeek,
	seg pipeline.Segment,
	clip pipeline.ClockTime,
	offset int64,
) bool {
	src := p.config.Source
	if src == nil {
		return false
	}
	p.locker.Do(ctx, func() {
		p.rate = seg.Rate
		p.pendingSegment = &seg
		p.pendingClip = clip
	})
	ok := src.HandleEvent(ctx, &pipeline.EventSeek{
		Rate:      seg.Rate,
		Format:    pipeline.FormatBytes,
		Flags:     ev.Flags | pipeline.SeekFlagFlush,
		StartType: pipeline.SeekTypeSet,
		Start:     offset,
		StopType:  pipeline.SeekTypeNone,
		Stop:      -1,
	})
	if !ok {
		p.locker.Do(ctx, func() {
			p.pendingSegment = nil
		})
	}
	return ok
}
