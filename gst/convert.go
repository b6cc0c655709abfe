// convert.go provides translating GStreamer values into the pipeline model
// and back.

package gst

import (
	"github.com/go-gst/go-gst/gst"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
)

// The numeric values of these enumerations match GStreamer's.
func toGstState(s pipeline.State) gst.State {
	return gst.State(s)
}

func fromGstState(s gst.State) pipeline.State {
	return pipeline.State(s)
}

func fromGstStateChange(r gst.StateChangeReturn) pipeline.StateChangeReturn {
	return pipeline.StateChangeReturn(r)
}

func toGstFlow(r pipeline.FlowReturn) gst.FlowReturn {
	return gst.FlowReturn(r)
}

func fromGstFlow(r gst.FlowReturn) pipeline.FlowReturn {
	return pipeline.FlowReturn(r)
}

func toGstFormat(f pipeline.Format) gst.Format {
	switch f {
	case pipeline.FormatDefault:
		return gst.FormatDefault
	case pipeline.FormatBytes:
		return gst.FormatBytes
	case pipeline.FormatTime:
		return gst.FormatTime
	}
	return gst.FormatUndefined
}

func fromGstFormat(f gst.Format) pipeline.Format {
	switch f {
	case gst.FormatDefault:
		return pipeline.FormatDefault
	case gst.FormatBytes:
		return pipeline.FormatBytes
	case gst.FormatTime:
		return pipeline.FormatTime
	}
	return pipeline.FormatUndefined
}

func toGstSeekFlags(flags pipeline.SeekFlags) gst.SeekFlags {
	result := gst.SeekFlagNone
	if flags&pipeline.SeekFlagFlush != 0 {
		result |= gst.SeekFlagFlush
	}
	if flags&pipeline.SeekFlagAccurate != 0 {
		result |= gst.SeekFlagAccurate
	}
	if flags&pipeline.SeekFlagKeyUnit != 0 {
		result |= gst.SeekFlagKeyUnit
	}
	if flags&pipeline.SeekFlagSegment != 0 {
		result |= gst.SeekFlagSegment
	}
	return result
}

func toGstSeekType(t pipeline.SeekType) gst.SeekType {
	switch t {
	case pipeline.SeekTypeSet:
		return gst.SeekTypeSet
	case pipeline.SeekTypeEnd:
		return gst.SeekTypeEnd
	}
	return gst.SeekTypeNone
}

func toGstQoSType(t pipeline.QoSType) gst.QOSType {
	switch t {
	case pipeline.QoSTypeUnderflow:
		return gst.QOSTypeUnderflow
	case pipeline.QoSTypeThrottle:
		return gst.QOSTypeThrottle
	}
	return gst.QOSTypeOverflow
}

// toGstEvent returns nil for events without a GStreamer counterpart.
func toGstEvent(ev pipeline.Event) *gst.Event {
	switch ev := ev.(type) {
	case *pipeline.EventFlushStart:
		return gst.NewFlushStartEvent()
	case *pipeline.EventFlushStop:
		return gst.NewFlushStopEvent(ev.ResetTime)
	case *pipeline.EventEOS:
		return gst.NewEOSEvent()
	case *pipeline.EventSeek:
		return gst.NewSeekEvent(
			ev.Rate,
			toGstFormat(ev.Format),
			toGstSeekFlags(ev.Flags),
			toGstSeekType(ev.StartType), ev.Start,
			toGstSeekType(ev.StopType), ev.Stop,
		)
	case *pipeline.EventQoS:
		return gst.NewQOSEvent(
			toGstQoSType(ev.Type),
			ev.Proportion,
			gst.ClockTimeDiff(ev.Diff),
			gst.ClockTime(ev.Timestamp),
		)
	}
	return nil
}

// fromGstEvent returns nil for the events the sink handlers do not consume.
func fromGstEvent(ev *gst.Event) pipeline.Event {
	switch ev.Type() {
	case gst.EventTypeFlushStart:
		return &pipeline.EventFlushStart{}
	case gst.EventTypeFlushStop:
		return &pipeline.EventFlushStop{ResetTime: ev.ParseFlushStop()}
	case gst.EventTypeEOS:
		return &pipeline.EventEOS{}
	case gst.EventTypeSegment:
		seg := ev.ParseSegment()
		if seg == nil {
			return nil
		}
		return &pipeline.EventSegment{Segment: pipeline.Segment{
			Format:      fromGstFormat(seg.GetFormat()),
			Rate:        seg.GetRate(),
			AppliedRate: seg.GetAppliedRate(),
			Start:       pipeline.ClockTime(seg.GetStart()),
			Stop:        pipeline.ClockTime(seg.GetStop()),
			Time:        pipeline.ClockTime(seg.GetTime()),
			Base:        pipeline.ClockTime(seg.GetBase()),
			Position:    pipeline.ClockTime(seg.GetPosition()),
		}}
	}
	return nil
}

// fromGstBuffer copies the payload; the GStreamer buffer is not retained.
func fromGstBuffer(buf *gst.Buffer) *pipeline.Buffer {
	result := pipeline.NewBuffer(append([]byte(nil), buf.Bytes()...))
	result.PTS = pipeline.ClockTime(buf.PresentationTimestamp())
	result.DTS = pipeline.ClockTime(buf.DecodingTimestamp())
	result.Duration = pipeline.ClockTime(buf.Duration())
	if offset := buf.Offset(); offset != -1 {
		result.Offset = uint64(offset)
	}
	if buf.HasFlags(gst.BufferFlagDiscont) {
		result.Flags |= pipeline.BufferFlagDiscont
	}
	if buf.HasFlags(gst.BufferFlagDeltaUnit) {
		result.Flags |= pipeline.BufferFlagDeltaUnit
	}
	if buf.HasFlags(gst.BufferFlagLive) {
		result.Flags |= pipeline.BufferFlagLive
	}
	return result
}

func toGstBuffer(buf *pipeline.Buffer) *gst.Buffer {
	result := gst.NewBufferFromBytes(append([]byte(nil), buf.Data...))
	if buf.PTS.IsValid() {
		result.SetPresentationTimestamp(gst.ClockTime(buf.PTS))
	}
	if buf.Duration.IsValid() {
		result.SetDuration(gst.ClockTime(buf.Duration))
	}
	if buf.Offset != pipeline.BufferOffsetNone {
		result.SetOffset(int64(buf.Offset))
	}
	if buf.Flags.Has(pipeline.BufferFlagDiscont) {
		result.SetFlags(gst.BufferFlagDiscont)
	}
	return result
}

// fromGstCaps takes the first structure of the caps; decodebin exposes
// fixed caps.
func fromGstCaps(caps *gst.Caps) *pipeline.Caps {
	if caps == nil || caps.GetSize() == 0 {
		return nil
	}
	st := caps.GetStructureAt(0)
	if st == nil {
		return nil
	}
	fields := map[string]any{}
	for key, value := range st.Values() {
		switch v := value.(type) {
		case *gst.FractionValue:
			fields[key] = types.Rational{Num: v.Num(), Den: v.Denom()}
		default:
			fields[key] = v
		}
	}
	return pipeline.NewCaps(st.Name(), fields)
}
