// tracker.go provides the per-port time base mapping pipeline timestamps
// onto graph timestamps.

// Package segment tracks the current pipeline segment of a stream.
package segment

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
)

type Tracker struct {
	locker  xsync.Mutex
	segment pipeline.Segment
}

func New() *Tracker {
	return &Tracker{
		segment: pipeline.NewTimeSegment(),
	}
}

func (t *Tracker) String() string {
	return fmt.Sprintf("Tracker(%s)", t.Segment())
}

// Reset returns the tracker to an open-ended unity-rate segment.
func (t *Tracker) Reset(ctx context.Context) {
	logger.Tracef(ctx, "Reset")
	defer func() { logger.Tracef(ctx, "/Reset") }()
	t.locker.Do(ctx, func() {
		t.segment = pipeline.NewTimeSegment()
	})
}

func (t *Tracker) Update(ctx context.Context, seg pipeline.Segment) error {
	logger.Tracef(ctx, "Update(%s)", seg)
	defer func() { logger.Tracef(ctx, "/Update(%s)", seg) }()
	if seg.Format != pipeline.FormatTime {
		return fmt.Errorf("segments of format '%s' are not supported", seg.Format)
	}
	if seg.Rate == 0 {
		return fmt.Errorf("zero rate")
	}
	if seg.AppliedRate == 0 {
		seg.AppliedRate = 1
	}
	if !seg.Start.IsValid() {
		seg.Start = 0
	}
	if !seg.Base.IsValid() {
		seg.Base = 0
	}
	if !seg.Time.IsValid() {
		seg.Time = seg.Start
	}
	t.locker.Do(ctx, func() {
		t.segment = seg
	})
	return nil
}

func (t *Tracker) Segment() pipeline.Segment {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &t.locker, func() pipeline.Segment {
		return t.segment
	})
}

// Stop returns the end of the segment, unset for open-ended segments.
func (t *Tracker) Stop() typing.Optional[pipeline.ClockTime] {
	seg := t.Segment()
	if !seg.Stop.IsValid() {
		return typing.Optional[pipeline.ClockTime]{}
	}
	return typing.Opt(seg.Stop)
}

// NewSegmentArgs returns the segment as the downstream expects it:
// positions in graph time units and the combined rate.
func (t *Tracker) NewSegmentArgs() (start, stop types.ReferenceTime, rate float64) {
	seg := t.Segment()
	position := seg.Position
	if !position.IsValid() || position == 0 {
		position = seg.Start
	}
	start = types.ReferenceTime(position / 100)
	stop = types.ReferenceTimeMax
	if seg.Stop.IsValid() {
		stop = types.ReferenceTime(seg.Stop / 100)
	}
	return start, stop, seg.Rate * seg.AppliedRate
}

// Translation is a buffer timing expressed in graph units.
type Translation struct {
	Start      typing.Optional[types.ReferenceTime]
	Stop       typing.Optional[types.ReferenceTime]
	MediaStart typing.Optional[int64]
	MediaStop  typing.Optional[int64]
}

// Translate maps a buffer's pts and duration through the current segment.
//
// Timestamps whose running time is negative are left unset.
func (t *Tracker) Translate(
	ctx context.Context,
	pts pipeline.ClockTime,
	duration pipeline.ClockTime,
) Translation {
	ctx = xsync.WithNoLogging(ctx, true)
	return xsync.DoR1(ctx, &t.locker, func() Translation {
		return translate(t.segment, pts, duration)
	})
}

func translate(
	seg pipeline.Segment,
	pts pipeline.ClockTime,
	duration pipeline.ClockTime,
) Translation {
	var r Translation
	if !pts.IsValid() {
		return r
	}
	running, ok := runningTime(seg, pts)
	if !ok {
		return r
	}
	r.Start = typing.Opt(types.ReferenceTime(running / 100))
	if stream, ok := streamTime(seg, pts); ok {
		r.MediaStart = typing.Opt(stream / 100)
	}
	if !duration.IsValid() {
		return r
	}
	end := pts + duration
	if runningEnd, ok := runningTime(seg, end); ok {
		r.Stop = typing.Opt(types.ReferenceTime(runningEnd / 100))
	}
	if streamEnd, ok := streamTime(seg, end); ok {
		r.MediaStop = typing.Opt(streamEnd / 100)
	}
	return r
}

// RunningTime returns (pts - start) * rate + base in nanoseconds, and
// false if the result is negative.
func (t *Tracker) RunningTime(pts pipeline.ClockTime) (int64, bool) {
	return runningTime(t.Segment(), pts)
}

func runningTime(seg pipeline.Segment, pts pipeline.ClockTime) (int64, bool) {
	if !pts.IsValid() {
		return 0, false
	}
	var running int64
	if seg.Rate == 1 {
		running = int64(pts) - int64(seg.Start) + int64(seg.Base)
	} else {
		running = int64((float64(pts)-float64(seg.Start))*seg.Rate + float64(seg.Base))
	}
	if running < 0 {
		return 0, false
	}
	return running, true
}

func streamTime(seg pipeline.Segment, pts pipeline.ClockTime) (int64, bool) {
	rate := seg.AppliedRate
	if rate < 0 {
		rate = -rate
	}
	var stream int64
	if rate == 1 {
		stream = int64(pts) - int64(seg.Start) + int64(seg.Time)
	} else {
		stream = int64((float64(pts)-float64(seg.Start))*rate + float64(seg.Time))
	}
	if stream < 0 {
		return 0, false
	}
	return stream, true
}
