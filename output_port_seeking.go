// output_port_seeking.go provides the position control of an output port.

package avbridge

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
)

const seekingCapabilities = graph.SeekingCanSeekAbsolute |
	graph.SeekingCanSeekForwards |
	graph.SeekingCanSeekBackwards |
	graph.SeekingCanGetCurrentPos |
	graph.SeekingCanGetStopPos |
	graph.SeekingCanGetDuration

func (port *OutputPort) GetCapabilities() graph.SeekingCapabilities {
	return seekingCapabilities
}

// CheckCapabilities returns the subset of caps the port supports.
func (port *OutputPort) CheckCapabilities(caps graph.SeekingCapabilities) graph.SeekingCapabilities {
	return caps & seekingCapabilities
}

func (port *OutputPort) IsFormatSupported(format graph.TimeFormat) bool {
	switch format {
	case graph.TimeFormatMediaTime, graph.TimeFormatByte:
		return true
	}
	return false
}

func (port *OutputPort) SetTimeFormat(ctx context.Context, format graph.TimeFormat) error {
	if !port.IsFormatSupported(format) {
		return fmt.Errorf("time format %s: %w", format, graph.ErrNotSupported)
	}
	port.locker.Do(ctx, func() {
		port.timeFormat = format
	})
	return nil
}

func (port *OutputPort) GetTimeFormat() graph.TimeFormat {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &port.locker, func() graph.TimeFormat {
		return port.timeFormat
	})
}

func (port *OutputPort) setDuration(duration types.ReferenceTime) {
	ctx := xsync.WithNoLogging(context.Background(), true)
	port.locker.Do(ctx, func() {
		port.duration = typing.Opt(duration)
	})
}

func (port *OutputPort) GetDuration(ctx context.Context) (types.ReferenceTime, error) {
	if pad := port.getPad(); pad != nil {
		if duration, ok := pad.QueryDuration(ctx, pipeline.FormatTime); ok {
			port.setDuration(types.ReferenceTime(duration / 100))
		}
	}
	duration := xsync.DoR1(ctx, &port.locker, func() typing.Optional[types.ReferenceTime] {
		return port.duration
	})
	if !duration.IsSet() {
		return 0, fmt.Errorf("the duration is unknown: %w", graph.ErrNotSupported)
	}
	return duration.Get(), nil
}

// GetCurrentPosition returns the stream time of the last delivered data.
// A detached port answers from the position cached when it was detached.
func (port *OutputPort) GetCurrentPosition(ctx context.Context) (types.ReferenceTime, error) {
	pad := port.getPad()
	if pad == nil {
		type cached struct {
			position types.ReferenceTime
			known    bool
		}
		c := xsync.DoR1(ctx, &port.locker, func() cached {
			return cached{position: port.position, known: port.duration.IsSet()}
		})
		if !c.known {
			return 0, fmt.Errorf("the port is detached and its duration is unknown: %w", graph.ErrNotSupported)
		}
		return c.position, nil
	}

	position, ok := pad.QueryPosition(ctx, pipeline.FormatTime)
	return xsync.DoR2(ctx, &port.locker, func() (types.ReferenceTime, error) {
		if ok {
			port.position = types.ReferenceTime(position / 100)
		}
		return port.position, nil
	})
}

// GetStopPosition returns the end of the playback, the duration if no
// stop is set.
func (port *OutputPort) GetStopPosition(ctx context.Context) (types.ReferenceTime, error) {
	if stop := port.tracker.Stop(); stop.IsSet() {
		return types.ReferenceTime(stop.Get() / 100), nil
	}
	stop := xsync.DoR1(ctx, &port.locker, func() typing.Optional[types.ReferenceTime] {
		return port.stop
	})
	if stop.IsSet() {
		return stop.Get(), nil
	}
	return port.GetDuration(ctx)
}

func (port *OutputPort) GetPositions(ctx context.Context) (current, stop types.ReferenceTime, _err error) {
	current, err := port.GetCurrentPosition(ctx)
	if err != nil {
		return 0, 0, err
	}
	stop, err = port.GetStopPosition(ctx)
	if err != nil {
		return 0, 0, err
	}
	return current, stop, nil
}

// GetAvailable returns the seekable range.
func (port *OutputPort) GetAvailable(ctx context.Context) (earliest, latest types.ReferenceTime, _err error) {
	latest, err := port.GetDuration(ctx)
	if err != nil {
		return 0, 0, err
	}
	return 0, latest, nil
}

func (port *OutputPort) GetPreroll(ctx context.Context) (types.ReferenceTime, error) {
	return 0, nil
}

func (port *OutputPort) GetRate() float64 {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &port.locker, func() float64 {
		return port.rate
	})
}

// SetRate changes the playback rate without changing the positions.
func (port *OutputPort) SetRate(ctx context.Context, rate float64) (_err error) {
	ctx = port.ctx(ctx)
	logger.Debugf(ctx, "SetRate(%g)", rate)
	defer func() { logger.Debugf(ctx, "/SetRate(%g): %v", rate, _err) }()
	if rate == 0 {
		return fmt.Errorf("zero rate: %w", graph.ErrInvalidArgument)
	}
	if port.IsAttached() {
		ok := port.sinkPad.SendUpstreamEvent(ctx, &pipeline.EventSeek{
			Rate:      rate,
			Format:    pipeline.FormatTime,
			Flags:     pipeline.SeekFlagNone,
			StartType: pipeline.SeekTypeNone,
			Start:     -1,
			StopType:  pipeline.SeekTypeNone,
			Stop:      -1,
		})
		if !ok {
			return fmt.Errorf("the pipeline refused the rate %g: %w", rate, graph.ErrNotSupported)
		}
	}
	port.locker.Do(ctx, func() {
		port.rate = rate
	})
	return nil
}

// SetPositions seeks the stream; it returns the resulting positions.
func (port *OutputPort) SetPositions(
	ctx context.Context,
	current types.ReferenceTime,
	currentFlags graph.SeekingFlags,
	stop types.ReferenceTime,
	stopFlags graph.SeekingFlags,
) (_current, _stop types.ReferenceTime, _err error) {
	ctx = port.ctx(ctx)
	logger.Debugf(ctx, "SetPositions(%s %s, %s %s)", current, currentFlags, stop, stopFlags)
	defer func() {
		logger.Debugf(ctx, "/SetPositions(%s %s, %s %s): %s %s %v", current, currentFlags, stop, stopFlags, _current, _stop, _err)
	}()

	if port.GetTimeFormat() != graph.TimeFormatMediaTime {
		return 0, 0, fmt.Errorf("seeking in %s: %w", port.GetTimeFormat(), graph.ErrNotSupported)
	}

	type base struct {
		position types.ReferenceTime
		stop     typing.Optional[types.ReferenceTime]
		rate     float64
	}
	b := xsync.DoR1(ctx, &port.locker, func() base {
		return base{position: port.position, stop: port.stop, rate: port.rate}
	})
	if !b.stop.IsSet() {
		if duration, err := port.GetDuration(ctx); err == nil {
			b.stop = typing.Opt(duration)
		}
	}

	startType, start := resolvePosition(current, currentFlags, b.position)
	stopType, stopPos := resolvePosition(stop, stopFlags, orZero(b.stop))

	var flags pipeline.SeekFlags
	if currentFlags&graph.SeekingNoFlush == 0 {
		flags |= pipeline.SeekFlagFlush
	}
	if currentFlags&graph.SeekingSeekToKeyFrame != 0 {
		flags |= pipeline.SeekFlagKeyUnit
	} else {
		flags |= pipeline.SeekFlagAccurate
	}
	if (currentFlags|stopFlags)&graph.SeekingSegment != 0 {
		flags |= pipeline.SeekFlagSegment
	}

	if port.IsAttached() && (startType != pipeline.SeekTypeNone || stopType != pipeline.SeekTypeNone) {
		ev := &pipeline.EventSeek{
			Rate:      b.rate,
			Format:    pipeline.FormatTime,
			Flags:     flags,
			StartType: startType,
			Start:     start.Nanoseconds(),
			StopType:  stopType,
			Stop:      stopPos.Nanoseconds(),
		}
		if startType == pipeline.SeekTypeNone {
			ev.Start = -1
		}
		if stopType == pipeline.SeekTypeNone {
			ev.Stop = -1
		}
		if !port.sinkPad.SendUpstreamEvent(ctx, ev) {
			return 0, 0, fmt.Errorf("the pipeline refused %s: %w", ev, graph.ErrNotSupported)
		}
	}

	resultCurrent, resultStop := xsync.DoR2(ctx, &port.locker, func() (types.ReferenceTime, types.ReferenceTime) {
		if startType != pipeline.SeekTypeNone {
			port.position = start
		}
		if stopType != pipeline.SeekTypeNone {
			port.stop = typing.Opt(stopPos)
		}
		return port.position, orZero(port.stop)
	})
	return resultCurrent, resultStop, nil
}

// resolvePosition turns a position with its modifier into an absolute one.
func resolvePosition(
	value types.ReferenceTime,
	flags graph.SeekingFlags,
	base types.ReferenceTime,
) (pipeline.SeekType, types.ReferenceTime) {
	switch flags.Positioning() {
	case graph.SeekingAbsolutePositioning:
		return pipeline.SeekTypeSet, max(value, 0)
	case graph.SeekingRelativePositioning, graph.SeekingIncrementalPosition:
		return pipeline.SeekTypeSet, max(base+value, 0)
	}
	return pipeline.SeekTypeNone, 0
}
