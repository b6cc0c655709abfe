// sink_bridge.go provides turning the buffers and events of a pipeline
// stream into graph samples and calls on the downstream receiver.

package avbridge

import (
	"context"
	"errors"

	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
)

func (port *OutputPort) chain(ctx context.Context, buf *pipeline.Buffer) (_ret pipeline.FlowReturn) {
	logger.Tracef(ctx, "chain(%s)", buf)
	defer func() { logger.Tracef(ctx, "/chain(%s): %s", buf, _ret) }()
	defer buf.Release()

	size := uint64(len(buf.Data))
	port.counters.Received.Increment(size)

	if port.filter.initial.Load() {
		return pipeline.FlowNotLinked
	}
	receiver, alloc := port.getReceiver()
	if receiver == nil || alloc == nil {
		port.counters.Dropped.Increment(size)
		return pipeline.FlowNotLinked
	}

	sample, err := alloc.GetBuffer(ctx)
	if err != nil {
		logger.Debugf(ctx, "unable to get a delivery buffer: %v", err)
		port.counters.Dropped.Increment(size)
		return pipeline.FlowFlushing
	}
	defer sample.Release()

	data := buf.Data
	if dst := sample.Pointer(); len(data) > len(dst) {
		logger.Warnf(ctx, "truncating a payload of %d bytes to the sample size %d", len(data), len(dst))
		port.counters.Truncated.Increment(uint64(len(data) - len(dst)))
		data = data[:len(dst)]
	}
	n := copy(sample.Pointer(), data)
	if err := sample.SetActualDataLength(n); err != nil {
		logger.Errorf(ctx, "unable to set the data length %d: %v", n, err)
		return pipeline.FlowError
	}

	tr := port.tracker.Translate(ctx, buf.PTS, buf.Duration)
	sample.SetTime(tr.Start, tr.Stop)
	sample.SetMediaTime(tr.MediaStart, tr.MediaStop)
	sample.SetDiscontinuity(buf.Flags.Has(pipeline.BufferFlagDiscont))
	sample.SetPreroll(buf.Flags.Has(pipeline.BufferFlagLive))
	sample.SetSyncPoint(!buf.Flags.Has(pipeline.BufferFlagDeltaUnit))

	err = receiver.Receive(ctx, sample)
	switch {
	case err == nil:
		port.counters.Delivered.Increment(uint64(n))
		return pipeline.FlowOK
	case errors.Is(err, graph.ErrNotConnected):
		logger.Debugf(ctx, "the receiver is not connected: %v", err)
		port.counters.Dropped.Increment(uint64(n))
		return pipeline.FlowNotLinked
	default:
		logger.Debugf(ctx, "the receiver refused the sample: %v", err)
		port.counters.Dropped.Increment(uint64(n))
		return pipeline.FlowFlushing
	}
}

func (port *OutputPort) event(ctx context.Context, ev pipeline.Event) (_ret bool) {
	logger.Debugf(ctx, "event(%s)", ev)
	defer func() { logger.Debugf(ctx, "/event(%s): %t", ev, _ret) }()

	if q := findQuirk(port.filter, ev); q != nil {
		logger.Debugf(ctx, "applying the quirk: %s", q.Description)
		return q.Action(ctx, port, ev)
	}

	receiver, alloc := port.getReceiver()
	switch ev := ev.(type) {
	case *pipeline.EventSegment:
		if err := port.tracker.Update(ctx, ev.Segment); err != nil {
			logger.Warnf(ctx, "unable to apply the segment: %v", err)
			return false
		}
		if receiver == nil {
			return true
		}
		start, stop, rate := port.tracker.NewSegmentArgs()
		if err := receiver.NewSegment(ctx, start, stop, rate); err != nil {
			logger.Debugf(ctx, "the receiver refused the segment: %v", err)
		}
		return true
	case *pipeline.EventEOS:
		if receiver == nil {
			return true
		}
		if err := receiver.EndOfStream(ctx); err != nil {
			logger.Debugf(ctx, "the receiver refused the end of stream: %v", err)
		}
		return true
	case *pipeline.EventFlushStart:
		if receiver != nil {
			if err := receiver.BeginFlush(ctx); err != nil {
				logger.Debugf(ctx, "the receiver refused to begin flushing: %v", err)
			}
		}
		if alloc != nil {
			alloc.BeginFlush(ctx)
		}
		return true
	case *pipeline.EventFlushStop:
		if alloc != nil {
			alloc.EndFlush(ctx)
		}
		if receiver != nil {
			if err := receiver.EndFlush(ctx); err != nil {
				logger.Debugf(ctx, "the receiver refused to end flushing: %v", err)
			}
		}
		return true
	}
	return false
}
