package avbridge

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/xsync"
)

var _ graph.QualitySink = (*OutputPort)(nil)

// SetQualitySink makes the port forward quality notifications to sink
// instead of the pipeline; nil restores the default.
func (port *OutputPort) SetQualitySink(ctx context.Context, sink graph.QualitySink) {
	port.locker.Do(ctx, func() {
		port.qualitySink = sink
	})
}

// Notify turns a downstream quality report into a QoS event of the stream.
func (port *OutputPort) Notify(ctx context.Context, q graph.Quality) (_err error) {
	ctx = port.ctx(ctx)
	logger.Tracef(ctx, "Notify(%s)", q.Type)
	defer func() { logger.Tracef(ctx, "/Notify(%s): %v", q.Type, _err) }()

	sink := xsync.DoR1(ctx, &port.locker, func() graph.QualitySink {
		return port.qualitySink
	})
	if sink != nil {
		return sink.Notify(ctx, q)
	}
	if !port.IsAttached() {
		return graph.ErrNotConnected
	}
	ev := qosEvent(q)
	if !port.sinkPad.SendUpstreamEvent(ctx, ev) {
		return fmt.Errorf("%s is not handled: %w", ev, graph.ErrNotConnected)
	}
	return nil
}

func qosEvent(q graph.Quality) *pipeline.EventQoS {
	late := q.Late
	if q.Type == graph.QualityFlood {
		late = 0
	}
	ev := &pipeline.EventQoS{
		Type:       pipeline.QoSTypeOverflow,
		Proportion: 1,
		Diff:       late.Nanoseconds(),
	}
	if late > 0 {
		ev.Type = pipeline.QoSTypeUnderflow
	}
	if q.Proportion > 0 {
		ev.Proportion = 1000 / float64(q.Proportion)
	}
	ev.Timestamp = pipeline.ClockTime(max(q.TimeStamp, 0).Nanoseconds())
	return ev
}
