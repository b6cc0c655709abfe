package avbridge

import (
	"context"

	"github.com/facebookincubator/go-belt/tool/experimental/errmon"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
)

func (f *Filter) onBusMessage(ctx context.Context, msg pipeline.Message) {
	switch msg := msg.(type) {
	case *pipeline.MessageError:
		err := ErrPipeline{Source: msg.Source, Debug: msg.Debug, Err: msg.Err}
		errmon.ObserveErrorCtx(ctx, err)
		conn := f.getConnection()
		if conn != nil && !conn.discovery.isComplete() {
			logger.Debugf(ctx, "aborting the discovery: %v", err)
			conn.discovery.fail(err)
			return
		}
		f.reportError(ctx, err)
	case *pipeline.MessageWarning:
		logger.Warnf(ctx, "pipeline warning from '%s': %v (%s)", msg.Source, msg.Err, msg.Debug)
	case *pipeline.MessageEOS:
		logger.Debugf(ctx, "the pipeline reached the end of the stream")
	case *pipeline.MessageStateChanged:
		logger.Debugf(ctx, "%s", msg)
	default:
		logger.Tracef(ctx, "bus message: %s", msg)
	}
}
