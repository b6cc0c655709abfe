// pad_manager.go provides reacting to the streams the pipeline exposes and
// withdraws.

package avbridge

import (
	"context"
	"strings"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/mediatype"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

func (f *Filter) onPadAdded(ctx context.Context, pad pipeline.Pad) {
	logger.Debugf(ctx, "onPadAdded")
	defer func() { logger.Debugf(ctx, "/onPadAdded") }()

	conn := f.getConnection()
	if conn == nil {
		logger.Debugf(ctx, "not connected")
		return
	}
	if pad.IsLinked() {
		logger.Debugf(ctx, "the pad is already linked")
		return
	}
	caps := pad.Caps()
	logger.TraceDump(ctx, "pad caps", caps)
	mt, err := mediatype.FromCaps(caps)
	if err != nil {
		logger.Warnf(ctx, "unable to expose the stream: %v", err)
		return
	}

	type slot struct {
		port  *OutputPort
		index int
	}
	reserved := xsync.DoR1(ctx, &f.locker, func() slot {
		for _, port := range f.ports {
			if port.major == mt.Major && !port.IsAttached() {
				port.attach(ctx, pad, mt)
				return slot{port: port}
			}
		}
		index := f.nextPortIndex
		f.nextPortIndex++
		return slot{index: index}
	})
	port := reserved.port
	if port != nil {
		logger.Debugf(ctx, "reusing %s", port)
	} else {
		port, err = f.newPort(ctx, conn, pad, mt, reserved.index)
		if err != nil {
			logger.Errorf(ctx, "unable to create a port for %s: %v", mt, err)
			return
		}
	}

	port.sinkPad.ClearFlushing()
	if err := pad.Link(ctx, port.sinkPad); err != nil {
		logger.Warnf(ctx, "%v", ErrPadLink{Pad: pad.Name(), Port: port.name, Err: err})
		port.detach(ctx)
		return
	}
	if duration, ok := pad.QueryDuration(ctx, pipeline.FormatTime); ok {
		port.setDuration(types.ReferenceTime(duration / 100))
	}
}

func (f *Filter) newPort(
	ctx context.Context,
	conn *connection,
	pad pipeline.Pad,
	mt *mediatype.MediaType,
	index int,
) (*OutputPort, error) {
	port := newOutputPort(f, index, mt)
	port.attach(ctx, pad, mt)
	sinkPad, err := conn.pipeline.NewSinkPad(ctx, port.name, &sinkHandler{port: port}, pipeline.SinkPadOptions{
		NormalizeVideo: mt.Major == types.MediaTypeVideo,
	})
	if err != nil {
		return nil, err
	}
	// sink pads stay active for the whole life of the port
	if err := sinkPad.SetActive(ctx, true); err != nil {
		if err := sinkPad.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the sink pad: %v", err)
		}
		return nil, err
	}
	port.sinkPad = sinkPad
	f.locker.Do(ctx, func() {
		f.ports = append(f.ports, port)
	})
	logger.Debugf(ctx, "created %s", port)
	return port, nil
}

func (f *Filter) onPadRemoved(ctx context.Context, pad pipeline.Pad) {
	logger.Debugf(ctx, "onPadRemoved")
	defer func() { logger.Debugf(ctx, "/onPadRemoved") }()

	var port *OutputPort
	for _, cmp := range f.OutputPorts() {
		if cmp.getPad() == pad {
			port = cmp
			break
		}
	}
	if port == nil {
		logger.Debugf(ctx, "the pad does not belong to any port")
		return
	}
	port.detach(ctx)
	if err := pad.Unlink(ctx, port.sinkPad); err != nil {
		logger.Debugf(ctx, "unable to unlink from %s: %v", port, err)
	}
}

func (f *Filter) onNoMorePads(ctx context.Context) {
	conn := f.getConnection()
	if conn == nil {
		return
	}
	if conn.discovery.complete() {
		logger.Debugf(ctx, "all the streams are discovered: %d ports", len(f.OutputPorts()))
	}
}

func (f *Filter) onUnknownType(ctx context.Context, pad pipeline.Pad, caps *pipeline.Caps) {
	logger.Warnf(ctx, "no decoder for stream '%s' of type %s", pad.Name(), caps)
}

func (f *Filter) onAutoplugSelect(
	ctx context.Context,
	caps *pipeline.Caps,
	factory pipeline.ElementFactoryInfo,
) pipeline.AutoplugSelectResult {
	for _, pattern := range f.config.Blacklist {
		if strings.Contains(factory.LongName, pattern) {
			logger.Debugf(ctx, "refusing '%s' for %s: blacklisted by '%s'", factory.LongName, caps, pattern)
			return pipeline.AutoplugSelectSkip
		}
	}
	return pipeline.AutoplugSelectTry
}
