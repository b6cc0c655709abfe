// callbacks.go provides the handlers the pipeline calls back into. Every
// callback is marshalled onto the dispatcher, so none of the bridge logic
// runs on a pipeline-owned goroutine.

package avbridge

import (
	"context"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avbridge/dispatcher"
	"github.com/xaionaro-go/avbridge/pipeline"
)

type getRangeArgs struct {
	Offset uint64
	Length uint
}

type getRangeResult struct {
	Buffer *pipeline.Buffer
	Flow   pipeline.FlowReturn
}

type activateModeArgs struct {
	Mode   pipeline.PadMode
	Active bool
}

type sourceHandler struct {
	filter *Filter
	bridge *sourceBridge
}

var _ pipeline.SourceHandler = (*sourceHandler)(nil)

func (h *sourceHandler) GetRange(
	ctx context.Context,
	offset uint64,
	length uint,
) (*pipeline.Buffer, pipeline.FlowReturn) {
	r := dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindGetRange, getRangeArgs{Offset: offset, Length: length}, func(ctx context.Context) getRangeResult {
		buf, flow := h.bridge.getRange(h.filter.ctx(ctx), offset, length)
		return getRangeResult{Buffer: buf, Flow: flow}
	})
	return r.Buffer, r.Flow
}

func (h *sourceHandler) ActivateMode(
	ctx context.Context,
	mode pipeline.PadMode,
	active bool,
) error {
	return dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindActivateMode, activateModeArgs{Mode: mode, Active: active}, func(ctx context.Context) error {
		return h.bridge.activateMode(h.filter.ctx(ctx), mode, active)
	})
}

func (h *sourceHandler) HandleEvent(ctx context.Context, ev pipeline.Event) bool {
	return dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindSourceEvent, ev, func(ctx context.Context) bool {
		return h.bridge.handleEvent(h.filter.ctx(ctx), ev)
	})
}

func (h *sourceHandler) HandleQuery(ctx context.Context, q pipeline.Query) bool {
	return dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindSourceQuery, q, func(ctx context.Context) bool {
		return h.bridge.handleQuery(h.filter.ctx(ctx), q)
	})
}

type autoplugSelectArgs struct {
	Pad     string
	Caps    *pipeline.Caps
	Factory pipeline.ElementFactoryInfo
}

type unknownTypeArgs struct {
	Pad  string
	Caps *pipeline.Caps
}

type decodeHandler struct {
	filter *Filter
}

var _ pipeline.DecodeHandler = (*decodeHandler)(nil)

func (h *decodeHandler) PadAdded(ctx context.Context, pad pipeline.Pad) {
	dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindPadAdded, pad.Name(), func(ctx context.Context) struct{} {
		h.filter.onPadAdded(belt.WithField(h.filter.ctx(ctx), "pad", pad.Name()), pad)
		return struct{}{}
	})
}

func (h *decodeHandler) PadRemoved(ctx context.Context, pad pipeline.Pad) {
	dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindPadRemoved, pad.Name(), func(ctx context.Context) struct{} {
		h.filter.onPadRemoved(belt.WithField(h.filter.ctx(ctx), "pad", pad.Name()), pad)
		return struct{}{}
	})
}

func (h *decodeHandler) NoMorePads(ctx context.Context) {
	dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindNoMorePads, nil, func(ctx context.Context) struct{} {
		h.filter.onNoMorePads(h.filter.ctx(ctx))
		return struct{}{}
	})
}

func (h *decodeHandler) UnknownType(ctx context.Context, pad pipeline.Pad, caps *pipeline.Caps) {
	dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindUnknownType, unknownTypeArgs{Pad: pad.Name(), Caps: caps}, func(ctx context.Context) struct{} {
		h.filter.onUnknownType(h.filter.ctx(ctx), pad, caps)
		return struct{}{}
	})
}

func (h *decodeHandler) AutoplugSelect(
	ctx context.Context,
	pad pipeline.Pad,
	caps *pipeline.Caps,
	factory pipeline.ElementFactoryInfo,
) pipeline.AutoplugSelectResult {
	args := autoplugSelectArgs{Pad: pad.Name(), Caps: caps, Factory: factory}
	return dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindAutoplugSelect, args, func(ctx context.Context) pipeline.AutoplugSelectResult {
		return h.filter.onAutoplugSelect(h.filter.ctx(ctx), caps, factory)
	})
}

type busHandler struct {
	filter *Filter
}

var _ pipeline.BusHandler = (*busHandler)(nil)

func (h *busHandler) HandleMessage(ctx context.Context, msg pipeline.Message) {
	dispatcher.Call(ctx, h.filter.dispatcher, dispatcher.KindBusMessage, msg, func(ctx context.Context) struct{} {
		h.filter.onBusMessage(h.filter.ctx(ctx), msg)
		return struct{}{}
	})
}

// sinkHandler receives the stream linked to one output port.
type sinkHandler struct {
	port *OutputPort
}

var _ pipeline.SinkHandler = (*sinkHandler)(nil)

func (h *sinkHandler) Chain(ctx context.Context, buf *pipeline.Buffer) pipeline.FlowReturn {
	f := h.port.filter
	return dispatcher.Call(ctx, f.dispatcher, dispatcher.KindChain, buf, func(ctx context.Context) pipeline.FlowReturn {
		return h.port.chain(h.port.ctx(ctx), buf)
	})
}

func (h *sinkHandler) HandleEvent(ctx context.Context, ev pipeline.Event) bool {
	f := h.port.filter
	return dispatcher.Call(ctx, f.dispatcher, dispatcher.KindSinkEvent, ev, func(ctx context.Context) bool {
		return h.port.event(h.port.ctx(ctx), ev)
	})
}

// releaseSample returns a sample to its pool through the dispatcher; used
// as the release hook of buffers wrapping pool memory.
func (f *Filter) releaseSample(ctx context.Context, release func()) func() {
	return func() {
		dispatcher.Call(ctx, f.dispatcher, dispatcher.KindBufferRelease, nil, func(ctx context.Context) struct{} {
			release()
			return struct{}{}
		})
	}
}
