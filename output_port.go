// output_port.go provides the OutputPort: one discovered elementary stream
// as seen by the graph.

package avbridge

import (
	"context"
	"fmt"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/mediatype"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/segment"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/xsync"
)

// minAudioSampleSize is the smallest delivery buffer of an audio port.
const minAudioSampleSize = 16 * 1024

// OutputPort survives the pipeline pads it is attached to: when the
// pipeline removes and re-adds a stream the same port is reused.
type OutputPort struct {
	filter   *Filter
	index    int
	name     string
	major    types.MediaType
	tracker  *segment.Tracker
	sinkPad  pipeline.SinkPad
	counters types.PortCounters

	// lock order: Filter.locker, then OutputPort.locker
	locker xsync.Mutex

	// access only when locker is locked:
	mediaType   *mediatype.MediaType
	pad         pipeline.Pad
	receiver    graph.Receiver
	allocator   *pool.Pool
	timeFormat  graph.TimeFormat
	duration    typing.Optional[types.ReferenceTime]
	position    types.ReferenceTime
	stop        typing.Optional[types.ReferenceTime]
	rate        float64
	qualitySink graph.QualitySink
}

var _ Pin = (*OutputPort)(nil)

func newOutputPort(
	f *Filter,
	index int,
	mediaType *mediatype.MediaType,
) *OutputPort {
	return &OutputPort{
		filter:     f,
		index:      index,
		name:       fmt.Sprintf("%s %d", mediaType.Major, index),
		major:      mediaType.Major,
		tracker:    segment.New(),
		mediaType:  mediaType,
		timeFormat: graph.TimeFormatMediaTime,
		rate:       1,
	}
}

func (port *OutputPort) String() string {
	return fmt.Sprintf("OutputPort(%s)", port.name)
}

func (port *OutputPort) ctx(ctx context.Context) context.Context {
	return belt.WithField(port.filter.ctx(ctx), "port", port.name)
}

func (port *OutputPort) Name() string {
	return port.name
}

func (*OutputPort) Direction() graph.PinDirection {
	return graph.PinDirectionOutput
}

func (port *OutputPort) MediaType() *mediatype.MediaType {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &port.locker, func() *mediatype.MediaType {
		return port.mediaType
	})
}

// Tracker returns the segment of the stream the port currently delivers.
func (port *OutputPort) Tracker() *segment.Tracker {
	return port.tracker
}

func (port *OutputPort) Statistics() types.PortStatistics {
	return port.counters.ToStats()
}

// IsAttached reports whether a pipeline pad currently feeds the port.
func (port *OutputPort) IsAttached() bool {
	return port.getPad() != nil
}

func (port *OutputPort) getPad() pipeline.Pad {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &port.locker, func() pipeline.Pad {
		return port.pad
	})
}

func (port *OutputPort) getReceiver() (graph.Receiver, *pool.Pool) {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR2(ctx, &port.locker, func() (graph.Receiver, *pool.Pool) {
		return port.receiver, port.allocator
	})
}

// Receiver returns the downstream pin, nil if not connected.
func (port *OutputPort) Receiver() graph.Receiver {
	r, _ := port.getReceiver()
	return r
}

// Connect attaches a downstream receiver and negotiates the pool samples
// are delivered in. It is allowed only while the filter is stopped.
func (port *OutputPort) Connect(ctx context.Context, receiver graph.Receiver) (_err error) {
	ctx = port.ctx(ctx)
	logger.Debugf(ctx, "Connect")
	defer func() { logger.Debugf(ctx, "/Connect: %v", _err) }()

	if receiver == nil {
		return fmt.Errorf("no receiver: %w", graph.ErrInvalidArgument)
	}
	if state := port.filter.getState(); state != types.StateStopped {
		return fmt.Errorf("unable to connect a port while %s: %w", state, types.ErrWrongState)
	}
	if port.Receiver() != nil {
		return graph.ErrAlreadyConnected
	}

	props := defaultPortAllocatorProperties(port.MediaType())
	if req, ok := receiver.(graph.AllocatorRequirements); ok {
		wanted, err := req.GetAllocatorRequirements(ctx)
		if err != nil {
			logger.Debugf(ctx, "unable to get the allocator requirements: %v", err)
		} else {
			props = mergeAllocatorProperties(props, wanted)
		}
	}

	var alloc *pool.Pool
	if provider, ok := receiver.(graph.AllocatorProvider); ok {
		p, err := provider.GetAllocator(ctx)
		switch {
		case err != nil:
			logger.Debugf(ctx, "the receiver has no allocator: %v", err)
		case p != nil:
			if _, err := p.SetProperties(ctx, props); err != nil {
				logger.Debugf(ctx, "the receiver's allocator refused %s: %v", props, err)
			}
			alloc = p
		}
	}
	if alloc == nil {
		alloc = pool.New(props)
	}
	if err := receiver.NotifyAllocator(ctx, alloc, false); err != nil {
		return fmt.Errorf("the receiver refused the allocator %s: %w", alloc, err)
	}

	return xsync.DoR1(ctx, &port.locker, func() error {
		if port.receiver != nil {
			return graph.ErrAlreadyConnected
		}
		port.receiver = receiver
		port.allocator = alloc
		return nil
	})
}

// Disconnect detaches the downstream receiver; allowed only while stopped.
func (port *OutputPort) Disconnect(ctx context.Context) (_err error) {
	ctx = port.ctx(ctx)
	logger.Debugf(ctx, "Disconnect")
	defer func() { logger.Debugf(ctx, "/Disconnect: %v", _err) }()

	if state := port.filter.getState(); state != types.StateStopped {
		return fmt.Errorf("unable to disconnect a port while %s: %w", state, types.ErrWrongState)
	}
	alloc := xsync.DoR1(ctx, &port.locker, func() *pool.Pool {
		alloc := port.allocator
		port.receiver = nil
		port.allocator = nil
		return alloc
	})
	if alloc == nil {
		return nil
	}
	return alloc.Decommit(ctx)
}

func defaultPortAllocatorProperties(mt *mediatype.MediaType) pool.Properties {
	props := pool.DefaultProperties
	if vi, ok := mt.VideoInfo(); ok && vi.SizeImage > 0 {
		props.Count = 2
		props.Size = vi.SizeImage
		return props
	}
	if wf, ok := mt.WaveFormat(); ok {
		props.Size = max(minAudioSampleSize, wf.AvgBytesPerSec/4)
		if wf.BlockAlign > 0 {
			props.Align = wf.BlockAlign
		}
	}
	return props
}

func mergeAllocatorProperties(a, b pool.Properties) pool.Properties {
	return pool.Properties{
		Count:  max(a.Count, b.Count),
		Size:   max(a.Size, b.Size),
		Align:  max(a.Align, b.Align),
		Prefix: max(a.Prefix, b.Prefix),
	}
}

// attach binds the port to a pipeline pad; the port's stream starts over.
func (port *OutputPort) attach(ctx context.Context, pad pipeline.Pad, mediaType *mediatype.MediaType) {
	port.tracker.Reset(ctx)
	port.locker.Do(ctx, func() {
		port.pad = pad
		port.mediaType = mediaType
	})
}

// detach unbinds the port from its pipeline pad, remembering the position.
func (port *OutputPort) detach(ctx context.Context) pipeline.Pad {
	pad := port.getPad()
	if pad == nil {
		return nil
	}
	position, hasPosition := pad.QueryPosition(ctx, pipeline.FormatTime)
	return xsync.DoR1(ctx, &port.locker, func() pipeline.Pad {
		if hasPosition {
			port.position = types.ReferenceTime(position / 100)
		}
		pad := port.pad
		port.pad = nil
		return pad
	})
}

func (port *OutputPort) activate(ctx context.Context) error {
	_, alloc := port.getReceiver()
	if alloc == nil {
		return nil
	}
	return alloc.Commit(ctx)
}

func (port *OutputPort) deactivate(ctx context.Context) {
	_, alloc := port.getReceiver()
	if alloc == nil {
		return
	}
	if err := alloc.Decommit(ctx); err != nil {
		logger.Errorf(port.ctx(ctx), "unable to decommit the allocator: %v", err)
	}
}

// destroy releases everything the port owns; the port is unusable after.
func (port *OutputPort) destroy(ctx context.Context) {
	ctx = port.ctx(ctx)
	logger.Debugf(ctx, "destroy")
	defer func() { logger.Debugf(ctx, "/destroy") }()
	if pad := port.detach(ctx); pad != nil && port.sinkPad != nil {
		if err := pad.Unlink(ctx, port.sinkPad); err != nil {
			logger.Debugf(ctx, "unable to unlink: %v", err)
		}
	}
	port.deactivate(ctx)
	if port.sinkPad != nil {
		if err := port.sinkPad.Close(ctx); err != nil {
			logger.Errorf(ctx, "unable to close the sink pad: %v", err)
		}
	}
	port.locker.Do(ctx, func() {
		port.receiver = nil
		port.allocator = nil
	})
}
