// Package graph describes the filter-graph side of the bridge: the pins
// the filter connects to and the receivers it delivers samples to.
package graph

import (
	"context"
	"fmt"

	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/types"
)

type PinDirection int

const (
	PinDirectionInput = PinDirection(iota)
	PinDirectionOutput
)

func (d PinDirection) String() string {
	switch d {
	case PinDirectionInput:
		return "input"
	case PinDirectionOutput:
		return "output"
	}
	return fmt.Sprintf("unknown-direction-%d", int(d))
}

// Peer is the pin on the other side of a connection. Extra capabilities
// (like reader.AsyncReader) are discovered by type assertion.
type Peer interface {
	Direction() PinDirection
}

// Receiver is the downstream input pin of an output port.
type Receiver interface {
	Receive(ctx context.Context, sample *pool.Sample) error
	BeginFlush(ctx context.Context) error
	EndFlush(ctx context.Context) error
	NewSegment(ctx context.Context, start, stop types.ReferenceTime, rate float64) error
	EndOfStream(ctx context.Context) error
	NotifyAllocator(ctx context.Context, allocator *pool.Pool, readOnly bool) error
}

// AllocatorProvider is implemented by receivers owning their own pool.
type AllocatorProvider interface {
	GetAllocator(ctx context.Context) (*pool.Pool, error)
}

// AllocatorRequirements is implemented by receivers with an opinion on the
// pool geometry.
type AllocatorRequirements interface {
	GetAllocatorRequirements(ctx context.Context) (pool.Properties, error)
}
