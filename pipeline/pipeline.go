// pipeline.go provides the contract of an inner media pipeline: a
// demuxing/decoding graph fed from a single source pad and exposing its
// elementary streams through dynamically added pads.

// Package pipeline describes the inner media pipeline the bridge drives.
//
// The pipeline calls back into the handlers from its own goroutines; the
// caller of a handler may block until it returns.
package pipeline

import (
	"context"
	"time"
)

// SourceHandler serves the pipeline's input pad.
type SourceHandler interface {
	// GetRange serves a pull-mode read of up to length bytes at offset.
	GetRange(ctx context.Context, offset uint64, length uint) (*Buffer, FlowReturn)

	// ActivateMode is called when the input pad gets activated in
	// (or deactivated from) the given scheduling mode.
	ActivateMode(ctx context.Context, mode PadMode, active bool) error

	// HandleEvent handles an upstream event (a seek) sent to the input pad.
	HandleEvent(ctx context.Context, ev Event) bool

	HandleQuery(ctx context.Context, q Query) bool
}

type ElementFactoryInfo struct {
	Name     string
	LongName string
	Klass    string
}

// DecodeHandler observes the stream discovery of the pipeline.
type DecodeHandler interface {
	PadAdded(ctx context.Context, pad Pad)
	PadRemoved(ctx context.Context, pad Pad)
	NoMorePads(ctx context.Context)
	UnknownType(ctx context.Context, pad Pad, caps *Caps)
	AutoplugSelect(ctx context.Context, pad Pad, caps *Caps, factory ElementFactoryInfo) AutoplugSelectResult
}

type BusHandler interface {
	HandleMessage(ctx context.Context, msg Message)
}

// SinkHandler consumes the data of one pad linked to a SinkPad.
type SinkHandler interface {
	Chain(ctx context.Context, buf *Buffer) FlowReturn
	HandleEvent(ctx context.Context, ev Event) bool
}

type Config struct {
	Name   string
	Source SourceHandler
	Decode DecodeHandler
	Bus    BusHandler

	// PreferPush makes the pipeline schedule the input pad in push mode
	// even if the source supports pulling.
	PreferPush bool
}

type Factory interface {
	NewPipeline(ctx context.Context, cfg Config) (Pipeline, error)
}

type SinkPadOptions struct {
	// NormalizeVideo inserts a pixel-format normalizer and a vertical-flip
	// orientation adapter in front of the sink pad.
	NormalizeVideo bool
}

type Pipeline interface {
	SourcePad() SourcePad

	// NewSinkPad creates a pad owned by the caller which pipeline pads
	// may be linked to.
	NewSinkPad(ctx context.Context, name string, handler SinkHandler, opts SinkPadOptions) (SinkPad, error)

	SetState(ctx context.Context, state State) (StateChangeReturn, error)

	// GetState waits up to timeout for a pending state change to complete;
	// a negative timeout waits forever.
	GetState(ctx context.Context, timeout time.Duration) (StateChangeReturn, State, error)

	Close(ctx context.Context) error
}

// Pad is a pipeline-owned output pad exposing a decoded elementary stream.
type Pad interface {
	Name() string
	Caps() *Caps
	IsLinked() bool
	Link(ctx context.Context, sink SinkPad) error
	Unlink(ctx context.Context, sink SinkPad) error
	QueryPosition(ctx context.Context, format Format) (int64, bool)
	QueryDuration(ctx context.Context, format Format) (int64, bool)
}

// SinkPad is a caller-owned pad receiving one of the pipeline's streams.
type SinkPad interface {
	Name() string
	SetActive(ctx context.Context, active bool) error
	IsFlushing() bool

	// ClearFlushing resets the flushing bit without a flush-stop.
	ClearFlushing()

	// SendUpstreamEvent sends an event (seek, qos) towards the source.
	SendUpstreamEvent(ctx context.Context, ev Event) bool

	Close(ctx context.Context) error
}

// SourcePad is the pipeline's input pad as seen by the one feeding it.
type SourcePad interface {
	Mode() PadMode
	Push(ctx context.Context, buf *Buffer) FlowReturn
	PushEvent(ctx context.Context, ev Event) bool
}
