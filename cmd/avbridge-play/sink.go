package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/types"
	"go.uber.org/atomic"
)

// countingSink is a receiver which only accounts what it gets.
type countingSink struct {
	name     string
	samples  atomic.Uint64
	bytes    atomic.Uint64
	syncs    atomic.Uint64
	flushes  atomic.Uint64
	segments atomic.Uint64
	lastTime atomic.Int64

	eosOnce sync.Once
	eosCh   chan struct{}
}

var _ graph.Receiver = (*countingSink)(nil)

func newCountingSink(name string) *countingSink {
	return &countingSink{
		name:  name,
		eosCh: make(chan struct{}),
	}
}

func (s *countingSink) Receive(ctx context.Context, sample *pool.Sample) error {
	s.samples.Inc()
	s.bytes.Add(uint64(sample.ActualDataLength()))
	if sample.IsSyncPoint() {
		s.syncs.Inc()
	}
	if start, _ := sample.Time(); start.IsSet() {
		s.lastTime.Store(int64(start.Get()))
	}
	return nil
}

func (s *countingSink) BeginFlush(ctx context.Context) error {
	s.flushes.Inc()
	return nil
}

func (s *countingSink) EndFlush(ctx context.Context) error {
	return nil
}

func (s *countingSink) NewSegment(ctx context.Context, start, stop types.ReferenceTime, rate float64) error {
	s.segments.Inc()
	return nil
}

func (s *countingSink) EndOfStream(ctx context.Context) error {
	s.eosOnce.Do(func() { close(s.eosCh) })
	return nil
}

func (s *countingSink) NotifyAllocator(ctx context.Context, allocator *pool.Pool, readOnly bool) error {
	return nil
}

func (s *countingSink) String() string {
	return fmt.Sprintf(
		"%s: %d samples (%d sync points), %s, at %s, %d segments, %d flushes",
		s.name,
		s.samples.Load(), s.syncs.Load(),
		humanize.Bytes(s.bytes.Load()),
		types.ReferenceTime(s.lastTime.Load()),
		s.segments.Load(), s.flushes.Load(),
	)
}
