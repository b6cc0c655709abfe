// push_thread.go provides the goroutine feeding the pipeline in push mode.

package avbridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/reader"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

type pushThread struct {
	stopCh chan struct{}
	doneCh chan struct{}

	// requests given to the reader and not collected yet;
	// access only from the thread itself.
	outstanding int
}

func (t *pushThread) isDone() bool {
	select {
	case <-t.doneCh:
		return true
	default:
		return false
	}
}

func (t *pushThread) isStopped() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

// ensurePushing starts the push thread unless one is already running or
// there is nothing left to push.
func (s *sourceBridge) ensurePushing(ctx context.Context) {
	t := xsync.DoR1(ctx, &s.locker, func() *pushThread {
		if s.mode != pipeline.PadModePush {
			return nil
		}
		if s.thread != nil && !s.thread.isDone() {
			return nil
		}
		if s.nextOffset >= s.conn.length {
			return nil
		}
		s.thread = &pushThread{
			stopCh: make(chan struct{}),
			doneCh: make(chan struct{}),
		}
		return s.thread
	})
	if t == nil {
		return
	}
	logger.Debugf(ctx, "starting the push thread")
	observability.Go(xcontext.DetachDone(ctx), func(ctx context.Context) {
		defer close(t.doneCh)
		s.pushLoop(ctx, t)
	})
}

func (s *sourceBridge) isPushing() bool {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &s.locker, func() bool {
		return s.thread != nil && !s.thread.isDone()
	})
}

func (s *sourceBridge) stopThread(ctx context.Context) {
	t := xsync.DoR1(ctx, &s.locker, func() *pushThread {
		t := s.thread
		s.thread = nil
		return t
	})
	if t == nil {
		return
	}
	logger.Debugf(ctx, "stopping the push thread")
	close(t.stopCh)
	<-t.doneCh
	logger.Debugf(ctx, "the push thread is stopped")
}

func (s *sourceBridge) pushLoop(ctx context.Context, t *pushThread) {
	logger.Debugf(ctx, "pushLoop")
	defer func() { logger.Debugf(ctx, "/pushLoop") }()
	defer s.drainRequests(ctx, t)

	srcPad := s.conn.pipeline.SourcePad()
	for !t.isStopped() {
		offset := s.NextOffset()
		if offset >= s.conn.length {
			logger.Debugf(ctx, "reached the end of the input at %d", offset)
			srcPad.PushEvent(ctx, &pipeline.EventEOS{})
			return
		}

		buf, err := s.read(ctx, t, offset)
		switch {
		case err == nil:
		case errors.Is(err, types.ErrFlushing), errors.Is(err, types.ErrDecommitted), errors.Is(err, context.Canceled):
			logger.Debugf(ctx, "the read at %d is interrupted: %v", offset, err)
			return
		case errors.Is(err, io.EOF):
			srcPad.PushEvent(ctx, &pipeline.EventEOS{})
			return
		default:
			err = fmt.Errorf("unable to read at %d: %w", offset, err)
			s.setLastError(err)
			s.filter.reportError(ctx, err)
			srcPad.PushEvent(ctx, &pipeline.EventEOS{})
			return
		}

		n := int64(len(buf.Data))
		flow := srcPad.Push(ctx, buf)
		switch {
		case flow == pipeline.FlowOK:
			s.locker.Do(xsync.WithNoLogging(ctx, true), func() {
				s.nextOffset = min(offset+n, s.conn.length)
			})
		case flow == pipeline.FlowFlushing, flow == pipeline.FlowEOS:
			logger.Debugf(ctx, "the pipeline returned %s at %d", flow, offset)
			return
		case flow == pipeline.FlowNotLinked:
			err := fmt.Errorf("none of the streams is linked: %w", types.ErrWrongState)
			logger.Debugf(ctx, "%v", err)
			s.setLastError(err)
			return
		case flow.IsFatal():
			err := ErrPushFailed{Flow: flow}
			s.setLastError(err)
			srcPad.PushEvent(ctx, &pipeline.EventEOS{})
			s.filter.reportError(ctx, err)
			return
		default:
			logger.Warnf(ctx, "unexpected flow %s at %d", flow, offset)
			return
		}
	}
}

// read returns the next chunk of the input. Until the first Pause the
// input pool is not committed and the chunk is read synchronously.
func (s *sourceBridge) read(
	ctx context.Context,
	t *pushThread,
	offset int64,
) (*pipeline.Buffer, error) {
	remaining := s.conn.length - offset
	p := s.getPool()
	if s.filter.initial.Load() || p == nil || !p.IsCommitted() {
		data := make([]byte, min(int64(s.filter.config.DefaultAllocator.Size), remaining))
		n, err := s.conn.reader.SyncRead(ctx, offset, data)
		if err != nil && (!errors.Is(err, io.EOF) || n == 0) {
			return nil, err
		}
		if n == 0 {
			return nil, io.EOF
		}
		buf := pipeline.NewBuffer(data[:n])
		buf.Offset = uint64(offset)
		return buf, nil
	}

	sample, err := p.GetBuffer(ctx)
	if err != nil {
		return nil, err
	}
	err = s.conn.reader.Request(ctx, reader.ReadRequest{
		Sample: sample,
		Offset: offset,
		Length: int(min(int64(sample.Size()), remaining)),
	})
	if err != nil {
		sample.Release()
		return nil, err
	}
	t.outstanding++

	c, err := s.conn.reader.WaitForNext(ctx, s.filter.config.AsyncReadTimeout)
	if c.Sample != nil {
		t.outstanding--
	}
	if err != nil {
		if c.Sample != nil {
			c.Sample.Release()
		}
		return nil, err
	}
	ps := pendingSample{sample: c.Sample, offset: c.Offset}
	if ps.sample.ActualDataLength() == 0 {
		ps.sample.Release()
		return nil, io.EOF
	}
	return ps.buffer(ctx, s.filter), nil
}

// pendingSample is a completed read not handed to the pipeline yet.
type pendingSample struct {
	sample *pool.Sample
	offset int64
}

// buffer wraps the sample memory; the sample goes back to its pool when
// the pipeline releases the buffer.
func (ps pendingSample) buffer(ctx context.Context, f *Filter) *pipeline.Buffer {
	buf := pipeline.NewBuffer(ps.sample.Bytes())
	buf.Offset = uint64(ps.offset)
	buf.OnRelease = f.releaseSample(ctx, ps.sample.Release)
	return buf
}

// drainRequests collects the requests still owned by the reader.
func (s *sourceBridge) drainRequests(ctx context.Context, t *pushThread) {
	for t.outstanding > 0 {
		c, err := s.conn.reader.WaitForNext(ctx, reader.Infinite)
		if c.Sample != nil {
			t.outstanding--
			c.Sample.Release()
			continue
		}
		if err != nil {
			logger.Debugf(ctx, "unable to collect %d outstanding requests: %v", t.outstanding, err)
			return
		}
	}
}
