// source_bridge.go provides serving the pipeline's input pad from the
// upstream reader, both when the pipeline pulls and when it is pushed to.

package avbridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pipeline"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/xsync"
)

type sourceBridge struct {
	filter *Filter
	conn   *connection

	locker xsync.Mutex

	// access only when locker is locked:
	mode       pipeline.PadMode
	nextOffset int64
	thread     *pushThread
	lastErr    error
}

func newSourceBridge(f *Filter, conn *connection) *sourceBridge {
	return &sourceBridge{
		filter: f,
		conn:   conn,
	}
}

func (s *sourceBridge) String() string {
	return fmt.Sprintf("sourceBridge(%s)", s.getMode())
}

func (s *sourceBridge) getMode() pipeline.PadMode {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &s.locker, func() pipeline.PadMode {
		return s.mode
	})
}

// NextOffset returns where the push thread continues reading from.
func (s *sourceBridge) NextOffset() int64 {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &s.locker, func() int64 {
		return s.nextOffset
	})
}

// LastError returns the last error which stopped the push thread.
func (s *sourceBridge) LastError() error {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &s.locker, func() error {
		return s.lastErr
	})
}

func (s *sourceBridge) setLastError(err error) {
	s.locker.Do(xsync.WithNoLogging(context.Background(), true), func() {
		s.lastErr = err
	})
}

func (s *sourceBridge) getPool() *pool.Pool {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &s.filter.locker, func() *pool.Pool {
		return s.conn.pool
	})
}

func (s *sourceBridge) getRange(
	ctx context.Context,
	offset uint64,
	length uint,
) (*pipeline.Buffer, pipeline.FlowReturn) {
	total := uint64(s.conn.length)
	if offset >= total {
		logger.Debugf(ctx, "getrange at %d of %d: eos", offset, total)
		return nil, pipeline.FlowEOS
	}
	if remaining := total - offset; uint64(length) > remaining {
		length = uint(remaining)
	}
	data := make([]byte, length)
	n, err := s.conn.reader.SyncRead(ctx, int64(offset), data)
	switch {
	case err != nil && !errors.Is(err, io.EOF):
		logger.Errorf(ctx, "unable to read %d bytes at %d: %v", length, offset, err)
		return nil, pipeline.FlowError
	case n == 0:
		return nil, pipeline.FlowEOS
	}
	buf := pipeline.NewBuffer(data[:n])
	buf.Offset = offset
	return buf, pipeline.FlowOK
}

func (s *sourceBridge) activateMode(
	ctx context.Context,
	mode pipeline.PadMode,
	active bool,
) error {
	logger.Debugf(ctx, "activateMode(%s, %t)", mode, active)
	defer func() { logger.Debugf(ctx, "/activateMode(%s, %t)", mode, active) }()

	if !active {
		if mode == pipeline.PadModePush {
			flush := !s.filter.initial.Load()
			s.stopPushing(ctx, flush)
			if flush {
				s.endFlush(ctx)
			}
		}
		s.locker.Do(ctx, func() {
			s.mode = pipeline.PadModeNone
		})
		return nil
	}

	switch mode {
	case pipeline.PadModePull:
		s.locker.Do(ctx, func() {
			s.mode = mode
		})
	case pipeline.PadModePush:
		s.locker.Do(ctx, func() {
			s.mode = mode
			s.nextOffset = 0
			s.lastErr = nil
		})
		s.ensurePushing(ctx)
	default:
		return fmt.Errorf("unexpected pad mode %s", mode)
	}
	return nil
}

// stopPushing stops the push thread; with flush set the thread is woken
// up first if it blocks on the reader or the input pool. The caller ends
// the flush with endFlush.
func (s *sourceBridge) stopPushing(ctx context.Context, flush bool) {
	if flush {
		if err := s.conn.reader.BeginFlush(ctx); err != nil {
			logger.Errorf(ctx, "unable to begin flushing the reader: %v", err)
		}
		if p := s.getPool(); p != nil {
			p.BeginFlush(ctx)
		}
	}
	s.stopThread(ctx)
}

func (s *sourceBridge) endFlush(ctx context.Context) {
	if err := s.conn.reader.EndFlush(ctx); err != nil {
		logger.Errorf(ctx, "unable to end flushing the reader: %v", err)
	}
	if p := s.getPool(); p != nil {
		p.EndFlush(ctx)
	}
}

func (s *sourceBridge) handleEvent(ctx context.Context, ev pipeline.Event) bool {
	logger.Debugf(ctx, "handleEvent(%s)", ev)
	seek, ok := ev.(*pipeline.EventSeek)
	if !ok {
		return false
	}
	if seek.Format != pipeline.FormatBytes {
		logger.Debugf(ctx, "unable to seek in format %s", seek.Format)
		return false
	}
	if seek.StartType != pipeline.SeekTypeSet || seek.Start < 0 {
		logger.Debugf(ctx, "unsupported seek start %d/%d", seek.StartType, seek.Start)
		return false
	}

	srcPad := s.conn.pipeline.SourcePad()
	flush := seek.Flags&pipeline.SeekFlagFlush != 0
	if flush {
		srcPad.PushEvent(ctx, &pipeline.EventFlushStart{})
	}
	s.stopPushing(ctx, flush)

	offset := min(seek.Start, s.conn.length)
	mode := xsync.DoR1(ctx, &s.locker, func() pipeline.PadMode {
		s.nextOffset = offset
		s.lastErr = nil
		return s.mode
	})
	if flush {
		// downstream leaves flushing before the reader takes requests again
		srcPad.PushEvent(ctx, &pipeline.EventFlushStop{ResetTime: true})
		s.endFlush(ctx)
	}
	if mode == pipeline.PadModePush {
		s.ensurePushing(ctx)
	}
	return true
}

func (s *sourceBridge) handleQuery(ctx context.Context, q pipeline.Query) bool {
	switch q := q.(type) {
	case *pipeline.QueryDuration:
		if q.Format != pipeline.FormatBytes {
			return false
		}
		q.Duration = s.conn.length
		return true
	case *pipeline.QuerySeeking:
		if q.Format != pipeline.FormatBytes {
			return false
		}
		q.Seekable = true
		q.Start = 0
		q.End = s.conn.length
		return true
	case *pipeline.QueryScheduling:
		q.Seekable = true
		q.Modes = []pipeline.PadMode{pipeline.PadModePush, pipeline.PadModePull}
		return true
	}
	return false
}
