// reader_at.go provides an AsyncReader serving requests on a worker
// goroutine from an io.ReaderAt.

package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avbridge/graph"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
	"github.com/xaionaro-go/xsync"
)

type ReaderAt struct {
	source io.ReaderAt
	size   int64

	locker xsync.Mutex

	// access only when locker is locked:
	queue     []ReadRequest
	inFlight  int
	completed []Completion
	flushing  bool
	closed    bool

	changeChan *chan struct{}

	cancelFn  context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var (
	_ AsyncReader = (*ReaderAt)(nil)
	_ graph.Peer  = (*ReaderAt)(nil)
)

// NewReaderAt starts the worker; call Close to stop it.
func NewReaderAt(
	ctx context.Context,
	source io.ReaderAt,
	size int64,
) *ReaderAt {
	r := &ReaderAt{
		source:     source,
		size:       size,
		changeChan: ptr(make(chan struct{})),
	}
	ctx, r.cancelFn = context.WithCancel(xcontext.DetachDone(ctx))
	r.wg.Add(1)
	observability.Go(ctx, func(ctx context.Context) {
		defer r.wg.Done()
		r.worker(ctx)
	})
	return r
}

func (r *ReaderAt) String() string {
	return fmt.Sprintf("ReaderAt(%d)", r.size)
}

// Direction makes ReaderAt usable as the upstream pin of a connection.
func (r *ReaderAt) Direction() graph.PinDirection {
	return graph.PinDirectionOutput
}

func (r *ReaderAt) Length(ctx context.Context) (int64, int64, error) {
	return r.size, r.size, nil
}

func (r *ReaderAt) SyncRead(
	ctx context.Context,
	offset int64,
	buf []byte,
) (_n int, _err error) {
	logger.Tracef(ctx, "SyncRead(%d, %d)", offset, len(buf))
	defer func() { logger.Tracef(ctx, "/SyncRead(%d, %d): %d %v", offset, len(buf), _n, _err) }()
	if offset < 0 || offset >= r.size {
		return 0, io.EOF
	}
	if remaining := r.size - offset; int64(len(buf)) > remaining {
		buf = buf[:remaining]
	}
	n, err := r.source.ReadAt(buf, offset)
	if errors.Is(err, io.EOF) && n == len(buf) {
		err = nil
	}
	return n, err
}

func (r *ReaderAt) Request(
	ctx context.Context,
	req ReadRequest,
) (_err error) {
	logger.Tracef(ctx, "Request(%s)", req)
	defer func() { logger.Tracef(ctx, "/Request(%s): %v", req, _err) }()
	if req.Sample == nil {
		return fmt.Errorf("no sample: %w", graph.ErrInvalidArgument)
	}
	if req.Length < 0 || req.Length > req.Sample.Size() {
		return fmt.Errorf("length %d does not fit the sample of size %d: %w", req.Length, req.Sample.Size(), graph.ErrInvalidArgument)
	}
	if req.Offset < 0 || req.Offset >= r.size {
		return fmt.Errorf("offset %d is outside of [0, %d): %w", req.Offset, r.size, graph.ErrInvalidArgument)
	}
	return xsync.DoR1(ctx, &r.locker, func() error {
		switch {
		case r.closed:
			return types.ErrClosed
		case r.flushing:
			return types.ErrFlushing
		}
		r.queue = append(r.queue, req)
		r.signalChangeLocked()
		return nil
	})
}

func (r *ReaderAt) WaitForNext(
	ctx context.Context,
	timeout time.Duration,
) (_ret Completion, _err error) {
	logger.Tracef(ctx, "WaitForNext(%v)", timeout)
	defer func() { logger.Tracef(ctx, "/WaitForNext(%v): %s %v", timeout, _ret.ReadRequest, _err) }()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	for {
		c, changeCh, err := r.nextCompletion(ctx)
		if err != nil || c != nil {
			if c == nil {
				return Completion{}, err
			}
			return *c, err
		}
		if timeout == 0 {
			return Completion{}, types.ErrTimeout
		}
		select {
		case <-ctx.Done():
			return Completion{}, ctx.Err()
		case <-timeoutCh:
			return Completion{}, types.ErrTimeout
		case <-changeCh:
		}
	}
}

func (r *ReaderAt) nextCompletion(ctx context.Context) (*Completion, <-chan struct{}, error) {
	ctx = xsync.WithNoLogging(ctx, true)
	var changeCh <-chan struct{}
	c, err := xsync.DoR2(ctx, &r.locker, func() (*Completion, error) {
		if len(r.completed) > 0 {
			c := r.completed[0]
			r.completed = r.completed[1:]
			return &c, c.Err
		}
		outstanding := len(r.queue) + r.inFlight
		switch {
		case r.flushing && outstanding == 0:
			return nil, types.ErrFlushing
		case r.closed && outstanding == 0:
			return nil, types.ErrClosed
		case outstanding == 0:
			return nil, types.ErrNothingOutstanding
		}
		changeCh = *r.changeChan
		return nil, nil
	})
	return c, changeCh, err
}

func (r *ReaderAt) BeginFlush(ctx context.Context) error {
	logger.Debugf(ctx, "BeginFlush")
	defer func() { logger.Debugf(ctx, "/BeginFlush") }()
	r.locker.Do(ctx, func() {
		r.flushing = true
		for _, req := range r.queue {
			r.completed = append(r.completed, Completion{
				ReadRequest: req,
				Err:         types.ErrFlushing,
			})
		}
		r.queue = nil
		r.signalChangeLocked()
	})
	return nil
}

func (r *ReaderAt) EndFlush(ctx context.Context) error {
	logger.Debugf(ctx, "EndFlush")
	defer func() { logger.Debugf(ctx, "/EndFlush") }()
	r.locker.Do(ctx, func() {
		r.flushing = false
		r.signalChangeLocked()
	})
	return nil
}

func (r *ReaderAt) RequestAllocator(
	ctx context.Context,
	preferred *pool.Pool,
	props pool.Properties,
) (*pool.Pool, error) {
	if props == (pool.Properties{}) {
		props = pool.DefaultProperties
	}
	if preferred == nil {
		return pool.New(props), nil
	}
	if _, err := preferred.SetProperties(ctx, props); err != nil {
		logger.Debugf(ctx, "the preferred allocator refused properties %s: %v", props, err)
	}
	return preferred, nil
}

// Outstanding returns the amount of requests not collected by WaitForNext.
func (r *ReaderAt) Outstanding() int {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &r.locker, func() int {
		return len(r.queue) + r.inFlight + len(r.completed)
	})
}

func (r *ReaderAt) Close() error {
	r.closeOnce.Do(func() {
		ctx := context.Background()
		r.locker.Do(ctx, func() {
			r.closed = true
			for _, req := range r.queue {
				r.completed = append(r.completed, Completion{
					ReadRequest: req,
					Err:         types.ErrClosed,
				})
			}
			r.queue = nil
			r.signalChangeLocked()
		})
		r.cancelFn()
		r.wg.Wait()
	})
	return nil
}

func (r *ReaderAt) worker(ctx context.Context) {
	logger.Debugf(ctx, "worker")
	defer func() { logger.Debugf(ctx, "/worker") }()
	for {
		req, changeCh, ok := r.takeRequest(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-changeCh:
				continue
			}
		}

		n, err := r.SyncRead(ctx, req.Offset, req.Sample.Pointer()[:req.Length])
		if err == nil {
			err = req.Sample.SetActualDataLength(n)
		}

		r.locker.Do(xsync.WithNoLogging(ctx, true), func() {
			r.inFlight--
			if err == nil && r.flushing {
				err = types.ErrFlushing
			}
			r.completed = append(r.completed, Completion{
				ReadRequest: req,
				Err:         err,
			})
			r.signalChangeLocked()
		})
	}
}

func (r *ReaderAt) takeRequest(ctx context.Context) (ReadRequest, <-chan struct{}, bool) {
	ctx = xsync.WithNoLogging(ctx, true)
	var (
		req      ReadRequest
		changeCh <-chan struct{}
	)
	ok := xsync.DoR1(ctx, &r.locker, func() bool {
		changeCh = *r.changeChan
		if len(r.queue) == 0 {
			return false
		}
		req = r.queue[0]
		r.queue = r.queue[1:]
		r.inFlight++
		return true
	})
	return req, changeCh, ok
}

func (r *ReaderAt) signalChangeLocked() {
	close(*xatomic.SwapPointer(&r.changeChan, ptr(make(chan struct{}))))
}
