// dispatcher.go provides the worker pool executing pipeline callbacks on a
// controlled set of goroutines.

// Package dispatcher marshals callbacks issued on foreign goroutines onto a
// shared pool of workers, with the issuer waiting for the result.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/facebookincubator/go-belt"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/observability"
	"github.com/xaionaro-go/xcontext"
)

type ctxKeyWorkerT struct{}

var ctxKeyWorker = ctxKeyWorkerT{}

type Dispatcher struct {
	config   config
	queue    chan *Envelope
	cancelFn context.CancelFunc
	wg       sync.WaitGroup

	closeLocker sync.RWMutex
	closed      bool
}

func New(
	ctx context.Context,
	opts ...Option,
) *Dispatcher {
	cfg := Options(opts).config()
	d := &Dispatcher{
		config: cfg,
		queue:  make(chan *Envelope, cfg.QueueSize),
	}
	ctx, d.cancelFn = context.WithCancel(xcontext.DetachDone(ctx))
	ctx = context.WithValue(ctx, ctxKeyWorker, d)
	for idx := range cfg.Workers {
		d.wg.Add(1)
		observability.Go(ctx, func(ctx context.Context) {
			defer d.wg.Done()
			d.worker(belt.WithField(ctx, "dispatcher_worker", idx))
		})
	}
	return d
}

func (d *Dispatcher) String() string {
	return fmt.Sprintf("Dispatcher(workers:%d)", d.config.Workers)
}

func (d *Dispatcher) worker(ctx context.Context) {
	logger.Tracef(ctx, "worker")
	defer func() { logger.Tracef(ctx, "/worker") }()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.queue:
			d.execute(ctx, e)
		}
	}
}

func (d *Dispatcher) execute(ctx context.Context, e *Envelope) {
	ctx = belt.WithField(ctx, "callback", e.Kind.String())
	logger.Tracef(ctx, "execute(%s)", e)
	defer func() { logger.Tracef(ctx, "/execute(%s)", e) }()
	e.execute(ctx)
}

// IsWorker reports whether ctx belongs to one of the workers of d.
func (d *Dispatcher) IsWorker(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyWorker).(*Dispatcher)
	return v == d
}

// Dispatch executes the envelope on a worker and waits for it to finish.
//
// Envelopes dispatched from a worker of the same dispatcher, or after the
// dispatcher is closed, are executed inline.
func (d *Dispatcher) Dispatch(ctx context.Context, e *Envelope) {
	if d == nil || d.IsWorker(ctx) {
		e.execute(ctx)
		return
	}
	d.closeLocker.RLock()
	if d.closed {
		d.closeLocker.RUnlock()
		e.execute(ctx)
		return
	}
	d.queue <- e
	d.closeLocker.RUnlock()
	// not interruptible by ctx: the envelope may be executing already
	<-e.doneCh
}

func (d *Dispatcher) Close() error {
	d.closeLocker.Lock()
	alreadyClosed := d.closed
	d.closed = true
	d.closeLocker.Unlock()
	if alreadyClosed {
		return nil
	}
	d.cancelFn()
	d.wg.Wait()
	for {
		select {
		case e := <-d.queue:
			e.execute(context.Background())
		default:
			return nil
		}
	}
}

// Call boxes fn into an envelope of the given kind and dispatches it.
func Call[R any](
	ctx context.Context,
	d *Dispatcher,
	kind Kind,
	args any,
	fn func(ctx context.Context) R,
) R {
	e := newEnvelope(kind, args, func(ctx context.Context) any {
		return fn(ctx)
	})
	d.Dispatch(ctx, e)
	r, _ := e.Result.(R)
	return r
}
