package dispatcher

import (
	"context"

	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/xsync"
)

var global struct {
	locker     xsync.Mutex
	dispatcher *Dispatcher
	refCount   int
}

// Acquire returns the process-wide dispatcher, creating it on first use.
// Options are applied only when it gets created.
func Acquire(ctx context.Context, opts ...Option) *Dispatcher {
	return xsync.DoR1(ctx, &global.locker, func() *Dispatcher {
		if global.dispatcher == nil {
			logger.Debugf(ctx, "creating the process-wide dispatcher")
			global.dispatcher = New(ctx, opts...)
		}
		global.refCount++
		return global.dispatcher
	})
}

// Release drops a reference taken by Acquire; the last one closes
// the dispatcher.
func Release(ctx context.Context) {
	d := xsync.DoR1(ctx, &global.locker, func() *Dispatcher {
		if global.refCount <= 0 {
			logger.Errorf(ctx, "Release called more times than Acquire")
			return nil
		}
		global.refCount--
		if global.refCount > 0 {
			return nil
		}
		d := global.dispatcher
		global.dispatcher = nil
		return d
	})
	if d == nil {
		return
	}
	logger.Debugf(ctx, "closing the process-wide dispatcher")
	if err := d.Close(); err != nil {
		logger.Errorf(ctx, "unable to close the dispatcher: %v", err)
	}
}
