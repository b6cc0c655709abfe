package dispatcher

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDispatcherCall(t *testing.T) {
	ctx := context.Background()
	d := New(ctx, OptionWorkers(2))
	defer d.Close()

	var onWorker atomic.Bool
	r := Call(ctx, d, KindChain, nil, func(ctx context.Context) int {
		onWorker.Store(d.IsWorker(ctx))
		return 42
	})
	require.Equal(t, 42, r)
	require.True(t, onWorker.Load())
	require.False(t, d.IsWorker(ctx))
}

func TestDispatcherReentrantCallIsInline(t *testing.T) {
	ctx := context.Background()
	d := New(ctx, OptionWorkers(1), OptionQueueSize(0))
	defer d.Close()

	doneCh := make(chan string, 1)
	go func() {
		doneCh <- Call(ctx, d, KindPadAdded, nil, func(ctx context.Context) string {
			// with a single worker a queued nested call would never run
			return Call(ctx, d, KindAutoplugSelect, nil, func(ctx context.Context) string {
				return "nested"
			})
		})
	}()

	select {
	case r := <-doneCh:
		require.Equal(t, "nested", r)
	case <-time.After(time.Second):
		t.Fatal("the nested call deadlocked")
	}
}

func TestDispatcherCallAfterClose(t *testing.T) {
	ctx := context.Background()
	d := New(ctx)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())

	r := Call(ctx, d, KindBusMessage, nil, func(ctx context.Context) bool {
		return true
	})
	require.True(t, r)
}

func TestAcquireRelease(t *testing.T) {
	ctx := context.Background()
	d0 := Acquire(ctx)
	d1 := Acquire(ctx)
	require.Same(t, d0, d1)

	Release(ctx)
	r := Call(ctx, d0, KindChain, nil, func(ctx context.Context) bool {
		return d0.IsWorker(ctx)
	})
	require.True(t, r)

	Release(ctx)
	d2 := Acquire(ctx)
	defer Release(ctx)
	require.NotSame(t, d0, d2)
}
