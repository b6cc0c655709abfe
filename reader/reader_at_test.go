package reader

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/avbridge/pool"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

func newTestPool(t *testing.T, count, size int) *pool.Pool {
	p := pool.New(pool.Properties{Count: count, Size: size})
	require.NoError(t, p.Commit(context.Background()))
	return p
}

func TestReaderAt(t *testing.T) {
	ctx := context.Background()
	data := []byte("0123456789abcdef")
	r := NewReaderAt(ctx, bytes.NewReader(data), int64(len(data)))
	defer r.Close()

	total, available, err := r.Length(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(16), total)
	require.Equal(t, int64(16), available)

	buf := make([]byte, 8)
	n, err := r.SyncRead(ctx, 12, buf)
	require.NoError(t, err)
	require.Equal(t, "cdef", string(buf[:n]))

	_, err = r.SyncRead(ctx, 16, buf)
	require.ErrorIs(t, err, io.EOF)

	p := newTestPool(t, 2, 4)
	s, err := p.GetBuffer(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Request(ctx, ReadRequest{Sample: s, Offset: 4, Length: 4, Cookie: 1}))

	c, err := r.WaitForNext(ctx, Infinite)
	require.NoError(t, err)
	require.Equal(t, s, c.Sample)
	require.Equal(t, 1, c.Cookie)
	require.Equal(t, "4567", string(c.Sample.Bytes()))
	s.Release()

	_, err = r.WaitForNext(ctx, Infinite)
	require.ErrorIs(t, err, types.ErrNothingOutstanding)
}

// blockingReaderAt blocks every read until unblocked.
type blockingReaderAt struct {
	unblockCh chan struct{}
	once      sync.Once
}

func (r *blockingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	<-r.unblockCh
	return len(p), nil
}

func (r *blockingReaderAt) unblock() {
	r.once.Do(func() { close(r.unblockCh) })
}

func TestReaderAtFlush(t *testing.T) {
	ctx := context.Background()
	src := &blockingReaderAt{unblockCh: make(chan struct{})}
	r := NewReaderAt(ctx, src, 1024)
	defer r.Close()
	defer src.unblock()

	p := newTestPool(t, 2, 16)
	s0, err := p.GetBuffer(ctx)
	require.NoError(t, err)
	s1, err := p.GetBuffer(ctx)
	require.NoError(t, err)
	require.NoError(t, r.Request(ctx, ReadRequest{Sample: s0, Offset: 0, Length: 16}))
	require.Eventually(t, func() bool {
		return xsync.DoR1(ctx, &r.locker, func() bool {
			return r.inFlight == 1
		})
	}, time.Second, time.Millisecond)
	require.NoError(t, r.Request(ctx, ReadRequest{Sample: s1, Offset: 16, Length: 16}))

	_, err = r.WaitForNext(ctx, 10*time.Millisecond)
	require.ErrorIs(t, err, types.ErrTimeout)

	require.NoError(t, r.BeginFlush(ctx))
	require.ErrorIs(t, r.Request(ctx, ReadRequest{Sample: s1, Offset: 0, Length: 1}), types.ErrFlushing)

	c, err := r.WaitForNext(ctx, Infinite)
	require.ErrorIs(t, err, types.ErrFlushing)
	require.Equal(t, s1, c.Sample)

	src.unblock()
	c, err = r.WaitForNext(ctx, Infinite)
	require.ErrorIs(t, err, types.ErrFlushing)
	require.Equal(t, s0, c.Sample)

	_, err = r.WaitForNext(ctx, Infinite)
	require.ErrorIs(t, err, types.ErrFlushing)
	require.NoError(t, r.EndFlush(ctx))
	require.Zero(t, r.Outstanding())
}

func TestReaderAtRequestAllocator(t *testing.T) {
	ctx := context.Background()
	r := NewReaderAt(ctx, bytes.NewReader(nil), 0)
	defer r.Close()

	p, err := r.RequestAllocator(ctx, nil, pool.Properties{})
	require.NoError(t, err)
	require.Equal(t, pool.DefaultProperties, p.Properties())

	preferred := pool.New(pool.Properties{Count: 1, Size: 1})
	p, err = r.RequestAllocator(ctx, preferred, pool.Properties{Count: 2, Size: 32})
	require.NoError(t, err)
	require.Equal(t, preferred, p)
	require.Equal(t, 2, p.Properties().Count)
}
