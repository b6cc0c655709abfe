// Package reader describes the upstream byte source the bridge pulls its
// input from, and provides an implementation on top of io.ReaderAt.
package reader

import (
	"context"
	"fmt"
	"time"

	"github.com/xaionaro-go/avbridge/pool"
)

// Infinite makes WaitForNext wait without a timeout.
const Infinite = time.Duration(-1)

type ReadRequest struct {
	Sample *pool.Sample
	Offset int64
	Length int
	Cookie any
}

func (r ReadRequest) String() string {
	return fmt.Sprintf("ReadRequest(offset:%d, len:%d)", r.Offset, r.Length)
}

// Completion is a finished (or aborted) ReadRequest.
type Completion struct {
	ReadRequest
	Err error
}

// AsyncReader is a random-access byte source with asynchronous reads.
//
// BeginFlush aborts every queued request and makes the pending and future
// WaitForNext calls return promptly until EndFlush.
type AsyncReader interface {
	Length(ctx context.Context) (total, available int64, err error)
	SyncRead(ctx context.Context, offset int64, buf []byte) (int, error)
	Request(ctx context.Context, req ReadRequest) error

	// WaitForNext returns the next completed request. Aborted requests
	// are returned with a non-nil Completion.Err and their sample set.
	WaitForNext(ctx context.Context, timeout time.Duration) (Completion, error)

	BeginFlush(ctx context.Context) error
	EndFlush(ctx context.Context) error

	// RequestAllocator returns the pool requests should be built from;
	// preferred and props may be nil/zero.
	RequestAllocator(ctx context.Context, preferred *pool.Pool, props pool.Properties) (*pool.Pool, error)
}
