package dispatcher

import (
	"context"
	"fmt"
)

// Envelope is one boxed callback. It lives until the issuing Call returns.
type Envelope struct {
	Kind   Kind
	Args   any
	Result any

	fn     func(ctx context.Context) any
	doneCh chan struct{}
}

func newEnvelope(kind Kind, args any, fn func(ctx context.Context) any) *Envelope {
	return &Envelope{
		Kind:   kind,
		Args:   args,
		fn:     fn,
		doneCh: make(chan struct{}),
	}
}

func (e *Envelope) String() string {
	return fmt.Sprintf("Envelope(%s, %v)", e.Kind, e.Args)
}

func (e *Envelope) execute(ctx context.Context) {
	defer close(e.doneCh)
	e.Result = e.fn(ctx)
}
