// pool.go implements a bounded buffer pool with a commit/decommit lifecycle.

// Package pool provides the fixed-size reusable sample buffers the bridge
// moves media through.
package pool

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ng/xatomic"
	"github.com/xaionaro-go/avbridge/logger"
	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/xsync"
)

type Properties struct {
	Count  int
	Size   int
	Align  int
	Prefix int
}

// DefaultProperties are used when nobody in the negotiation has a preference.
var DefaultProperties = Properties{
	Count: 8,
	Size:  16 * 1024,
	Align: 1,
}

func (p Properties) String() string {
	return fmt.Sprintf("%dx%dB(align:%d,prefix:%d)", p.Count, p.Size, p.Align, p.Prefix)
}

// Pool hands out at most Properties.Count samples at a time.
//
// GetBuffer blocks while the pool is exhausted; BeginFlush and Decommit
// wake every waiter.
type Pool struct {
	locker xsync.Mutex

	// access only when locker is locked:
	props       Properties
	committed   bool
	flushing    bool
	generation  uint64
	outstanding int
	free        chan *Sample

	changeChan *chan struct{}
}

func New(props Properties) *Pool {
	p := &Pool{}
	p.props = normalizeProperties(props)
	p.changeChan = ptr(make(chan struct{}))
	return p
}

func normalizeProperties(props Properties) Properties {
	if props.Count <= 0 {
		props.Count = DefaultProperties.Count
	}
	if props.Size <= 0 {
		props.Size = DefaultProperties.Size
	}
	if props.Align <= 0 {
		props.Align = 1
	}
	if props.Prefix < 0 {
		props.Prefix = 0
	}
	if rem := props.Size % props.Align; rem != 0 {
		props.Size += props.Align - rem
	}
	return props
}

func (p *Pool) String() string {
	return fmt.Sprintf("Pool(%s)", p.Properties())
}

func (p *Pool) Properties() Properties {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() Properties {
		return p.props
	})
}

// SetProperties changes the geometry, it is allowed only while the pool
// is decommitted and every sample is returned.
func (p *Pool) SetProperties(
	ctx context.Context,
	props Properties,
) (_ret Properties, _err error) {
	logger.Tracef(ctx, "SetProperties(%s)", props)
	defer func() { logger.Tracef(ctx, "/SetProperties(%s): %s %v", props, _ret, _err) }()
	return xsync.DoR2(ctx, &p.locker, func() (Properties, error) {
		if p.committed || p.outstanding > 0 {
			return p.props, fmt.Errorf("unable to change properties of a committed pool: %w", types.ErrWrongState)
		}
		p.props = normalizeProperties(props)
		return p.props, nil
	})
}

func (p *Pool) Commit(ctx context.Context) error {
	logger.Debugf(ctx, "Commit")
	defer func() { logger.Debugf(ctx, "/Commit") }()
	p.locker.Do(ctx, func() {
		if p.committed {
			return
		}
		p.generation++
		p.free = make(chan *Sample, p.props.Count)
		for range p.props.Count {
			p.free <- newSample(p, p.generation, p.props)
		}
		p.committed = true
		p.flushing = false
		p.signalChangeLocked()
	})
	return nil
}

// Decommit makes every pending and future GetBuffer fail and waits until
// all outstanding samples are returned.
func (p *Pool) Decommit(ctx context.Context) error {
	logger.Debugf(ctx, "Decommit")
	defer func() { logger.Debugf(ctx, "/Decommit") }()
	p.locker.Do(ctx, func() {
		if !p.committed {
			return
		}
		p.committed = false
		p.free = nil
		p.signalChangeLocked()
	})
	for {
		outstanding, changeCh := xsync.DoR2(ctx, &p.locker, func() (int, <-chan struct{}) {
			return p.outstanding, *p.changeChan
		})
		if outstanding == 0 {
			return nil
		}
		logger.Tracef(ctx, "Decommit: waiting for %d outstanding samples", outstanding)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-changeCh:
		}
	}
}

func (p *Pool) IsCommitted() bool {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() bool {
		return p.committed
	})
}

// BeginFlush makes every pending and future GetBuffer return
// types.ErrFlushing until EndFlush.
func (p *Pool) BeginFlush(ctx context.Context) {
	logger.Debugf(ctx, "BeginFlush")
	defer func() { logger.Debugf(ctx, "/BeginFlush") }()
	p.locker.Do(ctx, func() {
		p.flushing = true
		p.signalChangeLocked()
	})
}

func (p *Pool) EndFlush(ctx context.Context) {
	logger.Debugf(ctx, "EndFlush")
	defer func() { logger.Debugf(ctx, "/EndFlush") }()
	p.locker.Do(ctx, func() {
		p.flushing = false
		p.signalChangeLocked()
	})
}

// Outstanding returns the amount of samples currently handed out.
func (p *Pool) Outstanding() int {
	ctx := xsync.WithNoLogging(context.Background(), true)
	return xsync.DoR1(ctx, &p.locker, func() int {
		return p.outstanding
	})
}

// GetBuffer returns a free sample, blocking until one is available.
func (p *Pool) GetBuffer(ctx context.Context) (*Sample, error) {
	for {
		w, err := p.waitTargets(ctx)
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-w.changeCh:
			continue
		case s := <-w.freeCh:
			err := p.takeSample(ctx, s)
			switch {
			case err == errStaleSample:
				continue
			case err != nil:
				return nil, err
			}
			return s, nil
		}
	}
}

var errStaleSample = errors.New("the sample belongs to a previous commit")

type waitTargets struct {
	freeCh   <-chan *Sample
	changeCh <-chan struct{}
}

func (p *Pool) waitTargets(ctx context.Context) (waitTargets, error) {
	ctx = xsync.WithNoLogging(ctx, true)
	return xsync.DoR2(ctx, &p.locker, func() (waitTargets, error) {
		switch {
		case !p.committed:
			return waitTargets{}, types.ErrDecommitted
		case p.flushing:
			return waitTargets{}, types.ErrFlushing
		}
		return waitTargets{
			freeCh:   p.free,
			changeCh: *p.changeChan,
		}, nil
	})
}

func (p *Pool) takeSample(ctx context.Context, s *Sample) error {
	ctx = xsync.WithNoLogging(ctx, true)
	return xsync.DoR1(ctx, &p.locker, func() error {
		if !p.committed {
			return types.ErrDecommitted
		}
		if s.generation != p.generation {
			return errStaleSample
		}
		if p.flushing {
			p.free <- s
			return types.ErrFlushing
		}
		s.reset()
		p.outstanding++
		return nil
	})
}

func (p *Pool) release(s *Sample) {
	ctx := xsync.WithNoLogging(context.Background(), true)
	p.locker.Do(ctx, func() {
		p.outstanding--
		if p.committed && s.generation == p.generation {
			p.free <- s
		}
		p.signalChangeLocked()
	})
}

func (p *Pool) signalChangeLocked() {
	close(*xatomic.SwapPointer(&p.changeChan, ptr(make(chan struct{}))))
}
