// sample.go provides the media sample handed out by Pool.

package pool

import (
	"fmt"
	"sync/atomic"

	"github.com/xaionaro-go/avbridge/types"
	"github.com/xaionaro-go/typing"
)

type Sample struct {
	pool       *Pool
	generation uint64
	released   atomic.Bool

	buffer       []byte
	prefix       int
	actualLength int

	timeStart      typing.Optional[types.ReferenceTime]
	timeStop       typing.Optional[types.ReferenceTime]
	mediaTimeStart typing.Optional[int64]
	mediaTimeStop  typing.Optional[int64]
	discontinuity  bool
	preroll        bool
	syncPoint      bool
}

func newSample(p *Pool, generation uint64, props Properties) *Sample {
	return &Sample{
		pool:       p,
		generation: generation,
		buffer:     make([]byte, props.Prefix+props.Size),
		prefix:     props.Prefix,
	}
}

func (s *Sample) reset() {
	s.released.Store(false)
	s.actualLength = 0
	s.timeStart.Unset()
	s.timeStop.Unset()
	s.mediaTimeStart.Unset()
	s.mediaTimeStop.Unset()
	s.discontinuity = false
	s.preroll = false
	s.syncPoint = false
}

func (s *Sample) String() string {
	return fmt.Sprintf("Sample(len:%d/%d)", s.actualLength, s.Size())
}

// Pointer returns the whole writable payload area.
func (s *Sample) Pointer() []byte {
	return s.buffer[s.prefix:]
}

func (s *Sample) Size() int {
	return len(s.buffer) - s.prefix
}

func (s *Sample) SetActualDataLength(n int) error {
	if n < 0 || n > s.Size() {
		return fmt.Errorf("data length %d is out of the buffer range [0, %d]", n, s.Size())
	}
	s.actualLength = n
	return nil
}

func (s *Sample) ActualDataLength() int {
	return s.actualLength
}

// Bytes returns the payload that was actually written.
func (s *Sample) Bytes() []byte {
	return s.Pointer()[:s.actualLength]
}

func (s *Sample) SetTime(start, stop typing.Optional[types.ReferenceTime]) {
	s.timeStart, s.timeStop = start, stop
}

func (s *Sample) Time() (start, stop typing.Optional[types.ReferenceTime]) {
	return s.timeStart, s.timeStop
}

func (s *Sample) SetMediaTime(start, stop typing.Optional[int64]) {
	s.mediaTimeStart, s.mediaTimeStop = start, stop
}

func (s *Sample) MediaTime() (start, stop typing.Optional[int64]) {
	return s.mediaTimeStart, s.mediaTimeStop
}

func (s *Sample) SetDiscontinuity(v bool) { s.discontinuity = v }
func (s *Sample) IsDiscontinuity() bool   { return s.discontinuity }
func (s *Sample) SetPreroll(v bool)       { s.preroll = v }
func (s *Sample) IsPreroll() bool         { return s.preroll }
func (s *Sample) SetSyncPoint(v bool)     { s.syncPoint = v }
func (s *Sample) IsSyncPoint() bool       { return s.syncPoint }

// Release returns the sample to its pool; calling it twice is a no-op.
func (s *Sample) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	s.pool.release(s)
}
