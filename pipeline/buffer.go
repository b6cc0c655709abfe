package pipeline

import (
	"fmt"
	"sync"
)

type BufferFlags uint

const (
	BufferFlagLive = BufferFlags(1 << iota)
	BufferFlagDiscont
	BufferFlagDeltaUnit
)

func (f BufferFlags) Has(flag BufferFlags) bool {
	return f&flag == flag
}

// Buffer is a chunk of media travelling through the pipeline.
//
// OnRelease (if set) is called exactly once, when the last user of the
// buffer calls Release.
type Buffer struct {
	Data     []byte
	Offset   uint64
	PTS      ClockTime
	DTS      ClockTime
	Duration ClockTime
	Flags    BufferFlags

	OnRelease   func()
	releaseOnce sync.Once
}

const BufferOffsetNone = uint64(1<<64 - 1)

func NewBuffer(data []byte) *Buffer {
	return &Buffer{
		Data:     data,
		Offset:   BufferOffsetNone,
		PTS:      ClockTimeNone,
		DTS:      ClockTimeNone,
		Duration: ClockTimeNone,
	}
}

func (b *Buffer) String() string {
	return fmt.Sprintf("Buffer(len:%d, offset:%d, pts:%s, dur:%s, flags:0x%x)", len(b.Data), b.Offset, b.PTS, b.Duration, uint(b.Flags))
}

func (b *Buffer) Release() {
	b.releaseOnce.Do(func() {
		if b.OnRelease != nil {
			b.OnRelease()
		}
	})
}
