package types

import (
	"fmt"
	"time"
)

// ReferenceTime is the graph time unit: 100 nanoseconds.
type ReferenceTime int64

const (
	ReferenceTimeUnitsPerSecond = ReferenceTime(10_000_000)

	// ReferenceTimeMax is used as an open-ended stop position.
	ReferenceTimeMax = ReferenceTime(1<<63 - 1)
)

func ReferenceTimeFromDuration(d time.Duration) ReferenceTime {
	return ReferenceTime(d / 100)
}

func (t ReferenceTime) Duration() time.Duration {
	return time.Duration(t) * 100
}

// Nanoseconds returns the value in nanoseconds, saturated to the int64 range.
func (t ReferenceTime) Nanoseconds() int64 {
	const limit = ReferenceTime((1<<63 - 1) / 100)
	switch {
	case t > limit:
		return 1<<63 - 1
	case t < -limit:
		return -1 << 63
	}
	return int64(t) * 100
}

func (t ReferenceTime) String() string {
	if t == ReferenceTimeMax {
		return "max"
	}
	return fmt.Sprintf("%v", t.Duration())
}
