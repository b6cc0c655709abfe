package pipeline

import (
	"fmt"
	"time"
)

// ClockTime is a timestamp in nanoseconds.
type ClockTime uint64

const ClockTimeNone = ClockTime(1<<64 - 1)

func ClockTimeFromDuration(d time.Duration) ClockTime {
	if d < 0 {
		return ClockTimeNone
	}
	return ClockTime(d)
}

func (t ClockTime) IsValid() bool {
	return t != ClockTimeNone
}

func (t ClockTime) Duration() time.Duration {
	return time.Duration(t)
}

func (t ClockTime) String() string {
	if !t.IsValid() {
		return "none"
	}
	return fmt.Sprintf("%v", t.Duration())
}
