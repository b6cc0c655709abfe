package pipeline

import "fmt"

// Segment maps stream timestamps onto running time.
type Segment struct {
	Format      Format
	Rate        float64
	AppliedRate float64
	Start       ClockTime
	Stop        ClockTime
	Time        ClockTime
	Base        ClockTime
	Position    ClockTime
}

func NewTimeSegment() Segment {
	return Segment{
		Format:      FormatTime,
		Rate:        1,
		AppliedRate: 1,
		Stop:        ClockTimeNone,
	}
}

func (s Segment) String() string {
	return fmt.Sprintf(
		"Segment(%s, rate:%g, applied-rate:%g, start:%s, stop:%s, time:%s, base:%s)",
		s.Format, s.Rate, s.AppliedRate, s.Start, s.Stop, s.Time, s.Base,
	)
}
