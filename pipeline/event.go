// event.go provides the events travelling along the pads.

package pipeline

import "fmt"

type Event interface {
	fmt.Stringer
	isEvent()
}

type EventFlushStart struct{}

type EventFlushStop struct {
	ResetTime bool
}

type EventEOS struct{}

type EventSegment struct {
	Segment Segment
}

type EventSeek struct {
	Rate      float64
	Format    Format
	Flags     SeekFlags
	StartType SeekType
	Start     int64
	StopType  SeekType
	Stop      int64
}

// EventQoS is the quality-of-service feedback sent upstream.
type EventQoS struct {
	Type       QoSType
	Proportion float64
	Diff       int64
	Timestamp  ClockTime
}

var (
	_ Event = (*EventFlushStart)(nil)
	_ Event = (*EventFlushStop)(nil)
	_ Event = (*EventEOS)(nil)
	_ Event = (*EventSegment)(nil)
	_ Event = (*EventSeek)(nil)
	_ Event = (*EventQoS)(nil)
)

func (*EventFlushStart) isEvent() {}
func (*EventFlushStop) isEvent()  {}
func (*EventEOS) isEvent()        {}
func (*EventSegment) isEvent()    {}
func (*EventSeek) isEvent()       {}
func (*EventQoS) isEvent()        {}

func (*EventFlushStart) String() string { return "flush-start" }
func (e *EventFlushStop) String() string {
	return fmt.Sprintf("flush-stop(reset:%t)", e.ResetTime)
}
func (*EventEOS) String() string { return "eos" }
func (e *EventSegment) String() string {
	return fmt.Sprintf("segment(%s)", e.Segment)
}
func (e *EventSeek) String() string {
	return fmt.Sprintf(
		"seek(rate:%g, format:%s, flags:0x%x, start:%d/%d, stop:%d/%d)",
		e.Rate, e.Format, uint(e.Flags), e.StartType, e.Start, e.StopType, e.Stop,
	)
}
func (e *EventQoS) String() string {
	return fmt.Sprintf("qos(%s, proportion:%g, diff:%d, ts:%s)", e.Type, e.Proportion, e.Diff, e.Timestamp)
}
