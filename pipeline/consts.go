// consts.go provides the enumerations of the inner pipeline model.

package pipeline

import "fmt"

type State int

const (
	StateVoidPending = State(iota)
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "void-pending"
	case StateNull:
		return "null"
	case StateReady:
		return "ready"
	case StatePaused:
		return "paused"
	case StatePlaying:
		return "playing"
	}
	return fmt.Sprintf("unknown-state-%d", int(s))
}

type StateChangeReturn int

const (
	StateChangeFailure = StateChangeReturn(iota)
	StateChangeSuccess
	StateChangeAsync
	StateChangeNoPreroll
)

func (r StateChangeReturn) String() string {
	switch r {
	case StateChangeFailure:
		return "failure"
	case StateChangeSuccess:
		return "success"
	case StateChangeAsync:
		return "async"
	case StateChangeNoPreroll:
		return "no-preroll"
	}
	return fmt.Sprintf("unknown-state-change-return-%d", int(r))
}

// FlowReturn is the per-call data-flow status. Negative values stop the flow.
type FlowReturn int

const (
	FlowOK            = FlowReturn(0)
	FlowNotLinked     = FlowReturn(-1)
	FlowFlushing      = FlowReturn(-2)
	FlowEOS           = FlowReturn(-3)
	FlowNotNegotiated = FlowReturn(-4)
	FlowError         = FlowReturn(-5)
)

// IsFatal reports the statuses which terminate the stream with an error.
func (r FlowReturn) IsFatal() bool {
	return r == FlowError || r == FlowNotNegotiated
}

func (r FlowReturn) String() string {
	switch r {
	case FlowOK:
		return "ok"
	case FlowNotLinked:
		return "not-linked"
	case FlowFlushing:
		return "flushing"
	case FlowEOS:
		return "eos"
	case FlowNotNegotiated:
		return "not-negotiated"
	case FlowError:
		return "error"
	}
	return fmt.Sprintf("unknown-flow-return-%d", int(r))
}

type PadMode int

const (
	PadModeNone = PadMode(iota)
	PadModePush
	PadModePull
)

func (m PadMode) String() string {
	switch m {
	case PadModeNone:
		return "none"
	case PadModePush:
		return "push"
	case PadModePull:
		return "pull"
	}
	return fmt.Sprintf("unknown-pad-mode-%d", int(m))
}

type Format int

const (
	FormatUndefined = Format(iota)
	FormatDefault
	FormatBytes
	FormatTime
)

func (f Format) String() string {
	switch f {
	case FormatUndefined:
		return "undefined"
	case FormatDefault:
		return "default"
	case FormatBytes:
		return "bytes"
	case FormatTime:
		return "time"
	}
	return fmt.Sprintf("unknown-format-%d", int(f))
}

type SeekFlags uint

const (
	SeekFlagNone     = SeekFlags(0)
	SeekFlagFlush    = SeekFlags(1 << 0)
	SeekFlagAccurate = SeekFlags(1 << 1)
	SeekFlagKeyUnit  = SeekFlags(1 << 2)
	SeekFlagSegment  = SeekFlags(1 << 3)
)

type SeekType int

const (
	SeekTypeNone = SeekType(iota)
	SeekTypeSet
	SeekTypeEnd
)

type QoSType int

const (
	QoSTypeOverflow = QoSType(iota)
	QoSTypeUnderflow
	QoSTypeThrottle
)

func (t QoSType) String() string {
	switch t {
	case QoSTypeOverflow:
		return "overflow"
	case QoSTypeUnderflow:
		return "underflow"
	case QoSTypeThrottle:
		return "throttle"
	}
	return fmt.Sprintf("unknown-qos-type-%d", int(t))
}

type AutoplugSelectResult int

const (
	AutoplugSelectTry = AutoplugSelectResult(iota)
	AutoplugSelectExpose
	AutoplugSelectSkip
)
