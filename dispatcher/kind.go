package dispatcher

import "fmt"

// Kind tags the callback carried by an Envelope.
type Kind int

const (
	KindUndefined = Kind(iota)
	KindPadAdded
	KindPadRemoved
	KindNoMorePads
	KindUnknownType
	KindAutoplugSelect
	KindGetRange
	KindActivateMode
	KindSourceEvent
	KindSourceQuery
	KindChain
	KindSinkEvent
	KindBusMessage
	KindBufferRelease
)

func (k Kind) String() string {
	switch k {
	case KindUndefined:
		return "undefined"
	case KindPadAdded:
		return "pad-added"
	case KindPadRemoved:
		return "pad-removed"
	case KindNoMorePads:
		return "no-more-pads"
	case KindUnknownType:
		return "unknown-type"
	case KindAutoplugSelect:
		return "autoplug-select"
	case KindGetRange:
		return "getrange"
	case KindActivateMode:
		return "activate-mode"
	case KindSourceEvent:
		return "source-event"
	case KindSourceQuery:
		return "source-query"
	case KindChain:
		return "chain"
	case KindSinkEvent:
		return "sink-event"
	case KindBusMessage:
		return "bus-message"
	case KindBufferRelease:
		return "buffer-release"
	}
	return fmt.Sprintf("unknown-kind-%d", int(k))
}
