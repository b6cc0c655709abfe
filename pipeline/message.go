package pipeline

import "fmt"

// Message is posted on the pipeline bus.
type Message interface {
	fmt.Stringer
	isMessage()
}

type MessageError struct {
	Source string
	Err    error
	Debug  string
}

type MessageWarning struct {
	Source string
	Err    error
	Debug  string
}

type MessageEOS struct{}

type MessageStateChanged struct {
	Source  string
	Old     State
	New     State
	Pending State
}

// MessageAsyncDone is posted when an asynchronous state change completes.
type MessageAsyncDone struct{}

func (*MessageError) isMessage()        {}
func (*MessageWarning) isMessage()      {}
func (*MessageEOS) isMessage()          {}
func (*MessageStateChanged) isMessage() {}
func (*MessageAsyncDone) isMessage()    {}

func (m *MessageError) String() string {
	return fmt.Sprintf("error from '%s': %v (%s)", m.Source, m.Err, m.Debug)
}
func (m *MessageWarning) String() string {
	return fmt.Sprintf("warning from '%s': %v (%s)", m.Source, m.Err, m.Debug)
}
func (*MessageEOS) String() string { return "eos" }
func (m *MessageStateChanged) String() string {
	return fmt.Sprintf("state of '%s' changed: %s -> %s (pending: %s)", m.Source, m.Old, m.New, m.Pending)
}
func (*MessageAsyncDone) String() string { return "async-done" }
