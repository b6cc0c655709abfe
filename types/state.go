// state.go defines the graph-visible filter states.

package types

import "fmt"

type State int

const (
	StateStopped = State(iota)
	StatePaused
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StateRunning:
		return "running"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
