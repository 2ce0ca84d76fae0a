package accel

import "fmt"

// State is the lifecycle state of a TopLevel.
type State uint8

// Top level states.
const (
	StateUninitialized State = iota
	StateBuilt
	StateRefitting
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "Uninitialized"
	case StateBuilt:
		return "Built"
	case StateRefitting:
		return "Refitting"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
