package call

import "fmt"

// State represents the lifecycle state of an outbound call
type State int

const (
	// StateInitiating is the initial state after the INVITE is sent
	StateInitiating State = iota
	// StateRinging is after a 180/181 provisional response
	StateRinging
	// StateAnswered is after a 2xx final response was ACKed
	StateAnswered
	// StateEnded is the final state of a call that terminated normally
	StateEnded
	// StateFailed is the final state of a call that never connected
	StateFailed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateInitiating:
		return "initiating"
	case StateRinging:
		return "ringing"
	case StateAnswered:
		return "answered"
	case StateEnded:
		return "ended"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// validTransitions defines which state transitions are allowed.
// Answering straight from initiating is legal: some gateways skip the
// provisional phase entirely and answer with an immediate 200.
var validTransitions = map[State][]State{
	StateInitiating: {StateRinging, StateAnswered, StateEnded, StateFailed},
	StateRinging:    {StateAnswered, StateEnded, StateFailed},
	StateAnswered:   {StateEnded},
	StateEnded:      {},
	StateFailed:     {},
}

// CanTransitionTo checks if a transition from current state to next state is valid
func (s State) CanTransitionTo(next State) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true if this is a terminal state
func (s State) IsTerminal() bool {
	return s == StateEnded || s == StateFailed
}
