package call

import "testing"

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from  State
		to    State
		valid bool
	}{
		{StateInitiating, StateRinging, true},
		{StateInitiating, StateAnswered, true},
		{StateInitiating, StateFailed, true},
		{StateInitiating, StateEnded, true},
		{StateRinging, StateAnswered, true},
		{StateRinging, StateFailed, true},
		{StateRinging, StateEnded, true},
		{StateAnswered, StateEnded, true},
		{StateAnswered, StateFailed, false},
		{StateAnswered, StateRinging, false},
		{StateEnded, StateInitiating, false},
		{StateEnded, StateFailed, false},
		{StateFailed, StateEnded, false},
		{StateRinging, StateInitiating, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.valid {
			t.Errorf("%s -> %s = %v, want %v", tt.from, tt.to, got, tt.valid)
		}
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateInitiating, StateRinging, StateAnswered} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
	for _, s := range []State{StateEnded, StateFailed} {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
}

func TestStateStrings(t *testing.T) {
	want := map[State]string{
		StateInitiating: "initiating",
		StateRinging:    "ringing",
		StateAnswered:   "answered",
		StateEnded:      "ended",
		StateFailed:     "failed",
	}
	for s, str := range want {
		if s.String() != str {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), str)
		}
	}
}
