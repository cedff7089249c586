package events

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCallEventSubject(t *testing.T) {
	b := NewBuilder("node-1")
	ev := b.Call(CallAnswered, "abc-123", "sip:100@example.com", "sip:200@example.com")

	want := "dialout.calls.abc-123.answered"
	if got := ev.Subject(); got != want {
		t.Errorf("Subject() = %q, want %q", got, want)
	}
}

func TestRegistrationEventSubject(t *testing.T) {
	b := NewBuilder("node-1")

	up := b.Registration(true, 1, "")
	if got := up.Subject(); got != "dialout.registration.up" {
		t.Errorf("Subject() = %q, want dialout.registration.up", got)
	}

	down := b.Registration(false, 3, "403 Forbidden")
	if got := down.Subject(); got != "dialout.registration.down" {
		t.Errorf("Subject() = %q, want dialout.registration.down", got)
	}
	if down.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", down.Attempts)
	}
	if down.Registered {
		t.Error("Registered = true, want false")
	}
}

func TestCallEventFields(t *testing.T) {
	b := NewBuilder("node-1")
	ev := b.Call(CallInitiated, "call-1", "sip:100@pbx", "sip:ua@local")

	if ev.EventID == "" {
		t.Error("EventID is empty")
	}
	if ev.EventTime.IsZero() {
		t.Error("EventTime is zero")
	}
	if ev.NodeID != "node-1" {
		t.Errorf("NodeID = %q, want node-1", ev.NodeID)
	}
	if ev.Destination != "sip:100@pbx" {
		t.Errorf("Destination = %q", ev.Destination)
	}
}

func TestEventJSONShape(t *testing.T) {
	b := NewBuilder("node-1")
	ev := b.Call(CallEnded, "call-1", "sip:100@pbx", "sip:ua@local")
	ev.Reason = "Normal Clearing"
	ev.SIPStatus = 200
	ev.TalkSec = 12

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	s := string(data)

	for _, field := range []string{"event_id", "event_type", "event_time", "call_id", "reason", "sip_status", "talk_seconds"} {
		if !strings.Contains(s, `"`+field+`"`) {
			t.Errorf("JSON missing field %q: %s", field, s)
		}
	}
	// Zero-value fields are omitted.
	if strings.Contains(s, "ring_seconds") {
		t.Errorf("JSON should omit zero ring_seconds: %s", s)
	}
}

func TestEventIDsUnique(t *testing.T) {
	b := NewBuilder("node-1")
	e1 := b.Call(CallInitiated, "c", "d", "o")
	e2 := b.Call(CallInitiated, "c", "d", "o")
	if e1.EventID == e2.EventID {
		t.Error("expected unique event IDs")
	}
}
