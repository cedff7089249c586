// Package events defines the JSON call lifecycle events emitted by the
// dialout engine. Events carry everything a downstream consumer needs to
// reconstruct a call history without access to engine internals.
//
// Subject naming:
//
//	dialout.calls.<call_id>.<suffix>   - per-call events
//	dialout.registration.<state>       - registration events
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of event.
type EventType string

const (
	CallInitiated EventType = "call.initiated"
	CallRinging   EventType = "call.ringing"
	CallAnswered  EventType = "call.answered"
	CallEnded     EventType = "call.ended"
	CallFailed    EventType = "call.failed"

	RegistrationUp   EventType = "registration.up"
	RegistrationDown EventType = "registration.down"
)

// suffix returns the subject suffix for the event type.
func (t EventType) suffix() string {
	switch t {
	case CallInitiated:
		return "initiated"
	case CallRinging:
		return "ringing"
	case CallAnswered:
		return "answered"
	case CallEnded:
		return "ended"
	case CallFailed:
		return "failed"
	default:
		return string(t)
	}
}

// SubjectPrefix is the root of all dialout subjects.
const SubjectPrefix = "dialout"

// Event is a single call or registration lifecycle record.
type Event struct {
	EventID   string    `json:"event_id"`
	EventType EventType `json:"event_type"`
	EventTime time.Time `json:"event_time"`
	NodeID    string    `json:"node_id,omitempty"`

	// Call context (empty for registration events)
	CallID      string `json:"call_id,omitempty"`
	Destination string `json:"destination,omitempty"`
	Origin      string `json:"origin,omitempty"`

	// Outcome
	Reason     string `json:"reason,omitempty"`
	SIPStatus  int    `json:"sip_status,omitempty"`
	RingSec    int    `json:"ring_seconds,omitempty"`
	TalkSec    int    `json:"talk_seconds,omitempty"`
	TotalSec   int    `json:"total_seconds,omitempty"`
	Registered bool   `json:"registered,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
}

// Subject returns the publish subject for the event.
// Example: "dialout.calls.abc-123.ended".
func (e Event) Subject() string {
	if e.CallID != "" {
		return fmt.Sprintf("%s.calls.%s.%s", SubjectPrefix, e.CallID, e.EventType.suffix())
	}
	return fmt.Sprintf("%s.%s", SubjectPrefix, string(e.EventType))
}

// Builder provides construction of events with consistent defaults.
type Builder struct {
	nodeID string
}

// NewBuilder creates an event builder. nodeID tags every event with the
// emitting process identity.
func NewBuilder(nodeID string) *Builder {
	return &Builder{nodeID: nodeID}
}

func (b *Builder) newEvent(t EventType) Event {
	return Event{
		EventID:   uuid.New().String(),
		EventType: t,
		EventTime: time.Now().UTC(),
		NodeID:    b.nodeID,
	}
}

// Call builds a call lifecycle event.
func (b *Builder) Call(t EventType, callID, destination, origin string) Event {
	ev := b.newEvent(t)
	ev.CallID = callID
	ev.Destination = destination
	ev.Origin = origin
	return ev
}

// Registration builds a registration state event.
func (b *Builder) Registration(up bool, attempts int, reason string) Event {
	t := RegistrationUp
	if !up {
		t = RegistrationDown
	}
	ev := b.newEvent(t)
	ev.Registered = up
	ev.Attempts = attempts
	ev.Reason = reason
	return ev
}
