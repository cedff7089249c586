package call

import (
	"fmt"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"

	types "github.com/sebas/dialout/api/types/v1"
)

// Call is a single outbound call and its dialog state. All state access
// goes through the mutex; the SIP response path and the API path touch
// calls concurrently.
type Call struct {
	mu sync.RWMutex

	id          string
	destination string
	state       State
	reason      string
	sipStatus   int

	createdAt  time.Time
	answeredAt time.Time
	endedAt    time.Time

	// Dialog identification
	localTag  string
	remoteTag string

	// Remote target from the 200 OK Contact, Request-URI for in-dialog requests
	remoteTarget    sip.Uri
	hasRemoteTarget bool

	invite       *sip.Request
	lastResponse *sip.Response
	cseq         uint32
	authRetried  bool
}

func newCall(id, destination, localTag string) *Call {
	return &Call{
		id:          id,
		destination: destination,
		localTag:    localTag,
		state:       StateInitiating,
		createdAt:   time.Now(),
		cseq:        1,
	}
}

// ID returns the Call-ID.
func (c *Call) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Call) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Reason returns the termination reason, empty while the call is live.
func (c *Call) Reason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reason
}

// transitionTo moves the call to the next state if the transition is
// legal. Returns false when the call is already past it.
func (c *Call) transitionTo(next State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CanTransitionTo(next) {
		return false
	}
	c.state = next
	switch next {
	case StateAnswered:
		c.answeredAt = time.Now()
	case StateEnded, StateFailed:
		c.endedAt = time.Now()
	}
	return true
}

// finalize moves the call to a terminal state and records the outcome.
func (c *Call) finalize(next State, status int, reason string) bool {
	if !c.transitionTo(next) {
		return false
	}
	c.mu.Lock()
	c.reason = reason
	if status != 0 {
		c.sipStatus = status
	}
	c.mu.Unlock()
	return true
}

// nextCSeq reserves the next sequence number for an in-dialog request.
func (c *Call) nextCSeq() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cseq++
	return c.cseq
}

// setRemoteDialog records the remote tag and Contact from the 200 OK.
func (c *Call) setRemoteDialog(tag string, target sip.Uri, hasTarget bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteTag = tag
	if hasTarget {
		c.remoteTarget = target
		c.hasRemoteTarget = true
	}
}

// setLastResponse retains the most recent final response to the INVITE.
func (c *Call) setLastResponse(resp *sip.Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastResponse = resp
}

// LastResponse returns the retained final response, nil before one arrives.
func (c *Call) LastResponse() *sip.Response {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastResponse
}

// markAuthRetried flags the one-shot digest retry. Returns false if the
// retry was already spent.
func (c *Call) markAuthRetried() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authRetried {
		return false
	}
	c.authRetried = true
	return true
}

// Duration returns how long the call has been or was connected.
func (c *Call) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.answeredAt.IsZero() {
		return 0
	}
	if c.endedAt.IsZero() {
		return time.Since(c.answeredAt)
	}
	return c.endedAt.Sub(c.answeredAt)
}

// ToInfo returns the API view of the call.
func (c *Call) ToInfo() types.CallInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	info := types.CallInfo{
		CallID:      c.id,
		State:       c.state.String(),
		Destination: c.destination,
		CreatedAt:   c.createdAt.Format(time.RFC3339),
	}
	if c.invite != nil {
		if from := c.invite.From(); from != nil {
			info.LocalURI = from.Address.String()
		}
		if to := c.invite.To(); to != nil {
			info.RemoteURI = to.Address.String()
		}
	}
	if !c.answeredAt.IsZero() {
		info.AnsweredAt = c.answeredAt.Format(time.RFC3339)
		end := c.endedAt
		if end.IsZero() {
			end = time.Now()
		}
		info.Duration = int(end.Sub(c.answeredAt).Seconds())
	}
	if !c.endedAt.IsZero() {
		info.EndedAt = c.endedAt.Format(time.RFC3339)
	}
	if c.reason != "" {
		info.TerminateReason = c.reason
	}
	if c.reason == "" && c.sipStatus >= 300 {
		info.TerminateReason = fmt.Sprintf("SIP %d", c.sipStatus)
	}
	return info
}
