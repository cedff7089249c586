// Package call manages outbound calls: INVITE origination, the response
// driven lifecycle, and in-dialog requests (ACK, CANCEL, BYE, INFO).
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/icholy/digest"

	"github.com/sebas/dialout/internal/config"
	"github.com/sebas/dialout/internal/events"
	"github.com/sebas/dialout/internal/metrics"
	"github.com/sebas/dialout/internal/ua/stack"
)

var (
	// ErrCallNotFound means no call with the given ID exists
	ErrCallNotFound = errors.New("call not found")
	// ErrNotAnswered means the operation needs an answered call
	ErrNotAnswered = errors.New("call is not answered")
	// ErrCallExists means a call with the same ID is already tracked
	ErrCallExists = errors.New("call already exists")
)

// ManagerConfig holds call manager dependencies.
type ManagerConfig struct {
	Requester stack.Requester
	Config    *config.Config
	Metrics   *metrics.Metrics
	Events    *events.Builder

	// Dispatch receives every response from transactions this manager
	// starts. The engine points it at the router; nil means responses
	// come straight back to HandleResponse.
	Dispatch func(*sip.Response)

	// Emit publishes lifecycle events. nil logs them.
	Emit func(events.Event)
}

// Manager owns all outbound calls for one engine.
type Manager struct {
	cfg       *config.Config
	requester stack.Requester
	metrics   *metrics.Metrics
	events    *events.Builder
	dispatch  func(*sip.Response)
	emit      func(events.Event)

	mu    sync.RWMutex
	calls map[string]*Call
}

// NewManager creates a call manager.
func NewManager(mc ManagerConfig) *Manager {
	m := &Manager{
		cfg:       mc.Config,
		requester: mc.Requester,
		metrics:   mc.Metrics,
		events:    mc.Events,
		dispatch:  mc.Dispatch,
		emit:      mc.Emit,
		calls:     make(map[string]*Call),
	}
	if m.dispatch == nil {
		m.dispatch = m.HandleResponse
	}
	if m.emit == nil {
		m.emit = func(ev events.Event) {
			slog.Debug("[Call] Event", "subject", ev.Subject())
		}
	}
	if m.events == nil {
		m.events = events.NewBuilder("")
	}
	return m
}

// MakeCall originates an outbound call to the destination. Destination
// is either a full SIP URI or a bare extension resolved against the
// registrar. The returned call is in the initiating state; it progresses
// asynchronously as responses arrive.
//
// The INVITE transaction lives as long as ctx, so callers pass the
// engine lifetime context, not a request-scoped one.
func (m *Manager) MakeCall(ctx context.Context, destination string) (*Call, error) {
	target, err := m.parseDestination(destination)
	if err != nil {
		return nil, fmt.Errorf("invalid destination %q: %w", destination, err)
	}

	callID := uuid.New().String()
	localTag := uuid.New().String()[:8]

	c := newCall(callID, destination, localTag)

	invite, err := m.buildINVITE(c, target, 1)
	if err != nil {
		return nil, fmt.Errorf("build INVITE: %w", err)
	}
	c.invite = invite

	m.mu.Lock()
	if _, exists := m.calls[callID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrCallExists, callID)
	}
	m.calls[callID] = c
	m.mu.Unlock()
	m.metrics.CallsActive.Inc()

	tx, err := m.requester.Request(ctx, invite)
	if err != nil {
		c.finalize(StateFailed, 503, "Transaction failed")
		m.recordTerminal(c)
		return nil, fmt.Errorf("send INVITE: %w", err)
	}

	m.emit(m.events.Call(events.CallInitiated, callID, destination, m.localURI()))
	slog.Info("[Call] INVITE sent", "call_id", callID, "target", target.String())

	go m.forward(tx)
	return c, nil
}

// forward pushes transaction responses into the dispatch path.
func (m *Manager) forward(tx stack.ClientTx) {
	for {
		select {
		case resp := <-tx.Responses():
			if resp == nil {
				return
			}
			m.dispatch(resp)
		case <-tx.Done():
			return
		}
	}
}

// HandleResponse processes one response routed to the call manager.
// Responses for unknown calls are dropped without any reply on the wire.
func (m *Manager) HandleResponse(resp *sip.Response) {
	callIDHdr := resp.CallID()
	if callIDHdr == nil {
		slog.Debug("[Call] Response without Call-ID dropped")
		m.metrics.ResponsesDropped.Inc()
		return
	}
	callID := callIDHdr.Value()

	m.mu.RLock()
	c, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		slog.Debug("[Call] Response for unknown call dropped", "call_id", callID, "status", resp.StatusCode)
		m.metrics.ResponsesDropped.Inc()
		return
	}

	cseq := resp.CSeq()
	if cseq == nil {
		slog.Debug("[Call] Response without CSeq dropped", "call_id", callID)
		return
	}

	switch cseq.MethodName {
	case sip.INVITE:
		m.handleInviteResponse(c, resp)
	case sip.BYE:
		slog.Debug("[Call] BYE response", "call_id", callID, "status", resp.StatusCode)
	case sip.CANCEL:
		slog.Debug("[Call] CANCEL response", "call_id", callID, "status", resp.StatusCode)
	case sip.INFO:
		slog.Debug("[Call] INFO response", "call_id", callID, "status", resp.StatusCode)
	default:
		slog.Debug("[Call] Response for unexpected method ignored",
			"call_id", callID, "method", cseq.MethodName, "status", resp.StatusCode)
	}
}

// handleInviteResponse drives the call state machine from INVITE responses.
func (m *Manager) handleInviteResponse(c *Call, resp *sip.Response) {
	status := int(resp.StatusCode)

	if c.State().IsTerminal() {
		slog.Debug("[Call] Response after termination ignored", "call_id", c.id, "status", status)
		return
	}

	if status >= 200 {
		c.setLastResponse(resp)
	}

	switch {
	case status == 100:
		slog.Debug("[Call] 100 Trying", "call_id", c.id)

	case status == 180 || status == 181 || status == 183:
		if c.transitionTo(StateRinging) {
			slog.Info("[Call] Ringing", "call_id", c.id, "status", status)
			m.emit(m.events.Call(events.CallRinging, c.id, c.destination, m.localURI()))
		}

	case status >= 200 && status < 300:
		m.handle2xx(c, resp)

	case status == 401 || status == 407:
		m.handleAuthChallenge(c, resp, status)

	case status == 486:
		slog.Info("[Call] Busy", "call_id", c.id)
		if c.finalize(StateEnded, status, "Busy") {
			m.recordTerminal(c)
			ev := m.events.Call(events.CallEnded, c.id, c.destination, m.localURI())
			ev.SIPStatus = status
			ev.Reason = "Busy"
			m.emit(ev)
		}

	case status == 487:
		if c.finalize(StateEnded, status, "Request Cancelled") {
			m.recordTerminal(c)
			ev := m.events.Call(events.CallEnded, c.id, c.destination, m.localURI())
			ev.SIPStatus = status
			ev.Reason = "Request Cancelled"
			m.emit(ev)
		}

	case status >= 300:
		reason := fmt.Sprintf("%d %s", status, resp.Reason)
		slog.Info("[Call] Call rejected", "call_id", c.id, "status", status, "reason", resp.Reason)
		if c.finalize(StateFailed, status, reason) {
			m.recordTerminal(c)
			ev := m.events.Call(events.CallFailed, c.id, c.destination, m.localURI())
			ev.SIPStatus = status
			ev.Reason = reason
			m.emit(ev)
		}
	}
}

// handle2xx ACKs the 200 OK and marks the call answered.
func (m *Manager) handle2xx(c *Call, resp *sip.Response) {
	// Remote tag from the To header identifies the dialog from here on
	var remoteTag string
	if to := resp.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			remoteTag = tag
		}
	}
	var target sip.Uri
	hasTarget := false
	if contact := resp.Contact(); contact != nil {
		target = contact.Address
		hasTarget = true
	}
	c.setRemoteDialog(remoteTag, target, hasTarget)

	if err := m.sendACK(c, resp); err != nil {
		slog.Error("[Call] Failed to send ACK", "call_id", c.id, "error", err)
		// The 200 OK still answered the call, ACK failure does not undo that
	}

	if c.transitionTo(StateAnswered) {
		slog.Info("[Call] Call answered", "call_id", c.id, "remote_tag", remoteTag)
		m.emit(m.events.Call(events.CallAnswered, c.id, c.destination, m.localURI()))
	}
}

// handleAuthChallenge re-sends the INVITE once with digest credentials.
// The retry does not count as a new call attempt; CSeq advances by one
// inside the same dialog-forming request.
func (m *Manager) handleAuthChallenge(c *Call, resp *sip.Response, status int) {
	if m.cfg.Password == "" || !c.markAuthRetried() {
		reason := fmt.Sprintf("%d %s", status, resp.Reason)
		slog.Warn("[Call] Authentication failed", "call_id", c.id, "status", status)
		if c.finalize(StateFailed, status, reason) {
			m.recordTerminal(c)
			ev := m.events.Call(events.CallFailed, c.id, c.destination, m.localURI())
			ev.SIPStatus = status
			ev.Reason = reason
			m.emit(ev)
		}
		return
	}

	challengeHeader := "WWW-Authenticate"
	authHeader := "Authorization"
	if status == 407 {
		challengeHeader = "Proxy-Authenticate"
		authHeader = "Proxy-Authorization"
	}

	hdr := resp.GetHeader(challengeHeader)
	if hdr == nil {
		slog.Error("[Call] Challenge response without challenge header", "call_id", c.id, "status", status)
		c.finalize(StateFailed, status, "Malformed challenge")
		m.recordTerminal(c)
		return
	}

	chal, err := digest.ParseChallenge(hdr.Value())
	if err != nil {
		slog.Error("[Call] Failed to parse challenge", "call_id", c.id, "error", err)
		c.finalize(StateFailed, status, "Malformed challenge")
		m.recordTerminal(c)
		return
	}

	target := c.invite.Recipient
	cred, err := digest.Digest(chal, digest.Options{
		Method:   sip.INVITE.String(),
		URI:      target.String(),
		Username: m.cfg.Username,
		Password: m.cfg.Password,
	})
	if err != nil {
		slog.Error("[Call] Failed to compute digest", "call_id", c.id, "error", err)
		c.finalize(StateFailed, status, "Digest failure")
		m.recordTerminal(c)
		return
	}

	seq := c.nextCSeq()
	retry, err := m.buildINVITE(c, target, seq)
	if err != nil {
		slog.Error("[Call] Failed to rebuild INVITE", "call_id", c.id, "error", err)
		c.finalize(StateFailed, status, "Internal error")
		m.recordTerminal(c)
		return
	}
	retry.AppendHeader(sip.NewHeader(authHeader, cred.String()))
	c.mu.Lock()
	c.invite = retry
	c.mu.Unlock()

	tx, err := m.requester.Request(context.Background(), retry)
	if err != nil {
		slog.Error("[Call] Failed to re-send INVITE", "call_id", c.id, "error", err)
		c.finalize(StateFailed, status, "Transaction failed")
		m.recordTerminal(c)
		return
	}

	slog.Info("[Call] INVITE re-sent with credentials", "call_id", c.id, "cseq", seq)
	go m.forward(tx)
}

// Hangup terminates the call: BYE when answered, CANCEL while pending.
// The call always lands in a terminal state, even when the BYE or
// CANCEL could not be sent. Hanging up a finished call is a no-op.
func (m *Manager) Hangup(callID string) error {
	m.mu.RLock()
	c, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		return ErrCallNotFound
	}

	var sendErr error
	var reason string

	switch c.State() {
	case StateAnswered:
		reason = "Normal Clearing"
		if sendErr = m.sendBYE(c); sendErr != nil {
			slog.Error("[Call] Failed to send BYE", "call_id", callID, "error", sendErr)
		}

	case StateInitiating, StateRinging:
		reason = "Cancelled"
		if sendErr = m.sendCANCEL(c); sendErr != nil {
			slog.Error("[Call] Failed to send CANCEL", "call_id", callID, "error", sendErr)
		}

	default:
		// Already over
		slog.Debug("[Call] Hangup on finished call ignored", "call_id", callID, "state", c.State())
		return nil
	}

	if c.finalize(StateEnded, 0, reason) {
		m.recordTerminal(c)
		ev := m.events.Call(events.CallEnded, c.id, c.destination, m.localURI())
		ev.Reason = reason
		m.emit(ev)
	}
	return sendErr
}

// SendDTMF sends the digits in one INFO request using dtmf-relay.
// The call must be answered.
func (m *Manager) SendDTMF(callID, digits string) error {
	m.mu.RLock()
	c, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		return ErrCallNotFound
	}
	if c.State() != StateAnswered {
		return fmt.Errorf("%w: call %s is %s", ErrNotAnswered, callID, c.State())
	}

	info, err := m.buildInDialogRequest(c, sip.INFO)
	if err != nil {
		return fmt.Errorf("build INFO: %w", err)
	}
	contentType := sip.ContentTypeHeader("application/dtmf-relay")
	info.AppendHeader(&contentType)
	info.SetBody([]byte(fmt.Sprintf("Signal=%s\r\nDuration=100", digits)))

	tx, err := m.requester.Request(context.Background(), info)
	if err != nil {
		return fmt.Errorf("send INFO: %w", err)
	}
	go m.forward(tx)

	m.metrics.DTMFSent.Inc()
	slog.Info("[Call] DTMF sent", "call_id", callID, "digits", digits)
	return nil
}

// HandleInboundBye handles a BYE from the remote party. A BYE for an
// unknown dialog gets 481; a known one gets 200 and ends the call.
func (m *Manager) HandleInboundBye(req *sip.Request, tx stack.Responder) {
	callIDHdr := req.CallID()
	if callIDHdr == nil {
		_ = tx.Respond(sip.NewResponseFromRequest(req, 400, "Missing Call-ID", nil))
		return
	}
	callID := callIDHdr.Value()

	// Always answer 200; a stale BYE retransmission deserves closure
	// whether or not the dialog is still tracked.
	if err := tx.Respond(sip.NewResponseFromRequest(req, 200, "OK", nil)); err != nil {
		slog.Error("[Call] Failed to respond to BYE", "call_id", callID, "error", err)
	}

	m.mu.RLock()
	c, ok := m.calls[callID]
	m.mu.RUnlock()
	if !ok {
		slog.Debug("[Call] BYE for unknown call", "call_id", callID)
		return
	}

	if c.finalize(StateEnded, 0, "Remote Hangup") {
		slog.Info("[Call] Remote party hung up", "call_id", callID)
		m.recordTerminal(c)
		ev := m.events.Call(events.CallEnded, c.id, c.destination, m.localURI())
		ev.Reason = "Remote Hangup"
		m.emit(ev)
	}
}

// Get returns the call with the given ID.
func (m *Manager) Get(callID string) (*Call, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.calls[callID]
	return c, ok
}

// All returns every call the manager knows about.
func (m *Manager) All() []*Call {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Call, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c)
	}
	return out
}

// ActiveCount returns the number of calls in a non-terminal state.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.calls {
		if !c.State().IsTerminal() {
			n++
		}
	}
	return n
}

// Shutdown hangs up every live call.
func (m *Manager) Shutdown() {
	for _, c := range m.All() {
		if !c.State().IsTerminal() {
			if err := m.Hangup(c.ID()); err != nil {
				slog.Warn("[Call] Shutdown hangup failed", "call_id", c.ID(), "error", err)
			}
		}
	}
}

// recordTerminal updates metrics once per call termination.
func (m *Manager) recordTerminal(c *Call) {
	m.metrics.CallsActive.Dec()
	m.metrics.CallsTotal.WithLabelValues(c.State().String()).Inc()
	if d := c.Duration(); d > 0 {
		m.metrics.CallDuration.Observe(d.Seconds())
	}
}

// parseDestination resolves a dial string to a SIP URI. Bare dial
// strings are normalized to digits only ("+1 (555) 012-3456" dials
// 15550123456) and resolve against the registrar.
func (m *Manager) parseDestination(dest string) (sip.Uri, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return sip.Uri{}, fmt.Errorf("empty destination")
	}

	if strings.HasPrefix(dest, "sip:") || strings.HasPrefix(dest, "sips:") || strings.Contains(dest, "@") {
		raw := dest
		if !strings.HasPrefix(raw, "sip:") && !strings.HasPrefix(raw, "sips:") {
			raw = "sip:" + raw
		}
		var uri sip.Uri
		if err := sip.ParseUri(raw, &uri); err != nil {
			return sip.Uri{}, err
		}
		return uri, nil
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, dest)
	if digits == "" {
		return sip.Uri{}, fmt.Errorf("no digits in destination")
	}

	return sip.Uri{
		Scheme: "sip",
		User:   digits,
		Host:   m.cfg.RegistrarHost,
		Port:   m.cfg.RegistrarPort,
	}, nil
}

func (m *Manager) localURI() string {
	return fmt.Sprintf("sip:%s@%s:%d", m.cfg.Username, m.cfg.AdvertiseAddr, m.cfg.BindPort)
}

// buildINVITE constructs the dialog-forming INVITE with the static SDP offer.
func (m *Manager) buildINVITE(c *Call, target sip.Uri, seq uint32) (*sip.Request, error) {
	sdpBody, err := BuildOffer(m.cfg.Username, m.cfg.AdvertiseAddr, m.cfg.MediaPort)
	if err != nil {
		return nil, fmt.Errorf("build SDP offer: %w", err)
	}

	invite := sip.NewRequest(sip.INVITE, target)

	maxFwd := sip.MaxForwardsHeader(70)
	invite.AppendHeader(&maxFwd)

	fromURI := sip.Uri{
		Scheme: "sip",
		User:   m.cfg.Username,
		Host:   m.cfg.AdvertiseAddr,
		Port:   m.cfg.BindPort,
	}
	fromParams := sip.NewParams()
	fromParams.Add("tag", c.localTag)
	fromHdr := &sip.FromHeader{
		DisplayName: m.cfg.DisplayName,
		Address:     fromURI,
		Params:      fromParams,
	}
	invite.AppendHeader(fromHdr)

	toHdr := &sip.ToHeader{
		Address: target,
		Params:  sip.NewParams(),
	}
	invite.AppendHeader(toHdr)

	callIDHdr := sip.CallIDHeader(c.id)
	invite.AppendHeader(&callIDHdr)

	cseqHdr := &sip.CSeqHeader{
		SeqNo:      seq,
		MethodName: sip.INVITE,
	}
	invite.AppendHeader(cseqHdr)

	contactHdr := &sip.ContactHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   m.cfg.Username,
			Host:   m.cfg.AdvertiseAddr,
			Port:   m.cfg.BindPort,
		},
	}
	invite.AppendHeader(contactHdr)

	contentType := sip.ContentTypeHeader("application/sdp")
	invite.AppendHeader(&contentType)
	invite.SetBody(sdpBody)

	// All requests go through the registrar acting as outbound proxy
	invite.SetDestination(m.cfg.RegistrarAddr())

	return invite, nil
}

// sendACK acknowledges a 2xx. The ACK is a standalone request sent
// straight through the transport, with the Request-URI taken from the
// 2xx Contact (or its From URI when no Contact is present) and the Via
// reused from the INVITE.
func (m *Manager) sendACK(c *Call, resp *sip.Response) error {
	requestURI := c.invite.Recipient
	if contact := resp.Contact(); contact != nil {
		requestURI = contact.Address
	} else if from := resp.From(); from != nil {
		requestURI = from.Address
	}

	ack := sip.NewRequest(sip.ACK, requestURI)

	sip.CopyHeaders("Via", c.invite, ack)
	sip.CopyHeaders("From", c.invite, ack)
	sip.CopyHeaders("Call-ID", c.invite, ack)

	if to := resp.To(); to != nil {
		toHdr := &sip.ToHeader{
			DisplayName: to.DisplayName,
			Address:     to.Address,
			Params:      to.Params,
		}
		ack.AppendHeader(toHdr)
	}

	if cseq := c.invite.CSeq(); cseq != nil {
		ackCSeq := &sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.ACK,
		}
		ack.AppendHeader(ackCSeq)
	}

	maxFwd := sip.MaxForwardsHeader(70)
	ack.AppendHeader(&maxFwd)

	// Send the ACK back to where the 2xx came from
	destAddr := resp.Source()
	if destAddr == "" {
		if via := resp.Via(); via != nil {
			if received, ok := via.Params.Get("received"); ok {
				rport := via.Port
				if rportStr, ok := via.Params.Get("rport"); ok {
					_, _ = fmt.Sscanf(rportStr, "%d", &rport)
				}
				destAddr = fmt.Sprintf("%s:%d", received, rport)
			} else {
				destAddr = fmt.Sprintf("%s:%d", via.Host, via.Port)
			}
		}
	}
	if destAddr == "" {
		destAddr = m.cfg.RegistrarAddr()
	}
	ack.SetDestination(destAddr)

	if err := m.requester.Write(ack); err != nil {
		return fmt.Errorf("write ACK: %w", err)
	}
	slog.Debug("[Call] ACK sent", "call_id", c.id, "dest", destAddr)
	return nil
}

// sendCANCEL cancels the pending INVITE. Via, From, To, and Call-ID
// mirror the INVITE; the CSeq keeps the INVITE's number with the
// CANCEL method.
func (m *Manager) sendCANCEL(c *Call) error {
	cancelReq := sip.NewRequest(sip.CANCEL, c.invite.Recipient)

	sip.CopyHeaders("Via", c.invite, cancelReq)
	sip.CopyHeaders("From", c.invite, cancelReq)
	sip.CopyHeaders("To", c.invite, cancelReq)
	sip.CopyHeaders("Call-ID", c.invite, cancelReq)

	if cseq := c.invite.CSeq(); cseq != nil {
		cancelCSeq := &sip.CSeqHeader{
			SeqNo:      cseq.SeqNo,
			MethodName: sip.CANCEL,
		}
		cancelReq.AppendHeader(cancelCSeq)
	}

	maxFwd := sip.MaxForwardsHeader(70)
	cancelReq.AppendHeader(&maxFwd)
	cancelReq.SetDestination(m.cfg.RegistrarAddr())

	tx, err := m.requester.Request(context.Background(), cancelReq)
	if err != nil {
		return fmt.Errorf("send CANCEL: %w", err)
	}
	go m.forward(tx)

	slog.Info("[Call] CANCEL sent", "call_id", c.id)
	return nil
}

// sendBYE terminates the answered call. Request-URI is the remote
// target from the 200 OK Contact.
func (m *Manager) sendBYE(c *Call) error {
	bye, err := m.buildInDialogRequest(c, sip.BYE)
	if err != nil {
		return fmt.Errorf("build BYE: %w", err)
	}

	tx, err := m.requester.Request(context.Background(), bye)
	if err != nil {
		return fmt.Errorf("send BYE: %w", err)
	}
	go m.forward(tx)

	slog.Info("[Call] BYE sent", "call_id", c.id)
	return nil
}

// buildInDialogRequest constructs a request inside the established
// dialog: From carries our tag, To carries the remote tag, and the
// sequence number advances past the INVITE's.
func (m *Manager) buildInDialogRequest(c *Call, method sip.RequestMethod) (*sip.Request, error) {
	c.mu.RLock()
	requestURI := c.invite.Recipient
	if c.hasRemoteTarget {
		requestURI = c.remoteTarget
	}
	remoteTag := c.remoteTag
	var toURI sip.Uri
	if to := c.invite.To(); to != nil {
		toURI = to.Address
	} else {
		toURI = requestURI
	}
	var fromURI sip.Uri
	var fromDisplay string
	if from := c.invite.From(); from != nil {
		fromURI = from.Address
		fromDisplay = from.DisplayName
	}
	localTag := c.localTag
	c.mu.RUnlock()

	req := sip.NewRequest(method, requestURI)

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	fromParams := sip.NewParams()
	fromParams.Add("tag", localTag)
	fromHdr := &sip.FromHeader{
		DisplayName: fromDisplay,
		Address:     fromURI,
		Params:      fromParams,
	}
	req.AppendHeader(fromHdr)

	toParams := sip.NewParams()
	if remoteTag != "" {
		toParams.Add("tag", remoteTag)
	}
	toHdr := &sip.ToHeader{
		Address: toURI,
		Params:  toParams,
	}
	req.AppendHeader(toHdr)

	callIDHdr := sip.CallIDHeader(c.id)
	req.AppendHeader(&callIDHdr)

	cseqHdr := &sip.CSeqHeader{
		SeqNo:      c.nextCSeq(),
		MethodName: method,
	}
	req.AppendHeader(cseqHdr)

	port := requestURI.Port
	if port == 0 {
		port = 5060
	}
	req.SetDestination(fmt.Sprintf("%s:%d", requestURI.Host, port))

	return req, nil
}
