// Package registration keeps the account registered with the SIP
// registrar: it drives the REGISTER retry loop, answers digest
// challenges, and exposes a one-shot future that settles when the
// first registration succeeds or is finally rejected.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/icholy/digest"

	"github.com/sebas/dialout/internal/config"
	"github.com/sebas/dialout/internal/events"
	"github.com/sebas/dialout/internal/metrics"
	"github.com/sebas/dialout/internal/ua/stack"
)

// ErrRegistrationFailed wraps every terminal registration failure.
var ErrRegistrationFailed = errors.New("registration failed")

// ManagerConfig holds registration manager dependencies.
type ManagerConfig struct {
	Requester stack.Requester
	Config    *config.Config
	Metrics   *metrics.Metrics
	Events    *events.Builder

	// Dispatch receives responses from transactions this manager
	// starts. The engine points it at the router; nil short-circuits
	// back to HandleResponse.
	Dispatch func(*sip.Response)

	// Emit publishes registration events. nil logs them.
	Emit func(events.Event)
}

// Manager registers the configured account and keeps the outcome.
type Manager struct {
	cfg       *config.Config
	requester stack.Requester
	metrics   *metrics.Metrics
	events    *events.Builder
	dispatch  func(*sip.Response)
	emit      func(events.Event)

	outcome *future

	mu         sync.Mutex
	callID     string
	localTag   string
	cseq       uint32
	attempts   int
	challenged bool
	registered bool
	retryTimer *time.Timer
	stopped    bool
}

// NewManager creates a registration manager.
func NewManager(mc ManagerConfig) *Manager {
	m := &Manager{
		cfg:       mc.Config,
		requester: mc.Requester,
		metrics:   mc.Metrics,
		events:    mc.Events,
		dispatch:  mc.Dispatch,
		emit:      mc.Emit,
		outcome:   newFuture(),
		callID:    uuid.New().String(),
		localTag:  uuid.New().String()[:8],
	}
	if m.dispatch == nil {
		m.dispatch = m.HandleResponse
	}
	if m.emit == nil {
		m.emit = func(ev events.Event) {
			slog.Debug("[Registration] Event", "subject", ev.Subject())
		}
	}
	if m.events == nil {
		m.events = events.NewBuilder("")
	}
	return m
}

// retryInterval is how long to wait for a registrar before giving the
// attempt up. Development setups answer fast or not at all; production
// registrars over TCP get the most slack.
func retryInterval(environment, transport string) time.Duration {
	switch {
	case environment == config.EnvDevelopment && transport == "udp":
		return 5 * time.Second
	case environment == config.EnvDevelopment:
		return 10 * time.Second
	case transport == "udp":
		return 10 * time.Second
	default:
		return 20 * time.Second
	}
}

// Start sends the first REGISTER. The outcome arrives through Await.
func (m *Manager) Start(ctx context.Context) error {
	return m.sendRegister(ctx, false)
}

// Await blocks until the first registration succeeds or fails for good.
func (m *Manager) Await(ctx context.Context) error {
	return m.outcome.wait(ctx)
}

// Registered reports whether the account is currently registered.
func (m *Manager) Registered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered
}

// sendRegister sends one REGISTER. A reauth send answers a digest
// challenge and does not count against the attempt ceiling.
func (m *Manager) sendRegister(ctx context.Context, reauth bool) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	if !reauth {
		m.attempts++
		m.challenged = false
		m.metrics.RegisterAttempts.Inc()
	}
	m.cseq++
	seq := m.cseq
	attempt := m.attempts
	m.mu.Unlock()

	req := m.buildRegister(seq, m.cfg.RegisterExpiry)

	tx, err := m.requester.Request(ctx, req)
	if err != nil {
		return m.attemptFailed(ctx, fmt.Errorf("send REGISTER: %w", err))
	}

	slog.Info("[Registration] REGISTER sent",
		"registrar", m.cfg.RegistrarAddr(),
		"attempt", attempt,
		"cseq", seq,
		"reauth", reauth,
	)

	m.armRetryTimer(ctx)

	go m.forward(tx)
	return nil
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

// armRetryTimer restarts the no-answer timer for the current attempt.
func (m *Manager) armRetryTimer(ctx context.Context) {
	interval := retryInterval(m.cfg.Environment, m.cfg.Transport)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(interval, func() {
		m.onTimeout(ctx)
	})
}

func (m *Manager) onTimeout(ctx context.Context) {
	m.mu.Lock()
	done := m.registered || m.stopped
	m.mu.Unlock()
	if done || m.outcome.settled() {
		return
	}
	slog.Warn("[Registration] No answer from registrar", "registrar", m.cfg.RegistrarAddr())
	_ = m.attemptFailed(ctx, fmt.Errorf("no answer from %s", m.cfg.RegistrarAddr()))
}

// HandleResponse processes a REGISTER response. The router hands every
// response whose CSeq method is REGISTER here, and nowhere else.
func (m *Manager) HandleResponse(resp *sip.Response) {
	status := int(resp.StatusCode)

	switch {
	case status < 200:
		slog.Debug("[Registration] Provisional response", "status", status)

	case status < 300:
		m.handleSuccess()

	case status == 401 || status == 407:
		m.handleChallenge(resp, status)

	default:
		slog.Warn("[Registration] Rejected", "status", status, "reason", resp.Reason)
		_ = m.attemptFailed(context.Background(), fmt.Errorf("registrar answered %d %s", status, resp.Reason))
	}
}

func (m *Manager) handleSuccess() {
	m.mu.Lock()
	m.registered = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	attempts := m.attempts
	m.mu.Unlock()

	slog.Info("[Registration] Registered",
		"registrar", m.cfg.RegistrarAddr(),
		"user", m.cfg.Username,
		"expiry", m.cfg.RegisterExpiry,
	)
	m.metrics.Registered.Set(1)
	m.emit(m.events.Registration(true, attempts, ""))
	m.outcome.complete(nil)
}

// handleChallenge answers a digest challenge by re-sending the REGISTER
// with credentials and the next sequence number. A second challenge on
// the same attempt means the credentials are wrong.
func (m *Manager) handleChallenge(resp *sip.Response, status int) {
	m.mu.Lock()
	alreadyChallenged := m.challenged
	m.challenged = true
	m.mu.Unlock()

	if alreadyChallenged || m.cfg.Password == "" {
		slog.Warn("[Registration] Authentication rejected", "status", status)
		_ = m.attemptFailed(context.Background(), fmt.Errorf("authentication rejected with %d %s", status, resp.Reason))
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
		_ = m.attemptFailed(context.Background(), fmt.Errorf("challenge %d without %s header", status, challengeHeader))
		return
	}
	chal, err := digest.ParseChallenge(hdr.Value())
	if err != nil {
		_ = m.attemptFailed(context.Background(), fmt.Errorf("parse challenge: %w", err))
		return
	}

	cred, err := digest.Digest(chal, digest.Options{
		Method:   sip.REGISTER.String(),
		URI:      m.cfg.RegistrarHost,
		Username: m.cfg.Username,
		Password: m.cfg.Password,
	})
	if err != nil {
		_ = m.attemptFailed(context.Background(), fmt.Errorf("compute digest: %w", err))
		return
	}

	m.mu.Lock()
	m.cseq++
	seq := m.cseq
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return
	}

	req := m.buildRegister(seq, m.cfg.RegisterExpiry)
	req.AppendHeader(sip.NewHeader(authHeader, cred.String()))

	tx, err := m.requester.Request(context.Background(), req)
	if err != nil {
		_ = m.attemptFailed(context.Background(), fmt.Errorf("re-send REGISTER: %w", err))
		return
	}
	slog.Info("[Registration] REGISTER re-sent with credentials", "cseq", seq)
	go m.forward(tx)
}

// attemptFailed retries until the ceiling, then rejects the future with
// guidance matched to the environment.
func (m *Manager) attemptFailed(ctx context.Context, cause error) error {
	m.mu.Lock()
	if m.registered || m.stopped {
		m.mu.Unlock()
		return nil
	}
	attempts := m.attempts
	exhausted := attempts >= m.cfg.MaxRegisterTries
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.mu.Unlock()

	if m.outcome.settled() {
		return nil
	}

	if !exhausted {
		interval := retryInterval(m.cfg.Environment, m.cfg.Transport)
		slog.Warn("[Registration] Attempt failed, retrying",
			"attempt", attempts,
			"max", m.cfg.MaxRegisterTries,
			"retry_in", interval,
			"error", cause,
		)
		m.mu.Lock()
		m.retryTimer = time.AfterFunc(interval, func() {
			if err := m.sendRegister(ctx, false); err != nil {
				slog.Error("[Registration] Retry failed", "error", err)
			}
		})
		m.mu.Unlock()
		return nil
	}

	guidance := "verify the account credentials and registrar address with your provider"
	if m.cfg.Environment == config.EnvDevelopment {
		guidance = "check that the local PBX is running and reachable at " + m.cfg.RegistrarAddr()
	}
	err := fmt.Errorf("%w after %d attempts: %v (%s)", ErrRegistrationFailed, attempts, cause, guidance)

	slog.Error("[Registration] Giving up", "attempts", attempts, "error", cause)
	m.metrics.Registered.Set(0)
	m.emit(m.events.Registration(false, attempts, cause.Error()))
	m.outcome.complete(err)
	return err
}

// Stop deregisters if needed and halts the retry loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	wasRegistered := m.registered
	m.registered = false
	m.cseq++
	seq := m.cseq
	m.mu.Unlock()

	m.outcome.complete(fmt.Errorf("%w: shut down before completing", ErrRegistrationFailed))

	if wasRegistered {
		req := m.buildRegister(seq, 0)
		if _, err := m.requester.Request(context.Background(), req); err != nil {
			slog.Warn("[Registration] Deregister failed", "error", err)
		} else {
			slog.Info("[Registration] Deregistered")
		}
		m.metrics.Registered.Set(0)
	}
}

// buildRegister constructs a REGISTER for the configured account.
// Call-ID and From tag stay fixed for the whole session; only the
// sequence number moves.
func (m *Manager) buildRegister(seq uint32, expiry int) *sip.Request {
	registrarURI := sip.Uri{
		Scheme: "sip",
		Host:   m.cfg.RegistrarHost,
		Port:   m.cfg.RegistrarPort,
	}
	req := sip.NewRequest(sip.REGISTER, registrarURI)

	maxFwd := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxFwd)

	aor := sip.Uri{
		Scheme: "sip",
		User:   m.cfg.Username,
		Host:   m.cfg.RegistrarHost,
	}
	fromParams := sip.NewParams()
	fromParams.Add("tag", m.localTag)
	fromHdr := &sip.FromHeader{
		DisplayName: m.cfg.DisplayName,
		Address:     aor,
		Params:      fromParams,
	}
	req.AppendHeader(fromHdr)

	toHdr := &sip.ToHeader{
		Address: aor,
		Params:  sip.NewParams(),
	}
	req.AppendHeader(toHdr)

	callIDHdr := sip.CallIDHeader(m.callID)
	req.AppendHeader(&callIDHdr)

	cseqHdr := &sip.CSeqHeader{
		SeqNo:      seq,
		MethodName: sip.REGISTER,
	}
	req.AppendHeader(cseqHdr)

	contactHdr := &sip.ContactHeader{
		Address: sip.Uri{
			Scheme: "sip",
			User:   m.cfg.Username,
			Host:   m.cfg.AdvertiseAddr,
			Port:   m.cfg.BindPort,
		},
	}
	req.AppendHeader(contactHdr)

	expiresHdr := sip.ExpiresHeader(expiry)
	req.AppendHeader(&expiresHdr)

	req.SetDestination(m.cfg.RegistrarAddr())
	return req
}
