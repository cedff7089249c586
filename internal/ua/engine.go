// Package ua assembles the user agent engine: the shared transport
// stack, the registration and call managers, and the router between
// them.
package ua

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/emiago/sipgo/sip"
	"github.com/prometheus/client_golang/prometheus"

	types "github.com/sebas/dialout/api/types/v1"
	"github.com/sebas/dialout/internal/config"
	"github.com/sebas/dialout/internal/events"
	"github.com/sebas/dialout/internal/metrics"
	"github.com/sebas/dialout/internal/ua/call"
	"github.com/sebas/dialout/internal/ua/registration"
	"github.com/sebas/dialout/internal/ua/router"
	"github.com/sebas/dialout/internal/ua/stack"
)

// ErrNotRegistered means the agent has no settled registration, so it
// cannot place calls.
var ErrNotRegistered = errors.New("not registered")

// Engine is the public face of the user agent. One engine per process;
// the transport stack underneath is shared.
type Engine struct {
	cfg      *config.Config
	stack    *stack.Stack
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	reg      *registration.Manager
	calls    *call.Manager
	router   *router.Router
}

// NewEngine builds the engine on top of the process-wide stack.
func NewEngine(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	st, err := stack.Acquire(cfg)
	if err != nil {
		return nil, fmt.Errorf("acquire sip stack: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	nodeID := fmt.Sprintf("%s@%s", cfg.Username, cfg.AdvertiseAddr)
	builder := events.NewBuilder(nodeID)
	emit := func(ev events.Event) {
		slog.Info("[Events] Publish", "subject", ev.Subject(), "event_id", ev.EventID)
	}

	e := &Engine{
		cfg:      cfg,
		stack:    st,
		registry: registry,
		metrics:  m,
	}

	e.reg = registration.NewManager(registration.ManagerConfig{
		Requester: st.Requester(),
		Config:    cfg,
		Metrics:   m,
		Events:    builder,
		Dispatch:  e.dispatchResponse,
		Emit:      emit,
	})
	e.calls = call.NewManager(call.ManagerConfig{
		Requester: st.Requester(),
		Config:    cfg,
		Metrics:   m,
		Events:    builder,
		Dispatch:  e.dispatchResponse,
		Emit:      emit,
	})
	e.router = router.New(e.reg, e.calls, e.calls)

	// Inbound requests. BYE ends calls; the rest are logged and left
	// to the transaction layer.
	st.OnRequest(sip.BYE, e.router.HandleRequest)
	for _, method := range []sip.RequestMethod{sip.INVITE, sip.OPTIONS, sip.NOTIFY, sip.INFO, sip.MESSAGE} {
		st.OnRequest(method, e.router.HandleRequest)
	}

	return e, nil
}

// dispatchResponse is the single funnel for every response any manager's
// transactions produce.
func (e *Engine) dispatchResponse(resp *sip.Response) {
	e.router.HandleResponse(resp)
}

// Registry exposes the metrics registry for the HTTP surface.
func (e *Engine) Registry() *prometheus.Registry {
	return e.registry
}

// Run brings the listener up and starts registering. It returns once
// the stack is serving; registration settles asynchronously.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.stack.Serve(ctx); err != nil {
		return fmt.Errorf("start sip stack: %w", err)
	}
	if err := e.reg.Start(ctx); err != nil {
		return fmt.Errorf("start registration: %w", err)
	}
	return nil
}

// MakeCall originates a call once registration has settled. An
// unregistered agent cannot place calls.
func (e *Engine) MakeCall(ctx context.Context, destination string) (types.DialResponse, error) {
	if err := e.reg.Await(ctx); err != nil {
		return types.DialResponse{}, fmt.Errorf("%w: %v", ErrNotRegistered, err)
	}
	c, err := e.calls.MakeCall(ctx, destination)
	if err != nil {
		return types.DialResponse{}, err
	}
	return types.DialResponse{CallID: c.ID(), State: c.State().String()}, nil
}

// Hangup ends the call. Hanging up a finished call is a no-op.
func (e *Engine) Hangup(callID string) error {
	return e.calls.Hangup(callID)
}

// SendDTMF sends digits on an answered call.
func (e *Engine) SendDTMF(callID, digits string) error {
	return e.calls.SendDTMF(callID, digits)
}

// GetCallStatus returns the API view of one call.
func (e *Engine) GetCallStatus(callID string) (types.CallInfo, error) {
	c, ok := e.calls.Get(callID)
	if !ok {
		return types.CallInfo{}, call.ErrCallNotFound
	}
	return c.ToInfo(), nil
}

// GetAllCalls returns the API view of every call.
func (e *Engine) GetAllCalls() []types.CallInfo {
	all := e.calls.All()
	out := make([]types.CallInfo, 0, len(all))
	for _, c := range all {
		out = append(out, c.ToInfo())
	}
	return out
}

// Status summarizes the engine for the HTTP API.
func (e *Engine) Status() types.StatusResponse {
	resp := types.StatusResponse{
		Registered:  e.reg.Registered(),
		Registrar:   e.cfg.RegistrarAddr(),
		Username:    e.cfg.Username,
		Transport:   e.cfg.Transport,
		ActiveCalls: e.calls.ActiveCount(),
	}
	for _, c := range e.calls.All() {
		resp.TotalCalls++
		switch c.State() {
		case call.StateFailed:
			resp.FailedCalls++
		case call.StateAnswered:
			resp.AnsweredCall++
		case call.StateEnded:
			if c.Duration() > 0 {
				resp.AnsweredCall++
			}
		}
	}
	return resp
}

// Shutdown hangs up live calls, deregisters, and tears the stack down.
func (e *Engine) Shutdown() {
	slog.Info("[Engine] Shutting down")
	e.calls.Shutdown()
	e.reg.Stop()
	e.stack.Close()
}
