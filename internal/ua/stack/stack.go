// Package stack owns the process-wide SIP transport stack. The stack
// binds one listening socket per process; every engine instance created
// afterwards shares it through Acquire.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/sebas/dialout/internal/config"
)

// ErrStackCorrupted is returned when the stack is flagged as started but
// its components are gone. The flag is cleared so a later Acquire can
// rebuild from scratch.
var ErrStackCorrupted = errors.New("sip stack marked started but components are missing")

// ClientTx is the subset of a SIP client transaction the engine consumes.
// sipgo's ClientTransaction satisfies it.
type ClientTx interface {
	Responses() <-chan *sip.Response
	Done() <-chan struct{}
	Terminate()
}

// Responder answers an inbound request. sipgo's ServerTransaction
// satisfies it.
type Responder interface {
	Respond(res *sip.Response) error
}

// Requester sends SIP requests, either transactionally or as bare
// datagram writes (ACK). Managers depend on this interface so tests can
// substitute a fake transport.
type Requester interface {
	Request(ctx context.Context, req *sip.Request) (ClientTx, error)
	Write(req *sip.Request) error
}

// sipgoRequester adapts *sipgo.Client to the Requester interface.
type sipgoRequester struct {
	client *sipgo.Client
}

func (r sipgoRequester) Request(ctx context.Context, req *sip.Request) (ClientTx, error) {
	return r.client.TransactionRequest(ctx, req)
}

func (r sipgoRequester) Write(req *sip.Request) error {
	return r.client.WriteRequest(req)
}

// Stack bundles the sipgo user agent, server, and client around one
// listening socket.
type Stack struct {
	ua     *sipgo.UserAgent
	srv    *sipgo.Server
	client *sipgo.Client
	cfg    *config.Config

	serveOnce sync.Once
	serveErr  error
	cancel    context.CancelFunc
}

var (
	mu      sync.Mutex
	global  *Stack
	started bool
)

// Acquire returns the process-wide stack, creating it on first call.
// If a previous start left the started flag set without a usable stack,
// it reports ErrStackCorrupted and clears the flag.
func Acquire(cfg *config.Config) (*Stack, error) {
	mu.Lock()
	defer mu.Unlock()

	if started {
		if global == nil || global.client == nil || global.srv == nil {
			slog.Error("[Stack] Started flag set but stack is unusable, clearing")
			started = false
			global = nil
			return nil, ErrStackCorrupted
		}
		slog.Debug("[Stack] Reusing existing transport stack")
		return global, nil
	}

	st, err := newStack(cfg)
	if err != nil {
		return nil, err
	}
	global = st
	started = true
	return st, nil
}

func newStack(cfg *config.Config) (*Stack, error) {
	ua, err := sipgo.NewUA()
	if err != nil {
		return nil, fmt.Errorf("failed to create user agent: %w", err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	client, err := sipgo.NewClient(ua,
		sipgo.WithClientHostname(cfg.AdvertiseAddr),
		sipgo.WithClientPort(cfg.BindPort),
	)
	if err != nil {
		ua.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Stack{ua: ua, srv: srv, client: client, cfg: cfg}, nil
}

// Requester returns the transport used for outbound requests.
func (s *Stack) Requester() Requester {
	return sipgoRequester{client: s.client}
}

// OnRequest registers a handler for an inbound request method. Must be
// called before Serve.
func (s *Stack) OnRequest(method sip.RequestMethod, handler func(req *sip.Request, tx sip.ServerTransaction)) {
	s.srv.OnRequest(method, handler)
}

// Serve starts the SIP listener. It blocks until the listener is
// confirmed up or the bind fails. Subsequent calls return the first
// outcome.
func (s *Stack) Serve(ctx context.Context) error {
	s.serveOnce.Do(func() {
		s.serveErr = s.serve(ctx)
	})
	return s.serveErr
}

func (s *Stack) serve(ctx context.Context) error {
	listenAddr := s.cfg.ListenAddr()
	slog.Info("[Stack] Starting SIP listener", "transport", s.cfg.Transport, "addr", listenAddr)

	serveCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe(serveCtx, s.cfg.Transport, listenAddr)
	}()

	// ListenAndServe reports bind failures asynchronously. Give it a
	// settle window before declaring the listener up.
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to bind %s/%s: %w", s.cfg.Transport, listenAddr, err)
		}
		return fmt.Errorf("sip listener exited before serving on %s", listenAddr)
	case <-time.After(200 * time.Millisecond):
	}

	if s.cfg.Transport == "tcp" {
		if err := s.probeTCP(listenAddr); err != nil {
			return err
		}
	}

	slog.Info("[Stack] SIP listener up", "addr", listenAddr)
	return nil
}

// probeTCP confirms the TCP listener accepts connections.
func (s *Stack) probeTCP(addr string) error {
	var lastErr error
	for i := 0; i < 5; i++ {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("sip listener not reachable on %s: %w", addr, lastErr)
}

// Close tears the stack down and clears the process-wide flag so a new
// stack can be created.
func (s *Stack) Close() {
	mu.Lock()
	defer mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.srv != nil {
		_ = s.srv.Close()
	}
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.ua != nil {
		_ = s.ua.Close()
	}

	if global == s {
		global = nil
		started = false
	}
}

// markCorrupted is a test hook simulating a crash that left the flag set.
func markCorrupted() {
	mu.Lock()
	defer mu.Unlock()
	started = true
	global = nil
}

// reset clears all process-wide state. Tests only.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	started = false
	global = nil
}
