// Package api exposes the dialout HTTP control surface: call
// origination and inspection, engine status, and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	types "github.com/sebas/dialout/api/types/v1"
	"github.com/sebas/dialout/internal/ua/call"
)

// CallController is the engine surface the API depends on.
type CallController interface {
	MakeCall(ctx context.Context, destination string) (types.DialResponse, error)
	Hangup(callID string) error
	SendDTMF(callID, digits string) error
	GetCallStatus(callID string) (types.CallInfo, error)
	GetAllCalls() []types.CallInfo
	Status() types.StatusResponse
}

// Server provides the HTTP API (headless, API only)
type Server struct {
	addr       string
	httpServer *http.Server
	engine     CallController
	callCtx    context.Context
	startTime  time.Time
}

// NewServer creates the API server. callCtx is the lifetime context
// handed to MakeCall so originated calls outlive the HTTP request.
func NewServer(addr string, engine CallController, registry *prometheus.Registry, callCtx context.Context) *Server {
	s := &Server{
		addr:      addr,
		engine:    engine,
		callCtx:   callCtx,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/status", s.handleStatus)

	mux.HandleFunc("/api/v1/calls", s.handleCalls)
	mux.HandleFunc("/api/v1/calls/", s.handleCallByID)

	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	slog.Info("[API] Starting HTTP API server", "addr", s.addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("[API] Server error", "error", err)
		}
	}()
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, types.HealthResponse{
		Status: "ok",
		Uptime: int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Status())
}

// handleCalls serves GET (list) and POST (originate) on /api/v1/calls
func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.engine.GetAllCalls())

	case http.MethodPost:
		var req types.DialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Destination == "" {
			s.writeError(w, http.StatusBadRequest, "destination is required")
			return
		}
		resp, err := s.engine.MakeCall(s.callCtx, req.Destination)
		if err != nil {
			slog.Warn("[API] Dial failed", "destination", req.Destination, "error", err)
			s.writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		s.writeJSON(w, http.StatusCreated, resp)

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleCallByID serves /api/v1/calls/{id}, /api/v1/calls/{id}/hangup,
// and /api/v1/calls/{id}/dtmf
func (s *Server) handleCallByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/calls/")
	parts := strings.SplitN(rest, "/", 2)
	callID := parts[0]
	if callID == "" {
		s.writeError(w, http.StatusBadRequest, "call id is required")
		return
	}
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		info, err := s.engine.GetCallStatus(callID)
		if err != nil {
			s.writeError(w, http.StatusNotFound, "call not found")
			return
		}
		s.writeJSON(w, http.StatusOK, info)

	case action == "hangup" && r.Method == http.MethodPost,
		action == "" && r.Method == http.MethodDelete:
		if err := s.engine.Hangup(callID); err != nil {
			s.writeCallError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})

	case action == "dtmf" && r.Method == http.MethodPost:
		var req types.DTMFRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Digits == "" {
			s.writeError(w, http.StatusBadRequest, "digits are required")
			return
		}
		if err := s.engine.SendDTMF(callID, req.Digits); err != nil {
			s.writeCallError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]string{"result": "ok"})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) writeCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, call.ErrCallNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, call.ErrNotAnswered):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("[API] Failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, types.ErrorResponse{Error: msg})
}
