// Package types defines shared API types for the dialout HTTP surface.
package types

// HealthResponse is the response from /api/v1/health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// StatusResponse is the response from /api/v1/status
type StatusResponse struct {
	Registered   bool   `json:"registered"`
	Registrar    string `json:"registrar"`
	Username     string `json:"username"`
	Transport    string `json:"transport"`
	ActiveCalls  int    `json:"active_calls"`
	TotalCalls   int    `json:"total_calls"`
	AnsweredCall int    `json:"answered_calls"`
	FailedCalls  int    `json:"failed_calls"`
}

// CallInfo represents a single outbound call
type CallInfo struct {
	CallID          string `json:"call_id"`
	State           string `json:"state"`
	Destination     string `json:"destination"`
	LocalURI        string `json:"local_uri"`
	RemoteURI       string `json:"remote_uri"`
	Duration        int    `json:"duration"`
	CreatedAt       string `json:"created_at"`
	AnsweredAt      string `json:"answered_at,omitempty"`
	EndedAt         string `json:"ended_at,omitempty"`
	TerminateReason string `json:"terminate_reason,omitempty"`
}

// DialRequest is the body of POST /api/v1/calls
type DialRequest struct {
	Destination string `json:"destination"`
}

// DialResponse is the response to POST /api/v1/calls
type DialResponse struct {
	CallID string `json:"call_id"`
	State  string `json:"state"`
}

// DTMFRequest is the body of POST /api/v1/calls/{id}/dtmf
type DTMFRequest struct {
	Digits string `json:"digits"`
}

// ErrorResponse is returned on any API error
type ErrorResponse struct {
	Error string `json:"error"`
}
