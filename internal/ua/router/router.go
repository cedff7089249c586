// Package router dispatches inbound SIP traffic to the right manager.
// Responses are classified by CSeq method: REGISTER responses go to the
// registration manager and nowhere else, everything else resolves by
// Call-ID. Requests other than BYE are acknowledged only in the log.
package router

import (
	"log/slog"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/dialout/internal/ua/stack"
)

// ResponseHandler consumes responses routed to one manager.
type ResponseHandler interface {
	HandleResponse(resp *sip.Response)
}

// ByeHandler consumes inbound BYE requests.
type ByeHandler interface {
	HandleInboundBye(req *sip.Request, tx stack.Responder)
}

// Router fans inbound messages out to the registration and call managers.
type Router struct {
	registration ResponseHandler
	calls        ResponseHandler
	bye          ByeHandler
}

// New creates a router over the two response sinks. bye handles remote
// hangups; it is usually the same object as calls.
func New(registration, calls ResponseHandler, bye ByeHandler) *Router {
	return &Router{
		registration: registration,
		calls:        calls,
		bye:          bye,
	}
}

// HandleResponse routes one response by its CSeq method.
func (r *Router) HandleResponse(resp *sip.Response) {
	cseq := resp.CSeq()
	if cseq == nil {
		slog.Debug("[Router] Response without CSeq dropped", "status", resp.StatusCode)
		return
	}

	if cseq.MethodName == sip.REGISTER {
		r.registration.HandleResponse(resp)
		return
	}
	r.calls.HandleResponse(resp)
}

// HandleRequest routes one inbound request. Only BYE is acted on; other
// methods are logged and ignored, the transaction layer answers them if
// it must.
func (r *Router) HandleRequest(req *sip.Request, tx sip.ServerTransaction) {
	switch req.Method {
	case sip.BYE:
		r.bye.HandleInboundBye(req, tx)
	default:
		slog.Info("[Router] Ignoring inbound request", "method", req.Method)
	}
}
