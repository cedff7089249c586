package router

import (
	"testing"

	"github.com/emiago/sipgo/sip"

	"github.com/sebas/dialout/internal/ua/stack"
)

type recordingHandler struct {
	responses []*sip.Response
}

func (h *recordingHandler) HandleResponse(resp *sip.Response) {
	h.responses = append(h.responses, resp)
}

type recordingByeHandler struct {
	requests []*sip.Request
}

func (h *recordingByeHandler) HandleInboundBye(req *sip.Request, _ stack.Responder) {
	h.requests = append(h.requests, req)
}

func responseFor(method sip.RequestMethod, status int) *sip.Response {
	req := sip.NewRequest(method, sip.Uri{Scheme: "sip", User: "alice", Host: "pbx.example.com"})
	req.AppendHeader(&sip.FromHeader{
		Address: sip.Uri{Scheme: "sip", User: "alice", Host: "pbx.example.com"},
		Params:  sip.NewParams(),
	})
	req.AppendHeader(&sip.ToHeader{
		Address: sip.Uri{Scheme: "sip", User: "bob", Host: "pbx.example.com"},
		Params:  sip.NewParams(),
	})
	cseqHdr := &sip.CSeqHeader{SeqNo: 1, MethodName: method}
	req.AppendHeader(cseqHdr)
	callIDHdr := sip.CallIDHeader("router-test")
	req.AppendHeader(&callIDHdr)
	return sip.NewResponseFromRequest(req, status, "Test", nil)
}

func TestRegisterResponsesGoToRegistrationOnly(t *testing.T) {
	reg := &recordingHandler{}
	calls := &recordingHandler{}
	r := New(reg, calls, &recordingByeHandler{})

	r.HandleResponse(responseFor(sip.REGISTER, 200))
	r.HandleResponse(responseFor(sip.REGISTER, 401))

	if len(reg.responses) != 2 {
		t.Errorf("registration handler saw %d responses, want 2", len(reg.responses))
	}
	if len(calls.responses) != 0 {
		t.Errorf("call handler saw %d REGISTER responses, want 0", len(calls.responses))
	}
}

func TestOtherResponsesGoToCalls(t *testing.T) {
	reg := &recordingHandler{}
	calls := &recordingHandler{}
	r := New(reg, calls, &recordingByeHandler{})

	for _, method := range []sip.RequestMethod{sip.INVITE, sip.BYE, sip.CANCEL, sip.INFO} {
		r.HandleResponse(responseFor(method, 200))
	}

	if len(calls.responses) != 4 {
		t.Errorf("call handler saw %d responses, want 4", len(calls.responses))
	}
	if len(reg.responses) != 0 {
		t.Errorf("registration handler saw %d non-REGISTER responses, want 0", len(reg.responses))
	}
}

func TestResponseWithoutCSeqDropped(t *testing.T) {
	reg := &recordingHandler{}
	calls := &recordingHandler{}
	r := New(reg, calls, &recordingByeHandler{})

	resp := &sip.Response{}
	r.HandleResponse(resp)

	if len(reg.responses)+len(calls.responses) != 0 {
		t.Error("a response without CSeq must be dropped")
	}
}

func TestByeRequestsRouted(t *testing.T) {
	bye := &recordingByeHandler{}
	r := New(&recordingHandler{}, &recordingHandler{}, bye)

	req := sip.NewRequest(sip.BYE, sip.Uri{Scheme: "sip", User: "alice", Host: "127.0.0.1"})
	r.HandleRequest(req, nil)

	if len(bye.requests) != 1 {
		t.Fatalf("bye handler saw %d requests, want 1", len(bye.requests))
	}
}

func TestOtherRequestsIgnored(t *testing.T) {
	bye := &recordingByeHandler{}
	r := New(&recordingHandler{}, &recordingHandler{}, bye)

	for _, method := range []sip.RequestMethod{sip.INVITE, sip.OPTIONS, sip.NOTIFY, sip.MESSAGE} {
		req := sip.NewRequest(method, sip.Uri{Scheme: "sip", User: "alice", Host: "127.0.0.1"})
		r.HandleRequest(req, nil)
	}

	if len(bye.requests) != 0 {
		t.Errorf("bye handler saw %d non-BYE requests, want 0", len(bye.requests))
	}
}
