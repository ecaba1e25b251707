package store

import (
	"sync"
	"time"
)

// SubscriptionCallback delivers a received message payload for a topic.
type SubscriptionCallback func(topic string, data []byte, msgTypeName string)

// SubscriptionHandler is a local subscriber registered for a topic,
// mirrored from the original's SubscriptionHandler (a thinner sibling of
// ReqHandler/RepHandler, holding only a callback and a type name).
type SubscriptionHandler struct {
	NUuid       string
	HandlerUuid string
	MsgTypeName string
	Callback    SubscriptionCallback
}

// ServiceCallback handles an inbound service request and returns the
// serialized reply.
type ServiceCallback func(req []byte) (rep []byte, ok bool)

// ReplierHandler is a local service responder, grounded on
// original_source/include/ignition/transport/RepHandler.hh's IRepHandler
// base plus its templated RunCallback.
type ReplierHandler struct {
	NUuid       string
	HandlerUuid string
	ReqTypeName string
	RepTypeName string
	Callback    ServiceCallback
}

// RunCallback invokes the registered callback, mirroring RepHandler::RunCallback.
func (h *ReplierHandler) RunCallback(req []byte) ([]byte, bool) {
	if h.Callback == nil {
		return nil, false
	}
	return h.Callback(req)
}

// RequestHandler tracks a pending, in-flight service request awaiting a
// response, grounded on ReqHandler.hh's IReqHandler base (nUuidStr,
// requested flag, reqUuid, repAvailable, condition_variable_any, rep,
// result). The condition_variable_any + bool pair is replaced by a
// buffered channel, which is the idiomatic Go way to let a waiter block
// without leaking a goroutine if nobody ever resolves the request.
type RequestHandler struct {
	NUuid       string
	HandlerUuid string
	ReqUuid     string
	ReqTypeName string
	RepTypeName string
	SentAt      time.Time

	mu        sync.Mutex
	requested bool
	resolved  bool
	done      chan requestOutcome
}

type requestOutcome struct {
	rep    []byte
	result bool
}

// NewRequestHandler returns a RequestHandler ready to be waited on.
func NewRequestHandler(nUuid, handlerUuid, reqUuid, reqType, repType string) *RequestHandler {
	return &RequestHandler{
		NUuid:       nUuid,
		HandlerUuid: handlerUuid,
		ReqUuid:     reqUuid,
		ReqTypeName: reqType,
		RepTypeName: repType,
		done:        make(chan requestOutcome, 1),
	}
}

// MarkSent records that the request has actually been sent on the wire.
func (h *RequestHandler) MarkSent() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requested = true
	h.SentAt = time.Now()
}

// Requested reports whether the request has been sent.
func (h *RequestHandler) Requested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requested
}

// Resolve delivers the response to the waiting caller, matching the
// first-responder-only semantics of the original's SendPendingRemoteReqs:
// once a reply has been delivered, further calls to Resolve are no-ops.
func (h *RequestHandler) Resolve(rep []byte, result bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.resolved {
		return
	}
	h.resolved = true
	h.done <- requestOutcome{rep: rep, result: result}
}

// Wait blocks until a response arrives or timeout elapses, returning the
// reply bytes, the service-level success flag, and whether a reply
// arrived before the timeout.
func (h *RequestHandler) Wait(timeout time.Duration) (rep []byte, result bool, ok bool) {
	select {
	case outcome := <-h.done:
		return outcome.rep, outcome.result, true
	case <-time.After(timeout):
		return nil, false, false
	}
}
