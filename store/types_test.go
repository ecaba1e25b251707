package store

import (
	"testing"
	"time"
)

func TestRequestHandlerResolveBeforeWait(t *testing.T) {
	h := NewRequestHandler("n1", "h1", "req1", "ReqT", "RepT")
	h.Resolve([]byte("pong"), true)

	rep, result, ok := h.Wait(time.Second)
	if !ok || !result || string(rep) != "pong" {
		t.Fatalf("Wait = %q, %v, %v; want pong, true, true", rep, result, ok)
	}
}

func TestRequestHandlerResolveAfterWait(t *testing.T) {
	h := NewRequestHandler("n1", "h1", "req1", "ReqT", "RepT")

	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(10 * time.Millisecond)
		h.Resolve([]byte("pong"), true)
	}()

	rep, result, ok := h.Wait(time.Second)
	<-done
	if !ok || !result || string(rep) != "pong" {
		t.Fatalf("Wait = %q, %v, %v; want pong, true, true", rep, result, ok)
	}
}

func TestRequestHandlerWaitTimesOut(t *testing.T) {
	h := NewRequestHandler("n1", "h1", "req1", "ReqT", "RepT")

	_, _, ok := h.Wait(10 * time.Millisecond)
	if ok {
		t.Fatal("Wait succeeded before any Resolve, want timeout")
	}
}

func TestRequestHandlerResolveIsFirstResponderOnly(t *testing.T) {
	h := NewRequestHandler("n1", "h1", "req1", "ReqT", "RepT")
	h.Resolve([]byte("first"), true)
	h.Resolve([]byte("second"), false)

	rep, result, ok := h.Wait(time.Second)
	if !ok || !result || string(rep) != "first" {
		t.Fatalf("Wait = %q, %v, %v; want first response only", rep, result, ok)
	}
}

func TestRequestHandlerMarkSent(t *testing.T) {
	h := NewRequestHandler("n1", "h1", "req1", "ReqT", "RepT")
	if h.Requested() {
		t.Fatal("Requested() = true before MarkSent")
	}
	h.MarkSent()
	if !h.Requested() {
		t.Fatal("Requested() = false after MarkSent")
	}
}

func TestReplierHandlerRunCallback(t *testing.T) {
	h := &ReplierHandler{
		Callback: func(req []byte) ([]byte, bool) {
			return append([]byte("echo:"), req...), true
		},
	}
	rep, ok := h.RunCallback([]byte("hi"))
	if !ok || string(rep) != "echo:hi" {
		t.Fatalf("RunCallback = %q, %v; want echo:hi, true", rep, ok)
	}
}

func TestReplierHandlerRunCallbackNil(t *testing.T) {
	h := &ReplierHandler{}
	if _, ok := h.RunCallback([]byte("hi")); ok {
		t.Fatal("RunCallback with nil callback returned true")
	}
}
