package store

import "testing"

func TestHandlerStorageAddAndGet(t *testing.T) {
	s := NewHandlerStorage[*SubscriptionHandler]()
	h := &SubscriptionHandler{NUuid: "n1", HandlerUuid: "h1", MsgTypeName: "std_msgs/String"}

	s.AddHandler("/foo", "n1", "h1", h)

	got, ok := s.GetHandler("/foo", "n1", "h1")
	if !ok || got != h {
		t.Fatalf("GetHandler = %v, %v; want %v, true", got, ok, h)
	}

	if !s.HasHandlersForTopic("/foo") {
		t.Fatal("HasHandlersForTopic(/foo) = false, want true")
	}
	if !s.HasHandlersForNode("/foo", "n1") {
		t.Fatal("HasHandlersForNode(/foo, n1) = false, want true")
	}
	if s.HasHandlersForNode("/foo", "n2") {
		t.Fatal("HasHandlersForNode(/foo, n2) = true, want false")
	}
}

func TestHandlerStorageRemoveHandler(t *testing.T) {
	s := NewHandlerStorage[*SubscriptionHandler]()
	h := &SubscriptionHandler{NUuid: "n1", HandlerUuid: "h1"}
	s.AddHandler("/foo", "n1", "h1", h)

	if !s.RemoveHandler("/foo", "n1", "h1") {
		t.Fatal("RemoveHandler returned false, want true")
	}
	if s.RemoveHandler("/foo", "n1", "h1") {
		t.Fatal("second RemoveHandler returned true, want false")
	}
	if s.HasHandlersForTopic("/foo") {
		t.Fatal("topic should be pruned once empty")
	}
}

func TestHandlerStorageRemoveHandlersForNode(t *testing.T) {
	s := NewHandlerStorage[*SubscriptionHandler]()
	s.AddHandler("/foo", "n1", "h1", &SubscriptionHandler{})
	s.AddHandler("/foo", "n1", "h2", &SubscriptionHandler{})
	s.AddHandler("/bar", "n1", "h3", &SubscriptionHandler{})
	s.AddHandler("/bar", "n2", "h4", &SubscriptionHandler{})

	s.RemoveHandlersForNode("n1")

	if s.HasHandlersForTopic("/foo") {
		t.Fatal("/foo should be empty after removing its only node")
	}
	if !s.HasHandlersForNode("/bar", "n2") {
		t.Fatal("/bar's n2 handler should survive")
	}
	if s.HasHandlersForNode("/bar", "n1") {
		t.Fatal("/bar's n1 handler should be gone")
	}
}

func TestHandlerStorageGetFirstHandler(t *testing.T) {
	s := NewHandlerStorage[*ReplierHandler]()
	if _, ok := s.GetFirstHandler("/missing"); ok {
		t.Fatal("GetFirstHandler on empty topic returned true")
	}

	h := &ReplierHandler{NUuid: "n1", HandlerUuid: "h1"}
	s.AddHandler("/echo", "n1", "h1", h)

	got, ok := s.GetFirstHandler("/echo")
	if !ok || got != h {
		t.Fatalf("GetFirstHandler = %v, %v; want %v, true", got, ok, h)
	}
}
