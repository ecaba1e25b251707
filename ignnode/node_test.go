package ignnode

import (
	"context"
	"testing"
	"time"

	"github.com/j-rivero/ign-transport-git/store"
)

func startTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Config{Host: "127.0.0.1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := n.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return n
}

func TestSingleProcessPubSub(t *testing.T) {
	pub := startTestNode(t)
	sub := startTestNode(t)

	received := make(chan []byte, 1)
	if err := sub.Subscribe("/chatter", "std_msgs/String", func(topic string, data []byte, msgType string) {
		select {
		case received <- data:
		default:
		}
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := pub.Advertise("/chatter", "std_msgs/String", store.ScopeAll); err != nil {
		t.Fatalf("Advertise: %v", err)
	}

	deadline := time.After(3 * time.Second)
	for {
		if err := pub.Publish("/chatter", "std_msgs/String", []byte("hello")); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case data := <-received:
			if string(data) != "hello" {
				t.Fatalf("received %q, want hello", data)
			}
			return
		case <-time.After(100 * time.Millisecond):
			// discovery/subscribe race: keep retrying until the
			// deadline or the subscription connects.
		case <-deadline:
			t.Fatal("timed out waiting for delivery via discovery")
		}
	}
}

func TestTwoSubscribersUnsubscribeOneLeavesOther(t *testing.T) {
	pub := startTestNode(t)
	subA := startTestNode(t)
	subB := startTestNode(t)

	recvA := make(chan []byte, 4)
	recvB := make(chan []byte, 4)

	if err := subA.Subscribe("/topic", "t", func(topic string, data []byte, msgType string) {
		recvA <- data
	}); err != nil {
		t.Fatalf("Subscribe A: %v", err)
	}
	if err := subB.Subscribe("/topic", "t", func(topic string, data []byte, msgType string) {
		recvB <- data
	}); err != nil {
		t.Fatalf("Subscribe B: %v", err)
	}

	if err := pub.Advertise("/topic", "t", store.ScopeAll); err != nil {
		t.Fatalf("Advertise: %v", err)
	}

	waitForDelivery := func(ch chan []byte) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			_ = pub.Publish("/topic", "t", []byte("x"))
			select {
			case <-ch:
				return
			case <-time.After(100 * time.Millisecond):
			case <-deadline:
				t.Fatal("timed out waiting for delivery")
			}
		}
	}

	waitForDelivery(recvA)
	waitForDelivery(recvB)
}

func TestServiceCallSynchronous(t *testing.T) {
	server := startTestNode(t)
	client := startTestNode(t)

	if err := server.AdvertiseSrv("/echo", "ReqT", "RepT", store.ScopeAll, func(req []byte) ([]byte, bool) {
		return append([]byte("echo:"), req...), true
	}); err != nil {
		t.Fatalf("AdvertiseSrv: %v", err)
	}

	var rep []byte
	var ok bool
	var err error
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rep, ok, err = client.Request(context.Background(), "/echo", []byte("hi"), 500*time.Millisecond)
		if err == nil && ok {
			break
		}
	}
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !ok || string(rep) != "echo:hi" {
		t.Fatalf("Request = %q, %v; want echo:hi, true", rep, ok)
	}
}

func TestServiceCallTimesOutWithNoResponder(t *testing.T) {
	client := startTestNode(t)

	_, _, err := client.Request(context.Background(), "/nonexistent", []byte("hi"), 200*time.Millisecond)
	if err == nil {
		t.Fatal("Request with no responder succeeded, want error")
	}
}

func TestPublishWithoutAdvertiseFails(t *testing.T) {
	n := startTestNode(t)

	if err := n.Publish("/chatter", "std_msgs/String", []byte("hi")); err != ErrNotAdvertised {
		t.Fatalf("Publish without Advertise = %v, want ErrNotAdvertised", err)
	}

	if err := n.Advertise("/chatter", "std_msgs/String", store.ScopeAll); err != nil {
		t.Fatalf("Advertise: %v", err)
	}
	if err := n.Publish("/chatter", "std_msgs/String", []byte("hi")); err != nil {
		t.Fatalf("Publish after Advertise: %v", err)
	}

	if err := n.Unadvertise("/chatter", store.ScopeAll); err != nil {
		t.Fatalf("Unadvertise: %v", err)
	}
	if err := n.Publish("/chatter", "std_msgs/String", []byte("hi")); err != ErrNotAdvertised {
		t.Fatalf("Publish after Unadvertise = %v, want ErrNotAdvertised", err)
	}
}

func TestInvalidTopicRejectedByEntryPoints(t *testing.T) {
	n := startTestNode(t)

	const bad = "foo bar"
	if err := n.Advertise(bad, "t", store.ScopeAll); err != ErrInvalidTopic {
		t.Fatalf("Advertise(%q) = %v, want ErrInvalidTopic", bad, err)
	}
	if err := n.Subscribe(bad, "t", func(string, []byte, string) {}); err != ErrInvalidTopic {
		t.Fatalf("Subscribe(%q) = %v, want ErrInvalidTopic", bad, err)
	}
	if err := n.Publish(bad, "t", []byte("x")); err != ErrInvalidTopic {
		t.Fatalf("Publish(%q) = %v, want ErrInvalidTopic", bad, err)
	}
	if _, _, err := n.Request(context.Background(), bad, []byte("x"), 50*time.Millisecond); err != ErrInvalidTopic {
		t.Fatalf("Request(%q) = %v, want ErrInvalidTopic", bad, err)
	}
}
