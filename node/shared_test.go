package node

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
)

func startTestShared(t *testing.T) *Shared {
	t.Helper()
	s := New(Config{Host: "127.0.0.1"})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop: %v", err)
		}
	})
	return s
}

func TestSharedStartStopNoLeak(t *testing.T) {
	defer leaktest.Check(t)()
	startTestShared(t)
}

func TestPublishSubscribeDelivers(t *testing.T) {
	pub := startTestShared(t)
	sub := startTestShared(t)

	received := make(chan []byte, 1)
	if err := sub.Subscribe("/topic", "n1", "h1", "std_msgs/String", pub.PublisherAddr(), pub.ControlAddr(),
		func(topic string, data []byte, msgType string) {
			select {
			case received <- data:
			default:
			}
		}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	time.Sleep(50 * time.Millisecond) // allow the SUB dial to complete

	pub.Advertise("/topic")
	if err := pub.Publish("/topic", "std_msgs/String", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Fatalf("received %q, want hello", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestPublishWithoutAdvertiseFails(t *testing.T) {
	pub := startTestShared(t)

	if err := pub.Publish("/topic", "std_msgs/String", []byte("hello")); err != ErrNotAdvertised {
		t.Fatalf("Publish without Advertise = %v, want ErrNotAdvertised", err)
	}

	pub.Advertise("/topic")
	if err := pub.Publish("/topic", "std_msgs/String", []byte("hello")); err != nil {
		t.Fatalf("Publish after Advertise: %v", err)
	}

	pub.Unadvertise("/topic")
	if err := pub.Publish("/topic", "std_msgs/String", []byte("hello")); err != ErrNotAdvertised {
		t.Fatalf("Publish after Unadvertise = %v, want ErrNotAdvertised", err)
	}
}

func TestUnsubscribeRemovesHandler(t *testing.T) {
	pub := startTestShared(t)
	sub := startTestShared(t)

	if err := sub.Subscribe("/topic", "n1", "h1", "t", pub.PublisherAddr(), pub.ControlAddr(), func(string, []byte, string) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Unsubscribe("/topic", "n1", "h1", pub.ControlAddr()); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	if err := sub.Unsubscribe("/topic", "n1", "h1", pub.ControlAddr()); err != ErrNoSuchHandler {
		t.Fatalf("second Unsubscribe = %v, want ErrNoSuchHandler", err)
	}
}

func TestRequestResponseRoundTrip(t *testing.T) {
	server := startTestShared(t)
	client := startTestShared(t)

	server.AdvertiseSrv("/echo", "n1", "h1", "ReqT", "RepT", func(req []byte) ([]byte, bool) {
		return append([]byte("echo:"), req...), true
	})

	rep, ok, err := client.Request(context.Background(), "/echo", "n2", server.ReplierAddr(), []byte("hi"), 2*time.Second)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if !ok || string(rep) != "echo:hi" {
		t.Fatalf("Request = %q, %v; want echo:hi, true", rep, ok)
	}
}

func TestRequestTimesOutWithNoReplier(t *testing.T) {
	client := startTestShared(t)

	_, _, err := client.Request(context.Background(), "/nope", "n2", "tcp://127.0.0.1:1", []byte("hi"), 50*time.Millisecond)
	if err == nil {
		t.Fatal("Request with no replier succeeded, want timeout error")
	}
}

func TestAdvertiseSrvUnadvertise(t *testing.T) {
	s := startTestShared(t)
	s.AdvertiseSrv("/echo", "n1", "h1", "ReqT", "RepT", func(req []byte) ([]byte, bool) { return req, true })

	if err := s.UnadvertiseSrv("/echo", "n1", "h1"); err != nil {
		t.Fatalf("UnadvertiseSrv: %v", err)
	}
	if err := s.UnadvertiseSrv("/echo", "n1", "h1"); err != ErrNoSuchHandler {
		t.Fatalf("second UnadvertiseSrv = %v, want ErrNoSuchHandler", err)
	}
}
