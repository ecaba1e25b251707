package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"

	"github.com/j-rivero/ign-transport-git/store"
)

func newTestDiscovery(t *testing.T, opts ...Option) *Discovery {
	t.Helper()
	allOpts := append([]Option{
		WithPort(0),
		WithHeartbeatInterval(20 * time.Millisecond),
		WithActivityInterval(10 * time.Millisecond),
		WithSilenceInterval(80 * time.Millisecond),
	}, opts...)

	d, err := New(allOpts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestStartStopNoLeak(t *testing.T) {
	defer leaktest.Check(t)()

	d := newTestDiscovery(t, WithPort(10417))
	ctx := context.Background()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestDoubleStartFails(t *testing.T) {
	d := newTestDiscovery(t, WithPort(10418))
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if err := d.Start(context.Background()); err != ErrAlreadyRunning {
		t.Fatalf("Start again: got %v, want ErrAlreadyRunning", err)
	}
}

func TestAdvertiseAndDiscoverAcrossProcesses(t *testing.T) {
	defer leaktest.Check(t)()

	d1 := newTestDiscovery(t, WithPort(10419))
	d2 := newTestDiscovery(t, WithPort(10419))

	ctx := context.Background()
	if err := d1.Start(ctx); err != nil {
		t.Fatalf("d1.Start: %v", err)
	}
	defer d1.Stop()
	if err := d2.Start(ctx); err != nil {
		t.Fatalf("d2.Start: %v", err)
	}
	defer d2.Stop()

	discovered := make(chan store.Address, 1)
	d2.OnDiscovery(func(topic string, addr store.Address) {
		select {
		case discovered <- addr:
		default:
		}
	})

	if err := d1.Advertise("/foo", "tcp://127.0.0.1:9000", "tcp://127.0.0.1:9001", "node-1", "std_msgs/String", store.ScopeAll); err != nil {
		t.Fatalf("Advertise: %v", err)
	}

	select {
	case addr := <-discovered:
		if addr.NUuid != "node-1" {
			t.Fatalf("got nUuid %q, want node-1", addr.NUuid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for discovery callback")
	}
}

func TestProcessScopedAdvertiseNeverFiresRemoteCallback(t *testing.T) {
	defer leaktest.Check(t)()

	d1 := newTestDiscovery(t, WithPort(10420))
	d2 := newTestDiscovery(t, WithPort(10420))

	ctx := context.Background()
	if err := d1.Start(ctx); err != nil {
		t.Fatalf("d1.Start: %v", err)
	}
	defer d1.Stop()
	if err := d2.Start(ctx); err != nil {
		t.Fatalf("d2.Start: %v", err)
	}
	defer d2.Stop()

	discovered := make(chan store.Address, 1)
	d2.OnDiscovery(func(topic string, addr store.Address) {
		select {
		case discovered <- addr:
		default:
		}
	})

	if err := d1.Advertise("/private", "tcp://127.0.0.1:9100", "tcp://127.0.0.1:9101", "node-private", "std_msgs/String", store.ScopeProcess); err != nil {
		t.Fatalf("Advertise: %v", err)
	}

	// Confirm d2 never sees it, by racing a later All-scoped advertise in
	// on the same connection: if the Process-scoped datagram had been
	// sent and accepted, it would already have arrived well before this.
	if err := d1.Advertise("/public", "tcp://127.0.0.1:9100", "tcp://127.0.0.1:9101", "node-private", "std_msgs/String", store.ScopeAll); err != nil {
		t.Fatalf("Advertise: %v", err)
	}

	select {
	case addr := <-discovered:
		if addr.NUuid != "node-private" {
			t.Fatalf("got nUuid %q, want node-private", addr.NUuid)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the All-scoped discovery callback")
	}

	if _, ok := d2.TopicAddresses("/private"); ok {
		t.Fatal("Process-scoped advertisement from another process was stored, want dropped")
	}
}

func TestScopeAllows(t *testing.T) {
	d := &Discovery{host: "10.0.0.5"}

	cases := []struct {
		scope   store.Scope
		srcHost string
		want    bool
	}{
		{store.ScopeProcess, "10.0.0.5", false},
		{store.ScopeProcess, "10.0.0.9", false},
		{store.ScopeHost, "10.0.0.5", true},
		{store.ScopeHost, "10.0.0.9", false},
		{store.ScopeAll, "10.0.0.9", true},
	}
	for _, c := range cases {
		if got := d.scopeAllows(c.scope, c.srcHost); got != c.want {
			t.Errorf("scopeAllows(%v, %q) = %v, want %v", c.scope, c.srcHost, got, c.want)
		}
	}
}
