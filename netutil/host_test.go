package netutil

import (
	"net"
	"os"
	"testing"
)

func TestIsPrivateIP(t *testing.T) {
	cases := map[string]bool{
		"10.1.2.3":    true,
		"172.16.0.1":  true,
		"172.31.0.1":  true,
		"172.32.0.1":  false,
		"192.168.1.1": true,
		"8.8.8.8":     false,
		"127.0.0.1":   false,
	}
	for ip, want := range cases {
		got := IsPrivateIP(net.ParseIP(ip))
		if got != want {
			t.Errorf("IsPrivateIP(%s) = %v, want %v", ip, got, want)
		}
	}
}

func TestDetermineHostHonorsEnvOverride(t *testing.T) {
	os.Setenv("IGN_IP", "203.0.113.5")
	defer os.Unsetenv("IGN_IP")

	host, err := DetermineHost()
	if err != nil {
		t.Fatalf("DetermineHost: %v", err)
	}
	if host != "203.0.113.5" {
		t.Fatalf("DetermineHost() = %q, want 203.0.113.5", host)
	}
}

func TestDetermineHostWithoutOverrideReturnsIP(t *testing.T) {
	os.Unsetenv("IGN_IP")
	host, err := DetermineHost()
	if err != nil {
		t.Fatalf("DetermineHost: %v", err)
	}
	if net.ParseIP(host) == nil {
		t.Fatalf("DetermineHost() = %q, not a valid IP", host)
	}
}
