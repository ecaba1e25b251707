// Package netutil determines which local address a node should advertise
// itself under, grounded on original_source/src/NetUtils.cc's determineHost.
package netutil

import (
	"fmt"
	"net"
	"os"
)

// IsPrivateIP reports whether ip falls in one of the RFC 1918 private
// ranges, mirroring NetUtils.cc's isPrivateIP (used to prefer a routable
// address over a private one when several candidates are available).
func IsPrivateIP(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	private := []struct {
		network string
	}{
		{"10.0.0.0/8"},
		{"172.16.0.0/12"},
		{"192.168.0.0/16"},
	}
	for _, p := range private {
		_, block, err := net.ParseCIDR(p.network)
		if err != nil {
			continue
		}
		if block.Contains(ip4) {
			return true
		}
	}
	return false
}

// HostnameToIP resolves host to its first IPv4 address, mirroring
// NetUtils.cc's hostnameToIp.
func HostnameToIP(host string) (net.IP, error) {
	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("netutil: lookup %s: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("netutil: no IPv4 address for %s", host)
}

// DetermineHost picks the IPv4 address this process should advertise
// itself under, following the original's three-step fallback: an explicit
// IGN_IP environment override, then hostname (and hostname+".local")
// resolution, then interface enumeration preferring a non-loopback,
// routable (non-private) address over a private one.
func DetermineHost() (string, error) {
	if ip := os.Getenv("IGN_IP"); ip != "" {
		return ip, nil
	}

	if host, err := os.Hostname(); err == nil {
		if ip, err := HostnameToIP(host); err == nil {
			return ip.String(), nil
		}
		if ip, err := HostnameToIP(host + ".local"); err == nil {
			return ip.String(), nil
		}
	}

	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return "", fmt.Errorf("netutil: enumerate interfaces: %w", err)
	}

	var fallback net.IP
	for _, addr := range ifaces {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		ip4 := ipNet.IP.To4()
		if ip4 == nil {
			continue
		}
		if !IsPrivateIP(ip4) {
			return ip4.String(), nil
		}
		if fallback == nil {
			fallback = ip4
		}
	}
	if fallback != nil {
		return fallback.String(), nil
	}

	return "127.0.0.1", nil
}
