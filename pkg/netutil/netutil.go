// Package netutil picks the addresses the relay daemon binds and
// advertises.
package netutil

import (
	"net"

	"github.com/pkg/errors"
)

// probeAddr is dialed (never written to) to learn which local interface
// routes toward the public internet.
const probeAddr = "8.8.8.8:80"

// PreferredRelayIP returns the local IP this host would use to reach the
// internet. Relay sockets bound to it are reachable by any peer the host
// can route to.
func PreferredRelayIP() (net.IP, error) {
	conn, err := net.Dial("udp", probeAddr)
	if err == nil {
		defer conn.Close()
		return conn.LocalAddr().(*net.UDPAddr).IP, nil
	}

	// No default route. Fall back to the first interface address worth
	// advertising.
	addrs, err := RelayableAddresses()
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, errors.New("no relayable local address found")
	}
	return addrs[0], nil
}

// RelayableAddresses returns the local addresses peers could plausibly send
// relay traffic to: addresses of interfaces that are up, excluding loopback
// and link-local ranges.
func RelayableAddresses() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list network interfaces")
	}

	var out []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if IsRelayable(ipNet.IP) {
				out = append(out, ipNet.IP)
			}
		}
	}
	return out, nil
}

// IsRelayable reports whether a relay socket bound to ip is worth
// advertising to peers.
func IsRelayable(ip net.IP) bool {
	if ip == nil {
		return false
	}
	return !ip.IsUnspecified() &&
		!ip.IsLoopback() &&
		!ip.IsLinkLocalUnicast() &&
		!ip.IsLinkLocalMulticast()
}

// SampleUDPPort binds address:0, records the OS-chosen port, and releases
// the socket. Nothing stays reserved; the caller races other binders for
// the port it was handed.
func SampleUDPPort(address string) (int, error) {
	conn, err := net.ListenPacket("udp4", net.JoinHostPort(address, "0"))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to sample a port on %s", address)
	}

	port := conn.LocalAddr().(*net.UDPAddr).Port
	if err := conn.Close(); err != nil {
		return 0, err
	}
	return port, nil
}
