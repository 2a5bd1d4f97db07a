// Package relay provides the pluggable policy used to bind relay sockets.
//
// The allocation manager depends only on the AddressGenerator contract, so
// deployments can choose between binding the local address directly (None),
// advertising a fixed public address (Static), or drawing from a port range
// (PortRange) — and tests can substitute a virtual network.
package relay

import (
	"net"
	"strconv"

	"github.com/pion/transport/vnet"
	"github.com/pkg/errors"
)

// AddressGenerator is the policy used to bind relay sockets.
type AddressGenerator interface {
	// AllocateConn binds a relay socket and returns it together with its
	// observable address. When requestedPort is non-zero the implementation
	// binds that specific port or fails; when evenPort is set and no port
	// was requested, the bound port must be even.
	AllocateConn(evenPort bool, requestedPort int) (net.PacketConn, net.Addr, error)
}

// maxEvenPortAttempts bounds the bind-and-check loop used to find an even
// ephemeral port.
const maxEvenPortAttempts = 128

// bindEphemeral binds an OS-chosen port on address, releasing and retrying
// odd ports while evenPort is set.
func bindEphemeral(n *vnet.Net, address string, evenPort bool) (net.PacketConn, *net.UDPAddr, error) {
	for attempts := 0; attempts < maxEvenPortAttempts; attempts++ {
		conn, err := n.ListenPacket("udp4", net.JoinHostPort(address, "0"))
		if err != nil {
			return nil, nil, err
		}

		udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
		if !ok {
			_ = conn.Close()
			return nil, nil, errors.New("failed to cast net.Addr to *net.UDPAddr")
		}

		if !evenPort || udpAddr.Port%2 == 0 {
			return conn, udpAddr, nil
		}

		if err := conn.Close(); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, errors.Errorf("failed to find an even port after %d attempts", maxEvenPortAttempts)
}

// bindRequested binds the specific port the client asked for. The requested
// port takes precedence over the even-port preference.
func bindRequested(n *vnet.Net, address string, port int) (net.PacketConn, *net.UDPAddr, error) {
	conn, err := n.ListenPacket("udp4", net.JoinHostPort(address, strconv.Itoa(port)))
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to bind requested port %d", port)
	}

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		_ = conn.Close()
		return nil, nil, errors.New("failed to cast net.Addr to *net.UDPAddr")
	}
	return conn, udpAddr, nil
}
