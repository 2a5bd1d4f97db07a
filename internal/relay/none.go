package relay

import (
	"net"

	"github.com/pion/transport/vnet"
	"github.com/pkg/errors"
)

// None returns the relay socket's bound address unchanged. It is the
// generator for servers whose local address is directly reachable, and the
// one tests use with a virtual network.
type None struct {
	// Address is the IP the relay sockets bind to
	Address string

	// Net is the network the sockets are created on. vnet.NewNet(nil)
	// defaults to native operation.
	Net *vnet.Net
}

// Validate confirms the generator is usable
func (g *None) Validate() error {
	switch {
	case g.Address == "":
		return errors.New("Address must be set")
	case g.Net == nil:
		return errors.New("Net must be set")
	}
	return nil
}

// AllocateConn binds a relay socket on the configured address
func (g *None) AllocateConn(evenPort bool, requestedPort int) (net.PacketConn, net.Addr, error) {
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}

	if requestedPort != 0 {
		conn, addr, err := bindRequested(g.Net, g.Address, requestedPort)
		if err != nil {
			return nil, nil, err
		}
		return conn, addr, nil
	}

	conn, addr, err := bindEphemeral(g.Net, g.Address, evenPort)
	if err != nil {
		return nil, nil, err
	}
	return conn, addr, nil
}
