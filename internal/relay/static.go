package relay

import (
	"net"

	"github.com/pion/transport/vnet"
	"github.com/pkg/errors"
)

// Static binds relay sockets on a local address but reports a fixed public
// IP in the returned relay address. Meant for deployments behind a 1:1 NAT
// where the server never observes its public address directly.
type Static struct {
	// RelayAddress is the public IP clients are told to reach
	RelayAddress net.IP

	// Address is the local IP the relay sockets actually bind to
	Address string

	// Net is the network the sockets are created on
	Net *vnet.Net
}

// Validate confirms the generator is usable
func (g *Static) Validate() error {
	switch {
	case g.RelayAddress == nil:
		return errors.New("RelayAddress must be set")
	case g.Address == "":
		return errors.New("Address must be set")
	case g.Net == nil:
		return errors.New("Net must be set")
	}
	return nil
}

// AllocateConn binds a relay socket on the local address and maps the
// observable address onto the configured public IP
func (g *Static) AllocateConn(evenPort bool, requestedPort int) (net.PacketConn, net.Addr, error) {
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}

	var (
		conn net.PacketConn
		addr *net.UDPAddr
		err  error
	)
	if requestedPort != 0 {
		conn, addr, err = bindRequested(g.Net, g.Address, requestedPort)
	} else {
		conn, addr, err = bindEphemeral(g.Net, g.Address, evenPort)
	}
	if err != nil {
		return nil, nil, err
	}

	relayAddr := &net.UDPAddr{
		IP:   g.RelayAddress,
		Port: addr.Port,
	}
	return conn, relayAddr, nil
}
