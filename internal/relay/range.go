package relay

import (
	"math/rand"
	"net"

	"github.com/pion/transport/vnet"
	"github.com/pkg/errors"
)

// defaultRangeRetries is how many random ports a PortRange generator tries
// before giving up.
const defaultRangeRetries = 10

// PortRange draws relay ports at random from [MinPort, MaxPort]. Use it to
// keep relay traffic inside a firewall pinhole.
type PortRange struct {
	// MinPort and MaxPort bound the candidate ports, inclusive
	MinPort, MaxPort int

	// MaxRetries overrides the number of candidate ports tried before the
	// allocation fails. Zero means the default.
	MaxRetries int

	// Address is the IP the relay sockets bind to
	Address string

	// Net is the network the sockets are created on
	Net *vnet.Net
}

// Validate confirms the generator is usable
func (g *PortRange) Validate() error {
	switch {
	case g.MinPort <= 0 || g.MinPort > 65535:
		return errors.Errorf("min port %d out of range", g.MinPort)
	case g.MaxPort <= 0 || g.MaxPort > 65535:
		return errors.Errorf("max port %d out of range", g.MaxPort)
	case g.MinPort > g.MaxPort:
		return errors.Errorf("min port %d above max port %d", g.MinPort, g.MaxPort)
	case g.Address == "":
		return errors.New("Address must be set")
	case g.Net == nil:
		return errors.New("Net must be set")
	}
	return nil
}

// AllocateConn binds a relay socket on a random port inside the range
func (g *PortRange) AllocateConn(evenPort bool, requestedPort int) (net.PacketConn, net.Addr, error) {
	if err := g.Validate(); err != nil {
		return nil, nil, err
	}

	if requestedPort != 0 {
		if requestedPort < g.MinPort || requestedPort > g.MaxPort {
			return nil, nil, errors.Errorf("requested port %d outside range %d-%d", requestedPort, g.MinPort, g.MaxPort)
		}
		conn, addr, err := bindRequested(g.Net, g.Address, requestedPort)
		if err != nil {
			return nil, nil, err
		}
		return conn, addr, nil
	}

	retries := g.MaxRetries
	if retries == 0 {
		retries = defaultRangeRetries
	}

	for i := 0; i < retries; i++ {
		port := g.MinPort + rand.Intn(g.MaxPort-g.MinPort+1) /* #nosec */
		if evenPort {
			if port%2 != 0 {
				if port == g.MaxPort {
					port--
				} else {
					port++
				}
			}
			if port < g.MinPort || port > g.MaxPort {
				continue
			}
		}

		conn, addr, err := bindRequested(g.Net, g.Address, port)
		if err != nil {
			continue
		}
		return conn, addr, nil
	}

	return nil, nil, errors.Errorf("failed to bind a port in range %d-%d after %d attempts", g.MinPort, g.MaxPort, retries)
}
