package allocation

import (
	"net"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun"

	"github.com/saintparish4/relay/internal/proto"
)

// rtpMTU is the relay read buffer size
const rtpMTU = 1500

// DefaultLifetime is the allocation lifetime used when a request carries no
// LIFETIME attribute.
const DefaultLifetime = 10 * time.Minute

// Allocation is a TURN-scoped binding of a client to a server-side relay
// socket plus its permissions and channel bindings. The relay socket is
// exclusively owned and released exactly once, on expiry or delete.
type Allocation struct {
	RelayAddr   net.Addr
	Protocol    Protocol
	TurnSocket  net.PacketConn
	RelaySocket net.PacketConn

	fiveTuple *FiveTuple
	username  string

	permissionsLock sync.RWMutex
	permissions     map[string]*Permission

	channelBindingsLock sync.RWMutex
	channelBindings     []*ChannelBind

	lifetimeTimer *time.Timer

	closedLock sync.Mutex
	closed     bool

	log logging.LeveledLogger
}

// NewAllocation creates a new Allocation for the five-tuple
func NewAllocation(turnSocket net.PacketConn, fiveTuple *FiveTuple, username string, log logging.LeveledLogger) *Allocation {
	return &Allocation{
		TurnSocket:  turnSocket,
		fiveTuple:   fiveTuple,
		username:    username,
		permissions: make(map[string]*Permission, 64),
		log:         log,
	}
}

// FiveTuple returns the key this allocation is stored under
func (a *Allocation) FiveTuple() *FiveTuple {
	return a.fiveTuple
}

// Username returns the username the allocating request authenticated with
func (a *Allocation) Username() string {
	return a.username
}

// addrIPFingerprint keys permissions by peer IP only; the port does not
// participate in permission checks.
func addrIPFingerprint(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP.String()
	case *net.TCPAddr:
		return a.IP.String()
	}
	return addr.String()
}

func addrEqual(a, b net.Addr) bool {
	aUDP, aOk := a.(*net.UDPAddr)
	bUDP, bOk := b.(*net.UDPAddr)
	if !aOk || !bOk {
		return a.Network() == b.Network() && a.String() == b.String()
	}
	return aUDP.IP.Equal(bUDP.IP) && aUDP.Port == bUDP.Port
}

// GetPermission returns the permission covering the peer address' IP, if any
func (a *Allocation) GetPermission(addr net.Addr) *Permission {
	a.permissionsLock.RLock()
	defer a.permissionsLock.RUnlock()
	return a.permissions[addrIPFingerprint(addr)]
}

// AddPermission adds the permission to the allocation, refreshing an
// existing permission for the same peer IP instead of replacing it
func (a *Allocation) AddPermission(p *Permission) {
	fingerprint := addrIPFingerprint(p.Addr)

	a.permissionsLock.Lock()
	defer a.permissionsLock.Unlock()

	if existing, ok := a.permissions[fingerprint]; ok {
		existing.refresh(permissionTimeout)
		return
	}

	p.allocation = a
	a.permissions[fingerprint] = p
	p.start(permissionTimeout)
}

// RemovePermission removes the permission for the peer address' IP
func (a *Allocation) RemovePermission(addr net.Addr) {
	a.permissionsLock.Lock()
	defer a.permissionsLock.Unlock()
	delete(a.permissions, addrIPFingerprint(addr))
}

// AddChannelBind binds the channel number to the peer address. Per RFC 5766
// the binding also installs a permission for the peer's IP.
func (a *Allocation) AddChannelBind(c *ChannelBind, lifetime time.Duration) error {
	if !c.Number.Valid() {
		return errInvalidChannelNumber
	}

	// Both the channel number and the peer must be unused or bound to
	// one another already.
	if existing := a.GetChannelByNumber(c.Number); existing != nil {
		if !addrEqual(existing.Peer, c.Peer) {
			return errSameChannelNumber
		}
	} else if existing := a.GetChannelByAddr(c.Peer); existing != nil {
		if existing.Number != c.Number {
			return errSamePeerAddress
		}
	}

	a.channelBindingsLock.Lock()
	defer a.channelBindingsLock.Unlock()

	for _, cb := range a.channelBindings {
		if cb.Number == c.Number {
			cb.refresh(lifetime)
			// A refresh of the binding also refreshes the implicit permission.
			a.AddPermission(NewPermission(cb.Peer, a.log))
			return nil
		}
	}

	c.allocation = a
	a.channelBindings = append(a.channelBindings, c)
	c.start(lifetime)

	a.AddPermission(NewPermission(c.Peer, a.log))
	return nil
}

// RemoveChannelBind removes the binding for the channel number
func (a *Allocation) RemoveChannelBind(number proto.ChannelNumber) bool {
	a.channelBindingsLock.Lock()
	defer a.channelBindingsLock.Unlock()

	for i := len(a.channelBindings) - 1; i >= 0; i-- {
		if a.channelBindings[i].Number == number {
			a.channelBindings = append(a.channelBindings[:i], a.channelBindings[i+1:]...)
			return true
		}
	}
	return false
}

// GetChannelByNumber returns the binding for the channel number, if any
func (a *Allocation) GetChannelByNumber(number proto.ChannelNumber) *ChannelBind {
	a.channelBindingsLock.RLock()
	defer a.channelBindingsLock.RUnlock()
	for _, cb := range a.channelBindings {
		if cb.Number == number {
			return cb
		}
	}
	return nil
}

// GetChannelByAddr returns the binding for the peer address, if any
func (a *Allocation) GetChannelByAddr(addr net.Addr) *ChannelBind {
	a.channelBindingsLock.RLock()
	defer a.channelBindingsLock.RUnlock()
	for _, cb := range a.channelBindings {
		if addrEqual(cb.Peer, addr) {
			return cb
		}
	}
	return nil
}

// Refresh reschedules the allocation's lifetime timer
func (a *Allocation) Refresh(lifetime time.Duration) {
	if !a.lifetimeTimer.Reset(lifetime) {
		a.log.Errorf("Failed to reset allocation timer for %v", a.fiveTuple)
	}
}

// Close releases the allocation's resources: the lifetime timer is
// cancelled, every permission and channel bind timer is stopped, and the
// relay socket is closed, which also terminates the packet handler.
// A second Close returns ErrClosed.
func (a *Allocation) Close() error {
	a.closedLock.Lock()
	defer a.closedLock.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.closed = true

	if a.lifetimeTimer != nil {
		a.lifetimeTimer.Stop()
	}

	a.permissionsLock.RLock()
	for _, p := range a.permissions {
		p.stop()
	}
	a.permissionsLock.RUnlock()

	a.channelBindingsLock.RLock()
	for _, c := range a.channelBindings {
		c.stop()
	}
	a.channelBindingsLock.RUnlock()

	return a.RelaySocket.Close()
}

// packetHandler is the relay read loop. For every datagram received on the
// relay socket it checks channel bindings before permissions: ChannelData
// framing is strictly smaller on the wire and is the intent of binding.
// Unauthorised packets are dropped.
//
// https://tools.ietf.org/html/rfc5766#section-10.3
func (a *Allocation) packetHandler(m *Manager) {
	buffer := make([]byte, rtpMTU)

	for {
		n, srcAddr, err := a.RelaySocket.ReadFrom(buffer)
		if err != nil {
			m.DeleteAllocation(a.fiveTuple)
			return
		}

		a.log.Debugf("relay socket %v received %d bytes from %v", a.RelayAddr, n, srcAddr)

		if channel := a.GetChannelByAddr(srcAddr); channel != nil {
			channelData := &proto.ChannelData{
				Number: channel.Number,
				Data:   buffer[:n],
			}
			if _, err = a.TurnSocket.WriteTo(channelData.Encode(), a.fiveTuple.SrcAddr); err != nil {
				a.log.Errorf("Failed to send ChannelData from allocation %v: %v", srcAddr, err)
			}
		} else if p := a.GetPermission(srcAddr); p != nil {
			udpAddr, ok := srcAddr.(*net.UDPAddr)
			if !ok {
				a.log.Errorf("Failed to cast %v to *net.UDPAddr", srcAddr)
				return
			}

			msg, err := stun.Build(
				stun.TransactionID,
				stun.NewType(stun.MethodData, stun.ClassIndication),
				proto.PeerAddress{IP: udpAddr.IP, Port: udpAddr.Port},
				proto.Data(buffer[:n]),
			)
			if err != nil {
				a.log.Errorf("Failed to build Data indication: %v", err)
				continue
			}
			if _, err = a.TurnSocket.WriteTo(msg.Raw, a.fiveTuple.SrcAddr); err != nil {
				a.log.Errorf("Failed to send Data indication from allocation %v: %v", srcAddr, err)
			}
		} else {
			a.log.Infof("No permission or channel exists for %v on allocation %v", srcAddr, a.RelayAddr)
		}
	}
}
