package proto

import (
	"net"

	"github.com/pion/stun"
)

// PeerAddress implements the XOR-PEER-ADDRESS attribute: the transport
// address of the peer as seen from the relay, obfuscated with the STUN
// XOR scheme.
type PeerAddress struct {
	IP   net.IP
	Port int
}

// AddTo adds an XOR-PEER-ADDRESS attribute to the message
func (a PeerAddress) AddTo(m *stun.Message) error {
	return stun.XORMappedAddress{
		IP:   a.IP,
		Port: a.Port,
	}.AddToAs(m, stun.AttrXORPeerAddress)
}

// GetFrom decodes an XOR-PEER-ADDRESS attribute from the message
func (a *PeerAddress) GetFrom(m *stun.Message) error {
	v := stun.XORMappedAddress{}
	if err := v.GetFromAs(m, stun.AttrXORPeerAddress); err != nil {
		return err
	}
	a.IP = v.IP
	a.Port = v.Port
	return nil
}

func (a PeerAddress) String() string {
	return (&net.UDPAddr{IP: a.IP, Port: a.Port}).String()
}
