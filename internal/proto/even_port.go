package proto

import "github.com/pion/stun"

// evenPortSize is the EVEN-PORT attribute value size: the R bit plus
// reserved bits in a single byte.
const evenPortSize = 1

const reservationRequestBit = 1 << 7

// EvenPort implements the EVEN-PORT attribute: the client asks for an even
// relay port and, when ReservePort is set, for the next port up to be held
// under a reservation token.
type EvenPort struct {
	ReservePort bool
}

// AddTo adds an EVEN-PORT attribute to the message
func (p EvenPort) AddTo(m *stun.Message) error {
	v := make([]byte, evenPortSize)
	if p.ReservePort {
		v[0] |= reservationRequestBit
	}
	m.Add(stun.AttrEvenPort, v)
	return nil
}

// GetFrom decodes an EVEN-PORT attribute from the message
func (p *EvenPort) GetFrom(m *stun.Message) error {
	v, err := m.Get(stun.AttrEvenPort)
	if err != nil {
		return err
	}
	if err := stun.CheckSize(stun.AttrEvenPort, len(v), evenPortSize); err != nil {
		return err
	}
	p.ReservePort = v[0]&reservationRequestBit != 0
	return nil
}
