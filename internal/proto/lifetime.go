package proto

import (
	"encoding/binary"
	"time"

	"github.com/pion/stun"
)

// lifetimeSize is the LIFETIME attribute value size: seconds as uint32.
const lifetimeSize = 4

// Lifetime implements the LIFETIME attribute: how long the server keeps an
// allocation alive without a refresh.
type Lifetime struct {
	time.Duration
}

// AddTo adds a LIFETIME attribute to the message
func (l Lifetime) AddTo(m *stun.Message) error {
	v := make([]byte, lifetimeSize)
	binary.BigEndian.PutUint32(v, uint32(l.Seconds()))
	m.Add(stun.AttrLifetime, v)
	return nil
}

// GetFrom decodes a LIFETIME attribute from the message
func (l *Lifetime) GetFrom(m *stun.Message) error {
	v, err := m.Get(stun.AttrLifetime)
	if err != nil {
		return err
	}
	if err := stun.CheckSize(stun.AttrLifetime, len(v), lifetimeSize); err != nil {
		return err
	}
	l.Duration = time.Second * time.Duration(binary.BigEndian.Uint32(v))
	return nil
}
