package proto

import "github.com/pion/stun"

// Data implements the DATA attribute: the raw payload carried by a Send or
// Data indication.
type Data []byte

// AddTo adds a DATA attribute to the message
func (d Data) AddTo(m *stun.Message) error {
	m.Add(stun.AttrData, d)
	return nil
}

// GetFrom decodes a DATA attribute from the message
func (d *Data) GetFrom(m *stun.Message) error {
	v, err := m.Get(stun.AttrData)
	if err != nil {
		return err
	}
	*d = v
	return nil
}
