// Package proto implements the TURN attributes and framing the relay
// produces on the wire, layered over the STUN codec from pion/stun.
package proto

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/stun"
)

// ChannelNumber identifies a channel binding on an allocation.
// Valid numbers occupy the range 0x4000 through 0x7FFF.
type ChannelNumber uint16

const (
	// MinChannelNumber is the lowest valid channel number
	MinChannelNumber ChannelNumber = 0x4000

	// MaxChannelNumber is the highest valid channel number
	MaxChannelNumber ChannelNumber = 0x7FFF
)

// channelNumberSize is the CHANNEL-NUMBER attribute value size: the 16-bit
// number followed by 16 reserved bits.
const channelNumberSize = 4

// Valid reports whether the channel number is inside the allowed range
func (n ChannelNumber) Valid() bool {
	return n >= MinChannelNumber && n <= MaxChannelNumber
}

func (n ChannelNumber) String() string {
	return fmt.Sprintf("0x%04X", uint16(n))
}

// AddTo adds a CHANNEL-NUMBER attribute to the message
func (n ChannelNumber) AddTo(m *stun.Message) error {
	v := make([]byte, channelNumberSize)
	binary.BigEndian.PutUint16(v[:2], uint16(n))
	m.Add(stun.AttrChannelNumber, v)
	return nil
}

// GetFrom decodes a CHANNEL-NUMBER attribute from the message
func (n *ChannelNumber) GetFrom(m *stun.Message) error {
	v, err := m.Get(stun.AttrChannelNumber)
	if err != nil {
		return err
	}
	if err := stun.CheckSize(stun.AttrChannelNumber, len(v), channelNumberSize); err != nil {
		return err
	}
	*n = ChannelNumber(binary.BigEndian.Uint16(v[:2]))
	return nil
}
