package proto

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// channelDataHeaderSize is the fixed ChannelData prefix:
// 2 bytes channel number, 2 bytes length.
const channelDataHeaderSize = 4

// ChannelData is the compact framing used once a channel has been bound:
// the 4-byte header followed by the payload, padded to a 4-byte boundary.
// It deliberately is not a STUN message, so it is framed here rather than
// through the STUN codec.
type ChannelData struct {
	Number ChannelNumber
	Data   []byte
}

// Encode encodes the ChannelData frame to wire format
func (c *ChannelData) Encode() []byte {
	frameLen := channelDataHeaderSize + len(c.Data)
	if pad := frameLen % 4; pad != 0 {
		frameLen += 4 - pad
	}

	buf := make([]byte, frameLen)
	binary.BigEndian.PutUint16(buf[0:2], uint16(c.Number))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(c.Data)))
	copy(buf[channelDataHeaderSize:], c.Data)
	return buf
}

// DecodeChannelData decodes a ChannelData frame from wire format
func DecodeChannelData(data []byte) (*ChannelData, error) {
	if len(data) < channelDataHeaderSize {
		return nil, errors.Errorf("channel data too short: %d bytes", len(data))
	}

	number := ChannelNumber(binary.BigEndian.Uint16(data[0:2]))
	if !number.Valid() {
		return nil, errors.Errorf("channel number %s out of range", number)
	}

	length := int(binary.BigEndian.Uint16(data[2:4]))
	if channelDataHeaderSize+length > len(data) {
		return nil, errors.Errorf("incomplete channel data: header says %d bytes, got %d", length, len(data)-channelDataHeaderSize)
	}

	payload := make([]byte, length)
	copy(payload, data[channelDataHeaderSize:channelDataHeaderSize+length])

	return &ChannelData{
		Number: number,
		Data:   payload,
	}, nil
}

// IsChannelData reports whether data starts with a plausible ChannelData
// header: the first two bytes hold an in-range channel number.
func IsChannelData(data []byte) bool {
	if len(data) < channelDataHeaderSize {
		return false
	}
	return ChannelNumber(binary.BigEndian.Uint16(data[0:2])).Valid()
}
