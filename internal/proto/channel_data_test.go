package proto

import (
	"bytes"
	"testing"
)

func TestChannelDataEncodeDecodeRoundtrip(t *testing.T) {
	payload := []byte("channel bind")

	cd := &ChannelData{
		Number: MinChannelNumber,
		Data:   payload,
	}

	encoded := cd.Encode()

	if len(encoded)%4 != 0 {
		t.Errorf("encoded frame length %d is not 4-byte aligned", len(encoded))
	}

	decoded, err := DecodeChannelData(encoded)
	if err != nil {
		t.Fatalf("DecodeChannelData failed: %v", err)
	}

	if decoded.Number != cd.Number {
		t.Errorf("number mismatch: expected %s, got %s", cd.Number, decoded.Number)
	}
	if !bytes.Equal(decoded.Data, payload) {
		t.Errorf("payload mismatch: expected %q, got %q", payload, decoded.Data)
	}
}

func TestChannelDataEncodePadding(t *testing.T) {
	// 5-byte payload pads to the next 4-byte boundary
	cd := &ChannelData{
		Number: MinChannelNumber,
		Data:   []byte("12345"),
	}

	encoded := cd.Encode()
	if len(encoded) != 12 {
		t.Errorf("expected padded frame of 12 bytes, got %d", len(encoded))
	}

	// the length field still reports the unpadded payload size
	decoded, err := DecodeChannelData(encoded)
	if err != nil {
		t.Fatalf("DecodeChannelData failed: %v", err)
	}
	if len(decoded.Data) != 5 {
		t.Errorf("expected 5-byte payload, got %d", len(decoded.Data))
	}
}

func TestDecodeChannelDataRejectsBadInput(t *testing.T) {
	if _, err := DecodeChannelData([]byte{0x40}); err == nil {
		t.Error("expected error for short frame")
	}

	// channel number below the valid range
	if _, err := DecodeChannelData([]byte{0x3F, 0xFF, 0x00, 0x00}); err == nil {
		t.Error("expected error for out-of-range channel number")
	}

	// header claims more payload than present
	if _, err := DecodeChannelData([]byte{0x40, 0x00, 0x00, 0x08, 0x01, 0x02}); err == nil {
		t.Error("expected error for incomplete payload")
	}
}

func TestIsChannelData(t *testing.T) {
	cd := &ChannelData{Number: MaxChannelNumber, Data: []byte("x")}
	if !IsChannelData(cd.Encode()) {
		t.Error("encoded frame should be recognised")
	}

	if IsChannelData([]byte{0x40, 0x00}) {
		t.Error("short input should not be recognised")
	}

	// 0x8000 is outside the channel range
	if IsChannelData([]byte{0x80, 0x00, 0x00, 0x00}) {
		t.Error("out-of-range number should not be recognised")
	}
}
