package protocol

import (
	"bytes"
	"testing"
)

func TestVLQEncodeDecodeInt(t *testing.T) {
	testCases := []int32{
		0,
		1,
		-1,
		-32,
		95,
		96,
		127,
		-127,
		128,
		-128,
		1000,
		-1000,
		65535,
		-65535,
		1000000,
		-1000000,
		1 << 30,
		-(1 << 31),
	}

	for _, expected := range testCases {
		encoded := AppendVLQInt(nil, expected)

		data := encoded
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}

		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d (encoded as %v)", expected, decoded, encoded)
		}

		if len(data) != 0 {
			t.Errorf("VLQ decode didn't consume all bytes for value %d: %d bytes remaining", expected, len(data))
		}
	}
}

func TestVLQEncodedLength(t *testing.T) {
	testCases := []struct {
		value  int32
		length int
	}{
		{0, 1},
		{-32, 1},
		{95, 1},
		{-33, 2},
		{96, 2},
		{0x1800, 2},
		{1 << 20, 3},
	}

	for _, tc := range testCases {
		if n := len(AppendVLQInt(nil, tc.value)); n != tc.length {
			t.Errorf("Value %d encoded in %d bytes, expected %d", tc.value, n, tc.length)
		}
	}
}

func TestVLQEncodeDecodeUint(t *testing.T) {
	testCases := []uint32{
		0,
		1,
		127,
		128,
		255,
		1000,
		65535,
		1000000,
		0xFFFFFFFF,
	}

	for _, expected := range testCases {
		data := AppendVLQUint(nil, expected)
		decoded, err := DecodeVLQUint(&data)
		if err != nil {
			t.Errorf("Failed to decode VLQ for value %d: %v", expected, err)
			continue
		}

		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d", expected, decoded)
		}
	}
}

func TestVLQBytes(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x01},
		{0x01, 0x02, 0x03},
		{0xFF, 0xFE, 0xFD},
		make([]byte, 200),
	}

	for i, expected := range testCases {
		data := AppendVLQBytes([]byte{0x42}, expected)[1:]
		decoded, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Errorf("Test case %d: Failed to decode bytes: %v", i, err)
			continue
		}

		if !bytes.Equal(decoded, expected) {
			t.Errorf("Test case %d: expected %v, got %v", i, expected, decoded)
		}
	}
}

func TestVLQString(t *testing.T) {
	testCases := []string{
		"",
		"hello",
		"bus error: no acknowledge",
	}

	for _, expected := range testCases {
		data := AppendVLQString(nil, expected)
		decoded, err := DecodeVLQString(&data)
		if err != nil {
			t.Errorf("Failed to decode string '%s': %v", expected, err)
			continue
		}

		if decoded != expected {
			t.Errorf("String mismatch: expected '%s', got '%s'", expected, decoded)
		}
	}
}

func TestVLQBufferTooSmall(t *testing.T) {
	// Continuation byte but no following byte
	data := []byte{0x80}
	if _, err := DecodeVLQInt(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}

	// Length prefix larger than the remaining data
	data = []byte{0x05, 0x01}
	if _, err := DecodeVLQBytes(&data); err != ErrBufferTooSmall {
		t.Errorf("Expected ErrBufferTooSmall, got %v", err)
	}
}

func TestVLQTooManyContinuations(t *testing.T) {
	data := []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); err != ErrInvalidVLQ {
		t.Errorf("Expected ErrInvalidVLQ, got %v", err)
	}
}
