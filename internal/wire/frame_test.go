// ABOUTME: Tests for the frame codec: round-trips across all length classes,
// ABOUTME: exact byte layouts, mask handling, and incomplete-buffer detection.

package wire

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	// Lengths straddling every length-class boundary.
	for _, n := range []int{0, 1, 125, 126, 65535, 65536, 70000} {
		t.Run(fmt.Sprintf("len_%d", n), func(t *testing.T) {
			payload := make([]byte, n)
			for i := range payload {
				payload[i] = byte(i * 7)
			}

			frame, consumed, err := Decode(Encode(payload))
			require.NoError(t, err)
			assert.Equal(t, OpcodeText, frame.Opcode)
			assert.True(t, frame.Final)
			assert.False(t, frame.Masked)
			assert.Equal(t, payload, frame.Payload)
			assert.Equal(t, len(Encode(payload)), consumed)
		})
	}
}

func TestEncodeHelloExactBytes(t *testing.T) {
	got := Encode([]byte("hello"))
	want := []byte{0x81, 0x05, 'h', 'e', 'l', 'l', 'o'}
	assert.Equal(t, want, got)
}

func TestEncodeHeaderSizes(t *testing.T) {
	tests := []struct {
		payloadLen int
		headerLen  int
	}{
		{125, 2},
		{126, 4},
		{65535, 4},
		{65536, 10},
	}
	for _, tt := range tests {
		frame := Encode(make([]byte, tt.payloadLen))
		assert.Equal(t, tt.headerLen+tt.payloadLen, len(frame), "payload length %d", tt.payloadLen)
	}
}

func TestDecodeMaskedPayload(t *testing.T) {
	// Header [0x81 0x83]: final text frame, masked, length 3. Payload bytes
	// are XORed against the mask key cycling every 4 bytes.
	plaintext := []byte{'a', 'b', 'c'}
	mask := []byte{1, 2, 3, 4}

	buf := []byte{0x81, 0x83}
	buf = append(buf, mask...)
	for i, b := range plaintext {
		buf = append(buf, b^mask[i%4])
	}

	frame, consumed, err := Decode(buf)
	require.NoError(t, err)
	assert.True(t, frame.Masked)
	assert.Equal(t, plaintext, frame.Payload)
	assert.Equal(t, len(buf), consumed)
}

func TestDecodeMaskedKnownKey(t *testing.T) {
	// Full 4-byte cycle plus one: verifies the key wraps correctly.
	plaintext := []byte("signal")
	mask := []byte{0xDE, 0xAD, 0xBE, 0xEF}

	buf := []byte{0x81, byte(0x80 | len(plaintext))}
	buf = append(buf, mask...)
	for i, b := range plaintext {
		buf = append(buf, b^mask[i%4])
	}

	frame, _, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, plaintext, frame.Payload)
}

func TestDecodeIncomplete(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"empty", nil},
		{"one byte", []byte{0x81}},
		{"missing 16-bit extension", []byte{0x81, 126, 0x01}},
		{"missing 64-bit extension", []byte{0x81, 127, 0, 0, 0, 0}},
		{"missing mask key", []byte{0x81, 0x83, 1, 2}},
		{"truncated payload", []byte{0x81, 0x05, 'h', 'e'}},
		{"truncated masked payload", []byte{0x81, 0x83, 1, 2, 3, 4, 'x'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.buf)
			assert.ErrorIs(t, err, ErrIncompleteFrame)
		})
	}
}

func TestDecodeConsumesSingleFrame(t *testing.T) {
	// Two frames back to back: the consumed count must point at the second.
	first := Encode([]byte("one"))
	second := Encode([]byte("two"))
	buf := append(append([]byte{}, first...), second...)

	frame, consumed, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), frame.Payload)
	require.Equal(t, len(first), consumed)

	frame, _, err = Decode(buf[consumed:])
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), frame.Payload)
}

func TestDecodeOpcodes(t *testing.T) {
	closeFrame := []byte{finBit | OpcodeClose, 0x00}
	frame, _, err := Decode(closeFrame)
	require.NoError(t, err)
	assert.Equal(t, OpcodeClose, frame.Opcode)
	assert.True(t, frame.IsControl())
	assert.True(t, bytes.Equal(frame.Payload, []byte{}))

	binFrame := []byte{finBit | OpcodeBinary, 0x01, 0xFF}
	frame, _, err = Decode(binFrame)
	require.NoError(t, err)
	assert.Equal(t, OpcodeBinary, frame.Opcode)
	assert.False(t, frame.IsControl())
}
