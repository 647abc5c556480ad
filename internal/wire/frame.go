// ABOUTME: RFC 6455 base framing: decode and encode of single unfragmented frames.
// ABOUTME: Masking is handled on decode; encode always emits an unmasked text frame.

package wire

import (
	"encoding/binary"
	"errors"
)

// Frame opcodes per RFC 6455 section 5.2.
const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)

const (
	finBit  = 0x80
	maskBit = 0x80
)

// ErrIncompleteFrame indicates the buffer ends before the frame does. The
// caller should read more bytes and retry the decode.
var ErrIncompleteFrame = errors.New("wire: incomplete frame")

// Frame is one decoded unit of the WebSocket wire format.
type Frame struct {
	Final   bool
	Opcode  byte
	Masked  bool
	Payload []byte
}

// IsControl reports whether the frame carries a control opcode.
func (f Frame) IsControl() bool { return f.Opcode&0x8 != 0 }

// Decode parses a single frame from the front of buf. It returns the frame
// and the total number of bytes consumed (header plus payload), or
// ErrIncompleteFrame when buf is shorter than the header implies. Masked
// payloads are unmasked into a fresh buffer; unmasked payloads alias buf.
func Decode(buf []byte) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, ErrIncompleteFrame
	}

	f := Frame{
		Final:  buf[0]&finBit != 0,
		Opcode: buf[0] & 0x0F,
		Masked: buf[1]&maskBit != 0,
	}

	payloadLen := uint64(buf[1] & 0x7F)
	headerLen := 2
	switch payloadLen {
	case 126:
		if len(buf) < headerLen+2 {
			return Frame{}, 0, ErrIncompleteFrame
		}
		payloadLen = uint64(binary.BigEndian.Uint16(buf[2:4]))
		headerLen += 2
	case 127:
		if len(buf) < headerLen+8 {
			return Frame{}, 0, ErrIncompleteFrame
		}
		payloadLen = binary.BigEndian.Uint64(buf[2:10])
		headerLen += 8
	}

	var maskKey [4]byte
	if f.Masked {
		if len(buf) < headerLen+4 {
			return Frame{}, 0, ErrIncompleteFrame
		}
		copy(maskKey[:], buf[headerLen:headerLen+4])
		headerLen += 4
	}

	if uint64(len(buf)-headerLen) < payloadLen {
		return Frame{}, 0, ErrIncompleteFrame
	}

	payload := buf[headerLen : headerLen+int(payloadLen)]
	if f.Masked {
		unmasked := make([]byte, len(payload))
		for i, b := range payload {
			unmasked[i] = b ^ maskKey[i%4]
		}
		payload = unmasked
	}
	f.Payload = payload

	return f, headerLen + int(payloadLen), nil
}

// Encode wraps payload in a final, unmasked text frame, choosing the smallest
// length class that fits: 7-bit inline up to 125 bytes, a 16-bit extension up
// to 65535, and a 64-bit extension beyond that.
func Encode(payload []byte) []byte {
	n := len(payload)

	var header []byte
	switch {
	case n <= 125:
		header = []byte{finBit | OpcodeText, byte(n)}
	case n <= 0xFFFF:
		header = make([]byte, 4)
		header[0] = finBit | OpcodeText
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = make([]byte, 10)
		header[0] = finBit | OpcodeText
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}

	frame := make([]byte, 0, len(header)+n)
	frame = append(frame, header...)
	frame = append(frame, payload...)
	return frame
}
