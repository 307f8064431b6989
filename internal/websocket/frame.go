package websocket

import (
	"encoding/binary"
)

// WebSocket opcodes (RFC 6455 section 5.2).
const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)

// Close status codes sent when terminating a connection.
const (
	CloseProtocolError uint16 = 1002
	CloseMessageTooBig uint16 = 1009
)

const (
	finBit  = 0x80
	rsvBits = 0x70
	maskBit = 0x80
)

// Frame is one decoded WebSocket protocol message unit.
type Frame struct {
	FIN     bool
	Opcode  byte
	Masked  bool
	Payload []byte
}

// DecodeFrame reads at most one frame from the front of buf.
//
// The decode is non-destructive on incomplete input: if buf does not yet
// contain a full frame the return is (nil, 0, nil) and the caller keeps
// accumulating bytes and retries. On success the consumed byte count is
// returned so the caller can advance its read cursor. Repeated calls over
// an arbitrarily fragmented stream therefore yield the same frame sequence
// as decoding the unfragmented stream.
//
// maxPayload bounds the declared payload length before any allocation;
// frames above it fail with ErrFrameTooLarge. The 8-byte extended length
// is decoded through uint64 — a 32-bit intermediate would silently
// truncate lengths above 4 GiB, which is why the cap is checked on the
// uint64 value.
func DecodeFrame(buf []byte, maxPayload int) (*Frame, int, error) {
	if len(buf) < 2 {
		return nil, 0, nil
	}

	b0, b1 := buf[0], buf[1]
	fin := b0&finBit != 0
	if b0&rsvBits != 0 {
		return nil, 0, ErrReservedBits
	}

	opcode := b0 & 0x0F
	switch opcode {
	case OpcodeContinuation, OpcodeText, OpcodeBinary, OpcodeClose, OpcodePing, OpcodePong:
	default:
		return nil, 0, ErrUnknownOpcode
	}

	masked := b1&maskBit != 0
	length := uint64(b1 & 0x7F)
	offset := 2

	// 7-bit length field: 126 selects a 2-byte big-endian extension,
	// 127 an 8-byte one.
	switch length {
	case 126:
		if len(buf) < offset+2 {
			return nil, 0, nil
		}
		length = uint64(binary.BigEndian.Uint16(buf[offset : offset+2]))
		offset += 2
	case 127:
		if len(buf) < offset+8 {
			return nil, 0, nil
		}
		length = binary.BigEndian.Uint64(buf[offset : offset+8])
		if length&(1<<63) != 0 {
			return nil, 0, ErrInvalidLength
		}
		offset += 8
	}

	// Control frames must not be fragmented and carry at most 125 bytes.
	if opcode&0x8 != 0 && (!fin || length > 125) {
		return nil, 0, ErrInvalidControlFrame
	}

	if maxPayload > 0 && length > uint64(maxPayload) {
		return nil, 0, ErrFrameTooLarge
	}

	var maskKey [4]byte
	if masked {
		if len(buf) < offset+4 {
			return nil, 0, nil
		}
		copy(maskKey[:], buf[offset:offset+4])
		offset += 4
	}

	total := offset + int(length)
	if len(buf) < total {
		return nil, 0, nil
	}

	payload := make([]byte, length)
	copy(payload, buf[offset:total])
	if masked {
		for i := range payload {
			payload[i] ^= maskKey[i%4]
		}
	}

	return &Frame{FIN: fin, Opcode: opcode, Masked: masked, Payload: payload}, total, nil
}

// EncodeFrame builds a single final, unmasked frame. Server-to-client
// frames are never masked (RFC 6455 section 5.1).
func EncodeFrame(opcode byte, payload []byte) []byte {
	n := len(payload)
	header := make([]byte, 0, 10+n)
	header = append(header, finBit|opcode)

	switch {
	case n < 126:
		header = append(header, byte(n))
	case n < 65536:
		header = append(header, 126, byte(n>>8), byte(n))
	default:
		var ext [8]byte
		binary.BigEndian.PutUint64(ext[:], uint64(n))
		header = append(header, 127)
		header = append(header, ext[:]...)
	}

	return append(header, payload...)
}

// EncodeText builds an unmasked text frame carrying payload.
func EncodeText(payload []byte) []byte {
	return EncodeFrame(OpcodeText, payload)
}

// EncodePong builds a pong frame echoing payload byte for byte.
func EncodePong(payload []byte) []byte {
	return EncodeFrame(OpcodePong, payload)
}

// EncodeClose builds a close frame. Code 0 produces the empty close frame
// used to acknowledge a client-initiated close; any other code is carried
// as a 2-byte big-endian status.
func EncodeClose(code uint16) []byte {
	if code == 0 {
		return EncodeFrame(OpcodeClose, nil)
	}
	return EncodeFrame(OpcodeClose, []byte{byte(code >> 8), byte(code)})
}
