package websocket

import "errors"

// Frame codec errors. Incomplete input is not an error — the decoder
// signals it with a nil frame and zero consumed bytes instead.
var (
	ErrUnknownOpcode       = errors.New("unknown frame opcode")
	ErrReservedBits        = errors.New("reserved frame bits set")
	ErrInvalidLength       = errors.New("invalid frame length")
	ErrInvalidControlFrame = errors.New("control frame fragmented or oversized")
	ErrFrameTooLarge       = errors.New("frame payload exceeds configured maximum")
)

// Handshake errors.
var (
	ErrMissingKey   = errors.New("missing Sec-WebSocket-Key header")
	ErrMalformedKey = errors.New("malformed Sec-WebSocket-Key header")
	ErrNotUpgrade   = errors.New("request is not a websocket upgrade")
)

// Connection errors.
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)
