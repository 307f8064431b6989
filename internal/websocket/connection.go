package websocket

import (
	"context"
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Connection wraps one upgraded client socket.
//
// ARCHITECTURAL DISCOVERY: all physical writes are serialized through a
// single mutex-guarded write path; broadcast frames additionally pass
// through a buffered channel drained by one writer goroutine so a slow
// client can never stall the broadcaster.
type Connection struct {
	id      string
	conn    net.Conn
	reader  io.Reader
	writeCh chan []byte

	maxFrameBytes int
	writeTimeout  time.Duration

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	writeMu   sync.Mutex
}

// NewConnection creates a connection wrapper over an already-upgraded
// socket. reader must be the hijacked buffered reader so bytes the HTTP
// server read ahead are not lost.
func NewConnection(conn net.Conn, reader io.Reader, sendBuffer, maxFrameBytes int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:            uuid.New().String(),
		conn:          conn,
		reader:        reader,
		writeCh:       make(chan []byte, sendBuffer),
		maxFrameBytes: maxFrameBytes,
		writeTimeout:  writeTimeout,
		ctx:           ctx,
		cancel:        cancel,
	}

	go c.writeLoop()

	return c
}

// ID returns the connection's registry identity.
func (c *Connection) ID() string { return c.id }

// writeLoop drains queued broadcast frames onto the socket.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.write(data); err != nil {
				// The read loop observes the dead socket and triggers
				// unregistration; nothing more to do here.
				c.cancel()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// write performs one deadline-bounded physical write.
func (c *Connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	_, err := c.conn.Write(data)
	return err
}

// Send queues an already-encoded frame for delivery. It never blocks: a
// closed connection or a full buffer surfaces as an error so the caller
// can prune this client.
func (c *Connection) Send(frame []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.writeCh <- frame:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// ReadFrames runs the connection's read loop until the client closes, the
// socket errors, or a protocol violation occurs. Incoming bytes are
// accumulated and re-offered to the decoder, so frames fragmented across
// arbitrary read boundaries decode identically to an unfragmented stream.
//
// Control behavior: close is answered with one empty close frame and
// terminates the loop; ping is answered with a pong carrying the identical
// payload; text is handed to onText and otherwise ignored — this is a
// push-only channel.
func (c *Connection) ReadFrames(onText func([]byte)) {
	defer c.cancel()

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		frame, n, err := DecodeFrame(buf, c.maxFrameBytes)
		if err != nil {
			code := CloseProtocolError
			if errors.Is(err, ErrFrameTooLarge) {
				code = CloseMessageTooBig
			}
			if werr := c.write(EncodeClose(code)); werr != nil {
				log.Printf("viewer %s: failed to send protocol close: %v", c.id, werr)
			}
			return
		}

		if frame != nil {
			buf = buf[n:]

			switch frame.Opcode {
			case OpcodeClose:
				// Exactly one close frame back, then terminate.
				if werr := c.write(EncodeClose(0)); werr != nil {
					log.Printf("viewer %s: failed to acknowledge close: %v", c.id, werr)
				}
				return
			case OpcodePing:
				if werr := c.write(EncodePong(frame.Payload)); werr != nil {
					return
				}
			case OpcodePong:
				// Unsolicited pongs are permitted and ignored.
			case OpcodeText:
				if onText != nil {
					onText(frame.Payload)
				}
			}
			continue
		}

		// No complete frame yet: keep buffering.
		n, rerr := c.reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			return
		}
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
