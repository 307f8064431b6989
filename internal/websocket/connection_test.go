package websocket

import (
	"net"
	"testing"
	"time"
)

// readFrame accumulates bytes from the peer side of a pipe until a
// complete frame decodes.
func readFrame(t *testing.T, c net.Conn) *Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))

	var buf []byte
	chunk := make([]byte, 1024)
	for {
		frame, n, err := DecodeFrame(buf, testMaxFrame)
		if err != nil {
			t.Fatalf("peer decode error: %v", err)
		}
		if frame != nil {
			buf = buf[n:]
			return frame
		}
		nr, err := c.Read(chunk)
		if err != nil {
			t.Fatalf("peer read error: %v", err)
		}
		buf = append(buf, chunk[:nr]...)
	}
}

func newTestConnection(t *testing.T) (*Connection, net.Conn, chan struct{}) {
	t.Helper()
	server, client := net.Pipe()
	conn := NewConnection(server, server, 8, testMaxFrame, time.Second)

	done := make(chan struct{})
	go func() {
		conn.ReadFrames(nil)
		close(done)
	}()

	t.Cleanup(func() {
		_ = conn.Close()
		_ = client.Close()
	})
	return conn, client, done
}

func TestConnection_PingYieldsIdenticalPong(t *testing.T) {
	_, client, _ := newTestConnection(t)
	key := [4]byte{0xA1, 0xB2, 0xC3, 0xD4}

	go func() {
		_, _ = client.Write(maskClientFrame(OpcodePing, []byte("abc"), key))
	}()

	pong := readFrame(t, client)
	if pong.Opcode != OpcodePong {
		t.Fatalf("opcode %#x, want pong", pong.Opcode)
	}
	if string(pong.Payload) != "abc" {
		t.Errorf("pong payload %q, want byte-identical %q", pong.Payload, "abc")
	}
}

func TestConnection_CloseAnsweredOnceAndTerminates(t *testing.T) {
	_, client, done := newTestConnection(t)
	key := [4]byte{0x01, 0x02, 0x03, 0x04}

	go func() {
		_, _ = client.Write(maskClientFrame(OpcodeClose, nil, key))
	}()

	reply := readFrame(t, client)
	if reply.Opcode != OpcodeClose {
		t.Fatalf("opcode %#x, want close", reply.Opcode)
	}
	if len(reply.Payload) != 0 {
		t.Errorf("close acknowledgement payload %d bytes, want empty", len(reply.Payload))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not terminate after close")
	}
}

func TestConnection_MalformedFrameClosesWithProtocolError(t *testing.T) {
	_, client, done := newTestConnection(t)

	go func() {
		// Opcode 0x3 is reserved.
		_, _ = client.Write([]byte{finBit | 0x3, 0x00})
	}()

	reply := readFrame(t, client)
	if reply.Opcode != OpcodeClose {
		t.Fatalf("opcode %#x, want close", reply.Opcode)
	}
	code := uint16(reply.Payload[0])<<8 | uint16(reply.Payload[1])
	if code != CloseProtocolError {
		t.Errorf("close code %d, want %d", code, CloseProtocolError)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not terminate after protocol error")
	}
}

func TestConnection_OversizedFrameClosesWithMessageTooBig(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server, server, 8, 16, time.Second)

	done := make(chan struct{})
	go func() {
		conn.ReadFrames(nil)
		close(done)
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		_ = client.Close()
	})

	key := [4]byte{0x05, 0x06, 0x07, 0x08}
	go func() {
		_, _ = client.Write(maskClientFrame(OpcodeText, []byte("payload beyond the sixteen byte cap"), key))
	}()

	reply := readFrame(t, client)
	if reply.Opcode != OpcodeClose {
		t.Fatalf("opcode %#x, want close", reply.Opcode)
	}
	code := uint16(reply.Payload[0])<<8 | uint16(reply.Payload[1])
	if code != CloseMessageTooBig {
		t.Errorf("close code %d, want %d", code, CloseMessageTooBig)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not terminate after oversized frame")
	}
}

func TestConnection_TextHandedToCallbackAcrossFragmentedReads(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server, server, 8, testMaxFrame, time.Second)

	received := make(chan []byte, 1)
	go conn.ReadFrames(func(payload []byte) {
		received <- payload
	})
	t.Cleanup(func() {
		_ = conn.Close()
		_ = client.Close()
	})

	key := [4]byte{0x11, 0x22, 0x33, 0x44}
	frame := maskClientFrame(OpcodeText, []byte("split across writes"), key)

	// Deliver the frame one byte at a time.
	go func() {
		for i := range frame {
			if _, err := client.Write(frame[i : i+1]); err != nil {
				return
			}
		}
	}()

	select {
	case payload := <-received:
		if string(payload) != "split across writes" {
			t.Errorf("payload %q, want %q", payload, "split across writes")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("text frame never reached the callback")
	}
}

func TestConnection_SendAfterCloseFails(t *testing.T) {
	server, client := net.Pipe()
	conn := NewConnection(server, server, 8, testMaxFrame, time.Second)
	_ = client.Close()
	_ = conn.Close()

	if err := conn.Send(EncodeText([]byte("late"))); err != ErrConnectionClosed {
		t.Errorf("Send after close = %v, want ErrConnectionClosed", err)
	}
}
