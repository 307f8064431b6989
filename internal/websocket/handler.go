package websocket

import (
	"errors"
	"log"
	"net/http"
	"time"
)

// Handler upgrades HTTP requests to WebSocket connections and hands them
// to the registry. The upgrade is performed by hand on the hijacked
// socket — no websocket library sits between the wire and the codec.
type Handler struct {
	registry      *Registry
	sendBuffer    int
	maxFrameBytes int
	writeTimeout  time.Duration
}

// NewHandler creates a WebSocket upgrade handler.
func NewHandler(registry *Registry, sendBuffer, maxFrameBytes int, writeTimeout time.Duration) *Handler {
	return &Handler{
		registry:      registry,
		sendBuffer:    sendBuffer,
		maxFrameBytes: maxFrameBytes,
		writeTimeout:  writeTimeout,
	}
}

// HandleUpgrade validates the upgrade request, performs the handshake on
// the raw socket and registers the new viewer.
// Multi-stage validation (headers -> key -> hijack -> handshake ->
// registration) keeps invalid requests from consuming a socket.
func (h *Handler) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	key, err := ValidateUpgrade(r)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotUpgrade):
			http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		default:
			http.Error(w, "missing or malformed Sec-WebSocket-Key", http.StatusBadRequest)
		}
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "connection cannot be hijacked", http.StatusInternalServerError)
		return
	}

	netConn, rw, err := hijacker.Hijack()
	if err != nil {
		log.Printf("websocket hijack failed: %v", err)
		return
	}

	// The HTTP server's read/write deadlines survive the hijack; clear
	// them so the long-lived socket does not time out mid-session.
	_ = netConn.SetDeadline(time.Time{})

	if err := WriteHandshake(netConn, key); err != nil {
		log.Printf("websocket handshake write failed: %v", err)
		_ = netConn.Close()
		return
	}

	// The buffered reader may already hold bytes read ahead by the HTTP
	// server; reading the raw conn directly would drop them.
	conn := NewConnection(netConn, rw.Reader, h.sendBuffer, h.maxFrameBytes, h.writeTimeout)
	h.registry.Register(conn)

	go h.serve(conn)
}

// serve runs the viewer's read loop and guarantees cleanup afterwards.
func (h *Handler) serve(conn *Connection) {
	defer func() {
		h.registry.Unregister(conn)
		_ = conn.Close()
		log.Printf("viewer disconnected: id=%s total=%d", conn.ID(), h.registry.Count())
	}()

	conn.ReadFrames(func(payload []byte) {
		// Client text is accepted but not acted on: the broadcast channel
		// is push-only.
		log.Printf("viewer %s sent %d bytes (ignored)", conn.ID(), len(payload))
	})
}
