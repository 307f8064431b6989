package websocket

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// handshakeGUID is the fixed GUID every WebSocket handshake concatenates
// with the client key (RFC 6455 section 1.3).
const handshakeGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// AcceptKey computes the Sec-WebSocket-Accept value for a client key:
// SHA-1 over key+GUID, then base64 of the digest.
func AcceptKey(key string) string {
	h := sha1.New()
	io.WriteString(h, key+handshakeGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// ValidateUpgrade checks that the request is a well-formed WebSocket
// upgrade and returns the client key. A missing or malformed key fails the
// upgrade rather than proceeding with an invalid accept value.
func ValidateUpgrade(r *http.Request) (string, error) {
	if !strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return "", ErrNotUpgrade
	}
	if !headerContainsToken(r.Header.Get("Connection"), "upgrade") {
		return "", ErrNotUpgrade
	}

	key := r.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return "", ErrMissingKey
	}
	// The key must be the base64 form of a 16-byte nonce.
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 16 {
		return "", ErrMalformedKey
	}

	return key, nil
}

// WriteHandshake writes the 101 Switching Protocols response directly onto
// the raw socket, before any frame traffic begins.
func WriteHandshake(w io.Writer, key string) error {
	response := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\n"+
			"Upgrade: websocket\r\n"+
			"Connection: Upgrade\r\n"+
			"Sec-WebSocket-Accept: %s\r\n"+
			"\r\n",
		AcceptKey(key),
	)
	_, err := io.WriteString(w, response)
	return err
}

// headerContainsToken reports whether a comma-separated header value
// contains token, case-insensitively. Browsers send values like
// "keep-alive, Upgrade" so an equality check is not enough.
func headerContainsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
