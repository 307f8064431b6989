package fixtures

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the loosely-typed shape of every broadcast a viewer can
// receive. Fields outside the event's own set stay at their zero value.
type Event struct {
	Type           string `json:"type"`
	StudyID        string `json:"study_id"`
	SessionID      string `json:"session_id"`
	PersonaName    string `json:"persona_name"`
	Phase          string `json:"phase"`
	Percent        int    `json:"percent"`
	StepNumber     int    `json:"step_number"`
	ThinkAloud     string `json:"think_aloud"`
	ScreenshotURL  string `json:"screenshot_url"`
	EmotionalState string `json:"emotional_state"`
	Action         string `json:"action"`
	TaskProgress   int    `json:"task_progress"`
	Completed      bool   `json:"completed"`
	TotalSteps     int    `json:"total_steps"`
	Score          int    `json:"score"`
	IssuesCount    int    `json:"issues_count"`
}

// TestClient is an independent WebSocket viewer used to exercise the
// server's handshake and broadcast path from the outside.
type TestClient struct {
	ServerURL string

	conn   *websocket.Conn
	events chan *Event
	pongs  chan string
	errors chan error
	done   chan struct{}

	mu        sync.RWMutex
	closed    bool
	connected bool
}

// NewTestClient creates a viewer client for the given server base URL.
func NewTestClient(serverURL string) *TestClient {
	return &TestClient{
		ServerURL: serverURL,
		events:    make(chan *Event, 256),
		pongs:     make(chan string, 8),
		errors:    make(chan error, 8),
		done:      make(chan struct{}),
	}
}

// Connect performs the WebSocket handshake against /ws and starts the
// read loop.
func (tc *TestClient) Connect(ctx context.Context) error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.connected {
		return fmt.Errorf("client already connected")
	}

	u, err := url.Parse(tc.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	conn.SetPongHandler(func(payload string) error {
		select {
		case tc.pongs <- payload:
		default:
		}
		return nil
	})

	tc.conn = conn
	tc.connected = true

	go tc.readLoop()

	return nil
}

func (tc *TestClient) readLoop() {
	defer func() {
		tc.mu.Lock()
		tc.connected = false
		tc.mu.Unlock()

		select {
		case <-tc.done:
		default:
			close(tc.done)
		}
	}()

	for {
		tc.mu.RLock()
		conn := tc.conn
		closed := tc.closed
		tc.mu.RUnlock()

		if closed || conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

		var event Event
		if err := conn.ReadJSON(&event); err != nil {
			// A close reply is normal termination, not a failure. The
			// server answers with an empty close frame, which gorilla
			// reports as "no status received".
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				return
			}

			tc.mu.RLock()
			stillClosed := tc.closed
			tc.mu.RUnlock()

			if !stillClosed {
				select {
				case tc.errors <- fmt.Errorf("read error: %w", err):
				default:
				}
			}
			return
		}

		select {
		case tc.events <- &event:
		default:
			select {
			case tc.errors <- fmt.Errorf("event channel full, dropping event"):
			default:
			}
		}
	}
}

// ReceiveEvent waits for the next broadcast event.
func (tc *TestClient) ReceiveEvent(timeout time.Duration) (*Event, error) {
	select {
	case event := <-tc.events:
		return event, nil
	case err := <-tc.errors:
		return nil, err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for event")
	case <-tc.done:
		return nil, fmt.Errorf("client disconnected")
	}
}

// WaitForEventType consumes events until one of the wanted type arrives,
// returning it along with everything skipped on the way.
func (tc *TestClient) WaitForEventType(eventType string, timeout time.Duration) (*Event, []*Event, error) {
	var skipped []*Event
	deadline := time.Now().Add(timeout)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, skipped, fmt.Errorf("timeout waiting for event type %s", eventType)
		}
		event, err := tc.ReceiveEvent(remaining)
		if err != nil {
			return nil, skipped, err
		}
		if event.Type == eventType {
			return event, skipped, nil
		}
		skipped = append(skipped, event)
	}
}

// DrainEvents returns every buffered event without blocking.
func (tc *TestClient) DrainEvents() []*Event {
	events := []*Event{}
	for {
		select {
		case event := <-tc.events:
			events = append(events, event)
		default:
			return events
		}
	}
}

// SendPing sends a WebSocket ping carrying the given payload.
func (tc *TestClient) SendPing(payload string) error {
	tc.mu.RLock()
	conn := tc.conn
	connected := tc.connected
	tc.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("client not connected")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.PingMessage, []byte(payload))
}

// WaitForPong waits for a pong and returns its payload.
func (tc *TestClient) WaitForPong(timeout time.Duration) (string, error) {
	select {
	case payload := <-tc.pongs:
		return payload, nil
	case <-time.After(timeout):
		return "", fmt.Errorf("timeout waiting for pong")
	case <-tc.done:
		return "", fmt.Errorf("client disconnected")
	}
}

// SendText sends a text message; the server accepts and ignores these.
func (tc *TestClient) SendText(text string) error {
	tc.mu.RLock()
	conn := tc.conn
	connected := tc.connected
	tc.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("client not connected")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// CloseHandshake initiates a clean close and waits for the server's
// close reply, which surfaces as a CloseError on the read loop.
func (tc *TestClient) CloseHandshake(timeout time.Duration) error {
	tc.mu.RLock()
	conn := tc.conn
	connected := tc.connected
	tc.mu.RUnlock()

	if !connected || conn == nil {
		return fmt.Errorf("client not connected")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
		return fmt.Errorf("failed to send close: %w", err)
	}

	select {
	case <-tc.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timeout waiting for close reply")
	}
}

// Close tears the connection down without a close handshake.
func (tc *TestClient) Close() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.closed {
		return nil
	}
	tc.closed = true

	if tc.conn != nil {
		_ = tc.conn.Close()
	}

	select {
	case <-tc.done:
	default:
		close(tc.done)
	}

	return nil
}

// IsConnected reports whether the read loop is still live.
func (tc *TestClient) IsConnected() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.connected && !tc.closed
}

// Errors drains any read-loop errors collected so far.
func (tc *TestClient) Errors() []error {
	errs := []error{}
	for {
		select {
		case err := <-tc.errors:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}
