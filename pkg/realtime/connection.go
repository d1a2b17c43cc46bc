// Package realtime implements the outbound WebSocket leg to the AI realtime
// engine.
//
// Connection responsibilities:
//   - Dial the engine with authentication headers
//   - Serialize outbound client events (writes are mutex-synchronized)
//   - Decode inbound frames into typed server events and dispatch them
//   - Swallow sends on a closing connection instead of surfacing them
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/realtime/events"
)

const (
	// DefaultEndpoint is the engine's realtime WebSocket endpoint.
	DefaultEndpoint = "wss://api.openai.com/v1/realtime"

	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-realtime-preview"

	defaultDialTimeout = 10 * time.Second
)

// EventHandler receives decoded server events and connection lifecycle
// notifications. Handlers are invoked from the connection's read goroutine,
// which runs only after Start, so the handler's owner can finish wiring
// itself up between Dial and the first event. A successful Dial is the
// connection's "open" event; there is no separate callback for it.
type EventHandler interface {
	// OnServerEvent fires for every decoded inbound event.
	OnServerEvent(event events.ServerEvent)

	// OnClose fires once when the read loop exits. err is nil on a normal
	// close handshake.
	OnClose(err error)
}

// Config holds connection parameters for the realtime engine.
type Config struct {
	// Endpoint is the WebSocket URL (default: DefaultEndpoint).
	Endpoint string

	// APIKey authenticates the connection. Required.
	APIKey string

	// Model selects the realtime model (default: DefaultModel).
	Model string

	// DialTimeout bounds the WebSocket handshake (default: 10s).
	DialTimeout time.Duration
}

// Conn is a live connection to the AI realtime engine.
type Conn struct {
	conn    *websocket.Conn
	handler EventHandler

	writeMu sync.Mutex
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// Dial opens a connection to the engine. No events are delivered until
// Start is called.
func Dial(ctx context.Context, cfg Config, handler EventHandler) (*Conn, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("realtime: API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("realtime: invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", cfg.Model)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: cfg.DialTimeout}
	wsConn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("realtime: dial failed: %w", err)
	}

	c := &Conn{
		conn:    wsConn,
		handler: handler,
	}
	return c, nil
}

// Start launches the read loop. Call it exactly once, after the handler's
// owner holds a reference to the connection; frames buffered by the engine
// during the gap are delivered in order once the loop runs.
func (c *Conn) Start() {
	c.wg.Add(1)
	go c.readPump()
}

// SendEvent sends a client event to the engine. Sends on a closed or closing
// connection are dropped silently: by the time a send races a close, the call
// is already being torn down and there is nothing useful to do with the error.
func (c *Conn) SendEvent(event events.ClientEvent) error {
	if c.closed.Load() {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("realtime: marshal %s: %w", event.ClientEventType(), err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return nil
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("realtime: send %s: %w", event.ClientEventType(), err)
	}
	return nil
}

// IsOpen reports whether the connection can still accept sends.
func (c *Conn) IsOpen() bool {
	return !c.closed.Load()
}

// Close closes the connection. Safe to call multiple times and from any
// goroutine.
func (c *Conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.writeMu.Lock()
	// Best effort close handshake; the engine drops the session either way.
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}

// readPump reads and dispatches inbound events until the connection dies.
func (c *Conn) readPump() {
	defer c.wg.Done()

	var closeErr error
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				closeErr = err
			}
			break
		}

		event, err := events.ParseServerEvent(message)
		if err != nil {
			// A single malformed frame must not take the call down.
			log.Printf("[RealtimeConn] Failed to parse event: %v", err)
			continue
		}

		c.handler.OnServerEvent(event)
	}

	c.closed.Store(true)
	c.handler.OnClose(closeErr)
}
