package telephony

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// StreamHandler consumes parsed Media Streams events. All callbacks are
// invoked sequentially from the connection's read goroutine, so a handler
// sees events in wire order.
type StreamHandler interface {
	// OnStreamStart fires when the provider announces the stream. The
	// connection's StreamSid is already set when this is called.
	OnStreamStart(start *StartPayload)

	// OnMedia fires for every inbound audio frame.
	OnMedia(media *MediaPayload)

	// OnMark fires when a previously sent playback marker has been rendered
	// to the caller.
	OnMark(name string)

	// OnStreamStop fires on the provider's stop event.
	OnStreamStop()

	// OnClose fires once when the WebSocket dies, whether or not a stop
	// event was seen. err is nil on a normal close.
	OnClose(err error)
}

// StreamConn wraps one inbound Media Streams WebSocket.
//
// Reads happen on a single goroutine started by Start. Writes are
// mutex-synchronized and may come from any goroutine. Sends on a closed or
// closing connection are dropped: the provider is already gone.
type StreamConn struct {
	conn    *websocket.Conn
	handler StreamHandler

	streamSid atomic.Value // string
	callSid   atomic.Value // string

	writeMu sync.Mutex
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// NewStreamConn wraps an upgraded WebSocket connection.
func NewStreamConn(conn *websocket.Conn, handler StreamHandler) *StreamConn {
	sc := &StreamConn{
		conn:    conn,
		handler: handler,
	}
	sc.streamSid.Store("")
	sc.callSid.Store("")
	return sc
}

// StreamSid returns the provider stream handle, or "" before the start event.
func (sc *StreamConn) StreamSid() string {
	return sc.streamSid.Load().(string)
}

// CallSid returns the provider call handle, or "" before the start event.
func (sc *StreamConn) CallSid() string {
	return sc.callSid.Load().(string)
}

// Start begins reading the WebSocket. It returns immediately.
func (sc *StreamConn) Start() {
	sc.wg.Add(1)
	go sc.readPump()
}

// Close closes the connection. Safe to call multiple times.
func (sc *StreamConn) Close() error {
	if sc.closed.Swap(true) {
		return nil
	}
	return sc.conn.Close()
}

// SendMedia sends one audio frame to the caller. The payload is relayed as
// received from the AI side, still base64 encoded.
func (sc *StreamConn) SendMedia(payload string) error {
	return sc.writeMessage(mediaMessage(sc.StreamSid(), payload))
}

// SendMark sends a playback marker. The provider echoes it back as a mark
// event once the audio queued before it has actually played.
func (sc *StreamConn) SendMark(name string) error {
	return sc.writeMessage(markMessage(sc.StreamSid(), name))
}

// SendClear tells the provider to discard any queued, unplayed audio.
func (sc *StreamConn) SendClear() error {
	return sc.writeMessage(clearMessage(sc.StreamSid()))
}

func (sc *StreamConn) writeMessage(msg StreamMessage) error {
	if sc.closed.Load() || msg.StreamSid == "" {
		return nil
	}

	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	if sc.closed.Load() {
		return nil
	}
	return sc.conn.WriteJSON(msg)
}

// readPump reads frames until the WebSocket dies, then notifies the handler
// exactly once.
func (sc *StreamConn) readPump() {
	defer sc.wg.Done()

	var closeErr error
	for {
		_, message, err := sc.conn.ReadMessage()
		if err != nil {
			if !sc.closed.Load() &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				closeErr = err
			}
			break
		}

		var msg StreamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			// Malformed frames are logged and dropped; one bad frame must
			// never take the call down.
			log.Printf("[StreamConn] Failed to parse message: %v", err)
			continue
		}

		sc.handleMessage(&msg)
	}

	sc.closed.Store(true)
	sc.handler.OnClose(closeErr)
}

func (sc *StreamConn) handleMessage(msg *StreamMessage) {
	switch msg.Event {
	case "connected":
		log.Printf("[StreamConn] Connected (protocol: %s, version: %s)", msg.Protocol, msg.Version)

	case "start":
		if msg.Start == nil {
			log.Printf("[StreamConn] Start event missing payload")
			return
		}
		sc.streamSid.Store(msg.Start.StreamSid)
		sc.callSid.Store(msg.Start.CallSid)
		log.Printf("[StreamConn] Stream started - StreamSid: %s, CallSid: %s",
			msg.Start.StreamSid, msg.Start.CallSid)
		sc.handler.OnStreamStart(msg.Start)

	case "media":
		if msg.Media == nil || msg.Media.Payload == "" {
			return
		}
		if msg.Media.Track != "" && msg.Media.Track != "inbound" {
			return
		}
		sc.handler.OnMedia(msg.Media)

	case "mark":
		if msg.Mark == nil {
			return
		}
		sc.handler.OnMark(msg.Mark.Name)

	case "stop":
		log.Printf("[StreamConn] Stream stopped - CallSid: %s", sc.CallSid())
		sc.handler.OnStreamStop()

	default:
		log.Printf("[StreamConn] Unknown event: %s", msg.Event)
	}
}
