package events

import (
	"encoding/json"
	"fmt"
)

// ServerEventType represents the type of server event.
type ServerEventType string

const (
	ServerEventTypeError                         ServerEventType = "error"
	ServerEventTypeSessionCreated                ServerEventType = "session.created"
	ServerEventTypeSessionUpdated                ServerEventType = "session.updated"
	ServerEventTypeInputAudioBufferSpeechStarted ServerEventType = "input_audio_buffer.speech_started"
	ServerEventTypeInputAudioBufferSpeechStopped ServerEventType = "input_audio_buffer.speech_stopped"
	ServerEventTypeResponseOutputAudioDelta      ServerEventType = "response.output_audio.delta"
	ServerEventTypeResponseOutputAudioDone       ServerEventType = "response.output_audio.done"
	ServerEventTypeResponseOutputItemDone        ServerEventType = "response.output_item.done"
	ServerEventTypeResponseDone                  ServerEventType = "response.done"

	// Pre-GA name for the audio delta event; some engine deployments still
	// emit it. Parsed into the same ResponseOutputAudioDeltaEvent.
	serverEventTypeResponseAudioDeltaLegacy ServerEventType = "response.audio.delta"
)

// ServerEvent is the interface for all events received from the engine.
type ServerEvent interface {
	ServerEventType() ServerEventType
}

// BaseServerEvent contains common fields for all server events.
type BaseServerEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    ServerEventType `json:"type"`
}

func (e BaseServerEvent) ServerEventType() ServerEventType {
	return e.Type
}

// ErrorEvent is a protocol or session error reported by the engine.
type ErrorEvent struct {
	BaseServerEvent
	Error ErrorDetail `json:"error"`
}

// SessionCreatedEvent is sent once after the connection opens.
type SessionCreatedEvent struct {
	BaseServerEvent
	Session Session `json:"session"`
}

// SessionUpdatedEvent acknowledges a session.update.
type SessionUpdatedEvent struct {
	BaseServerEvent
	Session Session `json:"session"`
}

// InputAudioBufferSpeechStartedEvent is sent when the engine's server VAD
// detects caller speech.
type InputAudioBufferSpeechStartedEvent struct {
	BaseServerEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

// InputAudioBufferSpeechStoppedEvent is sent when caller speech ends.
type InputAudioBufferSpeechStoppedEvent struct {
	BaseServerEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// ResponseOutputAudioDeltaEvent carries a chunk of synthesized speech.
type ResponseOutputAudioDeltaEvent struct {
	BaseServerEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"` // Base64 encoded audio
}

// ResponseOutputAudioDoneEvent is sent when the audio of one item is complete.
type ResponseOutputAudioDoneEvent struct {
	BaseServerEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

// ResponseDoneEvent is sent when a full response is complete.
type ResponseDoneEvent struct {
	BaseServerEvent
	Response struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"response"`
}

// UnknownEvent is the fallback variant for event types this bridge does not
// act on. The raw payload is retained for logging.
type UnknownEvent struct {
	BaseServerEvent
	Raw json.RawMessage `json:"-"`
}

// ParseServerEvent parses a JSON message into a ServerEvent. Unrecognized
// event types decode into UnknownEvent rather than failing: the engine adds
// event types over time and the bridge must not treat them as errors.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var base BaseServerEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to parse event type: %w", err)
	}
	if base.Type == "" {
		return nil, fmt.Errorf("event missing type field")
	}

	var event ServerEvent
	var err error

	switch base.Type {
	case ServerEventTypeError:
		var e ErrorEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeSessionCreated:
		var e SessionCreatedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeSessionUpdated:
		var e SessionUpdatedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeInputAudioBufferSpeechStarted:
		var e InputAudioBufferSpeechStartedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeInputAudioBufferSpeechStopped:
		var e InputAudioBufferSpeechStoppedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseOutputAudioDelta, serverEventTypeResponseAudioDeltaLegacy:
		var e ResponseOutputAudioDeltaEvent
		err = json.Unmarshal(data, &e)
		e.Type = ServerEventTypeResponseOutputAudioDelta
		event = &e

	case ServerEventTypeResponseOutputAudioDone:
		var e ResponseOutputAudioDoneEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseDone:
		var e ResponseDoneEvent
		err = json.Unmarshal(data, &e)
		event = &e

	default:
		return &UnknownEvent{BaseServerEvent: base, Raw: append([]byte(nil), data...)}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s event: %w", base.Type, err)
	}

	return event, nil
}
