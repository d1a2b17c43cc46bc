package events

import "github.com/google/uuid"

// ClientEventType represents the type of client event.
type ClientEventType string

const (
	ClientEventTypeSessionUpdate            ClientEventType = "session.update"
	ClientEventTypeInputAudioBufferAppend   ClientEventType = "input_audio_buffer.append"
	ClientEventTypeInputAudioBufferClear    ClientEventType = "input_audio_buffer.clear"
	ClientEventTypeConversationItemTruncate ClientEventType = "conversation.item.truncate"
	ClientEventTypeResponseCreate           ClientEventType = "response.create"
	ClientEventTypeResponseCancel           ClientEventType = "response.cancel"
)

// ClientEvent is the interface for all events sent to the engine.
type ClientEvent interface {
	ClientEventType() ClientEventType
}

// BaseClientEvent contains common fields for all client events.
type BaseClientEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    ClientEventType `json:"type"`
}

func (e BaseClientEvent) ClientEventType() ClientEventType {
	return e.Type
}

// NewBaseClientEvent creates a base client event with a generated event ID.
func NewBaseClientEvent(eventType ClientEventType) BaseClientEvent {
	return BaseClientEvent{
		EventID: "evt_" + uuid.New().String()[:8],
		Type:    eventType,
	}
}

// SessionUpdateEvent updates the session configuration.
type SessionUpdateEvent struct {
	BaseClientEvent
	Session SessionConfig `json:"session"`
}

// NewSessionUpdateEvent creates a session.update event.
func NewSessionUpdateEvent(session SessionConfig) *SessionUpdateEvent {
	return &SessionUpdateEvent{
		BaseClientEvent: NewBaseClientEvent(ClientEventTypeSessionUpdate),
		Session:         session,
	}
}

// InputAudioBufferAppendEvent appends audio data to the input buffer.
type InputAudioBufferAppendEvent struct {
	BaseClientEvent
	Audio string `json:"audio"` // Base64 encoded audio data
}

// NewInputAudioBufferAppendEvent creates an input_audio_buffer.append event.
// The payload is passed through as received from the telephony side; no
// re-encoding happens on this path.
func NewInputAudioBufferAppendEvent(audio string) *InputAudioBufferAppendEvent {
	return &InputAudioBufferAppendEvent{
		BaseClientEvent: BaseClientEvent{Type: ClientEventTypeInputAudioBufferAppend},
		Audio:           audio,
	}
}

// InputAudioBufferClearEvent clears the input audio buffer.
type InputAudioBufferClearEvent struct {
	BaseClientEvent
}

// NewInputAudioBufferClearEvent creates an input_audio_buffer.clear event.
func NewInputAudioBufferClearEvent() *InputAudioBufferClearEvent {
	return &InputAudioBufferClearEvent{
		BaseClientEvent: NewBaseClientEvent(ClientEventTypeInputAudioBufferClear),
	}
}

// ConversationItemTruncateEvent tells the engine how much of its in-flight
// utterance the caller actually heard before interrupting.
type ConversationItemTruncateEvent struct {
	BaseClientEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

// NewConversationItemTruncateEvent creates a conversation.item.truncate event.
func NewConversationItemTruncateEvent(itemID string, audioEndMs int) *ConversationItemTruncateEvent {
	return &ConversationItemTruncateEvent{
		BaseClientEvent: NewBaseClientEvent(ClientEventTypeConversationItemTruncate),
		ItemID:          itemID,
		ContentIndex:    0,
		AudioEndMs:      audioEndMs,
	}
}

// ResponseCreateEvent triggers the creation of a response.
type ResponseCreateEvent struct {
	BaseClientEvent
	Response *ResponseConfig `json:"response,omitempty"`
}

// NewResponseCreateEvent creates a response.create event.
func NewResponseCreateEvent(response *ResponseConfig) *ResponseCreateEvent {
	return &ResponseCreateEvent{
		BaseClientEvent: NewBaseClientEvent(ClientEventTypeResponseCreate),
		Response:        response,
	}
}

// ResponseCancelEvent cancels the current response.
type ResponseCancelEvent struct {
	BaseClientEvent
}

// NewResponseCancelEvent creates a response.cancel event.
func NewResponseCancelEvent() *ResponseCancelEvent {
	return &ResponseCancelEvent{
		BaseClientEvent: NewBaseClientEvent(ClientEventTypeResponseCancel),
	}
}
