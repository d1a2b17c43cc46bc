// Package telephony terminates the provider-side Media Streams WebSocket and
// exposes the call-control REST surface.
//
// Wire protocol: JSON-framed events over WebSocket. Inbound events are
// connected/start/media/mark/stop; outbound frames are media/mark/clear.
//
// Reference: https://www.twilio.com/docs/voice/media-streams
package telephony

import "strconv"

// StreamMessage represents a Media Streams WebSocket message, inbound or
// outbound. Only the payload matching Event is set.
type StreamMessage struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSid      string        `json:"streamSid,omitempty"`
	Protocol       string        `json:"protocol,omitempty"`
	Version        string        `json:"version,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
}

// StartPayload contains stream initialization data. CustomParameters carries
// the flat string key/value pairs set in the <Stream> TwiML.
type StartPayload struct {
	AccountSid       string            `json:"accountSid"`
	StreamSid        string            `json:"streamSid"`
	CallSid          string            `json:"callSid"`
	Tracks           []string          `json:"tracks"`
	MediaFormat      MediaFormat       `json:"mediaFormat"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the audio format of the stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`   // "audio/x-mulaw"
	SampleRate int    `json:"sampleRate"` // 8000
	Channels   int    `json:"channels"`   // 1
}

// MediaPayload contains one audio frame. Timestamp is milliseconds since
// stream start, sent by the provider as a string.
type MediaPayload struct {
	Track     string `json:"track,omitempty"` // "inbound" or "outbound"
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // Base64 encoded μ-law audio
}

// TimestampMs parses the frame timestamp. Returns 0 for missing or garbled
// values; callers treat those frames as carrying no timing information.
func (m *MediaPayload) TimestampMs() int64 {
	if m == nil || m.Timestamp == "" {
		return 0
	}
	ts, err := strconv.ParseInt(m.Timestamp, 10, 64)
	if err != nil || ts < 0 {
		return 0
	}
	return ts
}

// StopPayload contains stream termination data.
type StopPayload struct {
	AccountSid string `json:"accountSid"`
	CallSid    string `json:"callSid"`
}

// MarkPayload acknowledges a previously sent playback marker.
type MarkPayload struct {
	Name string `json:"name"`
}

// mediaMessage builds an outbound audio frame.
func mediaMessage(streamSid, payload string) StreamMessage {
	return StreamMessage{
		Event:     "media",
		StreamSid: streamSid,
		Media:     &MediaPayload{Payload: payload},
	}
}

// markMessage builds an outbound playback marker.
func markMessage(streamSid, name string) StreamMessage {
	return StreamMessage{
		Event:     "mark",
		StreamSid: streamSid,
		Mark:      &MarkPayload{Name: name},
	}
}

// clearMessage builds the frame that discards audio the provider has queued
// for playback but not yet played.
func clearMessage(streamSid string) StreamMessage {
	return StreamMessage{
		Event:     "clear",
		StreamSid: streamSid,
	}
}
