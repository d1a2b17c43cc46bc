// Package events defines the typed wire events exchanged with the AI
// realtime engine over WebSocket.
package events

// Modality represents the supported modalities for the session.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// AudioFormat represents the supported audio formats.
type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
	AudioFormatG711ALaw AudioFormat = "g711_alaw"
)

// TurnDetectionType represents the type of turn detection.
type TurnDetectionType string

const (
	TurnDetectionTypeServerVAD TurnDetectionType = "server_vad"
	TurnDetectionTypeSemantic  TurnDetectionType = "semantic_vad"
)

// TurnDetection represents the configuration for turn detection.
type TurnDetection struct {
	Type              TurnDetectionType `json:"type"`
	Threshold         float64           `json:"threshold,omitempty"`
	PrefixPaddingMs   int               `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int               `json:"silence_duration_ms,omitempty"`
	CreateResponse    *bool             `json:"create_response,omitempty"`
}

// TranscriptionConfig represents the configuration for input audio transcription.
type TranscriptionConfig struct {
	Model string `json:"model,omitempty"`
}

// SessionConfig is the session payload of session.update events.
//
// TurnDetection deliberately has no omitempty: a nil pointer marshals as an
// explicit JSON null, which is how the engine is told to disable server-side
// voice activity detection.
type SessionConfig struct {
	Modalities              []Modality           `json:"modalities,omitempty"`
	Model                   string               `json:"model,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	InputAudioFormat        AudioFormat          `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat          `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection"`
	Temperature             float64              `json:"temperature,omitempty"`
	MaxOutputTokens         int                  `json:"max_response_output_tokens,omitempty"`
}

// Session describes the session object echoed back by the engine in
// session.created and session.updated events.
type Session struct {
	ID                string         `json:"id"`
	Object            string         `json:"object"`
	Model             string         `json:"model"`
	Modalities        []Modality     `json:"modalities"`
	Voice             string         `json:"voice,omitempty"`
	Instructions      string         `json:"instructions,omitempty"`
	InputAudioFormat  AudioFormat    `json:"input_audio_format"`
	OutputAudioFormat AudioFormat    `json:"output_audio_format"`
	TurnDetection     *TurnDetection `json:"turn_detection,omitempty"`
	Temperature       float64        `json:"temperature,omitempty"`
}

// ResponseConfig is the response payload of response.create events.
type ResponseConfig struct {
	Modalities   []Modality `json:"modalities,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
}

// ErrorDetail carries the engine's error payload.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}
