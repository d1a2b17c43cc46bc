package bridge

import (
	"strings"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/customer"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/realtime/events"
)

const (
	defaultVoice       = "alloy"
	defaultTemperature = 0.8

	// The engine rejects temperatures outside this range.
	minTemperature = 0.6
	maxTemperature = 1.2

	defaultGreeting = "Greet the caller warmly and ask how you can help them today."
)

// BuildSessionConfig derives the session configuration from the business
// snapshot and, when non-nil and matched, the customer context. It is a pure
// function: every change to AI behavior mid-call is a fresh call to it.
//
// Greeting precedence: personalized customer greeting, then the business
// first message, then a generic default.
func BuildSessionConfig(biz *business.Config, cust *customer.Context) events.SessionConfig {
	cfg := events.SessionConfig{
		Modalities:        []events.Modality{events.ModalityText, events.ModalityAudio},
		Voice:             biz.Voice,
		InputAudioFormat:  events.AudioFormatG711ULaw,
		OutputAudioFormat: events.AudioFormatG711ULaw,
		Temperature:       clampTemperature(biz.Temperature),
		Instructions:      composeInstructions(biz, cust),
		TurnDetection:     turnDetectionFor(biz),
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultVoice
	}
	return cfg
}

func composeInstructions(biz *business.Config, cust *customer.Context) string {
	var parts []string

	if s := strings.TrimSpace(biz.SystemInstructions); s != "" {
		parts = append(parts, s)
	}

	switch {
	case cust != nil && cust.IsExistingCustomer && cust.ContextInstructions != "":
		parts = append(parts, cust.ContextInstructions)
	case strings.TrimSpace(biz.FirstMessage) != "":
		parts = append(parts, "Start the call by saying exactly: \""+strings.TrimSpace(biz.FirstMessage)+"\"")
	default:
		parts = append(parts, defaultGreeting)
	}

	if g := strings.TrimSpace(biz.GoodbyeMessage); g != "" {
		parts = append(parts, "When the conversation is over, end the call by saying: \""+g+"\"")
	}

	return strings.Join(parts, "\n\n")
}

// turnDetectionFor returns nil when server VAD is disabled, which marshals
// as an explicit null and turns turn detection off at the engine.
func turnDetectionFor(biz *business.Config) *events.TurnDetection {
	if !biz.ServerVADEnabled {
		return nil
	}
	td := &events.TurnDetection{
		Type:              events.TurnDetectionTypeServerVAD,
		Threshold:         0.5,
		PrefixPaddingMs:   300,
		SilenceDurationMs: 500,
	}
	if biz.TurnPolicy == string(events.TurnDetectionTypeSemantic) {
		td.Type = events.TurnDetectionTypeSemantic
		// Semantic VAD takes no threshold or silence tuning.
		td.Threshold = 0
		td.PrefixPaddingMs = 0
		td.SilenceDurationMs = 0
	}
	return td
}

func clampTemperature(t float64) float64 {
	if t == 0 {
		return defaultTemperature
	}
	if t < minTemperature {
		return minTemperature
	}
	if t > maxTemperature {
		return maxTemperature
	}
	return t
}
