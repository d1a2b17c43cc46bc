package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Call attributes
	AttrCallID       = "call.id"
	AttrBusinessID   = "call.business_id"
	AttrStreamSid    = "call.stream_sid"
	AttrCallerNumber = "call.caller_number"
	AttrCallReason   = "call.termination_reason"

	// Session configuration attributes
	AttrSessionKind  = "session.config_kind"
	AttrSessionVoice = "session.voice"
	AttrSessionVAD   = "session.server_vad"

	// Lookup attributes
	AttrLookupOutcome = "lookup.outcome"

	// Interruption attributes
	AttrInterruptElapsedMs = "interrupt.elapsed_ms"
	AttrInterruptTruncated = "interrupt.truncated"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// CallAttrs creates attributes identifying one call
func CallAttrs(callID, businessID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrCallID, callID),
		attribute.String(AttrBusinessID, businessID),
	}
}

// SessionConfigAttrs creates attributes for a session configuration push
func SessionConfigAttrs(kind, voice string, serverVAD bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionKind, kind),
		attribute.String(AttrSessionVoice, voice),
		attribute.Bool(AttrSessionVAD, serverVAD),
	}
}

// InterruptionAttrs creates attributes for an interruption event
func InterruptionAttrs(elapsedMs int64, truncated bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(AttrInterruptElapsedMs, elapsedMs),
		attribute.Bool(AttrInterruptTruncated, truncated),
	}
}

// ErrorAttrs creates attributes for error information
func ErrorAttrs(errorType, message string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errorType),
		attribute.String(AttrErrorMessage, message),
	}
}
