// Package observability exposes Prometheus metrics for the call bridge.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveCalls tracks calls currently in flight.
	ActiveCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "callplatter_active_calls",
		Help: "Number of calls currently bridged.",
	})

	// FramesRelayed counts audio frames forwarded per direction.
	// Directions: inbound (caller to AI), outbound (AI to caller).
	FramesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callplatter_frames_relayed_total",
		Help: "Audio frames relayed between the telephony and AI legs.",
	}, []string{"direction"})

	// FramesDropped counts frames dropped because the far leg was not open.
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callplatter_frames_dropped_total",
		Help: "Audio frames dropped because the receiving leg was closed.",
	}, []string{"direction"})

	// Truncations counts interruption-triggered truncate instructions.
	Truncations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callplatter_truncations_total",
		Help: "Truncate instructions sent to the AI engine after a caller interruption.",
	})

	// Interruptions counts caller speech-started events that interrupted
	// in-flight AI audio, whether or not a truncate was sent.
	Interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "callplatter_interruptions_total",
		Help: "Caller interruptions of in-flight AI speech.",
	})

	// CallsFinalized counts finalized calls by outcome.
	CallsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callplatter_calls_finalized_total",
		Help: "Calls finalized, labeled by termination reason.",
	}, []string{"reason"})

	// LookupOutcomes counts customer-lookup results.
	// Outcomes: match, no_match, error.
	LookupOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callplatter_customer_lookups_total",
		Help: "Customer context lookups by outcome.",
	}, []string{"outcome"})

	// LookupLatency observes customer-lookup wall time.
	LookupLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "callplatter_customer_lookup_seconds",
		Help:    "Customer context lookup latency.",
		Buckets: prometheus.DefBuckets,
	})

	// SessionUpdates counts session configurations pushed to the AI engine.
	// Kinds: minimal, personalized.
	SessionUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callplatter_session_updates_total",
		Help: "Session configuration messages sent to the AI engine.",
	}, []string{"kind"})
)
