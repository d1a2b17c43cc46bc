package lifecycle

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
)

// CallControl is the slice of the telephony provider's REST surface the
// orchestrator needs. *telephony.RestClient satisfies it.
type CallControl interface {
	StartRecording(ctx context.Context, callSid string) (string, error)
	SayAndHangup(ctx context.Context, callSid, message string) error
}

// TranscriptionService receives finalized calls for async transcription.
type TranscriptionService interface {
	EnqueueTranscription(callID string)
}

// UsageMeter receives finalized call durations for billing.
type UsageMeter interface {
	RecordCallUsage(callID, businessName string, duration time.Duration)
}

// recordingSettleDelay is how long after stream start the recording request
// waits. The provider rejects recording requests on calls whose media
// stream is not fully established yet.
const recordingSettleDelay = 2 * time.Second

// Orchestrator is the single handoff point from the bridge to persistence,
// recording, transcription, and billing.
type Orchestrator struct {
	store         Store
	control       CallControl
	registry      *Registry
	transcription TranscriptionService
	usage         UsageMeter

	settleDelay time.Duration

	mu        sync.Mutex
	finalized map[string]struct{}
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithSettleDelay overrides the recording settle delay. Used by tests.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.settleDelay = d }
}

// WithTranscription attaches a transcription collaborator.
func WithTranscription(t TranscriptionService) Option {
	return func(o *Orchestrator) { o.transcription = t }
}

// WithUsageMeter attaches a billing collaborator.
func WithUsageMeter(u UsageMeter) Option {
	return func(o *Orchestrator) { o.usage = u }
}

// NewOrchestrator creates an orchestrator. control may be nil, in which case
// recording and spoken-hangup calls become no-ops (useful without provider
// credentials).
func NewOrchestrator(store Store, control CallControl, registry *Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:       store,
		control:     control,
		registry:    registry,
		settleDelay: recordingSettleDelay,
		finalized:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CreateCallRecord persists the initial record for a call and returns its
// ID. When callID is empty a fresh one is assigned.
func (o *Orchestrator) CreateCallRecord(ctx context.Context, biz *business.Config, telephonyCallSid, callerNumber, callID string) (string, error) {
	if callID == "" {
		callID = uuid.New().String()
	}
	rec := &CallRecord{
		ID:               callID,
		BusinessID:       biz.ID,
		TelephonyCallSid: telephonyCallSid,
		CallerNumber:     callerNumber,
		Status:           StatusInProgress,
		StartedAt:        time.Now(),
	}
	if err := o.store.Create(ctx, rec); err != nil {
		return callID, err
	}
	log.Printf("[Lifecycle] call record created: callId=%s business=%s", callID, biz.ID)
	return callID, nil
}

// ScheduleRecordingStart starts recording the call after the settle delay.
// Fire and forget: a recording failure is logged, never surfaced to the
// live call.
func (o *Orchestrator) ScheduleRecordingStart(telephonyCallSid, callID string) {
	if o.control == nil || telephonyCallSid == "" {
		return
	}
	go func() {
		time.Sleep(o.settleDelay)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		sid, err := o.control.StartRecording(ctx, telephonyCallSid)
		if err != nil {
			log.Printf("[Lifecycle] recording start failed for %s: %v", telephonyCallSid, err)
			return
		}
		log.Printf("[Lifecycle] recording started: callId=%s recordingSid=%s", callID, sid)
		if err := o.store.SetRecordingSid(ctx, callID, sid); err != nil {
			log.Printf("[Lifecycle] recording sid persist failed for %s: %v", callID, err)
		}
	}()
}

// HangupWithMessage speaks message to the caller and ends the call. Used on
// fatal setup paths.
func (o *Orchestrator) HangupWithMessage(ctx context.Context, telephonyCallSid, message string) {
	if o.control == nil {
		return
	}
	if err := o.control.SayAndHangup(ctx, telephonyCallSid, message); err != nil {
		log.Printf("[Lifecycle] spoken hangup failed for %s: %v", telephonyCallSid, err)
	}
}

// Finalize writes the terminal call status and hands the call off to the
// transcription and billing collaborators. Idempotent per callID: both the
// stop event and the connection close race into here for every call.
func (o *Orchestrator) Finalize(callID, businessName string, startTime time.Time) {
	o.mu.Lock()
	if _, done := o.finalized[callID]; done {
		o.mu.Unlock()
		return
	}
	o.finalized[callID] = struct{}{}
	o.mu.Unlock()

	endedAt := time.Now()
	duration := endedAt.Sub(startTime)
	if startTime.IsZero() {
		duration = 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := o.store.Finalize(ctx, callID, endedAt, int(duration.Seconds())); err != nil {
		log.Printf("[Lifecycle] finalize persist failed for %s: %v", callID, err)
	}
	log.Printf("[Lifecycle] call finalized: callId=%s business=%q duration=%s", callID, businessName, duration.Round(time.Second))

	if o.transcription != nil {
		o.transcription.EnqueueTranscription(callID)
	}
	if o.usage != nil {
		o.usage.RecordCallUsage(callID, businessName, duration)
	}
}
