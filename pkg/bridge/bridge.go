package bridge

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/customer"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/observability"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/realtime/events"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/telephony"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/trace"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// TelephonyLeg is the bridge's view of the telephony connection.
// *telephony.StreamConn satisfies it.
type TelephonyLeg interface {
	SendMedia(payload string) error
	SendMark(name string) error
	SendClear() error
	Close() error
}

// AILeg is the bridge's view of the AI realtime connection.
// *realtime.Conn satisfies it.
type AILeg interface {
	SendEvent(event events.ClientEvent) error
	Start()
	IsOpen() bool
	Close() error
}

// AIDialer opens the AI leg for a call. The returned leg is connected but
// not yet delivering events; the bridge binds it and then calls Start, so
// no handler callback can fire before the bridge holds the leg.
type AIDialer func(ctx context.Context, handler RealtimeHandler) (AILeg, error)

// RealtimeHandler mirrors realtime.EventHandler so the dialer can hand the
// bridge to the connection without importing this package from realtime.
type RealtimeHandler interface {
	OnServerEvent(event events.ServerEvent)
	OnClose(err error)
}

// Orchestrator is the boundary to the persistence, recording, and billing
// collaborators.
type Orchestrator interface {
	// CreateCallRecord persists the call record. callID may be empty, in
	// which case the orchestrator assigns one. Called at most once per call.
	CreateCallRecord(ctx context.Context, biz *business.Config, telephonyCallSid, callerNumber, callID string) (string, error)

	// ScheduleRecordingStart starts call recording after a settle delay.
	ScheduleRecordingStart(telephonyCallSid, callID string)

	// Finalize writes the terminal call status. Idempotent per callID.
	Finalize(callID, businessName string, startTime time.Time)

	// HangupWithMessage speaks message to the caller and ends the call.
	// Used on fatal setup paths so the caller never hears silence.
	HangupWithMessage(ctx context.Context, telephonyCallSid, message string)
}

// Registry maps stream and call identifiers to call IDs so out-of-band
// webhooks can find the right call.
type Registry interface {
	Insert(key, callID string)
	Remove(key string)
}

const (
	setupTimeout   = 10 * time.Second
	apologyMessage = "We're sorry, we are unable to take your call right now. Please try again later."
)

// Bridge wires one telephony media stream to one AI realtime session. It is
// the StreamHandler for the telephony leg and the event handler for the AI
// leg, and it owns the call's state machine.
type Bridge struct {
	state *CallState

	resolver business.Resolver
	lookup   customer.Lookup
	dialAI   AIDialer
	orch     Orchestrator
	registry Registry

	// The fields below are written once during OnStreamStart and only read
	// afterward. ai is bound before the leg's Start call, so no AI event
	// can observe it nil.
	telephony        TelephonyLeg
	ai               AILeg
	biz              *business.Config
	streamSid        string
	telephonyCallSid string
	callSpan         oteltrace.Span

	aiReleased atomic.Bool

	droppedInbound  atomic.Int64
	droppedOutbound atomic.Int64
}

var _ telephony.StreamHandler = (*Bridge)(nil)

// aiEvents adapts the AI leg's callbacks onto the bridge. Both legs have an
// OnClose with the same shape, so the AI side gets its own receiver to keep
// the two close paths distinct.
type aiEvents struct {
	b *Bridge
}

var _ RealtimeHandler = aiEvents{}

func (h aiEvents) OnServerEvent(event events.ServerEvent) { h.b.OnServerEvent(event) }
func (h aiEvents) OnClose(err error)                      { h.b.OnAIClose(err) }

// New creates a bridge for one incoming call. The telephony leg is attached
// afterward with BindTelephony because the WebSocket handler needs the
// bridge as its event sink before the connection starts reading.
func New(resolver business.Resolver, lookup customer.Lookup, dialAI AIDialer, orch Orchestrator, registry Registry) *Bridge {
	return &Bridge{
		state:    NewCallState(),
		resolver: resolver,
		lookup:   lookup,
		dialAI:   dialAI,
		orch:     orch,
		registry: registry,
	}
}

// BindTelephony attaches the telephony leg. Must be called before the leg
// starts delivering events.
func (b *Bridge) BindTelephony(leg TelephonyLeg) {
	b.telephony = leg
}

// State exposes the call state machine, primarily for the server's health
// accounting and for tests.
func (b *Bridge) State() *CallState {
	return b.state
}

// OnStreamStart handles the telephony start event: resolve the business,
// create the call record, dial the AI leg, push the minimal session
// configuration, and kick off the customer lookup.
func (b *Bridge) OnStreamStart(start *telephony.StartPayload) {
	params := start.CustomParameters
	businessID := params["businessId"]
	callerNumber := params["callerNumber"]
	callID := params["callId"]
	b.streamSid = start.StreamSid
	b.telephonyCallSid = params["twilioCallSid"]
	if b.telephonyCallSid == "" {
		b.telephonyCallSid = start.CallSid
	}

	log.Printf("[Bridge] stream started: streamSid=%s businessId=%s caller=%s", start.StreamSid, businessID, callerNumber)

	if businessID == "" {
		log.Printf("[Bridge] missing businessId in custom parameters, rejecting call")
		b.failSetup()
		return
	}
	if !b.state.BeginConnecting(start.StreamSid, businessID, callerNumber) {
		log.Printf("[Bridge] duplicate start event ignored: streamSid=%s", start.StreamSid)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	biz, err := b.resolver.Resolve(ctx, businessID)
	if err != nil {
		log.Printf("[Bridge] business config resolution failed for %s: %v", businessID, err)
		b.failSetup()
		return
	}
	b.biz = biz

	callID, err = b.orch.CreateCallRecord(ctx, biz, b.telephonyCallSid, callerNumber, callID)
	if err != nil {
		// The call can proceed without a persisted record; billing catches
		// up from provider logs.
		log.Printf("[Bridge] call record creation failed: %v", err)
	}
	b.state.SetCallRecord(callID, time.Now())

	_, b.callSpan = trace.InstrumentCallStarted(context.Background(), callID, businessID)

	b.registry.Insert(start.StreamSid, callID)
	if b.telephonyCallSid != "" {
		b.registry.Insert(b.telephonyCallSid, callID)
	}
	b.orch.ScheduleRecordingStart(b.telephonyCallSid, callID)

	ai, err := b.dialAI(ctx, aiEvents{b})
	if err != nil {
		log.Printf("[Bridge] AI connection failed: %v", err)
		b.failSetup()
		return
	}
	b.ai = ai
	observability.ActiveCalls.Inc()
	ai.Start()
	if !b.state.IsLive() {
		// The AI leg died during setup. Terminate has already run and may
		// have done so before the leg was bound, so release it here too.
		b.closeAI()
		return
	}

	b.configureSession(nil, "minimal")

	go b.runCustomerLookup(businessID, callerNumber)
}

// failSetup delivers a spoken apology and terminates. Fatal setup errors
// must never leave the caller with silence.
func (b *Bridge) failSetup() {
	if b.telephonyCallSid != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		b.orch.HangupWithMessage(ctx, b.telephonyCallSid, apologyMessage)
	}
	b.terminate("setup_failed")
}

// configureSession builds and sends a session configuration, guarded by the
// state machine's once-flags.
func (b *Bridge) configureSession(cust *customer.Context, kind string) {
	switch kind {
	case "minimal":
		if !b.state.MarkSessionConfigured() {
			return
		}
	case "personalized":
		// Caller already flipped the injected flag.
	}

	cfg := BuildSessionConfig(b.biz, cust)
	if err := b.ai.SendEvent(events.NewSessionUpdateEvent(cfg)); err != nil {
		log.Printf("[Bridge] session.update send failed: %v", err)
		b.terminate("ai_send_failed")
		return
	}
	observability.SessionUpdates.WithLabelValues(kind).Inc()
	if b.callSpan != nil {
		trace.RecordSessionConfigured(b.callSpan, kind, cfg.Voice, cfg.TurnDetection != nil)
	}
	log.Printf("[Bridge] session configured (%s): voice=%s vad=%v", kind, cfg.Voice, cfg.TurnDetection != nil)

	if kind == "minimal" {
		// Ask the engine to speak first so the caller hears the greeting
		// without having to talk into silence.
		if err := b.ai.SendEvent(events.NewResponseCreateEvent(nil)); err != nil {
			log.Printf("[Bridge] response.create send failed: %v", err)
			b.terminate("ai_send_failed")
		}
	}
}

// runCustomerLookup races the caller-identity lookup against the live call
// and joins the result back into the state machine.
func (b *Bridge) runCustomerLookup(businessID, callerNumber string) {
	startedAt := time.Now()
	lctx, span := trace.InstrumentLookup(context.Background(), businessID, callerNumber)
	cctx, err := b.lookup.Lookup(lctx, businessID, callerNumber)
	if err != nil {
		trace.RecordError(span, err)
	}
	span.End()
	observability.LookupLatency.Observe(time.Since(startedAt).Seconds())
	customer.LogResult(businessID, callerNumber, cctx, err)

	switch {
	case err != nil:
		observability.LookupOutcomes.WithLabelValues("error").Inc()
	case cctx.IsExistingCustomer:
		observability.LookupOutcomes.WithLabelValues("match").Inc()
	default:
		observability.LookupOutcomes.WithLabelValues("no_match").Inc()
	}

	b.onCustomerContext(cctx, err)
}

// onCustomerContext consumes the lookup result at most once. Results that
// arrive after termination, or after the injected flag has flipped, are
// discarded. Lookup failure degrades to "new customer" and still finalizes
// the session phase.
func (b *Bridge) onCustomerContext(cctx customer.Context, err error) {
	if !b.state.IsLive() || b.ai == nil || !b.ai.IsOpen() {
		return
	}
	if !b.state.MarkContextInjected() {
		return
	}
	if err != nil || !cctx.IsExistingCustomer {
		// The minimal configuration already carries the business greeting.
		return
	}
	b.configureSession(&cctx, "personalized")
}

// OnMedia forwards one caller audio frame to the AI leg, in receipt order
// and unmodified. Frames arriving while the AI leg is down are dropped,
// never buffered.
func (b *Bridge) OnMedia(media *telephony.MediaPayload) {
	b.state.UpdateMediaTimestamp(media.TimestampMs())

	if b.ai == nil || !b.ai.IsOpen() {
		if b.droppedInbound.Add(1) == 1 {
			log.Printf("[Bridge] dropping caller audio, AI leg not open: streamSid=%s", b.streamSid)
		}
		observability.FramesDropped.WithLabelValues("inbound").Inc()
		return
	}
	if err := b.ai.SendEvent(events.NewInputAudioBufferAppendEvent(media.Payload)); err != nil {
		log.Printf("[Bridge] audio forward failed: %v", err)
		b.terminate("ai_send_failed")
		return
	}
	observability.FramesRelayed.WithLabelValues("inbound").Inc()
}

// OnMark pops one playback acknowledgment off the mark queue.
func (b *Bridge) OnMark(name string) {
	b.state.PopMark()
}

// OnStreamStop handles the telephony stop event.
func (b *Bridge) OnStreamStop() {
	log.Printf("[Bridge] stream stopped: streamSid=%s", b.streamSid)
	b.terminate("telephony_stop")
}

// OnClose handles the telephony WebSocket closing for any reason.
func (b *Bridge) OnClose(err error) {
	if err != nil {
		log.Printf("[Bridge] telephony connection closed: %v", err)
	}
	b.terminate("telephony_close")
}

// OnServerEvent dispatches one inbound AI event.
func (b *Bridge) OnServerEvent(event events.ServerEvent) {
	switch ev := event.(type) {
	case *events.ResponseOutputAudioDeltaEvent:
		b.relayAIDelta(ev)
	case *events.InputAudioBufferSpeechStartedEvent:
		b.handleSpeechStarted()
	case *events.SessionCreatedEvent:
		log.Printf("[Bridge] AI session created: %s", ev.Session.ID)
	case *events.SessionUpdatedEvent:
		log.Printf("[Bridge] AI session updated: voice=%s", ev.Session.Voice)
	case *events.ErrorEvent:
		b.handleAIError(ev)
	}
}

// relayAIDelta forwards one AI audio delta to the caller and pushes a
// playback marker behind it.
func (b *Bridge) relayAIDelta(ev *events.ResponseOutputAudioDeltaEvent) {
	if b.streamSid == "" || !b.state.IsLive() {
		b.droppedOutbound.Add(1)
		observability.FramesDropped.WithLabelValues("outbound").Inc()
		return
	}

	b.state.NoteAssistantAudio(ev.ItemID)

	if err := b.telephony.SendMedia(ev.Delta); err != nil {
		log.Printf("[Bridge] media send to telephony failed: %v", err)
		b.terminate("telephony_send_failed")
		return
	}
	observability.FramesRelayed.WithLabelValues("outbound").Inc()

	markName := "mark_" + uuid.New().String()[:8]
	if err := b.telephony.SendMark(markName); err != nil {
		log.Printf("[Bridge] mark send to telephony failed: %v", err)
		b.terminate("telephony_send_failed")
		return
	}
	b.state.PushMark(markName)
}

// handleSpeechStarted runs the interruption protocol when the caller talks
// over in-flight AI audio. With nothing in flight the event is ordinary
// turn-taking and needs no action.
func (b *Bridge) handleSpeechStarted() {
	intr, ok := b.state.BeginInterruption()
	if !ok {
		return
	}
	observability.Interruptions.Inc()
	if b.callSpan != nil {
		trace.RecordInterruption(b.callSpan, intr.ElapsedMs, intr.Truncate)
	}
	log.Printf("[Bridge] caller interrupted AI speech: elapsed=%dms item=%s truncate=%v", intr.ElapsedMs, intr.ItemID, intr.Truncate)

	if intr.Truncate {
		if err := b.ai.SendEvent(events.NewConversationItemTruncateEvent(intr.ItemID, int(intr.ElapsedMs))); err != nil {
			log.Printf("[Bridge] truncate send failed: %v", err)
		} else {
			observability.Truncations.Inc()
		}
	}

	// Stale AI audio queued at the provider must be flushed either way.
	if err := b.telephony.SendClear(); err != nil {
		log.Printf("[Bridge] clear send to telephony failed: %v", err)
	}
}

// handleAIError logs the full error payload and decides fatality. Rejected
// session parameters leave the prior session intact, so the call survives
// them; everything else tears the call down.
func (b *Bridge) handleAIError(ev *events.ErrorEvent) {
	log.Printf("[Bridge] AI error: type=%s code=%s param=%s message=%s", ev.Error.Type, ev.Error.Code, ev.Error.Param, ev.Error.Message)

	if recoverableAIError(ev.Error) {
		return
	}
	b.terminate("ai_error")
}

func recoverableAIError(e events.ErrorDetail) bool {
	switch e.Code {
	case "invalid_value", "unknown_parameter", "missing_required_parameter":
		// Session update was rejected; the session keeps its prior
		// configuration and the call goes on.
		return true
	}
	return false
}

// OnAIClose handles the AI WebSocket closing for any reason. It is wired as
// the AI leg's close callback.
func (b *Bridge) OnAIClose(err error) {
	if err != nil {
		log.Printf("[Bridge] AI connection closed: %v", err)
	}
	b.terminate("ai_close")
}

// closeAI releases the AI leg exactly once. Split from terminate because
// termination can race the leg binding during setup, leaving each side
// responsible for the close.
func (b *Bridge) closeAI() {
	if b.ai == nil {
		return
	}
	if !b.aiReleased.CompareAndSwap(false, true) {
		return
	}
	if err := b.ai.Close(); err != nil {
		log.Printf("[Bridge] AI close: %v", err)
	}
	observability.ActiveCalls.Dec()
}

// terminate runs terminal actions exactly once: close both legs, unregister
// the call, and finalize the record. Every fatal path funnels through here.
func (b *Bridge) terminate(reason string) {
	if !b.state.Terminate() {
		return
	}
	log.Printf("[Bridge] terminating call: reason=%s streamSid=%s", reason, b.streamSid)
	trace.RecordTermination(b.callSpan, reason)

	b.closeAI()
	if b.telephony != nil {
		if err := b.telephony.Close(); err != nil {
			log.Printf("[Bridge] telephony close: %v", err)
		}
	}

	if b.streamSid != "" {
		b.registry.Remove(b.streamSid)
	}
	if b.telephonyCallSid != "" {
		b.registry.Remove(b.telephonyCallSid)
	}

	callID, startTime := b.state.CallRecord()
	if callID != "" {
		businessName := ""
		if b.biz != nil {
			businessName = b.biz.Name
		}
		b.orch.Finalize(callID, businessName, startTime)
	}
	observability.CallsFinalized.WithLabelValues(reason).Inc()

	if in, out := b.droppedInbound.Load(), b.droppedOutbound.Load(); in > 0 || out > 0 {
		log.Printf("[Bridge] dropped frames during call: inbound=%d outbound=%d", in, out)
	}
}
