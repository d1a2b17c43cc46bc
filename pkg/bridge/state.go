// Package bridge connects a live telephony media stream to an AI realtime
// session. It owns the per-call state machine, the session configuration
// logic, and the interruption/truncation protocol between the two legs.
package bridge

import (
	"sync"
	"time"
)

// Phase is the lifecycle phase of a call.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseAIConnecting
	PhaseSessionMinimal
	PhaseSessionFinalized
	PhaseTerminated
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseAIConnecting:
		return "AI_CONNECTING"
	case PhaseSessionMinimal:
		return "SESSION_MINIMAL_CONFIGURED"
	case PhaseSessionFinalized:
		return "SESSION_FINALIZED"
	case PhaseTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// interruptionMaxElapsedMs is the sanity ceiling on truncation offsets.
// Elapsed values at or above it indicate a stale or corrupted timestamp and
// suppress the truncate instruction.
const interruptionMaxElapsedMs = 5000

// Interruption is the outcome of an interruption check. Truncate reports
// whether a truncate instruction should be sent to the AI engine.
type Interruption struct {
	ItemID    string
	ElapsedMs int64
	Truncate  bool
}

// CallState is the authoritative mutable state of one call. Exactly one
// instance exists per call and it is owned by that call's two connection
// handlers. All compound transitions are performed under a single mutex so
// no handler ever observes a half-applied transition.
type CallState struct {
	mu sync.Mutex

	phase Phase

	streamSid    string
	businessID   string
	callerNumber string

	callID    string
	startTime time.Time

	recordingSid string

	latestMediaTimestampMs   int64
	responseStartTimestampMs int64
	responseStartSet         bool
	lastAssistantItemID      string

	markQueue []string

	sessionConfigured       bool
	customerContextInjected bool
}

// NewCallState returns a call state in the INIT phase.
func NewCallState() *CallState {
	return &CallState{phase: PhaseInit}
}

// Phase returns the current lifecycle phase.
func (s *CallState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// IsLive reports whether the call has not yet terminated.
func (s *CallState) IsLive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase != PhaseTerminated
}

// BeginConnecting applies the INIT to AI_CONNECTING transition, recording
// the stream identity from the telephony start event. Returns false if the
// call is not in INIT.
func (s *CallState) BeginConnecting(streamSid, businessID, callerNumber string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseInit {
		return false
	}
	s.phase = PhaseAIConnecting
	s.streamSid = streamSid
	s.businessID = businessID
	s.callerNumber = callerNumber
	return true
}

// MarkSessionConfigured applies the AI_CONNECTING to
// SESSION_MINIMAL_CONFIGURED transition. It is idempotent: the first call
// returns true, every later call returns false.
func (s *CallState) MarkSessionConfigured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessionConfigured || s.phase == PhaseTerminated {
		return false
	}
	s.sessionConfigured = true
	if s.phase == PhaseAIConnecting {
		s.phase = PhaseSessionMinimal
	}
	return true
}

// MarkContextInjected applies the SESSION_MINIMAL_CONFIGURED to
// SESSION_FINALIZED transition. The flag flips exactly once per call,
// whether or not the lookup found a match, so a slow or failing lookup can
// never reconfigure a session that has moved on.
func (s *CallState) MarkContextInjected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.customerContextInjected || s.phase == PhaseTerminated {
		return false
	}
	s.customerContextInjected = true
	if s.phase == PhaseSessionMinimal {
		s.phase = PhaseSessionFinalized
	}
	return true
}

// Terminate moves the call to TERMINATED. The first call returns true;
// every later call returns false, which is how both legs' close paths race
// to run terminal actions exactly once.
func (s *CallState) Terminate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseTerminated {
		return false
	}
	s.phase = PhaseTerminated
	return true
}

// SetCallRecord stores the persistent call identity.
func (s *CallState) SetCallRecord(callID string, startTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callID = callID
	s.startTime = startTime
}

// CallRecord returns the persistent call identity.
func (s *CallState) CallRecord() (callID string, startTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID, s.startTime
}

// SetRecordingSid stores the recording identifier once recording starts.
func (s *CallState) SetRecordingSid(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordingSid = sid
}

// RecordingSid returns the recording identifier, empty until recording
// starts.
func (s *CallState) RecordingSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordingSid
}

// StreamSid returns the telephony stream identifier.
func (s *CallState) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

// UpdateMediaTimestamp records the latest inbound media timestamp.
func (s *CallState) UpdateMediaTimestamp(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ms > 0 {
		s.latestMediaTimestampMs = ms
	}
}

// LatestMediaTimestamp returns the most recent inbound media timestamp.
func (s *CallState) LatestMediaTimestamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestMediaTimestampMs
}

// NoteAssistantAudio records that an AI audio delta for itemID arrived. The
// first delta of an utterance pins responseStartTimestampMs to the current
// media clock so interruption offsets can be computed later.
func (s *CallState) NoteAssistantAudio(itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if itemID != "" {
		s.lastAssistantItemID = itemID
	}
	if !s.responseStartSet {
		s.responseStartTimestampMs = s.latestMediaTimestampMs
		s.responseStartSet = true
	}
}

// PushMark appends a pending playback-acknowledgment token.
func (s *CallState) PushMark(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markQueue = append(s.markQueue, name)
}

// PopMark removes the oldest pending token. The provider acknowledges marks
// in order, so FIFO pop is correct even without matching on the name.
func (s *CallState) PopMark() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.markQueue) > 0 {
		s.markQueue = s.markQueue[1:]
	}
}

// MarkQueueLen returns the number of marks awaiting acknowledgment.
func (s *CallState) MarkQueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markQueue)
}

// BeginInterruption runs the interruption check as one atomic operation.
//
// It returns ok=false when no AI audio is in flight (empty mark queue or no
// recorded utterance start), which means caller speech is ordinary
// turn-taking. Otherwise it clears the mark queue, the last assistant item,
// and the utterance start, and reports whether a truncate instruction should
// be sent: only when the elapsed offset is a sane positive value below the
// staleness ceiling and the in-flight item is known.
func (s *CallState) BeginInterruption() (Interruption, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.markQueue) == 0 || !s.responseStartSet {
		return Interruption{}, false
	}

	elapsed := s.latestMediaTimestampMs - s.responseStartTimestampMs
	intr := Interruption{
		ItemID:    s.lastAssistantItemID,
		ElapsedMs: elapsed,
		Truncate:  elapsed > 0 && elapsed < interruptionMaxElapsedMs && s.lastAssistantItemID != "",
	}

	s.markQueue = nil
	s.lastAssistantItemID = ""
	s.responseStartTimestampMs = 0
	s.responseStartSet = false

	return intr, true
}
