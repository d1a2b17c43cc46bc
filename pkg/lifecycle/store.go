package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Call statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// CallRecord is the persisted record of one call.
type CallRecord struct {
	ID               string
	BusinessID       string
	TelephonyCallSid string
	CallerNumber     string
	Status           string
	StartedAt        time.Time
	EndedAt          time.Time
	DurationSeconds  int
	RecordingSid     string
}

// ErrNotFound is returned when a call record does not exist.
var ErrNotFound = errors.New("lifecycle: call record not found")

// Store persists call records.
type Store interface {
	Create(ctx context.Context, rec *CallRecord) error
	Finalize(ctx context.Context, callID string, endedAt time.Time, durationSeconds int) error
	SetRecordingSid(ctx context.Context, callID, recordingSid string) error
	Get(ctx context.Context, callID string) (*CallRecord, error)
}

// MemoryStore is an in-memory Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*CallRecord
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*CallRecord)}
}

func (s *MemoryStore) Create(ctx context.Context, rec *CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) Finalize(ctx context.Context, callID string, endedAt time.Time, durationSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusCompleted
	rec.EndedAt = endedAt
	rec.DurationSeconds = durationSeconds
	return nil
}

func (s *MemoryStore) SetRecordingSid(ctx context.Context, callID, recordingSid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[callID]
	if !ok {
		return ErrNotFound
	}
	rec.RecordingSid = recordingSid
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, callID string) (*CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[callID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// SQLStore is a Postgres-backed Store.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an existing database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, rec *CallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls (id, business_id, telephony_call_sid, caller_number, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.BusinessID, rec.TelephonyCallSid, rec.CallerNumber, rec.Status, rec.StartedAt)
	if err != nil {
		return fmt.Errorf("insert call record: %w", err)
	}
	return nil
}

func (s *SQLStore) Finalize(ctx context.Context, callID string, endedAt time.Time, durationSeconds int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls SET status = $2, ended_at = $3, duration_seconds = $4
		WHERE id = $1`,
		callID, StatusCompleted, endedAt, durationSeconds)
	if err != nil {
		return fmt.Errorf("finalize call record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) SetRecordingSid(ctx context.Context, callID, recordingSid string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE calls SET recording_sid = $2 WHERE id = $1`, callID, recordingSid)
	if err != nil {
		return fmt.Errorf("set recording sid: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) Get(ctx context.Context, callID string) (*CallRecord, error) {
	var (
		rec          CallRecord
		endedAt      sql.NullTime
		duration     sql.NullInt64
		recordingSid sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, business_id, telephony_call_sid, caller_number, status, started_at, ended_at, duration_seconds, recording_sid
		FROM calls WHERE id = $1`, callID).Scan(
		&rec.ID, &rec.BusinessID, &rec.TelephonyCallSid, &rec.CallerNumber,
		&rec.Status, &rec.StartedAt, &endedAt, &duration, &recordingSid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get call record: %w", err)
	}
	rec.EndedAt = endedAt.Time
	rec.DurationSeconds = int(duration.Int64)
	rec.RecordingSid = recordingSid.String
	return &rec, nil
}
