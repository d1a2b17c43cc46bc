package business

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// MemoryStore keeps business configurations in memory. Used in tests and in
// single-tenant deployments configured from the environment.
type MemoryStore struct {
	mu       sync.RWMutex
	byID     map[string]*Config
	byNumber map[string]*Config
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:     make(map[string]*Config),
		byNumber: make(map[string]*Config),
	}
}

// Put inserts or replaces a business configuration.
func (s *MemoryStore) Put(cfg *Config) {
	if cfg == nil || cfg.ID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[cfg.ID] = cfg.clone()
	if cfg.PhoneNumber != "" {
		s.byNumber[cfg.PhoneNumber] = cfg.clone()
	}
}

// GetByID returns the configuration for a business identifier.
func (s *MemoryStore) GetByID(ctx context.Context, businessID string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byID[businessID]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg.clone(), nil
}

// GetByNumber returns the configuration for a called phone number.
func (s *MemoryStore) GetByNumber(ctx context.Context, phoneNumber string) (*Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.byNumber[phoneNumber]
	if !ok {
		return nil, ErrNotFound
	}
	return cfg.clone(), nil
}

// SQLStore reads business configurations from Postgres.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const businessColumns = `id, name, phone_number, voice, temperature,
	system_instructions, first_message, goodbye_message, server_vad_enabled, turn_policy`

// GetByID returns the configuration for a business identifier.
func (s *SQLStore) GetByID(ctx context.Context, businessID string) (*Config, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE id = $1`, businessID)
	return scanBusiness(row)
}

// GetByNumber returns the configuration for a called phone number.
func (s *SQLStore) GetByNumber(ctx context.Context, phoneNumber string) (*Config, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+businessColumns+` FROM businesses WHERE phone_number = $1`, phoneNumber)
	return scanBusiness(row)
}

func scanBusiness(row *sql.Row) (*Config, error) {
	var cfg Config
	var firstMessage, goodbyeMessage sql.NullString
	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.PhoneNumber,
		&cfg.Voice,
		&cfg.Temperature,
		&cfg.SystemInstructions,
		&firstMessage,
		&goodbyeMessage,
		&cfg.ServerVADEnabled,
		&cfg.TurnPolicy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("business: scan: %w", err)
	}
	cfg.FirstMessage = firstMessage.String
	cfg.GoodbyeMessage = goodbyeMessage.String
	return &cfg, nil
}
