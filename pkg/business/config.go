// Package business resolves per-business agent configuration: which voice the
// AI uses, its instructions, greetings, and turn-detection policy.
package business

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Turn-detection policy names supported by the AI engine.
const (
	TurnPolicyServerVAD = "server_vad"
	TurnPolicySemantic  = "semantic_vad"
	TurnPolicyNone      = "none"
)

// Config is an immutable per-call snapshot of a business's agent settings.
// One instance is constructed per call and never shared across calls, so a
// handler can read it without locking.
type Config struct {
	ID          string
	Name        string
	PhoneNumber string

	// Voice is the AI voice identifier.
	Voice string

	// Temperature is the sampling temperature for the AI session.
	Temperature float64

	// SystemInstructions is the composed instruction string for the agent.
	SystemInstructions string

	// FirstMessage, when set, is spoken verbatim at the start of the call.
	FirstMessage string

	// GoodbyeMessage, when set, is woven into the instructions so the agent
	// closes the call with it.
	GoodbyeMessage string

	// ServerVADEnabled controls whether the engine runs server-side voice
	// activity detection. When false, turn detection is disabled entirely.
	ServerVADEnabled bool

	// TurnPolicy names the turn-detection policy (server_vad, semantic_vad).
	TurnPolicy string
}

// Errors returned by resolvers and stores.
var (
	ErrNotFound = errors.New("business: not found")
)

// Store is the read boundary to business configuration storage.
type Store interface {
	// GetByID returns the configuration for a business identifier.
	GetByID(ctx context.Context, businessID string) (*Config, error)

	// GetByNumber returns the configuration for a called phone number.
	GetByNumber(ctx context.Context, phoneNumber string) (*Config, error)
}

// Resolver produces a per-call Config snapshot.
type Resolver interface {
	Resolve(ctx context.Context, businessID string) (*Config, error)
	ResolveByNumber(ctx context.Context, phoneNumber string) (*Config, error)
}

// CachedResolver wraps a Store with an idempotent in-process cache. Every
// Resolve returns a fresh copy, never the cached pointer, so one call can
// never observe another call's reads.
type CachedResolver struct {
	store Store

	mu       sync.RWMutex
	byID     map[string]*Config
	byNumber map[string]*Config
}

var _ Resolver = (*CachedResolver)(nil)

// NewCachedResolver creates a resolver backed by the given store.
func NewCachedResolver(store Store) *CachedResolver {
	return &CachedResolver{
		store:    store,
		byID:     make(map[string]*Config),
		byNumber: make(map[string]*Config),
	}
}

// Resolve returns the configuration snapshot for a business identifier.
func (r *CachedResolver) Resolve(ctx context.Context, businessID string) (*Config, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return nil, fmt.Errorf("business: empty business ID")
	}

	r.mu.RLock()
	cached, ok := r.byID[businessID]
	r.mu.RUnlock()
	if ok {
		return cached.clone(), nil
	}

	cfg, err := r.store.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byID[businessID] = cfg.clone()
	r.mu.Unlock()

	return cfg.clone(), nil
}

// ResolveByNumber returns the configuration snapshot for a called number.
func (r *CachedResolver) ResolveByNumber(ctx context.Context, phoneNumber string) (*Config, error) {
	phoneNumber = strings.TrimSpace(phoneNumber)
	if phoneNumber == "" {
		return nil, fmt.Errorf("business: empty phone number")
	}

	r.mu.RLock()
	cached, ok := r.byNumber[phoneNumber]
	r.mu.RUnlock()
	if ok {
		return cached.clone(), nil
	}

	cfg, err := r.store.GetByNumber(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.byNumber[phoneNumber] = cfg.clone()
	if cfg.ID != "" {
		r.byID[cfg.ID] = cfg.clone()
	}
	r.mu.Unlock()

	return cfg.clone(), nil
}

// Invalidate drops cached entries for a business, e.g. after a dashboard
// update webhook.
func (r *CachedResolver) Invalidate(businessID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.byID[businessID]; ok && cfg.PhoneNumber != "" {
		delete(r.byNumber, cfg.PhoneNumber)
	}
	delete(r.byID, businessID)
}

func (c *Config) clone() *Config {
	if c == nil {
		return nil
	}
	dup := *c
	return &dup
}
