// Package lifecycle owns call persistence and the handoff points to the
// recording, transcription, and billing collaborators.
package lifecycle

import "sync"

// Registry is the process-wide map from stream or provider call identifiers
// to call IDs. It exists so out-of-band webhooks, which only know the
// provider's identifiers, can find the call they belong to. Operations are
// single-key insert/remove/lookup only.
type Registry struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]string)}
}

// Insert maps key to callID.
func (r *Registry) Insert(key, callID string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = callID
}

// Remove deletes key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key)
}

// Lookup returns the call ID for key.
func (r *Registry) Lookup(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.m[key]
	return id, ok
}

// Len returns the number of registered keys.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
