package business

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	mu      sync.Mutex
	inner   *MemoryStore
	byID    int
	byNum   int
}

func (s *countingStore) GetByID(ctx context.Context, businessID string) (*Config, error) {
	s.mu.Lock()
	s.byID++
	s.mu.Unlock()
	return s.inner.GetByID(ctx, businessID)
}

func (s *countingStore) GetByNumber(ctx context.Context, phoneNumber string) (*Config, error) {
	s.mu.Lock()
	s.byNum++
	s.mu.Unlock()
	return s.inner.GetByNumber(ctx, phoneNumber)
}

func seededStore() *countingStore {
	m := NewMemoryStore()
	m.Put(&Config{
		ID:               "biz_1",
		Name:             "Bayside Dental",
		PhoneNumber:      "+15550100",
		Voice:            "coral",
		Temperature:      0.9,
		FirstMessage:     "Hello, thanks for calling!",
		ServerVADEnabled: true,
	})
	return &countingStore{inner: m}
}

func TestResolveCachesByID(t *testing.T) {
	store := seededStore()
	r := NewCachedResolver(store)

	first, err := r.Resolve(context.Background(), "biz_1")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), "biz_1")
	require.NoError(t, err)

	assert.Equal(t, 1, store.byID)
	assert.Equal(t, first.Name, second.Name)

	// Each call gets its own snapshot; mutating one must not leak into
	// another call.
	first.Voice = "mutated"
	third, err := r.Resolve(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.Equal(t, "coral", third.Voice)
}

func TestResolveByNumberSeedsIDCache(t *testing.T) {
	store := seededStore()
	r := NewCachedResolver(store)

	cfg, err := r.ResolveByNumber(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.Equal(t, "biz_1", cfg.ID)

	_, err = r.Resolve(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.Zero(t, store.byID)
	assert.Equal(t, 1, store.byNum)
}

func TestResolveUnknownBusiness(t *testing.T) {
	r := NewCachedResolver(seededStore())

	_, err := r.Resolve(context.Background(), "biz_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.ResolveByNumber(context.Background(), "+15559999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveEmptyInputs(t *testing.T) {
	r := NewCachedResolver(seededStore())

	_, err := r.Resolve(context.Background(), "  ")
	assert.Error(t, err)

	_, err = r.ResolveByNumber(context.Background(), "")
	assert.Error(t, err)
}

func TestInvalidateDropsBothKeys(t *testing.T) {
	store := seededStore()
	r := NewCachedResolver(store)

	_, err := r.ResolveByNumber(context.Background(), "+15550100")
	require.NoError(t, err)

	r.Invalidate("biz_1")

	_, err = r.ResolveByNumber(context.Background(), "+15550100")
	require.NoError(t, err)
	assert.Equal(t, 2, store.byNum)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	m.Put(&Config{ID: "biz_1", Voice: "coral"})

	got, err := m.GetByID(context.Background(), "biz_1")
	require.NoError(t, err)
	got.Voice = "mutated"

	again, err := m.GetByID(context.Background(), "biz_1")
	require.NoError(t, err)
	assert.Equal(t, "coral", again.Voice)
}
