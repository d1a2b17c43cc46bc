package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
)

type fakeControl struct {
	mu         sync.Mutex
	recordings []string
	hangups    []string
	recErr     error
}

func (f *fakeControl) StartRecording(ctx context.Context, callSid string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recErr != nil {
		return "", f.recErr
	}
	f.recordings = append(f.recordings, callSid)
	return "RE123", nil
}

func (f *fakeControl) SayAndHangup(ctx context.Context, callSid, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hangups = append(f.hangups, callSid)
	return nil
}

func (f *fakeControl) recordingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recordings)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Insert("MZ1", "call_1")
	r.Insert("CA1", "call_1")
	r.Insert("", "call_2")

	assert.Equal(t, 2, r.Len())

	id, ok := r.Lookup("CA1")
	require.True(t, ok)
	assert.Equal(t, "call_1", id)

	r.Remove("MZ1")
	r.Remove("MZ1")
	_, ok = r.Lookup("MZ1")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestCreateCallRecord(t *testing.T) {
	store := NewMemoryStore()
	o := NewOrchestrator(store, nil, NewRegistry())

	biz := &business.Config{ID: "biz_1", Name: "Bayside Dental"}
	callID, err := o.CreateCallRecord(context.Background(), biz, "CA1", "+15550100", "call_1")
	require.NoError(t, err)
	assert.Equal(t, "call_1", callID)

	rec, err := store.Get(context.Background(), "call_1")
	require.NoError(t, err)
	assert.Equal(t, "biz_1", rec.BusinessID)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, "+15550100", rec.CallerNumber)

	// An empty callID gets one assigned.
	callID, err = o.CreateCallRecord(context.Background(), biz, "CA2", "+15550101", "")
	require.NoError(t, err)
	assert.NotEmpty(t, callID)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	o := NewOrchestrator(store, nil, NewRegistry())

	biz := &business.Config{ID: "biz_1"}
	_, err := o.CreateCallRecord(context.Background(), biz, "CA1", "+15550100", "call_1")
	require.NoError(t, err)

	start := time.Now().Add(-90 * time.Second)
	o.Finalize("call_1", "Bayside Dental", start)
	o.Finalize("call_1", "Bayside Dental", start)
	o.Finalize("call_1", "Bayside Dental", start)

	rec, err := store.Get(context.Background(), "call_1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.InDelta(t, 90, rec.DurationSeconds, 2)
}

func TestFinalizeConcurrent(t *testing.T) {
	store := NewMemoryStore()
	o := NewOrchestrator(store, nil, NewRegistry())

	usage := &countingMeter{}
	o.usage = usage

	biz := &business.Config{ID: "biz_1"}
	_, err := o.CreateCallRecord(context.Background(), biz, "CA1", "+15550100", "call_1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Finalize("call_1", "Bayside Dental", time.Now())
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, usage.count())
}

type countingMeter struct {
	mu sync.Mutex
	n  int
}

func (m *countingMeter) RecordCallUsage(callID, businessName string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
}

func (m *countingMeter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.n
}

func TestScheduleRecordingStart(t *testing.T) {
	store := NewMemoryStore()
	control := &fakeControl{}
	o := NewOrchestrator(store, control, NewRegistry(), WithSettleDelay(5*time.Millisecond))

	biz := &business.Config{ID: "biz_1"}
	_, err := o.CreateCallRecord(context.Background(), biz, "CA1", "+15550100", "call_1")
	require.NoError(t, err)

	o.ScheduleRecordingStart("CA1", "call_1")

	require.Eventually(t, func() bool {
		return control.recordingCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		rec, err := store.Get(context.Background(), "call_1")
		return err == nil && rec.RecordingSid == "RE123"
	}, time.Second, 5*time.Millisecond)
}

func TestScheduleRecordingStartWithoutControl(t *testing.T) {
	o := NewOrchestrator(NewMemoryStore(), nil, NewRegistry(), WithSettleDelay(time.Millisecond))
	// Must be a no-op, not a panic.
	o.ScheduleRecordingStart("CA1", "call_1")
	o.ScheduleRecordingStart("", "call_1")
	time.Sleep(10 * time.Millisecond)
}

func TestMemoryStoreFinalizeUnknownCall(t *testing.T) {
	store := NewMemoryStore()
	err := store.Finalize(context.Background(), "missing", time.Now(), 10)
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.SetRecordingSid(context.Background(), "missing", "RE1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
