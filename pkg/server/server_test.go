package server

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/lifecycle"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/ratelimit"
)

func newTestServer(t *testing.T) (*MediaServer, *lifecycle.Registry, lifecycle.Store) {
	bizStore := business.NewMemoryStore()
	bizStore.Put(&business.Config{
		ID:          "biz_1",
		Name:        "Bayside Dental",
		PhoneNumber: "+15550100",
	})

	registry := lifecycle.NewRegistry()
	callStore := lifecycle.NewMemoryStore()

	srv := New(Config{
		Address:    ":0",
		PublicHost: "calls.example.com",
	}, Deps{
		Resolver: business.NewCachedResolver(bizStore),
		Orch:     lifecycle.NewOrchestrator(callStore, nil, registry),
		Registry: registry,
		Store:    callStore,
		Limiter:  ratelimit.New(100, 100),
	})
	return srv, registry, callStore
}

func TestIncomingCallReturnsStreamTwiML(t *testing.T) {
	srv, _, _ := newTestServer(t)

	form := url.Values{
		"CallSid": {"CA456"},
		"From":    {"+15550199"},
		"To":      {"+15550100"},
	}
	req := httptest.NewRequest("POST", "/incoming-call", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	srv.handleIncomingCall(rec, req)

	body := rec.Body.String()
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, body, `<Stream url="wss://calls.example.com/media">`)
	assert.Contains(t, body, `name="businessId" value="biz_1"`)
	assert.Contains(t, body, `name="businessName" value="Bayside Dental"`)
	assert.Contains(t, body, `name="callerNumber" value="+15550199"`)
	assert.Contains(t, body, `name="twilioCallSid" value="CA456"`)
	assert.Contains(t, body, `name="callId"`)
}

func TestIncomingCallUnknownNumberRejects(t *testing.T) {
	srv, _, _ := newTestServer(t)

	form := url.Values{"To": {"+15559999"}, "From": {"+15550199"}, "CallSid": {"CA1"}}
	req := httptest.NewRequest("POST", "/incoming-call", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	srv.handleIncomingCall(rec, req)

	body := rec.Body.String()
	assert.Contains(t, body, "<Say>")
	assert.Contains(t, body, "<Hangup/>")
	assert.NotContains(t, body, "<Stream")
}

func TestIncomingCallRateLimited(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.deps.Limiter = ratelimit.New(1, 1)

	form := url.Values{"To": {"+15550100"}, "From": {"+15550199"}, "CallSid": {"CA1"}}
	send := func() string {
		req := httptest.NewRequest("POST", "/incoming-call", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		srv.handleIncomingCall(rec, req)
		return rec.Body.String()
	}

	assert.Contains(t, send(), "<Stream")
	assert.Contains(t, send(), "<Hangup/>")
}

func TestRecordingStatusAttachesToCall(t *testing.T) {
	srv, registry, callStore := newTestServer(t)

	require.NoError(t, callStore.Create(context.Background(), &lifecycle.CallRecord{
		ID: "call_1", BusinessID: "biz_1", Status: lifecycle.StatusInProgress,
	}))
	registry.Insert("CA456", "call_1")

	form := url.Values{
		"CallSid":         {"CA456"},
		"RecordingSid":    {"RE789"},
		"RecordingStatus": {"completed"},
	}
	req := httptest.NewRequest("POST", "/recording-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	srv.handleRecordingStatus(rec, req)

	assert.Equal(t, 200, rec.Code)
	saved, err := callStore.Get(context.Background(), "call_1")
	require.NoError(t, err)
	assert.Equal(t, "RE789", saved.RecordingSid)
}

func TestRecordingStatusUnknownCallIsAccepted(t *testing.T) {
	srv, _, _ := newTestServer(t)

	form := url.Values{"CallSid": {"CA999"}, "RecordingSid": {"RE1"}}
	req := httptest.NewRequest("POST", "/recording-status", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	srv.handleRecordingStatus(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestHealthReportsActiveStreams(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.activeStreams.Store(3)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	srv.handleHealth(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"status":"ok","activeStreams":3}`, rec.Body.String())
}
