// Package server provides the HTTP and WebSocket surface of the call bridge.
//
// MediaServer terminates Twilio Media Streams WebSocket connections and
// bridges each call to an AI realtime session.
//
// Features:
//   - WebSocket endpoint for Twilio Media Streams
//   - TwiML webhook endpoint for incoming calls
//   - Recording-status webhook
//   - Health and Prometheus metrics endpoints
//
// Reference: https://www.twilio.com/docs/voice/media-streams
package server

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/bridge"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/customer"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/lifecycle"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/ratelimit"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/telephony"
)

// Config holds configuration for MediaServer.
type Config struct {
	// Address is the listen address (e.g., ":8080").
	Address string

	// PublicHost is the externally reachable host used in the TwiML
	// <Stream> URL (e.g., "calls.example.com").
	PublicHost string

	// WebSocketPath is the path for Media Streams connections (default:
	// "/media").
	WebSocketPath string

	// WebhookPath is the path for the incoming-call TwiML webhook
	// (default: "/incoming-call").
	WebhookPath string

	// ReadBufferSize for WebSocket (default: 1024).
	ReadBufferSize int

	// WriteBufferSize for WebSocket (default: 1024).
	WriteBufferSize int
}

// Deps are the collaborators every call handler needs.
type Deps struct {
	Resolver business.Resolver
	Lookup   customer.Lookup
	DialAI   bridge.AIDialer
	Orch     *lifecycle.Orchestrator
	Registry *lifecycle.Registry
	Store    lifecycle.Store
	Limiter  *ratelimit.Limiter
}

// MediaServer handles Twilio Media Streams connections and the webhooks
// around them.
type MediaServer struct {
	config Config
	deps   Deps

	upgrader websocket.Upgrader
	server   *http.Server

	activeStreams atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a MediaServer.
func New(config Config, deps Deps) *MediaServer {
	if config.WebSocketPath == "" {
		config.WebSocketPath = "/media"
	}
	if config.WebhookPath == "" {
		config.WebhookPath = "/incoming-call"
	}
	if config.ReadBufferSize == 0 {
		config.ReadBufferSize = 1024
	}
	if config.WriteBufferSize == 0 {
		config.WriteBufferSize = 1024
	}

	return &MediaServer{
		config: config,
		deps:   deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start starts the server. It returns once the listener is running.
func (s *MediaServer) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.WebSocketPath, s.handleWebSocket)
	mux.HandleFunc(s.config.WebhookPath, s.handleIncomingCall)
	mux.HandleFunc("/recording-status", s.handleRecordingStatus)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Addr:    s.config.Address,
		Handler: mux,
	}

	log.Printf("[Server] Starting on %s", s.config.Address)
	log.Printf("[Server] Media Streams endpoint: %s", s.config.WebSocketPath)
	log.Printf("[Server] Incoming-call webhook: %s", s.config.WebhookPath)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[Server] Listener error: %v", err)
		}
	}()

	return nil
}

// Stop stops the server gracefully. Active calls are closed by their own
// connection teardown.
func (s *MediaServer) Stop() error {
	log.Printf("[Server] Stopping...")

	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.Printf("[Server] Shutdown: %v", err)
		}
	}
	s.wg.Wait()
	log.Printf("[Server] Stopped")
	return nil
}

// handleWebSocket upgrades an inbound Media Streams connection and wires a
// bridge to it. All call logic lives in the bridge; the server only does
// plumbing and session accounting.
func (s *MediaServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log.Printf("[Server] Media Streams connection from %s", r.RemoteAddr)

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] WebSocket upgrade failed: %v", err)
		return
	}

	b := bridge.New(s.deps.Resolver, s.deps.Lookup, s.deps.DialAI, s.deps.Orch, s.deps.Registry)
	tracked := &trackedHandler{StreamHandler: b, server: s}
	sc := telephony.NewStreamConn(wsConn, tracked)
	b.BindTelephony(sc)

	s.activeStreams.Add(1)
	sc.Start()
}

// trackedHandler decorates the bridge's stream handler with the server's
// session accounting.
type trackedHandler struct {
	telephony.StreamHandler
	server *MediaServer

	closed atomic.Bool
}

func (t *trackedHandler) OnClose(err error) {
	if t.closed.CompareAndSwap(false, true) {
		t.server.activeStreams.Add(-1)
	}
	t.StreamHandler.OnClose(err)
}

// ActiveStreams returns the number of open Media Streams connections.
func (s *MediaServer) ActiveStreams() int64 {
	return s.activeStreams.Load()
}

// handleRecordingStatus receives the provider's recording status callbacks
// and attaches the recording to the call it belongs to. The callback only
// carries provider identifiers, hence the registry lookup.
func (s *MediaServer) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	callSid := r.FormValue("CallSid")
	recordingSid := r.FormValue("RecordingSid")
	status := r.FormValue("RecordingStatus")
	log.Printf("[Server] Recording status: callSid=%s recordingSid=%s status=%s", callSid, recordingSid, status)

	if callSid == "" || recordingSid == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	callID, ok := s.deps.Registry.Lookup(callSid)
	if !ok {
		// The call may already be finalized; the recording webhook often
		// arrives after hangup.
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := s.deps.Store.SetRecordingSid(r.Context(), callID, recordingSid); err != nil {
		log.Printf("[Server] Recording sid persist failed for %s: %v", callID, err)
	}
	w.WriteHeader(http.StatusOK)
}

// handleHealth reports liveness and the active stream count.
func (s *MediaServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok","activeStreams":` + strconv.FormatInt(s.activeStreams.Load(), 10) + `}`)); err != nil {
		log.Printf("[Server] Health write: %v", err)
	}
}
