package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/bridge"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/business"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/config"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/customer"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/lifecycle"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/ratelimit"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/realtime"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/server"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/telephony"
	"github.com/IbrahimDoba/CallPlatter-sub000/pkg/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Main] %v", err)
	}

	ctx := context.Background()

	exporter := "none"
	if cfg.Tracing.Enabled {
		exporter = cfg.Tracing.Exporter
	}
	traceCfg := trace.Config{
		ServiceName:  "callplatter",
		Exporter:     exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	}
	if err := trace.Initialize(ctx, traceCfg); err != nil {
		log.Fatalf("[Main] tracing init: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := trace.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Main] tracing shutdown: %v", err)
		}
	}()

	bizStore, callStore, vecStore := buildStores(cfg)

	resolver := business.NewCachedResolver(bizStore)

	embedder, err := customer.NewOpenAIEmbedder(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel)
	if err != nil {
		log.Fatalf("[Main] embedder: %v", err)
	}
	lookup := customer.NewVectorLookup(embedder, vecStore,
		customer.WithTimeout(cfg.LookupTimeout()),
		customer.WithMinScore(cfg.Lookup.MinScore),
	)

	var control lifecycle.CallControl
	if cfg.Twilio.AccountSid != "" {
		rest, err := telephony.NewRestClient(telephony.RestConfig{
			AccountSid:        cfg.Twilio.AccountSid,
			AuthToken:         cfg.Twilio.AuthToken,
			StatusCallbackURL: "https://" + cfg.PublicHost + "/recording-status",
		})
		if err != nil {
			log.Fatalf("[Main] telephony REST client: %v", err)
		}
		control = rest
	} else {
		log.Printf("[Main] no telephony credentials, recording and spoken hangups disabled")
	}

	registry := lifecycle.NewRegistry()
	orch := lifecycle.NewOrchestrator(callStore, control, registry)

	aiConfig := realtime.Config{
		APIKey:   cfg.OpenAI.APIKey,
		Model:    cfg.OpenAI.RealtimeModel,
		Endpoint: cfg.OpenAI.RealtimeEndpoint,
	}
	dialAI := func(ctx context.Context, handler bridge.RealtimeHandler) (bridge.AILeg, error) {
		return realtime.Dial(ctx, aiConfig, handler)
	}

	limiter := ratelimit.New(cfg.Limits.CallsPerSecond, cfg.Limits.Burst)
	pruneDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Prune(30 * time.Minute)
			case <-pruneDone:
				return
			}
		}
	}()
	defer close(pruneDone)

	srv := server.New(server.Config{
		Address:    cfg.ListenAddr,
		PublicHost: cfg.PublicHost,
	}, server.Deps{
		Resolver: resolver,
		Lookup:   lookup,
		DialAI:   dialAI,
		Orch:     orch,
		Registry: registry,
		Store:    callStore,
		Limiter:  limiter,
	})

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("[Main] server start: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("[Main] received %s, shutting down", sig)

	if err := srv.Stop(); err != nil {
		log.Printf("[Main] server stop: %v", err)
	}
}

// buildStores wires Postgres-backed stores when DATABASE_URL is set and
// falls back to in-memory stores otherwise.
func buildStores(cfg *config.Config) (business.Store, lifecycle.Store, customer.VectorStore) {
	if cfg.Database.URL == "" {
		log.Printf("[Main] no database configured, using in-memory stores")
		return business.NewMemoryStore(), lifecycle.NewMemoryStore(), customer.NewMemoryVectorStore()
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("[Main] database open: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("[Main] database ping: %v", err)
	}
	log.Printf("[Main] connected to database")

	return business.NewSQLStore(db), lifecycle.NewSQLStore(db), customer.NewSQLVectorStore(db)
}
