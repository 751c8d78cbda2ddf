package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/dbconfig"
	"github.com/mcdev12/cubedraft/go/internal/draft/gateway"
	"github.com/mcdev12/cubedraft/go/internal/draft/outbox"
	"github.com/mcdev12/cubedraft/go/internal/draft/replica"
	"github.com/mcdev12/cubedraft/go/internal/draft/transport"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := gateway.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load gateway config")
	}

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load database config")
	}
	db, err := store.Open(ctx, dbCfg.Driver, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	natsCfg, err := transport.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load NATS config")
	}
	js, err := transport.NewJetStream(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to JetStream")
	}
	defer js.Close()

	clock := clockwork.NewRealClock()

	// The outbox committer guards every action with row conditions and leaves
	// publishing to the relay; the direct committer publishes with JetStream's
	// expected-sequence check and keeps no rows in sync.
	var committer replica.Committer = outbox.NewCommitter(db, clock)
	if cfg.Committer == gateway.CommitterDirect {
		committer = js
	}

	queries := db.Queries()
	hub := gateway.NewHub(queries, js, committer, clock, cfg.Replica())
	service := gateway.NewService(cfg, hub, queries)

	mux := http.NewServeMux()
	mux.Handle("/", service.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil || !js.IsConnected() {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:        cfg.Addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	log.Info().
		Str("addr", cfg.Addr).
		Str("committer", cfg.Committer).
		Str("nats_url", natsCfg.URL).
		Msg("starting draft gateway")

	go func() {
		if err := service.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("draft gateway shutdown complete")
}
