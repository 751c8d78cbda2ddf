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
	"github.com/mcdev12/cubedraft/go/internal/draft/outbox"
	"github.com/mcdev12/cubedraft/go/internal/draft/transport"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	level, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// signal‐aware context
	ctx, stop := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbCfg, err := dbconfig.NewConfigFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("load database config")
	}
	db, err := store.Open(ctx, dbCfg.Driver, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	natsCfg, err := transport.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load NATS config")
	}
	publisher, err := transport.NewJetStream(natsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create JetStream transport")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}()

	cfg, err := outbox.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("load outbox config")
	}

	clock := clockwork.NewRealClock()
	app := outbox.NewApp(outbox.NewRepository(db.Queries()), clock)
	relay := outbox.NewRelay(app, publisher, clock, cfg)

	// LISTEN/NOTIFY only exists on Postgres; SQLite runs on the poll interval alone.
	var listener *outbox.Listener
	var notifications <-chan string
	if db.Postgres() {
		listener, err = outbox.NewListener(dbCfg.PostgresURL(), clock, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create outbox listener")
		}
		notifications = listener.Notifications()
		go func() {
			if err := listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("listener stopped")
			}
		}()
	}

	health := outbox.NewHealthChecker(relay, db, publisher, listener, clock, cfg.StallThreshold)
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", health.MetricsHandler())
	server := &http.Server{Addr: cfg.HealthAddr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.HealthAddr).Msg("health endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	// run relay
	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- relay.Run(ctx, notifications)
	}()

	// wait for shutdown or error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("relay exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
