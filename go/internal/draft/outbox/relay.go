package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
)

// Publisher is the transport the relay hands committed events to.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope, expectedSeq uint64) (uint64, error)
}

// Relay publishes committed outbox events in commit order. It drains the outbox
// whenever a notification arrives and on a fallback poll interval.
type Relay struct {
	app       *App
	publisher Publisher
	clock     clockwork.Clock
	cfg       Config
	metrics   *Metrics

	mu      sync.Mutex
	running bool
}

func NewRelay(app *App, publisher Publisher, clock clockwork.Clock, cfg Config) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		app:       app,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		metrics:   &Metrics{},
	}
}

// Metrics returns the relay counters.
func (r *Relay) Metrics() *Metrics {
	return r.metrics
}

// Running reports whether Run is active.
func (r *Relay) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Run blocks until ctx is done. notifications may be nil when the database has no
// LISTEN/NOTIFY support; the poll interval then carries all the work.
func (r *Relay) Run(ctx context.Context, notifications <-chan string) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay already running")
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	log.Info().
		Dur("poll_interval", r.cfg.PollInterval).
		Int("batch_size", r.cfg.BatchSize).
		Msg("outbox relay started")

	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	r.Drain(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox relay shutting down")
			return nil
		case id, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			log.Debug().Str("event_id", id).Msg("outbox notification")
			r.Drain(ctx)
		case <-ticker.Chan():
			r.Drain(ctx)
		}
	}
}

// Drain relays batches until the outbox is empty or a batch fails.
func (r *Relay) Drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.app.ProcessUnsentEvents(ctx, r.cfg.BatchSize, func(ev OutboxEvent) error {
			return r.publishWithRetry(ctx, ev.Envelope)
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to relay outbox batch")
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// publishWithRetry attempts to publish an event with a linear backoff.
func (r *Relay) publishWithRetry(ctx context.Context, env events.Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			r.metrics.RecordRetry()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		seq, err := r.publisher.Publish(ctx, env, 0)
		if err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", env.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		r.metrics.RecordPublished(r.clock.Now())
		log.Info().
			Str("event_id", env.ID.String()).
			Str("event_type", env.Type).
			Uint64("sequence", seq).
			Msg("relayed outbox event")
		return nil
	}

	r.metrics.RecordFailed()
	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
