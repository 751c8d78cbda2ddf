package outbox

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Listener forwards Postgres NOTIFY payloads from the outbox trigger.
type Listener struct {
	listener *pq.Listener
	clock    clockwork.Clock
	cfg      Config
	notes    chan string
	active   atomic.Bool
}

// NewListener subscribes to cfg.NotifyChannel on the database at dsn.
func NewListener(dsn string, clock clockwork.Clock, cfg Config) (*Listener, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	l := pq.NewListener(
		dsn,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return &Listener{
		listener: l,
		clock:    clock,
		cfg:      cfg,
		notes:    make(chan string, 64),
	}, nil
}

// Notifications carries event ids. An empty id means the connection was re-established
// and notifications may have been missed.
func (l *Listener) Notifications() <-chan string {
	return l.notes
}

// Active reports whether Start is forwarding notifications.
func (l *Listener) Active() bool {
	return l.active.Load()
}

// Start forwards notifications until ctx is done, then closes the listener.
func (l *Listener) Start(ctx context.Context) error {
	l.active.Store(true)
	defer l.active.Store(false)
	defer close(l.notes)

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.listener.Close()
		case note := <-l.listener.Notify:
			id := ""
			if note != nil {
				id = note.Extra
			}
			// nil notification means the connection was lost and re-established
			select {
			case l.notes <- id:
			case <-ctx.Done():
			}
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}
