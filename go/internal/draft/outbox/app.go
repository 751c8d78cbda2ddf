package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// OutboxRepository defines what the app layer needs from the repository
type OutboxRepository interface {
	FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	CountPendingOutbox(ctx context.Context) (int, error)
}

// App handles outbox business logic
type App struct {
	repo  OutboxRepository
	clock clockwork.Clock
}

// NewApp creates a new outbox App
func NewApp(repo OutboxRepository, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:  repo,
		clock: clock,
	}
}

// FetchUnsentEvents fetches unsent outbox events in commit order
func (a *App) FetchUnsentEvents(ctx context.Context, limit int) ([]OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	events, err := a.repo.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	if len(events) > 0 {
		log.Debug().
			Int("count", len(events)).
			Msg("fetched unsent outbox events")
	}

	return events, nil
}

// MarkEventSent marks an outbox event as sent
func (a *App) MarkEventSent(ctx context.Context, eventID uuid.UUID) error {
	if err := a.repo.MarkOutboxSent(ctx, eventID, a.clock.Now()); err != nil {
		return fmt.Errorf("failed to mark event as sent: %w", err)
	}

	log.Debug().
		Str("event_id", eventID.String()).
		Msg("marked outbox event as sent")

	return nil
}

// GetEventByID fetches a specific outbox event by ID
func (a *App) GetEventByID(ctx context.Context, eventID uuid.UUID) (*OutboxEvent, error) {
	event, err := a.repo.FetchOutboxByID(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event by ID: %w", err)
	}

	return event, nil
}

// PendingCount returns the number of events not yet relayed
func (a *App) PendingCount(ctx context.Context) (int, error) {
	return a.repo.CountPendingOutbox(ctx)
}

// ProcessUnsentEvents hands one batch of unsent events to processor and marks the
// successful ones sent. Once an event of a session fails, later events of that
// session are held back so the relayed order matches the commit order. It returns
// how many events were fetched.
func (a *App) ProcessUnsentEvents(ctx context.Context, batchSize int, processor func(event OutboxEvent) error) (int, error) {
	events, err := a.FetchUnsentEvents(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent events: %w", err)
	}

	processedCount := 0
	errorCount := 0
	held := make(map[uuid.UUID]bool)

	for _, event := range events {
		sessionID := event.Envelope.SessionID
		if held[sessionID] {
			continue
		}

		if err := processor(event); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.Envelope.ID.String()).
				Str("event_type", event.Envelope.Type).
				Msg("failed to process event")
			errorCount++
			held[sessionID] = true
			continue
		}

		if err := a.MarkEventSent(ctx, event.Envelope.ID); err != nil {
			log.Error().
				Err(err).
				Str("event_id", event.Envelope.ID.String()).
				Msg("failed to mark event as sent after processing")
			errorCount++
			held[sessionID] = true
			continue
		}

		processedCount++
	}

	if processedCount > 0 || errorCount > 0 {
		log.Info().
			Int("processed", processedCount).
			Int("errors", errorCount).
			Int("total", len(events)).
			Msg("processed unsent events batch")
	}

	if errorCount > 0 {
		return len(events), fmt.Errorf("%d of %d outbox events failed", errorCount, len(events))
	}
	return len(events), nil
}
