package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

type Repository struct {
	queries *store.Queries
}

func NewRepository(queries *store.Queries) *Repository {
	return &Repository{
		queries: queries,
	}
}

func (r *Repository) FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	items := make([]OutboxEvent, 0, len(rows))
	for _, row := range rows {
		ev, err := toOutboxEvent(row)
		if err != nil {
			return nil, err
		}
		items = append(items, ev)
	}
	return items, nil
}

func (r *Repository) MarkOutboxSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	if err := r.queries.MarkOutboxSent(ctx, id, sentAt); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) FetchOutboxByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("outbox event %s not found", id)
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	ev, err := toOutboxEvent(row)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *Repository) CountPendingOutbox(ctx context.Context) (int, error) {
	count, err := r.queries.CountPendingOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return count, nil
}

func toOutboxEvent(row store.OutboxRow) (OutboxEvent, error) {
	env, err := events.Unmarshal(row.Payload)
	if err != nil {
		return OutboxEvent{}, fmt.Errorf("failed to decode outbox event %s: %w", row.ID, err)
	}
	return OutboxEvent{
		Seq:       row.Seq,
		Envelope:  env,
		CreatedAt: row.CreatedAt,
		SentAt:    row.SentAt,
	}, nil
}
