package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/sqlutil"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

type Repository struct {
	db      *store.DB
	queries *store.Queries
}

func NewRepository(db *store.DB) *Repository {
	return &Repository{
		db:      db,
		queries: db.Queries(),
	}
}

// CreateSession writes the session row and every pool row in one transaction.
func (r *Repository) CreateSession(ctx context.Context, s models.Session, entries []models.PoolEntry) error {
	return sqlutil.Run(ctx, r.db.DB, r.queries.WithTx, func(q *store.Queries) error {
		if err := q.CreateSession(ctx, s); err != nil {
			return fmt.Errorf("failed to insert session: %w", err)
		}
		for _, e := range entries {
			if err := q.InsertPoolEntry(ctx, e); err != nil {
				return fmt.Errorf("failed to insert pool entry %d: %w", e.GlobalIndex, err)
			}
		}
		return nil
	})
}

func (r *Repository) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	s, err := r.queries.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (r *Repository) ListPoolEntries(ctx context.Context, id uuid.UUID) ([]models.PoolEntry, error) {
	entries, err := r.queries.ListPoolEntries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool entries: %w", err)
	}
	return entries, nil
}

func (r *Repository) ListSessions(ctx context.Context, status models.DraftStatus) ([]models.Session, error) {
	sessions, err := r.queries.ListSessionsByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
