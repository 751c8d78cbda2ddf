package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/sqlutil"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

// ErrSessionNotFound is returned when a batch names a session that is not stored.
var ErrSessionNotFound = errors.New("draft session not found")

// statusFrom is the only status a session may move to each status from.
var statusFrom = map[models.DraftStatus]models.DraftStatus{
	models.DraftStatusActive:   models.DraftStatusWaiting,
	models.DraftStatusFinished: models.DraftStatusActive,
}

// Committer writes a batch's row changes and its events in one transaction. The
// events land in draft_outbox and are published later by the Relay.
type Committer struct {
	db    *store.DB
	clock clockwork.Clock
}

func NewCommitter(db *store.DB, clock clockwork.Clock) *Committer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Committer{db: db, clock: clock}
}

// Commit implements replica.Committer. Storage has no transport sequence, so the
// receipt is always empty and batch.ExpectedSeq is ignored in favour of the guard.
func (c *Committer) Commit(ctx context.Context, batch events.Batch) (events.Receipt, error) {
	err := sqlutil.Run(ctx, c.db.DB, c.db.Queries().WithTx, func(q *store.Queries) error {
		return c.commit(ctx, q, batch)
	})
	if err != nil {
		return events.Receipt{}, err
	}
	return events.Receipt{}, nil
}

func (c *Committer) commit(ctx context.Context, q *store.Queries, batch events.Batch) error {
	now := c.clock.Now()

	session, err := q.LockSession(ctx, batch.SessionID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, batch.SessionID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock session: %w", err)
	}

	inserted := 0
	for _, env := range batch.Events {
		payload, err := env.Marshal()
		if err != nil {
			return fmt.Errorf("failed to encode %s event: %w", env.Type, err)
		}
		n, err := q.InsertOutbox(ctx, store.InsertOutboxParams{
			ID:        env.ID,
			SessionID: env.SessionID,
			EventType: env.Type,
			Payload:   payload,
			CreatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to insert %s outbox event: %w", env.Type, err)
		}
		inserted += int(n)
	}
	if len(batch.Events) > 0 && inserted == 0 {
		// Every event was already committed, usually a follow-up proposed by several replicas.
		log.Debug().
			Str("session_id", batch.SessionID.String()).
			Str("event_id", batch.Events[0].ID.String()).
			Msg("batch already committed")
		return nil
	}

	guard := batch.Guard
	if guard.CheckTurn || guard.CheckOwned {
		if session.Status != models.DraftStatusActive {
			return fmt.Errorf("%w: session is %s", events.ErrConflict, session.Status)
		}
	}

	if guard.CheckTurn {
		n, err := q.UpdateSessionTurn(ctx, store.UpdateSessionTurnParams{
			ID:             session.ID,
			ExpectedPlayer: guard.ExpectedPlayer,
			NextPlayer:     guard.NextPlayer,
			UpdatedAt:      now,
		})
		if err != nil {
			return fmt.Errorf("failed to update current player: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: current player is %d, expected %d", events.ErrConflict, session.CurrentPlayer, guard.ExpectedPlayer)
		}
	}

	if guard.CheckOwned {
		owned, err := q.CountOwnedEntries(ctx, session.ID, guard.Actor)
		if err != nil {
			return fmt.Errorf("failed to count owned entries: %w", err)
		}
		if owned != guard.ExpectedOwned {
			return fmt.Errorf("%w: %s owns %d entries, expected %d", events.ErrConflict, guard.Actor, owned, guard.ExpectedOwned)
		}
	}

	if guard.Status != "" {
		n, err := q.UpdateSessionStatus(ctx, store.UpdateSessionStatusParams{
			ID:        session.ID,
			From:      statusFrom[guard.Status],
			To:        guard.Status,
			UpdatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("failed to update session status: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w: cannot move session from %s to %s", events.ErrConflict, session.Status, guard.Status)
		}
	}

	for _, u := range batch.Updates {
		n, err := q.UpdatePoolEntry(ctx, session.ID, u)
		if err != nil {
			return fmt.Errorf("failed to update pool entry %d: %w", u.GlobalIndex, err)
		}
		if n == 0 && u.Owner != nil {
			return fmt.Errorf("%w: entry %d is already owned", events.ErrConflict, u.GlobalIndex)
		}
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Int("events", inserted).
		Int("updates", len(batch.Updates)).
		Msg("committed draft batch")

	return nil
}
