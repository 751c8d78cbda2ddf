package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/sqlutil"
)

const createSession = `INSERT INTO draft_sessions (
    id, method, participants, settings, current_player, status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *Queries) CreateSession(ctx context.Context, s models.Session) error {
	participants, err := json.Marshal(s.Participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}
	settings, err := json.Marshal(s.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	_, err = q.db.ExecContext(ctx, createSession,
		s.ID,
		string(s.Method),
		string(participants),
		string(settings),
		s.CurrentPlayer,
		string(s.Status),
		sqlutil.ToMillis(s.CreatedAt),
		sqlutil.ToMillis(s.UpdatedAt),
	)
	return err
}

const selectSession = `SELECT id, method, participants, settings, current_player, status, created_at, updated_at
FROM draft_sessions WHERE id = $1`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (models.Session, error) {
	var (
		s                      models.Session
		method, status         string
		participants, settings []byte
		createdAt, updatedAt   int64
	)
	if err := row.Scan(&s.ID, &method, &participants, &settings, &s.CurrentPlayer, &status, &createdAt, &updatedAt); err != nil {
		return models.Session{}, notFound(err)
	}
	if err := json.Unmarshal(participants, &s.Participants); err != nil {
		return models.Session{}, fmt.Errorf("failed to decode participants: %w", err)
	}
	if err := json.Unmarshal(settings, &s.Settings); err != nil {
		return models.Session{}, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.Method = models.DraftMethod(method)
	s.Status = models.DraftStatus(status)
	s.CreatedAt = sqlutil.FromMillis(createdAt)
	s.UpdatedAt = sqlutil.FromMillis(updatedAt)
	return s, nil
}

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (models.Session, error) {
	return scanSession(q.db.QueryRowContext(ctx, selectSession, id))
}

// LockSession reads a session and, on Postgres, holds its row lock until the
// surrounding transaction ends.
func (q *Queries) LockSession(ctx context.Context, id uuid.UUID) (models.Session, error) {
	return scanSession(q.db.QueryRowContext(ctx, selectSession+q.lockClause(), id))
}

const updateSessionTurn = `UPDATE draft_sessions
SET current_player = $2, updated_at = $3
WHERE id = $1 AND current_player = $4`

type UpdateSessionTurnParams struct {
	ID             uuid.UUID
	ExpectedPlayer int
	NextPlayer     int
	UpdatedAt      time.Time
}

// UpdateSessionTurn moves the turn only if the stored current player is still the
// expected one. It returns the number of rows changed.
func (q *Queries) UpdateSessionTurn(ctx context.Context, arg UpdateSessionTurnParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSessionTurn,
		arg.ID,
		arg.NextPlayer,
		sqlutil.ToMillis(arg.UpdatedAt),
		arg.ExpectedPlayer,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const updateSessionStatus = `UPDATE draft_sessions
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2`

type UpdateSessionStatusParams struct {
	ID        uuid.UUID
	From      models.DraftStatus
	To        models.DraftStatus
	UpdatedAt time.Time
}

// UpdateSessionStatus moves the status only from the expected one.
func (q *Queries) UpdateSessionStatus(ctx context.Context, arg UpdateSessionStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSessionStatus,
		arg.ID,
		string(arg.From),
		string(arg.To),
		sqlutil.ToMillis(arg.UpdatedAt),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listSessionsByStatus = `SELECT id, method, participants, settings, current_player, status, created_at, updated_at
FROM draft_sessions WHERE status = $1 ORDER BY created_at`

func (q *Queries) ListSessionsByStatus(ctx context.Context, status models.DraftStatus) ([]models.Session, error) {
	rows, err := q.db.QueryContext(ctx, listSessionsByStatus, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}
