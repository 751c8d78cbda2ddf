package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/sqlutil"
)

// OutboxRow is one committed event waiting to be relayed.
type OutboxRow struct {
	Seq       int64
	ID        uuid.UUID
	SessionID uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
	SentAt    *time.Time
}

const insertOutbox = `INSERT INTO draft_outbox (id, session_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO NOTHING`

type InsertOutboxParams struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// InsertOutbox stores an event. It returns 0 when the event id already exists.
func (q *Queries) InsertOutbox(ctx context.Context, arg InsertOutboxParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertOutbox,
		arg.ID,
		arg.SessionID,
		arg.EventType,
		string(arg.Payload),
		sqlutil.ToMillis(arg.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const outboxColumns = `seq, id, session_id, event_type, payload, created_at, sent_at`

func scanOutbox(row rowScanner) (OutboxRow, error) {
	var (
		o         OutboxRow
		createdAt int64
		sentAt    sql.NullInt64
	)
	if err := row.Scan(&o.Seq, &o.ID, &o.SessionID, &o.EventType, &o.Payload, &createdAt, &sentAt); err != nil {
		return OutboxRow{}, notFound(err)
	}
	o.CreatedAt = sqlutil.FromMillis(createdAt)
	o.SentAt = sqlutil.FromNullMillis(sentAt)
	return o, nil
}

const fetchUnsentOutbox = `SELECT ` + outboxColumns + `
FROM draft_outbox WHERE sent_at IS NULL ORDER BY seq LIMIT $1`

// FetchUnsentOutbox returns unsent events in commit order.
func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int) ([]OutboxRow, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OutboxRow
	for rows.Next() {
		o, err := scanOutbox(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const fetchOutboxByID = `SELECT ` + outboxColumns + ` FROM draft_outbox WHERE id = $1`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (OutboxRow, error) {
	return scanOutbox(q.db.QueryRowContext(ctx, fetchOutboxByID, id))
}

const markOutboxSent = `UPDATE draft_outbox SET sent_at = $2 WHERE id = $1 AND sent_at IS NULL`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id, sqlutil.ToMillis(sentAt))
	return err
}

const countPendingOutbox = `SELECT COUNT(*) FROM draft_outbox WHERE sent_at IS NULL`

func (q *Queries) CountPendingOutbox(ctx context.Context) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, countPendingOutbox).Scan(&count)
	return count, err
}
