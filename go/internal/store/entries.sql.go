package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/sqlutil"
)

const insertPoolEntry = `INSERT INTO pool_entries (
    session_id, global_index, card_id, card, owner, slot, picked
) VALUES ($1, $2, $3, $4, $5, $6, $7)`

func (q *Queries) InsertPoolEntry(ctx context.Context, e models.PoolEntry) error {
	card, err := json.Marshal(e.Card)
	if err != nil {
		return fmt.Errorf("failed to encode card %d: %w", e.Card.ID, err)
	}
	_, err = q.db.ExecContext(ctx, insertPoolEntry,
		e.SessionID,
		e.GlobalIndex,
		e.Card.ID,
		string(card),
		sqlutil.ToSqlString(e.Owner),
		e.Slot,
		e.Picked,
	)
	return err
}

const listPoolEntries = `SELECT session_id, global_index, card, owner, slot, picked
FROM pool_entries WHERE session_id = $1 ORDER BY global_index`

func (q *Queries) ListPoolEntries(ctx context.Context, sessionID uuid.UUID) ([]models.PoolEntry, error) {
	rows, err := q.db.QueryContext(ctx, listPoolEntries, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.PoolEntry
	for rows.Next() {
		var (
			e     models.PoolEntry
			card  []byte
			owner sql.NullString
		)
		if err := rows.Scan(&e.SessionID, &e.GlobalIndex, &card, &owner, &e.Slot, &e.Picked); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(card, &e.Card); err != nil {
			return nil, fmt.Errorf("failed to decode card at %d: %w", e.GlobalIndex, err)
		}
		e.Owner = sqlutil.FromSqlStringPtr(owner)
		items = append(items, e)
	}
	return items, rows.Err()
}

const claimPoolEntry = `UPDATE pool_entries
SET owner = $3, slot = $4, picked = $5
WHERE session_id = $1 AND global_index = $2 AND owner IS NULL`

const movePoolEntry = `UPDATE pool_entries
SET slot = $3, picked = $4
WHERE session_id = $1 AND global_index = $2`

// UpdatePoolEntry writes one entry change. An update that sets an owner only
// applies to an unowned row; the caller checks the returned row count.
func (q *Queries) UpdatePoolEntry(ctx context.Context, sessionID uuid.UUID, u models.EntryUpdate) (int64, error) {
	var (
		result sql.Result
		err    error
	)
	if u.Owner != nil {
		result, err = q.db.ExecContext(ctx, claimPoolEntry, sessionID, u.GlobalIndex, *u.Owner, u.Slot, u.Picked)
	} else {
		result, err = q.db.ExecContext(ctx, movePoolEntry, sessionID, u.GlobalIndex, u.Slot, u.Picked)
	}
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countOwnedEntries = `SELECT COUNT(*) FROM pool_entries WHERE session_id = $1 AND owner = $2`

func (q *Queries) CountOwnedEntries(ctx context.Context, sessionID uuid.UUID, owner string) (int, error) {
	var count int
	err := q.db.QueryRowContext(ctx, countOwnedEntries, sessionID, owner).Scan(&count)
	return count, err
}
