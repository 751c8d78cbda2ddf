package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/sqlutil"
)

// GetCards returns the catalog rows for ids, in no particular order. Missing ids
// are simply absent.
func (q *Queries) GetCards(ctx context.Context, ids []int) ([]models.Card, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := `SELECT id, name, type, rarity, data FROM cards WHERE id IN (` + strings.Join(placeholders, ", ") + `)`

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.Card
	for rows.Next() {
		var (
			c    models.Card
			data pqtype.NullRawMessage
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.Rarity, &data); err != nil {
			return nil, err
		}
		if data.Valid {
			c.Data = data.RawMessage
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const upsertCard = `INSERT INTO cards (id, name, type, rarity, data, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    type = excluded.type,
    rarity = excluded.rarity,
    data = excluded.data,
    updated_at = excluded.updated_at`

func (q *Queries) UpsertCard(ctx context.Context, c models.Card, updatedAt time.Time) error {
	data := pqtype.NullRawMessage{RawMessage: c.Data, Valid: len(c.Data) > 0}
	_, err := q.db.ExecContext(ctx, upsertCard,
		c.ID,
		c.Name,
		c.Type,
		c.Rarity,
		data,
		sqlutil.ToMillis(updatedAt),
	)
	return err
}
