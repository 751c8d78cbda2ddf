package outbox

import (
	"time"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
)

// OutboxEvent is a committed event waiting in draft_outbox.
type OutboxEvent struct {
	Seq       int64           `json:"seq"`
	Envelope  events.Envelope `json:"envelope"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}
