package events

import (
	"errors"

	"github.com/google/uuid"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// ErrConflict is returned by a committer when the batch was proposed against a view
// that is no longer current.
var ErrConflict = errors.New("commit conflicts with newer session state")

// Batch is everything a single local action commits atomically.
type Batch struct {
	SessionID uuid.UUID
	Events    []Envelope

	// ExpectedSeq is the last transport sequence the proposer had applied. Zero skips the check.
	ExpectedSeq uint64

	// Updates are pool row changes implied by the events.
	Updates []models.EntryUpdate

	Guard Guard
}

// Guard carries the conditions a storage backed committer checks before writing.
type Guard struct {
	// CheckTurn requires the stored current player to equal ExpectedPlayer.
	CheckTurn      bool
	ExpectedPlayer int
	NextPlayer     int

	// Status is written when non-empty.
	Status models.DraftStatus

	// CheckOwned requires Actor to own exactly ExpectedOwned entries.
	CheckOwned    bool
	Actor         string
	ExpectedOwned int
}

// Receipt reports what the committer assigned.
type Receipt struct {
	LastSeq uint64
}
