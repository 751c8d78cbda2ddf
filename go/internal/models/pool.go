package models

import (
	"fmt"

	"github.com/google/uuid"
)

// PoolEntry is one physical card instance in a session pool.
// GlobalIndex is assigned once at allocation time and never changes.
type PoolEntry struct {
	SessionID   uuid.UUID `json:"session_id"`
	GlobalIndex int       `json:"global_index"`
	Card        Card      `json:"card"`
	Owner       *string   `json:"owner,omitempty"`
	Slot        string    `json:"slot"`
	Picked      bool      `json:"picked"`
}

// EntryUpdate is a change to a persisted pool row.
type EntryUpdate struct {
	GlobalIndex int     `json:"global_index"`
	Owner       *string `json:"owner,omitempty"`
	Slot        string  `json:"slot"`
	Picked      bool    `json:"picked"`
}

// Slot names describe where an entry sits in the working state.
const (
	SlotDeck    = "deck"
	SlotDrafted = "drafted"
	SlotDropped = "dropped"
)

func PileSlot(pile int) string {
	return fmt.Sprintf("pile:%d", pile)
}

func PackSlot(round, pack int) string {
	return fmt.Sprintf("pack:%d:%d", round, pack)
}

func GridSlot(row, col int) string {
	return fmt.Sprintf("grid:%d:%d", row, col)
}

func ParticipantSlot(participant int) string {
	return fmt.Sprintf("slice:%d", participant)
}
