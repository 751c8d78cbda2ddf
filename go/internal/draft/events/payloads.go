package events

import (
	"time"
)

// Event types broadcast on a session channel.
const (
	TypeDraftStarted   = "draft-started"
	TypeNewPlayer      = "new-player"
	TypePileDeclined   = "pile-declined"
	TypePlayerSelected = "player-selected"
	TypePacksRotated   = "packs-rotated"
	TypeGridSelection  = "grid-selection"
	TypeCardPicked     = "card-picked"
	TypeDraftFinished  = "draft-finished"
)

// Grid selection kinds.
const (
	SelectionRow    = "row"
	SelectionColumn = "column"
)

// DraftStartedPayload is the payload for a draft-started event
type DraftStartedPayload struct {
	SessionID    string    `json:"session_id"`
	Method       string    `json:"method"`
	Participants []string  `json:"participants"`
	StartedAt    time.Time `json:"started_at"`
}

// NewPlayerPayload ends a Winston turn. AcceptedPileIndex equal to the pile count
// means the last pile was declined and the player drew from the deck.
type NewPlayerPayload struct {
	Player            int    `json:"player"`
	PlayerID          string `json:"player_id"`
	CurrentPlayer     int    `json:"current_player"`
	AcceptedPileIndex int    `json:"accepted_pile_index"`
	Finished          bool   `json:"finished"`
	CardIndexes       []int  `json:"card_indexes"`
}

// PileDeclinedPayload is the payload for a pile-declined event. CardIndex is -1 when
// the deck was empty and nothing was added to the pile.
type PileDeclinedPayload struct {
	Player        int `json:"player"`
	PileIndex     int `json:"pile_index"`
	CardIndex     int `json:"card_index"`
	NextPileIndex int `json:"next_pile_index"`
}

// PlayerSelectedPayload is the payload for a player-selected event
type PlayerSelectedPayload struct {
	PlayerIndex int `json:"player_index"`
	PackIndex   int `json:"pack_index"`
	CardIndex   int `json:"card_index"`
	Round       int `json:"round"`
	Turn        int `json:"turn"`
}

// PacksRotatedPayload moves a Rochester session from (FromRound, FromTurn) to (Round, Turn).
type PacksRotatedPayload struct {
	FromRound       int   `json:"from_round"`
	FromTurn        int   `json:"from_turn"`
	Round           int   `json:"round"`
	Turn            int   `json:"turn"`
	PackAssignments []int `json:"pack_assignments"`
}

// GridSelectionPayload is the payload for a grid-selection event
type GridSelectionPayload struct {
	Player           int    `json:"player"`
	NextPlayer       int    `json:"next_player"`
	SelectionType    string `json:"selection_type"`
	Index            int    `json:"index"`
	CardIndexes      []int  `json:"card_indexes"`
	IsDraftFinished  bool   `json:"is_draft_finished"`
	CompletedPlayers []int  `json:"completed_players"`
}

// CardPickedPayload is the payload for an asynchronous card-picked event
type CardPickedPayload struct {
	Player     int `json:"player"`
	PackNumber int `json:"pack_number"`
	CardIndex  int `json:"card_index"`
}

// DraftFinishedPayload is the payload for a draft-finished event
type DraftFinishedPayload struct {
	SessionID string `json:"session_id"`
}
