package gateway

import (
	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/draft/engine"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// DraftState is what one connection sees of a session projection. Player is -1 for
// spectators.
type DraftState struct {
	SessionID     uuid.UUID          `json:"session_id"`
	Method        models.DraftMethod `json:"method"`
	Status        models.DraftStatus `json:"status"`
	Participants  []string           `json:"participants"`
	Player        int                `json:"player"`
	CurrentPlayer int                `json:"current_player"`
	Drafted       [][]int            `json:"drafted"`
	Completed     []int              `json:"completed_players"`
	Deck          []models.Card      `json:"deck,omitempty"`

	Winston   *WinstonState   `json:"winston,omitempty"`
	Rochester *RochesterState `json:"rochester,omitempty"`
	Grid      *GridState      `json:"grid,omitempty"`
	Async     *AsyncState     `json:"async,omitempty"`
}

type WinstonState struct {
	DeckSize    int     `json:"deck_size"`
	Piles       [][]int `json:"piles"`
	CurrentPile int     `json:"current_pile"`
	CanDecline  bool    `json:"can_decline"`
}

type RochesterState struct {
	Round           int    `json:"round"`
	Turn            int    `json:"turn"`
	Rounds          int    `json:"rounds"`
	PackAssignments []int  `json:"pack_assignments"`
	Selected        []bool `json:"selected"`
	Pack            []int  `json:"pack"`
	Finished        bool   `json:"finished"`
}

type GridState struct {
	Size     int     `json:"size"`
	Cells    [][]int `json:"cells"`
	DeckSize int     `json:"deck_size"`
}

type AsyncState struct {
	TargetDeckSize int   `json:"target_deck_size"`
	CurrentPack    int   `json:"current_pack"`
	PicksRemaining int   `json:"picks_remaining"`
	Available      []int `json:"available"`
}

// NewDraftState builds the view of s for the participant at seat player.
func NewDraftState(s *engine.State, player int) *DraftState {
	out := &DraftState{
		SessionID:     s.Session.ID,
		Method:        s.Session.Method,
		Status:        s.Status,
		Participants:  s.Session.Participants,
		Player:        player,
		CurrentPlayer: s.CurrentPlayer,
		Drafted:       s.Drafted,
		Completed:     s.CompletedPlayers(),
	}
	if player >= 0 {
		out.Deck = s.DraftedCards(player)
	}

	switch b := s.Board.(type) {
	case *engine.Winston:
		out.Winston = &WinstonState{
			DeckSize:    len(b.Deck),
			Piles:       b.Piles,
			CurrentPile: b.CurrentPile,
			CanDecline:  b.CanDecline(),
		}
	case *engine.Rochester:
		out.Rochester = &RochesterState{
			Round:           b.Round,
			Turn:            b.Turn,
			Rounds:          len(b.Rounds),
			PackAssignments: b.Assignment,
			Selected:        b.Selected,
		}
		if player >= 0 {
			out.Rochester.Pack = b.Pack(player)
			out.Rochester.Finished = b.PlayerFinished(player)
		}
	case *engine.Grid:
		out.Grid = &GridState{
			Size:     b.Size,
			Cells:    b.Cells,
			DeckSize: len(b.Deck),
		}
	case *engine.Async:
		out.Async = &AsyncState{TargetDeckSize: b.Target()}
		if player >= 0 {
			out.Async.CurrentPack = s.CurrentPack(player)
			out.Async.PicksRemaining = s.PicksRemaining(player)
			out.Async.Available = s.AvailablePack(player)
		}
	}
	return out
}
