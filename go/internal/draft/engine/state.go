package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

var (
	ErrDraftNotActive   = errors.New("draft is not active")
	ErrDraftFinished    = errors.New("draft is already finished")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrUnknownPlayer    = errors.New("player is not a participant")
	ErrCardNotAvailable = errors.New("card is not available")
	ErrWrongMethod      = errors.New("action is not valid for this draft method")
	ErrPlayerCompleted  = errors.New("player has already completed their deck")
)

// Board is the method specific working state. The set of implementations is closed:
// *Winston, *Rochester, *Grid and *Async.
type Board interface {
	Method() models.DraftMethod
	clone() Board
}

// State is one replica's projection of a session, built from the allocation and the
// ordered event log.
type State struct {
	Session       models.Session
	Status        models.DraftStatus
	CurrentPlayer int

	// Drafted holds global indexes per participant in pick order.
	Drafted   [][]int
	Owner     map[int]int
	Completed map[int]bool

	Board Board

	entries map[int]models.PoolEntry
}

// New lays out the working state for a freshly allocated pool. Entries may be passed
// in any order; layout always follows global index order.
func New(session models.Session, entries []models.PoolEntry) (*State, error) {
	n := session.NumberOfPlayers()
	if n == 0 {
		return nil, fmt.Errorf("session %s has no participants", session.ID)
	}
	if !session.Method.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrWrongMethod, session.Method)
	}
	session.Settings = session.Settings.Normalized(session.Method)

	sorted := make([]models.PoolEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].GlobalIndex < sorted[j].GlobalIndex })

	s := &State{
		Session:   session,
		Status:    models.DraftStatusWaiting,
		Drafted:   make([][]int, n),
		Owner:     make(map[int]int),
		Completed: make(map[int]bool),
		entries:   make(map[int]models.PoolEntry, len(sorted)),
	}
	indexes := make([]int, len(sorted))
	for i, e := range sorted {
		s.entries[e.GlobalIndex] = e
		indexes[i] = e.GlobalIndex
	}

	switch session.Method {
	case models.DraftMethodWinston:
		s.Board = newWinston(indexes, session.Settings.NumberOfPiles)
	case models.DraftMethodRochester:
		s.Board = newRochester(indexes, n, session.Settings)
	case models.DraftMethodGrid:
		s.Board = newGrid(indexes, session.Settings.NumberOfPiles)
	case models.DraftMethodAsynchronous:
		s.Board = newAsync(indexes, n, session.Settings)
	}
	return s, nil
}

// Clone returns a deep copy that can be mutated without affecting s.
func (s *State) Clone() *State {
	c := &State{
		Session:       s.Session,
		Status:        s.Status,
		CurrentPlayer: s.CurrentPlayer,
		Drafted:       make([][]int, len(s.Drafted)),
		Owner:         make(map[int]int, len(s.Owner)),
		Completed:     make(map[int]bool, len(s.Completed)),
		Board:         s.Board.clone(),
		entries:       s.entries,
	}
	for i, d := range s.Drafted {
		c.Drafted[i] = append([]int(nil), d...)
	}
	for k, v := range s.Owner {
		c.Owner[k] = v
	}
	for k, v := range s.Completed {
		c.Completed[k] = v
	}
	return c
}

// Entry returns the pool entry at a global index.
func (s *State) Entry(globalIndex int) (models.PoolEntry, bool) {
	e, ok := s.entries[globalIndex]
	return e, ok
}

// PoolSize is the number of entries in the allocated pool.
func (s *State) PoolSize() int {
	return len(s.entries)
}

// DraftedCards resolves a participant's drafted indexes to cards.
func (s *State) DraftedCards(player int) []models.Card {
	if player < 0 || player >= len(s.Drafted) {
		return nil
	}
	out := make([]models.Card, 0, len(s.Drafted[player]))
	for _, idx := range s.Drafted[player] {
		out = append(out, s.entries[idx].Card)
	}
	return out
}

// CompletedPlayers returns completed participant indexes in ascending order.
func (s *State) CompletedPlayers() []int {
	out := make([]int, 0, len(s.Completed))
	for p, ok := range s.Completed {
		if ok {
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}

func (s *State) numPlayers() int {
	return len(s.Drafted)
}

// take records ownership of a card. It reports false if the card already had an owner.
func (s *State) take(player, globalIndex int) bool {
	if _, owned := s.Owner[globalIndex]; owned {
		return false
	}
	s.Owner[globalIndex] = player
	s.Drafted[player] = append(s.Drafted[player], globalIndex)
	return true
}

// checkActor validates that a participant may act at all.
func (s *State) checkActor(player int) error {
	switch s.Status {
	case models.DraftStatusFinished:
		return ErrDraftFinished
	case models.DraftStatusActive:
	default:
		return ErrDraftNotActive
	}
	if player < 0 || player >= s.numPlayers() {
		return ErrUnknownPlayer
	}
	return nil
}

// checkTurn additionally requires the participant to hold the turn.
func (s *State) checkTurn(player int) error {
	if err := s.checkActor(player); err != nil {
		return err
	}
	if player != s.CurrentPlayer {
		return ErrNotYourTurn
	}
	return nil
}

// Apply folds one event into the projection. Events that no longer match the state
// are logged and ignored so that replays and duplicates never double-mutate.
func (s *State) Apply(env events.Envelope) error {
	payload, err := env.Decode()
	if err != nil {
		return err
	}

	switch payload.(type) {
	case events.DraftStartedPayload:
		if s.Status == models.DraftStatusWaiting {
			s.Status = models.DraftStatusActive
		}
		return nil
	case events.DraftFinishedPayload:
		s.Status = models.DraftStatusFinished
		return nil
	}

	if s.Status == models.DraftStatusFinished {
		s.stale(env, "draft already finished")
		return nil
	}

	switch b := s.Board.(type) {
	case *Winston:
		switch p := payload.(type) {
		case events.NewPlayerPayload:
			return s.applyNewPlayer(b, env, p)
		case events.PileDeclinedPayload:
			return s.applyPileDeclined(b, env, p)
		}
	case *Rochester:
		switch p := payload.(type) {
		case events.PlayerSelectedPayload:
			return s.applyPlayerSelected(b, env, p)
		case events.PacksRotatedPayload:
			return s.applyPacksRotated(b, env, p)
		}
	case *Grid:
		if p, ok := payload.(events.GridSelectionPayload); ok {
			return s.applyGridSelection(b, env, p)
		}
	case *Async:
		if p, ok := payload.(events.CardPickedPayload); ok {
			return s.applyCardPicked(b, env, p)
		}
	}

	s.stale(env, "event does not belong to this draft method")
	return nil
}

func (s *State) stale(env events.Envelope, reason string) {
	log.Warn().
		Str("session_id", s.Session.ID.String()).
		Str("event_id", env.ID.String()).
		Str("event_type", env.Type).
		Str("reason", reason).
		Msg("ignoring stale event")
}
