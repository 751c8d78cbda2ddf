package engine

import (
	"github.com/mcdev12/cubedraft/go/internal/allocator"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// Async is the asynchronous working state. Packs are fixed index ranges derived from
// the layout, so the only mutable state is ownership, which lives on State.
type Async struct {
	Layout  allocator.Layout
	Overlap bool
	Players int
}

func newAsync(indexes []int, players int, settings models.DraftSettings) *Async {
	a := &Async{
		Layout:  allocator.AsyncLayout(settings, players, len(indexes)),
		Overlap: settings.AllowOverlap,
		Players: players,
	}
	if a.Overlap {
		a.Layout.SliceSize = min(a.Layout.PackSize*a.Layout.TotalPacks, len(indexes))
	}
	return a
}

func (a *Async) Method() models.DraftMethod { return models.DraftMethodAsynchronous }

func (a *Async) clone() Board {
	c := *a
	return &c
}

// Target is the number of picks that completes a participant.
func (a *Async) Target() int {
	return min(a.Layout.TargetDeckSize, a.Layout.PicksPerPack*a.Layout.TotalPacks, a.Layout.SliceSize)
}

// PackRange is the half-open index range of a participant's pack, numbered from 1.
func (a *Async) PackRange(player, packNumber int) (int, int) {
	if a.Overlap {
		player = 0
	}
	return a.Layout.PackRange(player, packNumber)
}

// CurrentPack is the pack number a participant is picking from.
func (s *State) CurrentPack(player int) int {
	a, ok := s.Board.(*Async)
	if !ok || player < 0 || player >= s.numPlayers() {
		return 0
	}
	return a.Layout.CurrentPack(len(s.Drafted[player]))
}

// PicksRemaining is the number of picks left in a participant's current pack.
func (s *State) PicksRemaining(player int) int {
	a, ok := s.Board.(*Async)
	if !ok || player < 0 || player >= s.numPlayers() {
		return 0
	}
	return a.Layout.PicksRemaining(len(s.Drafted[player]))
}

// AvailablePack lists unowned cards in a participant's current pack.
func (s *State) AvailablePack(player int) []int {
	a, ok := s.Board.(*Async)
	if !ok || player < 0 || player >= s.numPlayers() || s.Completed[player] {
		return nil
	}
	start, end := a.PackRange(player, s.CurrentPack(player))
	var out []int
	for i := start; i < end; i++ {
		if _, owned := s.Owner[i]; !owned {
			out = append(out, i)
		}
	}
	return out
}

func (s *State) pickAsync(a *Async, player, globalIndex int) (events.Event, error) {
	if err := s.checkActor(player); err != nil {
		return events.Event{}, err
	}
	if s.Completed[player] {
		return events.Event{}, ErrPlayerCompleted
	}
	packNumber := s.CurrentPack(player)
	start, end := a.PackRange(player, packNumber)
	if globalIndex < start || globalIndex >= end {
		return events.Event{}, ErrCardNotAvailable
	}
	if _, owned := s.Owner[globalIndex]; owned {
		return events.Event{}, ErrCardNotAvailable
	}
	return events.Event{
		Type: events.TypeCardPicked,
		Payload: events.CardPickedPayload{
			Player:     player,
			PackNumber: packNumber,
			CardIndex:  globalIndex,
		},
	}, nil
}

func (s *State) applyCardPicked(a *Async, env events.Envelope, p events.CardPickedPayload) error {
	if p.Player < 0 || p.Player >= s.numPlayers() {
		s.stale(env, "unknown player")
		return nil
	}
	if s.Completed[p.Player] {
		s.stale(env, "player already completed")
		return nil
	}
	start, end := a.PackRange(p.Player, p.PackNumber)
	if p.CardIndex < start || p.CardIndex >= end {
		s.stale(env, "card outside the pack")
		return nil
	}
	if !s.take(p.Player, p.CardIndex) {
		s.stale(env, "card already picked")
		return nil
	}
	if len(s.Drafted[p.Player]) >= a.Target() {
		s.Completed[p.Player] = true
	}
	return nil
}
