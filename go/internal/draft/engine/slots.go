package engine

import (
	"sort"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// Slots returns the persisted location of every pool entry, keyed by global index.
func (s *State) Slots() map[int]models.EntryUpdate {
	out := make(map[int]models.EntryUpdate, len(s.entries))
	set := func(idx int, slot string) {
		out[idx] = models.EntryUpdate{GlobalIndex: idx, Slot: slot}
	}

	switch b := s.Board.(type) {
	case *Winston:
		for _, idx := range b.Deck {
			set(idx, models.SlotDeck)
		}
		for p, pile := range b.Piles {
			for _, idx := range pile {
				set(idx, models.PileSlot(p))
			}
		}
	case *Rochester:
		for r, round := range b.Rounds {
			for p, pack := range round {
				for _, idx := range pack {
					set(idx, models.PackSlot(r, p))
				}
			}
		}
		for _, idx := range b.Dropped {
			set(idx, models.SlotDropped)
		}
	case *Grid:
		for _, idx := range b.Deck {
			set(idx, models.SlotDeck)
		}
		for r, row := range b.Cells {
			for c, idx := range row {
				if idx != Empty {
					set(idx, models.GridSlot(r, c))
				}
			}
		}
	case *Async:
		for idx := range s.entries {
			if b.Overlap || b.Layout.SliceSize == 0 {
				set(idx, models.SlotDeck)
				continue
			}
			set(idx, models.ParticipantSlot(min(idx/b.Layout.SliceSize, b.Players-1)))
		}
	}

	for idx, player := range s.Owner {
		owner := s.Session.Participants[player]
		out[idx] = models.EntryUpdate{
			GlobalIndex: idx,
			Owner:       &owner,
			Slot:        models.SlotDrafted,
			Picked:      true,
		}
	}
	return out
}

// Diff lists the entries whose persisted row differs between two states of the same
// session, in global index order.
func Diff(before, after *State) []models.EntryUpdate {
	prev := before.Slots()
	var out []models.EntryUpdate
	for idx, u := range after.Slots() {
		p, ok := prev[idx]
		if ok && p.Slot == u.Slot && p.Picked == u.Picked && sameOwner(p.Owner, u.Owner) {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GlobalIndex < out[j].GlobalIndex })
	return out
}

func sameOwner(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// BatchGuard returns the storage preconditions for committing the transition from
// before to after. actor is -1 for follow-ups that any replica may send.
func BatchGuard(before, after *State, actor int) events.Guard {
	var g events.Guard
	if after.Status != before.Status {
		g.Status = after.Status
	}
	if actor < 0 || actor >= before.numPlayers() {
		return g
	}
	if before.Session.Method.Turn() {
		g.CheckTurn = true
		g.ExpectedPlayer = before.CurrentPlayer
		g.NextPlayer = after.CurrentPlayer
	}
	switch before.Session.Method {
	case models.DraftMethodAsynchronous, models.DraftMethodRochester:
		g.CheckOwned = true
		g.Actor = before.Session.Participants[actor]
		g.ExpectedOwned = len(before.Drafted[actor])
	}
	return g
}
