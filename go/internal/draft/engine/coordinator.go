package engine

import (
	"fmt"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// NextPlayer returns the next seat after current that has not completed. If every seat
// has completed it returns current.
func NextPlayer(current, players int, completed map[int]bool) int {
	if players <= 0 {
		return 0
	}
	for k := 1; k <= players; k++ {
		p := (current + k) % players
		if !completed[p] {
			return p
		}
	}
	return current
}

// Done reports whether the working state has nothing left to draft.
func (s *State) Done() bool {
	switch b := s.Board.(type) {
	case *Winston:
		return b.Exhausted()
	case *Rochester:
		return b.Exhausted()
	case *Grid:
		return s.allCompleted() || b.Exhausted()
	case *Async:
		return s.allCompleted()
	}
	return false
}

// FollowUp returns the event that the state implies but nobody has sent yet: a Rochester
// rotation after a completed turn, or the single draft-finished event. Follow-ups carry a
// Key so that every replica proposing one produces the same event id.
func (s *State) FollowUp() (events.Event, bool) {
	if s.Status != models.DraftStatusActive {
		return events.Event{}, false
	}

	if r, ok := s.Board.(*Rochester); ok && !r.Exhausted() && r.TurnComplete() {
		if rot, ok := r.rotation(); ok {
			return events.Event{
				Type:    events.TypePacksRotated,
				Payload: rot,
				Key:     fmt.Sprintf("rotate:%d:%d", rot.FromRound, rot.FromTurn),
			}, true
		}
	}

	if s.Done() {
		return s.finishEvent(), true
	}
	return events.Event{}, false
}

func (s *State) finishEvent() events.Event {
	return events.Event{
		Type:    events.TypeDraftFinished,
		Payload: events.DraftFinishedPayload{SessionID: s.Session.ID.String()},
		Key:     "finish",
	}
}
