package engine

import (
	"slices"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// Winston is the pile based working state. Deck[0] is the top of the deck.
type Winston struct {
	Deck        []int
	Piles       [][]int
	CurrentPile int
}

func newWinston(indexes []int, numberOfPiles int) *Winston {
	w := &Winston{Piles: make([][]int, numberOfPiles)}
	deck := append([]int(nil), indexes...)
	for i := range w.Piles {
		if len(deck) == 0 {
			w.Piles[i] = []int{}
			continue
		}
		w.Piles[i] = []int{deck[0]}
		deck = deck[1:]
	}
	w.Deck = deck
	return w
}

func (w *Winston) Method() models.DraftMethod { return models.DraftMethodWinston }

func (w *Winston) clone() Board {
	c := &Winston{
		Deck:        append([]int(nil), w.Deck...),
		Piles:       make([][]int, len(w.Piles)),
		CurrentPile: w.CurrentPile,
	}
	for i, p := range w.Piles {
		c.Piles[i] = append([]int{}, p...)
	}
	return c
}

// Exhausted reports whether the deck and every pile are empty.
func (w *Winston) Exhausted() bool {
	if len(w.Deck) > 0 {
		return false
	}
	for _, p := range w.Piles {
		if len(p) > 0 {
			return false
		}
	}
	return true
}

// CanDecline reports whether declining the current pile is a legal move. With
// an empty deck the only illegal decline is the sole non-empty pile.
func (w *Winston) CanDecline() bool {
	if len(w.Deck) > 0 {
		return true
	}
	for i, p := range w.Piles {
		if i != w.CurrentPile && len(p) > 0 {
			return true
		}
	}
	return false
}

func (w *Winston) pop() (int, bool) {
	if len(w.Deck) == 0 {
		return 0, false
	}
	top := w.Deck[0]
	w.Deck = w.Deck[1:]
	return top, true
}

// nextNonEmpty is the first non-empty pile strictly after from, or -1.
func (w *Winston) nextNonEmpty(from int) int {
	for i := from + 1; i < len(w.Piles); i++ {
		if len(w.Piles[i]) > 0 {
			return i
		}
	}
	return -1
}

func (w *Winston) firstNonEmpty() int {
	for i, p := range w.Piles {
		if len(p) > 0 {
			return i
		}
	}
	return 0
}

func (s *State) winston() (*Winston, error) {
	w, ok := s.Board.(*Winston)
	if !ok {
		return nil, ErrWrongMethod
	}
	return w, nil
}

// AcceptPile proposes taking the current pile.
func (s *State) AcceptPile(player int) (events.Event, error) {
	w, err := s.winston()
	if err != nil {
		return events.Event{}, err
	}
	if err := s.checkTurn(player); err != nil {
		return events.Event{}, err
	}
	pile := w.Piles[w.CurrentPile]
	if len(pile) == 0 {
		return events.Event{}, ErrCardNotAvailable
	}

	next := w.clone().(*Winston)
	next.Piles[next.CurrentPile] = []int{}
	if top, ok := next.pop(); ok {
		next.Piles[next.CurrentPile] = []int{top}
	}

	return events.Event{
		Type: events.TypeNewPlayer,
		Payload: events.NewPlayerPayload{
			Player:            player,
			PlayerID:          s.Session.Participants[player],
			CurrentPlayer:     NextPlayer(player, s.numPlayers(), nil),
			AcceptedPileIndex: w.CurrentPile,
			Finished:          next.Exhausted(),
			CardIndexes:       append([]int{}, pile...),
		},
	}, nil
}

// DeclinePile proposes passing on the current pile. An illegal decline is turned
// into an accept of the current pile.
func (s *State) DeclinePile(player int) (events.Event, error) {
	w, err := s.winston()
	if err != nil {
		return events.Event{}, err
	}
	if err := s.checkTurn(player); err != nil {
		return events.Event{}, err
	}
	if !w.CanDecline() {
		return s.AcceptPile(player)
	}

	cardIndex := -1
	nextPile := w.CurrentPile + 1
	if len(w.Deck) > 0 {
		cardIndex = w.Deck[0]
	} else {
		nextPile = w.nextNonEmpty(w.CurrentPile)
	}
	if nextPile >= 0 && nextPile < len(w.Piles) {
		return events.Event{
			Type: events.TypePileDeclined,
			Payload: events.PileDeclinedPayload{
				Player:        player,
				PileIndex:     w.CurrentPile,
				CardIndex:     cardIndex,
				NextPileIndex: nextPile,
			},
		}, nil
	}

	// Declining past the last pile: the top card joins the current pile and the
	// next one is drawn blind. An empty deck passes the turn with nothing drawn.
	next := w.clone().(*Winston)
	drawn := []int{}
	if top, ok := next.pop(); ok {
		next.Piles[next.CurrentPile] = append(next.Piles[next.CurrentPile], top)
		if c, ok := next.pop(); ok {
			drawn = []int{c}
		}
	}

	return events.Event{
		Type: events.TypeNewPlayer,
		Payload: events.NewPlayerPayload{
			Player:            player,
			PlayerID:          s.Session.Participants[player],
			CurrentPlayer:     NextPlayer(player, s.numPlayers(), nil),
			AcceptedPileIndex: len(w.Piles),
			Finished:          next.Exhausted(),
			CardIndexes:       drawn,
		},
	}, nil
}

func (s *State) applyNewPlayer(w *Winston, env events.Envelope, p events.NewPlayerPayload) error {
	if p.Player != s.CurrentPlayer || p.Player < 0 || p.Player >= s.numPlayers() {
		s.stale(env, "turn already passed")
		return nil
	}

	if p.AcceptedPileIndex < len(w.Piles) {
		pile := w.Piles[p.AcceptedPileIndex]
		if len(pile) == 0 || !slices.Equal(pile, p.CardIndexes) {
			s.stale(env, "pile contents changed")
			return nil
		}
		for _, idx := range pile {
			s.take(p.Player, idx)
		}
		w.Piles[p.AcceptedPileIndex] = []int{}
		if top, ok := w.pop(); ok {
			w.Piles[p.AcceptedPileIndex] = []int{top}
		}
	} else {
		last := len(w.Piles) - 1
		passing := w.CurrentPile == last
		if len(w.Deck) == 0 {
			passing = w.nextNonEmpty(w.CurrentPile) < 0 && w.CanDecline()
		}
		if !passing {
			s.stale(env, "piles remain after the cursor")
			return nil
		}
		if top, ok := w.pop(); ok {
			w.Piles[w.CurrentPile] = append(w.Piles[w.CurrentPile], top)
			if c, ok := w.pop(); ok {
				s.take(p.Player, c)
			}
		}
	}

	s.CurrentPlayer = p.CurrentPlayer
	w.CurrentPile = w.firstNonEmpty()
	return nil
}

func (s *State) applyPileDeclined(w *Winston, env events.Envelope, p events.PileDeclinedPayload) error {
	if p.Player != s.CurrentPlayer || p.PileIndex != w.CurrentPile {
		s.stale(env, "pile is not under the cursor")
		return nil
	}
	if p.NextPileIndex < 0 || p.NextPileIndex >= len(w.Piles) {
		s.stale(env, "next pile out of range")
		return nil
	}
	if p.CardIndex >= 0 {
		if len(w.Deck) == 0 || w.Deck[0] != p.CardIndex {
			s.stale(env, "deck top changed")
			return nil
		}
		top, _ := w.pop()
		w.Piles[p.PileIndex] = append(w.Piles[p.PileIndex], top)
	}
	w.CurrentPile = p.NextPileIndex
	return nil
}
