package engine

import (
	"slices"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// Empty marks a grid cell with no card.
const Empty = -1

// Grid is the row/column working state. Cells are addressed [row][col].
type Grid struct {
	Size  int
	Cells [][]int
	Deck  []int
}

func newGrid(indexes []int, size int) *Grid {
	g := &Grid{
		Size:  size,
		Cells: make([][]int, size),
		Deck:  append([]int(nil), indexes...),
	}
	for r := range g.Cells {
		g.Cells[r] = make([]int, size)
		for c := range g.Cells[r] {
			g.Cells[r][c] = Empty
		}
	}
	g.refill()
	return g
}

func (g *Grid) Method() models.DraftMethod { return models.DraftMethodGrid }

func (g *Grid) clone() Board {
	c := &Grid{
		Size:  g.Size,
		Cells: make([][]int, len(g.Cells)),
		Deck:  append([]int(nil), g.Deck...),
	}
	for r, row := range g.Cells {
		c.Cells[r] = append([]int(nil), row...)
	}
	return c
}

// refill fills empty cells row-major until the grid is full or the deck runs out.
func (g *Grid) refill() {
	for r := range g.Cells {
		for c := range g.Cells[r] {
			if g.Cells[r][c] != Empty {
				continue
			}
			if len(g.Deck) == 0 {
				return
			}
			g.Cells[r][c] = g.Deck[0]
			g.Deck = g.Deck[1:]
		}
	}
}

// Line returns the non-empty cards on a row or column, or nil if the line is invalid.
func (g *Grid) Line(kind string, index int) []int {
	if index < 0 || index >= g.Size {
		return nil
	}
	var out []int
	for i := 0; i < g.Size; i++ {
		var v int
		switch kind {
		case events.SelectionRow:
			v = g.Cells[index][i]
		case events.SelectionColumn:
			v = g.Cells[i][index]
		default:
			return nil
		}
		if v != Empty {
			out = append(out, v)
		}
	}
	return out
}

func (g *Grid) clearLine(kind string, index int, cards []int) []int {
	var cleared []int
	for i := 0; i < g.Size; i++ {
		r, c := index, i
		if kind == events.SelectionColumn {
			r, c = i, index
		}
		if v := g.Cells[r][c]; v != Empty && slices.Contains(cards, v) {
			cleared = append(cleared, v)
			g.Cells[r][c] = Empty
		}
	}
	return cleared
}

// Exhausted reports whether the grid and deck are both empty.
func (g *Grid) Exhausted() bool {
	if len(g.Deck) > 0 {
		return false
	}
	for _, row := range g.Cells {
		for _, v := range row {
			if v != Empty {
				return false
			}
		}
	}
	return true
}

// SelectLine proposes taking every card on a row or column.
func (s *State) SelectLine(player int, kind string, index int) (events.Event, error) {
	g, ok := s.Board.(*Grid)
	if !ok {
		return events.Event{}, ErrWrongMethod
	}
	if err := s.checkTurn(player); err != nil {
		return events.Event{}, err
	}
	cards := g.Line(kind, index)
	if len(cards) == 0 {
		return events.Event{}, ErrCardNotAvailable
	}

	// Resolve the outcome on a scratch copy so the payload carries the next turn.
	next := s.Clone()
	ng := next.Board.(*Grid)
	for _, idx := range ng.clearLine(kind, index, cards) {
		next.take(player, idx)
	}
	ng.refill()
	next.markGridCompleted()

	finished := next.allCompleted() || ng.Exhausted()
	nextPlayer := NextPlayer(player, s.numPlayers(), next.Completed)

	return events.Event{
		Type: events.TypeGridSelection,
		Payload: events.GridSelectionPayload{
			Player:           player,
			NextPlayer:       nextPlayer,
			SelectionType:    kind,
			Index:            index,
			CardIndexes:      cards,
			IsDraftFinished:  finished,
			CompletedPlayers: next.CompletedPlayers(),
		},
	}, nil
}

func (s *State) applyGridSelection(g *Grid, env events.Envelope, p events.GridSelectionPayload) error {
	if p.Player != s.CurrentPlayer || p.Player < 0 || p.Player >= s.numPlayers() {
		s.stale(env, "turn already passed")
		return nil
	}
	if g.Line(p.SelectionType, p.Index) == nil {
		s.stale(env, "line is empty or invalid")
		return nil
	}
	cleared := g.clearLine(p.SelectionType, p.Index, p.CardIndexes)
	if len(cleared) == 0 {
		s.stale(env, "cards already taken")
		return nil
	}
	for _, idx := range cleared {
		s.take(p.Player, idx)
	}
	g.refill()

	s.markGridCompleted()
	for _, c := range p.CompletedPlayers {
		if c >= 0 && c < s.numPlayers() {
			s.Completed[c] = true
		}
	}
	if p.NextPlayer >= 0 && p.NextPlayer < s.numPlayers() {
		s.CurrentPlayer = p.NextPlayer
	}
	return nil
}

func (s *State) markGridCompleted() {
	target := s.Session.TargetDeckSize()
	if target <= 0 {
		return
	}
	for p, d := range s.Drafted {
		if len(d) >= target {
			s.Completed[p] = true
		}
	}
}

func (s *State) allCompleted() bool {
	for p := 0; p < s.numPlayers(); p++ {
		if !s.Completed[p] {
			return false
		}
	}
	return true
}
