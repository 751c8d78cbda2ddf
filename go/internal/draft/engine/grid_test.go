package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

func gridFull(g *Grid) bool {
	for _, row := range g.Cells {
		for _, v := range row {
			if v == Empty {
				return false
			}
		}
	}
	return true
}

func TestGrid_RowSelectionRefillsBeforeTurnPasses(t *testing.T) {
	d := newDriver(t, models.DraftMethodGrid, 2, 15, models.DraftSettings{NumberOfPiles: 3})
	assert.Equal(t, [][]int{{0, 1, 2}, {3, 4, 5}, {6, 7, 8}}, d.grid().Cells)

	envs := d.do(d.s.SelectLine(0, events.SelectionRow, 1))
	require.Len(t, envs, 1)

	assert.Equal(t, []int{3, 4, 5}, d.s.Drafted[0])
	assert.Equal(t, []int{9, 10, 11}, d.grid().Cells[1])
	assert.Equal(t, []int{12, 13, 14}, d.grid().Deck)
	assert.Equal(t, 1, d.s.CurrentPlayer)
}

func TestGrid_ColumnSelection(t *testing.T) {
	d := newDriver(t, models.DraftMethodGrid, 2, 9, models.DraftSettings{NumberOfPiles: 3})

	d.do(d.s.SelectLine(0, events.SelectionColumn, 2))
	assert.Equal(t, []int{2, 5, 8}, d.s.Drafted[0])
	for r := 0; r < 3; r++ {
		assert.Equal(t, Empty, d.grid().Cells[r][2])
	}

	_, err := d.s.SelectLine(1, events.SelectionColumn, 2)
	assert.ErrorIs(t, err, ErrCardNotAvailable)
	_, err = d.s.SelectLine(1, "diagonal", 0)
	assert.ErrorIs(t, err, ErrCardNotAvailable)
	_, err = d.s.SelectLine(0, events.SelectionRow, 0)
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestGrid_NoEmptyCellWhileDeckHasCards(t *testing.T) {
	d := newDriver(t, models.DraftMethodGrid, 3, 40, models.DraftSettings{NumberOfPiles: 3})

	for step := 0; d.s.Status == models.DraftStatusActive && step < 100; step++ {
		p := d.s.CurrentPlayer
		kind, index := events.SelectionRow, step%3
		if step%2 == 1 {
			kind = events.SelectionColumn
		}
		if len(d.grid().Line(kind, index)) == 0 {
			kind, index = firstLine(d.grid())
		}
		d.do(d.s.SelectLine(p, kind, index))
		if len(d.grid().Deck) > 0 {
			require.True(t, gridFull(d.grid()), "step %d", step)
		}
	}
	assert.Equal(t, models.DraftStatusFinished, d.s.Status)
}

func firstLine(g *Grid) (string, int) {
	for r := 0; r < g.Size; r++ {
		if len(g.Line(events.SelectionRow, r)) > 0 {
			return events.SelectionRow, r
		}
	}
	return events.SelectionRow, 0
}

func TestGrid_CompletedPlayersAreSkipped(t *testing.T) {
	settings := models.DraftSettings{NumberOfPiles: 3, DraftedDeckSize: 3}
	d := newDriver(t, models.DraftMethodGrid, 3, 30, settings)

	envs := d.do(d.s.SelectLine(0, events.SelectionRow, 0))
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	sel := payload.(events.GridSelectionPayload)
	assert.Equal(t, []int{0}, sel.CompletedPlayers)
	assert.Equal(t, 1, sel.NextPlayer)
	assert.False(t, sel.IsDraftFinished)

	d.do(d.s.SelectLine(1, events.SelectionRow, 0))
	assert.Equal(t, 2, d.s.CurrentPlayer)

	envs = d.do(d.s.SelectLine(2, events.SelectionRow, 0))
	require.Len(t, envs, 2)
	assert.Equal(t, events.TypeDraftFinished, envs[1].Type)
	assert.Equal(t, []int{0, 1, 2}, d.s.CompletedPlayers())
	assert.Equal(t, models.DraftStatusFinished, d.s.Status)
}

func TestGrid_TurnSkipsCompletedSeat(t *testing.T) {
	settings := models.DraftSettings{NumberOfPiles: 2, DraftedDeckSize: 2}
	d := newDriver(t, models.DraftMethodGrid, 3, 20, settings)

	// Player 0 completes with a full row. Player 1 gets a short row and stays below target.
	d.do(d.s.SelectLine(0, events.SelectionRow, 0))
	d.grid().Cells[1][1] = Empty
	d.do(d.s.SelectLine(1, events.SelectionRow, 1))
	assert.Equal(t, 2, d.s.CurrentPlayer)

	envs := d.do(d.s.SelectLine(2, events.SelectionRow, 1))
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	assert.Equal(t, 1, payload.(events.GridSelectionPayload).NextPlayer)
	assert.Equal(t, 1, d.s.CurrentPlayer)
}

func TestGrid_FinishesWhenBoardRunsDry(t *testing.T) {
	settings := models.DraftSettings{NumberOfPiles: 3, DraftedDeckSize: 100}
	d := newDriver(t, models.DraftMethodGrid, 2, 9, settings)

	d.do(d.s.SelectLine(0, events.SelectionRow, 0))
	d.do(d.s.SelectLine(1, events.SelectionRow, 1))
	envs := d.do(d.s.SelectLine(0, events.SelectionRow, 2))

	require.Len(t, envs, 2)
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	assert.True(t, payload.(events.GridSelectionPayload).IsDraftFinished)
	assert.Equal(t, models.DraftStatusFinished, d.s.Status)
	assert.Empty(t, d.s.CompletedPlayers())
}
