package engine

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

func winstonCount(s *State) int {
	w := s.Board.(*Winston)
	n := len(w.Deck)
	for _, p := range w.Piles {
		n += len(p)
	}
	for _, d := range s.Drafted {
		n += len(d)
	}
	return n
}

func TestWinston_AcceptRefillsPileAndPassesTurn(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 2, 5, models.DraftSettings{NumberOfPiles: 3})
	assert.Equal(t, [][]int{{0}, {1}, {2}}, d.winston().Piles)
	assert.Equal(t, []int{3, 4}, d.winston().Deck)

	d.do(d.s.AcceptPile(0))

	assert.Equal(t, [][]int{{3}, {1}, {2}}, d.winston().Piles)
	assert.Equal(t, []int{4}, d.winston().Deck)
	assert.Equal(t, []int{0}, d.s.Drafted[0])
	assert.Equal(t, 1, d.s.CurrentPlayer)
	assert.Equal(t, 0, d.winston().CurrentPile)
}

func TestWinston_OnlyCurrentPlayerActs(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 2, 5, models.DraftSettings{NumberOfPiles: 3})

	_, err := d.s.AcceptPile(1)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = d.s.DeclinePile(1)
	assert.ErrorIs(t, err, ErrNotYourTurn)
	_, err = d.s.AcceptPile(7)
	assert.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestWinston_DeclineLastPileOnEmptyDeckPassesTurn(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 2, 5, models.DraftSettings{NumberOfPiles: 3})

	envs := d.do(d.s.DeclinePile(0))
	require.Len(t, envs, 1)
	assert.Equal(t, events.TypePileDeclined, envs[0].Type)
	assert.Equal(t, []int{0, 3}, d.winston().Piles[0])
	assert.Equal(t, 1, d.winston().CurrentPile)

	d.do(d.s.DeclinePile(0))
	assert.Equal(t, []int{1, 4}, d.winston().Piles[1])
	assert.Empty(t, d.winston().Deck)
	assert.Equal(t, 2, d.winston().CurrentPile)
	assert.True(t, d.winston().CanDecline())

	// Earlier piles still hold cards, so the last pile can be passed with nothing drawn.
	envs = d.do(d.s.DeclinePile(0))
	require.Len(t, envs, 1)
	assert.Equal(t, events.TypeNewPlayer, envs[0].Type)
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	np := payload.(events.NewPlayerPayload)
	assert.Equal(t, 3, np.AcceptedPileIndex)
	assert.Empty(t, np.CardIndexes)
	assert.False(t, np.Finished)

	assert.Empty(t, d.s.Drafted[0])
	assert.Equal(t, [][]int{{0, 3}, {1, 4}, {2}}, d.winston().Piles)
	assert.Equal(t, 1, d.s.CurrentPlayer)
	assert.Equal(t, 0, d.winston().CurrentPile)
	assert.Equal(t, 5, winstonCount(d.s))
}

func TestWinston_DeclineSoleNonEmptyPileBecomesAccept(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 1, 3, models.DraftSettings{NumberOfPiles: 3})

	d.do(d.s.AcceptPile(0))
	d.do(d.s.AcceptPile(0))
	assert.Equal(t, 2, d.winston().CurrentPile)
	assert.False(t, d.winston().CanDecline())

	envs := d.do(d.s.DeclinePile(0))
	require.NotEmpty(t, envs)
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	np := payload.(events.NewPlayerPayload)
	assert.Equal(t, 2, np.AcceptedPileIndex)
	assert.Equal(t, []int{2}, np.CardIndexes)
	assert.Equal(t, []int{0, 1, 2}, d.s.Drafted[0])
	assert.Equal(t, models.DraftStatusFinished, d.s.Status)
}

func TestWinston_StalePassIsIgnored(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 2, 5, models.DraftSettings{NumberOfPiles: 3})

	// A pass proposed while the cursor sits on pile 0 with cards left in the deck.
	stale, err := events.Seal(d.s.Session.ID, "peer", events.Event{
		Type: events.TypeNewPlayer,
		Payload: events.NewPlayerPayload{
			Player:            0,
			PlayerID:          d.s.Session.Participants[0],
			CurrentPlayer:     1,
			AcceptedPileIndex: 3,
			CardIndexes:       []int{},
		},
	}, epoch)
	require.NoError(t, err)
	require.NoError(t, d.s.Apply(stale))

	assert.Equal(t, 0, d.s.CurrentPlayer)
	assert.Equal(t, [][]int{{0}, {1}, {2}}, d.winston().Piles)
	assert.Equal(t, []int{3, 4}, d.winston().Deck)
}

func TestWinston_DeclineLastPileDrawsFromDeck(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 2, 7, models.DraftSettings{NumberOfPiles: 3})

	d.do(d.s.DeclinePile(0))
	d.do(d.s.DeclinePile(0))
	envs := d.do(d.s.DeclinePile(0))

	require.Len(t, envs, 1)
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	np := payload.(events.NewPlayerPayload)
	assert.Equal(t, 3, np.AcceptedPileIndex)
	assert.Equal(t, []int{6}, np.CardIndexes)

	assert.Equal(t, [][]int{{0, 3}, {1, 4}, {2, 5}}, d.winston().Piles)
	assert.Equal(t, []int{6}, d.s.Drafted[0])
	assert.Empty(t, d.winston().Deck)
	assert.Equal(t, 1, d.s.CurrentPlayer)
	assert.Equal(t, 7, winstonCount(d.s))
}

func TestWinston_DeclineSkipsEmptyPilesWhenDeckIsEmpty(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 1, 3, models.DraftSettings{NumberOfPiles: 3})

	d.do(d.s.AcceptPile(0))
	assert.Equal(t, 1, d.winston().CurrentPile)

	// Pile 0 is empty; declining pile 1 jumps to pile 2.
	d.do(d.s.DeclinePile(0))
	assert.Equal(t, 2, d.winston().CurrentPile)
	assert.Equal(t, []int{1}, d.winston().Piles[1])
}

func TestWinston_ConservationUntilFinished(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	d := newDriver(t, models.DraftMethodWinston, 3, 45, models.DraftSettings{NumberOfPiles: 3})

	finished := 0
	for step := 0; step < 1000 && d.s.Status == models.DraftStatusActive; step++ {
		p := d.s.CurrentPlayer
		var envs []events.Envelope
		if rng.IntN(3) == 0 {
			envs = d.do(d.s.AcceptPile(p))
		} else {
			envs = d.do(d.s.DeclinePile(p))
		}
		for _, env := range envs {
			if env.Type == events.TypeDraftFinished {
				finished++
			}
		}
		require.Equal(t, 45, winstonCount(d.s), "step %d", step)
	}

	assert.Equal(t, models.DraftStatusFinished, d.s.Status)
	assert.Equal(t, 1, finished)
	assert.Len(t, d.s.Owner, 45)

	_, err := d.s.AcceptPile(d.s.CurrentPlayer)
	assert.ErrorIs(t, err, ErrDraftFinished)
}

func TestWinston_FinishedFlagOnLastAccept(t *testing.T) {
	d := newDriver(t, models.DraftMethodWinston, 1, 3, models.DraftSettings{NumberOfPiles: 3})

	d.do(d.s.AcceptPile(0))
	d.do(d.s.AcceptPile(0))
	envs := d.do(d.s.AcceptPile(0))

	require.Len(t, envs, 2)
	payload, err := envs[0].Decode()
	require.NoError(t, err)
	assert.True(t, payload.(events.NewPlayerPayload).Finished)
	assert.Equal(t, events.TypeDraftFinished, envs[1].Type)
	assert.Equal(t, events.DeterministicID(d.s.Session.ID, "finish"), envs[1].ID)
	assert.Equal(t, models.DraftStatusFinished, d.s.Status)
}
