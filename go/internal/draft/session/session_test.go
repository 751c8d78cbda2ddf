package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/allocator"
	"github.com/mcdev12/cubedraft/go/internal/cards"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/draft/outbox"
	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

type harness struct {
	db     *store.DB
	clock  *clockwork.FakeClock
	client *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClock()
	catalog := cards.NewCatalog(db.Queries(), nil, clock, cards.DefaultConfig())
	app := NewApp(
		NewRepository(db),
		catalog,
		outbox.NewCommitter(db, clock),
		allocator.New(rand.New(rand.NewPCG(1, 2))),
		clock,
	)

	mux := http.NewServeMux()
	mux.Handle(NewSessionServiceHandler(NewService(app)))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &harness{
		db:     db,
		clock:  clock,
		client: NewClient(server.Client(), server.URL),
	}
}

func cubeCards(n int) []models.Card {
	out := make([]models.Card, n)
	for i := range out {
		out[i] = models.Card{ID: 100 + i, Name: fmt.Sprintf("Card %d", i), Type: "Effect Monster", Rarity: "common"}
	}
	return out
}

func winstonRequest() *CreateSessionRequest {
	return &CreateSessionRequest{
		Participants: []string{"alice", "bob"},
		Method:       models.DraftMethodWinston,
		Settings:     models.DraftSettings{PoolSize: 9, NumberOfPiles: 3},
		Cards:        cubeCards(12),
	}
}

func TestSession_CreateGetStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	created, err := h.client.CreateSession(ctx, winstonRequest())
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusWaiting, created.Session.Status)
	require.Len(t, created.Entries, 9)

	got, err := h.client.GetSession(ctx, &GetSessionRequest{SessionID: created.Session.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.Session.Participants)
	require.Len(t, got.Entries, 9)

	piles := 0
	for i, e := range got.Entries {
		assert.Equal(t, i, e.GlobalIndex)
		assert.Nil(t, e.Owner)
		if e.Slot != models.SlotDeck {
			piles++
		}
	}
	assert.Equal(t, 3, piles)

	started, err := h.client.StartSession(ctx, &StartSessionRequest{SessionID: created.Session.ID})
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusActive, started.Session.Status)

	stored, err := h.db.Queries().GetSession(ctx, created.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftStatusActive, stored.Status)

	rows, err := h.db.Queries().FetchUnsentOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, events.TypeDraftStarted, rows[0].EventType)
	assert.Equal(t, events.DeterministicID(created.Session.ID, "start"), rows[0].ID)

	_, err = h.client.StartSession(ctx, &StartSessionRequest{SessionID: created.Session.ID})
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))

	active, err := h.client.ListSessions(ctx, &ListSessionsRequest{Status: models.DraftStatusActive})
	require.NoError(t, err)
	require.Len(t, active.Sessions, 1)
	assert.Equal(t, created.Session.ID, active.Sessions[0].ID)

	waiting, err := h.client.ListSessions(ctx, &ListSessionsRequest{Status: models.DraftStatusWaiting})
	require.NoError(t, err)
	assert.Empty(t, waiting.Sessions)
}

func TestSession_ErrorCodes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.client.GetSession(ctx, &GetSessionRequest{SessionID: uuid.New()})
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	_, err = h.client.StartSession(ctx, &StartSessionRequest{})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	req := winstonRequest()
	req.Participants = []string{"alice", "alice"}
	_, err = h.client.CreateSession(ctx, req)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	req = winstonRequest()
	req.Method = models.DraftMethodRochester
	_, err = h.client.CreateSession(ctx, req)
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err), "rochester needs a pack size")

	_, err = h.client.ListSessions(ctx, &ListSessionsRequest{Status: "paused"})
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestSession_CreateMergesCatalogMetadata(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.db.Queries().UpsertCard(ctx, models.Card{ID: 7, Name: "Monster Reborn", Type: "Spell Card", Rarity: "ultra rare"}, h.clock.Now()))

	created, err := h.client.CreateSession(ctx, &CreateSessionRequest{
		Participants: []string{"alice"},
		Method:       models.DraftMethodAsynchronous,
		Settings:     models.DraftSettings{PoolSize: 4, PackSize: 2, PicksPerPack: 1, DraftedDeckSize: 2},
		Cards:        []models.Card{{ID: 7, Quantity: 4}},
	})
	require.NoError(t, err)
	require.Len(t, created.Entries, 4)
	for _, e := range created.Entries {
		assert.Equal(t, "Monster Reborn", e.Card.Name)
		assert.Equal(t, models.RarityUltraRare, e.Card.EffectiveRarity())
	}

	listed, err := h.client.ListCards(ctx, &ListCardsRequest{CardIDs: []int{7, 8}})
	require.NoError(t, err)
	require.Len(t, listed.Cards, 1)
	assert.Equal(t, "https://images.ygoprodeck.com/images/cards/7.jpg", listed.Cards[0].ImageURL)
	assert.Equal(t, "https://images.ygoprodeck.com/images/cards/7_small.jpg", listed.Cards[0].ImageURLSmall)
}

func TestApp_ValidateStatusTransition(t *testing.T) {
	a := &App{}
	assert.NoError(t, a.validateStatusTransition(models.DraftStatusWaiting, models.DraftStatusActive))
	assert.NoError(t, a.validateStatusTransition(models.DraftStatusActive, models.DraftStatusFinished))
	assert.ErrorIs(t, a.validateStatusTransition(models.DraftStatusWaiting, models.DraftStatusFinished), ErrInvalidTransition)
	assert.ErrorIs(t, a.validateStatusTransition(models.DraftStatusFinished, models.DraftStatusActive), ErrInvalidTransition)
	assert.ErrorIs(t, a.validateStatusTransition("paused", models.DraftStatusActive), ErrInvalidTransition)
}
