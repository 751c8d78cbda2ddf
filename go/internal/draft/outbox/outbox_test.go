package outbox

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/draft/engine"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/draft/transport"
	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

type harness struct {
	t         *testing.T
	ctx       context.Context
	db        *store.DB
	clock     *clockwork.FakeClock
	committer *Committer
	state     *engine.State
}

func newHarness(t *testing.T, method models.DraftMethod, players, size int, settings models.DraftSettings) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := store.OpenMemory(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	settings.PoolSize = size
	session := models.Session{
		ID:        uuid.New(),
		Method:    method,
		Settings:  settings,
		Status:    models.DraftStatusWaiting,
		CreatedAt: clock.Now(),
		UpdatedAt: clock.Now(),
	}
	for i := 0; i < players; i++ {
		session.Participants = append(session.Participants, fmt.Sprintf("player-%d", i))
	}
	entries := make([]models.PoolEntry, size)
	for i := range entries {
		entries[i] = models.PoolEntry{SessionID: session.ID, GlobalIndex: i, Card: models.Card{ID: 700 + i}}
	}

	state, err := engine.New(session, entries)
	require.NoError(t, err)

	q := db.Queries()
	require.NoError(t, q.CreateSession(ctx, session))
	slots := state.Slots()
	for _, e := range entries {
		e.Slot = slots[e.GlobalIndex].Slot
		require.NoError(t, q.InsertPoolEntry(ctx, e))
	}

	h := &harness{
		t:         t,
		ctx:       ctx,
		db:        db,
		clock:     clock,
		committer: NewCommitter(db, clock),
		state:     state,
	}
	batch, after := h.batch(h.state, -1, events.Event{
		Type:    events.TypeDraftStarted,
		Payload: events.DraftStartedPayload{SessionID: session.ID.String(), Method: string(method)},
	})
	h.commit(batch, after)
	return h
}

func (h *harness) batch(from *engine.State, actor int, ev events.Event) (events.Batch, *engine.State) {
	h.t.Helper()
	after, envs, err := from.Transition("test", ev, h.clock.Now())
	require.NoError(h.t, err)
	return events.Batch{
		SessionID: from.Session.ID,
		Events:    envs,
		Updates:   engine.Diff(from, after),
		Guard:     engine.BatchGuard(from, after, actor),
	}, after
}

func (h *harness) commit(batch events.Batch, after *engine.State) {
	h.t.Helper()
	_, err := h.committer.Commit(h.ctx, batch)
	require.NoError(h.t, err)
	h.state = after
}

func (h *harness) pending() int {
	h.t.Helper()
	n, err := h.db.Queries().CountPendingOutbox(h.ctx)
	require.NoError(h.t, err)
	return n
}

func (h *harness) session() models.Session {
	h.t.Helper()
	s, err := h.db.Queries().GetSession(h.ctx, h.state.Session.ID)
	require.NoError(h.t, err)
	return s
}

func TestCommitter_StartActivatesSession(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})

	assert.Equal(t, models.DraftStatusActive, h.session().Status)
	assert.Equal(t, 1, h.pending())
}

func TestCommitter_WinstonTurnGuard(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})
	before := h.state

	ev, err := before.AcceptPile(0)
	require.NoError(t, err)
	batch, after := h.batch(before, 0, ev)
	h.commit(batch, after)

	assert.Equal(t, 1, h.session().CurrentPlayer)
	assert.Equal(t, 2, h.pending())

	entries, err := h.db.Queries().ListPoolEntries(h.ctx, before.Session.ID)
	require.NoError(t, err)
	owned := 0
	for _, e := range entries {
		if e.Owner != nil {
			assert.Equal(t, "player-0", *e.Owner)
			assert.Equal(t, models.SlotDrafted, e.Slot)
			owned++
		}
	}
	assert.Equal(t, len(after.Drafted[0]), owned)

	// A second device still looking at the old state tries to act for player 0 again.
	stale, _ := h.batch(before, 0, ev)
	_, err = h.committer.Commit(h.ctx, stale)
	assert.ErrorIs(t, err, events.ErrConflict)
	assert.Equal(t, 2, h.pending())
	assert.Equal(t, 1, h.session().CurrentPlayer)
}

func TestCommitter_AsyncOwnershipGuard(t *testing.T) {
	h := newHarness(t, models.DraftMethodAsynchronous, 2, 20,
		models.DraftSettings{PackSize: 5, PicksPerPack: 2, DraftedDeckSize: 4})
	before := h.state

	ev, err := before.PickCard(1, 12)
	require.NoError(t, err)
	batch, after := h.batch(before, 1, ev)
	h.commit(batch, after)

	other, err := before.PickCard(1, 13)
	require.NoError(t, err)
	racing, _ := h.batch(before, 1, other)
	_, err = h.committer.Commit(h.ctx, racing)
	assert.ErrorIs(t, err, events.ErrConflict)

	owned, err := h.db.Queries().CountOwnedEntries(h.ctx, before.Session.ID, "player-1")
	require.NoError(t, err)
	assert.Equal(t, 1, owned)
}

func TestCommitter_EntryClaimedOnce(t *testing.T) {
	h := newHarness(t, models.DraftMethodRochester, 2, 4, models.DraftSettings{PackSize: 2})
	before := h.state

	ev, err := before.PickCard(0, 0)
	require.NoError(t, err)
	batch, after := h.batch(before, 0, ev)
	h.commit(batch, after)

	again, _ := h.batch(before, 0, ev)
	_, err = h.committer.Commit(h.ctx, again)
	assert.ErrorIs(t, err, events.ErrConflict)
	assert.Equal(t, 2, h.pending())
}

func TestCommitter_DuplicateFollowUpIsNoop(t *testing.T) {
	h := newHarness(t, models.DraftMethodRochester, 2, 8, models.DraftSettings{PackSize: 2})

	ev, err := h.state.PickCard(0, 0)
	require.NoError(t, err)
	batch, after := h.batch(h.state, 0, ev)
	h.commit(batch, after)
	observer := h.state.Clone()

	ev, err = h.state.PickCard(1, 2)
	require.NoError(t, err)
	batch, after = h.batch(h.state, 1, ev)
	require.Len(t, batch.Events, 2)
	assert.Equal(t, events.TypePacksRotated, batch.Events[1].Type)
	h.commit(batch, after)
	require.Equal(t, 4, h.pending())

	// Another replica saw only the pick and proposes the same rotation.
	require.NoError(t, observer.Apply(batch.Events[0]))
	settled, envs, err := observer.Settle("observer", h.clock.Now())
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, batch.Events[1].ID, envs[0].ID)

	_, err = h.committer.Commit(h.ctx, events.Batch{
		SessionID: observer.Session.ID,
		Events:    envs,
		Updates:   engine.Diff(observer, settled),
		Guard:     engine.BatchGuard(observer, settled, -1),
	})
	require.NoError(t, err)
	assert.Equal(t, 4, h.pending())
}

func TestCommitter_FinishMovesStatusOnce(t *testing.T) {
	h := newHarness(t, models.DraftMethodRochester, 2, 4, models.DraftSettings{PackSize: 2})
	for _, pick := range []struct{ player, card int }{{0, 0}, {1, 2}, {0, 3}, {1, 1}} {
		ev, err := h.state.PickCard(pick.player, pick.card)
		require.NoError(t, err)
		batch, after := h.batch(h.state, pick.player, ev)
		h.commit(batch, after)
	}

	assert.Equal(t, models.DraftStatusFinished, h.state.Status)
	assert.Equal(t, models.DraftStatusFinished, h.session().Status)
}

func TestCommitter_UnknownSession(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})
	_, err := h.committer.Commit(h.ctx, events.Batch{SessionID: uuid.New()})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func newTestRelay(h *harness, publisher Publisher, cfg Config) *Relay {
	app := NewApp(NewRepository(h.db.Queries()), h.clock)
	return NewRelay(app, publisher, h.clock, cfg)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxRetries = 0
	cfg.BatchSize = 10
	return cfg
}

func TestRelay_PublishesInCommitOrder(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})
	ev, err := h.state.AcceptPile(0)
	require.NoError(t, err)
	batch, after := h.batch(h.state, 0, ev)
	h.commit(batch, after)

	bus := transport.NewBus()
	relay := newTestRelay(h, bus, testConfig())
	relay.Drain(h.ctx)

	log := bus.Events(h.state.Session.ID)
	require.Len(t, log, 2)
	assert.Equal(t, events.TypeDraftStarted, log[0].Type)
	assert.Equal(t, events.TypeNewPlayer, log[1].Type)
	assert.Equal(t, batch.Events[0].ID, log[1].ID)
	assert.Zero(t, h.pending())

	published, _, _, last := relay.Metrics().Snapshot()
	assert.EqualValues(t, 2, published)
	assert.Equal(t, h.clock.Now(), last)
}

func TestRelay_HoldsSessionBackAfterFailure(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})
	ev, err := h.state.AcceptPile(0)
	require.NoError(t, err)
	batch, after := h.batch(h.state, 0, ev)
	h.commit(batch, after)

	bus := transport.NewBus()
	bus.FailNext(errors.New("nats: no responders available"))
	relay := newTestRelay(h, bus, testConfig())

	relay.Drain(h.ctx)
	assert.Empty(t, bus.Events(h.state.Session.ID))
	assert.Equal(t, 2, h.pending())
	_, failed, _, _ := relay.Metrics().Snapshot()
	assert.EqualValues(t, 1, failed)

	relay.Drain(h.ctx)
	assert.Len(t, bus.Events(h.state.Session.ID), 2)
	assert.Zero(t, h.pending())
}

func TestRelay_RetriesWithBackoff(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})

	bus := transport.NewBus()
	bus.FailNext(errors.New("timeout"))
	cfg := testConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Second
	relay := newTestRelay(h, bus, cfg)

	done := make(chan struct{})
	go func() {
		relay.Drain(h.ctx)
		close(done)
	}()

	require.NoError(t, h.clock.BlockUntilContext(h.ctx, 1))
	h.clock.Advance(time.Second)
	<-done

	assert.Len(t, bus.Events(h.state.Session.ID), 1)
	_, _, retries, _ := relay.Metrics().Snapshot()
	assert.EqualValues(t, 1, retries)
}

func TestRelay_RunDrainsOnNotification(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})
	bus := transport.NewBus()
	relay := newTestRelay(h, bus, testConfig())

	notes := make(chan string)
	errCh := make(chan error, 1)
	go func() { errCh <- relay.Run(h.ctx, notes) }()

	require.Eventually(t, func() bool {
		return len(bus.Events(h.state.Session.ID)) == 1
	}, time.Second, 10*time.Millisecond)
	assert.True(t, relay.Running())

	ev, err := h.state.AcceptPile(0)
	require.NoError(t, err)
	batch, after := h.batch(h.state, 0, ev)
	h.commit(batch, after)
	notes <- batch.Events[0].ID.String()

	require.Eventually(t, func() bool {
		return len(bus.Events(h.state.Session.ID)) == 2
	}, time.Second, 10*time.Millisecond)

	err = relay.Run(h.ctx, nil)
	assert.Error(t, err)
}

type connectivity bool

func (c connectivity) IsConnected() bool { return bool(c) }

func TestHealthChecker_ReportsStoppedRelay(t *testing.T) {
	h := newHarness(t, models.DraftMethodWinston, 2, 9, models.DraftSettings{NumberOfPiles: 3})
	relay := newTestRelay(h, transport.NewBus(), testConfig())
	checker := NewHealthChecker(relay, h.db, connectivity(false), nil, h.clock, time.Minute)

	status := checker.Check(h.ctx)
	assert.False(t, status.Healthy)
	assert.True(t, status.DatabaseConnected)
	assert.Equal(t, 1, status.PendingEvents)
	assert.Contains(t, status.Errors, "relay not running")
	assert.Contains(t, status.Errors, "NATS disconnected")

	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending_events":1`)

	rec = httptest.NewRecorder()
	checker.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "outbox_pending_events 1")
	assert.Contains(t, rec.Body.String(), "outbox_healthy 0")
}
