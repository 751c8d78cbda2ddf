package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/draft/replica"
	"github.com/mcdev12/cubedraft/go/internal/draft/transport"
	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]models.Session
	entries  map[uuid.UUID][]models.PoolEntry
}

func (s *fakeStore) GetSession(ctx context.Context, id uuid.UUID) (models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return models.Session{}, store.ErrNotFound
	}
	return session, nil
}

func (s *fakeStore) ListPoolEntries(ctx context.Context, id uuid.UUID) ([]models.PoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[id], nil
}

func (s *fakeStore) ListSessionsByStatus(ctx context.Context, status models.DraftStatus) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, session := range s.sessions {
		if session.Status == status {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *fakeStore) setStatus(id uuid.UUID, status models.DraftStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[id]
	session.Status = status
	s.sessions[id] = session
}

type harness struct {
	t       *testing.T
	ctx     context.Context
	bus     *transport.Bus
	store   *fakeStore
	hub     *Hub
	session models.Session
	server  *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	session := models.Session{
		ID:           uuid.New(),
		Method:       models.DraftMethodWinston,
		Participants: []string{"alice", "bob"},
		Settings:     models.DraftSettings{PoolSize: 9, NumberOfPiles: 3},
		Status:       models.DraftStatusWaiting,
	}
	entries := make([]models.PoolEntry, 9)
	for i := range entries {
		entries[i] = models.PoolEntry{SessionID: session.ID, GlobalIndex: i, Card: models.Card{ID: 100 + i, Name: fmt.Sprintf("card-%d", i)}}
	}
	fs := &fakeStore{
		sessions: map[uuid.UUID]models.Session{session.ID: session},
		entries:  map[uuid.UUID][]models.PoolEntry{session.ID: entries},
	}

	bus := transport.NewBus()
	hub := NewHub(fs, bus, bus, clockwork.NewFakeClock(), replica.Config{
		RetryWait:     time.Second,
		FollowUpDelay: time.Second,
	})
	service := NewService(DefaultConfig(), hub, fs)
	go func() { _ = service.Start(ctx) }()

	server := httptest.NewServer(service.Handler())
	t.Cleanup(server.Close)

	return &harness{t: t, ctx: ctx, bus: bus, store: fs, hub: hub, session: session, server: server}
}

func (h *harness) start() {
	h.t.Helper()
	env, err := events.Seal(h.session.ID, "api", events.Event{
		Type:    events.TypeDraftStarted,
		Payload: events.DraftStartedPayload{SessionID: h.session.ID.String(), Method: string(h.session.Method)},
	}, time.Now())
	require.NoError(h.t, err)
	_, err = h.bus.Publish(h.ctx, env, 0)
	require.NoError(h.t, err)
}

func (h *harness) wsURL(sessionID, user string) string {
	return "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws/draft?session_id=" + sessionID + "&user_id=" + user
}

func (h *harness) dial(user string) *websocket.Conn {
	h.t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL(h.session.ID.String(), user), nil)
	require.NoError(h.t, err)
	h.t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// expect reads until a message of type typ arrives, skipping everything else.
func expect(t *testing.T, conn *websocket.Conn, typ MessageType) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestGateway_WinstonCommandsReachEveryClient(t *testing.T) {
	h := newHarness(t)
	h.start()

	alice := h.dial("alice")
	initial := expect(t, alice, MessageState)
	assert.Equal(t, 0, initial.State.Player)
	assert.Equal(t, models.DraftStatusWaiting, initial.State.Status)

	h.bus.Drain()
	started := expect(t, alice, MessageEvent)
	assert.Equal(t, events.TypeDraftStarted, started.Event.Type)
	assert.Equal(t, models.DraftStatusActive, started.State.Status)

	bob := h.dial("bob")
	replayed := expect(t, bob, MessageState)
	assert.Equal(t, 1, replayed.State.Player)
	assert.Equal(t, models.DraftStatusActive, replayed.State.Status)
	require.NotNil(t, replayed.State.Winston)
	assert.Equal(t, 6, replayed.State.Winston.DeckSize)

	send(t, alice, ClientMessage{Type: CommandAccept})
	accepted := expect(t, alice, MessageEvent)
	assert.Equal(t, events.TypeNewPlayer, accepted.Event.Type)
	assert.Equal(t, 1, accepted.State.CurrentPlayer)
	assert.Equal(t, []int{0}, accepted.State.Drafted[0])
	require.Len(t, accepted.State.Deck, 1)
	assert.Equal(t, 100, accepted.State.Deck[0].ID)

	// Bob's replica has not seen alice's pick yet, so it still thinks alice holds the turn.
	send(t, bob, ClientMessage{Type: CommandAccept})
	rejected := expect(t, bob, MessageError)
	assert.Equal(t, "not_your_turn", rejected.Error.Code)
	assert.Equal(t, CommandAccept, rejected.Error.Command)

	h.bus.Drain()
	synced := expect(t, bob, MessageEvent)
	assert.Equal(t, events.TypeNewPlayer, synced.Event.Type)
	assert.Equal(t, 1, synced.State.CurrentPlayer)

	send(t, bob, ClientMessage{Type: CommandDecline})
	declined := expect(t, bob, MessageEvent)
	assert.Equal(t, events.TypePileDeclined, declined.Event.Type)

	log := h.bus.Events(h.session.ID)
	require.Len(t, log, 3)
	assert.Equal(t, events.TypePileDeclined, log[2].Type)
}

func TestGateway_SpectatorsCannotAct(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.bus.Drain()

	carol := h.dial("carol")
	state := expect(t, carol, MessageState)
	assert.Equal(t, -1, state.State.Player)
	assert.Empty(t, state.State.Deck)

	send(t, carol, ClientMessage{Type: CommandAccept})
	msg := expect(t, carol, MessageError)
	assert.Equal(t, "not_a_participant", msg.Error.Code)

	send(t, carol, ClientMessage{Type: CommandState})
	refreshed := expect(t, carol, MessageState)
	assert.Equal(t, models.DraftStatusActive, refreshed.State.Status)
}

func TestGateway_RejectsMalformedCommands(t *testing.T) {
	h := newHarness(t)
	h.start()
	h.bus.Drain()

	alice := h.dial("alice")
	expect(t, alice, MessageState)

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("{")))
	assert.Equal(t, "malformed_command", expect(t, alice, MessageError).Error.Code)

	send(t, alice, ClientMessage{Type: "shuffle"})
	assert.Equal(t, "unknown_command", expect(t, alice, MessageError).Error.Code)

	send(t, alice, ClientMessage{Type: CommandPick, GlobalIndex: 3})
	assert.Equal(t, "wrong_method", expect(t, alice, MessageError).Error.Code)
}

func TestGateway_ConnectErrors(t *testing.T) {
	h := newHarness(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL(uuid.NewString(), "alice"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(h.wsURL("not-a-uuid", "alice"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateway_PresenceAndIdleSubscription(t *testing.T) {
	h := newHarness(t)
	h.start()

	alice := h.dial("alice")
	expect(t, alice, MessageState)

	bob := h.dial("bob")
	joined := expect(t, alice, MessagePresence)
	if joined.Presence.UserID == "alice" {
		joined = expect(t, alice, MessagePresence)
	}
	assert.Equal(t, "bob", joined.Presence.UserID)
	assert.True(t, joined.Presence.Joined)
	assert.Equal(t, 2, joined.Presence.Online)

	require.NoError(t, bob.Close())
	left := expect(t, alice, MessagePresence)
	assert.Equal(t, "bob", left.Presence.UserID)
	assert.False(t, left.Presence.Joined)
	assert.Equal(t, 1, left.Presence.Online)

	require.NoError(t, alice.Close())
	require.Eventually(t, func() bool {
		return len(h.hub.Stats()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStateHandler_Snapshot(t *testing.T) {
	h := newHarness(t)
	h.start()

	get := func(path string) *http.Response {
		resp, err := http.Get(h.server.URL + path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	resp := get("/api/sessions/" + h.session.ID.String() + "/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cold SnapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cold))
	assert.Equal(t, h.session.ID, cold.Session.ID)
	assert.Len(t, cold.Entries, 9)
	assert.Nil(t, cold.Projection)

	alice := h.dial("alice")
	expect(t, alice, MessageState)
	h.bus.Drain()
	expect(t, alice, MessageEvent)

	resp = get("/api/sessions/" + h.session.ID.String() + "/state?user_id=alice")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var live SnapshotResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&live))
	require.NotNil(t, live.Projection)
	assert.Equal(t, models.DraftStatusActive, live.Projection.Status)
	assert.Equal(t, 0, live.Projection.Player)

	assert.Equal(t, http.StatusNotFound, get("/api/sessions/"+uuid.NewString()+"/state").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get("/api/sessions/nope/state").StatusCode)

	var active []models.Session
	require.NoError(t, json.NewDecoder(get("/api/sessions/active").Body).Decode(&active))
	assert.Empty(t, active)

	h.store.setStatus(h.session.ID, models.DraftStatusActive)
	require.NoError(t, json.NewDecoder(get("/api/sessions/active").Body).Decode(&active))
	require.Len(t, active, 1)
	assert.Equal(t, h.session.ID, active[0].ID)
}
