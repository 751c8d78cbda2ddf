package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/engine"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/draft/replica"
	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

// SessionStore reads the allocation a projection starts from.
type SessionStore interface {
	GetSession(ctx context.Context, id uuid.UUID) (models.Session, error)
	ListPoolEntries(ctx context.Context, sessionID uuid.UUID) ([]models.PoolEntry, error)
}

// Subscriber replays a session's event log from the start and follows new events.
type Subscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID, handler func(events.Envelope)) (func(), error)
}

// Hub keeps one transport subscription per session with connected clients and gives
// every connection its own replica of the session.
type Hub struct {
	store      SessionStore
	subscriber Subscriber
	committer  replica.Committer
	clock      clockwork.Clock
	replicaCfg replica.Config

	mu    sync.Mutex
	rooms map[uuid.UUID]*room
}

type room struct {
	session models.Session
	entries []models.PoolEntry
	ctx     context.Context
	cancel  context.CancelFunc
	stop    func()

	mu      sync.Mutex
	log     []events.Envelope
	seen    map[uuid.UUID]struct{}
	members map[*Connection]*replica.Replica
}

func NewHub(sessions SessionStore, subscriber Subscriber, committer replica.Committer, clock clockwork.Clock, cfg replica.Config) *Hub {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Hub{
		store:      sessions,
		subscriber: subscriber,
		committer:  committer,
		clock:      clock,
		replicaCfg: cfg,
		rooms:      make(map[uuid.UUID]*room),
	}
}

// Session returns the stored session, or the cached copy when clients are connected.
func (h *Hub) Session(ctx context.Context, id uuid.UUID) (models.Session, error) {
	h.mu.Lock()
	rm, ok := h.rooms[id]
	h.mu.Unlock()
	if ok {
		return rm.session, nil
	}

	session, err := h.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// Join builds a replica for c from the allocation plus every event seen so far, sends
// c its initial state and wires future events to it.
func (h *Hub) Join(ctx context.Context, c *Connection) (*replica.Replica, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[c.SessionID]
	if !ok {
		var err error
		if rm, err = h.open(ctx, c.SessionID); err != nil {
			return nil, err
		}
		h.rooms[c.SessionID] = rm
	}

	state, err := engine.New(rm.session, rm.entries)
	if err != nil {
		if !ok {
			rm.close()
			delete(h.rooms, c.SessionID)
		}
		return nil, fmt.Errorf("failed to build projection: %w", err)
	}
	cfg := h.replicaCfg
	cfg.Sender = c.ID
	r := replica.New(state, h.committer, h.clock, cfg)

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, env := range rm.log {
		r.Receive(rm.ctx, env)
	}
	c.send(ServerMessage{Type: MessageState, State: NewDraftState(r.State(), c.Player)})
	r.OnApplied(func(env events.Envelope, s *engine.State) {
		c.send(ServerMessage{Type: MessageEvent, Event: &env, State: NewDraftState(s, c.Player)})
	})
	rm.members[c] = r

	log.Debug().
		Str("session_id", c.SessionID.String()).
		Str("connection_id", c.ID).
		Int("replayed", len(rm.log)).
		Msg("connection joined session")
	return r, nil
}

// Leave drops c's replica and closes the session subscription with the last member.
func (h *Hub) Leave(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rm, ok := h.rooms[c.SessionID]
	if !ok {
		return
	}
	rm.mu.Lock()
	delete(rm.members, c)
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		rm.close()
		delete(h.rooms, c.SessionID)
		log.Info().Str("session_id", c.SessionID.String()).Msg("closed idle session subscription")
	}
}

// Snapshot projects the events seen for a session. ok is false when no client is
// connected and the hub holds no log for it.
func (h *Hub) Snapshot(id uuid.UUID) (*engine.State, bool, error) {
	h.mu.Lock()
	rm, ok := h.rooms[id]
	h.mu.Unlock()
	if !ok {
		return nil, false, nil
	}

	state, err := engine.New(rm.session, rm.entries)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build projection: %w", err)
	}
	rm.mu.Lock()
	envs := append([]events.Envelope(nil), rm.log...)
	rm.mu.Unlock()
	for _, env := range envs {
		if err := state.Apply(env); err != nil {
			log.Warn().Err(err).Str("event_id", env.ID.String()).Msg("skipping undecodable event")
		}
	}
	return state, true, nil
}

// Stats reports sessions with live subscriptions and their log sizes.
func (h *Hub) Stats() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]int, len(h.rooms))
	for id, rm := range h.rooms {
		rm.mu.Lock()
		out[id.String()] = len(rm.log)
		rm.mu.Unlock()
	}
	return out
}

// Close stops every session subscription.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, rm := range h.rooms {
		rm.close()
		delete(h.rooms, id)
	}
}

func (h *Hub) open(ctx context.Context, id uuid.UUID) (*room, error) {
	session, err := h.store.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	entries, err := h.store.ListPoolEntries(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list pool entries: %w", err)
	}

	roomCtx, cancel := context.WithCancel(context.Background())
	rm := &room{
		session: session,
		entries: entries,
		ctx:     roomCtx,
		cancel:  cancel,
		seen:    make(map[uuid.UUID]struct{}),
		members: make(map[*Connection]*replica.Replica),
	}
	stop, err := h.subscriber.Subscribe(ctx, id, rm.deliver)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to subscribe to session events: %w", err)
	}
	rm.stop = stop

	log.Info().
		Str("session_id", id.String()).
		Str("method", string(session.Method)).
		Int("pool_size", len(entries)).
		Msg("opened session subscription")
	return rm, nil
}

func (rm *room) deliver(env events.Envelope) {
	rm.mu.Lock()
	if _, dup := rm.seen[env.ID]; dup {
		rm.mu.Unlock()
		return
	}
	rm.seen[env.ID] = struct{}{}
	rm.log = append(rm.log, env)
	replicas := make([]*replica.Replica, 0, len(rm.members))
	for _, r := range rm.members {
		replicas = append(replicas, r)
	}
	rm.mu.Unlock()

	for _, r := range replicas {
		r.Receive(rm.ctx, env)
	}
}

func (rm *room) close() {
	if rm.stop != nil {
		rm.stop()
	}
	rm.cancel()
}
