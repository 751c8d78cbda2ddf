package replica

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/engine"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
)

var (
	ErrActionInFlight  = errors.New("another action is still being committed")
	ErrBroadcastFailed = errors.New("failed to broadcast action")
)

// Committer persists and broadcasts a batch of events atomically.
type Committer interface {
	Commit(ctx context.Context, batch events.Batch) (events.Receipt, error)
}

// Clock is the subset of clockwork.Clock the replica needs.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Config tunes conflict handling.
type Config struct {
	Sender          string
	ConflictRetries int
	RetryWait       time.Duration
	FollowUpDelay   time.Duration
}

// DefaultConfig returns default replica settings.
func DefaultConfig() Config {
	return Config{
		Sender:          uuid.New().String()[:8],
		ConflictRetries: 2,
		RetryWait:       2 * time.Second,
		FollowUpDelay:   500 * time.Millisecond,
	}
}

// Replica holds one session projection. Local actions are proposed against the
// projection, committed, and only then applied. Remote events are applied in
// delivery order and deduplicated by event id.
type Replica struct {
	cfg       Config
	committer Committer
	clock     Clock

	mu             sync.Mutex
	state          *engine.State
	applied        map[uuid.UUID]struct{}
	lastSeq        uint64
	inFlight       bool
	needsReconcile bool
	changed        chan struct{}
	followUp       clockwork.Timer
	onApplied      []func(events.Envelope, *engine.State)
}

// New creates a replica over an initial projection.
func New(state *engine.State, committer Committer, clock Clock, cfg Config) *Replica {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Replica{
		cfg:       cfg,
		committer: committer,
		clock:     clock,
		state:     state,
		applied:   make(map[uuid.UUID]struct{}),
		changed:   make(chan struct{}),
	}
}

// OnApplied registers a callback invoked after every applied event, outside the lock.
func (r *Replica) OnApplied(fn func(env events.Envelope, state *engine.State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onApplied = append(r.onApplied, fn)
}

// State returns a copy of the current projection.
func (r *Replica) State() *engine.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// LastSeq is the highest transport sequence seen.
func (r *Replica) LastSeq() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSeq
}

// NeedsReconcile reports whether a commit failed since the last remote event.
func (r *Replica) NeedsReconcile() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.needsReconcile
}

// AcceptPile takes the current Winston pile.
func (r *Replica) AcceptPile(ctx context.Context, player int) error {
	return r.act(ctx, player, func(s *engine.State) (events.Event, error) {
		return s.AcceptPile(player)
	})
}

// DeclinePile passes on the current Winston pile.
func (r *Replica) DeclinePile(ctx context.Context, player int) error {
	return r.act(ctx, player, func(s *engine.State) (events.Event, error) {
		return s.DeclinePile(player)
	})
}

// PickCard takes one card in a Rochester or asynchronous draft.
func (r *Replica) PickCard(ctx context.Context, player, globalIndex int) error {
	return r.act(ctx, player, func(s *engine.State) (events.Event, error) {
		return s.PickCard(player, globalIndex)
	})
}

// SelectLine takes a grid row or column.
func (r *Replica) SelectLine(ctx context.Context, player int, kind string, index int) error {
	return r.act(ctx, player, func(s *engine.State) (events.Event, error) {
		return s.SelectLine(player, kind, index)
	})
}

type proposal func(*engine.State) (events.Event, error)

func (r *Replica) act(ctx context.Context, actor int, propose proposal) error {
	for attempt := 0; ; attempt++ {
		err := r.tryAct(ctx, actor, propose)
		if !errors.Is(err, events.ErrConflict) || attempt >= r.cfg.ConflictRetries {
			return err
		}

		log.Debug().
			Str("session_id", r.sessionID().String()).
			Int("attempt", attempt+1).
			Msg("commit conflicted, waiting for newer events")

		if err := r.waitForChange(ctx); err != nil {
			return err
		}
	}
}

func (r *Replica) tryAct(ctx context.Context, actor int, propose proposal) error {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return ErrActionInFlight
	}
	before := r.state
	ev, err := propose(before)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	after, envs, err := before.Transition(r.cfg.Sender, ev, r.clock.Now())
	if err != nil {
		r.mu.Unlock()
		return err
	}

	batch := events.Batch{
		SessionID: before.Session.ID,
		Events:    envs,
		Updates:   engine.Diff(before, after),
		Guard:     engine.BatchGuard(before, after, actor),
	}
	if before.Session.Method.Turn() {
		batch.ExpectedSeq = r.lastSeq
	}
	r.inFlight = true
	r.mu.Unlock()

	receipt, err := r.committer.Commit(ctx, batch)

	r.mu.Lock()
	r.inFlight = false
	if err != nil {
		r.needsReconcile = true
		r.mu.Unlock()

		log.Error().Err(err).
			Str("session_id", before.Session.ID.String()).
			Str("event_type", ev.Type).
			Msg("failed to commit action")

		if errors.Is(err, events.ErrConflict) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}

	var fresh []events.Envelope
	if r.state == before {
		r.state = after
		for _, env := range envs {
			r.applied[env.ID] = struct{}{}
		}
		fresh = envs
	} else {
		// Remote events landed while committing; fold ours in on top of them.
		fresh = r.applyLocked(envs)
	}
	if before.Session.Method.Turn() {
		r.lastSeq = max(r.lastSeq, receipt.LastSeq)
	}
	r.signalLocked()
	callbacks, state := r.onApplied, r.state
	r.mu.Unlock()

	notify(callbacks, fresh, state)
	return nil
}

// Receive applies an event delivered by the transport.
func (r *Replica) Receive(ctx context.Context, env events.Envelope) {
	r.mu.Lock()
	if env.Seq > r.lastSeq {
		r.lastSeq = env.Seq
	}
	fresh := r.applyLocked([]events.Envelope{env})
	if len(fresh) > 0 {
		r.needsReconcile = false
		r.signalLocked()
	}
	callbacks, state := r.onApplied, r.state
	_, pending := r.state.FollowUp()
	r.mu.Unlock()

	notify(callbacks, fresh, state)
	if pending {
		r.scheduleFollowUp(ctx)
	}
}

func (r *Replica) applyLocked(envs []events.Envelope) []events.Envelope {
	var fresh []events.Envelope
	for _, env := range envs {
		if _, dup := r.applied[env.ID]; dup {
			continue
		}
		next := r.state.Clone()
		if err := next.Apply(env); err != nil {
			log.Error().Err(err).
				Str("session_id", r.state.Session.ID.String()).
				Str("event_id", env.ID.String()).
				Msg("failed to apply event")
			continue
		}
		r.state = next
		r.applied[env.ID] = struct{}{}
		fresh = append(fresh, env)
	}
	return fresh
}

func (r *Replica) signalLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Replica) waitForChange(ctx context.Context) error {
	r.mu.Lock()
	ch := r.changed
	r.mu.Unlock()

	timer := r.clock.NewTimer(r.cfg.RetryWait)
	defer stopAndDrainTimer(timer)

	select {
	case <-ch:
	case <-timer.Chan():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// scheduleFollowUp commits pending follow-ups after a grace period, unless the actor's
// own batch delivers them first.
func (r *Replica) scheduleFollowUp(ctx context.Context) {
	r.mu.Lock()
	if r.followUp != nil {
		r.mu.Unlock()
		return
	}
	timer := r.clock.NewTimer(r.cfg.FollowUpDelay)
	r.followUp = timer
	r.mu.Unlock()

	go func(t clockwork.Timer) {
		select {
		case <-t.Chan():
			r.mu.Lock()
			r.followUp = nil
			r.mu.Unlock()
			if err := r.Settle(ctx); err != nil {
				log.Error().Err(err).Str("session_id", r.sessionID().String()).Msg("failed to commit follow-up")
			}
		case <-ctx.Done():
			stopAndDrainTimer(t)
			r.mu.Lock()
			r.followUp = nil
			r.mu.Unlock()
		}
	}(timer)
}

// Settle commits any follow-up the projection implies. Every replica derives the same
// event ids, so concurrent calls collapse into one event downstream.
func (r *Replica) Settle(ctx context.Context) error {
	r.mu.Lock()
	if r.inFlight {
		r.mu.Unlock()
		return nil
	}
	before := r.state
	after, envs, err := before.Settle(r.cfg.Sender, r.clock.Now())
	if err != nil || len(envs) == 0 {
		r.mu.Unlock()
		return err
	}
	batch := events.Batch{
		SessionID: before.Session.ID,
		Events:    envs,
		Updates:   engine.Diff(before, after),
		Guard:     engine.BatchGuard(before, after, -1),
	}
	r.inFlight = true
	r.mu.Unlock()

	log.Info().
		Str("session_id", before.Session.ID.String()).
		Str("event_type", envs[0].Type).
		Msg("committing follow-up")

	_, err = r.committer.Commit(ctx, batch)

	r.mu.Lock()
	r.inFlight = false
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrBroadcastFailed, err)
	}
	fresh := r.applyLocked(envs)
	r.signalLocked()
	callbacks, state := r.onApplied, r.state
	r.mu.Unlock()

	notify(callbacks, fresh, state)
	return nil
}

func (r *Replica) sessionID() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Session.ID
}

func notify(callbacks []func(events.Envelope, *engine.State), envs []events.Envelope, state *engine.State) {
	for _, env := range envs {
		for _, fn := range callbacks {
			fn(env, state)
		}
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
