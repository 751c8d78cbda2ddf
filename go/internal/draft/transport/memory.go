package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
)

// Bus is an in-process transport with the same guarantees the JetStream transport
// and the outbox committer provide: one ordered log per session, dedupe by event id,
// an optional expected-last-sequence check and the owned-entry guard. Delivery
// happens when Drain is called.
type Bus struct {
	mu       sync.Mutex
	seq      uint64
	logs     map[uuid.UUID][]events.Envelope
	seen     map[uuid.UUID]uint64
	owners   map[uuid.UUID]map[int]string
	subs     map[uuid.UUID][]*busSub
	failNext error
}

type busSub struct {
	handler func(events.Envelope)
	next    int
	closed  bool
}

func NewBus() *Bus {
	return &Bus{
		logs:   make(map[uuid.UUID][]events.Envelope),
		seen:   make(map[uuid.UUID]uint64),
		owners: make(map[uuid.UUID]map[int]string),
		subs:   make(map[uuid.UUID][]*busSub),
	}
}

// FailNext makes the next Publish or Commit return err.
func (b *Bus) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = err
}

func (b *Bus) Publish(ctx context.Context, env events.Envelope, expectedSeq uint64) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return 0, err
	}
	seq, _, err := b.appendLocked(env, expectedSeq)
	return seq, err
}

func (b *Bus) Commit(ctx context.Context, batch events.Batch) (events.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.takeFailure(); err != nil {
		return events.Receipt{}, err
	}

	var receipt events.Receipt
	fresh := false
	for _, env := range batch.Events {
		if seq, dup := b.seen[env.ID]; dup {
			receipt.LastSeq = max(receipt.LastSeq, seq)
			continue
		}
		fresh = true
	}
	if !fresh {
		return receipt, nil
	}
	if err := b.checkOwnedLocked(batch); err != nil {
		return events.Receipt{}, err
	}

	expected := batch.ExpectedSeq
	for _, env := range batch.Events {
		seq, appended, err := b.appendLocked(env, expected)
		if err != nil {
			return receipt, err
		}
		if !appended {
			continue
		}
		receipt.LastSeq = seq
		if expected > 0 {
			expected = seq
		}
	}

	owners := b.owners[batch.SessionID]
	if owners == nil {
		owners = make(map[int]string)
		b.owners[batch.SessionID] = owners
	}
	for _, u := range batch.Updates {
		if u.Owner == nil {
			delete(owners, u.GlobalIndex)
			continue
		}
		owners[u.GlobalIndex] = *u.Owner
	}
	return receipt, nil
}

func (b *Bus) checkOwnedLocked(batch events.Batch) error {
	if !batch.Guard.CheckOwned {
		return nil
	}
	owned := 0
	for _, owner := range b.owners[batch.SessionID] {
		if owner == batch.Guard.Actor {
			owned++
		}
	}
	if owned != batch.Guard.ExpectedOwned {
		return fmt.Errorf("%w: %s owns %d entries, expected %d", events.ErrConflict, batch.Guard.Actor, owned, batch.Guard.ExpectedOwned)
	}
	return nil
}

func (b *Bus) takeFailure() error {
	err := b.failNext
	b.failNext = nil
	return err
}

// appendLocked reports appended false for an event id already in the log, along with
// the sequence it was stored at.
func (b *Bus) appendLocked(env events.Envelope, expectedSeq uint64) (uint64, bool, error) {
	if seq, dup := b.seen[env.ID]; dup {
		return seq, false, nil
	}
	log := b.logs[env.SessionID]
	if expectedSeq > 0 {
		var last uint64
		if len(log) > 0 {
			last = log[len(log)-1].Seq
		}
		if last != expectedSeq {
			return 0, false, fmt.Errorf("%w: last sequence is %d, expected %d", events.ErrConflict, last, expectedSeq)
		}
	}
	b.seq++
	env.Seq = b.seq
	b.logs[env.SessionID] = append(log, env)
	b.seen[env.ID] = env.Seq
	return env.Seq, true, nil
}

// Subscribe registers a handler that receives the whole session log from the start.
func (b *Bus) Subscribe(ctx context.Context, sessionID uuid.UUID, handler func(events.Envelope)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &busSub{handler: handler}
	b.subs[sessionID] = append(b.subs[sessionID], sub)
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		sub.closed = true
	}, nil
}

// Drain delivers pending events until every subscriber has seen its session's whole
// log, including events published by handlers while draining. It returns the number
// of deliveries.
func (b *Bus) Drain() int {
	delivered := 0
	for {
		type delivery struct {
			sub *busSub
			env events.Envelope
		}
		var batch []delivery

		b.mu.Lock()
		for sessionID, subs := range b.subs {
			log := b.logs[sessionID]
			for _, sub := range subs {
				if sub.closed || sub.next >= len(log) {
					continue
				}
				batch = append(batch, delivery{sub: sub, env: log[sub.next]})
				sub.next++
			}
		}
		b.mu.Unlock()

		if len(batch) == 0 {
			return delivered
		}
		for _, d := range batch {
			d.sub.handler(d.env)
			delivered++
		}
	}
}

// Events returns a copy of a session's log.
func (b *Bus) Events(sessionID uuid.UUID) []events.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]events.Envelope(nil), b.logs[sessionID]...)
}
