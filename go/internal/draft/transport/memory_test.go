package transport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

func envelope(t *testing.T, sessionID uuid.UUID, key string) events.Envelope {
	t.Helper()
	env, err := events.Seal(sessionID, "test", events.Event{
		Type:    events.TypeDraftFinished,
		Payload: events.DraftFinishedPayload{SessionID: sessionID.String()},
		Key:     key,
	}, time.Unix(0, 0))
	require.NoError(t, err)
	return env
}

func TestBus_DeduplicatesByEventID(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	session := uuid.New()
	env := envelope(t, session, "finish")

	first, err := bus.Publish(ctx, env, 0)
	require.NoError(t, err)
	second, err := bus.Publish(ctx, env, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, bus.Events(session), 1)
}

func TestBus_ExpectedSequenceConflict(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	session := uuid.New()

	seq, err := bus.Publish(ctx, envelope(t, session, ""), 0)
	require.NoError(t, err)

	_, err = bus.Commit(ctx, events.Batch{
		SessionID:   session,
		Events:      []events.Envelope{envelope(t, session, "")},
		ExpectedSeq: seq + 5,
	})
	assert.ErrorIs(t, err, events.ErrConflict)

	receipt, err := bus.Commit(ctx, events.Batch{
		SessionID:   session,
		Events:      []events.Envelope{envelope(t, session, ""), envelope(t, session, "")},
		ExpectedSeq: seq,
	})
	require.NoError(t, err)
	assert.Equal(t, seq+2, receipt.LastSeq)
}

func TestBus_DuplicateInBatchKeepsExpectedSequence(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	session := uuid.New()
	dup := envelope(t, session, "finish")

	_, err := bus.Publish(ctx, dup, 0)
	require.NoError(t, err)
	last, err := bus.Publish(ctx, envelope(t, session, ""), 0)
	require.NoError(t, err)

	receipt, err := bus.Commit(ctx, events.Batch{
		SessionID:   session,
		Events:      []events.Envelope{dup, envelope(t, session, "")},
		ExpectedSeq: last,
	})
	require.NoError(t, err)
	assert.Equal(t, last+1, receipt.LastSeq)
	assert.Len(t, bus.Events(session), 3)
}

func TestBus_OwnedGuard(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	session := uuid.New()
	owner := "player-0"
	guard := events.Guard{CheckOwned: true, Actor: owner}

	_, err := bus.Commit(ctx, events.Batch{
		SessionID: session,
		Events:    []events.Envelope{envelope(t, session, "")},
		Updates:   []models.EntryUpdate{{GlobalIndex: 3, Owner: &owner, Slot: models.SlotDrafted, Picked: true}},
		Guard:     guard,
	})
	require.NoError(t, err)

	// A second device still believes the player owns nothing.
	_, err = bus.Commit(ctx, events.Batch{
		SessionID: session,
		Events:    []events.Envelope{envelope(t, session, "")},
		Guard:     guard,
	})
	assert.ErrorIs(t, err, events.ErrConflict)
	assert.Len(t, bus.Events(session), 1)

	guard.ExpectedOwned = 1
	_, err = bus.Commit(ctx, events.Batch{
		SessionID: session,
		Events:    []events.Envelope{envelope(t, session, "")},
		Guard:     guard,
	})
	require.NoError(t, err)
	assert.Len(t, bus.Events(session), 2)
}

func TestBus_DrainDeliversInOrderIncludingNewEvents(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	session := uuid.New()

	var got []uint64
	_, err := bus.Subscribe(ctx, session, func(env events.Envelope) {
		got = append(got, env.Seq)
		if len(got) == 1 {
			_, err := bus.Publish(ctx, envelope(t, session, ""), 0)
			require.NoError(t, err)
		}
	})
	require.NoError(t, err)

	_, err = bus.Publish(ctx, envelope(t, session, ""), 0)
	require.NoError(t, err)

	assert.Equal(t, 2, bus.Drain())
	assert.Equal(t, []uint64{1, 2}, got)
	assert.Equal(t, 0, bus.Drain())
}

func TestBus_FailNext(t *testing.T) {
	bus := NewBus()
	boom := errors.New("nats down")
	bus.FailNext(boom)

	_, err := bus.Commit(context.Background(), events.Batch{})
	assert.ErrorIs(t, err, boom)

	_, err = bus.Commit(context.Background(), events.Batch{})
	assert.NoError(t, err)
}

func TestConfig_Subject(t *testing.T) {
	id := uuid.MustParse("6f1c2a52-8a8e-4bb4-9d4e-0e8d0f5f2b7a")
	assert.Equal(t, "draft.events.6f1c2a52-8a8e-4bb4-9d4e-0e8d0f5f2b7a", DefaultConfig().Subject(id))
}

func TestLoadConfig_ReadsEnvironment(t *testing.T) {
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("NATS_RECONNECT_WAIT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "nats://nats:4222", cfg.URL)
	assert.Equal(t, 5*time.Second, cfg.ReconnectWait)
	assert.Equal(t, "DRAFT_EVENTS", cfg.StreamName)
}
