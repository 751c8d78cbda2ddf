package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/events"
)

const (
	headerEventType = "Event-Type"
	headerSessionID = "Session-ID"
	headerEventID   = "Event-ID"
)

// JetStream publishes session events to a stream with one subject per session and
// replays them to subscribers in stream order.
type JetStream struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config Config
}

func NewJetStream(cfg Config) (*JetStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	t := &JetStream{nc: nc, js: js, config: cfg}

	if err := t.ensureStream(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	return t, nil
}

func (t *JetStream) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        t.config.StreamName,
		Description: "Draft session event log",
		Subjects:    []string{fmt.Sprintf("%s.>", t.config.SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      t.config.MaxAge,
		MaxMsgs:     t.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    t.config.Replicas,
		Duplicates:  t.config.DuplicateWindow,
	}

	stream, err := t.js.Stream(ctx, t.config.StreamName)
	if err != nil {
		if _, err = t.js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().
			Str("stream", t.config.StreamName).
			Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = t.js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().
			Str("stream", t.config.StreamName).
			Msg("updated JetStream stream")
	}
	return nil
}

// Publish sends one envelope. A non-zero expectedSeq makes the server reject the
// message unless it is the last sequence on the session subject.
func (t *JetStream) Publish(ctx context.Context, env events.Envelope, expectedSeq uint64) (uint64, error) {
	subject := t.config.Subject(env.SessionID)

	data, err := env.Marshal()
	if err != nil {
		return 0, fmt.Errorf("marshal event: %w", err)
	}

	opts := []jetstream.PublishOpt{
		jetstream.WithMsgID(env.ID.String()),
		jetstream.WithExpectStream(t.config.StreamName),
	}
	if expectedSeq > 0 {
		opts = append(opts, jetstream.WithExpectLastSequencePerSubject(expectedSeq))
	}

	ack, err := t.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			headerEventType: []string{env.Type},
			headerSessionID: []string{env.SessionID.String()},
			headerEventID:   []string{env.ID.String()},
		},
	}, opts...)
	if err != nil {
		var apiErr *jetstream.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
			return 0, fmt.Errorf("%w: %s", events.ErrConflict, apiErr.Description)
		}
		return 0, fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Info().
		Str("subject", subject).
		Str("event_id", env.ID.String()).
		Str("event_type", env.Type).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("published to JetStream")

	return ack.Sequence, nil
}

// Commit publishes a batch in order, chaining the expected subject sequence so that a
// concurrent writer makes the batch fail instead of interleaving.
func (t *JetStream) Commit(ctx context.Context, batch events.Batch) (events.Receipt, error) {
	expected := batch.ExpectedSeq
	var receipt events.Receipt
	for _, env := range batch.Events {
		seq, err := t.Publish(ctx, env, expected)
		if err != nil {
			return receipt, err
		}
		receipt.LastSeq = seq
		if expected > 0 {
			expected = seq
		}
	}
	return receipt, nil
}

// Subscribe replays every event of a session from the start of the stream and then
// follows new ones. The returned function stops the subscription.
func (t *JetStream) Subscribe(ctx context.Context, sessionID uuid.UUID, handler func(events.Envelope)) (func(), error) {
	cons, err := t.js.OrderedConsumer(ctx, t.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{t.config.Subject(sessionID)},
		DeliverPolicy:  jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create ordered consumer: %w", err)
	}

	consumeCtx, err := cons.Consume(func(msg jetstream.Msg) {
		env, err := events.Unmarshal(msg.Data())
		if err != nil {
			log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode event")
			return
		}
		if md, err := msg.Metadata(); err == nil {
			env.Seq = md.Sequence.Stream
		}

		log.Debug().
			Str("event_id", env.ID.String()).
			Str("session_id", env.SessionID.String()).
			Str("event_type", env.Type).
			Uint64("sequence", env.Seq).
			Msg("received JetStream event")

		handler(env)
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}

	log.Info().
		Str("session_id", sessionID.String()).
		Str("stream", t.config.StreamName).
		Msg("subscribed to session events")

	return consumeCtx.Stop, nil
}

// IsConnected reports the NATS connection status.
func (t *JetStream) IsConnected() bool {
	return t.nc != nil && t.nc.IsConnected()
}

func (t *JetStream) Close() error {
	if t.nc != nil {
		t.nc.Close()
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}
