package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire form of every event on a session channel.
type Envelope struct {
	ID        uuid.UUID       `json:"event_id"`
	Type      string          `json:"event_type"`
	SessionID uuid.UUID       `json:"session_id"`
	Sender    string          `json:"sender,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`

	// Seq is the transport sequence, set on delivery.
	Seq uint64 `json:"-"`
}

// Event is a proposed event that has no identity yet. Events with a Key get a
// deterministic id so that replicas proposing the same follow-up collapse into one.
type Event struct {
	Type    string
	Payload any
	Key     string
}

// DeterministicID derives the event id used for keyed follow-up events.
func DeterministicID(sessionID uuid.UUID, key string) uuid.UUID {
	return uuid.NewSHA1(sessionID, []byte(key))
}

// Seal assigns identity and encodes the payload.
func Seal(sessionID uuid.UUID, sender string, ev Event, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}

	id := uuid.New()
	if ev.Key != "" {
		id = DeterministicID(sessionID, ev.Key)
	}

	return Envelope{
		ID:        id,
		Type:      ev.Type,
		SessionID: sessionID,
		Sender:    sender,
		Timestamp: now.UTC(),
		Payload:   payload,
	}, nil
}

// Decode returns the typed payload carried by the envelope.
func (e Envelope) Decode() (any, error) {
	var (
		out any
		err error
	)
	switch e.Type {
	case TypeDraftStarted:
		out, err = decode[DraftStartedPayload](e.Payload)
	case TypeNewPlayer:
		out, err = decode[NewPlayerPayload](e.Payload)
	case TypePileDeclined:
		out, err = decode[PileDeclinedPayload](e.Payload)
	case TypePlayerSelected:
		out, err = decode[PlayerSelectedPayload](e.Payload)
	case TypePacksRotated:
		out, err = decode[PacksRotatedPayload](e.Payload)
	case TypeGridSelection:
		out, err = decode[GridSelectionPayload](e.Payload)
	case TypeCardPicked:
		out, err = decode[CardPickedPayload](e.Payload)
	case TypeDraftFinished:
		out, err = decode[DraftFinishedPayload](e.Payload)
	default:
		return nil, fmt.Errorf("unknown event type: %s", e.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return out, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// Marshal encodes the envelope for a transport.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses a transport message body.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return e, nil
}
