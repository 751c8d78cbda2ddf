package gateway

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/cubedraft/go/internal/draft/engine"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/draft/replica"
)

// CommandType is a client to server message.
type CommandType string

const (
	CommandAccept  CommandType = "accept"
	CommandDecline CommandType = "decline"
	CommandPick    CommandType = "pick"
	CommandSelect  CommandType = "select"
	CommandState   CommandType = "state"
)

// ClientMessage is a command sent by a connected client.
type ClientMessage struct {
	Type CommandType `json:"type"`

	// GlobalIndex is the card to pick.
	GlobalIndex int `json:"global_index,omitempty"`

	// Selection and Index address a grid row or column.
	Selection string `json:"selection,omitempty"`
	Index     int    `json:"index,omitempty"`
}

// MessageType is a server to client message.
type MessageType string

const (
	MessageEvent    MessageType = "event"
	MessageState    MessageType = "state"
	MessageError    MessageType = "error"
	MessagePresence MessageType = "presence"
)

// ServerMessage is everything the gateway writes to a client.
type ServerMessage struct {
	Type     MessageType      `json:"type"`
	Event    *events.Envelope `json:"event,omitempty"`
	State    *DraftState      `json:"state,omitempty"`
	Error    *ErrorInfo       `json:"error,omitempty"`
	Presence *Presence        `json:"presence,omitempty"`
}

type ErrorInfo struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Command CommandType `json:"command,omitempty"`
}

// Presence announces a user joining or leaving a session.
type Presence struct {
	UserID string `json:"user_id"`
	Joined bool   `json:"joined"`
	Online int    `json:"online"`
}

var (
	ErrUnknownCommand   = errors.New("unknown command")
	ErrNotAParticipant  = errors.New("user is not a participant of this session")
	ErrMalformedCommand = errors.New("malformed command")
	ErrSessionNotFound  = errors.New("draft session not found")
)

// ParseClientMessage decodes a command frame.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %w", ErrMalformedCommand, err)
	}
	switch msg.Type {
	case CommandAccept, CommandDecline, CommandPick, CommandState:
	case CommandSelect:
		if msg.Selection != events.SelectionRow && msg.Selection != events.SelectionColumn {
			return ClientMessage{}, fmt.Errorf("%w: selection must be row or column", ErrMalformedCommand)
		}
	default:
		return ClientMessage{}, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Type)
	}
	return msg, nil
}

var errorCodes = []struct {
	err  error
	code string
}{
	{engine.ErrNotYourTurn, "not_your_turn"},
	{engine.ErrDraftFinished, "draft_finished"},
	{engine.ErrDraftNotActive, "draft_not_active"},
	{engine.ErrCardNotAvailable, "card_not_available"},
	{engine.ErrWrongMethod, "wrong_method"},
	{engine.ErrUnknownPlayer, "not_a_participant"},
	{engine.ErrPlayerCompleted, "player_completed"},
	{ErrNotAParticipant, "not_a_participant"},
	{ErrUnknownCommand, "unknown_command"},
	{ErrMalformedCommand, "malformed_command"},
	{replica.ErrActionInFlight, "action_in_flight"},
	{events.ErrConflict, "conflict"},
	{replica.ErrBroadcastFailed, "broadcast_failed"},
}

// ErrorCode maps an action error to the code sent to clients.
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}

func errorMessage(cmd CommandType, err error) ServerMessage {
	return ServerMessage{
		Type: MessageError,
		Error: &ErrorInfo{
			Code:    ErrorCode(err),
			Message: err.Error(),
			Command: cmd,
		},
	}
}
