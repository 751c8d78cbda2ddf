package session

import (
	"errors"

	"github.com/google/uuid"

	"github.com/mcdev12/cubedraft/go/internal/models"
)

var (
	ErrSessionNotFound   = errors.New("draft session not found")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CreateSessionRequest creates a session from a cube list.
type CreateSessionRequest struct {
	Participants []string             `json:"participants"`
	Method       models.DraftMethod   `json:"method"`
	Settings     models.DraftSettings `json:"settings"`
	Cards        []models.Card        `json:"cards"`
}

type CreateSessionResponse struct {
	Session  models.Session     `json:"session"`
	Entries  []models.PoolEntry `json:"entries"`
	Warnings []string           `json:"warnings,omitempty"`
}

type GetSessionRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

type GetSessionResponse struct {
	Session models.Session     `json:"session"`
	Entries []models.PoolEntry `json:"entries"`
}

type StartSessionRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

type StartSessionResponse struct {
	Session models.Session `json:"session"`
}

type ListSessionsRequest struct {
	Status models.DraftStatus `json:"status"`
}

type ListSessionsResponse struct {
	Sessions []models.Session `json:"sessions"`
}

type ListCardsRequest struct {
	CardIDs []int `json:"card_ids"`
}

// CardView is catalog metadata plus the resolved image URLs.
type CardView struct {
	models.Card
	ImageURL      string `json:"image_url"`
	ImageURLSmall string `json:"image_url_small"`
}

type ListCardsResponse struct {
	Cards []CardView `json:"cards"`
}
