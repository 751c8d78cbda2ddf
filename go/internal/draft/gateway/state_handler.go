package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/mcdev12/cubedraft/go/internal/store"
)

// StateStore is the read side the state endpoints need.
type StateStore interface {
	SessionStore
	ListSessionsByStatus(ctx context.Context, status models.DraftStatus) ([]models.Session, error)
}

// SnapshotResponse is the stored session and pool rows, plus the live projection
// when clients are connected to the session.
type SnapshotResponse struct {
	Session    models.Session     `json:"session"`
	Entries    []models.PoolEntry `json:"entries"`
	Projection *DraftState        `json:"projection,omitempty"`
}

// StateHandler handles HTTP requests for draft state
type StateHandler struct {
	store StateStore
	hub   *Hub
}

// NewStateHandler creates a new state handler
func NewStateHandler(store StateStore, hub *Hub) *StateHandler {
	return &StateHandler{store: store, hub: hub}
}

// HandleGetSessionState handles GET /api/sessions/{id}/state. An optional user_id
// query parameter selects whose view the projection shows.
func (h *StateHandler) HandleGetSessionState(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "Invalid session ID format", http.StatusBadRequest)
		return
	}

	session, err := h.store.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to get session")
		http.Error(w, "Failed to get session state", http.StatusInternalServerError)
		return
	}

	entries, err := h.store.ListPoolEntries(r.Context(), sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to list pool entries")
		http.Error(w, "Failed to get session state", http.StatusInternalServerError)
		return
	}

	resp := SnapshotResponse{Session: session, Entries: entries}
	state, live, err := h.hub.Snapshot(sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID.String()).Msg("failed to project session")
	}
	if live {
		resp.Projection = NewDraftState(state, session.PlayerIndex(r.URL.Query().Get("user_id")))
	}

	writeJSON(w, resp)
}

// HandleGetActiveSessions handles GET /api/sessions/active
func (h *StateHandler) HandleGetActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessionsByStatus(r.Context(), models.DraftStatusActive)
	if err != nil {
		log.Error().Err(err).Msg("failed to get active sessions")
		http.Error(w, "Failed to get active sessions", http.StatusInternalServerError)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, sessions)
}

// RegisterStateRoutes registers state-related HTTP routes
func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/sessions/active", h.HandleGetActiveSessions)
	mux.HandleFunc("GET /api/sessions/{id}/state", h.HandleGetSessionState)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
