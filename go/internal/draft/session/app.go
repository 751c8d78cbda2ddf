package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/allocator"
	"github.com/mcdev12/cubedraft/go/internal/cards"
	"github.com/mcdev12/cubedraft/go/internal/draft/engine"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/draft/replica"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// Sender is the envelope sender of events proposed by the session API.
const Sender = "api"

// SessionRepository defines what the app layer needs from storage
type SessionRepository interface {
	CreateSession(ctx context.Context, s models.Session, entries []models.PoolEntry) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListPoolEntries(ctx context.Context, id uuid.UUID) ([]models.PoolEntry, error)
	ListSessions(ctx context.Context, status models.DraftStatus) ([]models.Session, error)
}

// Catalog is the card metadata the app merges into cube lists.
type Catalog interface {
	Merge(ctx context.Context, cube []models.Card) ([]models.Card, error)
	FetchCardData(ctx context.Context, ids []int) ([]models.Card, error)
	ResolveImageURL(cardID int, variant cards.ImageVariant) string
}

// App handles session business logic
type App struct {
	repo      SessionRepository
	catalog   Catalog
	committer replica.Committer
	allocator *allocator.Allocator
	clock     clockwork.Clock
}

// NewApp creates a new session App. catalog may be nil when cube lists carry
// their own metadata.
func NewApp(repo SessionRepository, catalog Catalog, committer replica.Committer, alloc *allocator.Allocator, clock clockwork.Clock) *App {
	if alloc == nil {
		alloc = allocator.New(nil)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		repo:      repo,
		catalog:   catalog,
		committer: committer,
		allocator: alloc,
		clock:     clock,
	}
}

// CreateSession allocates the pool and persists the session in the waiting state.
func (a *App) CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error) {
	if err := a.validateCreateSessionRequest(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	cube := req.Cards
	if a.catalog != nil {
		merged, err := a.catalog.Merge(ctx, cube)
		if err != nil {
			return nil, fmt.Errorf("failed to merge card metadata: %w", err)
		}
		cube = merged
	}

	result, err := a.allocator.Allocate(req.Method, len(req.Participants), cube, req.Settings)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate pool: %w", err)
	}

	now := a.clock.Now()
	session := models.Session{
		ID:           uuid.New(),
		Method:       req.Method,
		Participants: req.Participants,
		Settings:     req.Settings.Normalized(req.Method),
		Status:       models.DraftStatusWaiting,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	entries := result.Entries
	for i := range entries {
		entries[i].SessionID = session.ID
	}

	// Rows are stored where the initial layout puts them.
	state, err := engine.New(session, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to lay out pool: %w", err)
	}
	slots := state.Slots()
	for i := range entries {
		if u, ok := slots[entries[i].GlobalIndex]; ok {
			entries[i].Slot = u.Slot
		}
	}
	session.CurrentPlayer = state.CurrentPlayer

	if err := a.repo.CreateSession(ctx, session, entries); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Str("method", string(session.Method)).
		Int("players", len(session.Participants)).
		Int("pool", len(entries)).
		Int("warnings", len(result.Warnings)).
		Msg("created draft session")

	return &CreateSessionResponse{
		Session:  session,
		Entries:  entries,
		Warnings: result.Warnings,
	}, nil
}

// GetSession retrieves a session and its pool rows
func (a *App) GetSession(ctx context.Context, id uuid.UUID) (*GetSessionResponse, error) {
	session, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := a.repo.ListPoolEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	return &GetSessionResponse{Session: *session, Entries: entries}, nil
}

// StartSession moves a waiting session to active and commits draft-started together
// with whatever the opening layout implies.
func (a *App) StartSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := a.validateStatusTransition(session.Status, models.DraftStatusActive); err != nil {
		return nil, err
	}
	entries, err := a.repo.ListPoolEntries(ctx, id)
	if err != nil {
		return nil, err
	}

	before, err := engine.New(*session, entries)
	if err != nil {
		return nil, fmt.Errorf("failed to build session state: %w", err)
	}
	now := a.clock.Now()
	after, envs, err := before.Transition(Sender, events.Event{
		Type: events.TypeDraftStarted,
		Payload: events.DraftStartedPayload{
			SessionID:    session.ID.String(),
			Method:       string(session.Method),
			Participants: session.Participants,
			StartedAt:    now.UTC(),
		},
		Key: "start",
	}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	_, err = a.committer.Commit(ctx, events.Batch{
		SessionID: session.ID,
		Events:    envs,
		Updates:   engine.Diff(before, after),
		Guard:     engine.BatchGuard(before, after, -1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit draft start: %w", err)
	}

	log.Info().
		Str("session_id", session.ID.String()).
		Int("events", len(envs)).
		Msg("started draft session")

	session.Status = after.Status
	session.CurrentPlayer = after.CurrentPlayer
	session.UpdatedAt = now
	return session, nil
}

func (a *App) ListSessions(ctx context.Context, status models.DraftStatus) ([]models.Session, error) {
	if status == "" {
		status = models.DraftStatusActive
	}
	if err := a.validateDraftStatus(status); err != nil {
		return nil, err
	}
	return a.repo.ListSessions(ctx, status)
}

// ListCards returns catalog metadata with image URLs, in request order.
func (a *App) ListCards(ctx context.Context, ids []int) ([]CardView, error) {
	if a.catalog == nil {
		return nil, fmt.Errorf("%w: card catalog is not configured", ErrInvalidRequest)
	}
	found, err := a.catalog.FetchCardData(ctx, ids)
	if err != nil {
		return nil, err
	}
	views := make([]CardView, len(found))
	for i, c := range found {
		views[i] = CardView{
			Card:          c,
			ImageURL:      a.catalog.ResolveImageURL(c.ID, cards.ImageFull),
			ImageURLSmall: a.catalog.ResolveImageURL(c.ID, cards.ImageSmall),
		}
	}
	return views, nil
}

func (a *App) validateCreateSessionRequest(req CreateSessionRequest) error {
	if len(req.Participants) == 0 {
		return fmt.Errorf("%w: at least one participant is required", ErrInvalidRequest)
	}
	seen := make(map[string]bool, len(req.Participants))
	for _, p := range req.Participants {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: participant ids cannot be blank", ErrInvalidRequest)
		}
		if seen[p] {
			return fmt.Errorf("%w: participant %q is listed twice", ErrInvalidRequest, p)
		}
		seen[p] = true
	}
	if !req.Method.Valid() {
		return fmt.Errorf("%w: unknown draft method %q", ErrInvalidRequest, req.Method)
	}
	if len(req.Cards) == 0 {
		return fmt.Errorf("%w: card list is empty", ErrInvalidRequest)
	}
	return nil
}

func (a *App) validateDraftStatus(status models.DraftStatus) error {
	switch status {
	case models.DraftStatusWaiting, models.DraftStatusActive, models.DraftStatusFinished:
		return nil
	}
	return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, status)
}

// validateStatusTransition validates if a status transition is allowed
func (a *App) validateStatusTransition(currentStatus, newStatus models.DraftStatus) error {
	allowedTransitions := map[models.DraftStatus][]models.DraftStatus{
		models.DraftStatusWaiting:  {models.DraftStatusActive},
		models.DraftStatusActive:   {models.DraftStatusFinished},
		models.DraftStatusFinished: {}, // terminal
	}

	allowedNext, exists := allowedTransitions[currentStatus]
	if !exists {
		return fmt.Errorf("%w: unknown current status %s", ErrInvalidTransition, currentStatus)
	}
	for _, allowed := range allowedNext {
		if newStatus == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s to %s is not allowed", ErrInvalidTransition, currentStatus, newStatus)
}
