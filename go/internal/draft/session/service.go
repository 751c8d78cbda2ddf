package session

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/allocator"
	"github.com/mcdev12/cubedraft/go/internal/draft/events"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

// SessionApp defines what the service layer needs from the session application
type SessionApp interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*CreateSessionResponse, error)
	GetSession(ctx context.Context, id uuid.UUID) (*GetSessionResponse, error)
	StartSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
	ListSessions(ctx context.Context, status models.DraftStatus) ([]models.Session, error)
	ListCards(ctx context.Context, ids []int) ([]CardView, error)
}

// Service implements the SessionService connect interface
type Service struct {
	app SessionApp
}

func NewService(app SessionApp) *Service {
	return &Service{app: app}
}

var _ SessionServiceHandler = (*Service)(nil)

func (s *Service) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	resp, err := s.app.CreateSession(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error) {
	if req.Msg.SessionID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session_id is required"))
	}
	resp, err := s.app.GetSession(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) StartSession(ctx context.Context, req *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error) {
	if req.Msg.SessionID == uuid.Nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("session_id is required"))
	}
	session, err := s.app.StartSession(ctx, req.Msg.SessionID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StartSessionResponse{Session: *session}), nil
}

func (s *Service) ListSessions(ctx context.Context, req *connect.Request[ListSessionsRequest]) (*connect.Response[ListSessionsResponse], error) {
	sessions, err := s.app.ListSessions(ctx, req.Msg.Status)
	if err != nil {
		return nil, toConnectError(err)
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	return connect.NewResponse(&ListSessionsResponse{Sessions: sessions}), nil
}

func (s *Service) ListCards(ctx context.Context, req *connect.Request[ListCardsRequest]) (*connect.Response[ListCardsResponse], error) {
	views, err := s.app.ListCards(ctx, req.Msg.CardIDs)
	if err != nil {
		return nil, toConnectError(err)
	}
	if views == nil {
		views = []CardView{}
	}
	return connect.NewResponse(&ListCardsResponse{Cards: views}), nil
}

func toConnectError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, allocator.ErrInvalidSettings),
		errors.Is(err, allocator.ErrEmptyPool),
		errors.Is(err, allocator.ErrRarityShortfall):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrInvalidTransition):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, events.ErrConflict):
		return connect.NewError(connect.CodeAborted, err)
	}
	log.Error().Err(err).Msg("session request failed")
	return connect.NewError(connect.CodeInternal, err)
}
