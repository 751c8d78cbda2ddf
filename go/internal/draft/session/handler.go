package session

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
)

const ServiceName = "cubedraft.session.v1.SessionService"

const (
	CreateSessionProcedure = "/cubedraft.session.v1.SessionService/CreateSession"
	GetSessionProcedure    = "/cubedraft.session.v1.SessionService/GetSession"
	StartSessionProcedure  = "/cubedraft.session.v1.SessionService/StartSession"
	ListSessionsProcedure  = "/cubedraft.session.v1.SessionService/ListSessions"
	ListCardsProcedure     = "/cubedraft.session.v1.SessionService/ListCards"
)

// SessionServiceHandler is the server side of the session API.
type SessionServiceHandler interface {
	CreateSession(context.Context, *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error)
	GetSession(context.Context, *connect.Request[GetSessionRequest]) (*connect.Response[GetSessionResponse], error)
	StartSession(context.Context, *connect.Request[StartSessionRequest]) (*connect.Response[StartSessionResponse], error)
	ListSessions(context.Context, *connect.Request[ListSessionsRequest]) (*connect.Response[ListSessionsResponse], error)
	ListCards(context.Context, *connect.Request[ListCardsRequest]) (*connect.Response[ListCardsResponse], error)
}

// NewSessionServiceHandler builds an HTTP handler from the service implementation.
// It returns the path on which to mount the handler and the handler itself.
func NewSessionServiceHandler(svc SessionServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)

	createSessionHandler := connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, opts...)
	getSessionHandler := connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...)
	startSessionHandler := connect.NewUnaryHandler(StartSessionProcedure, svc.StartSession, opts...)
	listSessionsHandler := connect.NewUnaryHandler(ListSessionsProcedure, svc.ListSessions, opts...)
	listCardsHandler := connect.NewUnaryHandler(ListCardsProcedure, svc.ListCards, opts...)

	return "/" + ServiceName + "/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case CreateSessionProcedure:
			createSessionHandler.ServeHTTP(w, r)
		case GetSessionProcedure:
			getSessionHandler.ServeHTTP(w, r)
		case StartSessionProcedure:
			startSessionHandler.ServeHTTP(w, r)
		case ListSessionsProcedure:
			listSessionsHandler.ServeHTTP(w, r)
		case ListCardsProcedure:
			listCardsHandler.ServeHTTP(w, r)
		default:
			http.NotFound(w, r)
		}
	})
}
