package session

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a remote session API.
type Client struct {
	createSession *connect.Client[CreateSessionRequest, CreateSessionResponse]
	getSession    *connect.Client[GetSessionRequest, GetSessionResponse]
	startSession  *connect.Client[StartSessionRequest, StartSessionResponse]
	listSessions  *connect.Client[ListSessionsRequest, ListSessionsResponse]
	listCards     *connect.Client[ListCardsRequest, ListCardsResponse]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		createSession: connect.NewClient[CreateSessionRequest, CreateSessionResponse](httpClient, baseURL+CreateSessionProcedure, opts...),
		getSession:    connect.NewClient[GetSessionRequest, GetSessionResponse](httpClient, baseURL+GetSessionProcedure, opts...),
		startSession:  connect.NewClient[StartSessionRequest, StartSessionResponse](httpClient, baseURL+StartSessionProcedure, opts...),
		listSessions:  connect.NewClient[ListSessionsRequest, ListSessionsResponse](httpClient, baseURL+ListSessionsProcedure, opts...),
		listCards:     connect.NewClient[ListCardsRequest, ListCardsResponse](httpClient, baseURL+ListCardsProcedure, opts...),
	}
}

func (c *Client) CreateSession(ctx context.Context, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	resp, err := c.createSession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetSession(ctx context.Context, req *GetSessionRequest) (*GetSessionResponse, error) {
	resp, err := c.getSession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) StartSession(ctx context.Context, req *StartSessionRequest) (*StartSessionResponse, error) {
	resp, err := c.startSession.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error) {
	resp, err := c.listSessions.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ListCards(ctx context.Context, req *ListCardsRequest) (*ListCardsResponse, error) {
	resp, err := c.listCards.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
