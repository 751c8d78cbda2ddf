package ygoprodeck

import (
	"github.com/mcdev12/cubedraft/go/clients"
)

type Client struct {
	*clients.BaseClient
}

// NewClient creates a card API client. An empty baseURL uses the public API.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = BaseURL
	}
	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
	}
	client.SetHeader("Accept", "application/json")
	return client
}
