package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/cube"
)

func TestMergeMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1,2", r.URL.Query().Get("id"))
		_, _ = w.Write([]byte(`{"data":[{"id":2,"name":"Fetched","type":"Trap Card","card_sets":[{"set_rarity":"Rare"}]}]}`))
	}))
	defer server.Close()

	c, err := cube.Parse([]byte("name: t\ncards:\n  - id: 1\n    name: Local\n  - id: 2\n  - id: 1\n"))
	require.NoError(t, err)

	cards := mergeMetadata(context.Background(), c, seedConfig{Fetch: true, APIBaseURL: server.URL})
	require.Len(t, cards, 2)
	assert.Equal(t, "Local", cards[0].Name)
	assert.Equal(t, "Fetched", cards[1].Name)
	assert.Equal(t, "rare", cards[1].Rarity)
	assert.NotEmpty(t, cards[1].Data)

	offline := mergeMetadata(context.Background(), c, seedConfig{})
	assert.Empty(t, offline[1].Name)
}

func TestJSONOrNil(t *testing.T) {
	assert.Nil(t, jsonOrNil(nil))
	assert.Equal(t, `{"a":1}`, jsonOrNil([]byte(`{"a":1}`)))
}
