package ygoprodeck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/clients"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

type CardImage struct {
	ID            int    `json:"id"`
	ImageURL      string `json:"image_url"`
	ImageURLSmall string `json:"image_url_small"`
}

type CardSet struct {
	SetName   string `json:"set_name"`
	SetCode   string `json:"set_code"`
	SetRarity string `json:"set_rarity"`
}

type Card struct {
	ID         int         `json:"id"`
	Name       string      `json:"name"`
	Type       string      `json:"type"`
	FrameType  string      `json:"frameType"`
	Desc       string      `json:"desc"`
	Race       string      `json:"race"`
	Attribute  string      `json:"attribute,omitempty"`
	Atk        *int        `json:"atk,omitempty"`
	Def        *int        `json:"def,omitempty"`
	Level      *int        `json:"level,omitempty"`
	CardImages []CardImage `json:"card_images"`
	CardSets   []CardSet   `json:"card_sets"`

	// Raw is the card exactly as the API returned it.
	Raw json.RawMessage `json:"-"`
}

type CardInfoResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Rarity is the rarity of the card's first printing, or "" when it has none we bucket.
func (c Card) Rarity() models.Rarity {
	for _, set := range c.CardSets {
		if r := models.ParseRarity(set.SetRarity); r != "" {
			return r
		}
	}
	return ""
}

// Model converts an API card to the catalog card stored in the cards table.
func (c Card) Model() models.Card {
	return models.Card{
		ID:     c.ID,
		Name:   c.Name,
		Type:   c.Type,
		Rarity: string(c.Rarity()),
		Data:   c.Raw,
	}
}

// GetCards fetches card info in batches. Ids the API does not know are left out of
// the result rather than failing the call.
func (c *Client) GetCards(ctx context.Context, ids []int) ([]Card, error) {
	var out []Card
	for start := 0; start < len(ids); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(ids))
		batch, err := c.getBatch(ctx, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (c *Client) getBatch(ctx context.Context, ids []int) ([]Card, error) {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	endpoint := fmt.Sprintf("%s?id=%s", CardInfoEndpoint, strings.Join(parts, ","))

	body, err := c.Get(ctx, endpoint)
	if err != nil {
		// The API answers 400 when none of the requested ids exist.
		var statusErr *clients.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
			log.Warn().Ints("ids", ids).Msg("card API found none of the requested cards")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch card info: %w", err)
	}

	var resp CardInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal card info: %w", err)
	}

	cards := make([]Card, 0, len(resp.Data))
	for _, raw := range resp.Data {
		var card Card
		if err := json.Unmarshal(raw, &card); err != nil {
			return nil, fmt.Errorf("failed to unmarshal card: %w", err)
		}
		card.Raw = raw
		cards = append(cards, card)
	}
	return cards, nil
}

// FetchCards is GetCards converted to catalog cards.
func (c *Client) FetchCards(ctx context.Context, ids []int) ([]models.Card, error) {
	cards, err := c.GetCards(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]models.Card, len(cards))
	for i, card := range cards {
		out[i] = card.Model()
	}
	return out, nil
}
