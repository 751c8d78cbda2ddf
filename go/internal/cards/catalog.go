// Package cards serves card metadata to the rest of the system. Rows live in the
// cards table; anything missing is fetched from the remote card API and stored.
package cards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/models"
)

type ImageVariant string

const (
	ImageFull  ImageVariant = "full"
	ImageSmall ImageVariant = "small"
)

type Store interface {
	GetCards(ctx context.Context, ids []int) ([]models.Card, error)
	UpsertCard(ctx context.Context, c models.Card, updatedAt time.Time) error
}

type Fetcher interface {
	FetchCards(ctx context.Context, ids []int) ([]models.Card, error)
}

type Catalog struct {
	store   Store
	fetcher Fetcher
	clock   clockwork.Clock
	config  Config
}

// NewCatalog wires the catalog. fetcher may be nil, in which case misses stay misses.
func NewCatalog(store Store, fetcher Fetcher, clock clockwork.Clock, config Config) *Catalog {
	if !config.RemoteLookup {
		fetcher = nil
	}
	return &Catalog{
		store:   store,
		fetcher: fetcher,
		clock:   clock,
		config:  config,
	}
}

// FetchCardData returns metadata for ids in request order with duplicates removed.
// Ids neither stored nor known to the card API are left out.
func (c *Catalog) FetchCardData(ctx context.Context, ids []int) ([]models.Card, error) {
	unique := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) == 0 {
		return nil, nil
	}

	stored, err := c.store.GetCards(ctx, unique)
	if err != nil {
		return nil, fmt.Errorf("failed to read cards: %w", err)
	}
	byID := make(map[int]models.Card, len(unique))
	for _, card := range stored {
		byID[card.ID] = card
	}

	var missing []int
	for _, id := range unique {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) > 0 && c.fetcher != nil {
		fetched, err := c.fetcher.FetchCards(ctx, missing)
		if err != nil {
			// Stored cards are still useful.
			log.Error().Err(err).Int("missing", len(missing)).Msg("failed to fetch missing cards")
		}
		now := c.clock.Now()
		for _, card := range fetched {
			if err := c.store.UpsertCard(ctx, card, now); err != nil {
				return nil, fmt.Errorf("failed to store card %d: %w", card.ID, err)
			}
			byID[card.ID] = card
		}
	}

	out := make([]models.Card, 0, len(unique))
	misses := 0
	for _, id := range unique {
		card, ok := byID[id]
		if !ok {
			misses++
			continue
		}
		out = append(out, card)
	}
	if misses > 0 {
		log.Warn().Int("requested", len(unique)).Int("misses", misses).Msg("card metadata incomplete")
	}
	return out, nil
}

// Merge fills catalog fields of cube cards from stored metadata. Cube overrides
// (custom rarity, quantity) and names already set on the cube card win.
func (c *Catalog) Merge(ctx context.Context, cube []models.Card) ([]models.Card, error) {
	ids := make([]int, len(cube))
	for i, card := range cube {
		ids[i] = card.ID
	}
	known, err := c.FetchCardData(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]models.Card, len(known))
	for _, card := range known {
		byID[card.ID] = card
	}

	out := make([]models.Card, len(cube))
	for i, card := range cube {
		meta, ok := byID[card.ID]
		if ok {
			if card.Name == "" {
				card.Name = meta.Name
			}
			if card.Type == "" {
				card.Type = meta.Type
			}
			if card.Rarity == "" {
				card.Rarity = meta.Rarity
			}
			if len(card.Data) == 0 {
				card.Data = meta.Data
			}
		}
		out[i] = card
	}
	return out, nil
}

// ResolveImageURL returns the image URL of a card, or the placeholder when the id
// is not a card id.
func (c *Catalog) ResolveImageURL(cardID int, variant ImageVariant) string {
	return ResolveImageURL(c.config.ImageBaseURL, cardID, variant)
}

func ResolveImageURL(baseURL string, cardID int, variant ImageVariant) string {
	if cardID <= 0 || baseURL == "" {
		return PlaceholderImageURL
	}
	base := strings.TrimRight(baseURL, "/")
	if variant == ImageSmall {
		return fmt.Sprintf("%s/%d_small.jpg", base, cardID)
	}
	return fmt.Sprintf("%s/%d.jpg", base, cardID)
}
