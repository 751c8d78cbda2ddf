package allocator

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/mcdev12/cubedraft/go/internal/models"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidSettings = errors.New("invalid allocation settings")
	ErrEmptyPool       = errors.New("card list is empty")
	ErrRarityShortfall = errors.New("rarity bucket cannot supply requested count")
)

// Result is an indexed pool plus the degradations that happened while building it.
type Result struct {
	Entries  []models.PoolEntry
	Warnings []string
}

func (r *Result) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.Warnings = append(r.Warnings, msg)
	log.Warn().Msg(msg)
}

// Allocator turns a cube list into an ordered, indexed pool.
type Allocator struct {
	rng *rand.Rand
}

// New creates an Allocator. A nil rng is seeded from the wall clock.
func New(rng *rand.Rand) *Allocator {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>7|1))
	}
	return &Allocator{rng: rng}
}

// Allocate expands, orders, truncates and indexes the pool for a session.
func (a *Allocator) Allocate(method models.DraftMethod, players int, cards []models.Card, settings models.DraftSettings) (*Result, error) {
	settings = settings.Normalized(method)
	if err := validate(method, players, settings); err != nil {
		return nil, err
	}

	expanded := Expand(cards)
	if len(expanded) == 0 {
		return nil, ErrEmptyPool
	}

	res := &Result{}
	if method == models.DraftMethodAsynchronous && !settings.AllowOverlap {
		if err := a.allocateSlices(expanded, players, settings, res); err != nil {
			return nil, err
		}
		return res, nil
	}

	ordered, err := a.order(method, expanded, settings, settings.PoolSize, res)
	if err != nil {
		return nil, err
	}
	ordered = truncate(ordered, settings.PoolSize, res)
	if settings.ExtraDeckAtEnd {
		ordered = PartitionExtraDeck(ordered)
	}
	res.Entries = index(ordered, 0, models.SlotDeck)

	log.Debug().
		Str("method", string(method)).
		Int("pool_size", len(res.Entries)).
		Int("warnings", len(res.Warnings)).
		Msg("pool allocated")

	return res, nil
}

// allocateSlices gives every participant a disjoint, separately ordered slice.
func (a *Allocator) allocateSlices(expanded []models.Card, players int, settings models.DraftSettings, res *Result) error {
	available := min(len(expanded), settings.PoolSize)
	layout := AsyncLayout(settings, players, available)
	if layout.SliceSize == 0 {
		return fmt.Errorf("%w: %d cards cannot be split between %d players", ErrInvalidSettings, available, players)
	}
	if full := settings.PackSize * layout.TotalPacks; layout.SliceSize < full {
		res.warn("participant slices hold %d cards, %d needed for %d full packs", layout.SliceSize, full, layout.TotalPacks)
	}

	shuffled := a.shuffle(expanded)
	for p := 0; p < players; p++ {
		part := shuffled[p*layout.SliceSize : (p+1)*layout.SliceSize]
		ordered, err := a.order(models.DraftMethodAsynchronous, part, settings, layout.SliceSize, res)
		if err != nil {
			return fmt.Errorf("participant %d: %w", p, err)
		}
		ordered = truncate(ordered, layout.SliceSize, res)
		if settings.ExtraDeckAtEnd {
			ordered = PartitionExtraDeck(ordered)
		}
		res.Entries = append(res.Entries, index(ordered, p*layout.SliceSize, models.ParticipantSlot(p))...)
	}
	return nil
}

// order applies rarity organization where the method supports it and a uniform shuffle otherwise.
func (a *Allocator) order(method models.DraftMethod, cards []models.Card, settings models.DraftSettings, size int, res *Result) ([]models.Card, error) {
	rarityAware := method == models.DraftMethodRochester || method == models.DraftMethodAsynchronous
	if !rarityAware || settings.Rarity == nil {
		return a.shuffle(cards), nil
	}
	switch settings.Rarity.Mode {
	case models.RarityModeFixed:
		return a.organizeFixed(cards, settings, size, res)
	case models.RarityModeRates:
		return a.organizeRates(cards, settings.Rarity.Rates, size, res), nil
	default:
		return nil, fmt.Errorf("%w: unknown rarity mode %q", ErrInvalidSettings, settings.Rarity.Mode)
	}
}

// shuffle returns a Fisher-Yates shuffled copy.
func (a *Allocator) shuffle(cards []models.Card) []models.Card {
	out := make([]models.Card, len(cards))
	copy(out, cards)
	a.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

// Expand repeats every card quantity times. Quantities below one count as one.
func Expand(cards []models.Card) []models.Card {
	var out []models.Card
	for _, c := range cards {
		n := max(c.Quantity, 1)
		c.Quantity = 1
		for i := 0; i < n; i++ {
			out = append(out, c)
		}
	}
	return out
}

// PartitionExtraDeck moves extra deck cards after the main deck cards, keeping relative order.
func PartitionExtraDeck(cards []models.Card) []models.Card {
	out := make([]models.Card, 0, len(cards))
	var extra []models.Card
	for _, c := range cards {
		if c.IsExtraDeck() {
			extra = append(extra, c)
			continue
		}
		out = append(out, c)
	}
	return append(out, extra...)
}

func truncate(cards []models.Card, size int, res *Result) []models.Card {
	if len(cards) < size {
		res.warn("pool has %d cards, %d requested", len(cards), size)
		return cards
	}
	return cards[:size]
}

func index(cards []models.Card, offset int, slot string) []models.PoolEntry {
	entries := make([]models.PoolEntry, len(cards))
	for i, c := range cards {
		entries[i] = models.PoolEntry{
			GlobalIndex: offset + i,
			Card:        c,
			Slot:        slot,
		}
	}
	return entries
}

func validate(method models.DraftMethod, players int, s models.DraftSettings) error {
	if !method.Valid() {
		return fmt.Errorf("%w: unknown method %q", ErrInvalidSettings, method)
	}
	if players < 1 {
		return fmt.Errorf("%w: at least one player required", ErrInvalidSettings)
	}
	if s.PoolSize <= 0 {
		return fmt.Errorf("%w: pool size must be positive", ErrInvalidSettings)
	}
	switch method {
	case models.DraftMethodRochester, models.DraftMethodAsynchronous:
		if s.PackSize <= 0 {
			return fmt.Errorf("%w: pack size must be positive", ErrInvalidSettings)
		}
	}
	if method == models.DraftMethodAsynchronous && s.PicksPerPack > s.PackSize {
		return fmt.Errorf("%w: picks per pack exceeds pack size", ErrInvalidSettings)
	}
	if s.Rarity != nil && s.Rarity.Mode == models.RarityModeFixed && s.PackSize <= 0 {
		return fmt.Errorf("%w: fixed rarity counts need a pack size", ErrInvalidSettings)
	}
	return nil
}
