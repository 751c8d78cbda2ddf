package allocator

import (
	"fmt"

	"github.com/mcdev12/cubedraft/go/internal/models"
)

// buckets holds shuffled cards per rarity class; cards without a known rarity go to rest.
type buckets struct {
	byRarity map[models.Rarity][]models.Card
	rest     []models.Card
}

func (a *Allocator) newBuckets(cards []models.Card) *buckets {
	b := &buckets{byRarity: make(map[models.Rarity][]models.Card)}
	for _, c := range cards {
		r := c.EffectiveRarity()
		if r == "" {
			b.rest = append(b.rest, c)
			continue
		}
		b.byRarity[r] = append(b.byRarity[r], c)
	}
	for r, list := range b.byRarity {
		b.byRarity[r] = a.shuffle(list)
	}
	b.rest = a.shuffle(b.rest)
	return b
}

func (b *buckets) take(r models.Rarity) (models.Card, bool) {
	list := b.byRarity[r]
	if len(list) == 0 {
		return models.Card{}, false
	}
	b.byRarity[r] = list[1:]
	return list[0], true
}

// takeAny falls back through the rarity order, then to unclassified cards.
func (b *buckets) takeAny() (models.Card, bool) {
	for _, r := range models.Rarities {
		if c, ok := b.take(r); ok {
			return c, true
		}
	}
	if len(b.rest) == 0 {
		return models.Card{}, false
	}
	c := b.rest[0]
	b.rest = b.rest[1:]
	return c, true
}

func (b *buckets) remaining() []models.Card {
	var out []models.Card
	for _, r := range models.Rarities {
		out = append(out, b.byRarity[r]...)
	}
	return append(out, b.rest...)
}

// organizeFixed interleaves packs using fixed per-pack rarity counts, then fills the
// pool tail with whatever is left.
func (a *Allocator) organizeFixed(cards []models.Card, settings models.DraftSettings, size int, res *Result) ([]models.Card, error) {
	counts := settings.Rarity.Counts
	perPack := 0
	for _, r := range models.Rarities {
		perPack += counts[r]
	}
	if perPack != settings.PackSize {
		res.warn("rarity counts add up to %d cards per pack, pack size is %d", perPack, settings.PackSize)
	}

	b := a.newBuckets(cards)
	packs := size / settings.PackSize
	shortfall := make(map[models.Rarity]int)
	out := make([]models.Card, 0, size)

	for p := 0; p < packs; p++ {
		for _, r := range models.Rarities {
			for k := 0; k < counts[r]; k++ {
				if c, ok := b.take(r); ok {
					out = append(out, c)
					continue
				}
				if settings.Shortfall == models.ShortfallFail {
					return nil, fmt.Errorf("%w: %s in pack %d", ErrRarityShortfall, r, p+1)
				}
				shortfall[r]++
				if c, ok := b.takeAny(); ok {
					out = append(out, c)
				}
			}
		}
	}

	for _, r := range models.Rarities {
		if n := shortfall[r]; n > 0 {
			res.warn("not enough %s cards: substituted %d", r, n)
		}
	}

	rest := a.shuffle(b.remaining())
	for _, c := range rest {
		if len(out) >= size {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

// organizeRates draws every slot from a weighted rarity distribution. The result is
// not deterministic for a given cube unless the allocator rng is seeded.
func (a *Allocator) organizeRates(cards []models.Card, rates map[models.Rarity]float64, size int, res *Result) []models.Card {
	b := a.newBuckets(cards)
	out := make([]models.Card, 0, size)
	fallbacks := 0

	for len(out) < size {
		roll := a.rng.Float64() * 100
		chosen := models.Rarity("")
		cumulative := 0.0
		for _, r := range models.Rarities {
			cumulative += rates[r]
			if roll < cumulative {
				chosen = r
				break
			}
		}

		if chosen != "" {
			if c, ok := b.take(chosen); ok {
				out = append(out, c)
				continue
			}
		}
		c, ok := b.takeAny()
		if !ok {
			break
		}
		fallbacks++
		out = append(out, c)
	}

	if fallbacks > 0 {
		res.warn("rarity rates fell back to another bucket %d times", fallbacks)
	}
	return out
}
