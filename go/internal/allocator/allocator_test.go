package allocator

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cubedraft/go/internal/models"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	return New(rand.New(rand.NewPCG(7, 11)))
}

func cube(n int, rarity models.Rarity) []models.Card {
	cards := make([]models.Card, n)
	for i := range cards {
		cards[i] = models.Card{ID: 1000 + i, Name: "card", Type: "Effect Monster", Rarity: string(rarity), Quantity: 1}
	}
	return cards
}

func indexes(entries []models.PoolEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.GlobalIndex
	}
	sort.Ints(out)
	return out
}

func TestAllocate_IndexesArePermutation(t *testing.T) {
	methods := []models.DraftMethod{
		models.DraftMethodWinston,
		models.DraftMethodRochester,
		models.DraftMethodGrid,
		models.DraftMethodAsynchronous,
	}
	for _, method := range methods {
		t.Run(string(method), func(t *testing.T) {
			a := newTestAllocator(t)
			settings := models.DraftSettings{PoolSize: 30, PackSize: 5, PicksPerPack: 1, AllowOverlap: true}

			res, err := a.Allocate(method, 2, cube(45, models.RarityCommon), settings)
			require.NoError(t, err)
			require.Len(t, res.Entries, 30)

			for i, idx := range indexes(res.Entries) {
				assert.Equal(t, i, idx)
			}
		})
	}
}

func TestAllocate_ExpandsQuantity(t *testing.T) {
	a := newTestAllocator(t)
	cards := []models.Card{
		{ID: 1, Quantity: 3},
		{ID: 2, Quantity: 0},
		{ID: 3, Quantity: 2},
	}

	res, err := a.Allocate(models.DraftMethodWinston, 2, cards, models.DraftSettings{PoolSize: 6})
	require.NoError(t, err)

	counts := map[int]int{}
	for _, e := range res.Entries {
		counts[e.Card.ID]++
		assert.Equal(t, 1, e.Card.Quantity)
		assert.Equal(t, models.SlotDeck, e.Slot)
	}
	assert.Equal(t, map[int]int{1: 3, 2: 1, 3: 2}, counts)
}

func TestAllocate_SmallPoolDegrades(t *testing.T) {
	a := newTestAllocator(t)

	res, err := a.Allocate(models.DraftMethodGrid, 2, cube(5, models.RarityCommon), models.DraftSettings{PoolSize: 9})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 5)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "5 cards, 9 requested")
}

func TestAllocate_Validation(t *testing.T) {
	a := newTestAllocator(t)

	_, err := a.Allocate(models.DraftMethodRochester, 2, cube(10, models.RarityCommon), models.DraftSettings{PoolSize: 10})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = a.Allocate("sealed", 2, cube(10, models.RarityCommon), models.DraftSettings{PoolSize: 10})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = a.Allocate(models.DraftMethodWinston, 2, nil, models.DraftSettings{PoolSize: 10})
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestPartitionExtraDeck_IsStable(t *testing.T) {
	cards := []models.Card{
		{ID: 1, Type: "Fusion Monster"},
		{ID: 2, Type: "Spell Card"},
		{ID: 3, Type: "XYZ Monster"},
		{ID: 4, Type: "Normal Monster"},
		{ID: 5, Type: "Link Monster"},
		{ID: 6, Type: "Trap Card"},
	}

	got := PartitionExtraDeck(cards)

	ids := make([]int, len(got))
	for i, c := range got {
		ids[i] = c.ID
	}
	assert.Equal(t, []int{2, 4, 6, 1, 3, 5}, ids)
}

func TestAllocate_ExtraDeckAtEnd(t *testing.T) {
	a := newTestAllocator(t)
	cards := append(cube(6, models.RarityCommon), models.Card{ID: 1, Type: "Synchro Monster", Quantity: 2})

	res, err := a.Allocate(models.DraftMethodWinston, 2, cards, models.DraftSettings{PoolSize: 8, ExtraDeckAtEnd: true})
	require.NoError(t, err)
	require.Len(t, res.Entries, 8)

	assert.Equal(t, 1, res.Entries[6].Card.ID)
	assert.Equal(t, 1, res.Entries[7].Card.ID)
	assert.Equal(t, 7, res.Entries[7].GlobalIndex)
}

func TestAsyncLayout(t *testing.T) {
	l := AsyncLayout(models.DraftSettings{PoolSize: 90, PackSize: 15, PicksPerPack: 5, DraftedDeckSize: 20}, 2, 90)

	assert.Equal(t, 20, l.TargetDeckSize)
	assert.Equal(t, 4, l.TotalPacks)
	assert.Equal(t, 45, l.SliceSize)

	start, end := l.PackRange(1, 2)
	assert.Equal(t, 60, start)
	assert.Equal(t, 75, end)

	start, end = l.PackRange(0, 4)
	assert.Equal(t, 45, end)
	assert.Equal(t, 45, start)

	assert.Equal(t, 1, l.CurrentPack(4))
	assert.Equal(t, 2, l.CurrentPack(5))
	assert.Equal(t, 3, l.PicksRemaining(7))
}

func TestAllocate_AsyncSlicesAreDisjoint(t *testing.T) {
	a := newTestAllocator(t)
	settings := models.DraftSettings{PoolSize: 40, PackSize: 5, PicksPerPack: 1, DraftedDeckSize: 10}

	res, err := a.Allocate(models.DraftMethodAsynchronous, 2, cube(50, models.RarityCommon), settings)
	require.NoError(t, err)
	require.Len(t, res.Entries, 40)

	for i, idx := range indexes(res.Entries) {
		assert.Equal(t, i, idx)
	}
	for _, e := range res.Entries {
		want := models.ParticipantSlot(e.GlobalIndex / 20)
		assert.Equal(t, want, e.Slot, "entry %d", e.GlobalIndex)
	}
}
