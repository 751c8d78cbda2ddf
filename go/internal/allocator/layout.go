package allocator

import "github.com/mcdev12/cubedraft/go/internal/models"

// Layout describes how an asynchronous pool is split into personal packs.
type Layout struct {
	TargetDeckSize int
	PackSize       int
	PicksPerPack   int
	TotalPacks     int
	SliceSize      int
}

// AsyncLayout computes pack geometry for an asynchronous session over available pool entries.
func AsyncLayout(settings models.DraftSettings, players, available int) Layout {
	settings = settings.Normalized(models.DraftMethodAsynchronous)
	l := Layout{
		PackSize:     settings.PackSize,
		PicksPerPack: settings.PicksPerPack,
	}
	if players <= 0 || l.PackSize <= 0 {
		return l
	}

	l.TargetDeckSize = settings.DraftedDeckSize
	if l.TargetDeckSize <= 0 {
		l.TargetDeckSize = min(settings.PoolSize, available) / players
	}
	l.TotalPacks = (l.TargetDeckSize + l.PicksPerPack - 1) / l.PicksPerPack
	l.SliceSize = min(l.PackSize*l.TotalPacks, available/players)
	return l
}

// Offset is the first global index of a participant's slice.
func (l Layout) Offset(participant int) int {
	return participant * l.SliceSize
}

// PackRange returns the half-open index range of a participant's pack, numbered from 1.
func (l Layout) PackRange(participant, packNumber int) (int, int) {
	start := l.Offset(participant) + (packNumber-1)*l.PackSize
	end := min(start+l.PackSize, l.Offset(participant)+l.SliceSize)
	if start > end {
		start = end
	}
	return start, end
}

// CurrentPack is the pack number a player with picked cards is working on.
func (l Layout) CurrentPack(picked int) int {
	if l.PicksPerPack <= 0 {
		return 1
	}
	return picked/l.PicksPerPack + 1
}

// PicksRemaining is the number of picks left in the current pack.
func (l Layout) PicksRemaining(picked int) int {
	if l.PicksPerPack <= 0 {
		return 0
	}
	return l.PicksPerPack - picked%l.PicksPerPack
}
