package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftMethod defines how the pool is offered to players.
type DraftMethod string

const (
	DraftMethodWinston      DraftMethod = "winston"
	DraftMethodRochester    DraftMethod = "rochester"
	DraftMethodGrid         DraftMethod = "grid"
	DraftMethodAsynchronous DraftMethod = "asynchronous"
)

// Valid reports whether m is one of the supported methods.
func (m DraftMethod) Valid() bool {
	switch m {
	case DraftMethodWinston, DraftMethodRochester, DraftMethodGrid, DraftMethodAsynchronous:
		return true
	}
	return false
}

// Turn based methods have a single current player.
func (m DraftMethod) Turn() bool {
	return m == DraftMethodWinston || m == DraftMethodGrid
}

// DraftStatus defines the lifecycle status of a draft session.
type DraftStatus string

const (
	DraftStatusWaiting  DraftStatus = "waiting"
	DraftStatusActive   DraftStatus = "active"
	DraftStatusFinished DraftStatus = "finished"
)

// ShortfallPolicy decides what the allocator does when a rarity bucket runs dry.
type ShortfallPolicy string

const (
	ShortfallSubstitute ShortfallPolicy = "substitute"
	ShortfallFail       ShortfallPolicy = "fail"
)

// TrailingRoundPolicy decides what happens to Rochester cards that do not fill a full round.
type TrailingRoundPolicy string

const (
	TrailingRoundDrop TrailingRoundPolicy = "drop"
	TrailingRoundKeep TrailingRoundPolicy = "keep"
)

// RarityDistribution holds either fixed per-pack counts or percentage rates keyed by rarity.
type RarityDistribution struct {
	Mode   RarityMode         `json:"mode" yaml:"mode"`
	Counts map[Rarity]int     `json:"counts,omitempty" yaml:"counts,omitempty"`
	Rates  map[Rarity]float64 `json:"rates,omitempty" yaml:"rates,omitempty"`
}

// RarityMode selects between deterministic counts and stochastic rates.
type RarityMode string

const (
	RarityModeFixed RarityMode = "fixed"
	RarityModeRates RarityMode = "rates"
)

// DraftSettings holds the method parameters of a session.
// NumberOfPiles is the pile count for Winston and the side length for Grid.
// AllowOverlap=false makes asynchronous sessions allocate one slice per participant.
type DraftSettings struct {
	PoolSize        int                 `json:"pool_size" yaml:"pool_size"`
	PackSize        int                 `json:"pack_size,omitempty" yaml:"pack_size,omitempty"`
	NumberOfPiles   int                 `json:"number_of_piles,omitempty" yaml:"number_of_piles,omitempty"`
	DraftedDeckSize int                 `json:"drafted_deck_size,omitempty" yaml:"drafted_deck_size,omitempty"`
	PicksPerPack    int                 `json:"picks_per_pack,omitempty" yaml:"picks_per_pack,omitempty"`
	ExtraDeckAtEnd  bool                `json:"extra_deck_at_end,omitempty" yaml:"extra_deck_at_end,omitempty"`
	AllowOverlap    bool                `json:"allow_overlap,omitempty" yaml:"allow_overlap,omitempty"`
	Rarity          *RarityDistribution `json:"rarity,omitempty" yaml:"rarity,omitempty"`
	Shortfall       ShortfallPolicy     `json:"shortfall,omitempty" yaml:"shortfall,omitempty"`
	TrailingRound   TrailingRoundPolicy `json:"trailing_round,omitempty" yaml:"trailing_round,omitempty"`
}

// Session represents one complete drafting event.
type Session struct {
	ID            uuid.UUID     `json:"id"`
	Method        DraftMethod   `json:"method"`
	Participants  []string      `json:"participants"`
	Settings      DraftSettings `json:"settings"`
	CurrentPlayer int           `json:"current_player"`
	Status        DraftStatus   `json:"status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NumberOfPlayers returns the fixed participant count.
func (s Session) NumberOfPlayers() int {
	return len(s.Participants)
}

// PlayerIndex returns the seat of playerID, or -1.
func (s Session) PlayerIndex(playerID string) int {
	for i, p := range s.Participants {
		if p == playerID {
			return i
		}
	}
	return -1
}

// TargetDeckSize is the drafted deck size each player works towards.
func (s Session) TargetDeckSize() int {
	if s.Settings.DraftedDeckSize > 0 {
		return s.Settings.DraftedDeckSize
	}
	if n := s.NumberOfPlayers(); n > 0 {
		return s.Settings.PoolSize / n
	}
	return 0
}

const (
	DefaultNumberOfPiles = 3
	DefaultPicksPerPack  = 1
)

// Normalized fills method defaults for settings left at their zero value.
func (s DraftSettings) Normalized(method DraftMethod) DraftSettings {
	if (method == DraftMethodWinston || method == DraftMethodGrid) && s.NumberOfPiles <= 0 {
		s.NumberOfPiles = DefaultNumberOfPiles
	}
	if method == DraftMethodAsynchronous && s.PicksPerPack <= 0 {
		s.PicksPerPack = DefaultPicksPerPack
	}
	if s.Shortfall == "" {
		s.Shortfall = ShortfallSubstitute
	}
	if s.TrailingRound == "" {
		s.TrailingRound = TrailingRoundDrop
	}
	return s
}
