package models

import (
	"encoding/json"
	"strings"
)

// Rarity is the lowercase rarity class of a card.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RaritySuperRare Rarity = "super rare"
	RarityUltraRare Rarity = "ultra rare"
)

// Rarities lists the bucketed rarities in interleave and fallback order.
var Rarities = []Rarity{RarityCommon, RarityRare, RaritySuperRare, RarityUltraRare}

// ParseRarity normalizes free-form rarity text, returning "" for unknown classes.
func ParseRarity(s string) Rarity {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Rarities {
		if r == known {
			return r
		}
	}
	return ""
}

// Card is a cube card before expansion.
type Card struct {
	ID           int             `json:"id" yaml:"id"`
	Name         string          `json:"name,omitempty" yaml:"name,omitempty"`
	Type         string          `json:"type,omitempty" yaml:"type,omitempty"`
	Rarity       string          `json:"rarity,omitempty" yaml:"rarity,omitempty"`
	CustomRarity string          `json:"custom_rarity,omitempty" yaml:"custom_rarity,omitempty"`
	Quantity     int             `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Data         json.RawMessage `json:"data,omitempty" yaml:"-"`
}

// EffectiveRarity prefers the custom override over the catalog rarity.
func (c Card) EffectiveRarity() Rarity {
	if r := ParseRarity(c.CustomRarity); r != "" {
		return r
	}
	return ParseRarity(c.Rarity)
}

var extraDeckMarkers = []string{"fusion", "synchro", "xyz", "link", "pendulum"}

// IsExtraDeck reports whether the card belongs after the main deck cards.
func (c Card) IsExtraDeck() bool {
	t := strings.ToLower(c.Type)
	for _, m := range extraDeckMarkers {
		if strings.Contains(t, m) {
			return true
		}
	}
	return false
}
