// Package cube reads cube lists and draft presets from YAML.
package cube

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/cubedraft/go/internal/models"
)

var ErrInvalidCube = errors.New("invalid cube")

// Preset is a named method plus settings a session can be created from.
type Preset struct {
	Method   models.DraftMethod   `yaml:"method"`
	Settings models.DraftSettings `yaml:"settings"`
}

type Cube struct {
	Name    string            `yaml:"name"`
	Cards   []models.Card     `yaml:"cards"`
	Presets map[string]Preset `yaml:"presets"`
}

func LoadFile(path string) (*Cube, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cube file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a cube. Cards without a quantity count once.
func Parse(data []byte) (*Cube, error) {
	var c Cube
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse cube: %w", err)
	}
	for i := range c.Cards {
		if c.Cards[i].Quantity == 0 {
			c.Cards[i].Quantity = 1
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Cube) Validate() error {
	if len(c.Cards) == 0 {
		return fmt.Errorf("%w: no cards", ErrInvalidCube)
	}
	for i, card := range c.Cards {
		if card.ID <= 0 {
			return fmt.Errorf("%w: card %d has no id", ErrInvalidCube, i)
		}
		if card.Quantity < 0 {
			return fmt.Errorf("%w: card %d has a negative quantity", ErrInvalidCube, card.ID)
		}
		if card.CustomRarity != "" && models.ParseRarity(card.CustomRarity) == "" {
			return fmt.Errorf("%w: card %d has unknown custom rarity %q", ErrInvalidCube, card.ID, card.CustomRarity)
		}
	}
	for name, p := range c.Presets {
		if !p.Method.Valid() {
			return fmt.Errorf("%w: preset %s has unknown method %q", ErrInvalidCube, name, p.Method)
		}
	}
	return nil
}

// Size is the number of cards after quantities are expanded.
func (c *Cube) Size() int {
	n := 0
	for _, card := range c.Cards {
		n += card.Quantity
	}
	return n
}

// IDs returns each distinct card id once, in list order.
func (c *Cube) IDs() []int {
	seen := make(map[int]struct{}, len(c.Cards))
	ids := make([]int, 0, len(c.Cards))
	for _, card := range c.Cards {
		if _, ok := seen[card.ID]; ok {
			continue
		}
		seen[card.ID] = struct{}{}
		ids = append(ids, card.ID)
	}
	return ids
}

func (c *Cube) Preset(name string) (Preset, bool) {
	p, ok := c.Presets[name]
	return p, ok
}

func (c *Cube) PresetNames() []string {
	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
