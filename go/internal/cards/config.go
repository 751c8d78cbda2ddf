package cards

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

const PlaceholderImageURL = "https://via.placeholder.com/400x586?text=Image+Not+Found"

type Config struct {
	// ImageBaseURL is where card images are served from, without a trailing slash.
	ImageBaseURL string `env:"CARDS_IMAGE_BASE_URL"`
	// APIBaseURL overrides the public card API.
	APIBaseURL string `env:"CARDS_API_BASE_URL"`
	// RemoteLookup disables fetching missing cards when false.
	RemoteLookup bool `env:"CARDS_REMOTE_LOOKUP"`
}

func DefaultConfig() Config {
	return Config{
		ImageBaseURL: "https://images.ygoprodeck.com/images/cards",
		RemoteLookup: true,
	}
}

func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse card catalog config: %w", err)
	}
	return cfg, nil
}
