package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port           string   `env:"PORT"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// Seed for the pool allocator; zero seeds from the clock.
	AllocatorSeed uint64 `env:"ALLOCATOR_SEED"`
}

func DefaultConfig() Config {
	return Config{
		Port:           "8080",
		AllowedOrigins: []string{"*"},
	}
}

func loadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse server config: %w", err)
	}
	return cfg, nil
}
