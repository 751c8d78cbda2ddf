package outbox

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	NotifyChannel  string        `env:"OUTBOX_NOTIFY_CHANNEL"`  // Channel name to LISTEN on
	PollInterval   time.Duration `env:"OUTBOX_POLL_INTERVAL"`   // How often to poll for missed events
	PingInterval   time.Duration `env:"OUTBOX_PING_INTERVAL"`   // LISTEN connection keepalive
	BatchSize      int           `env:"OUTBOX_BATCH_SIZE"`      // Max events to fetch per batch
	MaxRetries     int           `env:"OUTBOX_MAX_RETRIES"`     // Publish attempts after the first
	RetryDelay     time.Duration `env:"OUTBOX_RETRY_DELAY"`     // Linear backoff step
	StallThreshold time.Duration `env:"OUTBOX_STALL_THRESHOLD"` // Pending events older than this mark the relay unhealthy
	HealthAddr     string        `env:"OUTBOX_HEALTH_ADDR"`
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:  "draft_outbox_events",
		PollInterval:   30 * time.Second,
		PingInterval:   90 * time.Second,
		BatchSize:      100,
		MaxRetries:     5,
		RetryDelay:     200 * time.Millisecond,
		StallThreshold: 2 * time.Minute,
		HealthAddr:     ":8081",
	}
}

// LoadConfig overlays OUTBOX_* environment variables on the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse outbox config: %w", err)
	}
	return cfg, nil
}
