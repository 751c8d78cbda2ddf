package transport

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Config holds JetStream connection and stream settings.
type Config struct {
	URL             string        `env:"NATS_URL"`
	StreamName      string        `env:"NATS_STREAM"`
	SubjectPrefix   string        `env:"NATS_SUBJECT_PREFIX"`
	MaxReconnects   int           `env:"NATS_MAX_RECONNECTS"`
	ReconnectWait   time.Duration `env:"NATS_RECONNECT_WAIT"`
	MaxAge          time.Duration `env:"NATS_STREAM_MAX_AGE"` // How long to keep messages
	MaxMsgs         int64         `env:"NATS_STREAM_MAX_MSGS"`
	Replicas        int           `env:"NATS_STREAM_REPLICAS"`
	DuplicateWindow time.Duration `env:"NATS_DUPLICATE_WINDOW"` // Window for MsgID dedupe
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "DRAFT_EVENTS",
		SubjectPrefix:   "draft.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Hour,
	}
}

// LoadConfig overlays NATS_* environment variables on the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse transport config: %w", err)
	}
	return cfg, nil
}

// Subject is the per-session subject every event of a session is published on.
func (c Config) Subject(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s.%s", c.SubjectPrefix, sessionID)
}
