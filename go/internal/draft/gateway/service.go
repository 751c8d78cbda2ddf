package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/replica"
)

// Committer modes.
const (
	CommitterOutbox = "outbox"
	CommitterDirect = "direct"
)

// Config holds configuration for the draft gateway service
type Config struct {
	Addr           string        `env:"GATEWAY_ADDR"`
	Committer      string        `env:"GATEWAY_COMMITTER"` // outbox or direct
	AllowedOrigins []string      `env:"GATEWAY_ALLOWED_ORIGINS" envSeparator:","`
	WriteTimeout   time.Duration `env:"GATEWAY_WRITE_TIMEOUT"`
	ReadTimeout    time.Duration `env:"GATEWAY_READ_TIMEOUT"`
	PingInterval   time.Duration `env:"GATEWAY_PING_INTERVAL"`
	CommandTimeout time.Duration `env:"GATEWAY_COMMAND_TIMEOUT"`
	MaxMessageSize int64         `env:"GATEWAY_MAX_MESSAGE_SIZE"`

	ConflictRetries int           `env:"GATEWAY_CONFLICT_RETRIES"`
	RetryWait       time.Duration `env:"GATEWAY_RETRY_WAIT"`
	FollowUpDelay   time.Duration `env:"GATEWAY_FOLLOW_UP_DELAY"`
}

// DefaultConfig returns default configuration for the draft gateway
func DefaultConfig() Config {
	conn := DefaultConnectionConfig()
	rep := replica.DefaultConfig()
	return Config{
		Addr:            ":8082",
		Committer:       CommitterOutbox,
		AllowedOrigins:  []string{"*"},
		WriteTimeout:    conn.WriteTimeout,
		ReadTimeout:     conn.ReadTimeout,
		PingInterval:    conn.PingInterval,
		CommandTimeout:  conn.CommandTimeout,
		MaxMessageSize:  conn.MaxMessageSize,
		ConflictRetries: rep.ConflictRetries,
		RetryWait:       rep.RetryWait,
		FollowUpDelay:   rep.FollowUpDelay,
	}
}

// LoadConfig overlays GATEWAY_* environment variables on the defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse gateway config: %w", err)
	}
	if cfg.Committer != CommitterOutbox && cfg.Committer != CommitterDirect {
		return Config{}, fmt.Errorf("unknown committer %q", cfg.Committer)
	}
	return cfg, nil
}

// Connection returns the websocket settings.
func (c Config) Connection() ConnectionConfig {
	conn := DefaultConnectionConfig()
	conn.WriteTimeout = c.WriteTimeout
	conn.ReadTimeout = c.ReadTimeout
	conn.PingInterval = c.PingInterval
	conn.CommandTimeout = c.CommandTimeout
	conn.MaxMessageSize = c.MaxMessageSize
	conn.CheckOrigin = OriginChecker(c.AllowedOrigins)
	return conn
}

// Replica returns the settings every connection's replica starts from.
func (c Config) Replica() replica.Config {
	rep := replica.DefaultConfig()
	rep.ConflictRetries = c.ConflictRetries
	rep.RetryWait = c.RetryWait
	rep.FollowUpDelay = c.FollowUpDelay
	return rep
}

// Service is the draft gateway: websocket clients, their replicas and the REST
// state endpoints.
type Service struct {
	config            Config
	hub               *Hub
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
}

// NewService wires the gateway around a hub.
func NewService(config Config, hub *Hub, store StateStore) *Service {
	cm := NewConnectionManager(config.Connection(), hub)
	return &Service{
		config:            config,
		hub:               hub,
		connectionManager: cm,
		wsHandler:         NewWebSocketHandler(cm, hub),
		stateHandler:      NewStateHandler(store, hub),
	}
}

// Start runs the connection manager until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting draft gateway service")

	s.connectionManager.Start(ctx)

	log.Info().Msg("draft gateway service shutting down")
	return s.Stop()
}

// Stop closes every session subscription.
func (s *Service) Stop() error {
	s.hub.Close()
	log.Info().Msg("draft gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket and REST routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	log.Info().Msg("draft gateway routes registered")
}

// Handler returns every gateway route behind the CORS policy.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return CORSMiddleware(s.config.AllowedOrigins, mux)
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "draft_gateway"
	return stats
}
