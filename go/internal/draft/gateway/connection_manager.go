package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cubedraft/go/internal/draft/replica"
	"github.com/mcdev12/cubedraft/go/internal/models"
)

var errHandshake = errors.New("failed to upgrade connection")

// ConnectionManager manages WebSocket connections for draft sessions
type ConnectionManager struct {
	// Connection pools organized by session ID
	sessionConnections map[uuid.UUID]map[*Connection]bool
	mu                 sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	hub      *Hub

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client. Every connection drives
// its own replica, so two devices of one user are two independent clients.
type Connection struct {
	ID        string
	UserID    string
	SessionID uuid.UUID
	Player    int
	Conn      *websocket.Conn
	Send      chan []byte
	Manager   *ConnectionManager

	ConnectedAt time.Time

	mu      sync.Mutex
	closed  bool
	replica *replica.Replica
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	CommandTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents a message to broadcast to connections
type BroadcastMessage struct {
	SessionID uuid.UUID
	Message   ServerMessage
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		CommandTimeout:  15 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig, hub *Hub) *ConnectionManager {
	return &ConnectionManager{
		sessionConnections: make(map[uuid.UUID]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		hub:         hub,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection joins the session hub and upgrades the HTTP connection to
// WebSocket. Joining first lets an unknown session fail with a plain HTTP error.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, userID string, session models.Session) error {
	connection := &Connection{
		ID:          uuid.New().String()[:8],
		UserID:      userID,
		SessionID:   session.ID,
		Player:      session.PlayerIndex(userID),
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	rep, err := cm.hub.Join(r.Context(), connection)
	if err != nil {
		return fmt.Errorf("failed to join session: %w", err)
	}
	connection.replica = rep

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		cm.hub.Leave(connection)
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("%w: %w", errHandshake, err)
	}
	connection.Conn = conn

	online := cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	cm.BroadcastToSession(session.ID, ServerMessage{
		Type:     MessagePresence,
		Presence: &Presence{UserID: userID, Joined: true, Online: online},
	})

	log.Info().
		Str("connection_id", connection.ID).
		Str("user_id", userID).
		Int("player", connection.Player).
		Str("session_id", session.ID.String()).
		Msg("WebSocket connection established")

	return nil
}

// registerConnection adds a connection to the manager and returns the session's
// connection count.
func (cm *ConnectionManager) registerConnection(conn *Connection) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.sessionConnections[conn.SessionID] == nil {
		cm.sessionConnections[conn.SessionID] = make(map[*Connection]bool)
	}
	cm.sessionConnections[conn.SessionID][conn] = true
	return len(cm.sessionConnections[conn.SessionID])
}

// unregisterConnection removes a connection from the manager and the hub
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.sessionConnections[conn.SessionID]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	online := len(connections)
	if online == 0 {
		delete(cm.sessionConnections, conn.SessionID)
	}
	cm.mu.Unlock()

	conn.close()
	cm.hub.Leave(conn)

	if online > 0 {
		cm.BroadcastToSession(conn.SessionID, ServerMessage{
			Type:     MessagePresence,
			Presence: &Presence{UserID: conn.UserID, Online: online},
		})
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("session_id", conn.SessionID.String()).
		Msg("connection unregistered")
}

// BroadcastToSession sends a message to all connections of a session
func (cm *ConnectionManager) BroadcastToSession(sessionID uuid.UUID, msg ServerMessage) {
	select {
	case cm.broadcastCh <- BroadcastMessage{SessionID: sessionID, Message: msg}:
	default:
		log.Warn().Str("session_id", sessionID.String()).Msg("broadcast channel full, dropping message")
	}
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	var targets []*Connection
	for conn := range cm.sessionConnections[message.SessionID] {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	data, err := json.Marshal(message.Message)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal message for broadcast")
		return
	}
	for _, conn := range targets {
		conn.sendRaw(data)
	}

	log.Debug().
		Str("message_type", string(message.Message.Type)).
		Str("session_id", message.SessionID.String()).
		Int("connections", len(targets)).
		Msg("message broadcasted")
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	sessionCounts := make(map[string]int)
	for sessionID, connections := range cm.sessionConnections {
		totalConnections += len(connections)
		sessionCounts[sessionID.String()] = len(connections)
	}

	return map[string]interface{}{
		"total_connections":   totalConnections,
		"active_sessions":     len(cm.sessionConnections),
		"session_connections": sessionCounts,
		"session_log_sizes":   cm.hub.Stats(),
	}
}

func (c *Connection) send(msg ServerMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to marshal message")
		return
	}
	c.sendRaw(data)
}

// sendRaw queues data without blocking. A client that cannot keep up is disconnected.
func (c *Connection) sendRaw(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Msg("connection send buffer full, closing connection")
		if c.Conn != nil {
			c.Conn.Close()
		}
	}
}

func (c *Connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. Commands run
// inline, so one client never has two actions in flight.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected WebSocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage runs one command against the connection's replica. Errors go
// back to this connection only; successful actions reach every client as events.
func (c *Connection) handleClientMessage(message []byte) {
	cmd, err := ParseClientMessage(message)
	if err != nil {
		c.send(errorMessage("", err))
		return
	}

	if cmd.Type == CommandState {
		c.send(ServerMessage{Type: MessageState, State: NewDraftState(c.replica.State(), c.Player)})
		return
	}
	if c.Player < 0 {
		c.send(errorMessage(cmd.Type, ErrNotAParticipant))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.Manager.config.CommandTimeout)
	defer cancel()

	switch cmd.Type {
	case CommandAccept:
		err = c.replica.AcceptPile(ctx, c.Player)
	case CommandDecline:
		err = c.replica.DeclinePile(ctx, c.Player)
	case CommandPick:
		err = c.replica.PickCard(ctx, c.Player, cmd.GlobalIndex)
	case CommandSelect:
		err = c.replica.SelectLine(ctx, c.Player, cmd.Selection, cmd.Index)
	}
	if err != nil {
		log.Warn().
			Err(err).
			Str("connection_id", c.ID).
			Str("user_id", c.UserID).
			Str("command", string(cmd.Type)).
			Msg("command rejected")
		c.send(errorMessage(cmd.Type, err))
		if c.replica.NeedsReconcile() {
			c.send(ServerMessage{Type: MessageState, State: NewDraftState(c.replica.State(), c.Player)})
		}
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("command", string(cmd.Type)).
		Uint64("last_seq", c.replica.LastSeq()).
		Msg("command committed")
}
