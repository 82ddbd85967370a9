package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/parity/go/internal/events"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBroadcastFull is returned when the outbound queue cannot take more messages.
	ErrBroadcastFull = errors.New("broadcast channel full")
	// ErrInvalidParticipantID is returned when a reconnecting client presents a malformed id.
	ErrInvalidParticipantID = errors.New("invalid participant id")
)

// ResumeParam is the /ws query parameter a client uses to reclaim its participant id.
const ResumeParam = "participantId"

// MessageHandler processes one inbound frame from a participant and returns
// an envelope to send back to that participant only, or nil.
type MessageHandler interface {
	HandleMessage(ctx context.Context, participantID string, message []byte) *events.Envelope
	HandleDisconnect(ctx context.Context, participantID string)
}

// ConnectionManager manages WebSocket connections, one participant per connection
type ConnectionManager struct {
	connections map[string]*Connection
	mu          sync.RWMutex

	// Upgrader for WebSocket connections
	upgrader websocket.Upgrader

	// Connection configuration
	config ConnectionConfig

	handler MessageHandler

	// Event broadcasting
	broadcastCh chan BroadcastMessage

	// baseCtx parents every handler call; it is cancelled on shutdown
	baseCtx context.Context
}

// Connection represents a WebSocket connection to a client. Its ID is the
// participant id, which a later connection may reclaim.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	// superseded is set when a newer connection reclaimed this participant id
	superseded atomic.Bool

	// Connection metadata
	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	HandlerTimeout  time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage is an encoded event addressed to specific participants
type BroadcastMessage struct {
	ParticipantIDs []string
	Data           []byte
	Event          events.Type
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		HandlerTimeout:  10 * time.Second,
		MaxMessageSize:  1024, // 1KB max message size
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	if config.SendBufferSize < 1 {
		config.SendBufferSize = 1
	}
	return &ConnectionManager{
		connections: make(map[string]*Connection),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
		baseCtx:     context.Background(),
	}
}

// SetHandler installs the inbound message handler. It must be called before
// connections are accepted.
func (cm *ConnectionManager) SetHandler(h MessageHandler) {
	cm.handler = h
}

// Start begins processing broadcast messages
func (cm *ConnectionManager) Start(ctx context.Context) {
	cm.mu.Lock()
	cm.baseCtx = ctx
	cm.mu.Unlock()

	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket. The participant
// id comes from the ResumeParam query parameter when present, otherwise a new
// one is assigned. Either way the client learns it from the first frame.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	participantID, err := participantIDFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, err
	}

	hello, err := encodeEnvelope(events.TypeConnected, events.ConnectedPayload{ParticipantID: participantID})
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil, err
	}

	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := time.Now()
	connection := &Connection{
		ID:          participantID,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBufferSize),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
	}

	// queued before registration so no event can overtake it
	connection.Send <- hello

	if previous := cm.registerConnection(connection); previous != nil {
		log.Info().
			Str("connection_id", connection.ID).
			Msg("participant reconnected, closing previous connection")
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Bool("resumed", r.URL.Query().Get(ResumeParam) != "").
		Msg("WebSocket connection established")

	return connection, nil
}

func participantIDFromRequest(r *http.Request) (string, error) {
	raw := r.URL.Query().Get(ResumeParam)
	if raw == "" {
		return uuid.New().String(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidParticipantID, err)
	}
	return id.String(), nil
}

func encodeEnvelope(t events.Type, payload any) ([]byte, error) {
	env, err := events.New(t, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Notify queues env for delivery to every listed participant connected to this instance.
func (cm *ConnectionManager) Notify(ctx context.Context, participantIDs []string, env *events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return cm.enqueue(BroadcastMessage{ParticipantIDs: participantIDs, Data: data, Event: env.Event})
}

// HasParticipant reports whether participantID is connected to this instance.
func (cm *ConnectionManager) HasParticipant(participantID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.connections[participantID]
	return ok
}

func (cm *ConnectionManager) enqueue(message BroadcastMessage) error {
	select {
	case cm.broadcastCh <- message:
		return nil
	default:
		log.Warn().
			Str("event", string(message.Event)).
			Strs("participants", message.ParticipantIDs).
			Msg("broadcast channel full, dropping message")
		return ErrBroadcastFull
	}
}

// registerConnection adds a connection to the manager. A connection already
// holding the same participant id is superseded and closed; it is returned.
func (cm *ConnectionManager) registerConnection(conn *Connection) *Connection {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	previous := cm.connections[conn.ID]
	if previous != nil {
		previous.superseded.Store(true)
		close(previous.Send)
	}
	cm.connections[conn.ID] = conn

	log.Debug().
		Str("connection_id", conn.ID).
		Int("total_connections", len(cm.connections)).
		Msg("connection registered")
	return previous
}

// handlerContext returns the context handler calls derive from.
func (cm *ConnectionManager) handlerContext() context.Context {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.baseCtx
}

// unregisterConnection removes a connection from the manager. It reports
// whether this call did the removal, so close-side effects run once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if existing, exists := cm.connections[conn.ID]; exists && existing == conn {
		delete(cm.connections, conn.ID)
		close(conn.Send)

		log.Info().
			Str("connection_id", conn.ID).
			Dur("connected_for", time.Since(conn.ConnectedAt)).
			Msg("connection unregistered")
		return true
	}
	return false
}

// handleBroadcast delivers a message to its target connections. Sends happen
// under the read lock so a connection's Send channel cannot be closed mid-send.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	var slow []*Connection
	delivered := 0

	cm.mu.RLock()
	for _, id := range message.ParticipantIDs {
		conn, ok := cm.connections[id]
		if !ok {
			continue
		}
		select {
		case conn.Send <- message.Data:
			delivered++
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event", string(message.Event)).
		Int("targets", len(message.ParticipantIDs)).
		Int("delivered", delivered).
		Msg("event broadcasted")
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	conns := make([]*Connection, 0, len(cm.connections))
	for _, c := range cm.connections {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()

	for _, c := range conns {
		c.Conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.Conn.Close()
	}
}

// ConnectionCount returns the number of open connections on this instance.
func (cm *ConnectionManager) ConnectionCount() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.connections)
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	return map[string]interface{}{
		"total_connections": len(cm.connections),
		"queued_broadcasts": len(cm.broadcastCh),
	}
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				// Channel was closed
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
				log.Debug().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the WebSocket connection. When it
// exits the connection is unregistered and, unless a newer connection took
// over the participant, the disconnect handler runs exactly once.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
		if c.superseded.Load() {
			return
		}
		c.handleDisconnect()
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
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

// handleClientMessage processes one frame received from the client. A panic
// in the handler is contained to this message.
func (c *Connection) handleClientMessage(message []byte) {
	handler := c.Manager.handler
	if handler == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("connection_id", c.ID).
				Msg("message handler panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(c.Manager.handlerContext(), c.Manager.config.HandlerTimeout)
	defer cancel()

	if reply := handler.HandleMessage(ctx, c.ID, message); reply != nil {
		if err := c.Manager.Notify(ctx, []string{c.ID}, reply); err != nil {
			log.Warn().Err(err).Str("connection_id", c.ID).Msg("failed to queue reply")
		}
	}
}

func (c *Connection) handleDisconnect() {
	handler := c.Manager.handler
	if handler == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("connection_id", c.ID).
				Msg("disconnect handler panicked")
		}
	}()

	base := c.Manager.handlerContext()
	if base.Err() != nil {
		log.Debug().Str("connection_id", c.ID).Msg("server shutting down, disconnect not reported")
		return
	}

	ctx, cancel := context.WithTimeout(base, c.Manager.config.HandlerTimeout)
	defer cancel()
	handler.HandleDisconnect(ctx, c.ID)
}
