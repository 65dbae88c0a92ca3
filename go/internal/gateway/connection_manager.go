package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/raceloop/typerace/go/internal/events"
)

// RaceApp is what the gateway needs from the coordination engine. Inbound
// client events are translated into these calls; the engine pushes its
// broadcasts back through the manager's Broadcaster side.
type RaceApp interface {
	JoinRoom(ctx context.Context, roomID, connID, name, mode string)
	StartGame(roomID, connID string)
	UpdateProgress(roomID, name string, progress int, wpm, accuracy float64, finished bool)
	RestartGame(ctx context.Context, roomID, connID string)
	Disconnect(connID string)
}

// ConnectionManager manages WebSocket connections and fans room broadcasts
// out to them. A single goroutine drains the broadcast channel, so events
// for a room reach every member in the order they were produced.
type ConnectionManager struct {
	roomConnections map[string]map[*Connection]bool
	mu              sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan BroadcastMessage
}

// Connection represents a WebSocket connection to a client. A connection
// belongs to at most one room, chosen by its join-room message.
type Connection struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager
	App     RaceApp

	mu         sync.Mutex
	roomID     string
	sendClosed bool

	closeOnce sync.Once

	ConnectedAt time.Time
	LastPing    time.Time
}

// ConnectionConfig holds configuration for WebSocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage pairs an event with the room whose members receive it.
type BroadcastMessage struct {
	RoomID string
	Event  *events.Event
}

// DefaultConnectionConfig returns default WebSocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			// Allow all origins in development - restrict in production
			return true
		},
	}
}

// NewConnectionManager creates a new WebSocket connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		roomConnections: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan BroadcastMessage, 1000),
	}
}

// Start begins processing broadcast messages. It blocks until ctx is done.
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

// BroadcastToRoom queues an event for every connection in a room. This is
// the engine-facing fan-out primitive (race.Broadcaster).
func (cm *ConnectionManager) BroadcastToRoom(roomID string, event *events.Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{RoomID: roomID, Event: event}:
	default:
		log.Warn().Str("room_id", roomID).Str("event_type", string(event.Type)).Msg("broadcast channel full, dropping message")
	}
}

// UpgradeConnection upgrades an HTTP request to a WebSocket connection and
// starts its read/write pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, app RaceApp) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return err
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		App:         app,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")

	return nil
}

// subscribe places a connection in a room's pool, leaving any previous
// room first. Membership must be live before the engine processes the
// join so the join's own room-joined broadcast reaches this connection.
func (cm *ConnectionManager) subscribe(conn *Connection, roomID string) {
	conn.mu.Lock()
	previous := conn.roomID
	conn.roomID = roomID
	conn.mu.Unlock()

	cm.mu.Lock()
	defer cm.mu.Unlock()

	if previous != "" && previous != roomID {
		cm.dropFromPoolLocked(conn, previous)
	}
	if cm.roomConnections[roomID] == nil {
		cm.roomConnections[roomID] = make(map[*Connection]bool)
	}
	cm.roomConnections[roomID][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_id", roomID).
		Int("total_connections", len(cm.roomConnections[roomID])).
		Msg("connection subscribed to room")
}

// unregisterConnection removes a connection from its room pool and informs
// the engine exactly once. Safe to call from both pumps.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	conn.closeOnce.Do(func() {
		conn.mu.Lock()
		roomID := conn.roomID
		conn.sendClosed = true
		close(conn.Send)
		conn.mu.Unlock()

		cm.mu.Lock()
		if roomID != "" {
			cm.dropFromPoolLocked(conn, roomID)
		}
		cm.mu.Unlock()

		conn.App.Disconnect(conn.ID)

		log.Info().
			Str("connection_id", conn.ID).
			Str("room_id", roomID).
			Msg("connection unregistered")
	})
}

func (cm *ConnectionManager) dropFromPoolLocked(conn *Connection, roomID string) {
	if pool, exists := cm.roomConnections[roomID]; exists {
		delete(pool, conn)
		if len(pool) == 0 {
			delete(cm.roomConnections, roomID)
		}
	}
}

// handleBroadcast fans one event out to a room's connections.
func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	cm.mu.RLock()
	pool, exists := cm.roomConnections[message.RoomID]
	if !exists {
		cm.mu.RUnlock()
		return
	}

	// Snapshot the pool to avoid holding the lock during sends.
	targets := make([]*Connection, 0, len(pool))
	for conn := range pool {
		targets = append(targets, conn)
	}
	cm.mu.RUnlock()

	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		if conn.trySend(data) {
			continue
		}
		// Connection is slow/dead, close it.
		log.Warn().
			Str("connection_id", conn.ID).
			Str("room_id", message.RoomID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room_id", message.RoomID).
		Int("connections", len(targets)).
		Msg("event broadcasted")
}

// GetConnectionStats returns statistics about active connections.
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)

	for roomID, pool := range cm.roomConnections {
		count := len(pool)
		totalConnections += count
		roomCounts[roomID] = count
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(cm.roomConnections),
		"room_connections":  roomCounts,
	}
}

// trySend queues data for the connection's writePump. It returns false
// only when the connection is live but its buffer is full. The send and
// the close in unregisterConnection are serialized under conn.mu, so a
// broadcast that snapshotted the pool just before a disconnect becomes
// a no-op for that connection instead of a send on a closed channel.
func (c *Connection) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendClosed {
		return true
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// writePump handles sending messages to the WebSocket connection.
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
				// Channel was closed by unregister.
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
			c.LastPing = time.Now()
		}
	}
}

// readPump handles reading messages from the WebSocket connection.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
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

// handleClientMessage decodes an inbound message and routes it into the
// engine. Unrecognized shapes are rejected here, before they reach the
// core.
func (c *Connection) handleClientMessage(raw []byte) {
	var msg events.ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Msg("malformed client message, ignoring")
		return
	}

	payload, err := events.ParseClientPayload(&msg)
	if err != nil {
		log.Warn().Err(err).Str("connection_id", c.ID).Str("event_type", string(msg.Type)).Msg("invalid client payload, ignoring")
		return
	}

	ctx := context.Background()

	switch p := payload.(type) {
	case events.JoinRoomPayload:
		if p.RoomID == "" || p.User == "" {
			log.Warn().Str("connection_id", c.ID).Msg("join-room missing roomId or user, ignoring")
			return
		}
		c.Manager.subscribe(c, p.RoomID)
		c.App.JoinRoom(ctx, p.RoomID, c.ID, p.User, p.Mode)

	case events.StartGamePayload:
		c.App.StartGame(p.RoomID, c.ID)

	case events.UpdateProgressPayload:
		c.App.UpdateProgress(p.RoomID, p.User, p.Progress, p.WPM, p.Accuracy, p.Finished)

	case events.RestartGamePayload:
		c.App.RestartGame(ctx, p.RoomID, c.ID)

	default:
		log.Warn().
			Str("connection_id", c.ID).
			Str("event_type", string(msg.Type)).
			Msg("unknown client event type, ignoring")
	}
}
