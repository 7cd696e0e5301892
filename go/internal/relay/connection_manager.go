package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/alias/go/internal/replication"
	"github.com/rs/zerolog/log"
)

// ConnectionManager fans room updates out to websocket subscribers. It holds
// one backend subscription per room with at least one connection.
type ConnectionManager struct {
	backend replication.Backend
	metrics *Metrics

	rooms map[string]*roomConnections
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan Room
}

type roomConnections struct {
	conns  map[*Connection]bool
	cancel context.CancelFunc
}

// Connection is one websocket subscriber of a room.
type Connection struct {
	ID          string
	PlayerID    string
	RoomCode    string
	Conn        *websocket.Conn
	Send        chan []byte
	Manager     *ConnectionManager
	ConnectedAt time.Time
}

type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024, // Clients only send control frames
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBuffer:      64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(backend replication.Backend, config ConnectionConfig, metrics *Metrics) *ConnectionManager {
	return &ConnectionManager{
		backend: backend,
		metrics: metrics,
		rooms:   make(map[string]*roomConnections),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan Room, 1000),
	}
}

// Start delivers room updates until ctx is cancelled, then closes every connection.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	for {
		select {
		case <-ctx.Done():
			cm.closeAll()
			log.Info().Msg("connection manager shutting down")
			return
		case room := <-cm.broadcastCh:
			cm.handleBroadcast(room)
		}
	}
}

// UpgradeConnection upgrades the request and subscribes it to room code. The
// current row is sent first so the client starts from the stored state.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, playerID, code string) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		RoomCode:    code,
		Conn:        conn,
		Send:        make(chan []byte, cm.config.SendBuffer),
		Manager:     cm,
		ConnectedAt: time.Now(),
	}

	if err := cm.registerConnection(connection); err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		conn.Close()
		return err
	}

	row, err := cm.backend.Get(r.Context(), code)
	if err == nil {
		if data, err := json.Marshal(Room{Code: row.Code, State: row.State, Version: row.Version}); err == nil {
			cm.sendTo(connection, data)
		}
	} else {
		log.Error().Err(err).Str("room_code", code).Msg("failed to load room for new connection")
	}

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("player_id", playerID).
		Str("room_code", code).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	room, ok := cm.rooms[conn.RoomCode]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := cm.backend.Subscribe(ctx, conn.RoomCode)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe to room %s: %w", conn.RoomCode, err)
		}
		room = &roomConnections{conns: make(map[*Connection]bool), cancel: cancel}
		cm.rooms[conn.RoomCode] = room
		cm.metrics.rooms.Inc()
		go cm.forward(conn.RoomCode, ch)
	}
	room.conns[conn] = true
	cm.metrics.connections.Inc()

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room_code", conn.RoomCode).
		Int("total_connections", len(room.conns)).
		Msg("connection registered")
	return nil
}

func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	room, ok := cm.rooms[conn.RoomCode]
	if !ok || !room.conns[conn] {
		return
	}
	delete(room.conns, conn)
	close(conn.Send)
	cm.metrics.connections.Dec()

	if len(room.conns) == 0 {
		room.cancel()
		delete(cm.rooms, conn.RoomCode)
		cm.metrics.rooms.Dec()
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID).
		Str("room_code", conn.RoomCode).
		Msg("connection unregistered")
}

// forward turns backend notifications for a room into broadcasts until the
// room's subscription is cancelled.
func (cm *ConnectionManager) forward(code string, ch <-chan replication.Notification) {
	for n := range ch {
		cm.BroadcastToRoom(Room{Code: code, State: n.State, Version: n.Version})
	}
	log.Debug().Str("room_code", code).Msg("room subscription ended")
}

func (cm *ConnectionManager) BroadcastToRoom(room Room) {
	select {
	case cm.broadcastCh <- room:
	default:
		log.Warn().Str("room_code", room.Code).Msg("broadcast channel full, dropping update")
	}
}

func (cm *ConnectionManager) handleBroadcast(room Room) {
	data, err := json.Marshal(room)
	if err != nil {
		log.Error().Err(err).Str("room_code", room.Code).Msg("failed to marshal room update")
		return
	}

	// Sends happen under the read lock so a connection cannot be closed mid-send.
	var slow []*Connection
	sent := 0
	cm.mu.RLock()
	if rc, ok := cm.rooms[room.Code]; ok {
		for conn := range rc.conns {
			select {
			case conn.Send <- data:
				sent++
			default:
				slow = append(slow, conn)
			}
		}
	}
	cm.mu.RUnlock()
	cm.metrics.pushes.Add(float64(sent))

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("room_code", room.Code).
			Msg("connection send buffer full, closing connection")
		cm.metrics.slowClosed.Inc()
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("room_code", room.Code).
		Int64("version", room.Version).
		Int("connections", sent).
		Msg("room update broadcasted")
}

// sendTo queues data for one connection if it is still registered.
func (cm *ConnectionManager) sendTo(conn *Connection, data []byte) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if rc, ok := cm.rooms[conn.RoomCode]; !ok || !rc.conns[conn] {
		return false
	}
	select {
	case conn.Send <- data:
		return true
	default:
		return false
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, room := range cm.rooms {
		for conn := range room.conns {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) Stats() statsResponse {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := statsResponse{RoomConnections: make(map[string]int, len(cm.rooms))}
	for code, room := range cm.rooms {
		stats.TotalConnections += len(room.conns)
		stats.RoomConnections[code] = len(room.conns)
	}
	stats.ActiveRooms = len(cm.rooms)
	return stats
}

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
					Msg("failed to write message to websocket")
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

// readPump drains client frames so pongs and close messages are processed.
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("ignoring client message")
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
