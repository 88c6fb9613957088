// Package realtime fans out pipeline state changes to websocket clients
// watching a chat.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Rrens/codemuse/internal/pipeline"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// EventPipelineState is the type of every state change event
const EventPipelineState = "pipeline.state"

// ErrBufferFull is returned when a connection's send buffer is full
var ErrBufferFull = errors.New("send buffer full")

// Event is the JSON frame pushed to clients
type Event struct {
	Type   string         `json:"type"`
	ChatID uuid.UUID      `json:"chatId"`
	State  pipeline.State `json:"state"`
	Ts     int64          `json:"ts"`
}

// Connection represents a single websocket client watching one chat
type Connection struct {
	ID     string
	ChatID uuid.UUID
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
	mu     sync.Mutex
}

type chatMessage struct {
	chatID uuid.UUID
	data   []byte
}

// Hub manages websocket connections grouped by chat
type Hub struct {
	connections map[string]*Connection
	chats       map[uuid.UUID]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan chatMessage
	done       chan struct{}

	mu sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		chats:       make(map[uuid.UUID]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan chatMessage, 256),
		done:        make(chan struct{}),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if h.chats[conn.ChatID] == nil {
				h.chats[conn.ChatID] = make(map[string]bool)
			}
			h.chats[conn.ChatID][conn.ID] = true
			h.mu.Unlock()
			log.Debug().Str("conn_id", conn.ID).Str("chat_id", conn.ChatID.String()).Msg("Connection registered")

		case conn := <-h.unregister:
			h.remove(conn)
			log.Debug().Str("conn_id", conn.ID).Msg("Connection unregistered")

		case msg := <-h.broadcast:
			var slow []*Connection
			h.mu.RLock()
			for connID := range h.chats[msg.chatID] {
				conn, ok := h.connections[connID]
				if !ok {
					continue
				}
				select {
				case conn.Send <- msg.data:
				default:
					slow = append(slow, conn)
				}
			}
			h.mu.RUnlock()

			for _, conn := range slow {
				log.Warn().Str("conn_id", conn.ID).Msg("Connection buffer full, closing")
				h.remove(conn)
			}
		}
	}
}

func (h *Hub) remove(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.connections[conn.ID]; !ok {
		return
	}
	delete(h.connections, conn.ID)
	if ids := h.chats[conn.ChatID]; ids != nil {
		delete(ids, conn.ID)
		if len(ids) == 0 {
			delete(h.chats, conn.ChatID)
		}
	}
	close(conn.Send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, conn := range h.connections {
		close(conn.Send)
		delete(h.connections, id)
	}
	h.chats = make(map[uuid.UUID]map[string]bool)
}

// NewConnection wraps an upgraded socket; it is not registered yet
func (h *Hub) NewConnection(ws *websocket.Conn, chatID, userID uuid.UUID) *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		ChatID: chatID,
		UserID: userID,
		Conn:   ws,
		Send:   make(chan []byte, 64),
	}
}

// Register registers a connection with the hub. After the hub stopped the
// connection's send channel is closed right away.
func (h *Hub) Register(conn *Connection) {
	select {
	case h.register <- conn:
	case <-h.done:
		close(conn.Send)
	}
}

// Unregister unregisters a connection from the hub
func (h *Hub) Unregister(conn *Connection) {
	select {
	case h.unregister <- conn:
	case <-h.done:
	}
}

// Broadcast queues data for every connection watching the chat. It never
// blocks; when the queue is full the frame is dropped.
func (h *Hub) Broadcast(chatID uuid.UUID, data []byte) {
	select {
	case h.broadcast <- chatMessage{chatID: chatID, data: data}:
	default:
		log.Warn().Str("chat_id", chatID.String()).Msg("Broadcast queue full, dropping event")
	}
}

// StateChanged publishes a pipeline state change
func (h *Hub) StateChanged(chatID uuid.UUID, state pipeline.State) {
	data, err := json.Marshal(Event{
		Type:   EventPipelineState,
		ChatID: chatID,
		State:  state,
		Ts:     time.Now().UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode pipeline event")
		return
	}
	h.Broadcast(chatID, data)
}

// SendJSONToConnection sends a JSON message to a specific connection
func (h *Hub) SendJSONToConnection(conn *Connection, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case conn.Send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// ConnectionCount returns the number of active connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Watching reports whether anyone is watching the chat
func (h *Hub) Watching(chatID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID]) > 0
}

// WriteMessage writes a message to the connection with proper locking
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Conn.WriteMessage(messageType, data)
}

// Close closes the connection
func (c *Connection) Close() error {
	return c.Conn.Close()
}
