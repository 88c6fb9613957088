package realtime

import (
	"net/http"
	"time"

	"github.com/Rrens/codemuse/internal/pipeline"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout   = 10 * time.Second
	readTimeout    = 60 * time.Second
	pingInterval   = (readTimeout * 9) / 10
	maxMessageSize = 512
)

// Server upgrades HTTP requests into event feed connections
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewServer creates a websocket server. Browser origins must appear in
// allowedOrigins; "*" allows any origin.
func NewServer(h *Hub, allowedOrigins []string) *Server {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Server{
		hub: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// Serve upgrades the request and streams the chat's pipeline events. The
// current state is sent first. Authorization happens before Serve is called.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, chatID, userID uuid.UUID, current pipeline.State) error {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade websocket")
		return err
	}

	conn := s.hub.NewConnection(ws, chatID, userID)
	ws.SetReadLimit(maxMessageSize)

	if err := s.hub.SendJSONToConnection(conn, Event{
		Type:   EventPipelineState,
		ChatID: chatID,
		State:  current,
		Ts:     time.Now().UnixMilli(),
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to queue initial state")
	}
	s.hub.Register(conn)

	go s.writePump(conn)
	go s.readPump(conn)

	return nil
}

// readPump only drains control frames; clients never send events
func (s *Server) readPump(conn *Connection) {
	defer func() {
		s.hub.Unregister(conn)
		conn.Close()
	}()

	conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("conn_id", conn.ID).Msg("Websocket error")
			}
			return
		}
	}
}

func (s *Server) writePump(conn *Connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("conn_id", conn.ID).Msg("Failed to write message")
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
