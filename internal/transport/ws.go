package transport

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// writeTimeout bounds how long a single event write may take before the
// connection is considered dead.
const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The editor UI and the orchestron API are served from different origins
	// during development (Vite dev server vs. this binary); origin checking
	// is left to the reverse proxy deployment fronting this binary in
	// production, matching the permissive CORS policy Config already grants
	// the rest of the /api surface.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket upgrades the connection and relays sess's event bus as
// newline-delimited JSON, per spec.md §6's "WebSocket /ws/sessions/{id}
// delivers event bus messages as JSON lines."
func (s *Server) handleWebSocket(c *gin.Context) {
	sess, ok := s.getSession(c)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[TRANSPORT] ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := sess.Subscribe()
	defer sub.Close()

	ctx := c.Request.Context()
	go drainIncoming(conn)

	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return
		}
		line, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[TRANSPORT] ws event marshal failed: %v", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, line); err != nil {
			return
		}
	}
}

// drainIncoming discards anything the client sends and detects disconnects,
// since this stream is server-to-client only; without reading, a client
// close goes unnoticed until the next failed write.
func drainIncoming(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
