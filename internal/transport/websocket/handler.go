package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler upgrades relay sockets.
type Handler struct {
	Relay    *Relay
	Upgrader websocket.Upgrader
}

// NewHandler creates a relay socket handler. An empty allowedOrigins accepts
// any origin.
func NewHandler(relay *Relay, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		Relay: relay,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || len(allowed) == 0 || allowed[origin]
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// HandleWebSocket is the gin handler that upgrades the connection
func (h *Handler) HandleWebSocket(c *gin.Context) {
	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	h.handleConnection(conn, c.Query("token"))
}

// handleConnection manages the lifecycle of a single relay socket
func (h *Handler) handleConnection(conn *websocket.Conn, token string) {
	p, newToken, refusal := h.Relay.Register(conn, token)
	if refusal != nil {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		conn.WriteJSON(refusal)
		conn.Close()
		return
	}
	defer h.Relay.Unregister(p)

	// Set read deadline to detect stale connections
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	// Keep-alive pinger
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
					return
				}
			}
		}
	}()

	h.Relay.send(p, Frame{Type: FrameOpen, ID: p.id, Token: newToken})
	log.Printf("[WS] Peer %s connected", p.id)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Peer %s disconnected unexpectedly: %v", p.id, err)
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Printf("[WS] Invalid frame from %s: %v", p.id, err)
			h.Relay.send(p, Frame{Type: FrameError, Kind: KindInvalidFrame, Message: "invalid frame"})
			continue
		}
		h.Relay.Route(p, f)
	}
}
