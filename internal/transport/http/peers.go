package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kenshin-labs/bushido-duel/internal/transport/websocket"
)

// Relay is the part of the websocket relay exposed over HTTP.
type Relay interface {
	Stats() websocket.RelayStats
	IsOnline(id string) bool
}

type PeersHandler struct {
	Relay Relay
}

func NewPeersHandler(relay Relay) *PeersHandler {
	return &PeersHandler{Relay: relay}
}

// GetStats returns how many peers and links the relay currently holds.
func (h *PeersHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.Relay.Stats())
}

// GetPeer reports whether a room code is currently reachable.
func (h *PeersHandler) GetPeer(c *gin.Context) {
	id := c.Param("id")
	c.JSON(http.StatusOK, gin.H{"id": id, "online": h.Relay.IsOnline(id)})
}
