package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/pathxpert/server/internal/realtime"
)

// RealtimeHandler upgrades authenticated clients onto the live report feed.
type RealtimeHandler struct {
	hub *realtime.Hub
}

// NewRealtimeHandler wires the websocket endpoint to the hub.
func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Feed serves the websocket connection. Blocks until the client disconnects.
func (h *RealtimeHandler) Feed(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	h.hub.Serve(user.ID, c.Writer, c.Request)
}
