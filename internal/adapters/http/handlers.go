package http

import (
	"net/http"

	"github.com/dkeye/roomrelay/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
)

type handlers struct {
	node string
	ep   Endpoints
	rtc  webrtc.Configuration
}

type RoomsResponse struct {
	MCP       []core.RoomInfo `json:"mcp"`
	Signaling []core.RoomInfo `json:"signaling"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"node":   h.node,
		"connections": gin.H{
			"mcp":       h.ep.MCP.Sessions.Count(),
			"signaling": h.ep.Signaling.Sessions.Count(),
		},
	})
}

// rooms is the local view of this process only.
func (h *handlers) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, RoomsResponse{
		MCP:       h.ep.MCP.Rooms.List(),
		Signaling: h.ep.Signaling.Rooms.List(),
	})
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.rtc.ICEServers})
}
