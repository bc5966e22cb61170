package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
)

type RealtimeHandler struct {
	log *logger.Logger
	hub *realtime.Hub
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{log: log.With("handler", "RealtimeHandler"), hub: hub}
}

// GET /api/queues/events
func (h *RealtimeHandler) JobEvents(c *gin.Context) {
	client := h.hub.NewClient()
	h.log.Debug("Job event stream open", "client_id", client.ID.String())
	defer h.hub.CloseClient(client)
	h.hub.ServeHTTP(c.Writer, c.Request, client)
}
