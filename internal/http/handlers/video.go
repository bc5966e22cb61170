package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/videocatalog-backend/internal/http/response"
	"github.com/yungbote/videocatalog-backend/internal/relatedness"
)

// RelatednessReader is the read side of the relatedness engine.
type RelatednessReader interface {
	RelatedVideos(ctx context.Context, videoID string, limit int) (*relatedness.Related, error)
	SignalsForVideo(ctx context.Context, videoID string) (*relatedness.Signals, error)
}

type VideoHandler struct {
	engine RelatednessReader
}

func NewVideoHandler(engine RelatednessReader) *VideoHandler {
	return &VideoHandler{engine: engine}
}

// GET /api/videos/:id/related
func (h *VideoHandler) Related(c *gin.Context) {
	limit := relatedness.DefaultRelatedLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	out, err := h.engine.RelatedVideos(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "related_videos_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"videos": out.Videos, "fallback": out.Fallback})
}

// GET /api/videos/:id/signals
func (h *VideoHandler) Signals(c *gin.Context) {
	out, err := h.engine.SignalsForVideo(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "video_signals_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"score": out.Score, "signals": out.Signals, "weights": out.Weights})
}
