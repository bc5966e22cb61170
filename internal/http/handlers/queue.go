package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/http/response"
	"github.com/yungbote/videocatalog-backend/internal/jobs/dispatch"
	recompute "github.com/yungbote/videocatalog-backend/internal/jobs/pipeline/recompute_video_signals"
	"github.com/yungbote/videocatalog-backend/internal/platform/ctxutil"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

type QueueHandler struct {
	log        *logger.Logger
	dispatcher dispatch.Dispatcher
	ledger     jobs.LedgerRepo
	now        func() time.Time
}

func NewQueueHandler(log *logger.Logger, dispatcher dispatch.Dispatcher, ledger jobs.LedgerRepo) *QueueHandler {
	return &QueueHandler{
		log:        log.With("handler", "QueueHandler"),
		dispatcher: dispatcher,
		ledger:     ledger,
		now:        time.Now,
	}
}

type recomputeRequest struct {
	ID string `json:"id"`
}

// POST /api/queues/video/recompute
func (h *QueueHandler) RecomputeVideo(c *gin.Context) {
	var body recomputeRequest
	if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	videoID := strings.TrimSpace(body.ID)

	var actor types.Actor
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		actor = types.Actor{Email: rd.Email, UserID: rd.UserID}
	}
	payload := map[string]any{
		"triggeredBy": actor.Email,
		"ts":          h.now().UnixMilli(),
	}
	if videoID != "" {
		payload["id"] = videoID
		payload["videoId"] = videoID
	}

	rc, err := h.dispatcher.Enqueue(c.Request.Context(), dispatch.Request{
		Type:    recompute.JobType,
		Payload: payload,
		Actor:   actor,
		VideoID: videoID,
	})
	if err != nil {
		h.log.Error("Enqueue failed", "video_id", videoID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "enqueue_failed", errors.New("failed to enqueue job"))
		return
	}
	out := gin.H{"enqueued": true, "jobId": rc.JobID, "mode": rc.Mode}
	if rc.Result != nil {
		out["result"] = rc.Result
	}
	response.RespondAccepted(c, out)
}

// GET /api/queues/jobs/recent
func (h *QueueHandler) RecentJobs(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		limit = n
	}
	rows, err := h.ledger.ListRecent(dbctx.Context{Ctx: c.Request.Context()}, limit)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "list_jobs_failed", err)
		return
	}
	if rows == nil {
		rows = []*types.JobRecord{}
	}
	response.RespondOK(c, gin.H{"jobs": rows})
}

// GET /api/queues/jobs/:id
func (h *QueueHandler) GetJob(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	job, err := h.ledger.GetByID(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "get_job_failed", err)
		return
	}
	if job == nil {
		response.RespondError(c, http.StatusNotFound, "job_not_found", errors.New("job not found"))
		return
	}
	response.RespondOK(c, gin.H{"job": job})
}

// GET /api/queues/metrics
func (h *QueueHandler) Metrics(c *gin.Context) {
	m, err := h.ledger.QueueMetrics(dbctx.Context{Ctx: c.Request.Context()})
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "queue_metrics_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"metrics": m, "mode": h.dispatcher.Mode()})
}
