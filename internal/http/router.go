package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/videocatalog-backend/internal/http/handlers"
	httpMW "github.com/yungbote/videocatalog-backend/internal/http/middleware"
	"github.com/yungbote/videocatalog-backend/internal/observability"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

type RouterConfig struct {
	ServiceName string
	Log         *logger.Logger
	Metrics     *observability.Metrics
	CORSOrigins []string

	AdminMiddleware *httpMW.AdminMiddleware

	QueueHandler    *httpH.QueueHandler
	VideoHandler    *httpH.VideoHandler
	RealtimeHandler *httpH.RealtimeHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachActor())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		// Videos (public reads)
		if cfg.VideoHandler != nil {
			api.GET("/videos/:id/related", cfg.VideoHandler.Related)
			api.GET("/videos/:id/signals", cfg.VideoHandler.Signals)
		}
	}

	queues := api.Group("/queues")
	{
		if cfg.AdminMiddleware != nil {
			queues.Use(cfg.AdminMiddleware.RequireAdmin())
		}

		if cfg.QueueHandler != nil {
			queues.POST("/video/recompute", cfg.QueueHandler.RecomputeVideo)
			queues.GET("/jobs/recent", cfg.QueueHandler.RecentJobs)
			queues.GET("/jobs/:id", cfg.QueueHandler.GetJob)
			queues.GET("/metrics", cfg.QueueHandler.Metrics)
		}

		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			queues.GET("/events", cfg.RealtimeHandler.JobEvents)
		}
	}

	return r
}
