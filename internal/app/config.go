package app

import (
	"strings"
	"time"

	"github.com/yungbote/videocatalog-backend/internal/data/db"
	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/platform/envutil"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/queue"
	"github.com/yungbote/videocatalog-backend/internal/queue/redisq"
	"github.com/yungbote/videocatalog-backend/internal/realtime/bus"
	"github.com/yungbote/videocatalog-backend/internal/temporalx"
)

const (
	BackendRedis    = "redis"
	BackendTemporal = "temporal"
	BackendInline   = "inline"
)

type Config struct {
	Port        string
	ServiceName string
	Environment string

	QueueBackend    string
	QueueRedisURL   string
	QueueName       string
	QueuePrefix     string
	MaxRetries      int
	BackoffBase     time.Duration
	RetainCompleted int
	RetainFailed    int
	RetainTTL       time.Duration

	WorkerConcurrency    int
	WorkerShutdownGrace  time.Duration
	WorkerStallInterval  time.Duration
	WorkerMetricsAddr    string
	RecomputeAllInterval time.Duration

	RecentJobsMax  int
	TagWeightsFile string
	AdminEmails    []string
	CORSOrigins    []string
	EventsChannel  string

	DB       db.Config
	Temporal temporalx.Config
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080", log),
		ServiceName: envutil.String("SERVICE_NAME", "videocatalog", log),
		Environment: envutil.String("ENVIRONMENT", "development", log),

		QueueRedisURL:   envutil.String("QUEUE_REDIS_URL", "", log),
		QueueName:       envutil.String("QUEUE_NAME", redisq.DefaultName, log),
		QueuePrefix:     envutil.String("QUEUE_PREFIX", redisq.DefaultPrefix, log),
		MaxRetries:      envutil.Int("JOB_MAX_RETRIES", types.DefaultMaxRetries, log),
		BackoffBase:     envutil.Millis("JOB_BACKOFF_BASE_MS", queue.DefaultBackoffBase, log),
		RetainCompleted: envutil.Int("QUEUE_RETAIN_COMPLETED", redisq.DefaultRetainCompleted, log),
		RetainFailed:    envutil.Int("QUEUE_RETAIN_FAILED", redisq.DefaultRetainFailed, log),
		RetainTTL:       time.Duration(envutil.Int("QUEUE_RETAIN_TTL_HOURS", 24, log)) * time.Hour,

		WorkerConcurrency:    envutil.Int("WORKER_CONCURRENCY", 2, log),
		WorkerShutdownGrace:  envutil.Seconds("WORKER_SHUTDOWN_GRACE_SECONDS", 30*time.Second, log),
		WorkerStallInterval:  envutil.Seconds("WORKER_STALL_SECONDS", 60*time.Second, log),
		WorkerMetricsAddr:    envutil.String("WORKER_METRICS_ADDR", ":9091", log),
		RecomputeAllInterval: time.Duration(envutil.Int("RECOMPUTE_ALL_INTERVAL_MINUTES", 0, log)) * time.Minute,

		RecentJobsMax:  envutil.Int("RECENT_JOBS_MAX", 200, log),
		TagWeightsFile: envutil.String("TAG_WEIGHTS_FILE", "", log),
		AdminEmails:    envutil.List("ADMIN_EMAILS", log),
		CORSOrigins:    envutil.List("CORS_ALLOWED_ORIGINS", log),
		EventsChannel:  envutil.String("EVENTS_REDIS_CHANNEL", bus.DefaultChannel, log),

		DB:       db.LoadConfig(log),
		Temporal: temporalx.LoadConfig(log),
	}
	cfg.QueueBackend = resolveBackend(envutil.String("QUEUE_BACKEND", "", log), cfg)
	return cfg
}

// resolveBackend honours an explicit QUEUE_BACKEND. Otherwise Temporal wins
// over Redis when both are configured, and nothing configured means inline.
func resolveBackend(explicit string, cfg Config) string {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case BackendRedis:
		return BackendRedis
	case BackendTemporal:
		return BackendTemporal
	case BackendInline:
		return BackendInline
	}
	if cfg.Temporal.Enabled() {
		return BackendTemporal
	}
	if strings.TrimSpace(cfg.QueueRedisURL) != "" {
		return BackendRedis
	}
	return BackendInline
}

func (c Config) redisQueueConfig() redisq.Config {
	return redisq.Config{
		URL:               c.QueueRedisURL,
		Name:              c.QueueName,
		Prefix:            c.QueuePrefix,
		RetainCompleted:   c.RetainCompleted,
		RetainFailed:      c.RetainFailed,
		RetainTTL:         c.RetainTTL,
		DefaultMaxRetries: c.MaxRetries,
		DefaultBackoff:    c.BackoffBase,
	}
}

// queueName is the logical queue recorded on ledger rows.
func (c Config) queueName() string {
	if c.QueueBackend == BackendTemporal && strings.TrimSpace(c.Temporal.TaskQueue) != "" {
		return c.Temporal.TaskQueue
	}
	if strings.TrimSpace(c.QueueName) != "" {
		return c.QueueName
	}
	return redisq.DefaultName
}
