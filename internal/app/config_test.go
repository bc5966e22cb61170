package app

import (
	"testing"
	"time"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/testutil"
)

func clearQueueEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"QUEUE_BACKEND", "QUEUE_REDIS_URL", "TEMPORAL_ADDRESS", "TEMPORAL_TASK_QUEUE", "QUEUE_NAME", "QUEUE_PREFIX"} {
		t.Setenv(name, "")
	}
}

func TestLoadConfigBackendSelection(t *testing.T) {
	cases := []struct {
		name      string
		env       map[string]string
		backend   string
		queueName string
	}{
		{name: "nothing configured", backend: BackendInline, queueName: "video"},
		{name: "redis url", env: map[string]string{"QUEUE_REDIS_URL": "redis://localhost:6379/0"}, backend: BackendRedis, queueName: "video"},
		{
			name:      "temporal wins over redis",
			env:       map[string]string{"QUEUE_REDIS_URL": "redis://localhost:6379/0", "TEMPORAL_ADDRESS": "localhost:7233", "TEMPORAL_TASK_QUEUE": "catalog"},
			backend:   BackendTemporal,
			queueName: "catalog",
		},
		{name: "explicit inline", env: map[string]string{"QUEUE_BACKEND": "INLINE", "QUEUE_REDIS_URL": "redis://localhost:6379/0"}, backend: BackendInline, queueName: "video"},
		{name: "unknown explicit falls back to derivation", env: map[string]string{"QUEUE_BACKEND": "sqs"}, backend: BackendInline, queueName: "video"},
		{name: "custom queue name", env: map[string]string{"QUEUE_REDIS_URL": "redis://localhost:6379/0", "QUEUE_NAME": "media"}, backend: BackendRedis, queueName: "media"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearQueueEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg := LoadConfig(testutil.Logger(t))
			if cfg.QueueBackend != tc.backend {
				t.Fatalf("backend = %q, want %q", cfg.QueueBackend, tc.backend)
			}
			if got := cfg.queueName(); got != tc.queueName {
				t.Fatalf("queueName = %q, want %q", got, tc.queueName)
			}
		})
	}
}

func TestLoadConfigDurationsAndLists(t *testing.T) {
	clearQueueEnv(t)
	t.Setenv("JOB_BACKOFF_BASE_MS", "250")
	t.Setenv("JOB_MAX_RETRIES", "5")
	t.Setenv("RECOMPUTE_ALL_INTERVAL_MINUTES", "15")
	t.Setenv("QUEUE_RETAIN_TTL_HOURS", "2")
	t.Setenv("ADMIN_EMAILS", "ops@example.com, ,lead@example.com")

	cfg := LoadConfig(testutil.Logger(t))
	if cfg.BackoffBase != 250*time.Millisecond || cfg.MaxRetries != 5 {
		t.Fatalf("retry config = %v / %d", cfg.BackoffBase, cfg.MaxRetries)
	}
	if cfg.RecomputeAllInterval != 15*time.Minute || cfg.RetainTTL != 2*time.Hour {
		t.Fatalf("intervals = %v / %v", cfg.RecomputeAllInterval, cfg.RetainTTL)
	}
	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[1] != "lead@example.com" {
		t.Fatalf("admin emails = %v", cfg.AdminEmails)
	}

	rq := cfg.redisQueueConfig()
	if rq.DefaultMaxRetries != 5 || rq.DefaultBackoff != 250*time.Millisecond || rq.Prefix != "vq" {
		t.Fatalf("redis queue config = %+v", rq)
	}
}
