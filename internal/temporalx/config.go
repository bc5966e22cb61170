package temporalx

import (
	"time"

	"github.com/yungbote/videocatalog-backend/internal/platform/envutil"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

type Config struct {
	Address   string
	Namespace string
	TaskQueue string

	ClientCertPath string
	ClientKeyPath  string
	ClientCAPath   string

	DialTimeout       time.Duration
	DialMaxWait       time.Duration
	DialBackoff       time.Duration
	DialBackoffMax    time.Duration
	AutoRegister      bool
	RetentionDays     int
	WorkerConcurrency int
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Address:   envutil.String("TEMPORAL_ADDRESS", "", log),
		Namespace: envutil.String("TEMPORAL_NAMESPACE", "videocatalog", log),
		TaskQueue: envutil.String("TEMPORAL_TASK_QUEUE", "video", log),

		ClientCertPath: envutil.String("TEMPORAL_CLIENT_CERT_PATH", "", log),
		ClientKeyPath:  envutil.String("TEMPORAL_CLIENT_KEY_PATH", "", log),
		ClientCAPath:   envutil.String("TEMPORAL_CLIENT_CA_PATH", "", log),

		DialTimeout:       envutil.Seconds("TEMPORAL_DIAL_TIMEOUT_SECONDS", 5*time.Second, log),
		DialMaxWait:       envutil.Seconds("TEMPORAL_DIAL_MAX_WAIT_SECONDS", 60*time.Second, log),
		DialBackoff:       envutil.Millis("TEMPORAL_DIAL_BACKOFF_MS", 250*time.Millisecond, log),
		DialBackoffMax:    envutil.Millis("TEMPORAL_DIAL_BACKOFF_MAX_MS", 5*time.Second, log),
		AutoRegister:      envutil.Bool("TEMPORAL_AUTO_REGISTER_NAMESPACE", false, log),
		RetentionDays:     envutil.Int("TEMPORAL_NAMESPACE_RETENTION_DAYS", 7, log),
		WorkerConcurrency: envutil.Int("WORKER_CONCURRENCY", 2, log),
	}
}

func (c Config) Enabled() bool { return c.Address != "" }

func (c Config) hasTLS() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}
