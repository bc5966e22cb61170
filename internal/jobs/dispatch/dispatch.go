package dispatch

import (
	"context"
	"time"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/queue"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
	"github.com/yungbote/videocatalog-backend/internal/realtime/bus"
)

// QueueOptions override the backend defaults for one job. Zero values keep
// the defaults.
type QueueOptions struct {
	MaxRetries int
	Backoff    time.Duration
}

type Request struct {
	Type    string
	Payload map[string]any
	Actor   types.Actor
	VideoID string
	Options QueueOptions
}

// Receipt is what the caller learns at enqueue time. Result is set only in
// inline mode, where the job has already run.
type Receipt struct {
	Mode   string         `json:"mode"`
	JobID  string         `json:"jobId"`
	Result map[string]any `json:"result,omitempty"`
}

// Dispatcher hands a job to a durable backend or runs it in-process. The
// choice is made once per process and both paths leave the same ledger row.
type Dispatcher interface {
	Enqueue(ctx context.Context, req Request) (*Receipt, error)
	Mode() string
}

// EnqueueObserver counts accepted jobs.
type EnqueueObserver interface {
	JobEnqueued(queue, jobType, mode string)
}

type nopEnqueueObserver struct{}

func (nopEnqueueObserver) JobEnqueued(string, string, string) {}

type Deps struct {
	Ledger     jobs.LedgerRepo
	Runner     *runtime.Runner
	Bus        bus.Bus
	Observer   EnqueueObserver
	Queue      string
	MaxRetries int
	Backoff    time.Duration
	Now        func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Bus == nil {
		d.Bus = bus.Nop()
	}
	if d.Observer == nil {
		d.Observer = nopEnqueueObserver{}
	}
	if d.Queue == "" {
		d.Queue = "video"
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = types.DefaultMaxRetries
	}
	if d.Backoff <= 0 {
		d.Backoff = queue.DefaultBackoffBase
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// New picks the strategy for the process lifetime. A nil producer, or one
// that fails its startup ping, selects inline execution.
func New(ctx context.Context, producer queue.Producer, deps Deps, baseLog *logger.Logger) Dispatcher {
	log := baseLog.With("component", "JobDispatcher")
	if producer == nil {
		log.Info("No queue backend configured; running jobs inline")
		return NewInline(deps, baseLog)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := producer.Ping(pingCtx); err != nil {
		log.Warn("Queue backend unreachable; running jobs inline", "backend", producer.Backend(), "error", err)
		return NewInline(deps, baseLog)
	}
	log.Info("Dispatching jobs to queue backend", "backend", producer.Backend(), "queue", producer.Queue())
	return NewQueue(producer, deps, baseLog)
}

func publishEnqueued(ctx context.Context, log *logger.Logger, b bus.Bus, ev realtime.Event) {
	if err := b.Publish(ctx, ev); err != nil {
		log.Debug("Job event publish failed", "event", ev.Type, "error", err)
	}
}
