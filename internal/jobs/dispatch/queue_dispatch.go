package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/queue"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
)

// QueueDispatch records the job in the ledger before handing it to the
// backend, so a worker that starts immediately always finds the row.
type QueueDispatch struct {
	producer queue.Producer
	deps     Deps
	log      *logger.Logger
}

func NewQueue(producer queue.Producer, deps Deps, baseLog *logger.Logger) *QueueDispatch {
	return &QueueDispatch{
		producer: producer,
		deps:     deps.withDefaults(),
		log:      baseLog.With("component", "QueueDispatch", "backend", producer.Backend()),
	}
}

func (d *QueueDispatch) Mode() string { return runtime.ModeQueue }

func (d *QueueDispatch) Enqueue(ctx context.Context, req Request) (*Receipt, error) {
	if req.Type == "" {
		return nil, fmt.Errorf("enqueue: job type required")
	}
	jobID := uuid.NewString()
	maxRetries := d.deps.MaxRetries
	if req.Options.MaxRetries > 0 {
		maxRetries = req.Options.MaxRetries
	}
	backoff := d.deps.Backoff
	if req.Options.Backoff > 0 {
		backoff = req.Options.Backoff
	}
	queueName := d.producer.Queue()
	log := d.log.With("job_id", jobID, "job_type", req.Type)

	if d.deps.Ledger != nil {
		err := d.deps.Ledger.RecordEnqueued(dbctx.Context{Ctx: ctx}, jobs.EnqueuedRecord{
			JobID:      jobID,
			Queue:      queueName,
			Type:       req.Type,
			Actor:      req.Actor,
			VideoID:    req.VideoID,
			Payload:    req.Payload,
			MaxRetries: maxRetries,
		})
		if err != nil {
			log.Warn("Ledger write failed", "op", "record_enqueued", "error", err)
		}
	}

	if _, err := d.producer.Push(ctx, queue.PushRequest{
		JobID:      jobID,
		Type:       req.Type,
		Payload:    req.Payload,
		MaxRetries: maxRetries,
		Backoff:    backoff,
	}); err != nil {
		log.Error("Queue push failed", "error", err)
		if d.deps.Ledger != nil {
			if lerr := d.deps.Ledger.RecordFailed(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, jobID, fmt.Errorf("enqueue failed: %w", err)); lerr != nil {
				log.Warn("Ledger write failed", "op", "record_failed", "error", lerr)
			}
		}
		return nil, fmt.Errorf("push job: %w", err)
	}

	d.deps.Observer.JobEnqueued(queueName, req.Type, runtime.ModeQueue)
	publishEnqueued(ctx, log, d.deps.Bus, realtime.Event{
		Type:    realtime.EventJobEnqueued,
		JobID:   jobID,
		Queue:   queueName,
		JobType: req.Type,
		Mode:    runtime.ModeQueue,
		At:      d.deps.Now().UnixMilli(),
	})
	log.Info("Job enqueued")
	return &Receipt{Mode: runtime.ModeQueue, JobID: jobID}, nil
}
