package dispatch

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
)

// InlineDispatch runs the job on the caller's goroutine through the same
// Runner the workers use. There is no retry: the first failure is returned.
type InlineDispatch struct {
	deps Deps
	log  *logger.Logger
	seq  atomic.Uint64
}

func NewInline(deps Deps, baseLog *logger.Logger) *InlineDispatch {
	return &InlineDispatch{
		deps: deps.withDefaults(),
		log:  baseLog.With("component", "InlineDispatch"),
	}
}

func (d *InlineDispatch) Mode() string { return runtime.ModeInline }

func (d *InlineDispatch) nextID() string {
	return fmt.Sprintf("inline:%d-%d", d.deps.Now().UnixMilli(), d.seq.Add(1))
}

func (d *InlineDispatch) Enqueue(ctx context.Context, req Request) (*Receipt, error) {
	if req.Type == "" {
		return nil, fmt.Errorf("enqueue: job type required")
	}
	if d.deps.Runner == nil {
		return nil, fmt.Errorf("enqueue: inline runner not configured")
	}
	jobID := d.nextID()
	maxRetries := d.deps.MaxRetries
	if req.Options.MaxRetries > 0 {
		maxRetries = req.Options.MaxRetries
	}
	log := d.log.With("job_id", jobID, "job_type", req.Type)

	if d.deps.Ledger != nil {
		err := d.deps.Ledger.RecordEnqueued(dbctx.Context{Ctx: ctx}, jobs.EnqueuedRecord{
			JobID:      jobID,
			Queue:      d.deps.Queue,
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
	d.deps.Observer.JobEnqueued(d.deps.Queue, req.Type, runtime.ModeInline)
	publishEnqueued(ctx, log, d.deps.Bus, realtime.Event{
		Type:    realtime.EventJobEnqueued,
		JobID:   jobID,
		Queue:   d.deps.Queue,
		JobType: req.Type,
		Mode:    runtime.ModeInline,
		At:      d.deps.Now().UnixMilli(),
	})

	result, err := d.deps.Runner.Execute(ctx, runtime.JobInfo{
		ID:         jobID,
		Queue:      d.deps.Queue,
		Type:       req.Type,
		Attempt:    1,
		MaxRetries: maxRetries,
		Mode:       runtime.ModeInline,
	}, req.Payload)
	if err != nil {
		return nil, fmt.Errorf("inline job %s: %w", jobID, err)
	}
	return &Receipt{Mode: runtime.ModeInline, JobID: jobID, Result: result}, nil
}
