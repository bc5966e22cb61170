package runtime

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
	"github.com/yungbote/videocatalog-backend/internal/realtime/bus"
)

var tracer = otel.Tracer("github.com/yungbote/videocatalog-backend/internal/jobs/runtime")

// Observer receives job lifecycle measurements.
type Observer interface {
	JobStarted(queue, jobType string)
	JobFinished(queue, jobType, status string, dur time.Duration)
	LedgerError(op string)
}

type nopObserver struct{}

func (nopObserver) JobStarted(string, string)                         {}
func (nopObserver) JobFinished(string, string, string, time.Duration) {}
func (nopObserver) LedgerError(string)                                {}

// PanicError is the failure recorded when a handler panics.
type PanicError struct {
	Value any
	stack string
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }
func (e *PanicError) Code() string  { return "panic" }
func (e *PanicError) Stack() string { return e.stack }

type RunnerOption func(*Runner)

func WithBus(b bus.Bus) RunnerOption {
	return func(r *Runner) {
		if b != nil {
			r.bus = b
		}
	}
}

func WithObserver(o Observer) RunnerOption {
	return func(r *Runner) {
		if o != nil {
			r.obs = o
		}
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

/*
Runner drives one attempt through the ledger lifecycle:
	- RecordStarted with the attempt number
	- Process, forwarding progress to RecordProgress and the bus
	- RecordCompleted on success, RecordFailed on error or panic
Ledger and bus writes are best effort: their failures are logged and counted,
never allowed to change the attempt's outcome. A handler error is returned so
the caller's retry policy (queue backend) or HTTP caller (inline) sees it.
*/
type Runner struct {
	proc   *Processor
	ledger jobs.LedgerRepo
	bus    bus.Bus
	obs    Observer
	log    *logger.Logger
	now    func() time.Time
}

func NewRunner(proc *Processor, ledger jobs.LedgerRepo, baseLog *logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		proc:   proc,
		ledger: ledger,
		bus:    bus.Nop(),
		obs:    nopObserver{},
		log:    baseLog.With("component", "JobRunner"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Execute(ctx context.Context, job JobInfo, payload map[string]any) (result map[string]any, err error) {
	if job.Attempt < 1 {
		job.Attempt = 1
	}
	ctx, span := tracer.Start(ctx, "job.execute")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("job.type", job.Type),
		attribute.String("job.queue", job.Queue),
		attribute.Int("job.attempt", job.Attempt),
		attribute.String("job.mode", job.Mode),
	)

	// Terminal ledger writes must land even when shutdown cancels ctx.
	writeCtx := context.WithoutCancel(ctx)
	log := r.log.With("job_id", job.ID, "job_type", job.Type, "attempt", job.Attempt)
	start := r.now()

	r.ledgerCall(writeCtx, log, "record_started", func(dbc dbctx.Context) error {
		return r.ledger.RecordStarted(dbc, job.ID, job.Attempt)
	})
	r.obs.JobStarted(job.Queue, job.Type)
	r.publish(writeCtx, log, r.event(realtime.EventJobStarted, job))

	progress := func(pct float64) {
		r.ledgerCall(writeCtx, log, "record_progress", func(dbc dbctx.Context) error {
			return r.ledger.RecordProgress(dbc, job.ID, pct)
		})
		ev := r.event(realtime.EventJobProgress, job)
		ev.Percent = &pct
		r.publish(writeCtx, log, ev)
	}

	result, err = r.process(ctx, job, payload, progress)
	dur := r.now().Sub(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Warn("Job attempt failed", "error", err, "duration_ms", dur.Milliseconds())
		r.ledgerCall(writeCtx, log, "record_failed", func(dbc dbctx.Context) error {
			return r.ledger.RecordFailed(dbc, job.ID, err)
		})
		r.obs.JobFinished(job.Queue, job.Type, "failed", dur)
		ev := r.event(realtime.EventJobFailed, job)
		doc := jobs.Describe(err)
		doc.Stack = ""
		ev.Error = &doc
		r.publish(writeCtx, log, ev)
		return nil, err
	}

	r.ledgerCall(writeCtx, log, "record_completed", func(dbc dbctx.Context) error {
		return r.ledger.RecordCompleted(dbc, job.ID, result)
	})
	r.obs.JobFinished(job.Queue, job.Type, "succeeded", dur)
	ev := r.event(realtime.EventJobSucceeded, job)
	ev.Result = result
	r.publish(writeCtx, log, ev)
	log.Debug("Job attempt succeeded", "duration_ms", dur.Milliseconds())
	return result, nil
}

func (r *Runner) process(ctx context.Context, job JobInfo, payload map[string]any, progress ProgressFunc) (res map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res = nil
			err = &PanicError{Value: rec, stack: string(debug.Stack())}
		}
	}()
	return r.proc.Process(ctx, job, payload, progress)
}

func (r *Runner) ledgerCall(ctx context.Context, log *logger.Logger, op string, fn func(dbctx.Context) error) {
	if r.ledger == nil {
		return
	}
	if err := fn(dbctx.Context{Ctx: ctx}); err != nil {
		r.obs.LedgerError(op)
		log.Warn("Ledger write failed", "op", op, "error", err)
	}
}

func (r *Runner) event(t realtime.EventType, job JobInfo) realtime.Event {
	return realtime.Event{
		Type:    t,
		JobID:   job.ID,
		Queue:   job.Queue,
		JobType: job.Type,
		Mode:    job.Mode,
		Attempt: job.Attempt,
		At:      r.now().UnixMilli(),
	}
}

func (r *Runner) publish(ctx context.Context, log *logger.Logger, ev realtime.Event) {
	if err := r.bus.Publish(ctx, ev); err != nil {
		log.Debug("Job event publish failed", "event", ev.Type, "error", err)
	}
}

