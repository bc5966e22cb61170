package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/queue"
)

var ErrStalled = errors.New("job stalled: lock expired with no attempts left")

type Config struct {
	Concurrency     int
	PollInterval    time.Duration
	PromoteInterval time.Duration
	StallInterval   time.Duration
	ExtendInterval  time.Duration
	ShutdownGrace   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency < 1 {
		c.Concurrency = 2
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.PromoteInterval <= 0 {
		c.PromoteInterval = time.Second
	}
	if c.StallInterval <= 0 {
		c.StallInterval = 60 * time.Second
	}
	if c.ExtendInterval <= 0 {
		c.ExtendInterval = 10 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 30 * time.Second
	}
	return c
}

// Metrics receives queue depth and stalled job counts.
type Metrics interface {
	SetQueueBacklog(queue, state string, n int64)
	StalledRecovered(queue string, n int)
}

type nopMetrics struct{}

func (nopMetrics) SetQueueBacklog(string, string, int64) {}
func (nopMetrics) StalledRecovered(string, int)          {}

type Option func(*Worker)

func WithMetrics(m Metrics) Option {
	return func(w *Worker) {
		if m != nil {
			w.metrics = m
		}
	}
}

/*
Worker pulls deliveries from a queue.Consumer and runs each one through the
shared Runner:
	- at most Concurrency attempts are in flight
	- the delivery lock is extended while the attempt runs
	- success acks, failure nacks and the backend decides retry or dead letter
On shutdown it stops fetching and waits up to ShutdownGrace. Attempts still
running after that are abandoned without ack or nack; their locks expire and
stalled recovery hands them out again.
*/
type Worker struct {
	consumer queue.Consumer
	runner   *runtime.Runner
	ledger   jobs.LedgerRepo
	metrics  Metrics
	cfg      Config
	log      *logger.Logger
}

func New(consumer queue.Consumer, runner *runtime.Runner, ledger jobs.LedgerRepo, baseLog *logger.Logger, cfg Config, opts ...Option) *Worker {
	w := &Worker{
		consumer: consumer,
		runner:   runner,
		ledger:   ledger,
		metrics:  nopMetrics{},
		cfg:      cfg.withDefaults(),
		log:      baseLog.With("component", "JobWorker", "queue", consumer.Queue()),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run blocks until ctx is cancelled and in-flight attempts have drained or
// the grace period has passed.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("Starting job worker", "concurrency", w.cfg.Concurrency)

	// Attempts outlive ctx so they can finish during the grace period.
	runCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()

	var maint sync.WaitGroup
	maint.Add(1)
	go func() {
		defer maint.Done()
		w.maintain(ctx)
	}()

	sem := semaphore.NewWeighted(int64(w.cfg.Concurrency))
	var inflight sync.WaitGroup
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		d, err := w.consumer.Fetch(ctx)
		if err != nil || d == nil {
			sem.Release(1)
			if err != nil && ctx.Err() == nil {
				w.log.Warn("Fetch failed", "error", err)
			}
			if !sleep(ctx, w.cfg.PollInterval) {
				break
			}
			continue
		}
		inflight.Add(1)
		go func(d *queue.Delivery) {
			defer inflight.Done()
			defer sem.Release(1)
			w.handle(runCtx, d)
		}(d)
	}

	w.log.Info("Job worker stopping; draining in-flight attempts", "grace", w.cfg.ShutdownGrace.String())
	drained := make(chan struct{})
	go func() {
		inflight.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("Shutdown grace elapsed; abandoning in-flight attempts")
		abort()
		<-drained
	}
	maint.Wait()
	w.log.Info("Job worker stopped")
	return nil
}

func (w *Worker) handle(ctx context.Context, d *queue.Delivery) {
	log := w.log.With("job_id", d.JobID, "job_type", d.Type, "attempt", d.Attempt)

	stopHB := w.startHeartbeat(ctx, log, d)
	result, err := w.runner.Execute(ctx, runtime.JobInfo{
		ID:         d.JobID,
		Queue:      w.consumer.Queue(),
		Type:       d.Type,
		Attempt:    d.Attempt,
		MaxRetries: d.MaxRetries,
		Mode:       runtime.ModeQueue,
	}, d.Payload)
	stopHB()

	if ctx.Err() != nil {
		log.Warn("Attempt abandoned at shutdown; lock left to expire")
		return
	}

	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err == nil {
		if aerr := w.consumer.Ack(settleCtx, d, result); aerr != nil {
			log.Warn("Ack failed", "error", aerr)
		}
		return
	}
	res, nerr := w.consumer.Nack(settleCtx, d, err)
	switch {
	case nerr != nil:
		log.Warn("Nack failed", "error", nerr)
	case res.Retrying:
		log.Info("Attempt failed; retry scheduled", "retry_at", res.RetryAt.UTC().Format(time.RFC3339))
	default:
		log.Warn("Attempt failed; no attempts left", "max_retries", d.MaxRetries)
	}
}

func (w *Worker) startHeartbeat(ctx context.Context, log *logger.Logger, d *queue.Delivery) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.ExtendInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.consumer.Extend(ctx, d); err != nil {
					log.Warn("Lock extend failed", "error", err)
					if errors.Is(err, queue.ErrLockLost) {
						return
					}
				}
			}
		}
	}()
	return func() { close(done) }
}

func (w *Worker) maintain(ctx context.Context) {
	promote := time.NewTicker(w.cfg.PromoteInterval)
	defer promote.Stop()
	stall := time.NewTicker(w.cfg.StallInterval)
	defer stall.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-promote.C:
			if _, err := w.consumer.PromoteDelayed(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("Promote delayed jobs failed", "error", err)
			}
			w.reportBacklog(ctx)
		case <-stall.C:
			w.recoverStalled(ctx)
		}
	}
}

func (w *Worker) recoverStalled(ctx context.Context) {
	stalled, err := w.consumer.RecoverStalled(ctx)
	if err != nil && ctx.Err() == nil {
		w.log.Warn("Stalled recovery failed", "error", err)
	}
	if len(stalled) == 0 {
		return
	}
	w.metrics.StalledRecovered(w.consumer.Queue(), len(stalled))
	for _, s := range stalled {
		if s.Requeued || w.ledger == nil {
			continue
		}
		if err := w.ledger.RecordFailed(dbctx.Context{Ctx: context.WithoutCancel(ctx)}, s.JobID, ErrStalled); err != nil {
			w.log.Warn("Ledger write failed", "op", "record_failed", "job_id", s.JobID, "error", err)
		}
	}
}

func (w *Worker) reportBacklog(ctx context.Context) {
	st, err := w.consumer.Stats(ctx)
	if err != nil {
		return
	}
	q := w.consumer.Queue()
	w.metrics.SetQueueBacklog(q, "waiting", st.Waiting)
	w.metrics.SetQueueBacklog(q, "active", st.Active)
	w.metrics.SetQueueBacklog(q, "delayed", st.Delayed)
	w.metrics.SetQueueBacklog(q, "completed", st.Completed)
	w.metrics.SetQueueBacklog(q, "failed", st.Failed)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
