package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/videocatalog-backend/internal/jobs/dispatch"
	"github.com/yungbote/videocatalog-backend/internal/jobs/worker"
	"github.com/yungbote/videocatalog-backend/internal/observability"
	"github.com/yungbote/videocatalog-backend/internal/queue"
	"github.com/yungbote/videocatalog-backend/internal/temporalx/jobrun"
	"github.com/yungbote/videocatalog-backend/internal/temporalx/temporalworker"
)

// RunWorker consumes the configured durable queue until ctx is cancelled,
// then waits for in-flight attempts within the shutdown grace.
func (a *App) RunWorker(ctx context.Context) error {
	shutdownOTel := observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: a.Cfg.ServiceName + "-worker",
		Environment: a.Cfg.Environment,
	})
	a.onClose(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownOTel(sctx)
	})
	a.Metrics.StartServer(ctx, a.Log, a.Cfg.WorkerMetricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	var producer queue.Producer

	switch a.Cfg.QueueBackend {
	case BackendRedis:
		q, err := a.openRedisQueue(ctx)
		if err != nil {
			return err
		}
		producer = q
		w := worker.New(q, a.Runner, a.Repos.Ledger, a.Log, worker.Config{
			Concurrency:   a.Cfg.WorkerConcurrency,
			StallInterval: a.Cfg.WorkerStallInterval,
			ShutdownGrace: a.Cfg.WorkerShutdownGrace,
		}, worker.WithMetrics(a.Metrics))
		g.Go(func() error { return w.Run(gctx) })

	case BackendTemporal:
		tc, err := a.openTemporal(ctx)
		if err != nil {
			return err
		}
		tw, err := temporalworker.NewRunner(a.Log, tc, a.Cfg.Temporal, a.Runner)
		if err != nil {
			return err
		}
		if err := tw.Start(gctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
		p, err := jobrun.NewProducer(tc, a.Cfg.Temporal.TaskQueue, a.Log)
		if err != nil {
			return err
		}
		producer = p
		g.Go(func() error {
			<-tw.Done()
			return nil
		})

	default:
		if a.Cfg.RecomputeAllInterval <= 0 {
			return fmt.Errorf("worker needs QUEUE_BACKEND=redis or temporal (got %q)", a.Cfg.QueueBackend)
		}
		a.Log.Warn("No queue backend configured; worker only runs the periodic recompute inline")
	}

	if a.Cfg.RecomputeAllInterval > 0 {
		d := dispatch.New(gctx, producer, a.dispatchDeps(), a.Log)
		s := newRecomputeScheduler(a.Log, d, a.Cfg.RecomputeAllInterval)
		g.Go(func() error { return s.Run(gctx) })
	}

	err := g.Wait()
	a.Log.Info("Worker stopped")
	return err
}
