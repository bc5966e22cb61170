package app

import (
	"context"
	"time"

	"github.com/yungbote/videocatalog-backend/internal/jobs/dispatch"
	recompute "github.com/yungbote/videocatalog-backend/internal/jobs/pipeline/recompute_video_signals"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

const schedulerActor = "scheduler"

// recomputeScheduler triggers a full-catalog recompute on a fixed interval.
// A tick that fires while the previous trigger is still running is skipped.
type recomputeScheduler struct {
	log        *logger.Logger
	dispatcher dispatch.Dispatcher
	interval   time.Duration
	now        func() time.Time
}

func newRecomputeScheduler(log *logger.Logger, dispatcher dispatch.Dispatcher, interval time.Duration) *recomputeScheduler {
	return &recomputeScheduler{
		log:        log.With("component", "RecomputeScheduler"),
		dispatcher: dispatcher,
		interval:   interval,
		now:        time.Now,
	}
}

func (s *recomputeScheduler) Run(ctx context.Context) error {
	s.log.Info("Periodic recompute enabled", "interval", s.interval.String(), "mode", s.dispatcher.Mode())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.trigger(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Periodic recompute trigger failed", "error", err)
			}
		}
	}
}

func (s *recomputeScheduler) trigger(ctx context.Context) (*dispatch.Receipt, error) {
	rc, err := s.dispatcher.Enqueue(ctx, dispatch.Request{
		Type: recompute.JobType,
		Payload: map[string]any{
			"triggeredBy": schedulerActor,
			"ts":          s.now().UnixMilli(),
		},
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Periodic recompute triggered", "job_id", rc.JobID, "mode", rc.Mode)
	return rc, nil
}
