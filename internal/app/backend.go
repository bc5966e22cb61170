package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/videocatalog-backend/internal/queue"
	"github.com/yungbote/videocatalog-backend/internal/queue/redisq"
	"github.com/yungbote/videocatalog-backend/internal/temporalx"
	"github.com/yungbote/videocatalog-backend/internal/temporalx/jobrun"
)

func (a *App) openRedisQueue(ctx context.Context) (*redisq.Queue, error) {
	q, err := redisq.Dial(ctx, a.Cfg.redisQueueConfig(), a.Log)
	if err != nil {
		return nil, fmt.Errorf("open redis queue: %w", err)
	}
	a.onClose(q.Close)
	return q, nil
}

func (a *App) openTemporal(ctx context.Context) (temporalsdkclient.Client, error) {
	tc, err := temporalx.NewClient(ctx, a.Log, a.Cfg.Temporal)
	if err != nil {
		return nil, fmt.Errorf("open temporal client: %w", err)
	}
	if tc == nil {
		return nil, fmt.Errorf("temporal backend selected but TEMPORAL_ADDRESS is empty")
	}
	a.onClose(func() error {
		tc.Close()
		return nil
	})
	return tc, nil
}

// openProducer returns nil for the inline backend.
func (a *App) openProducer(ctx context.Context) (queue.Producer, error) {
	switch a.Cfg.QueueBackend {
	case BackendRedis:
		q, err := a.openRedisQueue(ctx)
		if err != nil {
			return nil, err
		}
		return q, nil
	case BackendTemporal:
		tc, err := a.openTemporal(ctx)
		if err != nil {
			return nil, err
		}
		p, err := jobrun.NewProducer(tc, a.Cfg.Temporal.TaskQueue, a.Log)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, nil
	}
}
