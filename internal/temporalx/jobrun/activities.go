package jobrun

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

type Activities struct {
	Log    *logger.Logger
	Runner *runtime.Runner
}

// Execute runs one attempt. Temporal's attempt counter is 1-based and is the
// attempt number recorded in the ledger.
func (a *Activities) Execute(ctx context.Context, in Input) (map[string]any, error) {
	if a == nil || a.Runner == nil {
		return nil, fmt.Errorf("jobrun: activity not configured")
	}
	info := activity.GetInfo(ctx)
	if a.Log != nil {
		a.Log.Debug("Temporal activity attempt", "job_id", in.JobID, "job_type", in.Type, "attempt", info.Attempt)
	}

	stopHB := startHeartbeat(ctx)
	defer stopHB()

	return a.Runner.Execute(ctx, runtime.JobInfo{
		ID:         in.JobID,
		Queue:      in.Queue,
		Type:       in.Type,
		Attempt:    int(info.Attempt),
		MaxRetries: in.MaxRetries,
		Mode:       runtime.ModeQueue,
	}, in.Payload)
}

func startHeartbeat(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(10 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				activity.RecordHeartbeat(ctx)
			}
		}
	}()
	return func() { close(done) }
}
