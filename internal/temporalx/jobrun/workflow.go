package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/videocatalog-backend/internal/queue"
)

// RetryPolicy maps the job's retry settings onto Temporal: MaxRetries is the
// total attempt count and the interval doubles from the backoff base.
func RetryPolicy(in Input) *temporal.RetryPolicy {
	attempts := in.MaxRetries
	if attempts < 1 {
		attempts = 3
	}
	base := time.Duration(in.BackoffMs) * time.Millisecond
	if base <= 0 {
		base = queue.DefaultBackoffBase
	}
	return &temporal.RetryPolicy{
		InitialInterval:    base,
		BackoffCoefficient: 2,
		MaximumInterval:    queue.DefaultBackoffMax,
		MaximumAttempts:    int32(attempts),
	}
}

func Workflow(ctx workflow.Context, in Input) (map[string]any, error) {
	if strings.TrimSpace(in.JobID) == "" {
		in.JobID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	if strings.TrimSpace(in.Type) == "" {
		return nil, fmt.Errorf("jobrun: missing job type")
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Hour,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         RetryPolicy(in),
	})

	var out map[string]any
	if err := workflow.ExecuteActivity(ctx, ActivityExecute, in).Get(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
