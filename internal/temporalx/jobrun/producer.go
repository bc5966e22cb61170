package jobrun

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/queue"
)

const BackendName = "temporal"

// Producer starts one workflow per job on the task queue.
type Producer struct {
	tc        temporalsdkclient.Client
	taskQueue string
	log       *logger.Logger
}

var _ queue.Producer = (*Producer)(nil)

func NewProducer(tc temporalsdkclient.Client, taskQueue string, baseLog *logger.Logger) (*Producer, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if strings.TrimSpace(taskQueue) == "" {
		return nil, fmt.Errorf("temporal task queue required")
	}
	return &Producer{
		tc:        tc,
		taskQueue: taskQueue,
		log:       baseLog.With("component", "TemporalProducer", "task_queue", taskQueue),
	}, nil
}

func (p *Producer) Backend() string { return BackendName }
func (p *Producer) Queue() string   { return p.taskQueue }

func (p *Producer) Ping(ctx context.Context) error {
	_, err := p.tc.CheckHealth(ctx, &temporalsdkclient.CheckHealthRequest{})
	return err
}

func (p *Producer) Close() error {
	p.tc.Close()
	return nil
}

func (p *Producer) Push(ctx context.Context, req queue.PushRequest) (string, error) {
	if strings.TrimSpace(req.Type) == "" {
		return "", fmt.Errorf("job type required")
	}
	id := strings.TrimSpace(req.JobID)
	if id == "" {
		id = uuid.NewString()
	}
	in := Input{
		JobID:      id,
		Queue:      p.taskQueue,
		Type:       req.Type,
		Payload:    req.Payload,
		MaxRetries: req.MaxRetries,
		BackoffMs:  req.Backoff.Milliseconds(),
	}
	_, err := p.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                                       id,
		TaskQueue:                                p.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}, WorkflowName, in)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return "", fmt.Errorf("%w: %s", queue.ErrDuplicateJob, id)
		}
		return "", fmt.Errorf("start workflow: %w", err)
	}
	p.log.Debug("Workflow started", "job_id", id, "job_type", req.Type)
	return id, nil
}
