package queue

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDuplicateJob = errors.New("job already exists")
	// ErrLockLost means the delivery's lock expired and the job was handed to
	// stalled recovery; the result of this attempt is discarded.
	ErrLockLost = errors.New("job lock lost")
)

// PushRequest describes a job handed to a durable backend. MaxRetries counts
// total attempts; Backoff is the base of the exponential retry delay.
type PushRequest struct {
	JobID      string
	Type       string
	Payload    map[string]any
	MaxRetries int
	Backoff    time.Duration
}

// Producer is the enqueue side of a durable backend.
type Producer interface {
	Backend() string
	Queue() string
	Push(ctx context.Context, req PushRequest) (string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Delivery is one claimed attempt of a job. Attempt is 1-based.
type Delivery struct {
	JobID      string
	Type       string
	Payload    map[string]any
	Attempt    int
	MaxRetries int
	Backoff    time.Duration
	Token      string
}

// NackResult reports what the backend did with a failed attempt.
type NackResult struct {
	Retrying bool
	RetryAt  time.Time
}

// StalledJob is an active job whose lock expired. Requeued is false when it
// had no attempts left and was moved to the failed set.
type StalledJob struct {
	JobID    string
	Requeued bool
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Consumer is the worker side of a durable backend. Fetch returns (nil, nil)
// when nothing is ready.
type Consumer interface {
	Queue() string
	Fetch(ctx context.Context) (*Delivery, error)
	Extend(ctx context.Context, d *Delivery) error
	Ack(ctx context.Context, d *Delivery, result map[string]any) error
	Nack(ctx context.Context, d *Delivery, cause error) (NackResult, error)
	PromoteDelayed(ctx context.Context) (int, error)
	RecoverStalled(ctx context.Context) ([]StalledJob, error)
	Stats(ctx context.Context) (Stats, error)
}
