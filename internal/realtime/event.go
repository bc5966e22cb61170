package realtime

import (
	types "github.com/yungbote/videocatalog-backend/internal/domain"
)

type EventType string

const (
	EventJobEnqueued  EventType = "job.enqueued"
	EventJobStarted   EventType = "job.started"
	EventJobProgress  EventType = "job.progress"
	EventJobSucceeded EventType = "job.succeeded"
	EventJobFailed    EventType = "job.failed"
)

// Event is one job lifecycle transition as seen by live subscribers.
type Event struct {
	Type    EventType       `json:"type"`
	JobID   string          `json:"jobId"`
	Queue   string          `json:"queue,omitempty"`
	JobType string          `json:"jobType,omitempty"`
	Mode    string          `json:"mode,omitempty"`
	Attempt int             `json:"attempt,omitempty"`
	Percent *float64        `json:"percent,omitempty"`
	Result  map[string]any  `json:"result,omitempty"`
	Error   *types.JobError `json:"error,omitempty"`
	At      int64           `json:"at"`
}
