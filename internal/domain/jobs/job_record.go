package jobs

import (
	"gorm.io/datatypes"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const DefaultMaxRetries = 3

// JobRecord is one row of the job ledger. Timestamps are epoch milliseconds.
type JobRecord struct {
	JobID       string         `gorm:"column:job_id;type:varchar(191);primaryKey" json:"jobId"`
	Queue       string         `gorm:"column:queue;not null;index" json:"queue"`
	Type        string         `gorm:"column:type;not null;index" json:"type"`
	Status      string         `gorm:"column:status;not null;index" json:"status"`
	ActorEmail  *string        `gorm:"column:actor_email" json:"actorEmail,omitempty"`
	ActorUserID *string        `gorm:"column:actor_user_id" json:"actorUserId,omitempty"`
	VideoID     *string        `gorm:"column:video_id;index" json:"videoId,omitempty"`
	CreatedAt   int64          `gorm:"column:created_at;not null;index;autoCreateTime:false" json:"createdAt"`
	StartedAt   *int64         `gorm:"column:started_at" json:"startedAt,omitempty"`
	FinishedAt  *int64         `gorm:"column:finished_at;index" json:"finishedAt,omitempty"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	MaxRetries  int            `gorm:"column:max_retries;not null;default:3" json:"maxRetries"`
	Payload     datatypes.JSON `gorm:"column:payload" json:"payload"`
	Result      datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	Error       datatypes.JSON `gorm:"column:error" json:"error,omitempty"`
}

func (JobRecord) TableName() string { return "queue_job" }

// Actor identifies who triggered a job, for auditing.
type Actor struct {
	Email  string `json:"email,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// JobError is the serialized failure stored on a ledger row.
type JobError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Code    string `json:"code,omitempty"`
}

// CodedError attaches a machine readable code to an error; the code is
// carried into the ledger's error document.
type CodedError struct {
	ErrCode string
	Err     error
}

func (e *CodedError) Error() string {
	if e == nil || e.Err == nil {
		return e.Code()
	}
	return e.Err.Error()
}

func (e *CodedError) Unwrap() error { return e.Err }

func (e *CodedError) Code() string {
	if e == nil {
		return ""
	}
	return e.ErrCode
}

func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &CodedError{ErrCode: code, Err: err}
}
