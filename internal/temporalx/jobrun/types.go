package jobrun

const (
	WorkflowName    = "video_job_run"
	ActivityExecute = "video_job_execute"
)

// Input is the workflow and activity argument. The workflow id is the job id.
type Input struct {
	JobID      string         `json:"jobId"`
	Queue      string         `json:"queue"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload"`
	MaxRetries int            `json:"maxRetries"`
	BackoffMs  int64          `json:"backoffMs"`
}
