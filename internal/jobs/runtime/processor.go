package runtime

import (
	"context"
	"fmt"

	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

// Processor is the dispatch table from job type to handler.
type Processor struct {
	reg *Registry
	log *logger.Logger
}

func NewProcessor(reg *Registry, baseLog *logger.Logger) *Processor {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Processor{reg: reg, log: baseLog.With("component", "JobProcessor")}
}

func (p *Processor) Registry() *Registry { return p.reg }

// Process runs the handler for job.Type. Unknown types succeed with a note so
// producers and consumers on different versions never poison the queue.
func (p *Processor) Process(ctx context.Context, job JobInfo, payload map[string]any, progress ProgressFunc) (map[string]any, error) {
	h, ok := p.reg.Get(job.Type)
	if !ok {
		p.log.Warn("Skipping job with unrecognized type", "job_id", job.ID, "job_type", job.Type)
		return map[string]any{
			"skipped": true,
			"note":    fmt.Sprintf("unrecognized job type %q", job.Type),
		}, nil
	}
	res, err := h.Run(NewContext(ctx, job, payload, progress))
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = map[string]any{}
	}
	return res, nil
}
