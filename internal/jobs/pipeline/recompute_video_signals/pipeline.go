package recompute_video_signals

import (
	"fmt"

	jobrt "github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) (map[string]any, error) {
	if jc == nil {
		return nil, fmt.Errorf("nil job context")
	}
	videoID, ok := jc.PayloadString("videoId", "id")
	if !ok {
		return p.runAll(jc)
	}

	jc.Progress(10)
	dbc := dbctx.Context{Ctx: jc.Ctx}
	v, err := p.videos.GetByID(dbc, videoID)
	if err != nil {
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	if v == nil {
		p.log.Info("Video not found; nothing to recompute", "video_id", videoID, "job_id", jc.Job.ID)
		return map[string]any{"videoId": videoID, "found": false, "processed": 0}, nil
	}

	fields := DerivePlayback(v)
	jc.Progress(40)
	if err := p.videos.UpdateDenormalizedFields(dbc, v.ID, fields); err != nil {
		return nil, fmt.Errorf("update playback fields: %w", err)
	}

	jc.Progress(70)
	res, err := p.engine.RecomputeVideo(jc.Ctx, v.ID)
	if err != nil {
		return nil, err
	}
	jc.Progress(90)

	out := map[string]any{
		"videoId":   v.ID,
		"found":     true,
		"processed": res.Processed,
		"tags":      res.Tags,
		"score":     res.Score,
		"src":       fields.Src,
	}
	if fields.Duration != nil {
		out["duration"] = *fields.Duration
	}
	if fields.Width != nil {
		out["width"] = *fields.Width
	}
	if fields.Height != nil {
		out["height"] = *fields.Height
	}
	return out, nil
}

// runAll recomputes every published video. Individual failures are reported
// in the result; only a failed listing fails the job.
func (p *Pipeline) runAll(jc *jobrt.Context) (map[string]any, error) {
	jc.Progress(10)
	batch, err := p.engine.RecomputeAll(jc.Ctx, func(done, total int) {
		if total > 0 {
			jc.Progress(10 + 80*float64(done)/float64(total))
		}
	})
	if err != nil {
		return nil, err
	}
	if batch.Failed > 0 {
		p.log.Warn("Recompute-all finished with failures", "job_id", jc.Job.ID, "processed", batch.Processed, "failed", batch.Failed)
	}
	failed := batch.FailedVideoIDs
	if failed == nil {
		failed = []string{}
	}
	return map[string]any{
		"scope":          "all",
		"processed":      batch.Processed,
		"failed":         batch.Failed,
		"failedVideoIds": failed,
	}, nil
}
