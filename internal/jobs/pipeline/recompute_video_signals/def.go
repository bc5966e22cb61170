package recompute_video_signals

import (
	"context"

	videorepo "github.com/yungbote/videocatalog-backend/internal/data/repos/videos"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/relatedness"
)

const JobType = "recomputeVideoSignals"

// SignalEngine is the part of the relatedness engine this job drives.
type SignalEngine interface {
	RecomputeVideo(ctx context.Context, videoID string) (*relatedness.RecomputeResult, error)
	RecomputeAll(ctx context.Context, progress func(done, total int)) (*relatedness.BatchResult, error)
}

type Pipeline struct {
	log    *logger.Logger
	videos videorepo.VideoRepo
	engine SignalEngine
}

func New(baseLog *logger.Logger, videos videorepo.VideoRepo, engine SignalEngine) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", JobType),
		videos: videos,
		engine: engine,
	}
}

func (p *Pipeline) Type() string { return JobType }
