package app

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	videorepo "github.com/yungbote/videocatalog-backend/internal/data/repos/videos"
	recompute "github.com/yungbote/videocatalog-backend/internal/jobs/pipeline/recompute_video_signals"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/realtime/bus"
	"github.com/yungbote/videocatalog-backend/internal/relatedness"
)

type Repos struct {
	Ledger jobs.LedgerRepo
	Videos videorepo.VideoRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger, cfg Config) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Ledger: jobs.NewLedgerRepo(db, log, jobs.WithRecentMax(cfg.RecentJobsMax)),
		Videos: videorepo.NewVideoRepo(db, log),
	}
}

// wireBus prefers Redis pub/sub so worker events reach the server's SSE
// clients. An unreachable Redis degrades to an in-process bus.
func wireBus(log *logger.Logger, cfg Config) bus.Bus {
	if strings.TrimSpace(cfg.QueueRedisURL) == "" {
		return bus.NewMemoryBus(log)
	}
	b, err := bus.NewRedisBus(log, cfg.QueueRedisURL, cfg.EventsChannel)
	if err != nil {
		log.Warn("Redis event bus unavailable; using in-process bus", "error", err)
		return bus.NewMemoryBus(log)
	}
	return b
}

func loadWeights(log *logger.Logger, path string) (*relatedness.Weights, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return relatedness.DefaultWeights(), nil
	}
	w, err := relatedness.LoadWeights(path)
	if err != nil {
		return nil, fmt.Errorf("load tag weights: %w", err)
	}
	log.Info("Loaded tag weight overrides", "path", path)
	return w, nil
}

func wireRegistry(log *logger.Logger, repos Repos, engine *relatedness.Engine) (*runtime.Registry, error) {
	reg := runtime.NewRegistry()
	if err := reg.Register(recompute.New(log, repos.Videos, engine)); err != nil {
		return nil, fmt.Errorf("register %s: %w", recompute.JobType, err)
	}
	return reg, nil
}
