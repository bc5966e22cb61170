package relatedness

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	videorepo "github.com/yungbote/videocatalog-backend/internal/data/repos/videos"
	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

var tracer = otel.Tracer("github.com/yungbote/videocatalog-backend/internal/relatedness")

// Engine owns the tag_signal, tag_weight and video_score tables.
type Engine struct {
	db      *gorm.DB
	videos  videorepo.VideoRepo
	weights *Weights
	log     *logger.Logger
	now     func() time.Time
}

type EngineOption func(*Engine)

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(db *gorm.DB, videos videorepo.VideoRepo, weights *Weights, baseLog *logger.Logger, opts ...EngineOption) *Engine {
	if weights == nil {
		weights = DefaultWeights()
	}
	e := &Engine{
		db:      db,
		videos:  videos,
		weights: weights,
		log:     baseLog.With("component", "RelatednessEngine"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type RecomputeResult struct {
	VideoID   string  `json:"videoId"`
	Processed int     `json:"processed"`
	Tags      int     `json:"tags"`
	Score     float64 `json:"score"`
}

type BatchResult struct {
	Processed      int      `json:"processed"`
	Failed         int      `json:"failed"`
	FailedVideoIDs []string `json:"failedVideoIds,omitempty"`
}

// RecomputeVideo replaces every derived row of one video. A missing video is
// not an error; it reports zero processed.
func (e *Engine) RecomputeVideo(ctx context.Context, videoID string) (*RecomputeResult, error) {
	ctx, span := tracer.Start(ctx, "relatedness.RecomputeVideo")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", videoID))

	res := &RecomputeResult{VideoID: videoID}
	v, err := e.videos.GetByID(dbctx.Context{Ctx: ctx}, videoID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load video %s: %w", videoID, err)
	}
	if v == nil {
		return res, nil
	}

	tags, score := derive(v.TagList(), e.weights)
	if err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return e.replace(tx, v.ID, tags, score)
	}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("recompute video %s: %w", videoID, err)
	}

	res.Processed = 1
	res.Tags = len(tags)
	res.Score = score
	return res, nil
}

// replace runs inside one transaction so readers never observe a video whose
// signals are deleted but not yet reinserted.
func (e *Engine) replace(tx *gorm.DB, videoID string, tags []derivedTag, score float64) error {
	for _, model := range []any{&types.TagSignal{}, &types.TagWeight{}, &types.VideoScore{}} {
		if err := tx.Where("video_id = ?", videoID).Delete(model).Error; err != nil {
			return err
		}
	}

	now := e.now().UnixMilli()
	if len(tags) > 0 {
		signals := make([]*types.TagSignal, 0, len(tags))
		weights := make([]*types.TagWeight, 0, len(tags))
		for _, t := range tags {
			signals = append(signals, &types.TagSignal{
				VideoID:    videoID,
				SignalType: "tag:" + t.Tag,
				Score:      t.Weight,
				CreatedAt:  now,
			})
			weights = append(weights, &types.TagWeight{
				VideoID:   videoID,
				Tag:       t.Tag,
				Weight:    t.Weight,
				CreatedAt: now,
			})
		}
		if err := tx.Create(&signals).Error; err != nil {
			return err
		}
		if err := tx.Create(&weights).Error; err != nil {
			return err
		}
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"score", "created_at"}),
	}).Create(&types.VideoScore{VideoID: videoID, Score: score, CreatedAt: now}).Error
}

// RecomputeAll recomputes every published video independently. Per-video
// failures are collected, not returned; only the listing itself can fail.
func (e *Engine) RecomputeAll(ctx context.Context, progress func(done, total int)) (*BatchResult, error) {
	ctx, span := tracer.Start(ctx, "relatedness.RecomputeAll")
	defer span.End()

	published, err := e.videos.ListPublished(dbctx.Context{Ctx: ctx})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list published videos: %w", err)
	}

	out := &BatchResult{}
	for i, v := range published {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, rerr := e.RecomputeVideo(ctx, v.ID)
		switch {
		case rerr != nil:
			out.Failed++
			out.FailedVideoIDs = append(out.FailedVideoIDs, v.ID)
			e.log.Warn("Recompute failed for video; continuing batch", "video_id", v.ID, "error", rerr)
		case res.Processed > 0:
			out.Processed += res.Processed
		}
		if progress != nil {
			progress(i+1, len(published))
		}
	}
	span.SetAttributes(
		attribute.Int("videos.total", len(published)),
		attribute.Int("videos.processed", out.Processed),
		attribute.Int("videos.failed", out.Failed),
	)
	return out, nil
}
