package relatedness

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
)

const (
	DefaultRelatedLimit = 6
	MaxRelatedLimit     = 50
)

type Signals struct {
	VideoID string             `json:"videoId"`
	Score   *float64           `json:"score"`
	Signals []*types.TagSignal `json:"signals"`
	Weights []*types.TagWeight `json:"weights"`
}

// SignalsForVideo returns the derived rows of a video, newest first.
func (e *Engine) SignalsForVideo(ctx context.Context, videoID string) (*Signals, error) {
	ctx, span := tracer.Start(ctx, "relatedness.SignalsForVideo")
	defer span.End()

	db := e.db.WithContext(ctx)
	out := &Signals{VideoID: videoID, Signals: []*types.TagSignal{}, Weights: []*types.TagWeight{}}
	if err := db.Where("video_id = ?", videoID).
		Order("created_at DESC").Order("id DESC").
		Find(&out.Signals).Error; err != nil {
		return nil, fmt.Errorf("load signals: %w", err)
	}
	if err := db.Where("video_id = ?", videoID).
		Order("created_at DESC").Order("id DESC").
		Find(&out.Weights).Error; err != nil {
		return nil, fmt.Errorf("load tag weights: %w", err)
	}
	var scores []types.VideoScore
	if err := db.Where("video_id = ?", videoID).Limit(1).Find(&scores).Error; err != nil {
		return nil, fmt.Errorf("load score: %w", err)
	}
	if len(scores) == 1 {
		s := scores[0].Score
		out.Score = &s
	}
	return out, nil
}

type RelatedVideo struct {
	*types.Video
	RelatedScore float64 `json:"relatedScore"`
	Score        float64 `json:"score"`
}

type Related struct {
	VideoID  string          `json:"videoId"`
	Fallback bool            `json:"fallback"`
	Videos   []*RelatedVideo `json:"videos"`
}

type rankedRow struct {
	VideoID      string
	RelatedScore float64
	Score        float64
}

// RelatedVideos ranks published videos by the summed weight of tags shared
// with videoID. When nothing shares a tag (or the video is unknown) it falls
// back to the highest scored published videos.
func (e *Engine) RelatedVideos(ctx context.Context, videoID string, limit int) (*Related, error) {
	ctx, span := tracer.Start(ctx, "relatedness.RelatedVideos")
	defer span.End()

	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	if limit > MaxRelatedLimit {
		limit = MaxRelatedLimit
	}
	span.SetAttributes(attribute.String("video.id", videoID), attribute.Int("limit", limit))

	db := e.db.WithContext(ctx)
	var rows []rankedRow
	err := db.Raw(`
SELECT tw.video_id AS video_id,
       SUM(tw.weight) AS related_score,
       COALESCE(MAX(vs.score), 0) AS score
FROM tag_weight tw
JOIN tag_weight src ON LOWER(src.tag) = LOWER(tw.tag) AND src.video_id = ?
JOIN videos v ON v.id = tw.video_id AND v.published = ?
LEFT JOIN video_score vs ON vs.video_id = tw.video_id
WHERE tw.video_id <> ?
GROUP BY tw.video_id
ORDER BY related_score DESC, MAX(v.created_at) DESC
LIMIT ?`, videoID, true, videoID, limit).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("rank related videos: %w", err)
	}

	out := &Related{VideoID: videoID}
	if len(rows) == 0 {
		out.Fallback = true
		err = db.Raw(`
SELECT v.id AS video_id,
       0 AS related_score,
       COALESCE(vs.score, 0) AS score
FROM videos v
LEFT JOIN video_score vs ON vs.video_id = v.id
WHERE v.published = ? AND v.id <> ?
ORDER BY COALESCE(vs.score, 0) DESC, v.created_at DESC
LIMIT ?`, true, videoID, limit).Scan(&rows).Error
		if err != nil {
			return nil, fmt.Errorf("rank fallback videos: %w", err)
		}
	}
	span.SetAttributes(attribute.Bool("fallback", out.Fallback), attribute.Int("results", len(rows)))

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.VideoID)
	}
	vids, err := e.videos.GetByIDs(dbctx.Context{Ctx: ctx}, ids)
	if err != nil {
		return nil, fmt.Errorf("load related videos: %w", err)
	}
	byID := make(map[string]*types.Video, len(vids))
	for _, v := range vids {
		byID[v.ID] = v
	}

	out.Videos = make([]*RelatedVideo, 0, len(rows))
	for _, r := range rows {
		v, ok := byID[r.VideoID]
		if !ok {
			continue
		}
		out.Videos = append(out.Videos, &RelatedVideo{Video: v, RelatedScore: r.RelatedScore, Score: r.Score})
	}
	return out, nil
}
