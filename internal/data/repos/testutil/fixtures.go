package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
)

type VideoSeed struct {
	ID        string
	Title     string
	Tags      []string
	Published bool
	Source    string
	EmbedURL  string
	Metadata  map[string]any
	CreatedAt time.Time
}

func SeedVideo(tb testing.TB, ctx context.Context, tx *gorm.DB, seed VideoSeed) *types.Video {
	tb.Helper()
	if seed.ID == "" {
		seed.ID = uuid.NewString()
	}
	if seed.Title == "" {
		seed.Title = "video " + seed.ID
	}
	if seed.CreatedAt.IsZero() {
		seed.CreatedAt = time.Now().UTC()
	}
	tags, err := json.Marshal(seed.Tags)
	if err != nil {
		tb.Fatalf("seed video tags: %v", err)
	}
	meta := datatypes.JSON([]byte("{}"))
	if seed.Metadata != nil {
		b, err := json.Marshal(seed.Metadata)
		if err != nil {
			tb.Fatalf("seed video metadata: %v", err)
		}
		meta = datatypes.JSON(b)
	}
	v := &types.Video{
		ID:        seed.ID,
		Title:     seed.Title,
		Tags:      datatypes.JSON(tags),
		Published: seed.Published,
		Source:    seed.Source,
		EmbedURL:  seed.EmbedURL,
		Metadata:  meta,
		CreatedAt: seed.CreatedAt,
		UpdatedAt: seed.CreatedAt,
	}
	if err := tx.WithContext(ctx).Create(v).Error; err != nil {
		tb.Fatalf("seed video: %v", err)
	}
	return v
}

// SetTags replaces the tag list of a seeded video.
func SetTags(tb testing.TB, ctx context.Context, tx *gorm.DB, videoID string, tags []string) {
	tb.Helper()
	b, err := json.Marshal(tags)
	if err != nil {
		tb.Fatalf("marshal tags: %v", err)
	}
	if err := tx.WithContext(ctx).Model(&types.Video{}).Where("id = ?", videoID).Update("tags", datatypes.JSON(b)).Error; err != nil {
		tb.Fatalf("set tags: %v", err)
	}
}

func PtrString(v string) *string { return &v }
