package recompute_video_signals

import (
	"context"
	"encoding/json"
	"testing"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/testutil"
	videorepo "github.com/yungbote/videocatalog-backend/internal/data/repos/videos"
	types "github.com/yungbote/videocatalog-backend/internal/domain"
	jobrt "github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/relatedness"
)

func newPipeline(t *testing.T) (*Pipeline, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	videos := videorepo.NewVideoRepo(db, log)
	return New(log, videos, relatedness.NewEngine(db, videos, relatedness.DefaultWeights(), log)), db
}

func run(t *testing.T, p *Pipeline, payload map[string]any) (map[string]any, []float64) {
	t.Helper()
	var progress []float64
	jc := jobrt.NewContext(context.Background(), jobrt.JobInfo{ID: "test-job", Type: JobType, Attempt: 1}, payload, func(pct float64) {
		progress = append(progress, pct)
	})
	res, err := p.Run(jc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res, progress
}

func loadVideo(t *testing.T, db *gorm.DB, id string) *types.Video {
	t.Helper()
	var v types.Video
	if err := db.Where("id = ?", id).Take(&v).Error; err != nil {
		t.Fatalf("load video %s: %v", id, err)
	}
	return &v
}

func TestRunSingleVideo(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()
	testutil.SeedVideo(t, ctx, db, testutil.VideoSeed{
		ID:        "v1",
		Tags:      []string{"trending", "cats"},
		Published: true,
		EmbedURL:  "https://player.example.com/v1",
		Metadata:  map[string]any{"duration": 12.5, "width": "1280", "height": "NaN"},
	})
	if err := db.Model(&types.Video{}).Where("id = ?", "v1").Update("height", 720).Error; err != nil {
		t.Fatalf("set height: %v", err)
	}

	res, progress := run(t, p, map[string]any{"videoId": "v1"})
	if res["found"] != true || res["processed"] != 1 || res["score"] != float64(4) {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := []float64{10, 40, 70, 90}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress = %v, want %v", progress, want)
		}
	}

	v := loadVideo(t, db, "v1")
	if v.Src != "https://player.example.com/v1" {
		t.Fatalf("expected embed url fallback, got %q", v.Src)
	}
	if v.Duration == nil || *v.Duration != 12.5 {
		t.Fatalf("unexpected duration: %v", v.Duration)
	}
	if v.Width == nil || *v.Width != 1280 {
		t.Fatalf("unexpected width: %v", v.Width)
	}
	if v.Height == nil || *v.Height != 720 {
		t.Fatalf("non-finite height must leave stored value, got %v", v.Height)
	}

	var scores []types.VideoScore
	if err := db.Where("video_id = ?", "v1").Find(&scores).Error; err != nil || len(scores) != 1 || scores[0].Score != 4 {
		t.Fatalf("unexpected scores: %+v %v", scores, err)
	}
}

func TestRunAcceptsLegacyIDKey(t *testing.T) {
	p, db := newPipeline(t)
	testutil.SeedVideo(t, context.Background(), db, testutil.VideoSeed{ID: "v2", Source: "https://cdn.example.com/v2.mp4", EmbedURL: "https://e", Published: true})

	res, _ := run(t, p, map[string]any{"id": "v2"})
	if res["videoId"] != "v2" || res["src"] != "https://cdn.example.com/v2.mp4" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunMissingVideo(t *testing.T) {
	p, _ := newPipeline(t)
	res, _ := run(t, p, map[string]any{"videoId": "ghost"})
	if res["found"] != false || res["processed"] != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestRunAllWithoutVideoID(t *testing.T) {
	p, db := newPipeline(t)
	ctx := context.Background()
	testutil.SeedVideo(t, ctx, db, testutil.VideoSeed{ID: "a", Tags: []string{"featured"}, Published: true})
	testutil.SeedVideo(t, ctx, db, testutil.VideoSeed{ID: "b", Tags: []string{"x"}, Published: true})
	testutil.SeedVideo(t, ctx, db, testutil.VideoSeed{ID: "draft", Tags: []string{"x"}, Published: false})

	res, progress := run(t, p, map[string]any{"triggeredBy": "ops@example.com"})
	if res["scope"] != "all" || res["processed"] != 2 || res["failed"] != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if ids, ok := res["failedVideoIds"].([]string); !ok || len(ids) != 0 {
		t.Fatalf("expected empty failedVideoIds, got %#v", res["failedVideoIds"])
	}
	if last := progress[len(progress)-1]; last != 90 {
		t.Fatalf("expected final progress 90, got %v", last)
	}
}

func TestDerivePlayback(t *testing.T) {
	meta := func(m map[string]any) datatypes.JSON {
		b, _ := json.Marshal(m)
		return datatypes.JSON(b)
	}
	cases := []struct {
		name      string
		video     types.Video
		src       string
		duration  *float64
		width     *int
		heightNil bool
	}{
		{
			name:      "explicit source wins",
			video:     types.Video{Source: " https://s ", EmbedURL: "https://e", Metadata: meta(map[string]any{"duration": "30"})},
			src:       "https://s",
			duration:  ptrFloat(30),
			heightNil: true,
		},
		{
			name:      "embed fallback and rounding",
			video:     types.Video{EmbedURL: "https://e", Metadata: meta(map[string]any{"width": 639.6, "height": "abc"})},
			src:       "https://e",
			width:     ptrInt(640),
			heightNil: true,
		},
		{
			name:      "keeps existing src",
			video:     types.Video{Src: "https://old", Metadata: meta(map[string]any{"duration": "Inf"})},
			src:       "https://old",
			heightNil: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DerivePlayback(&tc.video)
			if got.Src != tc.src {
				t.Fatalf("src = %q, want %q", got.Src, tc.src)
			}
			if (got.Duration == nil) != (tc.duration == nil) || (got.Duration != nil && *got.Duration != *tc.duration) {
				t.Fatalf("duration = %v, want %v", got.Duration, tc.duration)
			}
			if (got.Width == nil) != (tc.width == nil) || (got.Width != nil && *got.Width != *tc.width) {
				t.Fatalf("width = %v, want %v", got.Width, tc.width)
			}
			if tc.heightNil && got.Height != nil {
				t.Fatalf("expected nil height, got %v", *got.Height)
			}
		})
	}
}

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }
