package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	"github.com/yungbote/videocatalog-backend/internal/data/repos/testutil"
	videorepo "github.com/yungbote/videocatalog-backend/internal/data/repos/videos"
	types "github.com/yungbote/videocatalog-backend/internal/domain"
	httpH "github.com/yungbote/videocatalog-backend/internal/http/handlers"
	httpMW "github.com/yungbote/videocatalog-backend/internal/http/middleware"
	"github.com/yungbote/videocatalog-backend/internal/jobs/dispatch"
	recompute "github.com/yungbote/videocatalog-backend/internal/jobs/pipeline/recompute_video_signals"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/observability"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/relatedness"
)

type failingDispatcher struct{}

func (failingDispatcher) Mode() string { return runtime.ModeQueue }

func (failingDispatcher) Enqueue(context.Context, dispatch.Request) (*dispatch.Receipt, error) {
	return nil, errors.New("redis: connection refused")
}

type testApp struct {
	router *gin.Engine
	db     *gorm.DB
	ledger jobs.LedgerRepo
	engine *relatedness.Engine
}

func newTestApp(t *testing.T, override dispatch.Dispatcher) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := testutil.Logger(t)
	db := testutil.DB(t)

	ledger := jobs.NewLedgerRepo(db, log)
	videos := videorepo.NewVideoRepo(db, log)
	engine := relatedness.NewEngine(db, videos, relatedness.DefaultWeights(), log)

	reg := runtime.NewRegistry()
	if err := reg.Register(recompute.New(log, videos, engine)); err != nil {
		t.Fatalf("register: %v", err)
	}
	runner := runtime.NewRunner(runtime.NewProcessor(reg, log), ledger, log)

	var d dispatch.Dispatcher = dispatch.NewInline(dispatch.Deps{Ledger: ledger, Runner: runner}, log)
	if override != nil {
		d = override
	}

	router := NewRouter(RouterConfig{
		Log:             log,
		Metrics:         observability.NewMetrics(),
		AdminMiddleware: httpMW.NewAdminMiddleware([]string{"ops@example.com"}),
		QueueHandler:    httpH.NewQueueHandler(log, d, ledger),
		VideoHandler:    httpH.NewVideoHandler(engine),
		HealthHandler:   httpH.NewHealthHandler(),
	})
	return &testApp{router: router, db: db, ledger: ledger, engine: engine}
}

func (a *testApp) do(t *testing.T, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

var admin = map[string]string{httpMW.HeaderUserEmail: "ops@example.com", httpMW.HeaderUserID: "u-ops"}

func TestHealthcheck(t *testing.T) {
	a := newTestApp(t, nil)
	w := a.do(t, http.MethodGet, "/healthcheck", "", nil)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck = %d %q", w.Code, w.Body.String())
	}
}

func TestQueueRoutesRequireAdmin(t *testing.T) {
	a := newTestApp(t, nil)

	if w := a.do(t, http.MethodPost, "/api/queues/video/recompute", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", w.Code)
	}
	viewer := map[string]string{httpMW.HeaderUserEmail: "viewer@example.com", httpMW.HeaderUserRole: "viewer"}
	if w := a.do(t, http.MethodGet, "/api/queues/jobs/recent", "", viewer); w.Code != http.StatusForbidden {
		t.Fatalf("viewer = %d", w.Code)
	}
	byRole := map[string]string{httpMW.HeaderUserID: "u2", httpMW.HeaderUserRole: "admin"}
	if w := a.do(t, http.MethodGet, "/api/queues/jobs/recent", "", byRole); w.Code != http.StatusOK {
		t.Fatalf("admin role = %d", w.Code)
	}
}

func TestRecomputeInline(t *testing.T) {
	a := newTestApp(t, nil)
	testutil.SeedVideo(t, context.Background(), a.db, testutil.VideoSeed{ID: "v1", Tags: []string{"featured"}, Published: true})

	w := a.do(t, http.MethodPost, "/api/queues/video/recompute", `{"id":"v1"}`, admin)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["enqueued"] != true || body["mode"] != runtime.ModeInline {
		t.Fatalf("body = %v", body)
	}
	jobID, _ := body["jobId"].(string)

	rec, err := a.ledger.GetByID(dbctx.Context{Ctx: context.Background()}, jobID)
	if err != nil || rec == nil {
		t.Fatalf("GetByID: %v %v", rec, err)
	}
	if rec.Status != types.JobStatusSucceeded || rec.ActorEmail == nil || *rec.ActorEmail != "ops@example.com" {
		t.Fatalf("row = %+v", rec)
	}
	if rec.VideoID == nil || *rec.VideoID != "v1" {
		t.Fatalf("video id = %v", rec.VideoID)
	}
	var payload map[string]any
	_ = json.Unmarshal(rec.Payload, &payload)
	if payload["triggeredBy"] != "ops@example.com" || payload["videoId"] != "v1" || payload["ts"] == nil {
		t.Fatalf("payload = %v", payload)
	}

	w = a.do(t, http.MethodGet, "/api/queues/jobs/"+jobID, "", admin)
	if w.Code != http.StatusOK {
		t.Fatalf("get job = %d", w.Code)
	}
	w = a.do(t, http.MethodGet, "/api/videos/v1/signals", "", nil)
	if decodeBody(t, w)["score"] != 5.0 {
		t.Fatalf("signals = %s", w.Body.String())
	}
}

func TestRecomputeEnqueueFailure(t *testing.T) {
	a := newTestApp(t, failingDispatcher{})
	w := a.do(t, http.MethodPost, "/api/queues/video/recompute", "", admin)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	errDoc, _ := decodeBody(t, w)["error"].(map[string]any)
	if errDoc["message"] != "failed to enqueue job" {
		t.Fatalf("error = %v", errDoc)
	}
}

func TestRecomputeRejectsBadBody(t *testing.T) {
	a := newTestApp(t, nil)
	if w := a.do(t, http.MethodPost, "/api/queues/video/recompute", `{"id":`, admin); w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestJobReads(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := dbctx.Context{Ctx: context.Background()}
	for _, id := range []string{"j1", "j2"} {
		if err := a.ledger.RecordEnqueued(ctx, jobs.EnqueuedRecord{JobID: id, Queue: "video", Type: recompute.JobType}); err != nil {
			t.Fatalf("RecordEnqueued: %v", err)
		}
	}

	w := a.do(t, http.MethodGet, "/api/queues/jobs/recent?limit=1", "", admin)
	list, _ := decodeBody(t, w)["jobs"].([]any)
	if w.Code != http.StatusOK || len(list) != 1 {
		t.Fatalf("recent = %d %s", w.Code, w.Body.String())
	}
	if w := a.do(t, http.MethodGet, "/api/queues/jobs/recent?limit=x", "", admin); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", w.Code)
	}
	if w := a.do(t, http.MethodGet, "/api/queues/jobs/missing", "", admin); w.Code != http.StatusNotFound {
		t.Fatalf("missing job = %d", w.Code)
	}

	w = a.do(t, http.MethodGet, "/api/queues/metrics", "", admin)
	body := decodeBody(t, w)
	m, _ := body["metrics"].(map[string]any)
	if body["mode"] != runtime.ModeInline || m["total"] != 2.0 {
		t.Fatalf("metrics = %v", body)
	}
}

func TestRelatedEndpoint(t *testing.T) {
	a := newTestApp(t, nil)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	testutil.SeedVideo(t, ctx, a.db, testutil.VideoSeed{ID: "src", Tags: []string{"featured", "cats"}, Published: true, CreatedAt: base})
	testutil.SeedVideo(t, ctx, a.db, testutil.VideoSeed{ID: "match", Tags: []string{"cats"}, Published: true, CreatedAt: base.Add(time.Hour)})
	testutil.SeedVideo(t, ctx, a.db, testutil.VideoSeed{ID: "other", Tags: []string{"dogs"}, Published: true, CreatedAt: base.Add(2 * time.Hour)})
	if _, err := a.engine.RecomputeAll(ctx, nil); err != nil {
		t.Fatalf("RecomputeAll: %v", err)
	}

	w := a.do(t, http.MethodGet, "/api/videos/src/related", "", nil)
	body := decodeBody(t, w)
	videos, _ := body["videos"].([]any)
	if w.Code != http.StatusOK || body["fallback"] != false || len(videos) != 1 {
		t.Fatalf("related = %d %s", w.Code, w.Body.String())
	}
	if first, _ := videos[0].(map[string]any); first["id"] != "match" {
		t.Fatalf("first related = %v", videos[0])
	}
	if w := a.do(t, http.MethodGet, "/api/videos/src/related?limit=abc", "", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t, nil)
	a.do(t, http.MethodGet, "/healthcheck", "", nil)
	w := a.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "vc_api_requests_total") {
		t.Fatalf("metrics exposition missing api counter: %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	a := newTestApp(t, nil)
	w := a.do(t, http.MethodOptions, "/api/queues/jobs/recent", "", map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": http.MethodGet,
	})
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}
}
