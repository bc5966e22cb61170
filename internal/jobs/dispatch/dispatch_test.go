package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/videocatalog-backend/internal/data/repos/jobs"
	"github.com/yungbote/videocatalog-backend/internal/data/repos/testutil"
	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/queue"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
	"github.com/yungbote/videocatalog-backend/internal/realtime/bus"
)

type funcHandler struct {
	typ string
	run func(jc *runtime.Context) (map[string]any, error)
}

func (h funcHandler) Type() string                                    { return h.typ }
func (h funcHandler) Run(jc *runtime.Context) (map[string]any, error) { return h.run(jc) }

type fakeProducer struct {
	mu      sync.Mutex
	pushed  []queue.PushRequest
	pushErr error
	pingErr error
}

func (p *fakeProducer) Backend() string                { return "fake" }
func (p *fakeProducer) Queue() string                  { return "video" }
func (p *fakeProducer) Ping(ctx context.Context) error { return p.pingErr }
func (p *fakeProducer) Close() error                   { return nil }

func (p *fakeProducer) Push(ctx context.Context, req queue.PushRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pushErr != nil {
		return "", p.pushErr
	}
	p.pushed = append(p.pushed, req)
	return req.JobID, nil
}

type enqueueCounter struct {
	mu    sync.Mutex
	modes []string
}

func (c *enqueueCounter) JobEnqueued(_, _ string, mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.modes = append(c.modes, mode)
}

type fixture struct {
	ledger jobs.LedgerRepo
	runner *runtime.Runner
	bus    bus.Bus
	events chan realtime.Event
	obs    *enqueueCounter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := testutil.Logger(t)
	ledger := jobs.NewLedgerRepo(testutil.DB(t), log)

	reg := runtime.NewRegistry()
	handlers := []runtime.Handler{
		funcHandler{typ: "echo", run: func(jc *runtime.Context) (map[string]any, error) {
			id, _ := jc.PayloadString("videoId")
			jc.Progress(50)
			return map[string]any{"videoId": id, "processed": 1}, nil
		}},
		funcHandler{typ: "explode", run: func(jc *runtime.Context) (map[string]any, error) {
			return nil, errors.New("boom")
		}},
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			t.Fatalf("register: %v", err)
		}
	}

	b := bus.NewMemoryBus(log)
	t.Cleanup(func() { _ = b.Close() })
	events := make(chan realtime.Event, 64)
	if err := b.StartForwarder(context.Background(), func(ev realtime.Event) { events <- ev }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}

	return &fixture{
		ledger: ledger,
		runner: runtime.NewRunner(runtime.NewProcessor(reg, log), ledger, log, runtime.WithBus(b)),
		bus:    b,
		events: events,
		obs:    &enqueueCounter{},
	}
}

func (f *fixture) deps() Deps {
	return Deps{Ledger: f.ledger, Runner: f.runner, Bus: f.bus, Observer: f.obs, Queue: "video"}
}

func (f *fixture) row(t *testing.T, id string) *types.JobRecord {
	t.Helper()
	rec, err := f.ledger.GetByID(dbctx.Context{Ctx: context.Background()}, id)
	if err != nil {
		t.Fatalf("GetByID(%s): %v", id, err)
	}
	if rec == nil {
		t.Fatalf("no ledger row for %s", id)
	}
	return rec
}

func decode(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

func echoRequest() Request {
	return Request{
		Type:    "echo",
		Payload: map[string]any{"videoId": "v1"},
		Actor:   types.Actor{Email: "admin@example.com", UserID: "u1"},
		VideoID: "v1",
	}
}

func TestInlineSuccess(t *testing.T) {
	f := newFixture(t)
	d := NewInline(f.deps(), testutil.Logger(t))

	rc, err := d.Enqueue(context.Background(), echoRequest())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if rc.Mode != runtime.ModeInline || !strings.HasPrefix(rc.JobID, "inline:") {
		t.Fatalf("receipt = %+v", rc)
	}
	if rc.Result["processed"] != 1 {
		t.Fatalf("result = %v", rc.Result)
	}

	rec := f.row(t, rc.JobID)
	if rec.Status != types.JobStatusSucceeded || rec.Attempts != 1 {
		t.Fatalf("row status=%s attempts=%d", rec.Status, rec.Attempts)
	}
	if rec.ActorEmail == nil || *rec.ActorEmail != "admin@example.com" {
		t.Fatalf("actor email = %v", rec.ActorEmail)
	}
	if first := <-f.events; first.Type != realtime.EventJobEnqueued || first.JobID != rc.JobID {
		t.Fatalf("first event = %+v", first)
	}
	if len(f.obs.modes) != 1 || f.obs.modes[0] != runtime.ModeInline {
		t.Fatalf("observed modes = %v", f.obs.modes)
	}
}

func TestInlineIDsAreUnique(t *testing.T) {
	f := newFixture(t)
	deps := f.deps()
	deps.Now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	d := NewInline(deps, testutil.Logger(t))

	a, err := d.Enqueue(context.Background(), echoRequest())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	b, err := d.Enqueue(context.Background(), echoRequest())
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if a.JobID != "inline:1700000000000-1" || b.JobID != "inline:1700000000000-2" {
		t.Fatalf("ids = %s, %s", a.JobID, b.JobID)
	}
}

func TestInlineFailureReturnsError(t *testing.T) {
	f := newFixture(t)
	d := NewInline(f.deps(), testutil.Logger(t))

	rc, err := d.Enqueue(context.Background(), Request{Type: "explode"})
	if err == nil || rc != nil {
		t.Fatalf("expected failure, got %+v, %v", rc, err)
	}
	recent, lerr := f.ledger.ListRecent(dbctx.Context{Ctx: context.Background()}, 10)
	if lerr != nil || len(recent) != 1 {
		t.Fatalf("ListRecent = %v, %v", recent, lerr)
	}
	if recent[0].Status != types.JobStatusFailed || decode(t, recent[0].Error)["message"] != "boom" {
		t.Fatalf("row = %+v", recent[0])
	}
}

func TestUnknownTypeSucceedsInline(t *testing.T) {
	f := newFixture(t)
	d := NewInline(f.deps(), testutil.Logger(t))

	rc, err := d.Enqueue(context.Background(), Request{Type: "bogus"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if rc.Result["skipped"] != true {
		t.Fatalf("result = %v", rc.Result)
	}
	if rec := f.row(t, rc.JobID); rec.Status != types.JobStatusSucceeded {
		t.Fatalf("status = %s", rec.Status)
	}
}

func TestQueueRecordsBeforePush(t *testing.T) {
	f := newFixture(t)
	p := &fakeProducer{}
	d := NewQueue(p, f.deps(), testutil.Logger(t))

	req := echoRequest()
	req.Options = QueueOptions{MaxRetries: 5, Backoff: 2 * time.Second}
	rc, err := d.Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if rc.Mode != runtime.ModeQueue || rc.Result != nil {
		t.Fatalf("receipt = %+v", rc)
	}
	if len(p.pushed) != 1 {
		t.Fatalf("pushed %d jobs", len(p.pushed))
	}
	got := p.pushed[0]
	if got.JobID != rc.JobID || got.MaxRetries != 5 || got.Backoff != 2*time.Second {
		t.Fatalf("push request = %+v", got)
	}
	rec := f.row(t, rc.JobID)
	if rec.Status != types.JobStatusQueued || rec.MaxRetries != 5 || rec.Attempts != 0 {
		t.Fatalf("row = %+v", rec)
	}
}

func TestQueuePushFailure(t *testing.T) {
	f := newFixture(t)
	p := &fakeProducer{pushErr: errors.New("connection refused")}
	d := NewQueue(p, f.deps(), testutil.Logger(t))

	if _, err := d.Enqueue(context.Background(), echoRequest()); err == nil {
		t.Fatalf("expected push error")
	}
	recent, err := f.ledger.ListRecent(dbctx.Context{Ctx: context.Background()}, 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("ListRecent = %v, %v", recent, err)
	}
	if recent[0].Status != types.JobStatusFailed {
		t.Fatalf("status = %s", recent[0].Status)
	}
	if !strings.Contains(decode(t, recent[0].Error)["message"].(string), "connection refused") {
		t.Fatalf("error doc = %s", recent[0].Error)
	}
	if len(f.obs.modes) != 0 {
		t.Fatalf("failed push was counted as enqueued")
	}
}

func TestNewFallsBackToInline(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)

	if d := New(context.Background(), nil, f.deps(), log); d.Mode() != runtime.ModeInline {
		t.Fatalf("nil producer mode = %s", d.Mode())
	}
	down := &fakeProducer{pingErr: errors.New("dial tcp: refused")}
	if d := New(context.Background(), down, f.deps(), log); d.Mode() != runtime.ModeInline {
		t.Fatalf("unreachable producer mode = %s", d.Mode())
	}
	if d := New(context.Background(), &fakeProducer{}, f.deps(), log); d.Mode() != runtime.ModeQueue {
		t.Fatalf("healthy producer mode = %s", d.Mode())
	}
}

// The final ledger row must not depend on the execution mode.
func TestInlineAndQueueLeaveSameRow(t *testing.T) {
	f := newFixture(t)
	log := testutil.Logger(t)
	req := echoRequest()

	inline, err := NewInline(f.deps(), log).Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("inline Enqueue: %v", err)
	}

	p := &fakeProducer{}
	queued, err := NewQueue(p, f.deps(), log).Enqueue(context.Background(), req)
	if err != nil {
		t.Fatalf("queue Enqueue: %v", err)
	}
	pushed := p.pushed[0]
	if _, err := f.runner.Execute(context.Background(), runtime.JobInfo{
		ID:         pushed.JobID,
		Queue:      "video",
		Type:       pushed.Type,
		Attempt:    1,
		MaxRetries: pushed.MaxRetries,
		Mode:       runtime.ModeQueue,
	}, pushed.Payload); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	a, b := f.row(t, inline.JobID), f.row(t, queued.JobID)
	if a.Status != b.Status || a.Attempts != b.Attempts || a.Type != b.Type || a.MaxRetries != b.MaxRetries {
		t.Fatalf("rows differ:\ninline %+v\nqueue  %+v", a, b)
	}
	if *a.VideoID != *b.VideoID || *a.ActorUserID != *b.ActorUserID {
		t.Fatalf("identity differs: %v/%v vs %v/%v", *a.VideoID, *a.ActorUserID, *b.VideoID, *b.ActorUserID)
	}
	ra, rb := decode(t, a.Result), decode(t, b.Result)
	if ra["processed"] != rb["processed"] || ra["videoId"] != rb["videoId"] || ra["lastProgress"] != rb["lastProgress"] {
		t.Fatalf("results differ: %v vs %v", ra, rb)
	}
}
