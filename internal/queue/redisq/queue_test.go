package redisq

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/queue"
)

// newTestQueue runs against TEST_REDIS_ADDR when set, else an in-process
// miniredis. expire moves lock TTLs forward by d on either backend.
func newTestQueue(t *testing.T, cfg Config) (q *Queue, clock *time.Time, expire func(time.Duration)) {
	t.Helper()
	var rdb *goredis.Client
	if addr := os.Getenv("TEST_REDIS_ADDR"); addr != "" {
		rdb = goredis.NewClient(&goredis.Options{Addr: addr})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			_ = rdb.Close()
			t.Skipf("redis unavailable: %v", err)
		}
		expire = func(d time.Duration) { time.Sleep(d) }
	} else {
		mr := miniredis.RunT(t)
		rdb = goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
		expire = mr.FastForward
	}
	t.Cleanup(func() { _ = rdb.Close() })

	cfg.Prefix = "vctest-" + uuid.NewString()[:8]
	q, err := New(rdb, cfg, logger.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.UnixMilli(1_700_000_000_000)
	q.now = func() time.Time { return now }
	t.Cleanup(func() {
		ctx := context.Background()
		iter := rdb.Scan(ctx, 0, cfg.Prefix+":*", 100).Iterator()
		for iter.Next(ctx) {
			_ = rdb.Del(ctx, iter.Val()).Err()
		}
	})
	return q, &now, expire
}

func TestPushFetchAck(t *testing.T) {
	q, _, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	id, err := q.Push(ctx, queue.PushRequest{Type: "recomputeVideoSignals", Payload: map[string]any{"videoId": "v1"}})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := q.Push(ctx, queue.PushRequest{JobID: id, Type: "recomputeVideoSignals"}); !errors.Is(err, queue.ErrDuplicateJob) {
		t.Fatalf("duplicate push err = %v", err)
	}

	d, err := q.Fetch(ctx)
	if err != nil || d == nil {
		t.Fatalf("Fetch: %v %v", d, err)
	}
	if d.JobID != id || d.Attempt != 1 || d.MaxRetries != 3 || d.Payload["videoId"] != "v1" {
		t.Fatalf("unexpected delivery: %+v", d)
	}
	if next, err := q.Fetch(ctx); err != nil || next != nil {
		t.Fatalf("second Fetch = %v, %v; want empty", next, err)
	}
	if err := q.Extend(ctx, d); err != nil {
		t.Fatalf("Extend: %v", err)
	}
	if err := q.Ack(ctx, d, map[string]any{"processed": 1}); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	st, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Waiting != 0 || st.Active != 0 || st.Completed != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if s, _ := q.State(ctx, id); s != "completed" {
		t.Fatalf("state = %q", s)
	}
}

func TestNackRetriesThenFails(t *testing.T) {
	q, clock, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	id, err := q.Push(ctx, queue.PushRequest{Type: "t", MaxRetries: 2, Backoff: time.Second})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	d, _ := q.Fetch(ctx)
	res, err := q.Nack(ctx, d, errors.New("boom"))
	if err != nil {
		t.Fatalf("Nack: %v", err)
	}
	if !res.Retrying || !res.RetryAt.Equal(clock.Add(time.Second)) {
		t.Fatalf("nack result = %+v", res)
	}
	if n, _ := q.PromoteDelayed(ctx); n != 0 {
		t.Fatalf("promoted %d before backoff elapsed", n)
	}
	*clock = clock.Add(2 * time.Second)
	if n, err := q.PromoteDelayed(ctx); err != nil || n != 1 {
		t.Fatalf("PromoteDelayed = %d, %v", n, err)
	}

	d, _ = q.Fetch(ctx)
	if d == nil || d.Attempt != 2 {
		t.Fatalf("second delivery = %+v", d)
	}
	res, err = q.Nack(ctx, d, errors.New("boom again"))
	if err != nil || res.Retrying {
		t.Fatalf("final nack = %+v, %v", res, err)
	}
	if s, _ := q.State(ctx, id); s != "failed" {
		t.Fatalf("state = %q", s)
	}
}

func TestStaleTokenLosesLock(t *testing.T) {
	q, _, _ := newTestQueue(t, Config{})
	ctx := context.Background()

	if _, err := q.Push(ctx, queue.PushRequest{Type: "t"}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	d, _ := q.Fetch(ctx)
	stale := *d
	stale.Token = "not-the-token"
	if err := q.Ack(ctx, &stale, nil); !errors.Is(err, queue.ErrLockLost) {
		t.Fatalf("Ack with stale token err = %v", err)
	}
	if err := q.Extend(ctx, &stale); !errors.Is(err, queue.ErrLockLost) {
		t.Fatalf("Extend with stale token err = %v", err)
	}
}

func TestRecoverStalled(t *testing.T) {
	q, _, expire := newTestQueue(t, Config{LockTTL: 50 * time.Millisecond})
	ctx := context.Background()

	id, _ := q.Push(ctx, queue.PushRequest{Type: "t", MaxRetries: 2})
	if _, err := q.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if got, _ := q.RecoverStalled(ctx); len(got) != 0 {
		t.Fatalf("recovered locked job: %+v", got)
	}
	expire(120 * time.Millisecond)
	got, err := q.RecoverStalled(ctx)
	if err != nil {
		t.Fatalf("RecoverStalled: %v", err)
	}
	if len(got) != 1 || got[0].JobID != id || !got[0].Requeued {
		t.Fatalf("recovered = %+v", got)
	}

	d, _ := q.Fetch(ctx)
	if d == nil || d.Attempt != 2 {
		t.Fatalf("redelivery = %+v", d)
	}
	expire(120 * time.Millisecond)
	got, _ = q.RecoverStalled(ctx)
	if len(got) != 1 || got[0].Requeued {
		t.Fatalf("exhausted job should be dead-lettered: %+v", got)
	}
}
