package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/queue"
)

const (
	BackendName = "redis"

	DefaultName            = "video"
	DefaultPrefix          = "vq"
	DefaultLockTTL         = 30 * time.Second
	DefaultRetainCompleted = 1000
	DefaultRetainFailed    = 5000
	DefaultRetainTTL       = 24 * time.Hour

	promoteBatch = 100
)

type Config struct {
	URL               string
	Name              string
	Prefix            string
	LockTTL           time.Duration
	RetainCompleted   int
	RetainFailed      int
	RetainTTL         time.Duration
	DefaultMaxRetries int
	DefaultBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultName
	}
	if strings.TrimSpace(c.Prefix) == "" {
		c.Prefix = DefaultPrefix
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	if c.RetainCompleted <= 0 {
		c.RetainCompleted = DefaultRetainCompleted
	}
	if c.RetainFailed <= 0 {
		c.RetainFailed = DefaultRetainFailed
	}
	if c.RetainTTL < 0 {
		c.RetainTTL = 0
	} else if c.RetainTTL == 0 {
		c.RetainTTL = DefaultRetainTTL
	}
	if c.DefaultMaxRetries <= 0 {
		c.DefaultMaxRetries = 3
	}
	if c.DefaultBackoff <= 0 {
		c.DefaultBackoff = queue.DefaultBackoffBase
	}
	return c
}

// Queue is a Redis-backed job queue. One instance serves both the producer
// and the consumer side.
type Queue struct {
	log   *logger.Logger
	rdb   goredis.UniversalClient
	cfg   Config
	keys  keys
	owned bool
	now   func() time.Time
}

var (
	_ queue.Producer = (*Queue)(nil)
	_ queue.Consumer = (*Queue)(nil)
)

// New wraps an existing client; Close leaves it open.
func New(rdb goredis.UniversalClient, cfg Config, baseLog *logger.Logger) (*Queue, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if baseLog == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg = cfg.withDefaults()
	return &Queue{
		log:  baseLog.With("component", "RedisQueue", "queue", cfg.Name),
		rdb:  rdb,
		cfg:  cfg,
		keys: newKeys(cfg.Prefix, cfg.Name),
		now:  time.Now,
	}, nil
}

// Dial connects to cfg.URL and pings before returning.
func Dial(ctx context.Context, cfg Config, baseLog *logger.Logger) (*Queue, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("missing redis url")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	q, err := New(rdb, cfg, baseLog)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	q.owned = true
	return q, nil
}

func (q *Queue) Backend() string { return BackendName }
func (q *Queue) Queue() string   { return q.cfg.Name }

func (q *Queue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}

func (q *Queue) Close() error {
	if q == nil || !q.owned {
		return nil
	}
	return q.rdb.Close()
}

func (q *Queue) Push(ctx context.Context, req queue.PushRequest) (string, error) {
	if strings.TrimSpace(req.Type) == "" {
		return "", fmt.Errorf("job type required")
	}
	id := strings.TrimSpace(req.JobID)
	if id == "" {
		id = uuid.NewString()
	}
	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = q.cfg.DefaultMaxRetries
	}
	backoff := req.Backoff
	if backoff <= 0 {
		backoff = q.cfg.DefaultBackoff
	}
	payload := req.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	jk := q.keys.job(id)
	n, err := q.rdb.Exists(ctx, jk).Result()
	if err != nil {
		return "", err
	}
	if n > 0 {
		return "", fmt.Errorf("%w: %s", queue.ErrDuplicateJob, id)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, jk, map[string]any{
		"id":          id,
		"type":        req.Type,
		"payload":     string(raw),
		"attempts":    0,
		"max_retries": maxRetries,
		"backoff_ms":  backoff.Milliseconds(),
		"state":       "waiting",
		"created_at":  q.now().UnixMilli(),
	})
	pipe.LPush(ctx, q.keys.wait(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	q.log.Debug("job pushed", "job_id", id, "job_type", req.Type)
	return id, nil
}

func (q *Queue) Fetch(ctx context.Context) (*queue.Delivery, error) {
	for {
		token := uuid.NewString()
		res, err := claimScript.Run(ctx, q.rdb,
			[]string{q.keys.wait(), q.keys.active()},
			q.keys.jobPrefix(), q.keys.lockPrefix(), token, q.cfg.LockTTL.Milliseconds(), q.now().UnixMilli(),
		).Slice()
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("claim: %w", err)
		}
		if len(res) != 2 {
			return nil, fmt.Errorf("claim: unexpected reply %v", res)
		}
		id, _ := res[0].(string)
		attempt, _ := res[1].(int64)
		if attempt < 0 {
			q.log.Warn("dropped orphaned job id", "job_id", id)
			continue
		}

		fields, err := q.rdb.HGetAll(ctx, q.keys.job(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("load job %s: %w", id, err)
		}
		d := &queue.Delivery{
			JobID:      id,
			Type:       fields["type"],
			Attempt:    int(attempt),
			MaxRetries: atoi(fields["max_retries"], q.cfg.DefaultMaxRetries),
			Backoff:    time.Duration(atoi(fields["backoff_ms"], int(q.cfg.DefaultBackoff.Milliseconds()))) * time.Millisecond,
			Token:      token,
		}
		if raw := fields["payload"]; raw != "" {
			if err := json.Unmarshal([]byte(raw), &d.Payload); err != nil {
				q.log.Warn("bad job payload", "job_id", id, "error", err)
			}
		}
		if d.Payload == nil {
			d.Payload = map[string]any{}
		}
		return d, nil
	}
}

func (q *Queue) Extend(ctx context.Context, d *queue.Delivery) error {
	n, err := extendScript.Run(ctx, q.rdb, []string{q.keys.lock(d.JobID)}, d.Token, q.cfg.LockTTL.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return queue.ErrLockLost
	}
	return nil
}

func (q *Queue) Ack(ctx context.Context, d *queue.Delivery, result map[string]any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		raw = []byte("{}")
	}
	n, err := ackScript.Run(ctx, q.rdb,
		[]string{q.keys.active(), q.keys.completed(), q.keys.job(d.JobID), q.keys.lock(d.JobID)},
		d.JobID, d.Token, string(raw), q.now().UnixMilli(), q.cfg.RetainCompleted, int64(q.cfg.RetainTTL.Seconds()),
	).Int64()
	if err != nil {
		return err
	}
	if n < 0 {
		return queue.ErrLockLost
	}
	return nil
}

func (q *Queue) Nack(ctx context.Context, d *queue.Delivery, cause error) (queue.NackResult, error) {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	now := q.now()
	retryAt := now.Add(queue.Exponential{Base: d.Backoff, Max: queue.DefaultBackoffMax}.Delay(d.Attempt))
	n, err := nackScript.Run(ctx, q.rdb,
		[]string{q.keys.active(), q.keys.delayed(), q.keys.failed(), q.keys.job(d.JobID), q.keys.lock(d.JobID)},
		d.JobID, d.Token, msg, now.UnixMilli(), retryAt.UnixMilli(), q.cfg.RetainFailed, int64(q.cfg.RetainTTL.Seconds()),
	).Int64()
	if err != nil {
		return queue.NackResult{}, err
	}
	switch n {
	case -1:
		return queue.NackResult{}, queue.ErrLockLost
	case 1:
		return queue.NackResult{Retrying: true, RetryAt: retryAt}, nil
	default:
		return queue.NackResult{}, nil
	}
}

func (q *Queue) PromoteDelayed(ctx context.Context) (int, error) {
	n, err := promoteScript.Run(ctx, q.rdb,
		[]string{q.keys.delayed(), q.keys.wait()},
		q.now().UnixMilli(), promoteBatch, q.keys.jobPrefix(),
	).Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// RecoverStalled inspects every active id and releases the ones whose lock
// has expired.
func (q *Queue) RecoverStalled(ctx context.Context) ([]queue.StalledJob, error) {
	ids, err := q.rdb.LRange(ctx, q.keys.active(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var out []queue.StalledJob
	for _, id := range ids {
		n, err := stalledScript.Run(ctx, q.rdb,
			[]string{q.keys.active(), q.keys.wait(), q.keys.failed(), q.keys.job(id), q.keys.lock(id)},
			id, q.now().UnixMilli(), q.cfg.RetainFailed, int64(q.cfg.RetainTTL.Seconds()),
		).Int64()
		if err != nil {
			return out, fmt.Errorf("recover %s: %w", id, err)
		}
		switch n {
		case 1:
			out = append(out, queue.StalledJob{JobID: id, Requeued: true})
		case 2:
			out = append(out, queue.StalledJob{JobID: id})
		}
	}
	if len(out) > 0 {
		q.log.Warn("recovered stalled jobs", "count", len(out))
	}
	return out, nil
}

func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	pipe := q.rdb.Pipeline()
	wait := pipe.LLen(ctx, q.keys.wait())
	active := pipe.LLen(ctx, q.keys.active())
	delayed := pipe.ZCard(ctx, q.keys.delayed())
	completed := pipe.LLen(ctx, q.keys.completed())
	failed := pipe.LLen(ctx, q.keys.failed())
	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Stats{}, err
	}
	return queue.Stats{
		Waiting:   wait.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// State returns the stored state of one job, or "" when the hash is gone.
func (q *Queue) State(ctx context.Context, id string) (string, error) {
	s, err := q.rdb.HGet(ctx, q.keys.job(id), "state").Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	return s, err
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
