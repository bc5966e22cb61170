package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
	domainjobs "github.com/yungbote/videocatalog-backend/internal/domain/jobs"
	"github.com/yungbote/videocatalog-backend/internal/platform/dbctx"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

const DefaultRecentMax = 200

// EnqueuedRecord is the input of RecordEnqueued.
type EnqueuedRecord struct {
	JobID      string
	Queue      string
	Type       string
	Actor      types.Actor
	VideoID    string
	Payload    map[string]any
	MaxRetries int
}

// QueueMetrics aggregates the whole ledger.
type QueueMetrics struct {
	Total         int64   `json:"total"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	SuccessRate   float64 `json:"successRate"`
	AvgDurationMs float64 `json:"avgDurationMs"`
	AvgAttempts   float64 `json:"avgAttempts"`
}

// LedgerRepo is the durable record of every job. Reads are never cached;
// several worker processes write the same rows.
type LedgerRepo interface {
	RecordEnqueued(dbc dbctx.Context, rec EnqueuedRecord) error
	RecordStarted(dbc dbctx.Context, jobID string, attempt int) error
	RecordProgress(dbc dbctx.Context, jobID string, percent float64) error
	RecordCompleted(dbc dbctx.Context, jobID string, result map[string]any) error
	RecordFailed(dbc dbctx.Context, jobID string, jobErr error) error
	ListRecent(dbc dbctx.Context, limit int) ([]*types.JobRecord, error)
	QueueMetrics(dbc dbctx.Context) (*QueueMetrics, error)
	GetByID(dbc dbctx.Context, jobID string) (*types.JobRecord, error)
}

type LedgerOption func(*ledgerRepo)

// WithClock overrides the time source used for ledger timestamps.
func WithClock(now func() time.Time) LedgerOption {
	return func(r *ledgerRepo) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRecentMax sets the hard ceiling of ListRecent.
func WithRecentMax(n int) LedgerOption {
	return func(r *ledgerRepo) {
		if n > 0 {
			r.recentMax = n
		}
	}
}

type ledgerRepo struct {
	db        *gorm.DB
	log       *logger.Logger
	now       func() time.Time
	recentMax int
}

func NewLedgerRepo(db *gorm.DB, baseLog *logger.Logger, opts ...LedgerOption) LedgerRepo {
	r := &ledgerRepo{
		db:        db,
		log:       baseLog.With("repo", "LedgerRepo"),
		now:       time.Now,
		recentMax: DefaultRecentMax,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *ledgerRepo) nowMillis() int64 { return r.now().UnixMilli() }

func (r *ledgerRepo) RecordEnqueued(dbc dbctx.Context, rec EnqueuedRecord) error {
	if strings.TrimSpace(rec.JobID) == "" {
		return fmt.Errorf("record enqueued: empty job id")
	}
	if rec.MaxRetries <= 0 {
		rec.MaxRetries = domainjobs.DefaultMaxRetries
	}
	payload, err := marshalDoc(rec.Payload)
	if err != nil {
		return fmt.Errorf("record enqueued: payload: %w", err)
	}
	row := &types.JobRecord{
		JobID:       rec.JobID,
		Queue:       rec.Queue,
		Type:        rec.Type,
		Status:      types.JobStatusQueued,
		ActorEmail:  nonEmpty(rec.Actor.Email),
		ActorUserID: nonEmpty(rec.Actor.UserID),
		VideoID:     nonEmpty(rec.VideoID),
		CreatedAt:   r.nowMillis(),
		Attempts:    0,
		MaxRetries:  rec.MaxRetries,
		Payload:     payload,
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"status":        types.JobStatusQueued,
				"queue":         gorm.Expr("excluded.queue"),
				"type":          gorm.Expr("excluded.type"),
				"payload":       gorm.Expr("excluded.payload"),
				"actor_email":   gorm.Expr("excluded.actor_email"),
				"actor_user_id": gorm.Expr("excluded.actor_user_id"),
				"video_id":      gorm.Expr("excluded.video_id"),
				"max_retries":   gorm.Expr("excluded.max_retries"),
				"finished_at":   gorm.Expr("NULL"),
				"result":        gorm.Expr("NULL"),
				"error":         gorm.Expr("NULL"),
				"created_at":    gorm.Expr("CASE WHEN queue_job.created_at < excluded.created_at THEN queue_job.created_at ELSE excluded.created_at END"),
			}),
		}).
		Create(row).Error
}

func (r *ledgerRepo) RecordStarted(dbc dbctx.Context, jobID string, attempt int) error {
	if attempt < 1 {
		attempt = 1
	}
	return dbc.DB(r.db).
		Model(&types.JobRecord{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":      types.JobStatusRunning,
			"started_at":  gorm.Expr("COALESCE(started_at, ?)", r.nowMillis()),
			"finished_at": nil,
			"attempts":    gorm.Expr("CASE WHEN attempts < ? THEN ? ELSE attempts END", attempt, attempt),
		}).Error
}

func (r *ledgerRepo) RecordProgress(dbc dbctx.Context, jobID string, percent float64) error {
	if math.IsNaN(percent) || percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return r.transact(dbc, func(tx *gorm.DB) error {
		row, err := lockForUpdate(tx, jobID)
		if err != nil || row == nil {
			return err
		}
		merged, err := mergeDoc(row.Result, map[string]any{"lastProgress": percent})
		if err != nil {
			return err
		}
		return tx.Model(&types.JobRecord{}).
			Where("job_id = ?", jobID).
			Update("result", merged).Error
	})
}

func (r *ledgerRepo) RecordCompleted(dbc dbctx.Context, jobID string, result map[string]any) error {
	now := r.nowMillis()
	return r.transact(dbc, func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":      types.JobStatusSucceeded,
			"finished_at": now,
			"attempts":    gorm.Expr("CASE WHEN attempts < 1 THEN 1 ELSE attempts END"),
		}
		if result != nil {
			row, err := lockForUpdate(tx, jobID)
			if err != nil || row == nil {
				return err
			}
			merged, err := mergeDoc(row.Result, result)
			if err != nil {
				return err
			}
			updates["result"] = merged
		}
		return tx.Model(&types.JobRecord{}).
			Where("job_id = ?", jobID).
			Updates(updates).Error
	})
}

func (r *ledgerRepo) RecordFailed(dbc dbctx.Context, jobID string, jobErr error) error {
	doc, err := json.Marshal(Describe(jobErr))
	if err != nil {
		return fmt.Errorf("record failed: %w", err)
	}
	return dbc.DB(r.db).
		Model(&types.JobRecord{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{
			"status":      types.JobStatusFailed,
			"finished_at": r.nowMillis(),
			"error":       datatypes.JSON(doc),
			"attempts":    gorm.Expr("attempts + 1"),
		}).Error
}

func (r *ledgerRepo) ListRecent(dbc dbctx.Context, limit int) ([]*types.JobRecord, error) {
	if limit <= 0 || limit > r.recentMax {
		limit = r.recentMax
	}
	var out []*types.JobRecord
	err := dbc.DB(r.db).
		Order("COALESCE(finished_at, created_at) DESC").
		Order("job_id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ledgerRepo) QueueMetrics(dbc dbctx.Context) (*QueueMetrics, error) {
	var agg struct {
		Total       int64
		Succeeded   int64
		Failed      int64
		AvgAttempts float64
	}
	err := dbc.DB(r.db).
		Model(&types.JobRecord{}).
		Select(`COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS succeeded,
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS failed,
			COALESCE(AVG(CASE WHEN attempts < 1 THEN 1 ELSE attempts END), 0) AS avg_attempts`,
			types.JobStatusSucceeded, types.JobStatusFailed).
		Scan(&agg).Error
	if err != nil {
		return nil, err
	}
	var dur struct{ AvgDurationMs float64 }
	err = dbc.DB(r.db).
		Model(&types.JobRecord{}).
		Select("COALESCE(AVG(finished_at - started_at), 0) AS avg_duration_ms").
		Where("started_at IS NOT NULL AND finished_at IS NOT NULL").
		Scan(&dur).Error
	if err != nil {
		return nil, err
	}
	m := &QueueMetrics{
		Total:         agg.Total,
		Succeeded:     agg.Succeeded,
		Failed:        agg.Failed,
		AvgDurationMs: dur.AvgDurationMs,
		AvgAttempts:   agg.AvgAttempts,
	}
	if m.Total > 0 {
		m.SuccessRate = float64(m.Succeeded) / float64(m.Total)
	}
	return m, nil
}

func (r *ledgerRepo) GetByID(dbc dbctx.Context, jobID string) (*types.JobRecord, error) {
	var row types.JobRecord
	err := dbc.DB(r.db).Where("job_id = ?", jobID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

const txAttempts = 3

// transact runs fn in a transaction, retrying transient conflicts. Inside a
// caller-owned transaction fn runs once, since a retry there would replay on
// an aborted transaction.
func (r *ledgerRepo) transact(dbc dbctx.Context, fn func(tx *gorm.DB) error) error {
	if dbc.Tx != nil {
		return dbc.DB(r.db).Transaction(fn)
	}
	var err error
	for attempt := 1; attempt <= txAttempts; attempt++ {
		err = dbc.DB(r.db).Transaction(fn)
		if !isRetryable(err) {
			return err
		}
		r.log.Debug("Ledger transaction conflict; retrying", "attempt", attempt, "error", err)
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
	return err
}

func lockForUpdate(tx *gorm.DB, jobID string) (*types.JobRecord, error) {
	var row types.JobRecord
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("job_id", "result").
		Where("job_id = ?", jobID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// mergeDoc shallow-merges patch into the JSON object stored in raw. A missing
// or non-object document is replaced.
func mergeDoc(raw datatypes.JSON, patch map[string]any) (datatypes.JSON, error) {
	base := map[string]any{}
	if s := strings.TrimSpace(string(raw)); s != "" && s != "null" {
		if err := json.Unmarshal(raw, &base); err != nil || base == nil {
			base = map[string]any{}
		}
	}
	for k, v := range patch {
		base[k] = v
	}
	return marshalDoc(base)
}

func marshalDoc(m map[string]any) (datatypes.JSON, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func nonEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
