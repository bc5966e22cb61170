package observability

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	types "github.com/yungbote/videocatalog-backend/internal/domain"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
)

// Metrics owns a private registry so tests and both processes can build
// their own without colliding on the default one.
type Metrics struct {
	reg *prometheus.Registry

	jobsEnqueued *prometheus.CounterVec
	jobsStarted  *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	ledgerErrors *prometheus.CounterVec
	ledgerDepth  *prometheus.GaugeVec
	queueBacklog *prometheus.GaugeVec
	stalledTotal *prometheus.CounterVec
	apiRequests  *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	apiInflight  prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		jobsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vc_jobs_enqueued_total",
			Help: "Jobs accepted by the dispatcher by queue, type and mode.",
		}, []string{"queue", "type", "mode"}),
		jobsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vc_jobs_started_total",
			Help: "Job attempts started by queue and type.",
		}, []string{"queue", "type"}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vc_jobs_finished_total",
			Help: "Job attempts finished by queue, type and status.",
		}, []string{"queue", "type", "status"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vc_job_duration_seconds",
			Help:    "Job attempt duration by queue, type and status.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		}, []string{"queue", "type", "status"}),
		ledgerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vc_job_ledger_errors_total",
			Help: "Best-effort ledger writes that failed, by operation.",
		}, []string{"op"}),
		ledgerDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vc_job_ledger_jobs",
			Help: "Ledger rows by status.",
		}, []string{"status"}),
		queueBacklog: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vc_queue_backlog",
			Help: "Durable queue entries by queue and state.",
		}, []string{"queue", "state"}),
		stalledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vc_queue_stalled_total",
			Help: "Active jobs requeued after their lock expired.",
		}, []string{"queue"}),
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vc_api_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vc_api_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		apiInflight: f.NewGauge(prometheus.GaugeOpts{
			Name: "vc_api_inflight_requests",
			Help: "HTTP requests currently being served.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) JobEnqueued(queue, jobType, mode string) {
	if m == nil {
		return
	}
	m.jobsEnqueued.WithLabelValues(queue, jobType, mode).Inc()
}

func (m *Metrics) JobStarted(queue, jobType string) {
	if m == nil {
		return
	}
	m.jobsStarted.WithLabelValues(queue, jobType).Inc()
}

func (m *Metrics) JobFinished(queue, jobType, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(queue, jobType, status).Inc()
	m.jobDuration.WithLabelValues(queue, jobType, status).Observe(dur.Seconds())
}

func (m *Metrics) LedgerError(op string) {
	if m == nil {
		return
	}
	m.ledgerErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SetQueueBacklog(queue, state string, n int64) {
	if m == nil {
		return
	}
	m.queueBacklog.WithLabelValues(queue, state).Set(float64(n))
}

func (m *Metrics) StalledRecovered(queue string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stalledTotal.WithLabelValues(queue).Add(float64(n))
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) APIInflightInc() {
	if m != nil {
		m.apiInflight.Inc()
	}
}

func (m *Metrics) APIInflightDec() {
	if m != nil {
		m.apiInflight.Dec()
	}
}

// StartServer serves /metrics on addr until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

var ledgerStatuses = []string{
	types.JobStatusQueued,
	types.JobStatusRunning,
	types.JobStatusSucceeded,
	types.JobStatusFailed,
}

// CollectLedgerDepth refreshes the per-status ledger gauge once.
func (m *Metrics) CollectLedgerDepth(ctx context.Context, db *gorm.DB) error {
	if m == nil || db == nil {
		return nil
	}
	var rows []struct {
		Status string
		Count  int64
	}
	if err := db.WithContext(ctx).
		Model(&types.JobRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return err
	}
	for _, s := range ledgerStatuses {
		m.ledgerDepth.WithLabelValues(s).Set(0)
	}
	for _, row := range rows {
		status := strings.TrimSpace(row.Status)
		if status == "" {
			status = "unknown"
		}
		m.ledgerDepth.WithLabelValues(status).Set(float64(row.Count))
	}
	return nil
}

// StartLedgerCollector runs CollectLedgerDepth every interval until ctx is done.
func (m *Metrics) StartLedgerCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.CollectLedgerDepth(ctx, db); err != nil && log != nil {
					log.Warn("metrics: ledger depth query failed", "error", err)
				}
			}
		}
	}()
}
