package app

import (
	"context"
	"time"

	httpx "github.com/yungbote/videocatalog-backend/internal/http"
	httpH "github.com/yungbote/videocatalog-backend/internal/http/handlers"
	httpMW "github.com/yungbote/videocatalog-backend/internal/http/middleware"
	"github.com/yungbote/videocatalog-backend/internal/jobs/dispatch"
	"github.com/yungbote/videocatalog-backend/internal/observability"
	"github.com/yungbote/videocatalog-backend/internal/queue"
	"github.com/yungbote/videocatalog-backend/internal/realtime"
)

const (
	serverShutdownGrace   = 10 * time.Second
	ledgerCollectInterval = 30 * time.Second
)

// RunServer serves the HTTP API until ctx is cancelled.
func (a *App) RunServer(ctx context.Context) error {
	shutdownOTel := observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: a.Cfg.ServiceName,
		Environment: a.Cfg.Environment,
	})
	a.onClose(func() error {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownOTel(sctx)
	})

	var producer queue.Producer
	if p, err := a.openProducer(ctx); err != nil {
		a.Log.Warn("Queue backend failed to open; jobs will run inline", "backend", a.Cfg.QueueBackend, "error", err)
	} else {
		producer = p
	}
	dispatcher := dispatch.New(ctx, producer, a.dispatchDeps(), a.Log)

	hub := realtime.NewHub(a.Log)
	a.onClose(func() error {
		hub.Close()
		return nil
	})
	if err := a.Bus.StartForwarder(ctx, hub.Broadcast); err != nil {
		a.Log.Warn("Job event forwarder failed to start", "error", err)
	}

	a.Metrics.StartLedgerCollector(ctx, a.Log, a.DB, ledgerCollectInterval)

	srv := httpx.NewServer(httpx.RouterConfig{
		ServiceName:     a.Cfg.ServiceName,
		Log:             a.Log,
		Metrics:         a.Metrics,
		CORSOrigins:     a.Cfg.CORSOrigins,
		AdminMiddleware: httpMW.NewAdminMiddleware(a.Cfg.AdminEmails),
		QueueHandler:    httpH.NewQueueHandler(a.Log, dispatcher, a.Repos.Ledger),
		VideoHandler:    httpH.NewVideoHandler(a.Engine),
		RealtimeHandler: httpH.NewRealtimeHandler(a.Log, hub),
		HealthHandler:   httpH.NewHealthHandler(),
	})

	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr, "dispatch_mode", dispatcher.Mode())
	if err := srv.Run(ctx, addr, serverShutdownGrace); err != nil {
		return err
	}
	a.Log.Info("Server stopped")
	return nil
}
