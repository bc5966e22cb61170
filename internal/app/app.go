package app

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gorm.io/gorm"

	"github.com/yungbote/videocatalog-backend/internal/data/db"
	"github.com/yungbote/videocatalog-backend/internal/jobs/dispatch"
	"github.com/yungbote/videocatalog-backend/internal/jobs/runtime"
	"github.com/yungbote/videocatalog-backend/internal/observability"
	"github.com/yungbote/videocatalog-backend/internal/platform/logger"
	"github.com/yungbote/videocatalog-backend/internal/realtime/bus"
	"github.com/yungbote/videocatalog-backend/internal/relatedness"
)

// App holds what the server and worker processes share: the relational
// store, the ledger, the relatedness engine and the job runner.
type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Engine   *relatedness.Engine
	Registry *runtime.Registry
	Runner   *runtime.Runner
	Metrics  *observability.Metrics
	Bus      bus.Bus

	dbService *db.Service
	closers   []func() error
	closeOnce sync.Once
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	svc, err := db.NewService(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := svc.AutoMigrateAll(); err != nil {
		_ = svc.Close()
		log.Sync()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}
	theDB := svc.DB()

	a := &App{
		Log:       log,
		DB:        theDB,
		Cfg:       cfg,
		Metrics:   observability.NewMetrics(),
		dbService: svc,
	}
	a.Repos = wireRepos(theDB, log, cfg)
	a.Bus = wireBus(log, cfg)

	weights, err := loadWeights(log, cfg.TagWeightsFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Engine = relatedness.NewEngine(theDB, a.Repos.Videos, weights, log)

	a.Registry, err = wireRegistry(log, a.Repos, a.Engine)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Runner = runtime.NewRunner(
		runtime.NewProcessor(a.Registry, log),
		a.Repos.Ledger,
		log,
		runtime.WithBus(a.Bus),
		runtime.WithObserver(a.Metrics),
	)
	log.Info("App wired", "queue_backend", cfg.QueueBackend, "handlers", a.Registry.Types())
	return a, nil
}

func (a *App) dispatchDeps() dispatch.Deps {
	return dispatch.Deps{
		Ledger:     a.Repos.Ledger,
		Runner:     a.Runner,
		Bus:        a.Bus,
		Observer:   a.Metrics,
		Queue:      a.Cfg.queueName(),
		MaxRetries: a.Cfg.MaxRetries,
		Backoff:    a.Cfg.BackoffBase,
	}
}

// onClose registers fn to run on Close, newest first.
func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close is safe to call more than once.
func (a *App) Close() {
	if a == nil {
		return
	}
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil && a.Log != nil {
		a.Log.Warn("Shutdown cleanup reported errors", "error", err)
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
