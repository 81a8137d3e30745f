package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/gaugeworks/gaugetrack-backend/internal/database"
	"github.com/gaugeworks/gaugetrack-backend/internal/observability"
	"github.com/gaugeworks/gaugetrack-backend/internal/pkg/logger"
	"github.com/gaugeworks/gaugetrack-backend/internal/server"
)

// App is the composed application: storage, repos, services and the
// operational HTTP shell.
type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *database.Service
	Metrics  *observability.Metrics
	Repos    Repos
	Services Services
	Router   *gin.Engine
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg := LoadConfig(log)

	dbsvc, err := database.Open(database.ConfigFromEnv(log), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}

	var metrics *observability.Metrics
	if observability.Enabled() {
		metrics = observability.NewMetrics()
	}

	reposet := wireRepos(dbsvc.DB(), log)

	serviceset, err := wireServices(ctx, dbsvc, log, cfg, reposet, metrics)
	if err != nil {
		dbsvc.Close()
		log.Sync()
		return nil, err
	}

	router := server.NewRouter(server.RouterConfig{
		Log:       log,
		Readiness: dbsvc.Ping,
		Metrics:   metrics,
	})

	return &App{
		Log:      log,
		Cfg:      cfg,
		DB:       dbsvc,
		Metrics:  metrics,
		Repos:    reposet,
		Services: serviceset,
		Router:   router,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then drains in-flight
// requests within the configured grace period.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + a.Cfg.Port,
		Handler: a.Router,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.Log.Info("shutting down", "grace", a.Cfg.ShutdownGrace())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Cfg.ShutdownGrace())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
