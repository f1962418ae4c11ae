// Package app is the composition root: it owns every long-lived dependency of the API
// process and the background loops that run next to the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-portal-api/internal/academic"
	"github.com/noah-isme/campus-portal-api/internal/presence"
	"github.com/noah-isme/campus-portal-api/internal/repository"
	"github.com/noah-isme/campus-portal-api/internal/service"
	"github.com/noah-isme/campus-portal-api/pkg/cache"
	"github.com/noah-isme/campus-portal-api/pkg/config"
	"github.com/noah-isme/campus-portal-api/pkg/database"
	appErrors "github.com/noah-isme/campus-portal-api/pkg/errors"
	"github.com/noah-isme/campus-portal-api/pkg/jobs"
	"github.com/noah-isme/campus-portal-api/pkg/realtime"
	"github.com/noah-isme/campus-portal-api/pkg/storage"
)

// Services groups the domain services so commands and tests can reach them.
type Services struct {
	Metrics  *service.MetricsService
	Cache    *service.CacheService
	Semester *service.SemesterService
	Catalog  *service.CatalogService
	Notices  *service.NoticeService
	Presence *service.PresenceService
	Auth     *service.AuthService
	Exports  *service.ExportService
}

// App wires configuration, storage, services and background work together.
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	redis  *redis.Client
	hub    realtime.Hub

	Services Services
	monitor  *presence.Monitor
	queue    *jobs.Queue
	router   *gin.Engine

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New connects to Postgres (and Redis when enabled), applies migrations and builds the app.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return nil, appErrors.Transient(err, "failed to connect to database")
	}
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, logger); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, continuing without cache and shared change feed", zap.Error(err))
		rdb = nil
	}

	a, err := NewWithDeps(cfg, logger, db, rdb)
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		_ = db.Close()
		return nil, err
	}
	return a, nil
}

// NewWithDeps builds the app around already opened connections. rdb may be nil.
func NewWithDeps(cfg *config.Config, logger *zap.Logger, db *sqlx.DB, rdb *redis.Client) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, db: db, redis: rdb}
	for _, problem := range cfg.Semester.OrderingProblems() {
		logger.Warn("semester calendar out of order", zap.String("problem", problem))
	}

	if rdb != nil {
		a.hub = realtime.NewRedisHub(rdb, cfg.Realtime.Channel, logger.Named("realtime"))
	} else {
		a.hub = realtime.NewMemoryHub()
	}

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(rdb, "campus-portal", logger)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Materials.CacheTTL, logger, rdb != nil)

	ranker := academic.NewRanker(cfg.Materials.MidtermRelevanceFloor)
	clock := academic.NewClock(academic.CalendarFromConfig(cfg.Semester), nil)
	semester := service.NewSemesterService(clock, ranker)

	catalog := service.NewCatalogService(
		repository.NewMaterialRepository(db),
		repository.NewCourseRepository(db),
		semester, ranker, cacheSvc, cfg.Materials.CacheTTL, validate, logger.Named("catalog"),
	)
	notices := service.NewNoticeService(repository.NewNoticeRepository(db), cacheSvc, a.hub, metrics, cfg.Notices.CacheTTL, validate, logger.Named("notices"))
	presenceSvc := service.NewPresenceService(repository.NewPresenceRepository(db), a.hub, metrics, validate, logger.Named("presence"), service.PresenceConfig{
		StaleAfter:  cfg.Presence.StaleAfter,
		CountedPage: cfg.Presence.CountedPage,
	})
	auth := service.NewAuthService(validate, logger.Named("auth"), service.AuthConfig{
		PasswordHash:      cfg.Admin.PasswordHash,
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	a.Services = Services{
		Metrics:  metrics,
		Cache:    cacheSvc,
		Semester: semester,
		Catalog:  catalog,
		Notices:  notices,
		Presence: presenceSvc,
		Auth:     auth,
	}
	a.monitor = presence.NewMonitor(presenceSvc, a.hub, presence.MonitorConfig{
		Interval: cfg.Presence.RefreshInterval,
		Logger:   logger.Named("presence-monitor"),
	})

	if cfg.Exports.Enabled {
		if err := a.buildExports(validate, catalog, semester, ranker); err != nil {
			return nil, err
		}
	}

	a.router = a.newRouter()
	return a, nil
}

func (a *App) buildExports(validate *validator.Validate, catalog *service.CatalogService, semester *service.SemesterService, ranker academic.Ranker) error {
	files, err := storage.NewLocalStorage(a.cfg.Exports.StorageDir)
	if err != nil {
		return appErrors.Configuration(err, "invalid export storage dir")
	}
	signer := storage.NewSignedURLSigner(a.cfg.Exports.SignedURLSecret, a.cfg.Exports.SignedURLTTL)
	exports := service.NewExportService(
		repository.NewExportJobRepository(a.db), catalog, semester, ranker, files, signer,
		a.Services.Metrics, validate, a.logger.Named("exports"),
		service.ExportConfig{
			APIPrefix:       a.cfg.APIPrefix,
			ResultTTL:       a.cfg.Exports.ResultTTL,
			CleanupInterval: a.cfg.Exports.CleanupInterval,
		},
	)
	a.queue = jobs.NewQueue("catalog-exports", exports.Handle, jobs.QueueConfig{
		Workers:    a.cfg.Exports.WorkerConcurrency,
		MaxRetries: a.cfg.Exports.WorkerRetries,
		RetryDelay: 2 * time.Second,
		OnGiveUp:   exports.GiveUp,
		Logger:     a.logger.Named("exports-queue"),
	})
	exports.AttachQueue(a.queue)
	a.Services.Exports = exports
	return nil
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Start launches the background loops. Calling it again is a no-op.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started || a.stopped {
		return
	}
	a.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.Services.Catalog.Load(loopCtx); err != nil {
		a.logger.Warn("material catalog not loaded yet, will retry on first request", zap.Error(err))
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.monitor.Run(loopCtx)
	}()

	if a.queue != nil {
		a.queue.Start(loopCtx)
		a.Services.Exports.RecoverPendingJobs(loopCtx)
		a.Services.Exports.StartCleanup(loopCtx)
	}
	a.logger.Info("background workers started", zap.Bool("exports", a.queue != nil))
}

// Stop cancels the loops, drains the export queue and closes connections. It is safe to
// call more than once.
func (a *App) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil
	}
	a.stopped = true

	if a.cancel != nil {
		a.cancel()
	}
	if a.queue != nil {
		a.queue.Stop()
	}
	a.wg.Wait()

	var errs []error
	if err := a.hub.Close(); err != nil && !errors.Is(err, realtime.ErrClosed) {
		errs = append(errs, fmt.Errorf("close hub: %w", err))
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Run serves HTTP on addr until ctx is done, then shuts down gracefully.
func (a *App) Run(ctx context.Context, addr string) error {
	a.Start(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Sugar().Infow("server starting", "addr", addr, "env", a.cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
	if err := a.Stop(); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return serveErr
}
