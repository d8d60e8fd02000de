package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vigia_backend/internal/config"
	"vigia_backend/internal/controller"
	"vigia_backend/internal/repository"
	"vigia_backend/internal/service"
	"vigia_backend/pkg/database"
	"vigia_backend/pkg/logger"
	"vigia_backend/pkg/monitoring"
	"vigia_backend/pkg/security"
	"vigia_backend/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services *services
	tracer   *sdktrace.TracerProvider
	ctx      context.Context
	cancel   context.CancelFunc

	mu              sync.Mutex
	configCallbacks []func(*config.Config)
}

type repositories struct {
	tx            *repository.Transactor
	track         *repository.TrackRepository
	participation *repository.ParticipationRepository
	form          *repository.FormRepository
	progress      *repository.ProgressRepository
	submission    *repository.QuizSubmissionRepository
	lockCache     service.LockCache
}

type services struct {
	trackProgress  *service.TrackProgressService
	quizSubmission *service.QuizSubmissionService
}

type controllers struct {
	trackProgress  *controller.TrackProgressController
	quizSubmission *controller.QuizSubmissionController
	health         *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.configCallbacks = append(a.configCallbacks, callback)
}

// ApplyConfig hands a reloaded configuration to every registered callback.
func (a *App) ApplyConfig(cfg *config.Config) {
	a.mu.Lock()
	callbacks := append([]func(*config.Config){}, a.configCallbacks...)
	a.mu.Unlock()
	for _, cb := range callbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *repositories {
	var lockCache service.LockCache = repository.NoopLockCache{}
	if rdb != nil {
		lockCache = repository.NewRedisLockCache(rdb, cfg.Progress.LockCacheTTL())
	}
	return &repositories{
		tx:            repository.NewTransactor(db),
		track:         repository.NewTrackRepository(db),
		participation: repository.NewParticipationRepository(db),
		form:          repository.NewFormRepository(db),
		progress:      repository.NewProgressRepository(db),
		submission:    repository.NewQuizSubmissionRepository(db),
		lockCache:     lockCache,
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config) *services {
	s := &services{}
	s.trackProgress = service.NewTrackProgressService(
		repos.tx,
		repos.track,
		repos.participation,
		repos.form,
		repos.progress,
		repos.submission,
		repos.lockCache,
		cfg.Progress.EnforceSequenceLock,
	)
	s.quizSubmission = service.NewQuizSubmissionService(
		repos.tx,
		repos.participation,
		repos.form,
		repos.submission,
	)

	// 热更新：顺序锁开关
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.trackProgress.SetEnforceSequenceLock(newCfg.Progress.EnforceSequenceLock)
		logger.Log.Info("Sequence lock enforcement updated",
			zap.Bool("enforce", newCfg.Progress.EnforceSequenceLock))
	})
	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		trackProgress:  controller.NewTrackProgressController(s.trackProgress),
		quizSubmission: controller.NewQuizSubmissionController(s.quizSubmission),
		health:         controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.RequestID())
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == "debug")
	if err != nil {
		return nil, err
	}

	if cfg.Server.Mode != "release" || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		ctx:    ctx,
		cancel: cancel,
	}
	if cfg.MigrateOnly {
		return app, nil
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			cancel()
			return nil, err
		}
		app.Redis = rdb
	} else {
		logger.Log.Info("Redis disabled, sequence locks are computed on every request")
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("vigia-learning", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			cancel()
			return nil, err
		}
		app.tracer = tp
	}

	repos := app.initRepositories(db, app.Redis, cfg)
	app.services = app.initServices(repos, cfg)
	ctrls := app.initControllers(app.services, db, app.Redis)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, ctrls, cfg)

	return app, nil
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}
	a.Close(ctx)
	logger.Log.Info("Server exiting")
}

// Close releases background goroutines, the tracer and the store connections.
func (a *App) Close(ctx context.Context) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// Context is cancelled when the app closes.
func (a *App) Context() context.Context {
	return a.ctx
}
