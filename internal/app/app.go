package app

import (
	"academy_backend/internal/config"
	"academy_backend/internal/controller"
	"academy_backend/internal/repository"
	"academy_backend/internal/service"
	"academy_backend/pkg/configwatcher"
	"academy_backend/pkg/database"
	"academy_backend/pkg/logger"
	"academy_backend/pkg/monitoring"
	"academy_backend/pkg/security"
	"academy_backend/pkg/tracing"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ConfigFile 热更新监听的配置文件
var ConfigFile = filepath.Join("configs", "config.yaml")

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user       *repository.UserRepository
	level      *repository.LevelRepository
	xp         *repository.XPRepository
	badge      *repository.BadgeRepository
	weeklyTask *repository.WeeklyTaskRepository
	engagement *repository.EngagementRepository
	activity   *repository.ActivityRepository
}

type services struct {
	settings   *service.Settings
	hooks      *service.HookBus
	counters   *service.CounterRegistry
	activeTime *service.ActiveTimeService
	level      *service.LevelService
	xp         *service.XPService
	badge      *service.BadgeService
	weeklyTask *service.WeeklyTaskService
	ingest     *service.IngestService
	dashboard  *service.DashboardService
	catalog    *service.CatalogService
	scheduler  *service.Scheduler
}

type controllers struct {
	engagement *controller.EngagementController
	activity   *controller.ActivityController
	badge      *controller.BadgeController
	weeklyTask *controller.WeeklyTaskController
	dashboard  *controller.DashboardController
	xp         *controller.XPController
	admin      *controller.AdminController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:       repository.NewUserRepository(db),
		level:      repository.NewLevelRepository(db),
		xp:         repository.NewXPRepository(db),
		badge:      repository.NewBadgeRepository(db),
		weeklyTask: repository.NewWeeklyTaskRepository(db),
		engagement: repository.NewEngagementRepository(db),
		activity:   repository.NewActivityRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) *services {
	s := &services{}

	s.settings = service.NewSettings(cfg.Gamification)
	s.hooks = service.NewHookBus()
	s.hooks.Subscribe(service.HookBadgeAwarded, func(ctx context.Context, e service.HookEvent) error {
		logger.Log.Info("badge_awarded", zap.Uint("userID", e.UserID), zap.Uint("badgeID", e.RefID))
		return nil
	})

	s.activeTime = service.NewActiveTimeService(db, repos.engagement, repos.activity, s.settings)
	s.counters = service.NewCounterRegistry()
	if err := service.RegisterBuiltinCounters(s.counters, s.activeTime); err != nil {
		logger.Log.Fatal("Failed to register counters", zap.Error(err))
	}

	s.level = service.NewLevelService(db, repos.level)
	s.xp = service.NewXPService(db, repos.xp, repos.user, s.level)
	s.badge = service.NewBadgeService(db, repos.badge, repos.user, s.xp, s.counters, s.hooks)
	s.weeklyTask = service.NewWeeklyTaskService(db, repos.weeklyTask, repos.user, repos.activity, s.activeTime, s.settings, s.hooks)
	s.ingest = service.NewIngestService(db, repos.engagement, repos.activity, repos.user, s.xp, s.badge, s.weeklyTask, s.settings, s.hooks, rdb)
	s.dashboard = service.NewDashboardService(repos.user, repos.activity, s.activeTime, s.badge, s.weeklyTask, s.xp, s.settings)

	source, err := service.NewCatalogSource(&cfg.Storage)
	if err != nil {
		logger.Log.Fatal("Failed to initialize catalog source", zap.Error(err))
	}
	s.catalog = service.NewCatalogService(db, repos.level, repos.badge, repos.weeklyTask, source, s.settings)

	scheduler, err := service.NewScheduler(s.weeklyTask, s.activeTime, s.settings)
	if err != nil {
		logger.Log.Fatal("Failed to create scheduler", zap.Error(err))
	}
	s.scheduler = scheduler

	// 热更新只影响游戏化参数，cron 表达式需要重启生效
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		if err := s.settings.Update(newCfg.Gamification); err != nil {
			logger.Log.Error("Rejected gamification config", zap.Error(err))
		}
	})

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		engagement: controller.NewEngagementController(s.ingest, s.activeTime),
		activity:   controller.NewActivityController(s.ingest),
		badge:      controller.NewBadgeController(s.badge),
		weeklyTask: controller.NewWeeklyTaskController(s.weeklyTask, s.settings),
		dashboard:  controller.NewDashboardController(s.dashboard),
		xp:         controller.NewXPController(s.xp),
		admin:      controller.NewAdminController(s.weeklyTask, s.xp, s.catalog),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// prepareCatalog 目录为空时写入默认目录，等级表不合法直接退出
func (a *App) prepareCatalog(s *services) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := s.catalog.EnsureDefaults(ctx); err != nil {
		logger.Log.Fatal("Failed to seed catalog", zap.Error(err))
	}
	if err := s.level.ValidateCatalog(ctx); err != nil {
		logger.Log.Fatal("Invalid level catalog", zap.Error(err))
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, cfg.ForceMigrate)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, rdb)
	app.services = services
	controllers := app.initControllers(services, db, rdb)

	app.prepareCatalog(services)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("academy-gamification", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if err := a.services.scheduler.Start(); err != nil {
		logger.Log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	go func() {
		err := configwatcher.WatchConfig(ctx, ConfigFile, func(cfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(cfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher disabled", zap.Error(err))
		}
	}()

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")
	stop()

	if err := a.services.scheduler.Shutdown(); err != nil {
		logger.Log.Error("Failed to stop scheduler", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	log.Println("Server exiting")
}
