package app

import (
	"collabhub_backend/internal/config"
	"collabhub_backend/internal/controller"
	"collabhub_backend/internal/repository"
	"collabhub_backend/internal/service"
	"collabhub_backend/internal/util"
	"collabhub_backend/pkg/configwatcher"
	"collabhub_backend/pkg/database"
	"collabhub_backend/pkg/lock"
	"collabhub_backend/pkg/logger"
	"collabhub_backend/pkg/monitoring"
	"collabhub_backend/pkg/sandbox"
	"collabhub_backend/pkg/security"
	"collabhub_backend/pkg/storage"
	"collabhub_backend/pkg/tracing"
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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

	services        *services
	tracer          *sdktrace.TracerProvider
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	profile         *repository.SkillProfileRepository
	project         *repository.ProjectRepository
	challenge       *repository.ChallengeRepository
	attempt         *repository.AttemptRepository
	recommendation  *repository.RecommendationRepository
	algorithmConfig *repository.AlgorithmConfigRepository
	analytics       *repository.AnalyticsRepository
}

type services struct {
	profile    *service.SkillProfileService
	algoConfig *service.AlgorithmConfigService
	evaluator  *service.EvaluationService
	admission  *service.AdmissionService
	artifacts  *service.ArtifactService
	attempt    *service.AttemptService
	challenge  *service.ChallengeService
	matching   *service.MatchingService
	feedback   *service.FeedbackService
	analytics  *service.AnalyticsService
	sweeper    *service.AttemptSweeper
}

type controllers struct {
	recommendation *controller.RecommendationController
	profile        *controller.ProfileController
	challenge      *controller.ChallengeController
	attempt        *controller.AttemptController
	analytics      *controller.AnalyticsController
	health         *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		profile:         repository.NewSkillProfileRepository(db),
		project:         repository.NewProjectRepository(db),
		challenge:       repository.NewChallengeRepository(db),
		attempt:         repository.NewAttemptRepository(db),
		recommendation:  repository.NewRecommendationRepository(db),
		algorithmConfig: repository.NewAlgorithmConfigRepository(db),
		analytics:       repository.NewAnalyticsRepository(db),
	}
}

func newRunner(cfg *config.Config) (sandbox.Runner, error) {
	switch cfg.Sandbox.Driver {
	case util.SandboxJudge0:
		return sandbox.NewJudge0Runner(sandbox.Judge0Options{
			URL:    cfg.Judge0.URL,
			APIKey: cfg.Judge0.APIKey,
			Host:   cfg.Judge0.Host,
			Client: &http.Client{Timeout: cfg.Sandbox.TestTimeout + 30*time.Second},
		}), nil
	default:
		return sandbox.NewDockerRunner(sandbox.DockerOptions{
			Host:           cfg.Sandbox.DockerHost,
			Pull:           cfg.Sandbox.DockerPull,
			MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
		})
	}
}

func newLocker(cfg *config.Config, rdb *redis.Client) lock.Locker {
	if cfg.Admission.LockBackend == util.LockRedis && rdb != nil {
		return lock.NewRedisLocker(rdb, "collabhub:lock:", cfg.Admission.LockTTL)
	}
	return lock.NewLocalLocker()
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*services, error) {
	s := &services{}

	runner, err := newRunner(cfg)
	if err != nil {
		return nil, err
	}

	// 评测缓存只在 redis 可用时启用
	var cache service.ResultCache
	if rdb != nil {
		cache = service.NewRedisResultCache(rdb)
	}

	provider, err := storage.New(&cfg.Storage)
	if err != nil {
		return nil, err
	}

	bank := service.NewChallengeBank()
	if err := bank.LoadFromDir(cfg.Challenges.BankDir); err != nil {
		return nil, fmt.Errorf("load challenge bank: %w", err)
	}

	s.profile = service.NewSkillProfileService(repos.profile, repos.project)
	s.algoConfig = service.NewAlgorithmConfigService(repos.algorithmConfig, cfg)
	s.evaluator = service.NewEvaluationService(runner, cache, cfg.Sandbox)
	s.admission = service.NewAdmissionService(repos.project, repos.attempt, repos.recommendation, s.algoConfig, db)
	s.artifacts = service.NewArtifactService(provider)
	s.attempt = service.NewAttemptService(
		repos.attempt,
		s.evaluator,
		s.admission,
		s.algoConfig,
		s.artifacts,
		newLocker(cfg, rdb),
		db,
		cfg.Admission,
	)
	s.challenge = service.NewChallengeService(
		repos.project,
		repos.challenge,
		repos.attempt,
		repos.recommendation,
		s.algoConfig,
		s.attempt,
		bank,
	)
	s.matching = service.NewMatchingService(repos.profile, repos.project, repos.recommendation, s.algoConfig)
	s.feedback = service.NewFeedbackService(repos.recommendation, repos.project)
	s.analytics = service.NewAnalyticsService(repos.analytics, s.algoConfig, db)
	s.sweeper = service.NewAttemptSweeper(s.attempt, cfg.Admission.SweepInterval)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.algoConfig.EnsureSeeded(ctx); err != nil {
		return nil, fmt.Errorf("seed algorithm config: %w", err)
	}

	// 热更新：权重默认值、评测参数、准入参数
	a.RegisterConfigCallback(func(newCfg *config.Config) {
		s.algoConfig.UpdateDefaults(newCfg)
		s.evaluator.UpdateSettings(newCfg.Sandbox)
		s.attempt.UpdateSettings(newCfg.Admission)
	})

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB) *controllers {
	return &controllers{
		recommendation: controller.NewRecommendationController(s.matching, s.feedback),
		profile:        controller.NewProfileController(s.profile),
		challenge:      controller.NewChallengeController(s.challenge),
		attempt:        controller.NewAttemptController(s.attempt),
		analytics:      controller.NewAnalyticsController(s.analytics, s.algoConfig, s.admission),
		health:         controller.NewHealthController(db),
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

func (a *App) startBackgroundTasks(ctx context.Context, s *services) {
	go s.sweeper.Run(ctx)

	if a.Config.Server.WatchConfig && a.Config.ConfigFile != "" {
		err := configwatcher.WatchConfig(ctx, a.Config.ConfigFile, func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Error("Failed to watch config file", zap.Error(err))
		}
	}
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
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
		log.Fatalf("Failed to initialize redis: %v", err)
	}
	app.Redis = rdb

	repos := app.initRepositories(db)
	services, err := app.initServices(repos, cfg, db, rdb)
	if err != nil {
		logger.Log.Fatal("Failed to initialize services", zap.Error(err))
	}
	app.services = services
	controllers := app.initControllers(services, db)

	// 监控初始化
	monitoring.Init()

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(tracing.ServiceName, cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracer = tp
	}

	app.registerRoutes(router, controllers, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel
	app.startBackgroundTasks(ctx, services)

	return app
}

func (a *App) Run() {
	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	// 停止 sweeper 与配置监听
	if a.cancel != nil {
		a.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}

	logger.Log.Info("Server exiting")
}
