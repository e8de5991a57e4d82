package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/cms-api/api/swagger"
	"github.com/noah-isme/cms-api/internal/handler"
	"github.com/noah-isme/cms-api/internal/middleware"
	"github.com/noah-isme/cms-api/internal/repository"
	"github.com/noah-isme/cms-api/internal/service"
	"github.com/noah-isme/cms-api/pkg/cache"
	"github.com/noah-isme/cms-api/pkg/config"
	"github.com/noah-isme/cms-api/pkg/database"
	"github.com/noah-isme/cms-api/pkg/jobs"
	"github.com/noah-isme/cms-api/pkg/logger"
	"github.com/noah-isme/cms-api/pkg/metadata"
	corsmiddleware "github.com/noah-isme/cms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cms-api/pkg/middleware/requestid"
)

// @title Corporate CMS API
// @version 1.0.0
// @description Notices, software licenses and users behind SSO-issued tokens
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.LoadAndValidate()
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, cfgErr.Error())
			os.Exit(2)
		}
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := database.MigrateUp(cfg.Database.DatabaseURL()); err != nil {
			logr.Sugar().Fatalw("failed to apply migrations", "error", err)
		}
		logr.Info("database migrations applied")
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.NoticeCache.Enabled {
		redisClient, err = cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, notice cache disabled", "error", err)
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	noticeRepo := repository.NewNoticeRepository(db)
	softwareRepo := repository.NewSoftwareRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, "notices", logr)

	metadataClient := metadata.NewClient(cfg.Metadata.ServerURL, cfg.Metadata.APIKey,
		metadata.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}))

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.NoticeCache.TTL, logr, redisClient != nil)
	tokenSvc := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.ExpiresIn)
	noticeSvc := service.NewNoticeService(noticeRepo, cacheSvc, metrics, validate, logr)
	softwareSvc := service.NewSoftwareService(softwareRepo, validate, logr)
	userSvc := service.NewUserService(userRepo, validate, logr)
	authSvc := service.NewAuthService(userRepo, auditRepo, logr)
	syncSvc := service.NewSyncService(metadataClient, userRepo, cfg.Metadata.PageSize, logr)

	probeClient := &http.Client{Timeout: cfg.HealthCheckTimeout}
	bootstrap := service.NewBootstrapService(cfg, logr,
		service.HTTPHealthProbe("sso", cfg.SSO.ServerURL, probeClient),
		service.HealthProbe{Name: "metadata", Check: metadataClient.Health},
	)
	if _, err := bootstrap.Run(ctx); err != nil {
		logr.Sugar().Fatalw("bootstrap failed", "error", err)
	}

	if cfg.Sync.MaintenanceEnabled {
		runner := service.NewMaintenanceRunner(noticeSvc, syncSvc, auditRepo, metrics, cfg.Sync.Interval, logr)
		mux := jobs.NewMux()
		runner.Register(mux)
		queue := jobs.NewQueue("maintenance", mux.Dispatch, jobs.QueueConfig{
			Workers:    1,
			BufferSize: 8,
			MaxRetries: 3,
			RetryDelay: 30 * time.Second,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()
		runner.Start(ctx, queue)
		logr.Sugar().Infow("maintenance runner started", "interval", cfg.Sync.Interval)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.Register(r, cfg.APIPrefix, handler.RouterDeps{
		Verifier:    tokenSvc,
		Notices:     handler.NewNoticeHandler(noticeSvc),
		Software:    handler.NewSoftwareHandler(softwareSvc),
		Users:       handler.NewUserHandler(userSvc),
		Auth:        handler.NewAuthHandler(authSvc),
		Health:      handler.NewMetricsHandler(metrics, db, cfg.HealthCheckTimeout),
		Audit:       auditRepo,
		ViewLimiter: middleware.NewClientLimiter(cfg.RateLimit.ViewsPerSecond, cfg.RateLimit.Burst),
		Logger:      logr,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
