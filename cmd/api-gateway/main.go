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

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-identity-api/api/swagger"
	"github.com/noah-isme/sma-identity-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-identity-api/internal/middleware"
	"github.com/noah-isme/sma-identity-api/internal/repository"
	"github.com/noah-isme/sma-identity-api/internal/service"
	"github.com/noah-isme/sma-identity-api/pkg/cache"
	"github.com/noah-isme/sma-identity-api/pkg/config"
	"github.com/noah-isme/sma-identity-api/pkg/database"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
	"github.com/noah-isme/sma-identity-api/pkg/jobs"
	"github.com/noah-isme/sma-identity-api/pkg/logger"
	"github.com/noah-isme/sma-identity-api/pkg/mail"
	corsmiddleware "github.com/noah-isme/sma-identity-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-identity-api/pkg/middleware/requestid"
)

// @title SMA Identity API
// @version 1.0.0
// @description Multi-tenant identity provisioning and leave workflows
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
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

	db, err := database.NewPostgres(context.Background(), cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.TenantCache.Enabled {
		redisClient, err = cache.NewRedis(context.Background(), cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, tenant cache disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	appErrors.UseJSONNames(validate)
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	tenantRepo := repository.NewTenantRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	teacherRepo := repository.NewTeacherRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	store := repository.NewProvisioningStore(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, "sma-identity", logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.TenantCache.TTL, logr, redisClient != nil)
	tenants := service.NewTenantDirectory(tenantRepo, cacheSvc)

	sender, err := mail.NewSender(cfg.Mail, logr)
	if err != nil {
		logr.Fatal("failed to configure mail sender", zap.Error(err))
	}
	notifications := service.NewNotificationService(sender, metrics, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notifications.Start(ctx)
	defer notifications.Stop()

	provisioningSvc := service.NewProvisioningService(store, tenants, notifications, metrics, validate, logr, service.ProvisioningConfig{
		MaxLoginIDAttempts:      cfg.Provisioning.MaxLoginIDAttempts,
		GeneratedPasswordLength: cfg.Provisioning.GeneratedPasswordLength,
		BulkMaxRows:             cfg.Provisioning.BulkMaxRows,
		BulkConcurrency:         cfg.Provisioning.BulkConcurrency,
	})
	leaveSvc := service.NewLeaveService(leaveRepo, studentRepo, teacherRepo, userRepo, metrics, validate, logr)

	var audience []string
	if cfg.JWT.Audience != "" {
		audience = []string{cfg.JWT.Audience}
	}
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
		Audience:          audience,
		Leeway:            cfg.JWT.Leeway,
	})

	checks := map[string]handler.Pinger{"postgres": db}
	if redisClient != nil {
		checks["redis"] = handler.PingFunc(cache.Ping(redisClient))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	handler.RegisterRoutes(r, handler.Routes{
		Prefix:       cfg.APIPrefix,
		Auth:         handler.NewAuthHandler(authSvc),
		Provisioning: handler.NewProvisioningHandler(provisioningSvc),
		Leaves:       handler.NewLeaveHandler(leaveSvc),
		Metrics:      handler.NewMetricsHandler(metrics, checks),
		Authenticate: internalmiddleware.JWT(authSvc),
		Audit: func(action, resource string) gin.HandlerFunc {
			return internalmiddleware.Audit(userRepo, logr, action, resource)
		},
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
