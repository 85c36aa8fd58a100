package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/eduplan-api/internal/handler"
	"github.com/noah-isme/eduplan-api/internal/repository"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/internal/usage"
	"github.com/noah-isme/eduplan-api/pkg/ai"
	"github.com/noah-isme/eduplan-api/pkg/cache"
	"github.com/noah-isme/eduplan-api/pkg/config"
	"github.com/noah-isme/eduplan-api/pkg/database"
	"github.com/noah-isme/eduplan-api/pkg/email"
	"github.com/noah-isme/eduplan-api/pkg/jobs"
	"github.com/noah-isme/eduplan-api/pkg/logger"
	"github.com/noah-isme/eduplan-api/pkg/notify"
	"github.com/noah-isme/eduplan-api/pkg/retry"
	"github.com/noah-isme/eduplan-api/pkg/storage"
)

// @title EduPlan API
// @version 1.0.0
// @description Metered teaching-material generation, AI grading and exports for educators.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	switch {
	case errors.Is(err, cache.ErrDisabled):
		logr.Info("redis disabled; alert cooldowns use postgres and profile caching is off")
	case err != nil:
		logr.Warn("redis unavailable; falling back to postgres cooldowns", zap.Error(err))
	default:
		defer redisClient.Close()
	}

	tiers, err := usage.LoadTable(cfg.Usage.TierFile)
	if err != nil {
		logr.Fatal("failed to load tier table", zap.Error(err))
	}

	uploads, err := storage.NewLocalStorage(cfg.Storage.UploadDir)
	if err != nil {
		logr.Fatal("failed to prepare upload storage", zap.Error(err))
	}
	exports, err := storage.NewLocalStorage(cfg.Storage.ExportDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}
	validate := validator.New()
	policy := retry.FromConfig(cfg.Retry)

	mailer, err := email.NewSender(cfg.Email, policy, logr)
	if err != nil {
		logr.Fatal("failed to configure email", zap.Error(err))
	}

	profileRepo := repository.NewProfileRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	usageRepo := repository.NewUsageRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	examRepo := repository.NewExamRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	gradingRepo := repository.NewGradingRepository(db)

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Usage.ProfileCacheTTL, logr, redisClient != nil)

	notifications := service.NewNotificationService(
		notify.NewWebhookClient(cfg.Notifications.WebhookURL, 10*time.Second, policy, logr),
		mailer, alertRepo, metrics, logr,
	)
	notificationQueue := jobs.NewQueue("usage-alerts", notifications.Handle, jobs.QueueConfig{
		Workers:       cfg.Notifications.Workers,
		BufferSize:    cfg.Notifications.QueueSize,
		MaxRetries:    2,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: 30 * time.Second,
		Logger:        logr,
	})

	alerts := service.NewAlertService(cooldownStore(redisClient, alertRepo), notificationQueue, metrics, logr, cfg.Usage.AlertCooldown)
	notifications.SetCooldown(alerts)
	usageSvc := service.NewUsageService(usageRepo, usage.NewGate(tiers), alerts, metrics, logr, service.UsageConfig{FailOpen: cfg.Usage.FailOpen})
	profileSvc := service.NewProfileService(profileRepo, cacheSvc, cfg.Usage.ProfileCacheTTL, logr)
	authSvc := service.NewAuthService(logr, service.AuthConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})

	aiClient := ai.NewClient(cfg.AI, policy, logr)
	generationSvc := service.NewGenerationService(aiClient, usageSvc, validate, logr, service.GenerationConfig{
		StandardModel: cfg.AI.StandardModel,
		AdvancedModel: cfg.AI.AdvancedModel,
	})
	examSvc := service.NewExamService(examRepo, validate, logr)
	submissionSvc := service.NewSubmissionService(submissionRepo, examSvc, uploads, usageSvc, validate, logr)
	gradingSvc := service.NewGradingService(service.GradingDeps{
		Submissions: submissionRepo,
		Exams:       examRepo,
		Results:     gradingRepo,
		Storage:     uploads,
		AI:          aiClient,
		Usage:       usageSvc,
		Audit:       auditRepo,
		Metrics:     metrics,
	}, validate, logr, service.GradingConfig{Model: cfg.AI.GradingModel})
	gradingQueue := jobs.NewQueue("grading", gradingSvc.Process, jobs.QueueConfig{
		Workers:    cfg.Grading.Workers,
		BufferSize: cfg.Grading.QueueSize,
		OnGiveUp:   gradingSvc.HandleGiveUp,
		Logger:     logr,
	})
	gradingSvc.SetQueue(gradingQueue)

	exportSvc := service.NewExportService(gradingSvc, usageSvc, exports,
		storage.NewSignedURLSigner(cfg.Storage.SignedURLSecret, cfg.Storage.SignedURLTTL),
		service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Storage.ExportTTL},
		logr,
	)

	notificationQueue.Start(ctx)
	gradingQueue.Start(ctx)
	go exportSvc.RunCleanup(ctx, cfg.Storage.CleanupInterval)

	router := newRouter(cfg, logr, routerDeps{
		metrics:     metrics,
		auth:        authSvc,
		profiles:    profileSvc,
		audit:       auditRepo,
		usage:       handler.NewUsageHandler(usageSvc),
		generation:  handler.NewGenerationHandler(generationSvc),
		exams:       handler.NewExamHandler(examSvc),
		submissions: handler.NewSubmissionHandler(submissionSvc, maxUploadBytes(tiers)),
		grading:     handler.NewGradingHandler(gradingSvc),
		exports:     handler.NewExportHandler(exportSvc),
		health:      handler.NewMetricsHandler(metrics, db),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
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
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	gradingQueue.Stop()
	notificationQueue.Stop()
}

type cooldownClaimer interface {
	Claim(ctx context.Context, userID, template string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, userID, template string) error
}

// cooldownStore prefers Redis slots and falls back to the Postgres table when Redis is off.
func cooldownStore(client *redis.Client, alerts *repository.AlertRepository) cooldownClaimer {
	if client == nil {
		return alerts
	}
	return repository.NewCooldownRepository(client)
}

// maxUploadBytes is the request body cap applied before the caller's tier is known.
func maxUploadBytes(table *usage.Table) int64 {
	var largest int64
	for _, tier := range usage.Tiers {
		if limit := table.Limits(tier).MaxUploadBytes; limit > largest {
			largest = limit
		}
	}
	return largest
}
