package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/eduplan-api/api/swagger"
	"github.com/noah-isme/eduplan-api/internal/handler"
	"github.com/noah-isme/eduplan-api/internal/middleware"
	"github.com/noah-isme/eduplan-api/internal/models"
	"github.com/noah-isme/eduplan-api/internal/repository"
	"github.com/noah-isme/eduplan-api/internal/service"
	"github.com/noah-isme/eduplan-api/pkg/config"
	"github.com/noah-isme/eduplan-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/eduplan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/eduplan-api/pkg/middleware/requestid"
)

type routerDeps struct {
	metrics     *service.MetricsService
	auth        *service.AuthService
	profiles    *service.ProfileService
	audit       *repository.AuditRepository
	usage       *handler.UsageHandler
	generation  *handler.GenerationHandler
	exams       *handler.ExamHandler
	submissions *handler.SubmissionHandler
	grading     *handler.GradingHandler
	exports     *handler.ExportHandler
	health      *handler.MetricsHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", deps.health.Health)
	r.GET("/ready", deps.health.Ready)
	if deps.metrics != nil {
		r.GET("/metrics", deps.health.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/exports/:token", deps.exports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(deps.auth), middleware.Profile(deps.profiles))
	secured.GET("/me", deps.usage.Me)
	secured.GET("/usage", deps.usage.Summary)

	staff := secured.Group("")
	staff.Use(middleware.RequireRoles(models.RoleEducator, models.RoleSchoolAdmin))
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(deps.audit, logr, action, resource)
	}

	staff.POST("/generate/:kind", deps.generation.Generate)

	staff.POST("/exams", audit(models.AuditActionExamCreate, "exam"), deps.exams.Create)
	staff.GET("/exams", deps.exams.List)
	staff.GET("/exams/:id", deps.exams.Get)
	staff.DELETE("/exams/:id", audit(models.AuditActionExamDelete, "exam"), deps.exams.Delete)
	staff.POST("/exams/:id/submissions", audit(models.AuditActionSubmissionCreate, "exam"), deps.submissions.Upload)
	staff.GET("/exams/:id/submissions", deps.submissions.ListByExam)

	staff.GET("/submissions/:id", deps.submissions.Get)
	staff.POST("/submissions/:id/grade", audit(models.AuditActionGradingRequest, "submission"), deps.grading.Grade)
	staff.GET("/submissions/:id/result", deps.grading.Result)
	staff.POST("/submissions/:id/overrides", deps.grading.Override)
	staff.POST("/submissions/:id/export", audit(models.AuditActionResultExport, "submission"), deps.exports.Create)

	return r
}
