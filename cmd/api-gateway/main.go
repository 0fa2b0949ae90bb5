package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/intern-bli-api/api/swagger"
	"github.com/noah-isme/intern-bli-api/internal/handler"
	"github.com/noah-isme/intern-bli-api/internal/middleware"
	"github.com/noah-isme/intern-bli-api/internal/models"
	"github.com/noah-isme/intern-bli-api/internal/repository"
	"github.com/noah-isme/intern-bli-api/internal/service"
	"github.com/noah-isme/intern-bli-api/pkg/cache"
	"github.com/noah-isme/intern-bli-api/pkg/config"
	"github.com/noah-isme/intern-bli-api/pkg/database"
	"github.com/noah-isme/intern-bli-api/pkg/jobs"
	"github.com/noah-isme/intern-bli-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/intern-bli-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/intern-bli-api/pkg/middleware/requestid"
	"github.com/noah-isme/intern-bli-api/pkg/storage"
)

// @title Intern BLI API
// @version 1.0.0
// @description Internship application lifecycle service
// @BasePath /api/v1
// @schemes http
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, session cache disabled", "error", err)
		redisClient = nil
	}

	files, err := storage.NewLocalStorage(cfg.Documents.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to init document storage", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Documents.SignedURLSecret, cfg.Documents.SignedURLTTL)

	validate := validator.New()

	sessionRepo := repository.NewSessionRepository(db, redisClient, cfg.Sessions.ActiveCacheTTL)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	applicationRepo := repository.NewApplicationRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	sessionSvc := service.NewSessionService(sessionRepo, enrollmentRepo, files, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, sessionRepo, auditRepo, validate, logr)
	applicationSvc := service.NewApplicationService(applicationRepo, enrollmentSvc, auditRepo, metricsSvc, validate, logr)
	documentSvc := service.NewDocumentService(applicationRepo, enrollmentSvc, files, signer, auditRepo, service.DocumentLimits{
		MaxFileSizeBytes: cfg.Documents.MaxFileSizeBytes,
		AllowedMIMEs:     cfg.Documents.AllowedMIMEs,
	}, validate, logr)

	var notificationSvc *service.NotificationService
	if cfg.Notifications.Enabled {
		notificationSvc = service.NewNotificationService(applicationRepo, userRepo, sessionRepo, files, jobs.QueueConfig{
			Workers:    cfg.Notifications.WorkerConcurrency,
			MaxRetries: cfg.Notifications.WorkerRetries,
			Logger:     logr,
		}, logr)
		notificationSvc.Start(context.Background())
		defer notificationSvc.Stop()
	}
	var notifier service.ApprovalNotifier
	if notificationSvc != nil {
		notifier = notificationSvc
	}
	reviewSvc := service.NewReviewService(applicationRepo, enrollmentSvc, auditRepo, metricsSvc, notifier, validate, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	applicationHandler := handler.NewApplicationHandler(applicationSvc)
	documentHandler := handler.NewDocumentHandler(documentSvc)
	reviewHandler := handler.NewReviewHandler(reviewSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	// Token redemption authenticates via the signed token itself.
	api.GET("/documents/download", documentHandler.Download)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator)
	reviewers := middleware.RequireRoles(models.RoleAdmin, models.RoleCoordinator, models.RoleSupervisor)
	students := middleware.RequireRoles(models.RoleStudent)

	authed.POST("/sessions", staff, sessionHandler.Create)
	authed.GET("/sessions", reviewers, sessionHandler.List)
	authed.GET("/sessions/active", sessionHandler.GetActive)
	authed.GET("/sessions/:id", reviewers, sessionHandler.Get)
	authed.PUT("/sessions/:id", staff, sessionHandler.Update)
	authed.DELETE("/sessions/:id", staff, sessionHandler.Delete)
	authed.POST("/sessions/:id/activate", middleware.RequireRoles(models.RoleAdmin), sessionHandler.SetActive)
	authed.POST("/sessions/:id/signature", staff, sessionHandler.AttachSignature)
	authed.GET("/sessions/:id/enrollments", reviewers, enrollmentHandler.ListBySession)

	authed.POST("/enrollments", staff, enrollmentHandler.Enroll)
	authed.PUT("/enrollments/:id/credits", staff, enrollmentHandler.UpdateCredits)
	authed.GET("/enrollments/me", students, enrollmentHandler.Mine)

	authed.POST("/applications", students, applicationHandler.Create)
	authed.GET("/applications", reviewers, applicationHandler.List)
	authed.GET("/applications/me", students, applicationHandler.Mine)
	authed.GET("/applications/:id", applicationHandler.Get)
	authed.POST("/applications/:id/submit", students, applicationHandler.Submit)
	authed.POST("/applications/:id/reject", staff, applicationHandler.Reject)
	authed.GET("/applications/:id/reviews", reviewHandler.ListByApplication)
	authed.GET("/applications/:id/audit", staff, applicationHandler.AuditTrail)
	authed.POST("/applications/:id/documents", students, documentHandler.Upload)

	authed.POST("/documents/:id/review", reviewers, reviewHandler.Decide)
	authed.POST("/documents/:id/sign", documentHandler.Sign)
	authed.POST("/documents/:id/download-token", documentHandler.DownloadToken)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
