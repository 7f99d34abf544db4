package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/lms-adp-api/api/swagger"
	"github.com/noah-isme/lms-adp-api/internal/handler"
	"github.com/noah-isme/lms-adp-api/internal/middleware"
	"github.com/noah-isme/lms-adp-api/internal/models"
	"github.com/noah-isme/lms-adp-api/internal/repository"
	"github.com/noah-isme/lms-adp-api/internal/service"
	"github.com/noah-isme/lms-adp-api/pkg/cache"
	"github.com/noah-isme/lms-adp-api/pkg/config"
	"github.com/noah-isme/lms-adp-api/pkg/database"
	"github.com/noah-isme/lms-adp-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/lms-adp-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/lms-adp-api/pkg/middleware/requestid"
)

// @title LMS ADP API
// @version 0.1.0
// @description Course content ordering and progress tracking service
// @BasePath /
// @schemes http

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

	cacheRepo := repository.NewCacheRepository(nil, logr)
	if cfg.Progress.CacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, completion caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(client, logr)
		}
	}
	defer cacheRepo.Close() //nolint:errcheck

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	moduleRepo := repository.NewModuleRepository(db)
	videoRepo := repository.NewVideoRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	progressRepo := repository.NewVideoProgressRepository(db)
	reportRepo := repository.NewReportRepository(db)

	validate := validator.New()
	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})

	progressSvc := service.NewProgressService(
		progressRepo,
		videoRepo,
		moduleRepo,
		enrollmentRepo,
		cacheRepo,
		cfg.Progress.CacheTTL,
		validate,
		logr,
	)
	progressSvc.SetMetrics(metricsSvc)
	moduleSvc := service.NewModuleService(moduleRepo, courseRepo, progressSvc, validate, logr)
	videoSvc := service.NewVideoService(videoRepo, moduleRepo, progressSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, progressSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, validate, logr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		reportSvc = service.NewReportService(reportRepo, enrollmentRepo, courseRepo, service.ReportServiceConfig{
			WorkerConcurrency: cfg.Reports.WorkerConcurrency,
			WorkerRetries:     cfg.Reports.WorkerRetries,
		}, validate, logr)
		reportSvc.Start(ctx)
		defer reportSvc.Stop()

		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					cutoff := time.Now().UTC().Add(-cfg.Reports.ResultTTL)
					if n, err := reportRepo.DeleteFinishedBefore(ctx, cutoff); err != nil {
						logr.Sugar().Warnw("report cleanup failed", "error", err)
					} else if n > 0 {
						logr.Sugar().Infow("report cleanup", "deleted", n)
					}
				}
			}
		}()
	}

	authHandler := handler.NewAuthHandler(authSvc)
	courseHandler := handler.NewCourseHandler(courseSvc)
	moduleHandler := handler.NewModuleHandler(moduleSvc, metricsSvc)
	videoHandler := handler.NewVideoHandler(videoSvc, metricsSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, progressSvc)
	progressHandler := handler.NewProgressHandler(progressSvc, metricsSvc)
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
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
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
	api.POST("/auth/refresh", authHandler.Refresh)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/auth/logout", authHandler.Logout)
	authed.PUT("/auth/password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)

	authed.GET("/courses", courseHandler.List)
	authed.GET("/courses/:id", courseHandler.Get)
	authed.GET("/courses/:id/modules", moduleHandler.ListByCourse)
	authed.GET("/courses/:id/completion", progressHandler.GetCourseCompletion)

	authed.GET("/modules/:id", moduleHandler.Get)
	authed.GET("/modules/:id/videos", videoHandler.ListByModule)
	authed.GET("/modules/:id/progress", progressHandler.ListModuleProgress)

	authed.GET("/videos/:id", videoHandler.Get)
	authed.GET("/videos/:id/progress", progressHandler.GetVideoProgress)

	authed.GET("/enrollments", enrollmentHandler.List)
	authed.GET("/enrollments/:id", enrollmentHandler.Get)
	authed.POST("/enrollments", enrollmentHandler.Create)
	authed.DELETE("/enrollments/:id", enrollmentHandler.Delete)

	authed.POST("/progress/watch", progressHandler.RecordWatch)

	content := authed.Group("")
	content.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor))

	content.POST("/courses", courseHandler.Create)
	content.PUT("/courses/:id", courseHandler.Update)
	content.DELETE("/courses/:id", courseHandler.Delete)
	content.PUT("/courses/:id/modules/reorder", moduleHandler.Reorder)

	content.POST("/modules", moduleHandler.Create)
	content.PUT("/modules/:id", moduleHandler.Update)
	content.PUT("/modules/:id/position", moduleHandler.Move)
	content.DELETE("/modules/:id", moduleHandler.Delete)
	content.PUT("/modules/:id/videos/reorder", videoHandler.Reorder)
	content.PUT("/modules/:id/videos/publish", videoHandler.BulkPublish)

	content.POST("/videos", videoHandler.Create)
	content.PUT("/videos/:id", videoHandler.Update)
	content.PUT("/videos/:id/position", videoHandler.Move)
	content.DELETE("/videos/:id", videoHandler.Delete)

	content.PUT("/enrollments/:id/progress", enrollmentHandler.OverrideProgress)

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		content.POST("/reports", reportHandler.Request)
		content.GET("/reports/:id", reportHandler.Status)
		content.GET("/reports/:id/download", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
