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

	_ "github.com/noah-isme/campus-lms-api/api/swagger"
	"github.com/noah-isme/campus-lms-api/internal/handler"
	"github.com/noah-isme/campus-lms-api/internal/middleware"
	"github.com/noah-isme/campus-lms-api/internal/models"
	"github.com/noah-isme/campus-lms-api/internal/repository"
	"github.com/noah-isme/campus-lms-api/internal/service"
	"github.com/noah-isme/campus-lms-api/pkg/cache"
	"github.com/noah-isme/campus-lms-api/pkg/config"
	"github.com/noah-isme/campus-lms-api/pkg/database"
	"github.com/noah-isme/campus-lms-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-lms-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-lms-api/pkg/middleware/requestid"
)

// @title Campus LMS API
// @version 1.0.0
// @description Enrollment admission and capacity management service
// @BasePath /api/v1
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	settingRepo := repository.NewSettingRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	statusSvc := service.NewStatusConfigService(settingRepo, cacheRepo, cfg.Enrollment.StatusCacheTTL, logr)
	affiliationSvc := service.NewAffiliationService(registrationRepo, logr)
	assignmentSvc := service.NewAssignmentService(assignmentRepo, courseRepo, validate, logr)
	eligibilitySvc := service.NewEligibilityService(affiliationSvc, assignmentSvc, logr)
	enrollmentSvc := service.NewEnrollmentService(
		enrollmentRepo,
		userRepo,
		courseRepo,
		affiliationSvc,
		assignmentSvc,
		statusSvc,
		eligibilitySvc,
		cfg.Enrollment.MaxBulkSize,
		validate,
		logr,
	)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc, authSvc, metricsSvc)
	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	statusConfigHandler := handler.NewStatusConfigHandler(statusSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", metricsHandler.Scrape)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/enrollments", enrollmentHandler.List)
	authed.POST("/enrollments/request",
		middleware.RequireRoles(models.RoleStudent),
		enrollmentHandler.Request)
	authed.POST("/enrollments",
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
		enrollmentHandler.Create)
	authed.PUT("/enrollments/:id/status",
		middleware.RequireRoles(models.RoleInstructor, models.RoleAdmin, models.RoleSuperAdmin),
		enrollmentHandler.Transition)
	authed.POST("/enrollments/status/bulk",
		middleware.RequireRoles(models.RoleInstructor),
		enrollmentHandler.BulkTransition)
	authed.DELETE("/enrollments/:id",
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
		enrollmentHandler.Delete)

	authed.GET("/courses/:id/enrollment-status", enrollmentHandler.Status)

	authed.GET("/course-assignments", assignmentHandler.List)
	authed.POST("/course-assignments",
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
		assignmentHandler.Create)
	authed.DELETE("/course-assignments/:id",
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
		assignmentHandler.Delete)

	authed.GET("/settings/enrollment-statuses", statusConfigHandler.Get)
	authed.PUT("/settings/enrollment-statuses",
		middleware.RequireRoles(models.RoleSuperAdmin),
		statusConfigHandler.Update)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
