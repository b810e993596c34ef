package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/mgiraudo/instituto-api/api/swagger"
	"github.com/mgiraudo/instituto-api/internal/handler"
	"github.com/mgiraudo/instituto-api/internal/middleware"
	"github.com/mgiraudo/instituto-api/internal/models"
	"github.com/mgiraudo/instituto-api/internal/repository"
	"github.com/mgiraudo/instituto-api/internal/service"
	"github.com/mgiraudo/instituto-api/pkg/cache"
	"github.com/mgiraudo/instituto-api/pkg/config"
	"github.com/mgiraudo/instituto-api/pkg/database"
	"github.com/mgiraudo/instituto-api/pkg/logger"
	corsmiddleware "github.com/mgiraudo/instituto-api/pkg/middleware/cors"
	reqidmiddleware "github.com/mgiraudo/instituto-api/pkg/middleware/requestid"
)

// @title Instituto Billing API
// @version 1.0.0
// @description Tuition, facility rent and revenue-share billing for course enrollments
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

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "instituto-api",
	})
	courseService := service.NewCourseService(courseRepo, cfg.Billing, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, courseRepo, paymentRepo, validate, logr)
	tuitionService := service.NewTuitionService(paymentRepo, enrollmentRepo, courseRepo, cacheRepo, validate, logr)
	rentService := service.NewRentService(paymentRepo, courseRepo, cacheRepo, validate, logr)
	commissionService := service.NewCommissionService(paymentRepo, courseRepo, cacheRepo, cfg.Billing, logr)
	benefitService := service.NewBenefitService(enrollmentRepo, courseRepo, validate, logr)
	statementService := service.NewStatementService(enrollmentService, paymentRepo, cacheRepo, cfg.Statements.RevenueCacheTTL, logr)
	metricsService := service.NewMetricsService()

	authHandler := handler.NewAuthHandler(authService)
	courseHandler := handler.NewCourseHandler(courseService, statementService)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentService, benefitService, statementService)
	billingHandler := handler.NewBillingHandler(tuitionService, rentService, commissionService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/forgot-password", authHandler.ForgotPassword)
	auth.POST("/reset-password", authHandler.ResetPassword)
	auth.POST("/logout", middleware.JWT(authService), authHandler.Logout)
	auth.POST("/change-password", middleware.JWT(authService), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authService), authHandler.Me)

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)
	staffOrProfessor := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleProfessor)

	courses := api.Group("/courses", middleware.JWT(authService))
	courses.GET("", staffOrProfessor, courseHandler.List)
	courses.GET("/:id", staffOrProfessor, courseHandler.Get)
	courses.GET("/:id/revenue", staffOrProfessor, courseHandler.Revenue)
	courses.POST("", staff, courseHandler.Create)
	courses.PUT("/:id", staff, courseHandler.Update)
	courses.DELETE("/:id", staff, courseHandler.Delete)

	enrollments := api.Group("/enrollments", middleware.JWT(authService))
	enrollments.GET("", staffOrProfessor, enrollmentHandler.List)
	enrollments.GET("/:id", staffOrProfessor, enrollmentHandler.Get)
	enrollments.GET("/:id/payments", staffOrProfessor, enrollmentHandler.ListPayments)
	enrollments.GET("/:id/statement", staffOrProfessor, enrollmentHandler.Statement)
	enrollments.GET("/:id/payments/:paymentId/receipt", staffOrProfessor, enrollmentHandler.Receipt)
	enrollments.POST("", staff, enrollmentHandler.Create)
	enrollments.PUT("/:id/withdraw", staff, enrollmentHandler.Withdraw)
	enrollments.POST("/:id/discount", staff,
		middleware.Audit(userRepo, models.AuditActionDiscountChange, "enrollment"), enrollmentHandler.SetDiscount)
	enrollments.POST("/:id/points", staff,
		middleware.Audit(userRepo, models.AuditActionPointsChange, "enrollment"), enrollmentHandler.AddPoints)

	billing := api.Group("/billing", middleware.JWT(authService))
	billing.GET("/tuition/:enrollmentId/preview", staffOrProfessor, billingHandler.TuitionPreview)
	billing.POST("/tuition/:enrollmentId/payments", staff,
		middleware.Audit(userRepo, models.AuditActionTuitionPayment, "payment"), billingHandler.RegisterTuition)
	billing.GET("/rent/:courseId/preview", staffOrProfessor, billingHandler.RentPreview)
	billing.POST("/rent/:courseId/payments", staffOrProfessor,
		middleware.Audit(userRepo, models.AuditActionRentPayment, "payment"), billingHandler.RegisterRent)
	billing.GET("/commission/:courseId/preview", staffOrProfessor, billingHandler.CommissionPreview)
	billing.POST("/commission/:courseId/settlements", staffOrProfessor,
		middleware.Audit(userRepo, models.AuditActionCommissionSettle, "payment"), billingHandler.RegisterCommission)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
