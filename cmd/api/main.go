package main

import (
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/arkadesain/design-desk-api/api/swagger"
	"github.com/arkadesain/design-desk-api/internal/handler"
	"github.com/arkadesain/design-desk-api/internal/middleware"
	"github.com/arkadesain/design-desk-api/internal/repository"
	"github.com/arkadesain/design-desk-api/internal/router"
	"github.com/arkadesain/design-desk-api/internal/service"
	"github.com/arkadesain/design-desk-api/pkg/cache"
	"github.com/arkadesain/design-desk-api/pkg/config"
	"github.com/arkadesain/design-desk-api/pkg/database"
	"github.com/arkadesain/design-desk-api/pkg/logger"
	corsmiddleware "github.com/arkadesain/design-desk-api/pkg/middleware/cors"
	reqidmiddleware "github.com/arkadesain/design-desk-api/pkg/middleware/requestid"
	"github.com/arkadesain/design-desk-api/pkg/storage"
)

// @title Design Desk API
// @version 1.0.0
// @description Internal helpdesk for design work requests
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
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("redis connection failed", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	uploadStore, err := storage.NewLocalStorage(cfg.Uploads.StorageDir, cfg.Uploads.PublicBaseURL)
	if err != nil {
		logr.Sugar().Fatalw("upload storage init failed", "error", err)
	}
	exportStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir, "")
	if err != nil {
		logr.Sugar().Fatalw("export storage init failed", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)

	requestRepo := repository.NewRequestRepository(db)
	reportRepo := repository.NewReportRepository(db)
	userRepo := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	metricsService := service.NewMetricsService()
	cacheService := service.NewCacheService(cacheRepo)
	authService := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	requestService := service.NewRequestService(requestRepo, userRepo, uploadStore, userRepo, cacheService, metricsService, nil, logr, cfg.Uploads.MaxFileSizeBytes)
	dashboardService := service.NewDashboardService(reportRepo, cacheService, metricsService, cfg.Dashboard.CacheTTL, logr)
	exportService := service.NewExportService(requestRepo, userRepo, exportStore, signer, userRepo, metricsService, logr, cfg.APIPrefix+"/exports/download")
	userService := service.NewUserService(userRepo, nil, logr)

	handlers := router.Handlers{
		Auth:      handler.NewAuthHandler(authService),
		Requests:  handler.NewRequestHandler(requestService),
		Dashboard: handler.NewDashboardHandler(dashboardService),
		Exports:   handler.NewExportHandler(exportService),
		Users:     handler.NewUserHandler(userService),
		Metrics:   handler.NewMetricsHandler(metricsService),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	// Attachments are public by URL; exports are not.
	r.Static("/files", cfg.Uploads.StorageDir)

	router.Register(r, cfg.APIPrefix, authService, handlers)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
