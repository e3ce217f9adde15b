package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/studiodl/archivio-api/api/swagger"
	"github.com/studiodl/archivio-api/internal/handler"
	"github.com/studiodl/archivio-api/internal/middleware"
	"github.com/studiodl/archivio-api/internal/models"
	"github.com/studiodl/archivio-api/internal/repository"
	"github.com/studiodl/archivio-api/internal/service"
	"github.com/studiodl/archivio-api/pkg/cache"
	"github.com/studiodl/archivio-api/pkg/config"
	"github.com/studiodl/archivio-api/pkg/database"
	"github.com/studiodl/archivio-api/pkg/jobs"
	"github.com/studiodl/archivio-api/pkg/logger"
	corsmiddleware "github.com/studiodl/archivio-api/pkg/middleware/cors"
	reqidmiddleware "github.com/studiodl/archivio-api/pkg/middleware/requestid"
	"github.com/studiodl/archivio-api/pkg/storage"
)

// @title Archivio API
// @version 1.0.0
// @description Protocol register and physical archive movement engine
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if err := database.Migrate(db, cfg.Database.MigrationsDir, logr); err != nil {
		logr.Fatal("failed to run migrations", zap.Error(err))
	}

	metrics := service.NewMetricsService()

	// Redis is optional: without it the tree endpoint just reads the database.
	var cacheSvc *service.CacheService
	if cfg.Locations.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, location tree cache disabled", zap.Error(err))
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Locations.CacheTTL, logr, true)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	proofStorage, err := storage.NewLocalStorage(cfg.Archive.ProofStorageDir)
	if err != nil {
		logr.Fatal("failed to init proof storage", zap.Error(err))
	}
	proofSigner := storage.NewSignedURLSigner(cfg.Archive.ProofSignedURLSecret, cfg.Archive.ProofSignedURLTTL)

	exportStorage, err := storage.NewLocalStorage(cfg.Export.StorageDir)
	if err != nil {
		logr.Fatal("failed to init export storage", zap.Error(err))
	}
	exportSigner := storage.NewSignedURLSigner(cfg.Export.SignedURLSecret, cfg.Export.SignedURLTTL)

	locationRepo := repository.NewLocationRepository(db)
	placementRepo := repository.NewPlacementRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db).WithMetrics(metrics)
	protocolRepo := repository.NewProtocolRepository(db)
	registryRepo := repository.NewRegistryRepository(db)
	batchRepo := repository.NewBatchRepository(db)
	exportRepo := repository.NewExportRepository(db)

	tokenSvc := service.NewTokenService(cfg.JWT.Secret)
	locationSvc := service.NewLocationService(locationRepo, cacheSvc, logr)
	placementSvc := service.NewPlacementService(placementRepo, locationRepo, db, logr)
	protocolSvc := service.NewProtocolService(protocolRepo, registryRepo, sequenceRepo, db, metrics, logr)
	batchSvc := service.NewBatchService(batchRepo, protocolRepo, registryRepo, placementRepo, locationRepo,
		proofStorage, proofSigner, db, metrics, logr, service.BatchServiceConfig{
			DischargeLocationID: cfg.Archive.DischargeLocationID,
			ProofMaxFileSize:    cfg.Archive.ProofMaxFileSizeBytes,
		})

	exporterSvc := service.NewExportService(protocolRepo, exportStorage, exportSigner, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Export.ResultTTL,
	}, logr, nil, nil)
	exportWorker := service.NewExportWorker(exportRepo, exporterSvc, cfg.Export.MaxRetries, logr)
	exportQueue := jobs.NewQueue("register-exports", exportWorker.Handle, jobs.QueueConfig{
		Workers:    cfg.Export.Workers,
		MaxRetries: cfg.Export.MaxRetries,
		Logger:     logr,
	})
	registerExportSvc := service.NewRegisterExportService(exportRepo, exportQueue, exporterSvc, logr, service.RegisterExportConfig{
		ResultTTL:       cfg.Export.ResultTTL,
		CleanupInterval: cfg.Export.CleanupInterval,
		MaxRetries:      cfg.Export.MaxRetries,
	})

	locationHandler := handler.NewLocationHandler(locationSvc)
	placementHandler := handler.NewPlacementHandler(placementSvc)
	protocolHandler := handler.NewProtocolHandler(protocolSvc)
	batchHandler := handler.NewBatchHandler(batchSvc)
	exportHandler := handler.NewExportHandler(registerExportSvc)
	metricsHandler := handler.NewMetricsHandler(metrics)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if cfg.Metrics.Enabled {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// The export download carries its own signed token, no JWT needed.
	r.GET(cfg.APIPrefix+"/protocol/exports/download/:token", exportHandler.Download)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(tokenSvc))
	{
		manage := middleware.RequireRoles(models.RoleAdmin, models.RoleArchivist)

		locations := api.Group("/locations")
		{
			locations.POST("", manage, locationHandler.Create)
			locations.GET("/tree", locationHandler.Tree)
			locations.GET("/allowed-children", locationHandler.AllowedChildren)
			locations.GET("/:id", locationHandler.Get)
			locations.PATCH("/:id", manage, locationHandler.Update)
			locations.GET("/:id/children", locationHandler.Children)
		}

		placements := api.Group("/placements")
		{
			placements.POST("", placementHandler.Assign)
			placements.GET("/current", placementHandler.Current)
			placements.GET("/history", placementHandler.History)
			placements.DELETE("/last", placementHandler.UndoLast)
		}

		protocol := api.Group("/protocol")
		{
			protocol.POST("/outbound", protocolHandler.RegisterOutbound)
			protocol.POST("/inbound", protocolHandler.RegisterInbound)
			protocol.GET("", protocolHandler.List)
			protocol.POST("/exports", exportHandler.Create)
			protocol.GET("/exports/:id", exportHandler.Status)
			protocol.GET("/:id", protocolHandler.Get)
		}

		batches := api.Group("/batches")
		{
			batches.POST("", batchHandler.Create)
			batches.GET("", batchHandler.List)
			batches.GET("/:id", batchHandler.Get)
			batches.POST("/:id/process", manage, batchHandler.Process)
			batches.POST("/:id/proof", batchHandler.AttachProof)
			batches.GET("/:id/proof/url", batchHandler.ProofURL)
			batches.GET("/:id/proof/download", batchHandler.DownloadProof)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	exportQueue.Start(ctx)
	registerExportSvc.RecoverPendingJobs(ctx)
	registerExportSvc.StartCleanup(ctx)

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("shutdown failed", zap.Error(err))
	}
	exportQueue.Stop()
}
