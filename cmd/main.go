package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog-import-service/internal/config"
	"catalog-import-service/internal/events"
	"catalog-import-service/internal/handlers"
	"catalog-import-service/internal/importer"
	"catalog-import-service/internal/jobs"
	"catalog-import-service/internal/middleware"
	"catalog-import-service/internal/repository"
	"catalog-import-service/internal/services"
	"catalog-import-service/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/secrets"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

// @title Catalog Import API
// @version 1.0.0
// @description Spreadsheet import and auto-categorisation for the product catalog

// @host localhost:8090
// @BasePath /api/v1

// @securityDefinitions.bearer BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Redis backs the import queue and the run cache; without it imports run inline
	var redisClient *redis.Client
	if cfg.QueueEnabled {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("WARNING: Failed to parse Redis URL: %v (imports will run inline)", err)
		} else {
			redisOpts.Password = secrets.GetRedisPassword()
			redisClient = redis.NewClient(redisOpts)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				log.Printf("WARNING: Failed to connect to Redis: %v (imports will run inline)", err)
				redisClient.Close()
				redisClient = nil
			} else {
				log.Println("✓ Redis connected successfully")
			}
			cancel()
		}
	} else {
		log.Println("Import queue disabled, imports will run inline")
	}

	importRepo := repository.NewImportRepository(db, redisClient)

	fileStore, err := storage.New(context.Background(), storage.Options{
		Dir:    cfg.StorageDir,
		Bucket: cfg.S3Bucket,
		Prefix: cfg.S3Prefix,
		Region: cfg.AWSRegion,
	})
	if err != nil {
		log.Fatal("Failed to initialize upload storage:", err)
	}
	if cfg.S3Bucket != "" {
		log.Printf("✓ Upload storage: s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	} else {
		log.Printf("✓ Upload storage: %s", cfg.StorageDir)
	}

	classifier, err := importer.LoadClassifier(cfg.ClassifierRulesFile)
	if err != nil {
		log.Fatal("Failed to load classifier rules:", err)
	}

	// Product events are only published when NATS_URL is set
	var eventsPublisher *events.Publisher
	if cfg.NATSURL != "" {
		eventsPublisher, err = events.NewPublisher(cfg.NATSURL, cfg.TenantID, logger)
		if err != nil {
			log.Printf("WARNING: Failed to initialize events publisher: %v (continuing without event publishing)", err)
		} else {
			log.Println("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		log.Println("NATS_URL not set, skipping event publishing initialization")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
	}()

	opts := importer.PipelineOptions{HeaderMarkers: cfg.HeaderMarkers}
	if eventsPublisher != nil {
		opts.Publisher = eventsPublisher
	}
	pipeline := importer.NewPipeline(importRepo, fileStore, classifier, logger, opts)
	dispatcher := jobs.NewDispatcher(redisClient, importRepo, pipeline, logger)
	importService := services.NewImportService(importRepo, fileStore, dispatcher, cfg.MaxUploadBytes, logger)
	importHandler := handlers.NewImportHandler(importService, cfg.DefaultPageSize, cfg.MaxPageSize)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	var worker *jobs.ImportWorker
	if redisClient != nil {
		worker = jobs.NewImportWorker(redisClient, pipeline, logger)
		go worker.Start(workerCtx)
		log.Println("✓ Import worker started")
	}

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("catalog-import-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("catalog-import-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	metrics := gosharedmw.InitGlobalMetrics("tesseract", "catalog_import_service")
	log.Println("✓ Prometheus metrics initialized")

	rbacMw := rbac.NewMiddlewareWithURL(cfg.StaffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("catalog-import-service"))
	router.Use(gosharedmw.CompressionMiddleware())
	router.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(db, redisClient))
	router.GET("/metrics", gosharedmw.Handler())

	api := router.Group("/api/v1")
	if cfg.Environment == "development" {
		api.Use(middleware.DevelopmentAuthMiddleware())
	} else {
		istioAuthLogger := logrus.NewEntry(logger).WithField("component", "istio_auth")
		api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
			RequireAuth:        true,
			AllowLegacyHeaders: true,
			Logger:             istioAuthLogger,
		}))
	}

	imports := api.Group("/imports")
	{
		imports.GET("", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.ListImports)
		imports.GET("/recent", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.RecentImports)
		imports.GET("/template", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.GetImportTemplate)
		imports.GET("/:id", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.GetImport)
		imports.GET("/:id/errors", rbacMw.RequirePermission(rbac.PermissionProductsRead), importHandler.GetImportErrors)

		imports.POST("", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.UploadImport)
		imports.POST("/:id/retry", rbacMw.RequirePermission(rbac.PermissionProductsImport), importHandler.RetryImport)
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Catalog import service starting on port %s", cfg.Port)
		if err := router.Run(":" + cfg.Port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	<-quit
	log.Println("Shutting down catalog-import-service...")

	// Stop waits for the in-flight run so it is not left processing
	if worker != nil {
		worker.Stop()
	}
	stopWorker()

	if tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Catalog import service stopped")
}
