package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storysync/storysync-api/config"
	"github.com/storysync/storysync-api/internal/cache"
	"github.com/storysync/storysync-api/internal/database/postgres"
	"github.com/storysync/storysync-api/internal/extensions"
	"github.com/storysync/storysync-api/internal/handlers"
	"github.com/storysync/storysync-api/internal/hooks"
	"github.com/storysync/storysync-api/internal/middleware"
	"github.com/storysync/storysync-api/internal/repository"
	"github.com/storysync/storysync-api/internal/services"
	"github.com/storysync/storysync-api/pkg/db"
	"github.com/storysync/storysync-api/pkg/httpclient"
	"github.com/storysync/storysync-api/pkg/logger"
	"github.com/storysync/storysync-api/pkg/mac"
	"github.com/storysync/storysync-api/pkg/metrics"
	"github.com/storysync/storysync-api/pkg/profiling"
	"github.com/storysync/storysync-api/pkg/sanitize"
	"github.com/storysync/storysync-api/pkg/storage"
	"github.com/storysync/storysync-api/pkg/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	err = logger.Initialize(logger.Config{
		Level:       cfg.Logging.Level,
		LogDir:      cfg.Logging.Dir,
		Environment: cfg.Server.AppEnv,
		ServiceName: cfg.Observability.ServiceName,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting StorySync API",
		zap.String("version", cfg.Observability.ServiceVersion),
		zap.String("environment", cfg.Server.AppEnv),
	)

	// Initialize distributed tracing
	tracerShutdown, err := tracing.InitTracer(
		cfg.Observability.ServiceName,
		cfg.Observability.ServiceVersion,
		cfg.Server.AppEnv,
		cfg.Observability.ExporterEndpoint,
	)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tracerShutdown(ctx); shutdownErr != nil {
			logger.Error("Failed to shutdown tracer", zap.Error(shutdownErr))
		}
	}()

	// Initialize metrics
	metrics.Init()

	// Initialize continuous profiling
	if cfg.Profiling.Enabled {
		stopProfiler, err := profiling.InitProfiler(profiling.Config{
			Enabled:               cfg.Profiling.Enabled,
			Endpoint:              cfg.Profiling.Endpoint,
			AppName:               cfg.Profiling.AppName,
			SampleTypes:           cfg.Profiling.SampleTypes,
			UploadIntervalSeconds: cfg.Profiling.UploadIntervalSeconds,
		}, cfg.Observability.ServiceName, cfg.Observability.ServiceVersion, cfg.Server.AppEnv)
		if err != nil {
			logger.Fatal("Failed to initialize profiler", zap.Error(err))
		}
		defer stopProfiler()
	}

	// Initialize PostgreSQL connection pool
	pool, err := db.NewPool(context.Background(), db.PoolConfig{
		URL:      cfg.Database.URL,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		logger.Fatal("Failed to initialize database connection pool", zap.Error(err))
	}
	defer pool.Close()

	// NOTE: Database migrations are run separately via the migrate command

	dbClient := postgres.NewClient(pool)

	// Sanitizer, caches and repositories
	sanitizer := sanitize.New()
	postCache := cache.NewPostCache(cfg.Cache.PostTTLSeconds)
	storyRepo := repository.NewStoryRepository(dbClient, sanitizer, postCache, cfg.Server.BaseURL)
	settingsRepo := repository.NewSettingsRepository(dbClient)

	// Hook bus for publish pipeline extensions
	bus := hooks.New()

	// Image sideloading needs object storage credentials; without them the
	// sideload hook point stays unsubscribed and publishes skip it.
	if cfg.MediaStorage.Bucket != "" {
		mediaStore, err := storage.New(storage.Config{
			AccessKeyID:     cfg.MediaStorage.AccessKeyID,
			SecretAccessKey: cfg.MediaStorage.SecretAccessKey,
			Bucket:          cfg.MediaStorage.Bucket,
			Endpoint:        cfg.MediaStorage.Endpoint,
			Region:          cfg.MediaStorage.Region,
			PublicURL:       cfg.MediaStorage.PublicURL,
		})
		if err != nil {
			logger.Fatal("Failed to initialize media storage client", zap.Error(err))
		}

		sideloader := extensions.NewImageSideloader(
			dbClient,
			mediaStore,
			httpclient.NewStandardClient(),
			mediaHost(cfg.MediaStorage.PublicURL),
		)
		sideloader.Register(bus)
	} else {
		logger.Warn("Image sideloading disabled: MEDIA_STORAGE_BUCKET not configured")
	}

	// Initialize services
	webhookService := services.NewWebhookService(
		mac.New(cfg.Webhook.Secret),
		storyRepo,
		settingsRepo,
		sanitizer,
		bus,
		cfg.Webhook.DefaultPostType,
	)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(webhookService)
	healthHandler := handlers.NewHealthHandler(pool.Ping)

	// Set up Gin router
	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	router.Use(middleware.ObservabilityMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	allowedOrigins := cfg.Server.AllowedOrigins
	if cfg.IsDevelopment() {
		allowedOrigins = append(allowedOrigins, "http://localhost:3000", "http://127.0.0.1:3000")
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "traceparent", "tracestate"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	// Webhook deliveries arrive one story at a time, so the limit stays low.
	generalRateLimiter := middleware.NewRateLimiter(100, 200)
	webhookRateLimiter := middleware.NewRateLimiter(10, 20)

	api := router.Group("/api")
	api.GET("/healthcheck", generalRateLimiter.Middleware(), healthHandler.Healthcheck)
	api.GET("/metrics", generalRateLimiter.Middleware(), gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	api.POST("/storysync/webhook",
		webhookRateLimiter.Middleware(),
		middleware.BodySizeLimitMiddleware(cfg.Webhook.MaxBodyBytes),
		webhookHandler.HandleWebhook,
	)

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server started", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// mediaHost extracts the host from the media store's public URL so the
// sideloader can recognize already local images.
func mediaHost(publicURL string) string {
	if publicURL == "" {
		return ""
	}
	parsed, err := url.Parse(publicURL)
	if err != nil || parsed.Host == "" {
		return publicURL
	}
	return parsed.Host
}
