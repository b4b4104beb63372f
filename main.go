// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pulsedash/api/analytics"
	"pulsedash/api/cache"
	"pulsedash/api/config"
	"pulsedash/api/database"
	"pulsedash/api/handlers"
	"pulsedash/api/logging"
	"pulsedash/api/middleware"
	"pulsedash/api/store"
	"pulsedash/api/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.GinMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// --- Tenant registry (PostgreSQL) ---
	dbClient, err := database.NewPostgresDB(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize PostgreSQL database", zap.Error(err))
	}
	defer dbClient.Close()
	logger.Info("connected to PostgreSQL tenant registry")

	// --- Event store (ClickHouse) ---
	chClient, err := database.NewClickHouseDB(database.ClickHouseConfig{
		Host:     cfg.ClickHouseHost,
		Port:     cfg.ClickHousePort,
		Database: cfg.ClickHouseDBName,
		Username: cfg.ClickHouseUsername,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		logger.Fatal("failed to initialize ClickHouse database", zap.Error(err))
	}
	defer chClient.Close()
	logger.Info("connected to ClickHouse event store")

	// --- Cache store (Redis, or in-process when unconfigured) ---
	var cacheStore cache.Store
	if cfg.RedisURL != "" {
		redisStore, err := cache.NewRedisStore(cfg.RedisURL, cfg.CachePrefix)
		if err != nil {
			logger.Fatal("failed to connect to Redis", zap.Error(err))
		}
		cacheStore = redisStore
		logger.Info("connected to Redis cache")
	} else {
		cacheStore = cache.NewMemoryStore()
		logger.Warn("REDIS_URL not set, using in-process cache; single-flight is per-instance only")
	}
	defer cacheStore.Close()

	// --- Stores and engine ---
	tenantStore := store.NewTenantStore(dbClient.DB)
	eventStore := store.NewEventStore(chClient)

	planner := analytics.NewPlanner(eventStore, cfg.QueryTimeout, cfg.TopPagesLimit)
	orchestrator := analytics.NewOrchestrator(planner, cacheStore, logger, analytics.OrchestratorOptions{
		TTL:            cfg.CacheTTL,
		LockTTL:        cfg.LockTTL,
		LockWait:       cfg.LockWait,
		ComputeTimeout: cfg.ComputeTimeout,
	})

	// --- Handlers ---
	jwtManager := utils.NewJWTManager(cfg.JWTSecret)
	authHandlers := handlers.NewAuthHandlers(tenantStore, jwtManager)
	overviewHandlers := handlers.NewOverviewHandlers(tenantStore, orchestrator, cfg.MaxWindowSpan(), cfg.ComputeTimeout)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORSMiddleware(cfg.FEOrigin))

	r.GET("/health", handlers.HealthCheck(chClient))
	r.POST("/auth/token", authHandlers.IssueToken)

	tenants := r.Group("/tenants")
	tenants.Use(middleware.AuthRequired(jwtManager))
	{
		tenants.GET("/:tenantId/overview", overviewHandlers.GetTenantOverview)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("API server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("API server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
