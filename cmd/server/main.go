package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoPolymarket/extgate/internal/audit"
	"github.com/GoPolymarket/extgate/internal/config"
	"github.com/GoPolymarket/extgate/internal/event"
	"github.com/GoPolymarket/extgate/internal/handler"
	"github.com/GoPolymarket/extgate/internal/middleware"
	"github.com/GoPolymarket/extgate/internal/pkg/logger"
	"github.com/GoPolymarket/extgate/internal/policy"
	"github.com/GoPolymarket/extgate/internal/repository"
	"github.com/GoPolymarket/extgate/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type auditStore interface {
	audit.Store
	audit.Lister
	audit.Pruner
}

func main() {
	// 1. Load Configuration and Logger
	cfg, v, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	channels, err := logger.OpenChannels(cfg.Log.Channels)
	if err != nil {
		log.Fatalf("Failed to open log channels: %v", err)
	}
	defer channels.Close()

	// 2. Initialize Persistence
	// Cache (Redis > Memory)
	cacheTTL := time.Duration(cfg.Redis.CacheDefaultTTLSeconds) * time.Second
	var rdb *redis.Client
	var cacheStore policy.CacheStore
	if cfg.Redis.Addr != "" {
		rdb, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
			cacheStore = repository.NewRedisCacheStore(rdb, cfg.Redis.KeyPrefix, cacheTTL)
			defer rdb.Close()
		} else {
			logger.Error("Failed to connect to Redis, falling back to memory cache", "error", err)
			rdb = nil
		}
	}
	if cacheStore == nil {
		mem := repository.NewMemoryCacheStore(cacheTTL)
		defer mem.Close()
		cacheStore = mem
	}

	// Audit (Postgres > Redis > Memory)
	var requests, responses auditStore
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			requests = repository.NewGormRequestStore(db)
			responses = repository.NewGormResponseStore(db)
		} else {
			logger.Error("Failed to connect to DB, audit records fall back", "error", err)
		}
	}
	if requests == nil && rdb != nil {
		requests = repository.NewRedisAuditStore(rdb, cfg.Redis.KeyPrefix, service.DefaultRequestStore, audit.RequestFields, 10000)
		responses = repository.NewRedisAuditStore(rdb, cfg.Redis.KeyPrefix, service.DefaultResponseStore, audit.ResponseFields, 10000)
	}
	if requests == nil {
		requests = repository.NewMemoryAuditStore(service.DefaultRequestStore, audit.RequestFields, 1000)
		responses = repository.NewMemoryAuditStore(service.DefaultResponseStore, audit.ResponseFields, 1000)
	}
	stores := map[string]auditStore{
		requests.Name():  requests,
		responses.Name(): responses,
	}

	// 3. Initialize Core Services
	bus := event.NewBus(cfg.Events.Workers, cfg.Events.QueueSize)

	registry, err := service.BuildRegistry(v, cfg.Services,
		service.WithCacheStore(cacheStore),
		service.WithBus(bus),
		service.WithChannels(channels),
		service.WithDefaults(cfg.Policy),
	)
	if err != nil {
		log.Fatalf("Failed to load services: %v", err)
	}

	pipeline := audit.NewPipeline()
	var targets []service.PruneTarget
	for _, key := range registry.Keys() {
		client, _ := registry.Get(key)
		desc := client.Descriptor()
		reqName, respName := service.AuditStoreNames(desc)
		reqStore, respStore := stores[reqName], stores[respName]
		if reqStore == nil || respStore == nil {
			logger.Warn("Service names an unknown audit store, that phase is not persisted",
				"service", key, "requests", reqName, "responses", respName)
		}

		route := audit.Route{}
		target := service.PruneTarget{Service: key, Settings: desc.Pruning}
		if reqStore != nil {
			route.Requests, target.Requests = reqStore, reqStore
		}
		if respStore != nil {
			route.Responses, target.Responses = respStore, respStore
		}
		pipeline.Route(key, route)
		targets = append(targets, target)
		logger.Info("Service registered", "service", key, "endpoints", len(desc.Endpoints))
	}
	pipeline.Subscribe(bus)

	pruner := service.NewPruner(time.Duration(cfg.Database.CleanupIntervalMinutes)*time.Minute, targets...)

	// 4. Initialize Handlers
	listers := make(map[string]audit.Lister, len(stores))
	for name, s := range stores {
		listers[name] = s
	}
	callHandler := handler.NewCallHandler(registry)
	auditHandler := handler.NewAuditHandler(registry, listers)

	// 5. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "extgate", "services": registry.Keys()})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/services/:service/endpoints/:endpoint", middleware.RateLimitMiddleware(cfg.RateLimit, registry.Keys()), callHandler.Call)
		v1.GET("/audit/:service/:phase", auditHandler.List)
	}

	// 6. Start Server and background jobs with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("extgate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pruner.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	waitErr := g.Wait()
	bus.Close()
	if waitErr != nil {
		logger.Error("Server stopped with error", "error", waitErr)
		channels.Close()
		os.Exit(1)
	}
	logger.Info("Server exiting")
}
