package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"loandocs/internal/cache"
	"loandocs/internal/config"
	handlers "loandocs/internal/http/handler"
	"loandocs/internal/http/middleware"
	"loandocs/internal/logger"
	"loandocs/internal/otel"
	"loandocs/internal/service"
	"loandocs/internal/storage"
)

// Client-tier binary: the offline cache served over the same HTTP surface.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "loandocs-offline", log)
	if err != nil {
		log.Fatal("tracing_init_failed", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	db, err := cache.OpenDB(ctx, cfg.Cache.Path, log)
	if err != nil {
		log.Fatal("cache_open_failed", zap.Error(err))
	}
	defer db.Close()

	kv, err := newKV(ctx, cfg, db)
	if err != nil {
		log.Fatal("cache_metadata_init_failed", zap.Error(err))
	}
	content, err := newContentStore(ctx, cfg, db)
	if err != nil {
		log.Fatal("cache_content_init_failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	metrics, err := cache.NewMetrics(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", zap.Error(err))
	}
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", zap.Error(err))
	}

	coord := cache.NewCoordinator(kv, content, log, metrics)
	if err := coord.Open(ctx); err != nil {
		log.Fatal("cache_recovery_failed", zap.Error(err))
	}

	app := fiber.New(handlers.AppConfig(cfg.BodyLimitBytes))
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics"
	})))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(app, handlers.Routes{
		Pinger:   db,
		Docs:     service.NewDocumentService(coord, nil, log),
		Gatherer: reg,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	addr := ":" + cfg.Port
	log.Info("offline_cache_starting",
		zap.String("addr", addr),
		zap.String("metadata_backend", cfg.Cache.MetadataBackend),
		zap.String("content_backend", cfg.Cache.ContentBackend),
	)
	if err := app.Listen(addr); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}

func newKV(ctx context.Context, cfg *config.AppConfig, db *sql.DB) (cache.KV, error) {
	quota := int64(cfg.Cache.MetadataQuotaBytes)
	switch cfg.Cache.MetadataBackend {
	case config.BackendSQLite:
		return cache.NewSQLiteKV(db, quota), nil
	case config.BackendRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return cache.NewRedisKV(client, "loandocs:", quota), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.Cache.MetadataBackend)
	}
}

func newContentStore(ctx context.Context, cfg *config.AppConfig, db *sql.DB) (cache.ContentStore, error) {
	switch cfg.Cache.ContentBackend {
	case config.BackendSQLite:
		return cache.NewSQLiteContentStore(db), nil
	case config.BackendObject:
		store, err := storage.NewMinIO(ctx, cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return cache.NewObjectContentStore(store), nil
	default:
		return nil, fmt.Errorf("unknown content backend %q", cfg.Cache.ContentBackend)
	}
}
