package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"loandocs/internal/config"
	"loandocs/internal/database"
	handlers "loandocs/internal/http/handler"
	"loandocs/internal/http/middleware"
	"loandocs/internal/logger"
	"loandocs/internal/otel"
	"loandocs/internal/repository/sqlite"
	"loandocs/internal/service"
)

// Server-tier binary: the relational document store behind the HTTP API.
func main() {
	cfg := config.Load()

	log, err := logger.New(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, "loandocs", log)
	if err != nil {
		log.Fatal("tracing_init_failed", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	mgr := database.NewManager(cfg.Database, log)
	if err := mgr.Initialize(ctx); err != nil {
		log.Fatal("database_init_failed", zap.Error(err))
	}
	defer mgr.Close()

	docSvc := service.NewDocumentService(sqlite.NewDocumentSQLite(mgr), nil, log)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMiddleware, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatal("metrics_init_failed", zap.Error(err))
	}

	app := fiber.New(handlers.AppConfig(cfg.BodyLimitBytes))
	app.Use(otelfiber.Middleware(otelfiber.WithNext(func(c *fiber.Ctx) bool {
		return c.Path() == "/metrics"
	})))
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	handlers.RegisterRoutes(app, handlers.Routes{
		Pinger:   mgr,
		Docs:     docSvc,
		Backup:   mgr.Backup,
		Gatherer: reg,
	})

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	addr := ":" + cfg.Port
	log.Info("server_starting", zap.String("addr", addr), zap.String("db_path", cfg.Database.Path))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server_failed", zap.Error(err))
	}
}
