package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/kursadbilgin/promocheck/internal/app"
	"github.com/kursadbilgin/promocheck/internal/config"
	"github.com/kursadbilgin/promocheck/internal/handler"
	"github.com/kursadbilgin/promocheck/internal/infra/postgresql/migrations"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"github.com/kursadbilgin/promocheck/internal/queue"
	"github.com/kursadbilgin/promocheck/internal/transport"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("promocheck-api", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	infra, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("infrastructure initialization failed", zap.Error(err))
	}
	defer func() {
		if err := infra.Close(); err != nil {
			logger.Warn("failed to close infrastructure", zap.Error(err))
		}
	}()

	if err := migrations.Migrate(infra.DB, logger); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()
	publisher := queue.NewRabbitMQPublisher(infra.RabbitMQ)

	svc, err := app.NewValidationService(cfg, infra, publisher, metrics, logger)
	if err != nil {
		logger.Fatal("validation service initialization failed", zap.Error(err))
	}

	server := fiber.New(fiber.Config{
		AppName:      "promocheck-api",
		ErrorHandler: transport.ErrorHandler(logger),
		// Synchronous batch runs take minutes.
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 2 * time.Minute,
	})
	server.Use(transport.CorrelationID())
	server.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(server,
		handler.PostgresCheck(infra.SQLDB),
		handler.RedisCheck(infra.Redis),
		handler.ReadinessCheck{Name: "rabbitmq", Ping: infra.RabbitMQ.Ping},
	)
	server.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	if err := handler.RegisterValidationRoutes(server, svc); err != nil {
		logger.Fatal("route registration failed", zap.Error(err))
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("promocheck api started", zap.Int("port", cfg.APIPort))
		errCh <- server.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("api server stopped", zap.Error(err))
		}
	}

	if err := server.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.Warn("api shutdown incomplete", zap.Error(err))
	}
	logger.Info("promocheck api stopped")
}
