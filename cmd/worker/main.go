package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/kursadbilgin/promocheck/internal/app"
	"github.com/kursadbilgin/promocheck/internal/config"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"github.com/kursadbilgin/promocheck/internal/queue"
	"github.com/kursadbilgin/promocheck/internal/repository"
	"github.com/kursadbilgin/promocheck/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("promocheck-worker", cfg.LogLevel)
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

	metrics := observability.NewMetrics()
	publisher := queue.NewRabbitMQPublisher(infra.RabbitMQ)

	svc, err := app.NewValidationService(cfg, infra, publisher, metrics, logger)
	if err != nil {
		logger.Fatal("validation service initialization failed", zap.Error(err))
	}

	// One delivery in flight per consumer; batch runs are long.
	consumer := queue.NewRabbitMQConsumer(infra.RabbitMQ, 1, logger)
	worker, err := service.NewWorkerService(consumer, svc, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("worker initialization failed", zap.Error(err))
	}
	worker.SetMetrics(metrics)

	metricsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Start(groupCtx)
	})
	g.Go(func() error {
		logger.Info("worker metrics server started", zap.Int("port", cfg.MetricsPort))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if cfg.RecheckInterval > 0 {
		scheduler, err := service.NewRecheckScheduler(
			repository.NewGormCodeRepo(infra.DB),
			publisher,
			cfg.RecheckInterval,
			0,
			logger,
		)
		if err != nil {
			logger.Fatal("recheck scheduler initialization failed", zap.Error(err))
		}
		g.Go(func() error {
			return scheduler.Start(groupCtx)
		})
	}

	logger.Info("promocheck worker started",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Duration("recheckInterval", cfg.RecheckInterval),
	)

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
		return
	}
	logger.Info("promocheck worker stopped")
}
