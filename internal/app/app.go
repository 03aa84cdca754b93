// Package app wires infrastructure and the validation engine from config.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kursadbilgin/promocheck/internal/classifier"
	"github.com/kursadbilgin/promocheck/internal/config"
	"github.com/kursadbilgin/promocheck/internal/engine"
	"github.com/kursadbilgin/promocheck/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/promocheck/internal/infra/redis"
	"github.com/kursadbilgin/promocheck/internal/observability"
	"github.com/kursadbilgin/promocheck/internal/probe"
	"github.com/kursadbilgin/promocheck/internal/queue"
	"github.com/kursadbilgin/promocheck/internal/repository"
	"github.com/kursadbilgin/promocheck/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Infra holds the process-wide connections.
type Infra struct {
	DB       *gorm.DB
	SQLDB    *sql.DB
	Redis    *redis.Client
	RabbitMQ *queue.RabbitMQ
}

func Connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Infra, error) {
	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, fmt.Errorf("postgres initialization failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres underlying db init failed: %w", err)
	}

	rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}

	mq, err := queue.NewRabbitMQ(ctx, cfg.RabbitMQURL, logger)
	if err != nil {
		_ = sqlDB.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
	}

	return &Infra{DB: db, SQLDB: sqlDB, Redis: rdb, RabbitMQ: mq}, nil
}

func (i *Infra) Close() error {
	if i == nil {
		return nil
	}
	return multierr.Combine(
		i.RabbitMQ.Close(),
		i.Redis.Close(),
		i.SQLDB.Close(),
	)
}

// NewValidationService builds the probe, classifier, retry and batch
// components and the service on top of them.
func NewValidationService(
	cfg *config.Config,
	infra *Infra,
	publisher queue.Publisher,
	metrics *observability.Metrics,
	logger *zap.Logger,
) (*service.ValidationService, error) {
	builder, err := probe.NewRequestBuilder(cfg.TargetURLTemplate)
	if err != nil {
		return nil, err
	}

	executor, err := probe.NewRestyExecutor()
	if err != nil {
		return nil, err
	}

	cls := classifier.NewDefault()
	if cfg.PhraseTablePath != "" {
		rules, err := classifier.LoadPhraseTable(cfg.PhraseTablePath)
		if err != nil {
			return nil, err
		}
		if cls, err = classifier.New(rules); err != nil {
			return nil, err
		}
	}

	limiter, err := infraredis.NewRedisRateLimiter(infra.Redis, cfg.ProbeRateLimit)
	if err != nil {
		return nil, err
	}

	validator, err := engine.NewValidator(builder, executor, cls, limiter, engine.ValidatorConfig{
		Target:      builder.Target(),
		Timeout:     cfg.ProbeTimeout,
		MaxAttempts: cfg.MaxAttempts,
	}, logger)
	if err != nil {
		return nil, err
	}
	validator.SetMetrics(metrics)

	codes := repository.NewGormCodeRepo(infra.DB)
	driver, err := engine.NewBatchDriver(validator, codes, engine.BatchConfig{
		InterCodeDelay: engine.DelayRange{Min: cfg.InterCodeDelayMin, Max: cfg.InterCodeDelayMax},
		MaxAttempts:    cfg.MaxAttempts,
	}, logger)
	if err != nil {
		return nil, err
	}
	driver.SetMetrics(metrics)

	locker, err := infraredis.NewBatchLocker(infra.Redis, cfg.BatchLockTTL, logger)
	if err != nil {
		return nil, err
	}

	progress, err := infraredis.NewProgressStore(infra.Redis, cfg.ProgressTTL)
	if err != nil {
		return nil, err
	}

	logger.Info("validation engine configured",
		zap.String("target", builder.Target()),
		zap.Int("phraseRules", len(cls.Rules())),
		zap.Int("maxAttempts", cfg.MaxAttempts),
		zap.Duration("probeTimeout", cfg.ProbeTimeout),
	)

	return service.NewValidationService(
		codes,
		repository.NewGormBatchRepo(infra.DB),
		locker,
		progress,
		publisher,
		service.ValidationServiceConfig{
			Runner:             driver,
			AdHocRunner:        driver.WithoutPersistence(),
			MaxCodesPerRequest: cfg.MaxCodesPerRequest,
		},
		logger,
	)
}
