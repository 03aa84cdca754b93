package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	TargetURLTemplate string        `env:"TARGET_URL_TEMPLATE"`
	PhraseTablePath   string        `env:"PHRASE_TABLE_PATH"`
	ProbeTimeout      time.Duration `env:"PROBE_TIMEOUT,default=15s"`
	MaxAttempts       int           `env:"MAX_ATTEMPTS,default=3"`
	InterCodeDelayMin time.Duration `env:"INTER_CODE_DELAY_MIN,default=4s"`
	InterCodeDelayMax time.Duration `env:"INTER_CODE_DELAY_MAX,default=10s"`
	ProbeRateLimit    int           `env:"PROBE_RATE_LIMIT_PER_SEC,default=1"`

	BatchLockTTL       time.Duration `env:"BATCH_LOCK_TTL,default=2m"`
	ProgressTTL        time.Duration `env:"PROGRESS_TTL,default=24h"`
	MaxCodesPerRequest int           `env:"MAX_CODES_PER_REQUEST,default=100"`
	RecheckInterval    time.Duration `env:"RECHECK_INTERVAL,default=0s"`

	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=2"`
	APIPort           int    `env:"API_PORT,default=8080"`
	MetricsPort       int    `env:"METRICS_PORT,default=9090"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

// Load reads an optional .env file from the working directory, then the
// process environment. Variables already set in the environment win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("PROBE_TIMEOUT must be positive, got %s", c.ProbeTimeout)
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("MAX_ATTEMPTS must be at least 1, got %d", c.MaxAttempts)
	}
	if c.InterCodeDelayMin < 0 || c.InterCodeDelayMax < c.InterCodeDelayMin {
		return fmt.Errorf("inter-code delay bounds invalid: min=%s max=%s", c.InterCodeDelayMin, c.InterCodeDelayMax)
	}
	if c.ProbeRateLimit < 1 {
		return fmt.Errorf("PROBE_RATE_LIMIT_PER_SEC must be at least 1, got %d", c.ProbeRateLimit)
	}
	if c.MaxCodesPerRequest < 1 {
		return fmt.Errorf("MAX_CODES_PER_REQUEST must be at least 1, got %d", c.MaxCodesPerRequest)
	}
	if c.RecheckInterval < 0 {
		return fmt.Errorf("RECHECK_INTERVAL must not be negative, got %s", c.RecheckInterval)
	}
	return nil
}
