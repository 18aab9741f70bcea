package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is read from, in increasing precedence: defaults, the optional TOML
// file named by CONFIG_FILE, a .env file and the process environment.
type Config struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	Environment string `mapstructure:"ENVIRONMENT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	MinioEndpoint  string        `mapstructure:"MINIO_ENDPOINT"`
	MinioAccessKey string        `mapstructure:"MINIO_ACCESS_KEY"`
	MinioSecretKey string        `mapstructure:"MINIO_SECRET_KEY"`
	MinioUseSSL    bool          `mapstructure:"MINIO_USE_SSL"`
	MinioBucket    string        `mapstructure:"MINIO_BUCKET"`
	FileURLExpiry  time.Duration `mapstructure:"FILE_URL_EXPIRY"`

	QueueConcurrency int           `mapstructure:"QUEUE_CONCURRENCY"`
	QueueMaxRetry    int           `mapstructure:"QUEUE_MAX_RETRY"`
	JobLockTTL       time.Duration `mapstructure:"JOB_LOCK_TTL"`

	ReindexInterval  time.Duration `mapstructure:"REINDEX_INTERVAL"`
	ReindexBatchSize int           `mapstructure:"REINDEX_BATCH_SIZE"`

	ExchangeRatesURL     string        `mapstructure:"EXCHANGE_RATES_URL"`
	ExchangeRatesTTL     time.Duration `mapstructure:"EXCHANGE_RATES_TTL"`
	ExchangeRatesTimeout time.Duration `mapstructure:"EXCHANGE_RATES_TIMEOUT"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"HTTP_ADDR":              ":8080",
	"LOG_LEVEL":              "info",
	"ENVIRONMENT":            "development",
	"DATABASE_URL":           "",
	"REDIS_ADDR":             "localhost:6379",
	"REDIS_PASSWORD":         "",
	"REDIS_DB":               0,
	"MINIO_ENDPOINT":         "localhost:9000",
	"MINIO_ACCESS_KEY":       "",
	"MINIO_SECRET_KEY":       "",
	"MINIO_USE_SSL":          false,
	"MINIO_BUCKET":           "price-lists",
	"FILE_URL_EXPIRY":        "15m",
	"QUEUE_CONCURRENCY":      10,
	"QUEUE_MAX_RETRY":        5,
	"JOB_LOCK_TTL":           "10m",
	"REINDEX_INTERVAL":       "5m",
	"REINDEX_BATCH_SIZE":     500,
	"EXCHANGE_RATES_URL":     "https://api.frankfurter.app/latest",
	"EXCHANGE_RATES_TTL":     "1h",
	"EXCHANGE_RATES_TIMEOUT": "10s",
	"SHUTDOWN_TIMEOUT":       "30s",
}

// Load builds the configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		file := map[string]any{}
		if _, err := toml.DecodeFile(path, &file); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		if err := v.MergeConfigMap(file); err != nil {
			return nil, fmt.Errorf("failed to merge config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.QueueConcurrency <= 0 {
		errs = append(errs, errors.New("QUEUE_CONCURRENCY must be positive"))
	}
	if c.ReindexInterval <= 0 {
		errs = append(errs, errors.New("REINDEX_INTERVAL must be positive"))
	}
	if c.JobLockTTL <= 0 {
		errs = append(errs, errors.New("JOB_LOCK_TTL must be positive"))
	}
	if c.MinioBucket == "" {
		errs = append(errs, errors.New("MINIO_BUCKET is required"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
