package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bsm/redislock"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"supplierstock/internal/caching"
	"supplierstock/internal/config"
	"supplierstock/internal/handlers"
	"supplierstock/internal/jobs"
	"supplierstock/internal/jobs/background"
	"supplierstock/internal/middleware"
	"supplierstock/internal/rates"
	"supplierstock/internal/repositories"
	"supplierstock/internal/services"
	"supplierstock/internal/storage"
	"supplierstock/pkg/database"
	"supplierstock/pkg/logging"
)

const (
	apiVersion = "v1"
	version    = "1.0.0"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "supplierstock: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, database.PoolOptions{}, logger)
	if err != nil {
		return err
	}
	defer database.ClosePool(pool, logger)
	store := repositories.NewStore(pool)

	rdb, err := caching.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	cache := caching.NewRedisCacheService(rdb)

	objects, err := storage.NewMinioObjects(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}
	snapshots := storage.NewSnapshotStore(objects, cfg.MinioBucket)
	if err := snapshots.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("prepare bucket %s: %w", cfg.MinioBucket, err)
	}

	provider := rates.NewProvider(rates.NewClient(cfg.ExchangeRatesURL, cfg.ExchangeRatesTimeout), cache, cfg.ExchangeRatesTTL, logger)

	redisOpt, err := asynqRedisOpt(cfg)
	if err != nil {
		return err
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	jobsClient := jobs.NewClient(asynqClient, cfg.QueueMaxRetry, logger)

	lifecycle := services.NewLifecycleService(store, snapshots, provider, jobsClient, logger)
	search := services.NewSearchService(store, logger)
	priceLists := services.NewPriceListService(store, snapshots, jobsClient, logger, cfg.FileURLExpiry)

	worker := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.QueueConcurrency,
		Queues: map[string]int{
			jobs.QueuePriceLists: 6,
			jobs.QueueSearch:     2,
		},
		Logger: logger.Sugar().Named("asynq"),
	})
	mux := asynq.NewServeMux()
	locker := jobs.NewRedisJobLocker(redislock.New(rdb), cfg.JobLockTTL, logger)
	jobs.NewHandlers(lifecycle, search, locker, logger).Register(mux)
	if err := worker.Start(mux); err != nil {
		return fmt.Errorf("start job worker: %w", err)
	}
	defer worker.Shutdown()

	scheduler, err := background.NewJobScheduler(search, cfg.ReindexInterval, cfg.ReindexBatchSize, logger)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			logger.Warn("scheduler shutdown", zap.Error(err))
		}
	}()

	e := newServer(logger, pool, rdb, snapshots, priceLists)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr), zap.String("version", version))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newServer(logger *zap.Logger, pool *pgxpool.Pool, rdb *redis.Client, snapshots *storage.SnapshotStore, priceLists services.PriceListService) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.Recover())
	e.Use(middleware.RequestLogger(logger))
	e.Use(middleware.VersionHeader(apiVersion, version))

	health := handlers.NewHealthHandlers(map[string]handlers.Checker{
		"database": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"storage":  snapshots.EnsureBucket,
	}, version)
	handlers.RegisterRoutes(e, handlers.NewPriceListHandlers(priceLists, logger), health)
	return e
}

func asynqRedisOpt(cfg *config.Config) (asynq.RedisConnOpt, error) {
	if strings.HasPrefix(cfg.RedisAddr, "redis://") || strings.HasPrefix(cfg.RedisAddr, "rediss://") {
		opt, err := asynq.ParseRedisURI(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return opt, nil
	}
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}, nil
}
