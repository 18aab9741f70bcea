package background

import (
	"context"
	"fmt"
	"sync"
	"time"

	"supplierstock/internal/services"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const searchSweepJob = "search-reindex-sweep"

// JobScheduler runs the periodic maintenance jobs of a worker process.
type JobScheduler struct {
	scheduler gocron.Scheduler
	search    services.SearchService
	logger    *zap.Logger
	batchSize int
	jobs      map[string]gocron.Job
	mu        sync.RWMutex
}

func NewJobScheduler(search services.SearchService, interval time.Duration, batchSize int, logger *zap.Logger) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	js := &JobScheduler{
		scheduler: scheduler,
		search:    search,
		logger:    logger,
		batchSize: batchSize,
		jobs:      make(map[string]gocron.Job),
	}
	if err := js.registerJobs(interval); err != nil {
		_ = scheduler.Shutdown()
		return nil, err
	}
	return js, nil
}

func (js *JobScheduler) Start() {
	js.logger.Info("starting background job scheduler", zap.Int("jobs", len(js.jobs)))
	js.scheduler.Start()
}

func (js *JobScheduler) Stop() error {
	js.logger.Info("stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs(interval time.Duration) error {
	job, err := js.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(js.sweepSearchIndex, context.Background()),
		gocron.WithName(searchSweepJob),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s job: %w", searchSweepJob, err)
	}

	js.mu.Lock()
	js.jobs[searchSweepJob] = job
	js.mu.Unlock()
	return nil
}

// sweepSearchIndex catches products whose reindex task was lost or failed.
func (js *JobScheduler) sweepSearchIndex(ctx context.Context) error {
	n, err := js.search.ReindexDirty(ctx, js.batchSize)
	if err != nil {
		js.logger.Error("search reindex sweep failed", zap.Int64("reindexed", n), zap.Error(err))
		return err
	}
	if n > 0 {
		js.logger.Info("search reindex sweep completed", zap.Int64("reindexed", n))
	}
	return nil
}

// JobNames lists the registered jobs.
func (js *JobScheduler) JobNames() []string {
	js.mu.RLock()
	defer js.mu.RUnlock()

	names := make([]string, 0, len(js.jobs))
	for name := range js.jobs {
		names = append(names, name)
	}
	return names
}
