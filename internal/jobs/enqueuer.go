package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskEnqueuer is satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Client turns lifecycle requests into asynq tasks.
type Client struct {
	tasks    TaskEnqueuer
	maxRetry int
	logger   *zap.Logger
}

func NewClient(tasks TaskEnqueuer, maxRetry int, logger *zap.Logger) *Client {
	return &Client{tasks: tasks, maxRetry: maxRetry, logger: logger}
}

func (c *Client) enqueue(ctx context.Context, taskType string, task *asynq.Task, err error) error {
	if err != nil {
		return fmt.Errorf("build %s task: %w", taskType, err)
	}
	info, err := c.tasks.EnqueueContext(ctx, task, asynq.MaxRetry(c.maxRetry))
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	c.logger.Debug("task enqueued", zap.String("task", task.Type()), zap.String("task_id", info.ID), zap.String("queue", info.Queue))
	return nil
}

func (c *Client) EnqueueProcess(ctx context.Context, priceListID uuid.UUID) error {
	task, err := NewProcessTask(priceListID)
	return c.enqueue(ctx, TypeProcessPriceList, task, err)
}

func (c *Client) EnqueueActivate(ctx context.Context, priceListID uuid.UUID) error {
	task, err := NewActivateTask(priceListID)
	return c.enqueue(ctx, TypeActivatePriceList, task, err)
}

func (c *Client) EnqueueDeactivate(ctx context.Context, priceListID uuid.UUID, force bool) error {
	task, err := NewDeactivateTask(priceListID, force)
	return c.enqueue(ctx, TypeDeactivatePriceList, task, err)
}

func (c *Client) EnqueueReplace(ctx context.Context, oldID, newID uuid.UUID, force bool) error {
	task, err := NewReplaceTask(oldID, newID, force)
	return c.enqueue(ctx, TypeReplacePriceList, task, err)
}

func (c *Client) EnqueueSearchReindex(ctx context.Context, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	task, err := NewSearchReindexTask(productIDs)
	return c.enqueue(ctx, TypeSearchReindex, task, err)
}
