package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"supplierstock/internal/services"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Task type definitions
const (
	TypeProcessPriceList    = "price_list:process"
	TypeActivatePriceList   = "price_list:activate"
	TypeDeactivatePriceList = "price_list:deactivate"
	TypeReplacePriceList    = "price_list:replace"
	TypeSearchReindex       = "product:search_reindex"
)

const (
	QueuePriceLists = "price_lists"
	QueueSearch     = "search"
)

type PriceListPayload struct {
	PriceListID uuid.UUID `json:"price_list_id"`
	Force       bool      `json:"force,omitempty"`
}

type ReplacePayload struct {
	OldPriceListID uuid.UUID `json:"old_price_list_id"`
	NewPriceListID uuid.UUID `json:"new_price_list_id"`
	Force          bool      `json:"force,omitempty"`
}

type SearchReindexPayload struct {
	ProductIDs []uuid.UUID `json:"product_ids"`
}

func newTask(typeName string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typeName, data, opts...), nil
}

func NewProcessTask(priceListID uuid.UUID) (*asynq.Task, error) {
	return newTask(TypeProcessPriceList, PriceListPayload{PriceListID: priceListID}, asynq.Queue(QueuePriceLists))
}

func NewActivateTask(priceListID uuid.UUID) (*asynq.Task, error) {
	return newTask(TypeActivatePriceList, PriceListPayload{PriceListID: priceListID}, asynq.Queue(QueuePriceLists))
}

func NewDeactivateTask(priceListID uuid.UUID, force bool) (*asynq.Task, error) {
	return newTask(TypeDeactivatePriceList, PriceListPayload{PriceListID: priceListID, Force: force}, asynq.Queue(QueuePriceLists))
}

func NewReplaceTask(oldID, newID uuid.UUID, force bool) (*asynq.Task, error) {
	return newTask(TypeReplacePriceList, ReplacePayload{OldPriceListID: oldID, NewPriceListID: newID, Force: force}, asynq.Queue(QueuePriceLists))
}

func NewSearchReindexTask(productIDs []uuid.UUID) (*asynq.Task, error) {
	return newTask(TypeSearchReindex, SearchReindexPayload{ProductIDs: productIDs}, asynq.Queue(QueueSearch))
}

// Handlers runs lifecycle tasks. Each price list task holds the per-list
// lock for its duration so two workers never mutate the same list.
type Handlers struct {
	lifecycle services.LifecycleService
	search    services.SearchService
	locker    JobLocker
	logger    *zap.Logger
}

func NewHandlers(lifecycle services.LifecycleService, search services.SearchService, locker JobLocker, logger *zap.Logger) *Handlers {
	return &Handlers{lifecycle: lifecycle, search: search, locker: locker, logger: logger}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeProcessPriceList, h.HandleProcess)
	mux.HandleFunc(TypeActivatePriceList, h.HandleActivate)
	mux.HandleFunc(TypeDeactivatePriceList, h.HandleDeactivate)
	mux.HandleFunc(TypeReplacePriceList, h.HandleReplace)
	mux.HandleFunc(TypeSearchReindex, h.HandleSearchReindex)
}

func (h *Handlers) HandleProcess(ctx context.Context, t *asynq.Task) error {
	var payload PriceListPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	return h.run(ctx, t.Type(), []uuid.UUID{payload.PriceListID}, func(ctx context.Context) error {
		return h.lifecycle.Process(ctx, payload.PriceListID)
	})
}

func (h *Handlers) HandleActivate(ctx context.Context, t *asynq.Task) error {
	var payload PriceListPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	return h.run(ctx, t.Type(), []uuid.UUID{payload.PriceListID}, func(ctx context.Context) error {
		return h.lifecycle.Activate(ctx, payload.PriceListID)
	})
}

func (h *Handlers) HandleDeactivate(ctx context.Context, t *asynq.Task) error {
	var payload PriceListPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	return h.run(ctx, t.Type(), []uuid.UUID{payload.PriceListID}, func(ctx context.Context) error {
		if payload.Force {
			h.logger.Info("forced deactivation", zap.String("price_list_id", payload.PriceListID.String()))
		}
		return h.lifecycle.Deactivate(ctx, payload.PriceListID)
	})
}

func (h *Handlers) HandleReplace(ctx context.Context, t *asynq.Task) error {
	var payload ReplacePayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	ids := []uuid.UUID{payload.OldPriceListID, payload.NewPriceListID}
	return h.run(ctx, t.Type(), ids, func(ctx context.Context) error {
		if payload.Force {
			h.logger.Info("forced replacement",
				zap.String("old_price_list_id", payload.OldPriceListID.String()),
				zap.String("new_price_list_id", payload.NewPriceListID.String()))
		}
		return h.lifecycle.Replace(ctx, payload.OldPriceListID, payload.NewPriceListID)
	})
}

func (h *Handlers) HandleSearchReindex(ctx context.Context, t *asynq.Task) error {
	var payload SearchReindexPayload
	if err := decode(t, &payload); err != nil {
		return err
	}
	if len(payload.ProductIDs) == 0 {
		return nil
	}
	n, err := h.search.Reindex(ctx, payload.ProductIDs)
	if err != nil {
		return fmt.Errorf("reindex %d products: %w", len(payload.ProductIDs), err)
	}
	h.logger.Info("search reindex completed", zap.Int("requested", len(payload.ProductIDs)), zap.Int64("updated", n))
	return nil
}

func (h *Handlers) run(ctx context.Context, taskType string, ids []uuid.UUID, fn func(context.Context) error) error {
	unlock, err := h.locker.Lock(ctx, ids...)
	if err != nil {
		return err
	}
	defer unlock()

	log := h.logger.With(zap.String("task", taskType), zap.Stringers("price_list_ids", ids))
	log.Info("task started")

	if err := fn(ctx); err != nil {
		if services.IsPrecondition(err) {
			log.Warn("task rejected", zap.Error(err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		log.Error("task failed", zap.Error(err))
		return err
	}
	log.Info("task completed")
	return nil
}

func decode(t *asynq.Task, dst any) error {
	if err := json.Unmarshal(t.Payload(), dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
