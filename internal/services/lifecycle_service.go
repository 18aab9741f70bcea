package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supplierstock/internal/models"
	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LifecycleService runs the asynchronous price list jobs. Every entry point
// clears the is_processing lease of the lists it was given when it returns.
type LifecycleService interface {
	Process(ctx context.Context, priceListID uuid.UUID) error
	Activate(ctx context.Context, priceListID uuid.UUID) error
	Deactivate(ctx context.Context, priceListID uuid.UUID) error
	Replace(ctx context.Context, oldID, newID uuid.UUID) error
}

type lifecycleService struct {
	store   repositories.Store
	sheets  SheetOpener
	rates   RateProvider
	reindex SearchReindexer
	logger  *zap.Logger
	now     func() time.Time
}

func NewLifecycleService(store repositories.Store, sheets SheetOpener, rates RateProvider, reindex SearchReindexer, logger *zap.Logger) LifecycleService {
	return &lifecycleService{
		store:   store,
		sheets:  sheets,
		rates:   rates,
		reindex: reindex,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *lifecycleService) Activate(ctx context.Context, priceListID uuid.UUID) error {
	defer s.releaseLease(ctx, priceListID)
	return s.activate(ctx, priceListID)
}

func (s *lifecycleService) Deactivate(ctx context.Context, priceListID uuid.UUID) error {
	defer s.releaseLease(ctx, priceListID)
	return s.deactivate(ctx, priceListID)
}

func (s *lifecycleService) Replace(ctx context.Context, oldID, newID uuid.UUID) error {
	defer s.releaseLease(ctx, oldID)
	if newID != oldID {
		defer s.releaseLease(ctx, newID)
	}
	return s.replace(ctx, oldID, newID)
}

// releaseLease must run even when ctx was cancelled mid-job.
func (s *lifecycleService) releaseLease(ctx context.Context, id uuid.UUID) {
	err := s.store.Repos().PriceLists.ReleaseLease(context.WithoutCancel(ctx), id)
	if err != nil {
		s.logger.Error("failed to release price list lease", zap.String("price_list_id", id.String()), zap.Error(err))
	}
}

func (s *lifecycleService) enqueueReindex(ctx context.Context, productIDs []uuid.UUID) {
	if len(productIDs) == 0 || s.reindex == nil {
		return
	}
	if err := s.reindex.EnqueueSearchReindex(ctx, productIDs); err != nil {
		s.logger.Warn("failed to enqueue search reindex, products stay dirty for the sweep",
			zap.Int("products", len(productIDs)), zap.Error(err))
	}
}

func lockPriceList(ctx context.Context, r repositories.Repositories, id uuid.UUID) (*models.PriceList, error) {
	lists, err := r.PriceLists.LockByIDs(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if len(lists) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPriceListNotFound, id)
	}
	return lists[0], nil
}

func getPriceList(ctx context.Context, r repositories.Repositories, id uuid.UUID) (*models.PriceList, error) {
	pl, err := r.PriceLists.GetByID(ctx, id)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrPriceListNotFound, id)
	}
	return pl, err
}

var validOnly = func() models.ItemFilter {
	valid := true
	return models.ItemFilter{IsValid: &valid}
}()

func validItems(ctx context.Context, r repositories.Repositories, priceListID uuid.UUID) ([]*models.PriceListItem, error) {
	return r.PriceLists.Items(ctx, priceListID, validOnly)
}
