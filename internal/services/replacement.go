package services

import (
	"context"
	"errors"
	"fmt"

	"supplierstock/internal/models"
	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// replaceStep tells replace what to do after one attempt.
type replaceStep struct {
	follow   uuid.UUID
	activate bool
	touched  []uuid.UUID
}

// replace swaps old for new. When old was already superseded it follows the
// replaced_by chain until it converges on new or revisits a list.
func (s *lifecycleService) replace(ctx context.Context, oldID, newID uuid.UUID) error {
	visited := make(map[uuid.UUID]struct{})
	for {
		if oldID == newID {
			return nil
		}
		if _, seen := visited[oldID]; seen {
			return fmt.Errorf("%w: %s revisited while replacing with %s", ErrReplacementCycle, oldID, newID)
		}
		visited[oldID] = struct{}{}

		step, err := s.replaceOnce(ctx, oldID, newID)
		if err != nil {
			return err
		}
		switch {
		case step.follow != uuid.Nil:
			s.logger.Info("price list already replaced, following chain",
				zap.String("old_price_list_id", oldID.String()),
				zap.String("replaced_by_id", step.follow.String()))
			oldID = step.follow
		case step.activate:
			return s.activate(ctx, newID)
		default:
			s.enqueueReindex(ctx, step.touched)
			return nil
		}
	}
}

func (s *lifecycleService) replaceOnce(ctx context.Context, oldID, newID uuid.UUID) (replaceStep, error) {
	var step replaceStep
	err := s.store.WithTx(ctx, func(r repositories.Repositories) error {
		oldPL, newPL, err := lockPair(ctx, r, oldID, newID)
		if err != nil {
			return err
		}
		if oldPL.WarehouseID != newPL.WarehouseID {
			return ErrWarehouseMismatch
		}
		if !newPL.IsProcessed() {
			return ErrNotProcessed
		}
		if newPL.IsActive() {
			s.logger.Info("replacement price list already active", zap.String("price_list_id", newPL.ID.String()))
			return nil
		}
		if !oldPL.IsActive() {
			if oldPL.ReplacedByID != nil {
				step.follow = *oldPL.ReplacedByID
			} else {
				step.activate = true
			}
			return nil
		}
		touched, err := s.swap(ctx, r, oldPL, newPL)
		if err != nil {
			return err
		}
		step.touched = touched
		return nil
	})
	if err != nil {
		return replaceStep{}, err
	}
	if step.touched != nil {
		s.logger.Info("price list replaced",
			zap.String("old_price_list_id", oldID.String()),
			zap.String("new_price_list_id", newID.String()),
			zap.Int("products", len(step.touched)))
	}
	return step, nil
}

// lockPair locks both rows in ascending id order.
func lockPair(ctx context.Context, r repositories.Repositories, oldID, newID uuid.UUID) (*models.PriceList, *models.PriceList, error) {
	ids := []uuid.UUID{oldID, newID}
	sortIDs(ids)
	lists, err := r.PriceLists.LockByIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	var oldPL, newPL *models.PriceList
	for _, pl := range lists {
		switch pl.ID {
		case oldID:
			oldPL = pl
		case newID:
			newPL = pl
		}
	}
	if oldPL == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPriceListNotFound, oldID)
	}
	if newPL == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrPriceListNotFound, newID)
	}
	return oldPL, newPL, nil
}

// swap applies the minimal stock mutation for each bucket of the diff and
// flips both statuses. It returns the touched product ids.
func (s *lifecycleService) swap(ctx context.Context, r repositories.Repositories, oldPL, newPL *models.PriceList) ([]uuid.UUID, error) {
	oldItems, err := validItems(ctx, r, oldPL.ID)
	if err != nil {
		return nil, err
	}
	newItems, err := validItems(ctx, r, newPL.ID)
	if err != nil {
		return nil, err
	}

	act, err := s.newActivator(ctx, r, newPL)
	if err != nil {
		return nil, err
	}
	if err := act.resolve(ctx, newItems); err != nil {
		return nil, err
	}

	warehouseID := newPL.WarehouseID
	d := diffProducts(oldItems, newItems)

	if err := withdrawStock(ctx, r.Stock, warehouseID, d.oldOnly, nil); err != nil {
		return nil, err
	}

	for _, productID := range d.both {
		if err := s.swapShared(ctx, act, d, productID); err != nil {
			return nil, err
		}
	}

	for _, productID := range d.newOnly {
		if err := act.activateItem(ctx, d.newItems[productID]); err != nil {
			return nil, err
		}
	}

	touched := d.touched()
	if err := r.Catalog.MarkSearchDirty(ctx, touched); err != nil {
		return nil, err
	}
	if err := r.PriceLists.MarkInactive(ctx, oldPL.ID, act.now, &newPL.ID); err != nil {
		return nil, err
	}
	if err := r.PriceLists.MarkActive(ctx, newPL.ID, act.now); err != nil {
		return nil, err
	}
	if touched == nil {
		touched = []uuid.UUID{}
	}
	return touched, nil
}

func (s *lifecycleService) swapShared(ctx context.Context, act *itemActivator, d productDiff, productID uuid.UUID) error {
	r := act.repos
	warehouseID := act.priceList.WarehouseID
	item := d.newItems[productID]
	removed, common, added := d.sizeDiff(productID)

	if len(removed) > 0 {
		if err := withdrawStock(ctx, r.Stock, warehouseID, []uuid.UUID{productID}, removed); err != nil {
			return err
		}
	}
	if err := act.ensureProductListings(ctx, productID); err != nil {
		return err
	}

	for _, size := range common {
		qty, _ := item.SizesAndQty.Get(size)
		variant, err := r.Catalog.FindVariant(ctx, productID, size)
		if errors.Is(err, repositories.ErrNotFound) {
			if err := act.activateSize(ctx, item, size, qty); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}
		if err := r.Stock.ResetToAtLeastAllocated(ctx, warehouseID, variant.ID, qty); err != nil {
			return err
		}
		if err := act.ensureVariantListings(ctx, variant, item); err != nil {
			return err
		}
	}

	for _, size := range added {
		qty, _ := item.SizesAndQty.Get(size)
		if err := act.activateSize(ctx, item, size, qty); err != nil {
			return err
		}
	}
	return nil
}
