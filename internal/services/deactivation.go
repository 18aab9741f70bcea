package services

import (
	"context"

	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *lifecycleService) deactivate(ctx context.Context, priceListID uuid.UUID) error {
	var touched []uuid.UUID
	err := s.store.WithTx(ctx, func(r repositories.Repositories) error {
		pl, err := lockPriceList(ctx, r, priceListID)
		if err != nil {
			return err
		}
		if !pl.IsActive() {
			s.logger.Info("price list already inactive", zap.String("price_list_id", pl.ID.String()))
			return nil
		}

		items, err := validItems(ctx, r, pl.ID)
		if err != nil {
			return err
		}
		touched = productIDs(items)

		if len(touched) > 0 {
			if err := withdrawStock(ctx, r.Stock, pl.WarehouseID, touched, nil); err != nil {
				return err
			}
			if err := unpublishEmpty(ctx, r, touched); err != nil {
				return err
			}
			if err := r.Catalog.MarkSearchDirty(ctx, touched); err != nil {
				return err
			}
		}
		return r.PriceLists.MarkInactive(ctx, pl.ID, s.now(), nil)
	})
	if err != nil {
		return err
	}

	s.enqueueReindex(ctx, touched)
	s.logger.Info("price list deactivated", zap.String("price_list_id", priceListID.String()), zap.Int("products", len(touched)))
	return nil
}

// unpublishEmpty hides products with no stock left in any warehouse.
func unpublishEmpty(ctx context.Context, r repositories.Repositories, productIDs []uuid.UUID) error {
	totals, err := r.Stock.TotalQuantities(ctx, productIDs)
	if err != nil {
		return err
	}
	var empty []uuid.UUID
	for _, id := range productIDs {
		if totals[id] == 0 {
			empty = append(empty, id)
		}
	}
	return r.Catalog.UnpublishProducts(ctx, empty)
}
