package services

import (
	"context"

	"supplierstock/internal/repositories"

	"github.com/google/uuid"
)

// deallocateDraftUnconfirmed releases every allocation held by draft or
// unconfirmed orders on the products' stock at the warehouse, optionally
// restricted to the given sizes. It runs inside the caller's transaction.
func deallocateDraftUnconfirmed(ctx context.Context, stock repositories.StockRepository, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) error {
	if len(productIDs) == 0 || (sizes != nil && len(sizes) == 0) {
		return nil
	}

	allocations, err := stock.LockReleasableAllocations(ctx, warehouseID, productIDs, sizes)
	if err != nil {
		return err
	}
	if len(allocations) == 0 {
		return nil
	}

	var (
		order []uuid.UUID
		ids   = make([]uuid.UUID, 0, len(allocations))
	)
	released := make(map[uuid.UUID]int)
	for _, a := range allocations {
		if _, ok := released[a.StockID]; !ok {
			order = append(order, a.StockID)
		}
		released[a.StockID] += a.QuantityAllocated
		ids = append(ids, a.ID)
	}

	for _, stockID := range order {
		if err := stock.DecrementAllocated(ctx, stockID, released[stockID]); err != nil {
			return err
		}
	}
	return stock.DeleteAllocations(ctx, ids)
}

// withdrawStock releases draft/unconfirmed allocations and then drops the
// remaining quantity to what confirmed orders still hold.
func withdrawStock(ctx context.Context, stock repositories.StockRepository, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) error {
	if len(productIDs) == 0 || (sizes != nil && len(sizes) == 0) {
		return nil
	}
	if err := deallocateDraftUnconfirmed(ctx, stock, warehouseID, productIDs, sizes); err != nil {
		return err
	}
	return stock.ZeroToAllocated(ctx, warehouseID, productIDs, sizes)
}
