package repositories

import (
	"context"
	"fmt"

	"supplierstock/internal/models"

	"github.com/google/uuid"
)

// StockRepository holds every statement that mutates stock shared with the
// order-taking system. Quantities are only changed with single-statement
// atomic expressions, never read-modify-write from Go.
type StockRepository interface {
	// Increment adds qty to the variant's stock, creating the row if missing.
	Increment(ctx context.Context, warehouseID, variantID uuid.UUID, qty int) error
	// ResetToAtLeastAllocated sets quantity to GREATEST(quantity_allocated, qty).
	ResetToAtLeastAllocated(ctx context.Context, warehouseID, variantID uuid.UUID, qty int) error
	// ZeroToAllocated sets quantity to GREATEST(0, quantity_allocated) for the
	// products' stock at the warehouse. A nil sizes slice covers every variant.
	ZeroToAllocated(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) error

	// LockReleasableAllocations locks allocations (and their stock rows) held by
	// draft or unconfirmed orders with a positive quantity.
	LockReleasableAllocations(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) ([]*models.Allocation, error)
	DecrementAllocated(ctx context.Context, stockID uuid.UUID, delta int) error
	DeleteAllocations(ctx context.Context, ids []uuid.UUID) error
	ReleasableOrderIDs(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) ([]uuid.UUID, error)

	// TotalQuantities sums stock across all warehouses per product.
	TotalQuantities(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

type stockRepo struct {
	db Database
}

func NewStockRepo(db Database) StockRepository {
	return &stockRepo{db: db}
}

func (r *stockRepo) Increment(ctx context.Context, warehouseID, variantID uuid.UUID, qty int) error {
	query := `
		INSERT INTO stocks (id, warehouse_id, product_variant_id, quantity, quantity_allocated)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (warehouse_id, product_variant_id)
		DO UPDATE SET quantity = stocks.quantity + EXCLUDED.quantity
	`
	_, err := r.db.Exec(ctx, query, uuid.New(), warehouseID, variantID, qty)
	if err != nil {
		return fmt.Errorf("increment stock of variant %s: %w", variantID, err)
	}
	return nil
}

func (r *stockRepo) ResetToAtLeastAllocated(ctx context.Context, warehouseID, variantID uuid.UUID, qty int) error {
	query := `
		INSERT INTO stocks (id, warehouse_id, product_variant_id, quantity, quantity_allocated)
		VALUES ($1, $2, $3, $4, 0)
		ON CONFLICT (warehouse_id, product_variant_id)
		DO UPDATE SET quantity = GREATEST(stocks.quantity_allocated, EXCLUDED.quantity)
	`
	_, err := r.db.Exec(ctx, query, uuid.New(), warehouseID, variantID, qty)
	if err != nil {
		return fmt.Errorf("reset stock of variant %s: %w", variantID, err)
	}
	return nil
}

func (r *stockRepo) ZeroToAllocated(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) error {
	query := `
		UPDATE stocks s
		SET quantity = GREATEST(0, s.quantity_allocated)
		FROM product_variants v
		WHERE s.product_variant_id = v.id
			AND s.warehouse_id = $1
			AND v.product_id = ANY($2)
			AND ($3::text[] IS NULL OR v.name = ANY($3))
	`
	_, err := r.db.Exec(ctx, query, warehouseID, productIDs, sizes)
	if err != nil {
		return fmt.Errorf("zero stock at warehouse %s: %w", warehouseID, err)
	}
	return nil
}

func (r *stockRepo) LockReleasableAllocations(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) ([]*models.Allocation, error) {
	query := `
		SELECT a.id, a.order_line_id, a.stock_id, a.quantity_allocated
		FROM allocations a
		JOIN stocks s ON s.id = a.stock_id
		JOIN product_variants v ON v.id = s.product_variant_id
		JOIN order_lines ol ON ol.id = a.order_line_id
		JOIN orders o ON o.id = ol.order_id
		WHERE s.warehouse_id = $1
			AND v.product_id = ANY($2)
			AND ($3::text[] IS NULL OR v.name = ANY($3))
			AND o.status = ANY($4)
			AND a.quantity_allocated > 0
		ORDER BY a.stock_id, a.id
		FOR UPDATE OF a, s
	`
	rows, err := r.db.Query(ctx, query, warehouseID, productIDs, sizes, models.ReleasableOrderStatuses)
	if err != nil {
		return nil, fmt.Errorf("lock releasable allocations: %w", err)
	}
	defer rows.Close()

	var allocations []*models.Allocation
	for rows.Next() {
		a := &models.Allocation{}
		if err := rows.Scan(&a.ID, &a.OrderLineID, &a.StockID, &a.QuantityAllocated); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

func (r *stockRepo) DecrementAllocated(ctx context.Context, stockID uuid.UUID, delta int) error {
	query := `UPDATE stocks SET quantity_allocated = GREATEST(0, quantity_allocated - $2) WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, stockID, delta); err != nil {
		return fmt.Errorf("decrement allocated on stock %s: %w", stockID, err)
	}
	return nil
}

func (r *stockRepo) DeleteAllocations(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM allocations WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("delete allocations: %w", err)
	}
	return nil
}

func (r *stockRepo) ReleasableOrderIDs(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT o.id
		FROM allocations a
		JOIN stocks s ON s.id = a.stock_id
		JOIN product_variants v ON v.id = s.product_variant_id
		JOIN order_lines ol ON ol.id = a.order_line_id
		JOIN orders o ON o.id = ol.order_id
		WHERE s.warehouse_id = $1
			AND v.product_id = ANY($2)
			AND ($3::text[] IS NULL OR v.name = ANY($3))
			AND o.status = ANY($4)
			AND a.quantity_allocated > 0
	`
	rows, err := r.db.Query(ctx, query, warehouseID, productIDs, sizes, models.ReleasableOrderStatuses)
	if err != nil {
		return nil, fmt.Errorf("count releasable orders: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *stockRepo) TotalQuantities(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	query := `
		SELECT v.product_id, COALESCE(SUM(s.quantity), 0)
		FROM product_variants v
		LEFT JOIN stocks s ON s.product_variant_id = v.id
		WHERE v.product_id = ANY($1)
		GROUP BY v.product_id
	`
	rows, err := r.db.Query(ctx, query, productIDs)
	if err != nil {
		return nil, fmt.Errorf("sum stock: %w", err)
	}
	defer rows.Close()

	totals := make(map[uuid.UUID]int, len(productIDs))
	for rows.Next() {
		var id uuid.UUID
		var total int
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		totals[id] = total
	}
	return totals, rows.Err()
}
