package repositories

import (
	"context"
	"fmt"

	"supplierstock/internal/models"

	"github.com/google/uuid"
)

type WarehouseRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error)
}

type warehouseRepo struct {
	db Database
}

func NewWarehouseRepository(db Database) WarehouseRepository {
	return &warehouseRepo{db: db}
}

func (r *warehouseRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	warehouse := &models.Warehouse{}
	query := `
		SELECT id, name, is_owned, created_at, updated_at
		FROM warehouses
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&warehouse.ID, &warehouse.Name, &warehouse.IsOwned, &warehouse.CreatedAt, &warehouse.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("get warehouse %s: %w", id, notFound(err))
	}
	return warehouse, nil
}
