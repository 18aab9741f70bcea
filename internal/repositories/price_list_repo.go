package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supplierstock/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type PriceListRepository interface {
	Create(ctx context.Context, priceList *models.PriceList) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.PriceList, error)
	List(ctx context.Context, warehouseID *uuid.UUID, limit, offset int) ([]*models.PriceList, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// LockByIDs locks the rows FOR UPDATE in ascending id order.
	LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.PriceList, error)
	FindActiveID(ctx context.Context, warehouseID, excludeID uuid.UUID) (uuid.UUID, bool, error)

	AcquireLease(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseLease(ctx context.Context, id uuid.UUID) error

	MarkProcessingStarted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkProcessingCompleted(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkProcessingFailed(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkActive(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkInactive(ctx context.Context, id uuid.UUID, at time.Time, replacedBy *uuid.UUID) error

	Channels(ctx context.Context, id uuid.UUID) ([]*models.Channel, error)

	ReplaceItems(ctx context.Context, id uuid.UUID, items []*models.PriceListItem) error
	Items(ctx context.Context, id uuid.UUID, filter models.ItemFilter) ([]*models.PriceListItem, error)
	// SetItemProducts writes item id -> product id links.
	SetItemProducts(ctx context.Context, links map[uuid.UUID]uuid.UUID) error
}

type priceListRepo struct {
	db Database
}

func NewPriceListRepo(db Database) PriceListRepository {
	return &priceListRepo{db: db}
}

const priceListColumns = `id, warehouse_id, name, config, file_key, drive_url, status,
		processing_completed_at, processing_failed_at, attempted_processing_at,
		activated_at, deactivated_at, replaced_by_id, is_processing, created_at, updated_at`

func scanPriceList(row pgx.Row) (*models.PriceList, error) {
	pl := &models.PriceList{}
	err := row.Scan(
		&pl.ID, &pl.WarehouseID, &pl.Name, &pl.Config, &pl.FileKey, &pl.DriveURL, &pl.Status,
		&pl.ProcessingCompletedAt, &pl.ProcessingFailedAt, &pl.AttemptedProcessingAt,
		&pl.ActivatedAt, &pl.DeactivatedAt, &pl.ReplacedByID, &pl.IsProcessing, &pl.CreatedAt, &pl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pl, nil
}

func (r *priceListRepo) Create(ctx context.Context, priceList *models.PriceList) error {
	query := `
		INSERT INTO price_lists (id, warehouse_id, name, config, file_key, drive_url, status, is_processing, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, NOW(), NOW())
	`
	_, err := r.db.Exec(ctx, query, priceList.ID, priceList.WarehouseID, priceList.Name, priceList.Config,
		priceList.FileKey, priceList.DriveURL, priceList.Status)
	if err != nil {
		return fmt.Errorf("insert price list: %w", err)
	}

	for _, channelID := range priceList.ChannelIDs {
		_, err := r.db.Exec(ctx, `
			INSERT INTO price_list_channels (price_list_id, channel_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, priceList.ID, channelID)
		if err != nil {
			return fmt.Errorf("attach channel %s: %w", channelID, err)
		}
	}
	return nil
}

func (r *priceListRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.PriceList, error) {
	query := `SELECT ` + priceListColumns + ` FROM price_lists WHERE id = $1`
	pl, err := scanPriceList(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get price list %s: %w", id, notFound(err))
	}
	return pl, nil
}

func (r *priceListRepo) List(ctx context.Context, warehouseID *uuid.UUID, limit, offset int) ([]*models.PriceList, error) {
	query := `SELECT ` + priceListColumns + `
		FROM price_lists
		WHERE ($1::uuid IS NULL OR warehouse_id = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, warehouseID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list price lists: %w", err)
	}
	defer rows.Close()

	var lists []*models.PriceList
	for rows.Next() {
		pl, err := scanPriceList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, pl)
	}
	return lists, rows.Err()
}

func (r *priceListRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM price_lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete price list %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *priceListRepo) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.PriceList, error) {
	query := `SELECT ` + priceListColumns + `
		FROM price_lists
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("lock price lists: %w", err)
	}
	defer rows.Close()

	var lists []*models.PriceList
	for rows.Next() {
		pl, err := scanPriceList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, pl)
	}
	return lists, rows.Err()
}

func (r *priceListRepo) FindActiveID(ctx context.Context, warehouseID, excludeID uuid.UUID) (uuid.UUID, bool, error) {
	query := `
		SELECT id FROM price_lists
		WHERE warehouse_id = $1 AND status = $2 AND id <> $3
		ORDER BY activated_at DESC NULLS LAST
		LIMIT 1
	`
	var id uuid.UUID
	err := r.db.QueryRow(ctx, query, warehouseID, models.PriceListStatusActive, excludeID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("find active price list: %w", err)
	}
	return id, true, nil
}

func (r *priceListRepo) AcquireLease(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE price_lists SET is_processing = true, updated_at = NOW()
		WHERE id = $1 AND NOT is_processing
	`, id)
	if err != nil {
		return false, fmt.Errorf("acquire lease on %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *priceListRepo) ReleaseLease(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE price_lists SET is_processing = false, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("release lease on %s: %w", id, err)
	}
	return nil
}

func (r *priceListRepo) MarkProcessingStarted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, `UPDATE price_lists SET attempted_processing_at = $2, updated_at = NOW() WHERE id = $1`, id, at)
}

func (r *priceListRepo) MarkProcessingCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, `
		UPDATE price_lists SET processing_completed_at = $2, processing_failed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, at)
}

func (r *priceListRepo) MarkProcessingFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, `
		UPDATE price_lists SET processing_completed_at = NULL, processing_failed_at = $2, updated_at = NOW()
		WHERE id = $1
	`, id, at)
}

func (r *priceListRepo) MarkActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, `
		UPDATE price_lists SET status = $2, activated_at = $3, deactivated_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, models.PriceListStatusActive, at)
}

func (r *priceListRepo) MarkInactive(ctx context.Context, id uuid.UUID, at time.Time, replacedBy *uuid.UUID) error {
	return r.update(ctx, `
		UPDATE price_lists SET status = $2, deactivated_at = $3, replaced_by_id = COALESCE($4, replaced_by_id), updated_at = NOW()
		WHERE id = $1
	`, id, models.PriceListStatusInactive, at, replacedBy)
}

func (r *priceListRepo) update(ctx context.Context, query string, id uuid.UUID, args ...any) error {
	tag, err := r.db.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("update price list %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update price list %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *priceListRepo) Channels(ctx context.Context, id uuid.UUID) ([]*models.Channel, error) {
	query := `
		SELECT c.id, c.name, c.slug, c.currency_code
		FROM channels c
		JOIN price_list_channels plc ON plc.channel_id = c.id
		WHERE plc.price_list_id = $1
		ORDER BY c.slug
	`
	rows, err := r.db.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("list channels of %s: %w", id, err)
	}
	defer rows.Close()

	var channels []*models.Channel
	for rows.Next() {
		c := &models.Channel{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.CurrencyCode); err != nil {
			return nil, err
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

const itemColumns = `id, price_list_id, row_index, product_code, brand, description, category,
		sizes_and_qty, rrp, sell_price, buy_price, weight_kg, image_url, hs_code, currency,
		is_valid, validation_errors, product_id, created_at`

// ReplaceItems must run inside a transaction so readers never see a half-written set.
func (r *priceListRepo) ReplaceItems(ctx context.Context, id uuid.UUID, items []*models.PriceListItem) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM price_list_items WHERE price_list_id = $1`, id); err != nil {
		return fmt.Errorf("clear items of %s: %w", id, err)
	}

	query := `
		INSERT INTO price_list_items (` + itemColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, NOW())
	`
	for _, item := range items {
		_, err := r.db.Exec(ctx, query,
			item.ID, id, item.RowIndex, item.ProductCode, item.Brand, item.Description, item.Category,
			item.SizesAndQty, item.RRP, item.SellPrice, item.BuyPrice, item.WeightKg, item.ImageURL, item.HSCode,
			item.Currency, item.IsValid, item.ValidationErrors, item.ProductID,
		)
		if err != nil {
			return fmt.Errorf("insert item row %d: %w", item.RowIndex, err)
		}
	}
	return nil
}

func (r *priceListRepo) Items(ctx context.Context, id uuid.UUID, filter models.ItemFilter) ([]*models.PriceListItem, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query := `SELECT ` + itemColumns + `
		FROM price_list_items
		WHERE price_list_id = $1 AND ($2::boolean IS NULL OR is_valid = $2)
		ORDER BY row_index
		LIMIT NULLIF($3, -1) OFFSET $4`
	rows, err := r.db.Query(ctx, query, id, filter.IsValid, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list items of %s: %w", id, err)
	}
	defer rows.Close()

	var items []*models.PriceListItem
	for rows.Next() {
		item := &models.PriceListItem{}
		err := rows.Scan(
			&item.ID, &item.PriceListID, &item.RowIndex, &item.ProductCode, &item.Brand, &item.Description, &item.Category,
			&item.SizesAndQty, &item.RRP, &item.SellPrice, &item.BuyPrice, &item.WeightKg, &item.ImageURL, &item.HSCode, &item.Currency,
			&item.IsValid, &item.ValidationErrors, &item.ProductID, &item.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *priceListRepo) SetItemProducts(ctx context.Context, links map[uuid.UUID]uuid.UUID) error {
	for _, itemID := range sortedKeys(links) {
		productID := links[itemID]
		_, err := r.db.Exec(ctx, `UPDATE price_list_items SET product_id = $2 WHERE id = $1`, itemID, productID)
		if err != nil {
			return fmt.Errorf("link item %s to product %s: %w", itemID, productID, err)
		}
	}
	return nil
}
