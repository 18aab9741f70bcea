package repositories

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"supplierstock/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CatalogRepository is the product catalog as seen by the lifecycle jobs:
// code+brand matching, product creation, variants and channel listings.
type CatalogRepository interface {
	FindProducts(ctx context.Context, keys []models.ProductKey) (map[models.ProductKey]uuid.UUID, error)
	// CategoryNames returns names that exist as both a Category and a ProductType.
	CategoryNames(ctx context.Context) ([]string, error)
	CategoryMappings(ctx context.Context, names []string) (map[string]models.CategoryMapping, error)
	CreateProduct(ctx context.Context, data models.ProductData, mapping models.CategoryMapping) (*models.Product, error)

	GetOrCreateVariant(ctx context.Context, productID uuid.UUID, size string, weightKg *decimal.Decimal) (*models.ProductVariant, error)
	FindVariant(ctx context.Context, productID uuid.UUID, size string) (*models.ProductVariant, error)

	EnsureProductChannelListing(ctx context.Context, listing *models.ProductChannelListing) error
	EnsureVariantChannelListing(ctx context.Context, listing *models.VariantChannelListing) (bool, error)
	UnpublishProducts(ctx context.Context, productIDs []uuid.UUID) error

	ExistingChannelIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)

	MarkSearchDirty(ctx context.Context, productIDs []uuid.UUID) error
	DirtyProductIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	// Reindex rebuilds the search document of dirty products and returns how
	// many were updated.
	Reindex(ctx context.Context, productIDs []uuid.UUID) (int64, error)
}

type catalogRepo struct {
	db Database
}

func NewCatalogRepo(db Database) CatalogRepository {
	return &catalogRepo{db: db}
}

func (r *catalogRepo) FindProducts(ctx context.Context, keys []models.ProductKey) (map[models.ProductKey]uuid.UUID, error) {
	found := make(map[models.ProductKey]uuid.UUID, len(keys))
	if len(keys) == 0 {
		return found, nil
	}

	wanted := make(map[models.ProductKey]struct{}, len(keys))
	codes := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := wanted[k]; !ok {
			wanted[k] = struct{}{}
			codes = append(codes, k.Code)
		}
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, product_code, brand
		FROM products
		WHERE product_code = ANY($1)
		ORDER BY created_at
	`, codes)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var key models.ProductKey
		if err := rows.Scan(&id, &key.Code, &key.Brand); err != nil {
			return nil, err
		}
		if _, ok := wanted[key]; !ok {
			continue
		}
		if _, dup := found[key]; !dup {
			found[key] = id
		}
	}
	return found, rows.Err()
}

func (r *catalogRepo) CategoryNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT c.name
		FROM categories c
		JOIN product_types pt ON pt.name = c.name
		ORDER BY c.name
	`)
	if err != nil {
		return nil, fmt.Errorf("list category names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (r *catalogRepo) CategoryMappings(ctx context.Context, names []string) (map[string]models.CategoryMapping, error) {
	mappings := make(map[string]models.CategoryMapping, len(names))
	if len(names) == 0 {
		return mappings, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT c.name, c.id, pt.id
		FROM categories c
		JOIN product_types pt ON pt.name = c.name
		WHERE c.name = ANY($1)
	`, names)
	if err != nil {
		return nil, fmt.Errorf("load category mappings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.CategoryMapping
		if err := rows.Scan(&m.Name, &m.CategoryID, &m.ProductTypeID); err != nil {
			return nil, err
		}
		mappings[m.Name] = m
	}
	return mappings, rows.Err()
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(s string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (r *catalogRepo) CreateProduct(ctx context.Context, data models.ProductData, mapping models.CategoryMapping) (*models.Product, error) {
	name := data.Description
	if name == "" {
		name = data.ProductCode
	}
	p := &models.Product{
		ID:            uuid.New(),
		Name:          name,
		ProductCode:   data.ProductCode,
		Brand:         data.Brand,
		Description:   data.Description,
		CategoryID:    mapping.CategoryID,
		ProductTypeID: mapping.ProductTypeID,
		RRP:           data.RRP,
		WeightKg:      data.WeightKg,
		ImageURL:      data.ImageURL,
		HSCode:        data.HSCode,
	}
	p.Slug = slugify(name + "-" + data.ProductCode + "-" + p.ID.String()[:8])

	query := `
		INSERT INTO products (id, name, slug, product_code, brand, description, category_id, product_type_id,
			rrp, weight_kg, image_url, hs_code, search_index_dirty, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, true, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, p.ID, p.Name, p.Slug, p.ProductCode, p.Brand, p.Description, p.CategoryID,
		p.ProductTypeID, p.RRP, p.WeightKg, p.ImageURL, p.HSCode).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create product %s/%s: %w", data.Brand, data.ProductCode, err)
	}
	return p, nil
}

func (r *catalogRepo) GetOrCreateVariant(ctx context.Context, productID uuid.UUID, size string, weightKg *decimal.Decimal) (*models.ProductVariant, error) {
	v := &models.ProductVariant{}
	query := `
		INSERT INTO product_variants (id, product_id, name, sku, weight_kg)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (product_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, product_id, name, sku, weight_kg
	`
	sku := fmt.Sprintf("pl-%s-%s", productID, size)
	err := r.db.QueryRow(ctx, query, uuid.New(), productID, size, sku, weightKg).
		Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.WeightKg)
	if err != nil {
		return nil, fmt.Errorf("get or create variant %s of %s: %w", size, productID, err)
	}
	return v, nil
}

func (r *catalogRepo) FindVariant(ctx context.Context, productID uuid.UUID, size string) (*models.ProductVariant, error) {
	v := &models.ProductVariant{}
	err := r.db.QueryRow(ctx, `
		SELECT id, product_id, name, sku, weight_kg
		FROM product_variants
		WHERE product_id = $1 AND name = $2
	`, productID, size).Scan(&v.ID, &v.ProductID, &v.Name, &v.SKU, &v.WeightKg)
	if err != nil {
		return nil, fmt.Errorf("find variant %s of %s: %w", size, productID, notFound(err))
	}
	return v, nil
}

func (r *catalogRepo) EnsureProductChannelListing(ctx context.Context, l *models.ProductChannelListing) error {
	query := `
		INSERT INTO product_channel_listings (product_id, channel_id, currency, is_published, visible_in_listings, available_for_purchase_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (product_id, channel_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, l.ProductID, l.ChannelID, l.Currency, l.IsPublished, l.VisibleInListings, l.AvailableForPurchaseAt)
	if err != nil {
		return fmt.Errorf("list product %s on channel %s: %w", l.ProductID, l.ChannelID, err)
	}
	return nil
}

func (r *catalogRepo) EnsureVariantChannelListing(ctx context.Context, l *models.VariantChannelListing) (bool, error) {
	query := `
		INSERT INTO product_variant_channel_listings (variant_id, channel_id, currency, price_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (variant_id, channel_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, l.VariantID, l.ChannelID, l.Currency, l.PriceAmount)
	if err != nil {
		return false, fmt.Errorf("price variant %s on channel %s: %w", l.VariantID, l.ChannelID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *catalogRepo) UnpublishProducts(ctx context.Context, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `
		UPDATE product_channel_listings
		SET is_published = false, visible_in_listings = false, available_for_purchase_at = NULL
		WHERE product_id = ANY($1)
	`, productIDs)
	if err != nil {
		return fmt.Errorf("unpublish products: %w", err)
	}
	return nil
}

func (r *catalogRepo) ExistingChannelIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM channels WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("look up channels: %w", err)
	}
	defer rows.Close()

	var found []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	return found, rows.Err()
}

func (r *catalogRepo) MarkSearchDirty(ctx context.Context, productIDs []uuid.UUID) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `UPDATE products SET search_index_dirty = true, updated_at = $2 WHERE id = ANY($1)`,
		productIDs, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark search dirty: %w", err)
	}
	return nil
}

func (r *catalogRepo) DirtyProductIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM products
		WHERE search_index_dirty
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list dirty products: %w", err)
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

func (r *catalogRepo) Reindex(ctx context.Context, productIDs []uuid.UUID) (int64, error) {
	if len(productIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE products
		SET search_document = to_tsvector('simple',
				coalesce(name, '') || ' ' || product_code || ' ' || brand || ' ' || coalesce(description, '')),
			search_index_dirty = false
		WHERE id = ANY($1) AND search_index_dirty
	`, productIDs)
	if err != nil {
		return 0, fmt.Errorf("reindex products: %w", err)
	}
	return tag.RowsAffected(), nil
}
