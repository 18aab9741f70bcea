package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductKey identifies a catalog product by its normalized code and brand.
type ProductKey struct {
	Code  string
	Brand string
}

type Product struct {
	ID            uuid.UUID        `json:"id" db:"id"`
	Name          string           `json:"name" db:"name"`
	Slug          string           `json:"slug" db:"slug"`
	ProductCode   string           `json:"product_code" db:"product_code"`
	Brand         string           `json:"brand" db:"brand"`
	Description   string           `json:"description" db:"description"`
	CategoryID    uuid.UUID        `json:"category_id" db:"category_id"`
	ProductTypeID uuid.UUID        `json:"product_type_id" db:"product_type_id"`
	RRP           *decimal.Decimal `json:"rrp" db:"rrp"`
	WeightKg      *decimal.Decimal `json:"weight_kg" db:"weight_kg"`
	ImageURL      string           `json:"image_url" db:"image_url"`
	HSCode        string           `json:"hs_code" db:"hs_code"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

// ProductData is what a price list item contributes to a new catalog product.
type ProductData struct {
	ProductCode string
	Brand       string
	Description string
	Category    string
	RRP         *decimal.Decimal
	WeightKg    *decimal.Decimal
	ImageURL    string
	HSCode      string
}

// CategoryMapping pairs a Category with the ProductType of the same name.
type CategoryMapping struct {
	Name          string    `json:"name"`
	CategoryID    uuid.UUID `json:"category_id"`
	ProductTypeID uuid.UUID `json:"product_type_id"`
}

// ProductVariant is one size of a product.
type ProductVariant struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	ProductID uuid.UUID        `json:"product_id" db:"product_id"`
	Name      string           `json:"name" db:"name"`
	SKU       string           `json:"sku" db:"sku"`
	WeightKg  *decimal.Decimal `json:"weight_kg" db:"weight_kg"`
}

type ProductChannelListing struct {
	ProductID              uuid.UUID  `json:"product_id" db:"product_id"`
	ChannelID              uuid.UUID  `json:"channel_id" db:"channel_id"`
	Currency               string     `json:"currency" db:"currency"`
	IsPublished            bool       `json:"is_published" db:"is_published"`
	VisibleInListings      bool       `json:"visible_in_listings" db:"visible_in_listings"`
	AvailableForPurchaseAt *time.Time `json:"available_for_purchase_at" db:"available_for_purchase_at"`
}

type VariantChannelListing struct {
	VariantID   uuid.UUID       `json:"variant_id" db:"variant_id"`
	ChannelID   uuid.UUID       `json:"channel_id" db:"channel_id"`
	Currency    string          `json:"currency" db:"currency"`
	PriceAmount decimal.Decimal `json:"price_amount" db:"price_amount"`
}
