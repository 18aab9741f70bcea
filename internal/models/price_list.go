package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"supplierstock/internal/parsing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PriceListStatus string

const (
	PriceListStatusInactive PriceListStatus = "INACTIVE"
	PriceListStatusActive   PriceListStatus = "ACTIVE"
)

const DefaultSheetName = "Sheet1"

// ParsingConfig describes where the data sits in a snapshot workbook.
// ColumnMap keys are 0-based column indexes encoded as strings.
type ParsingConfig struct {
	SheetName       string            `json:"sheet_name"`
	HeaderRow       int               `json:"header_row"`
	ColumnMap       map[string]string `json:"column_map"`
	DefaultCurrency string            `json:"default_currency"`
}

// Sheet returns the configured sheet name, falling back to Sheet1.
func (c ParsingConfig) Sheet() string {
	if strings.TrimSpace(c.SheetName) == "" {
		return DefaultSheetName
	}
	return c.SheetName
}

// Columns decodes ColumnMap into column index -> field.
func (c ParsingConfig) Columns() (map[int]parsing.Field, error) {
	cols := make(map[int]parsing.Field, len(c.ColumnMap))
	for k, v := range c.ColumnMap {
		idx, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || idx < 0 {
			return nil, fmt.Errorf("column_map key %q is not a column index", k)
		}
		field := parsing.Field(strings.TrimSpace(v))
		if _, ok := parsing.ValidFields[field]; !ok {
			return nil, fmt.Errorf("column_map value %q is not a price list field", v)
		}
		cols[idx] = field
	}
	return cols, nil
}

// Validate checks the configuration before a price list is stored.
func (c ParsingConfig) Validate() error {
	if strings.TrimSpace(c.DefaultCurrency) == "" {
		return fmt.Errorf("default_currency is required")
	}
	if c.HeaderRow < 0 {
		return fmt.Errorf("header_row must not be negative")
	}
	if len(c.ColumnMap) == 0 {
		return fmt.Errorf("column_map must map at least one column")
	}
	_, err := c.Columns()
	return err
}

// PriceList is one warehouse's supplier snapshot.
type PriceList struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	WarehouseID           uuid.UUID       `json:"warehouse_id" db:"warehouse_id"`
	Name                  string          `json:"name" db:"name"`
	Config                ParsingConfig   `json:"config" db:"config"`
	FileKey               string          `json:"file_key" db:"file_key"`
	DriveURL              string          `json:"drive_url" db:"drive_url"`
	Status                PriceListStatus `json:"status" db:"status"`
	ProcessingCompletedAt *time.Time      `json:"processing_completed_at" db:"processing_completed_at"`
	ProcessingFailedAt    *time.Time      `json:"processing_failed_at" db:"processing_failed_at"`
	AttemptedProcessingAt *time.Time      `json:"attempted_processing_at" db:"attempted_processing_at"`
	ActivatedAt           *time.Time      `json:"activated_at" db:"activated_at"`
	DeactivatedAt         *time.Time      `json:"deactivated_at" db:"deactivated_at"`
	ReplacedByID          *uuid.UUID      `json:"replaced_by_id" db:"replaced_by_id"`
	IsProcessing          bool            `json:"is_processing" db:"is_processing"`
	ChannelIDs            []uuid.UUID     `json:"channel_ids" db:"-"`
	CreatedAt             time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at" db:"updated_at"`
}

func (p *PriceList) IsActive() bool {
	return p.Status == PriceListStatusActive
}

func (p *PriceList) IsProcessed() bool {
	return p.ProcessingCompletedAt != nil
}

// PriceListItem is one parsed row of a snapshot.
type PriceListItem struct {
	ID               uuid.UUID        `json:"id" db:"id"`
	PriceListID      uuid.UUID        `json:"price_list_id" db:"price_list_id"`
	RowIndex         int              `json:"row_index" db:"row_index"`
	ProductCode      string           `json:"product_code" db:"product_code"`
	Brand            string           `json:"brand" db:"brand"`
	Description      string           `json:"description" db:"description"`
	Category         string           `json:"category" db:"category"`
	SizesAndQty      parsing.SizeMap  `json:"sizes_and_qty" db:"sizes_and_qty"`
	RRP              *decimal.Decimal `json:"rrp" db:"rrp"`
	SellPrice        *decimal.Decimal `json:"sell_price" db:"sell_price"`
	BuyPrice         *decimal.Decimal `json:"buy_price" db:"buy_price"`
	WeightKg         *decimal.Decimal `json:"weight_kg" db:"weight_kg"`
	ImageURL         string           `json:"image_url" db:"image_url"`
	HSCode           string           `json:"hs_code" db:"hs_code"`
	Currency         string           `json:"currency" db:"currency"`
	IsValid          bool             `json:"is_valid" db:"is_valid"`
	ValidationErrors []string         `json:"validation_errors" db:"validation_errors"`
	ProductID        *uuid.UUID       `json:"product_id" db:"product_id"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}

// NewPriceListItem builds an item from a parsed row.
func NewPriceListItem(priceListID uuid.UUID, row parsing.Row) *PriceListItem {
	errs := row.Errors
	if errs == nil {
		errs = []string{}
	}
	sizes := row.Sizes
	if sizes == nil {
		sizes = parsing.SizeMap{}
	}
	return &PriceListItem{
		ID:               uuid.New(),
		PriceListID:      priceListID,
		RowIndex:         row.RowIndex,
		ProductCode:      row.ProductCode,
		Brand:            row.Brand,
		Description:      row.Description,
		Category:         row.Category,
		SizesAndQty:      sizes,
		RRP:              row.RRP,
		SellPrice:        row.SellPrice,
		BuyPrice:         row.BuyPrice,
		WeightKg:         row.WeightKg,
		ImageURL:         row.ImageURL,
		HSCode:           row.HSCode,
		Currency:         row.Currency,
		IsValid:          row.IsValid,
		ValidationErrors: errs,
	}
}

func (i *PriceListItem) Key() ProductKey {
	return ProductKey{Code: i.ProductCode, Brand: i.Brand}
}

// ProductData extracts the catalog fields used when the item creates a product.
func (i *PriceListItem) ProductData() ProductData {
	return ProductData{
		ProductCode: i.ProductCode,
		Brand:       i.Brand,
		Description: i.Description,
		Category:    i.Category,
		RRP:         i.RRP,
		WeightKg:    i.WeightKg,
		ImageURL:    i.ImageURL,
		HSCode:      i.HSCode,
	}
}

// ItemFilter narrows an item listing. A nil IsValid returns all items.
type ItemFilter struct {
	IsValid *bool
	Limit   int
	Offset  int
}
