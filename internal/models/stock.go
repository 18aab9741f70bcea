package models

import (
	"github.com/google/uuid"
)

// Order statuses as written by the order-taking system.
const (
	OrderStatusDraft       = "draft"
	OrderStatusUnconfirmed = "unconfirmed"
	OrderStatusUnfulfilled = "unfulfilled"
	OrderStatusFulfilled   = "fulfilled"
	OrderStatusCanceled    = "canceled"
)

// ReleasableOrderStatuses are the statuses whose allocations may be released
// when a price list is withdrawn.
var ReleasableOrderStatuses = []string{OrderStatusDraft, OrderStatusUnconfirmed}

// Stock is the quantity of one variant at one warehouse.
// 0 <= QuantityAllocated <= Quantity always holds.
type Stock struct {
	ID                uuid.UUID `json:"id" db:"id"`
	WarehouseID       uuid.UUID `json:"warehouse_id" db:"warehouse_id"`
	ProductVariantID  uuid.UUID `json:"product_variant_id" db:"product_variant_id"`
	Quantity          int       `json:"quantity" db:"quantity"`
	QuantityAllocated int       `json:"quantity_allocated" db:"quantity_allocated"`
}

// Available is the quantity still free to allocate.
func (s *Stock) Available() int {
	return s.Quantity - s.QuantityAllocated
}

// Allocation commits part of a stock row to an order line.
type Allocation struct {
	ID                uuid.UUID `json:"id" db:"id"`
	OrderLineID       uuid.UUID `json:"order_line_id" db:"order_line_id"`
	StockID           uuid.UUID `json:"stock_id" db:"stock_id"`
	QuantityAllocated int       `json:"quantity_allocated" db:"quantity_allocated"`
}
