package models

import (
	"time"

	"github.com/google/uuid"
)

// Warehouse is a stock location. Owned warehouses hold the business's own
// stock and never take supplier price lists.
type Warehouse struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsOwned   bool      `json:"is_owned" db:"is_owned"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Channel struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Slug         string    `json:"slug" db:"slug"`
	CurrencyCode string    `json:"currency_code" db:"currency_code"`
}
