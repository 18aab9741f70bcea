package services

import (
	"errors"
	"fmt"
)

var (
	ErrPriceListNotFound   = errors.New("price list not found")
	ErrNotProcessed        = errors.New("price list has not completed processing")
	ErrOwnedWarehouse      = errors.New("price lists cannot be activated on an owned warehouse")
	ErrWarehouseMismatch   = errors.New("price lists belong to different warehouses")
	ErrPriceListBusy       = errors.New("price list is already being processed")
	ErrPriceListActive     = errors.New("price list is active")
	ErrDraftOrdersAffected = errors.New("draft or unconfirmed orders hold allocations that would be released")
	ErrInvalidConfig       = errors.New("invalid parsing configuration")
	ErrUnsupportedFile     = errors.New("unsupported price list file")
	ErrReplacementCycle    = errors.New("replacement chain does not converge")
)

// MissingCategoryError is returned when activation needs to create a product
// whose category has no Category/ProductType pair in the catalog.
type MissingCategoryError struct {
	Category string
}

func (e *MissingCategoryError) Error() string {
	return fmt.Sprintf("category '%s' must exist as both a Category and a ProductType before activation", e.Category)
}

// IsPrecondition reports whether err is a failure that retrying cannot fix.
func IsPrecondition(err error) bool {
	var missing *MissingCategoryError
	switch {
	case errors.As(err, &missing),
		errors.Is(err, ErrPriceListNotFound),
		errors.Is(err, ErrNotProcessed),
		errors.Is(err, ErrOwnedWarehouse),
		errors.Is(err, ErrWarehouseMismatch),
		errors.Is(err, ErrInvalidConfig),
		errors.Is(err, ErrReplacementCycle):
		return true
	}
	return false
}
