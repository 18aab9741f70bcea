package services

import (
	"context"
	"io"
	"time"

	"supplierstock/internal/parsing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SheetOpener reads one sheet of a stored snapshot as raw cells.
type SheetOpener interface {
	OpenSheet(ctx context.Context, fileKey, sheetName string) ([][]parsing.Cell, error)
}

// SnapshotStorage keeps the uploaded snapshot files.
type SnapshotStorage interface {
	SheetOpener
	Upload(ctx context.Context, fileKey string, reader io.Reader, size int64, contentType string) error
	PresignedURL(ctx context.Context, fileKey string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, fileKey string) error
}

// RateProvider converts between currencies: amount_in_to = amount_in_from * rate.
type RateProvider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

type SearchReindexer interface {
	EnqueueSearchReindex(ctx context.Context, productIDs []uuid.UUID) error
}

// JobEnqueuer schedules lifecycle jobs. Delivery is at least once.
type JobEnqueuer interface {
	SearchReindexer
	EnqueueProcess(ctx context.Context, priceListID uuid.UUID) error
	EnqueueActivate(ctx context.Context, priceListID uuid.UUID) error
	EnqueueDeactivate(ctx context.Context, priceListID uuid.UUID, force bool) error
	EnqueueReplace(ctx context.Context, oldID, newID uuid.UUID, force bool) error
}
