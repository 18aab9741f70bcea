package services

import (
	"context"

	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultReindexBatchSize = 500

type SearchService interface {
	Reindex(ctx context.Context, productIDs []uuid.UUID) (int64, error)
	// ReindexDirty drains every dirty product in batches.
	ReindexDirty(ctx context.Context, batchSize int) (int64, error)
}

type searchService struct {
	store  repositories.Store
	logger *zap.Logger
}

func NewSearchService(store repositories.Store, logger *zap.Logger) SearchService {
	return &searchService{store: store, logger: logger}
}

func (s *searchService) Reindex(ctx context.Context, productIDs []uuid.UUID) (int64, error) {
	n, err := s.store.Repos().Catalog.Reindex(ctx, productIDs)
	if err != nil {
		return 0, err
	}
	s.logger.Debug("reindexed products", zap.Int("requested", len(productIDs)), zap.Int64("updated", n))
	return n, nil
}

func (s *searchService) ReindexDirty(ctx context.Context, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultReindexBatchSize
	}
	catalog := s.store.Repos().Catalog

	var total int64
	for {
		ids, err := catalog.DirtyProductIDs(ctx, batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		n, err := catalog.Reindex(ctx, ids)
		if err != nil {
			return total, err
		}
		total += n
		if n == 0 || len(ids) < batchSize {
			return total, nil
		}
	}
}
