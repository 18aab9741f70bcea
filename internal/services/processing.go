package services

import (
	"context"
	"fmt"

	"supplierstock/internal/models"
	"supplierstock/internal/parsing"
	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *lifecycleService) Process(ctx context.Context, priceListID uuid.UUID) error {
	defer s.releaseLease(ctx, priceListID)

	repos := s.store.Repos()
	pl, err := getPriceList(ctx, repos, priceListID)
	if err != nil {
		return err
	}
	if err := repos.PriceLists.MarkProcessingStarted(ctx, pl.ID, s.now()); err != nil {
		return err
	}

	if err := s.process(ctx, pl); err != nil {
		if markErr := repos.PriceLists.MarkProcessingFailed(context.WithoutCancel(ctx), pl.ID, s.now()); markErr != nil {
			s.logger.Error("failed to record processing failure", zap.String("price_list_id", pl.ID.String()), zap.Error(markErr))
		}
		s.logger.Error("price list processing failed", zap.String("price_list_id", pl.ID.String()), zap.Error(err))
		return err
	}

	return repos.PriceLists.MarkProcessingCompleted(ctx, pl.ID, s.now())
}

func (s *lifecycleService) process(ctx context.Context, pl *models.PriceList) error {
	columns, err := pl.Config.Columns()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	sheet, err := s.sheets.OpenSheet(ctx, pl.FileKey, pl.Config.Sheet())
	if err != nil {
		return fmt.Errorf("open snapshot %s: %w", pl.FileKey, err)
	}

	names, err := s.store.Repos().Catalog.CategoryNames(ctx)
	if err != nil {
		return err
	}
	var allowed parsing.CategorySet
	if len(names) > 0 {
		allowed = make(parsing.CategorySet, len(names))
		for _, n := range names {
			allowed[n] = struct{}{}
		}
	}

	rows := parsing.ParseSheet(sheet, columns, pl.Config.DefaultCurrency, pl.Config.HeaderRow, allowed)
	duplicates := dedupeRows(rows)

	items := make([]*models.PriceListItem, 0, len(rows))
	valid := 0
	for _, row := range rows {
		items = append(items, models.NewPriceListItem(pl.ID, row))
		if row.IsValid {
			valid++
		}
	}

	var resolved int
	err = s.store.WithTx(ctx, func(r repositories.Repositories) error {
		if err := r.PriceLists.ReplaceItems(ctx, pl.ID, items); err != nil {
			return err
		}
		resolved, err = resolveExisting(ctx, r, items)
		return err
	})
	if err != nil {
		return err
	}

	s.logger.Info("price list processed",
		zap.String("price_list_id", pl.ID.String()),
		zap.Int("rows", len(rows)),
		zap.Int("valid", valid),
		zap.Int("duplicates", duplicates),
		zap.Int("resolved", resolved))
	return nil
}

// dedupeRows invalidates every valid row whose (code, brand) was already seen
// on an earlier valid row, and returns how many were invalidated.
func dedupeRows(rows []parsing.Row) int {
	seen := make(map[models.ProductKey]struct{}, len(rows))
	n := 0
	for i := range rows {
		if !rows[i].IsValid {
			continue
		}
		key := models.ProductKey{Code: rows[i].ProductCode, Brand: rows[i].Brand}
		if _, dup := seen[key]; dup {
			rows[i].Invalidate("duplicate product_code+brand in this sheet: " + rows[i].ProductCode)
			n++
			continue
		}
		seen[key] = struct{}{}
	}
	return n
}

// resolveExisting links valid, unresolved items to catalog products with the
// same code and brand. Items without a match stay unresolved.
func resolveExisting(ctx context.Context, r repositories.Repositories, items []*models.PriceListItem) (int, error) {
	var keys []models.ProductKey
	for _, item := range items {
		if item.IsValid && item.ProductID == nil {
			keys = append(keys, item.Key())
		}
	}
	if len(keys) == 0 {
		return 0, nil
	}

	found, err := r.Catalog.FindProducts(ctx, keys)
	if err != nil {
		return 0, err
	}

	links := make(map[uuid.UUID]uuid.UUID)
	for _, item := range items {
		if !item.IsValid || item.ProductID != nil {
			continue
		}
		if id, ok := found[item.Key()]; ok {
			productID := id
			item.ProductID = &productID
			links[item.ID] = productID
		}
	}
	if err := r.PriceLists.SetItemProducts(ctx, links); err != nil {
		return 0, err
	}
	return len(links), nil
}
