package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supplierstock/internal/models"
	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *lifecycleService) activate(ctx context.Context, priceListID uuid.UUID) error {
	var (
		activeID uuid.UUID
		touched  []uuid.UUID
	)
	err := s.store.WithTx(ctx, func(r repositories.Repositories) error {
		pl, err := lockPriceList(ctx, r, priceListID)
		if err != nil {
			return err
		}
		if pl.IsActive() {
			s.logger.Info("price list already active", zap.String("price_list_id", pl.ID.String()))
			return nil
		}
		if !pl.IsProcessed() {
			return ErrNotProcessed
		}
		if err := checkWarehouse(ctx, r, pl.WarehouseID); err != nil {
			return err
		}

		id, found, err := r.PriceLists.FindActiveID(ctx, pl.WarehouseID, pl.ID)
		if err != nil {
			return err
		}
		if found {
			activeID = id
			return nil
		}

		items, err := validItems(ctx, r, pl.ID)
		if err != nil {
			return err
		}
		act, err := s.newActivator(ctx, r, pl)
		if err != nil {
			return err
		}
		if err := act.resolve(ctx, items); err != nil {
			return err
		}
		for _, item := range items {
			if err := act.activateItem(ctx, item); err != nil {
				return err
			}
		}

		touched = productIDs(items)
		if err := r.Catalog.MarkSearchDirty(ctx, touched); err != nil {
			return err
		}
		return r.PriceLists.MarkActive(ctx, pl.ID, act.now)
	})
	if err != nil {
		return err
	}

	if activeID != uuid.Nil {
		s.logger.Info("warehouse already has an active price list, replacing it",
			zap.String("price_list_id", priceListID.String()),
			zap.String("active_price_list_id", activeID.String()))
		return s.replace(ctx, activeID, priceListID)
	}

	s.enqueueReindex(ctx, touched)
	s.logger.Info("price list activated", zap.String("price_list_id", priceListID.String()), zap.Int("products", len(touched)))
	return nil
}

func checkWarehouse(ctx context.Context, r repositories.Repositories, warehouseID uuid.UUID) error {
	wh, err := r.Warehouses.GetByID(ctx, warehouseID)
	if err != nil {
		return err
	}
	if wh.IsOwned {
		return ErrOwnedWarehouse
	}
	return nil
}

// itemActivator applies the per-item and per-size activation steps for one
// price list inside an open transaction.
type itemActivator struct {
	repos     repositories.Repositories
	rates     RateProvider
	priceList *models.PriceList
	channels  []*models.Channel
	now       time.Time
	rateCache map[[2]string]decimal.Decimal
}

func (s *lifecycleService) newActivator(ctx context.Context, r repositories.Repositories, pl *models.PriceList) (*itemActivator, error) {
	channels, err := r.PriceLists.Channels(ctx, pl.ID)
	if err != nil {
		return nil, err
	}
	return &itemActivator{
		repos:     r,
		rates:     s.rates,
		priceList: pl,
		channels:  channels,
		now:       s.now(),
		rateCache: make(map[[2]string]decimal.Decimal),
	}, nil
}

// resolve links every unresolved item to an existing product, creating the
// rest. All category mappings are checked before any product is created.
func (a *itemActivator) resolve(ctx context.Context, items []*models.PriceListItem) error {
	var (
		pending []*models.PriceListItem
		keys    []models.ProductKey
	)
	for _, item := range items {
		if item.ProductID == nil {
			pending = append(pending, item)
			keys = append(keys, item.Key())
		}
	}
	if len(pending) == 0 {
		return nil
	}

	found, err := a.repos.Catalog.FindProducts(ctx, keys)
	if err != nil {
		return err
	}

	var (
		create []*models.PriceListItem
		names  []string
	)
	seenName := make(map[string]struct{})
	for _, item := range pending {
		if _, ok := found[item.Key()]; ok {
			continue
		}
		create = append(create, item)
		if _, ok := seenName[item.Category]; !ok {
			seenName[item.Category] = struct{}{}
			names = append(names, item.Category)
		}
	}

	mappings, err := a.repos.Catalog.CategoryMappings(ctx, names)
	if err != nil {
		return err
	}
	for _, item := range create {
		if _, ok := mappings[item.Category]; !ok {
			return &MissingCategoryError{Category: item.Category}
		}
	}

	for _, item := range create {
		if _, ok := found[item.Key()]; ok {
			continue
		}
		product, err := a.repos.Catalog.CreateProduct(ctx, item.ProductData(), mappings[item.Category])
		if err != nil {
			return err
		}
		found[item.Key()] = product.ID
	}

	links := make(map[uuid.UUID]uuid.UUID, len(pending))
	for _, item := range pending {
		id := found[item.Key()]
		item.ProductID = &id
		links[item.ID] = id
	}
	return a.repos.PriceLists.SetItemProducts(ctx, links)
}

func (a *itemActivator) activateItem(ctx context.Context, item *models.PriceListItem) error {
	if item.ProductID == nil {
		return nil
	}
	if err := a.ensureProductListings(ctx, *item.ProductID); err != nil {
		return err
	}
	for _, sq := range item.SizesAndQty {
		if err := a.activateSize(ctx, item, sq.Size, sq.Qty); err != nil {
			return err
		}
	}
	return nil
}

func (a *itemActivator) ensureProductListings(ctx context.Context, productID uuid.UUID) error {
	for _, ch := range a.channels {
		availableAt := a.now
		err := a.repos.Catalog.EnsureProductChannelListing(ctx, &models.ProductChannelListing{
			ProductID:              productID,
			ChannelID:              ch.ID,
			Currency:               ch.CurrencyCode,
			IsPublished:            true,
			VisibleInListings:      false,
			AvailableForPurchaseAt: &availableAt,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// activateSize finds or creates the variant, adds qty to its stock and prices
// it on every channel.
func (a *itemActivator) activateSize(ctx context.Context, item *models.PriceListItem, size string, qty int) error {
	variant, err := a.repos.Catalog.GetOrCreateVariant(ctx, *item.ProductID, size, item.WeightKg)
	if err != nil {
		return err
	}
	if err := a.repos.Stock.Increment(ctx, a.priceList.WarehouseID, variant.ID, qty); err != nil {
		return err
	}
	return a.ensureVariantListings(ctx, variant, item)
}

func (a *itemActivator) ensureVariantListings(ctx context.Context, variant *models.ProductVariant, item *models.PriceListItem) error {
	price := decimal.Zero
	if item.SellPrice != nil {
		price = *item.SellPrice
	}
	for _, ch := range a.channels {
		rate, err := a.rate(ctx, item.Currency, ch.CurrencyCode)
		if err != nil {
			return err
		}
		_, err = a.repos.Catalog.EnsureVariantChannelListing(ctx, &models.VariantChannelListing{
			VariantID:   variant.ID,
			ChannelID:   ch.ID,
			Currency:    ch.CurrencyCode,
			PriceAmount: price.Mul(rate).Round(2),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *itemActivator) rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	if from == to || from == "" || to == "" {
		return decimal.NewFromInt(1), nil
	}
	key := [2]string{from, to}
	if r, ok := a.rateCache[key]; ok {
		return r, nil
	}
	if a.rates == nil {
		return decimal.Zero, errors.New("no exchange rate provider configured")
	}
	r, err := a.rates.Rate(ctx, from, to)
	if err != nil {
		return decimal.Zero, fmt.Errorf("exchange rate %s->%s: %w", from, to, err)
	}
	a.rateCache[key] = r
	return r, nil
}

// productIDs returns the distinct resolved product ids of items in ascending order.
func productIDs(items []*models.PriceListItem) []uuid.UUID {
	set := make(map[uuid.UUID]struct{}, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			set[*item.ProductID] = struct{}{}
		}
	}
	return sortedIDs(set)
}
