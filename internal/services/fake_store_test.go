package services

import (
	"bytes"
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"time"

	"supplierstock/internal/models"
	"supplierstock/internal/parsing"
	"supplierstock/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// memAllocation is an allocation together with the status of its order.
type memAllocation struct {
	models.Allocation
	OrderID uuid.UUID
}

type listingKey struct {
	owner   uuid.UUID
	channel uuid.UUID
}

type memState struct {
	priceLists      map[uuid.UUID]models.PriceList
	plChannels      map[uuid.UUID][]uuid.UUID
	items           map[uuid.UUID][]models.PriceListItem
	warehouses      map[uuid.UUID]models.Warehouse
	channels        map[uuid.UUID]models.Channel
	categories      map[string]models.CategoryMapping
	products        map[uuid.UUID]models.Product
	variants        map[uuid.UUID]models.ProductVariant
	stocks          map[uuid.UUID]models.Stock
	orders          map[uuid.UUID]string
	allocations     map[uuid.UUID]memAllocation
	productListings map[listingKey]models.ProductChannelListing
	variantListings map[listingKey]models.VariantChannelListing
	dirty           map[uuid.UUID]bool
}

func newMemState() *memState {
	return &memState{
		priceLists:      map[uuid.UUID]models.PriceList{},
		plChannels:      map[uuid.UUID][]uuid.UUID{},
		items:           map[uuid.UUID][]models.PriceListItem{},
		warehouses:      map[uuid.UUID]models.Warehouse{},
		channels:        map[uuid.UUID]models.Channel{},
		categories:      map[string]models.CategoryMapping{},
		products:        map[uuid.UUID]models.Product{},
		variants:        map[uuid.UUID]models.ProductVariant{},
		stocks:          map[uuid.UUID]models.Stock{},
		orders:          map[uuid.UUID]string{},
		allocations:     map[uuid.UUID]memAllocation{},
		productListings: map[listingKey]models.ProductChannelListing{},
		variantListings: map[listingKey]models.VariantChannelListing{},
		dirty:           map[uuid.UUID]bool{},
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		priceLists:      maps.Clone(s.priceLists),
		plChannels:      maps.Clone(s.plChannels),
		items:           make(map[uuid.UUID][]models.PriceListItem, len(s.items)),
		warehouses:      maps.Clone(s.warehouses),
		channels:        maps.Clone(s.channels),
		categories:      maps.Clone(s.categories),
		products:        maps.Clone(s.products),
		variants:        maps.Clone(s.variants),
		stocks:          maps.Clone(s.stocks),
		orders:          maps.Clone(s.orders),
		allocations:     maps.Clone(s.allocations),
		productListings: maps.Clone(s.productListings),
		variantListings: maps.Clone(s.variantListings),
		dirty:           maps.Clone(s.dirty),
	}
	for k, v := range s.items {
		c.items[k] = slices.Clone(v)
	}
	return c
}

// memStore is an in-memory repositories.Store. WithTx restores the state
// snapshot taken at its start when fn fails.
type memStore struct {
	state *memState
	fail  map[string]error
	txs   int
}

func newMemStore() *memStore {
	return &memStore{state: newMemState(), fail: map[string]error{}}
}

func (m *memStore) Repos() repositories.Repositories {
	return repositories.Repositories{
		PriceLists: &memPriceLists{m},
		Warehouses: &memWarehouses{m},
		Stock:      &memStock{m},
		Catalog:    &memCatalog{m},
	}
}

func (m *memStore) WithTx(ctx context.Context, fn func(repositories.Repositories) error) error {
	m.txs++
	snapshot := m.state.clone()
	if err := fn(m.Repos()); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) failure(op string) error {
	return m.fail[op]
}

// Seeding and inspection helpers.

func (m *memStore) addWarehouse(owned bool) uuid.UUID {
	id := uuid.New()
	m.state.warehouses[id] = models.Warehouse{ID: id, Name: "wh-" + id.String()[:4], IsOwned: owned}
	return id
}

func (m *memStore) addChannel(slug, currency string) uuid.UUID {
	id := uuid.New()
	m.state.channels[id] = models.Channel{ID: id, Name: slug, Slug: slug, CurrencyCode: currency}
	return id
}

func (m *memStore) addCategory(name string) {
	m.state.categories[name] = models.CategoryMapping{Name: name, CategoryID: uuid.New(), ProductTypeID: uuid.New()}
}

func (m *memStore) addProduct(code, brand string) uuid.UUID {
	id := uuid.New()
	m.state.products[id] = models.Product{ID: id, Name: code, ProductCode: code, Brand: brand}
	return id
}

func (m *memStore) addPriceList(pl models.PriceList, channelIDs ...uuid.UUID) {
	if pl.ID == uuid.Nil {
		pl.ID = uuid.New()
	}
	m.state.priceLists[pl.ID] = pl
	m.state.plChannels[pl.ID] = channelIDs
}

func (m *memStore) setItems(priceListID uuid.UUID, items ...models.PriceListItem) {
	for i := range items {
		items[i].PriceListID = priceListID
		if items[i].ID == uuid.Nil {
			items[i].ID = uuid.New()
		}
	}
	m.state.items[priceListID] = items
}

// addOrderAllocation allocates qty of the variant's stock at warehouse to a new
// order with the given status.
func (m *memStore) addOrderAllocation(warehouseID, variantID uuid.UUID, status string, qty int) uuid.UUID {
	orderID := uuid.New()
	m.state.orders[orderID] = status
	st := m.stockFor(warehouseID, variantID)
	st.QuantityAllocated += qty
	m.state.stocks[st.ID] = *st
	id := uuid.New()
	m.state.allocations[id] = memAllocation{
		Allocation: models.Allocation{ID: id, OrderLineID: uuid.New(), StockID: st.ID, QuantityAllocated: qty},
		OrderID:    orderID,
	}
	return id
}

func (m *memStore) addVariantStock(warehouseID, productID uuid.UUID, size string, qty int) uuid.UUID {
	v, _ := (&memCatalog{m}).GetOrCreateVariant(context.Background(), productID, size, nil)
	st := m.stockFor(warehouseID, v.ID)
	st.Quantity = qty
	m.state.stocks[st.ID] = *st
	return v.ID
}

func (m *memStore) stockFor(warehouseID, variantID uuid.UUID) *models.Stock {
	for _, st := range m.state.stocks {
		if st.WarehouseID == warehouseID && st.ProductVariantID == variantID {
			c := st
			return &c
		}
	}
	return &models.Stock{ID: uuid.New(), WarehouseID: warehouseID, ProductVariantID: variantID}
}

func (m *memStore) variantID(productID uuid.UUID, size string) (uuid.UUID, bool) {
	for _, v := range m.state.variants {
		if v.ProductID == productID && v.Name == size {
			return v.ID, true
		}
	}
	return uuid.Nil, false
}

// stock returns (quantity, allocated) for a product size at the warehouse.
func (m *memStore) stock(warehouseID, productID uuid.UUID, size string) (int, int) {
	vid, ok := m.variantID(productID, size)
	if !ok {
		return -1, -1
	}
	for _, st := range m.state.stocks {
		if st.WarehouseID == warehouseID && st.ProductVariantID == vid {
			return st.Quantity, st.QuantityAllocated
		}
	}
	return -1, -1
}

func (m *memStore) productByKey(code, brand string) (uuid.UUID, bool) {
	for _, p := range m.state.products {
		if p.ProductCode == code && p.Brand == brand {
			return p.ID, true
		}
	}
	return uuid.Nil, false
}

func (m *memStore) priceList(id uuid.UUID) models.PriceList {
	return m.state.priceLists[id]
}

func (m *memStore) itemsOf(id uuid.UUID) []models.PriceListItem {
	return m.state.items[id]
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	return slices.Contains(ids, id)
}

// memPriceLists implements repositories.PriceListRepository.
type memPriceLists struct{ m *memStore }

func (r *memPriceLists) Create(ctx context.Context, pl *models.PriceList) error {
	if err := r.m.failure("PriceLists.Create"); err != nil {
		return err
	}
	r.m.addPriceList(*pl, pl.ChannelIDs...)
	return nil
}

func (r *memPriceLists) GetByID(ctx context.Context, id uuid.UUID) (*models.PriceList, error) {
	pl, ok := r.m.state.priceLists[id]
	if !ok {
		return nil, fmt.Errorf("get price list %s: %w", id, repositories.ErrNotFound)
	}
	return &pl, nil
}

func (r *memPriceLists) List(ctx context.Context, warehouseID *uuid.UUID, limit, offset int) ([]*models.PriceList, error) {
	var out []*models.PriceList
	for _, pl := range r.m.state.priceLists {
		if warehouseID == nil || pl.WarehouseID == *warehouseID {
			c := pl
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memPriceLists) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := r.m.state.priceLists[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.m.state.priceLists, id)
	delete(r.m.state.items, id)
	delete(r.m.state.plChannels, id)
	return nil
}

func (r *memPriceLists) LockByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.PriceList, error) {
	sorted := slices.Clone(ids)
	sortIDs(sorted)
	var out []*models.PriceList
	for _, id := range sorted {
		if pl, ok := r.m.state.priceLists[id]; ok {
			c := pl
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memPriceLists) FindActiveID(ctx context.Context, warehouseID, excludeID uuid.UUID) (uuid.UUID, bool, error) {
	for _, pl := range r.m.state.priceLists {
		if pl.WarehouseID == warehouseID && pl.ID != excludeID && pl.IsActive() {
			return pl.ID, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (r *memPriceLists) AcquireLease(ctx context.Context, id uuid.UUID) (bool, error) {
	pl, ok := r.m.state.priceLists[id]
	if !ok || pl.IsProcessing {
		return false, nil
	}
	pl.IsProcessing = true
	r.m.state.priceLists[id] = pl
	return true, nil
}

func (r *memPriceLists) ReleaseLease(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, func(pl *models.PriceList) { pl.IsProcessing = false })
}

func (r *memPriceLists) MarkProcessingStarted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(pl *models.PriceList) { pl.AttemptedProcessingAt = &at })
}

func (r *memPriceLists) MarkProcessingCompleted(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(pl *models.PriceList) {
		pl.ProcessingCompletedAt = &at
		pl.ProcessingFailedAt = nil
	})
}

func (r *memPriceLists) MarkProcessingFailed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(pl *models.PriceList) {
		pl.ProcessingCompletedAt = nil
		pl.ProcessingFailedAt = &at
	})
}

func (r *memPriceLists) MarkActive(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.mutate(id, func(pl *models.PriceList) {
		pl.Status = models.PriceListStatusActive
		pl.ActivatedAt = &at
		pl.DeactivatedAt = nil
	})
}

func (r *memPriceLists) MarkInactive(ctx context.Context, id uuid.UUID, at time.Time, replacedBy *uuid.UUID) error {
	return r.mutate(id, func(pl *models.PriceList) {
		pl.Status = models.PriceListStatusInactive
		pl.DeactivatedAt = &at
		if replacedBy != nil {
			next := *replacedBy
			pl.ReplacedByID = &next
		}
	})
}

func (r *memPriceLists) mutate(id uuid.UUID, fn func(*models.PriceList)) error {
	pl, ok := r.m.state.priceLists[id]
	if !ok {
		return repositories.ErrNotFound
	}
	fn(&pl)
	r.m.state.priceLists[id] = pl
	return nil
}

func (r *memPriceLists) Channels(ctx context.Context, id uuid.UUID) ([]*models.Channel, error) {
	var out []*models.Channel
	for _, chID := range r.m.state.plChannels[id] {
		if ch, ok := r.m.state.channels[chID]; ok {
			c := ch
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memPriceLists) ReplaceItems(ctx context.Context, id uuid.UUID, items []*models.PriceListItem) error {
	stored := make([]models.PriceListItem, 0, len(items))
	for _, item := range items {
		if item.SizesAndQty == nil {
			return fmt.Errorf("insert item row %d: null value in column \"sizes_and_qty\"", item.RowIndex)
		}
		stored = append(stored, *item)
	}
	r.m.state.items[id] = stored
	if err := r.m.failure("PriceLists.ReplaceItems"); err != nil {
		return err
	}
	return nil
}

func (r *memPriceLists) Items(ctx context.Context, id uuid.UUID, filter models.ItemFilter) ([]*models.PriceListItem, error) {
	var out []*models.PriceListItem
	for _, item := range r.m.state.items[id] {
		if filter.IsValid != nil && item.IsValid != *filter.IsValid {
			continue
		}
		c := item
		out = append(out, &c)
	}
	return out, nil
}

func (r *memPriceLists) SetItemProducts(ctx context.Context, links map[uuid.UUID]uuid.UUID) error {
	for plID, items := range r.m.state.items {
		for i := range items {
			if productID, ok := links[items[i].ID]; ok {
				p := productID
				items[i].ProductID = &p
			}
		}
		r.m.state.items[plID] = items
	}
	return nil
}

type memWarehouses struct{ m *memStore }

func (r *memWarehouses) GetByID(ctx context.Context, id uuid.UUID) (*models.Warehouse, error) {
	wh, ok := r.m.state.warehouses[id]
	if !ok {
		return nil, fmt.Errorf("get warehouse %s: %w", id, repositories.ErrNotFound)
	}
	return &wh, nil
}

// memStock implements repositories.StockRepository.
type memStock struct{ m *memStore }

func (r *memStock) Increment(ctx context.Context, warehouseID, variantID uuid.UUID, qty int) error {
	if err := r.m.failure("Stock.Increment"); err != nil {
		return err
	}
	st := r.m.stockFor(warehouseID, variantID)
	st.Quantity += qty
	r.m.state.stocks[st.ID] = *st
	return nil
}

func (r *memStock) ResetToAtLeastAllocated(ctx context.Context, warehouseID, variantID uuid.UUID, qty int) error {
	st := r.m.stockFor(warehouseID, variantID)
	st.Quantity = max(st.QuantityAllocated, qty)
	r.m.state.stocks[st.ID] = *st
	return nil
}

func (r *memStock) matches(st models.Stock, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) bool {
	if st.WarehouseID != warehouseID {
		return false
	}
	v, ok := r.m.state.variants[st.ProductVariantID]
	if !ok || !containsID(productIDs, v.ProductID) {
		return false
	}
	return sizes == nil || slices.Contains(sizes, v.Name)
}

func (r *memStock) ZeroToAllocated(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) error {
	for id, st := range r.m.state.stocks {
		if r.matches(st, warehouseID, productIDs, sizes) {
			st.Quantity = max(0, st.QuantityAllocated)
			r.m.state.stocks[id] = st
		}
	}
	return nil
}

func (r *memStock) releasable(warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) []memAllocation {
	var out []memAllocation
	for _, a := range r.m.state.allocations {
		st, ok := r.m.state.stocks[a.StockID]
		if !ok || !r.matches(st, warehouseID, productIDs, sizes) {
			continue
		}
		if !slices.Contains(models.ReleasableOrderStatuses, r.m.state.orders[a.OrderID]) || a.QuantityAllocated <= 0 {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].StockID[:], out[j].StockID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out
}

func (r *memStock) LockReleasableAllocations(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) ([]*models.Allocation, error) {
	var out []*models.Allocation
	for _, a := range r.releasable(warehouseID, productIDs, sizes) {
		c := a.Allocation
		out = append(out, &c)
	}
	return out, nil
}

func (r *memStock) DecrementAllocated(ctx context.Context, stockID uuid.UUID, delta int) error {
	st := r.m.state.stocks[stockID]
	st.QuantityAllocated = max(0, st.QuantityAllocated-delta)
	r.m.state.stocks[stockID] = st
	return nil
}

func (r *memStock) DeleteAllocations(ctx context.Context, ids []uuid.UUID) error {
	for _, id := range ids {
		delete(r.m.state.allocations, id)
	}
	return nil
}

func (r *memStock) ReleasableOrderIDs(ctx context.Context, warehouseID uuid.UUID, productIDs []uuid.UUID, sizes []string) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for _, a := range r.releasable(warehouseID, productIDs, sizes) {
		if _, ok := seen[a.OrderID]; !ok {
			seen[a.OrderID] = struct{}{}
			out = append(out, a.OrderID)
		}
	}
	return out, nil
}

func (r *memStock) TotalQuantities(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	totals := map[uuid.UUID]int{}
	for _, st := range r.m.state.stocks {
		v := r.m.state.variants[st.ProductVariantID]
		if containsID(productIDs, v.ProductID) {
			totals[v.ProductID] += st.Quantity
		}
	}
	return totals, nil
}

// memCatalog implements repositories.CatalogRepository.
type memCatalog struct{ m *memStore }

func (r *memCatalog) FindProducts(ctx context.Context, keys []models.ProductKey) (map[models.ProductKey]uuid.UUID, error) {
	if err := r.m.failure("Catalog.FindProducts"); err != nil {
		return nil, err
	}
	found := map[models.ProductKey]uuid.UUID{}
	for _, k := range keys {
		if id, ok := r.m.productByKey(k.Code, k.Brand); ok {
			found[k] = id
		}
	}
	return found, nil
}

func (r *memCatalog) CategoryNames(ctx context.Context) ([]string, error) {
	names := slices.Collect(maps.Keys(r.m.state.categories))
	sort.Strings(names)
	return names, nil
}

func (r *memCatalog) CategoryMappings(ctx context.Context, names []string) (map[string]models.CategoryMapping, error) {
	out := map[string]models.CategoryMapping{}
	for _, n := range names {
		if m, ok := r.m.state.categories[n]; ok {
			out[n] = m
		}
	}
	return out, nil
}

func (r *memCatalog) CreateProduct(ctx context.Context, data models.ProductData, mapping models.CategoryMapping) (*models.Product, error) {
	p := models.Product{
		ID:            uuid.New(),
		Name:          data.ProductCode,
		ProductCode:   data.ProductCode,
		Brand:         data.Brand,
		Description:   data.Description,
		CategoryID:    mapping.CategoryID,
		ProductTypeID: mapping.ProductTypeID,
	}
	r.m.state.products[p.ID] = p
	r.m.state.dirty[p.ID] = true
	return &p, nil
}

func (r *memCatalog) GetOrCreateVariant(ctx context.Context, productID uuid.UUID, size string, weightKg *decimal.Decimal) (*models.ProductVariant, error) {
	if id, ok := r.m.variantID(productID, size); ok {
		v := r.m.state.variants[id]
		return &v, nil
	}
	v := models.ProductVariant{ID: uuid.New(), ProductID: productID, Name: size, SKU: fmt.Sprintf("pl-%s-%s", productID, size), WeightKg: weightKg}
	r.m.state.variants[v.ID] = v
	return &v, nil
}

func (r *memCatalog) FindVariant(ctx context.Context, productID uuid.UUID, size string) (*models.ProductVariant, error) {
	id, ok := r.m.variantID(productID, size)
	if !ok {
		return nil, fmt.Errorf("find variant %s of %s: %w", size, productID, repositories.ErrNotFound)
	}
	v := r.m.state.variants[id]
	return &v, nil
}

func (r *memCatalog) EnsureProductChannelListing(ctx context.Context, l *models.ProductChannelListing) error {
	key := listingKey{l.ProductID, l.ChannelID}
	if _, ok := r.m.state.productListings[key]; !ok {
		r.m.state.productListings[key] = *l
	}
	return nil
}

func (r *memCatalog) EnsureVariantChannelListing(ctx context.Context, l *models.VariantChannelListing) (bool, error) {
	key := listingKey{l.VariantID, l.ChannelID}
	if _, ok := r.m.state.variantListings[key]; ok {
		return false, nil
	}
	r.m.state.variantListings[key] = *l
	return true, nil
}

func (r *memCatalog) UnpublishProducts(ctx context.Context, productIDs []uuid.UUID) error {
	for key, l := range r.m.state.productListings {
		if containsID(productIDs, key.owner) {
			l.IsPublished = false
			l.VisibleInListings = false
			l.AvailableForPurchaseAt = nil
			r.m.state.productListings[key] = l
		}
	}
	return nil
}

func (r *memCatalog) ExistingChannelIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, id := range ids {
		if _, ok := r.m.state.channels[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memCatalog) MarkSearchDirty(ctx context.Context, productIDs []uuid.UUID) error {
	for _, id := range productIDs {
		r.m.state.dirty[id] = true
	}
	return nil
}

func (r *memCatalog) DirtyProductIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for id, dirty := range r.m.state.dirty {
		if dirty {
			out = append(out, id)
		}
	}
	sortIDs(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memCatalog) Reindex(ctx context.Context, productIDs []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range productIDs {
		if r.m.state.dirty[id] {
			r.m.state.dirty[id] = false
			n++
		}
	}
	return n, nil
}

// testItem builds a valid price list item parsed from a size string.
func testItem(code, brand, category, sizes, sellPrice string, productID *uuid.UUID) models.PriceListItem {
	sm, errs := parsing.ParseSizes(sizes)
	if len(errs) > 0 {
		panic(errs)
	}
	price := decimal.RequireFromString(sellPrice)
	return models.PriceListItem{
		ProductCode:      code,
		Brand:            brand,
		Category:         category,
		SizesAndQty:      sm,
		SellPrice:        &price,
		Currency:         "GBP",
		IsValid:          true,
		ValidationErrors: []string{},
		ProductID:        productID,
	}
}

func ptr[T any](v T) *T { return &v }
