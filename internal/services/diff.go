package services

import (
	"bytes"
	"sort"

	"supplierstock/internal/models"

	"github.com/google/uuid"
)

// productDiff partitions the resolved products of an old and a new price list.
type productDiff struct {
	oldOnly  []uuid.UUID
	both     []uuid.UUID
	newOnly  []uuid.UUID
	oldItems map[uuid.UUID]*models.PriceListItem
	newItems map[uuid.UUID]*models.PriceListItem
}

func diffProducts(oldItems, newItems []*models.PriceListItem) productDiff {
	d := productDiff{oldItems: byProduct(oldItems), newItems: byProduct(newItems)}
	for id := range d.oldItems {
		if _, ok := d.newItems[id]; ok {
			d.both = append(d.both, id)
		} else {
			d.oldOnly = append(d.oldOnly, id)
		}
	}
	for id := range d.newItems {
		if _, ok := d.oldItems[id]; !ok {
			d.newOnly = append(d.newOnly, id)
		}
	}
	sortIDs(d.oldOnly)
	sortIDs(d.both)
	sortIDs(d.newOnly)
	return d
}

// sizeDiff splits a shared product's sizes into removed, common and added,
// each in the order the sizes appear in their snapshot.
func (d productDiff) sizeDiff(productID uuid.UUID) (removed, common, added []string) {
	oldSizes := d.oldItems[productID].SizesAndQty
	newSizes := d.newItems[productID].SizesAndQty
	for _, size := range oldSizes.Labels() {
		if _, ok := newSizes.Get(size); ok {
			common = append(common, size)
		} else {
			removed = append(removed, size)
		}
	}
	for _, size := range newSizes.Labels() {
		if _, ok := oldSizes.Get(size); !ok {
			added = append(added, size)
		}
	}
	return removed, common, added
}

func (d productDiff) touched() []uuid.UUID {
	set := make(map[uuid.UUID]struct{}, len(d.oldItems)+len(d.newItems))
	for id := range d.oldItems {
		set[id] = struct{}{}
	}
	for id := range d.newItems {
		set[id] = struct{}{}
	}
	return sortedIDs(set)
}

func byProduct(items []*models.PriceListItem) map[uuid.UUID]*models.PriceListItem {
	m := make(map[uuid.UUID]*models.PriceListItem, len(items))
	for _, item := range items {
		if item.ProductID != nil {
			m[*item.ProductID] = item
		}
	}
	return m
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}

func sortedIDs(set map[uuid.UUID]struct{}) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}
