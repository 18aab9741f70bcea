package parsing

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeToken = regexp.MustCompile(`([^\[\],;\s]+)\s*\[(\d+)\]`)

// SizeQty is one size label and its quantity.
type SizeQty struct {
	Size string `json:"size"`
	Qty  int    `json:"qty"`
}

// SizeMap is an ordered size -> quantity mapping with unique labels.
type SizeMap []SizeQty

// Get returns the quantity recorded for size.
func (m SizeMap) Get(size string) (int, bool) {
	for _, sq := range m {
		if sq.Size == size {
			return sq.Qty, true
		}
	}
	return 0, false
}

// Labels returns the size labels in order.
func (m SizeMap) Labels() []string {
	labels := make([]string, len(m))
	for i, sq := range m {
		labels[i] = sq.Size
	}
	return labels
}

// Set updates size in place or appends it.
func (m SizeMap) Set(size string, qty int) SizeMap {
	for i := range m {
		if m[i].Size == size {
			m[i].Qty = qty
			return m
		}
	}
	return append(m, SizeQty{Size: size, Qty: qty})
}

// String renders the map as "S[10], M[5]".
func (m SizeMap) String() string {
	parts := make([]string, len(m))
	for i, sq := range m {
		parts[i] = fmt.Sprintf("%s[%d]", sq.Size, sq.Qty)
	}
	return strings.Join(parts, ", ")
}

// ParseSizes reads repeated label[qty] tokens separated by commas, spaces,
// semicolons or newlines.
func ParseSizes(cell Cell) (SizeMap, []string) {
	s := cellString(cell)
	if s == "" {
		return nil, []string{fmt.Sprintf("%s: required", FieldSizes)}
	}

	var sizes SizeMap
	for _, m := range sizeToken.FindAllStringSubmatch(s, -1) {
		qty, err := strconv.Atoi(m[2])
		if err != nil || qty > math.MaxInt32 {
			return nil, []string{fmt.Sprintf("sizes: quantity '%s' for size '%s' is out of range", m[2], m[1])}
		}
		sizes = sizes.Set(m[1], qty)
	}
	if len(sizes) == 0 {
		return nil, []string{fmt.Sprintf("sizes: no valid size[qty] patterns found in '%s', expected format like 'S[10], M[5]'", s)}
	}
	return sizes, nil
}
