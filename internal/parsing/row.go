package parsing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Row is one parsed spreadsheet row. Invalid rows carry every error found.
type Row struct {
	RowIndex    int
	ProductCode string
	Brand       string
	Description string
	Category    string
	Sizes       SizeMap
	RRP         *decimal.Decimal
	SellPrice   *decimal.Decimal
	BuyPrice    *decimal.Decimal
	WeightKg    *decimal.Decimal
	ImageURL    string
	HSCode      string
	Currency    string
	IsValid     bool
	Errors      []string
}

type collector struct {
	errs []string
}

func (c *collector) str(v string, errs []string) string {
	c.errs = append(c.errs, errs...)
	return v
}

func (c *collector) dec(v *decimal.Decimal, errs []string) *decimal.Decimal {
	c.errs = append(c.errs, errs...)
	return v
}

func (c *collector) sizes(v SizeMap, errs []string) SizeMap {
	c.errs = append(c.errs, errs...)
	return v
}

// ParseRow runs every field parser over cells and accumulates their errors.
func ParseRow(rowIndex int, cells map[Field]Cell, currency string, allowed CategorySet) Row {
	c := &collector{}
	row := Row{
		RowIndex:    rowIndex,
		ProductCode: c.str(ParseProductCode(cells[FieldProductCode])),
		Brand:       c.str(ParseBrand(cells[FieldBrand])),
		Category:    c.str(ParseCategory(cells[FieldCategory], allowed)),
		Sizes:       c.sizes(ParseSizes(cells[FieldSizes])),
		RRP:         c.dec(ParsePrice(cells[FieldRRP], FieldRRP)),
		SellPrice:   c.dec(ParseSellPrice(cells[FieldSellPrice])),
		BuyPrice:    c.dec(ParsePrice(cells[FieldBuyPrice], FieldBuyPrice)),
		WeightKg:    c.dec(ParseWeight(cells[FieldWeightKg])),
		ImageURL:    c.str(ParseImageURL(cells[FieldImageURL])),
		HSCode:      c.str(ParseHSCode(cells[FieldHSCode])),
		Description: ParseOptionalString(cells[FieldDescription]),
		Currency:    strings.ToUpper(strings.TrimSpace(currency)),
	}
	row.Errors = c.errs
	row.IsValid = len(c.errs) == 0
	return row
}

// Invalidate marks the row invalid with an extra error.
func (r *Row) Invalidate(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}
