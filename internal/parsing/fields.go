package parsing

import (
	"fmt"
	"math"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Cell is a raw spreadsheet value. nil marks an absent cell.
type Cell = any

// CategorySet is the permitted category allow-list. A nil set disables the check.
type CategorySet map[string]struct{}

// Field names a price list column.
type Field string

const (
	FieldProductCode Field = "product_code"
	FieldBrand       Field = "brand"
	FieldDescription Field = "description"
	FieldCategory    Field = "category"
	FieldSizes       Field = "sizes"
	FieldRRP         Field = "rrp"
	FieldSellPrice   Field = "sell_price"
	FieldBuyPrice    Field = "buy_price"
	FieldWeightKg    Field = "weight_kg"
	FieldImageURL    Field = "image_url"
	FieldHSCode      Field = "hs_code"
)

// ValidFields is the fixed set of fields a column map may target.
var ValidFields = map[Field]struct{}{
	FieldProductCode: {},
	FieldBrand:       {},
	FieldDescription: {},
	FieldCategory:    {},
	FieldSizes:       {},
	FieldRRP:         {},
	FieldSellPrice:   {},
	FieldBuyPrice:    {},
	FieldWeightKg:    {},
	FieldImageURL:    {},
	FieldHSCode:      {},
}

const maxWeightKg = 1000

// maxPrice is the exclusive upper bound of a NUMERIC(12, 2) price column.
var maxPrice = decimal.New(1, 10)

var (
	validImageExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {},
		".bmp": {}, ".tiff": {}, ".tif": {}, ".avif": {},
	}
	validImageMIMETypes = map[string]struct{}{
		"image/jpeg": {}, "image/png": {}, "image/gif": {}, "image/webp": {},
		"image/bmp": {}, "image/tiff": {}, "image/avif": {},
	}
	validHSCodeLengths = map[int]struct{}{6: {}, 8: {}, 10: {}}

	nonDigit = regexp.MustCompile(`\D`)
)

// Normalize maps blank strings and NaN floats to nil.
func Normalize(cell Cell) Cell {
	switch v := cell.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
	case float64:
		if math.IsNaN(v) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(v)) {
			return nil
		}
	}
	return cell
}

func cellString(cell Cell) string {
	switch v := Normalize(cell).(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case decimal.Decimal:
		return v.String()
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// ParseRequiredString returns the trimmed value or a "required" error.
func ParseRequiredString(cell Cell, field Field) (string, []string) {
	s := cellString(cell)
	if s == "" {
		return "", []string{fmt.Sprintf("%s: required", field)}
	}
	return s, nil
}

// ParseOptionalString returns the trimmed value, or "" when absent.
func ParseOptionalString(cell Cell) string {
	return cellString(cell)
}

// ParseProductCode lower-cases the code and rejects internal whitespace.
func ParseProductCode(cell Cell) (string, []string) {
	s, errs := ParseRequiredString(cell, FieldProductCode)
	if len(errs) > 0 {
		return "", errs
	}
	if strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return "", []string{"product_code: must not contain spaces"}
	}
	return strings.ToLower(s), nil
}

func ParseBrand(cell Cell) (string, []string) {
	s, errs := ParseRequiredString(cell, FieldBrand)
	if len(errs) > 0 {
		return "", errs
	}
	return strings.ToLower(s), nil
}

// ParseCategory checks a non-empty category against allowed unless allowed
// is nil. A blank category is accepted here and fails later if a product has
// to be created for the row.
func ParseCategory(cell Cell, allowed CategorySet) (string, []string) {
	s := ParseOptionalString(cell)
	if s == "" {
		return "", nil
	}
	if allowed != nil {
		if _, ok := allowed[s]; !ok {
			return s, []string{fmt.Sprintf("category: '%s' not found, it must exist as both a Category and a ProductType", s)}
		}
	}
	return s, nil
}

// ParseDecimal accepts ints, floats, decimals and numeric strings. Absent cells yield nil.
func ParseDecimal(cell Cell, field Field) (*decimal.Decimal, []string) {
	cell = Normalize(cell)
	var d decimal.Decimal
	switch v := cell.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		d = v
	case int:
		d = decimal.NewFromInt(int64(v))
	case int64:
		d = decimal.NewFromInt(v)
	case int32:
		d = decimal.NewFromInt(int64(v))
	case float64:
		if math.IsInf(v, 0) {
			return nil, []string{fmt.Sprintf("%s: cannot parse '%v' as a number", field, v)}
		}
		d = decimal.NewFromFloat(v)
	case float32:
		if math.IsInf(float64(v), 0) {
			return nil, []string{fmt.Sprintf("%s: cannot parse '%v' as a number", field, v)}
		}
		d = decimal.NewFromFloat32(v)
	default:
		raw := strings.TrimSpace(fmt.Sprint(v))
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, []string{fmt.Sprintf("%s: cannot parse '%s' as a number", field, raw)}
		}
		d = parsed
	}
	return &d, nil
}

// ParsePrice is ParseDecimal with a non-negative constraint.
func ParsePrice(cell Cell, field Field) (*decimal.Decimal, []string) {
	d, errs := ParseDecimal(cell, field)
	if len(errs) > 0 || d == nil {
		return d, errs
	}
	if d.IsNegative() {
		return nil, []string{fmt.Sprintf("%s: must not be negative", field)}
	}
	if d.Round(2).GreaterThanOrEqual(maxPrice) {
		return nil, []string{fmt.Sprintf("%s: %s must be less than %s", field, d.String(), maxPrice.String())}
	}
	return d, nil
}

func ParseSellPrice(cell Cell) (*decimal.Decimal, []string) {
	if Normalize(cell) == nil {
		return nil, []string{fmt.Sprintf("%s: required", FieldSellPrice)}
	}
	return ParsePrice(cell, FieldSellPrice)
}

// ParseWeight flags negative weights and anything above 1000 kg, which is
// almost always a value typed in grams.
func ParseWeight(cell Cell) (*decimal.Decimal, []string) {
	d, errs := ParseDecimal(cell, FieldWeightKg)
	if len(errs) > 0 || d == nil {
		return d, errs
	}
	if d.IsNegative() {
		return nil, []string{"weight_kg: must not be negative"}
	}
	if d.GreaterThan(decimal.NewFromInt(maxWeightKg)) {
		return nil, []string{fmt.Sprintf("weight_kg: %s exceeds %d kg, value may have been entered in grams", d.String(), maxWeightKg)}
	}
	return d, nil
}

// ParseImageURL accepts http(s) URLs with an image extension, or image data URIs.
func ParseImageURL(cell Cell) (string, []string) {
	s := cellString(cell)
	if s == "" {
		return "", nil
	}

	if strings.HasPrefix(strings.ToLower(s), "data:") {
		mime := strings.ToLower(s)[len("data:"):]
		if i := strings.IndexAny(mime, ";,"); i >= 0 {
			mime = mime[:i]
		}
		if _, ok := validImageMIMETypes[mime]; !ok {
			return "", []string{fmt.Sprintf("image_url: unsupported data URI type '%s', expected one of %s", mime, sortedKeys(validImageMIMETypes))}
		}
		return s, nil
	}

	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", []string{"image_url: must be an http or https URL"}
	}
	if u.Host == "" {
		return "", []string{"image_url: invalid URL, missing host"}
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if _, ok := validImageExtensions[ext]; !ok {
		shown := ext
		if shown == "" {
			shown = "(none)"
		}
		return "", []string{fmt.Sprintf("image_url: unsupported file type '%s', expected one of %s", shown, sortedKeys(validImageExtensions))}
	}
	return s, nil
}

// ParseHSCode strips separators and keeps 6, 8 or 10 digit codes.
func ParseHSCode(cell Cell) (string, []string) {
	s := cellString(cell)
	if s == "" {
		return "", nil
	}
	digits := nonDigit.ReplaceAllString(s, "")
	if _, ok := validHSCodeLengths[len(digits)]; !ok {
		return "", []string{fmt.Sprintf("hs_code: expected 6, 8, or 10 digits after removing separators (got %d), received '%s'", len(digits), s)}
	}
	return digits, nil
}

func sortedKeys(set map[string]struct{}) string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
