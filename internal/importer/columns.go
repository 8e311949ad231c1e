package importer

import "strings"

// Canonical field keys
const (
	FieldSKU               = "sku"
	FieldName              = "name"
	FieldStock             = "stock_quantity"
	FieldSalePrice         = "sale_price"
	FieldLastPurchasePrice = "last_purchase_price"
	FieldPrice             = "price"
	FieldUnit              = "unit"
	FieldSerial            = "serial"
	FieldDescription       = "description"
)

// ColumnRule maps header fragments to a canonical field
type ColumnRule struct {
	Field     string
	Fragments []string
}

// DefaultColumnRules is evaluated top to bottom. Specific fragments come before
// generic ones: "قیمت فروش" (sale price) and "آخرین خرید" (last purchase)
// both sit ahead of bare "قیمت" (price).
var DefaultColumnRules = []ColumnRule{
	{Field: FieldSKU, Fragments: []string{"کد کالا", "کد"}},
	{Field: FieldName, Fragments: []string{"نام کالا", "نام"}},
	{Field: FieldStock, Fragments: []string{"موجودی", "انبار"}},
	{Field: FieldSalePrice, Fragments: []string{"قیمت فروش", "فروش"}},
	{Field: FieldLastPurchasePrice, Fragments: []string{"آخرین خرید"}},
	{Field: FieldPrice, Fragments: []string{"قیمت"}},
	{Field: FieldUnit, Fragments: []string{"واحد"}},
	{Field: FieldSerial, Fragments: []string{"سریال"}},
	{Field: FieldDescription, Fragments: []string{"توضیحات"}},
}

// ColumnMap maps canonical fields to column indexes of a Sheet
type ColumnMap map[string]int

// Has reports whether field was mapped
func (m ColumnMap) Has(field string) bool {
	_, ok := m[field]
	return ok
}

// Value returns the cell for field, or "" when the field is unmapped
func (m ColumnMap) Value(cells []string, field string) string {
	idx, ok := m[field]
	if !ok || idx >= len(cells) {
		return ""
	}
	if isBlank(cells[idx]) {
		return ""
	}
	return cells[idx]
}

// MapColumns assigns each header to the first rule with a fragment contained in
// it. The first column claiming a field keeps it; later claimants are ignored.
func MapColumns(headers []string, rules []ColumnRule) ColumnMap {
	type compiled struct {
		field     string
		fragments []string
	}
	compiledRules := make([]compiled, 0, len(rules))
	for _, rule := range rules {
		c := compiled{field: rule.Field}
		for _, f := range rule.Fragments {
			c.fragments = append(c.fragments, MatchKey(f))
		}
		compiledRules = append(compiledRules, c)
	}

	mapping := make(ColumnMap)
	for idx, header := range headers {
		key := MatchKey(header)
		if key == "" {
			continue
		}
	rules:
		for _, rule := range compiledRules {
			for _, frag := range rule.fragments {
				if frag != "" && strings.Contains(key, frag) {
					if !mapping.Has(rule.field) {
						mapping[rule.field] = idx
					}
					break rules
				}
			}
		}
	}
	return mapping
}
