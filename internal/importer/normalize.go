package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"catalog-import-service/internal/models"
	"github.com/shopspring/decimal"
)

// Record is a normalized, classified spreadsheet row ready for persistence
type Record struct {
	Row               int              `json:"row"`
	SKU               string           `json:"sku"`
	Name              string           `json:"name"`
	Price             decimal.Decimal  `json:"price"`
	SalePrice         *decimal.Decimal `json:"sale_price,omitempty"`
	LastPurchasePrice *decimal.Decimal `json:"last_purchase_price,omitempty"`
	StockQuantity     int              `json:"stock_quantity"`
	Unit              string           `json:"unit"`
	Description       *string          `json:"description,omitempty"`
	Serial            string           `json:"serial,omitempty"`
	Category          string           `json:"category"`
	ParentCategory    string           `json:"parent_category,omitempty"`
}

// NormalizeRows converts sheet rows into records. Rows without a SKU are
// skipped with a missing_sku error; bad prices and stock degrade to zero and
// are reported without skipping the row.
func NormalizeRows(sheet *Sheet, columns ColumnMap) ([]Record, []models.RowError) {
	var records []Record
	var rowErrors []models.RowError

	for _, row := range sheet.Rows {
		record, errs, ok := normalizeRow(row, columns)
		rowErrors = append(rowErrors, errs...)
		if ok {
			records = append(records, record)
		}
	}
	return records, rowErrors
}

func normalizeRow(row SheetRow, columns ColumnMap) (Record, []models.RowError, bool) {
	var errs []models.RowError
	name := CleanText(columns.Value(row.Cells, FieldName))

	sku := NormalizeSKU(columns.Value(row.Cells, FieldSKU))
	if sku == "" {
		errs = append(errs, newRowError(row.Number, "", name, models.ErrorKindMissingSKU, "item code is empty"))
		return Record{}, errs, false
	}
	if name == "" {
		name = "محصول " + sku
	}

	record := Record{Row: row.Number, SKU: sku, Name: name, Unit: models.DefaultUnit}

	rawPrice := columns.Value(row.Cells, FieldPrice)
	if columns.Has(FieldLastPurchasePrice) {
		if lp, err := ParsePrice(columns.Value(row.Cells, FieldLastPurchasePrice)); err == nil && lp.IsPositive() {
			record.LastPurchasePrice = &lp
		}
	}
	switch {
	case strings.TrimSpace(rawPrice) != "":
		price, err := ParsePrice(rawPrice)
		if err != nil {
			errs = append(errs, newRowError(row.Number, sku, name, models.ErrorKindPriceData,
				fmt.Sprintf("invalid price %q: %v", rawPrice, err)))
			price = decimal.Zero
		}
		record.Price = price
	case record.LastPurchasePrice != nil:
		record.Price = *record.LastPurchasePrice
	default:
		record.Price = decimal.Zero
	}

	if sale, err := ParsePrice(columns.Value(row.Cells, FieldSalePrice)); err == nil && sale.IsPositive() {
		record.SalePrice = &sale
	}

	rawStock := columns.Value(row.Cells, FieldStock)
	stock, err := ParseStock(rawStock)
	if err != nil {
		errs = append(errs, newRowError(row.Number, sku, name, models.ErrorKindStockData,
			fmt.Sprintf("invalid stock quantity %q: %v", rawStock, err)))
		stock = 0
	}
	record.StockQuantity = stock

	if unit := CleanText(columns.Value(row.Cells, FieldUnit)); unit != "" {
		record.Unit = unit
	}
	if desc := CleanText(columns.Value(row.Cells, FieldDescription)); desc != "" {
		record.Description = &desc
	}
	record.Serial = CleanText(columns.Value(row.Cells, FieldSerial))

	return record, errs, true
}

// NormalizeSKU trims the code, maps native digits to ASCII and drops the ".0"
// left behind by float-typed cells.
func NormalizeSKU(raw string) string {
	sku := CleanText(raw)
	if isBlank(sku) {
		return ""
	}
	if strings.HasSuffix(sku, ".0") {
		if _, err := strconv.ParseFloat(sku, 64); err == nil {
			sku = strings.TrimSuffix(sku, ".0")
		}
	}
	return sku
}

// ParsePrice parses a money cell. Blank input is zero. Anything that is not a
// digit or a decimal point is stripped when the cell does not parse as is, so
// "12,500 ریال" reads as 12500. Amounts are whole rials.
func ParsePrice(raw string) (decimal.Decimal, error) {
	s := CleanText(raw)
	if isBlank(s) {
		return decimal.Zero, nil
	}

	value, err := decimal.NewFromString(s)
	if err != nil {
		if strings.HasPrefix(s, "-") {
			return decimal.Zero, fmt.Errorf("negative amount")
		}
		cleaned := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' {
				return r
			}
			return -1
		}, s)
		if cleaned == "" {
			return decimal.Zero, fmt.Errorf("no digits in value")
		}
		value, err = decimal.NewFromString(cleaned)
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number")
		}
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative amount")
	}
	return value.Round(0), nil
}

// ParseStock parses a quantity cell, tolerating decimals and thousands
// separators, and truncates it to a whole count.
func ParseStock(raw string) (int, error) {
	s := strings.ReplaceAll(CleanText(raw), ",", "")
	if isBlank(s) {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a number")
	}
	if f < 0 {
		return 0, fmt.Errorf("negative quantity")
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("quantity out of range")
	}
	return int(math.Trunc(f)), nil
}

func newRowError(row int, sku, name, kind, message string) models.RowError {
	sku = truncateRunes(sku, models.MaxSKULength)
	name = truncateRunes(name, models.MaxProductNameLength)
	e := models.RowError{RowNumber: row, Kind: kind, Message: message}
	if sku != "" {
		e.SKU = &sku
	}
	if name != "" {
		e.ProductName = &name
	}
	return e
}

// truncateRunes cuts s to at most n characters
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
