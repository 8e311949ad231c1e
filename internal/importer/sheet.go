package importer

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultHeaderMarkers identifies the header row of accounting exports ("item code")
var DefaultHeaderMarkers = []string{"کد کالا"}

var (
	ErrUnreadableWorkbook = errors.New("workbook could not be read")
	ErrEmptyWorkbook      = errors.New("workbook contains no rows")
)

// SheetRow is one data row; Number is the 1-based row number in the sheet
type SheetRow struct {
	Number int
	Cells  []string
}

// Sheet is the rectangular table produced by LoadSheet. Cells of every row
// line up with Headers.
type Sheet struct {
	Name      string
	HeaderRow int // 0-based index of the header row in the sheet
	Headers   []string
	Rows      []SheetRow
}

// LoadSheet reads the first worksheet, locates the header row and returns the
// labelled columns and non-empty data rows below it.
func LoadSheet(r io.Reader, markers []string) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: no sheets found", ErrUnreadableWorkbook)
	}

	sheetName := sheets[0]
	rows, err := f.GetRows(sheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %v", ErrUnreadableWorkbook, sheetName, err)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyWorkbook
	}

	return buildSheet(sheetName, rows, markers), nil
}

func buildSheet(name string, rows [][]string, markers []string) *Sheet {
	headerIdx := FindHeaderRow(rows, markers)

	// Unlabelled columns are positional filler and carry no field
	var keep []int
	var headers []string
	for i, h := range rows[headerIdx] {
		h = CleanText(h)
		if h == "" {
			continue
		}
		keep = append(keep, i)
		headers = append(headers, h)
	}

	sheet := &Sheet{Name: name, HeaderRow: headerIdx, Headers: headers}
	for i := headerIdx + 1; i < len(rows); i++ {
		raw := rows[i]
		cells := make([]string, len(keep))
		blank := true
		for j, col := range keep {
			if col < len(raw) {
				cells[j] = strings.TrimSpace(raw[col])
			}
			if !isBlank(cells[j]) {
				blank = false
			}
		}
		if blank {
			continue
		}
		sheet.Rows = append(sheet.Rows, SheetRow{Number: i + 1, Cells: cells})
	}
	return sheet
}

// FindHeaderRow returns the index of the first row in which every marker is
// contained in some cell, or 0 when no row qualifies.
func FindHeaderRow(rows [][]string, markers []string) int {
	if len(markers) == 0 {
		return 0
	}
	keys := make([]string, 0, len(markers))
	for _, m := range markers {
		if k := MatchKey(m); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return 0
	}

	for i, row := range rows {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = MatchKey(cell)
		}
		if rowHasAll(cells, keys) {
			return i
		}
	}
	return 0
}

func rowHasAll(cells, keys []string) bool {
	for _, key := range keys {
		found := false
		for _, cell := range cells {
			if strings.Contains(cell, key) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// isBlank treats spreadsheet placeholders for missing values as empty
func isBlank(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "nan", "none", "null":
		return true
	}
	return false
}
