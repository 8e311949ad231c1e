package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSheet_HeaderBelowBanner(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"گزارش موجودی کالا"},
		{"تاریخ: ۱۴۰۲/۰۵/۰۱"},
		{},
		{"ردیف", "کد کالا", "نام کالا", "", "موجودی", "قیمت"},
		{1, 102001, "لیوان", "x", 10, 12500},
		{},
		{2, "104002", "جارو", nil, "5", "3,000"},
		{"nan", "", "NULL", "", "", ""},
	})

	sheet, err := LoadSheet(bytes.NewReader(data), DefaultHeaderMarkers)
	require.NoError(t, err)

	assert.Equal(t, "Sheet1", sheet.Name)
	assert.Equal(t, 3, sheet.HeaderRow)
	assert.Equal(t, []string{"ردیف", "کد کالا", "نام کالا", "موجودی", "قیمت"}, sheet.Headers)

	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, 5, sheet.Rows[0].Number)
	assert.Equal(t, []string{"1", "102001", "لیوان", "10", "12500"}, sheet.Rows[0].Cells)
	assert.Equal(t, 7, sheet.Rows[1].Number)
	assert.Equal(t, []string{"2", "104002", "جارو", "5", "3,000"}, sheet.Rows[1].Cells)
}

func TestLoadSheet_FallsBackToFirstRow(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"SKU", "Name"},
		{"A1", "Cup"},
	})

	sheet, err := LoadSheet(bytes.NewReader(data), DefaultHeaderMarkers)
	require.NoError(t, err)

	assert.Equal(t, 0, sheet.HeaderRow)
	assert.Equal(t, []string{"SKU", "Name"}, sheet.Headers)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, 2, sheet.Rows[0].Number)
}

func TestLoadSheet_ShortRowsArePadded(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"کد کالا", "نام کالا", "قیمت"},
		{"1"},
	})

	sheet, err := LoadSheet(bytes.NewReader(data), DefaultHeaderMarkers)
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)
	assert.Equal(t, []string{"1", "", ""}, sheet.Rows[0].Cells)
}

func TestLoadSheet_Errors(t *testing.T) {
	t.Run("not a workbook", func(t *testing.T) {
		_, err := LoadSheet(strings.NewReader("this is not a spreadsheet"), DefaultHeaderMarkers)
		assert.ErrorIs(t, err, ErrUnreadableWorkbook)
	})

	t.Run("no rows", func(t *testing.T) {
		data := buildWorkbook(t, nil)
		_, err := LoadSheet(bytes.NewReader(data), DefaultHeaderMarkers)
		assert.ErrorIs(t, err, ErrEmptyWorkbook)
	})
}

func TestFindHeaderRow(t *testing.T) {
	rows := [][]string{
		{"گزارش"},
		{"كد كالا"},
		{"ردیف", "كد كالا", "نام كالا"},
	}

	t.Run("arabic letter forms match", func(t *testing.T) {
		assert.Equal(t, 1, FindHeaderRow(rows, []string{"کد کالا"}))
	})

	t.Run("every marker must be present", func(t *testing.T) {
		assert.Equal(t, 2, FindHeaderRow(rows, []string{"کد کالا", "نام"}))
	})

	t.Run("no match", func(t *testing.T) {
		assert.Equal(t, 0, FindHeaderRow(rows, []string{"بارکد"}))
	})

	t.Run("no markers", func(t *testing.T) {
		assert.Equal(t, 0, FindHeaderRow(rows, nil))
	})
}
