package ingest

import (
	"bytes"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func testParser() Parser {
	return Parser{
		Now:    func() time.Time { return fixedNow },
		Logger: log.New(io.Discard, "", 0),
	}
}

func TestParseRowsValidation(t *testing.T) {
	rows := [][]string{
		{"External ID", "SKU", "Product Name", "Quantity", "Inventory", "Location", "Date"},
		{"1001", "BOOT-1", "Boot", "2", "5, 23, 1", "A-3", "2025-01-15"},
		{"1002", "", "Bag", "1", "5", "", ""},
		{"", "HAT", "", "zero", "", "", ""},
		{"", "", "", "", "", "", ""},
		{"1004", "SOCK", "Sock", "", "", "", ""},
		{"1005", "BELT", "Belt", "-3", "", "", ""},
	}
	res := testParser().ParseRows(rows)

	require.Len(t, res.Lines, 2)
	first := res.Lines[0]
	assert.Equal(t, "1001", first.ExternalOrderID)
	assert.Equal(t, 2, first.Quantity)
	assert.Equal(t, []int{5, 23, 1}, first.AvailableLocationIDs)
	assert.Equal(t, "A-3", first.LocationCode)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), first.OrderDate)

	sock := res.Lines[1]
	assert.Equal(t, 1, sock.Quantity, "quantity defaults to one")
	assert.Nil(t, sock.AvailableLocationIDs)
	assert.Equal(t, fixedNow, sock.OrderDate)

	require.Len(t, res.Errors, 3)
	assert.Equal(t, ParseError{Row: 3, ExternalID: "1002", Message: "The product SKU is missing"}, res.Errors[0])
	assert.Equal(t, ParseError{Row: 4, ExternalID: UnknownOrder, Message: "The product name is missing, Quantity is not valid (zero)"}, res.Errors[1])
	assert.Equal(t, 7, res.Errors[2].Row, "blank rows keep their sheet position")
	assert.Equal(t, "Quantity is not valid (-3)", res.Errors[2].Message)
}

func TestParseRowsLowercaseHeaders(t *testing.T) {
	rows := [][]string{
		{"external_id", "sku", "product_name", "quantity", "customer_name", "shipping_city"},
		{"77", "S", "Shoe", "3", "Dana", "Haifa"},
	}
	res := testParser().ParseRows(rows)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, "77", res.Lines[0].ExternalOrderID)
	assert.Equal(t, 3, res.Lines[0].Quantity)
	assert.Equal(t, "Dana", res.Lines[0].CustomerName)
	assert.Equal(t, "Haifa", res.Lines[0].ShippingCity)
}

func TestParseRowsEmpty(t *testing.T) {
	res := testParser().ParseRows(nil)
	assert.Empty(t, res.Lines)
	assert.Empty(t, res.Errors)
	assert.NotNil(t, res.Lines)
}

func TestParseDate(t *testing.T) {
	fallback := fixedNow
	cases := []struct {
		in   string
		want time.Time
	}{
		{"", fallback},
		{"not a date", fallback},
		{"45658", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"45658.5", time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)},
		{"2025-02-03T10:00:00Z", time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)},
		{"2025-02-03 10:11:12", time.Date(2025, 2, 3, 10, 11, 12, 0, time.UTC)},
		{"02/03/2025", time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			assert.True(t, tc.want.Equal(ParseDate(tc.in, fallback)), "got %v", ParseDate(tc.in, fallback))
		})
	}
}

func TestParseCSV(t *testing.T) {
	data := "\ufeffExternal ID,SKU,Product Name,Quantity,Inventory\n" +
		"1001,BOOT,Boot,2,\"5, 6\"\n" +
		"1002,BAG,Bag,1,70\n"
	res, err := testParser().Parse(strings.NewReader(data), ".CSV")
	require.NoError(t, err)
	require.Len(t, res.Lines, 2)
	assert.Equal(t, []int{5, 6}, res.Lines[0].AvailableLocationIDs)
	assert.Equal(t, []int{70}, res.Lines[1].AvailableLocationIDs)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"External ID", "SKU", "Product Name", "Quantity", "Inventory", "Date"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"2001", "SNDL", "Sandal", 2, "7, 8", 45658}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"2002", "CAP", "", 1, "", ""}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "orders.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	res, err := testParser().ParseFile(path)
	require.NoError(t, err)
	require.Len(t, res.Lines, 1)
	line := res.Lines[0]
	assert.Equal(t, "2001", line.ExternalOrderID)
	assert.Equal(t, 2, line.Quantity)
	assert.Equal(t, []int{7, 8}, line.AvailableLocationIDs)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), line.OrderDate)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)
}

func TestParseRejectsUnknownFormats(t *testing.T) {
	_, err := testParser().Parse(bytes.NewReader(nil), ".xls")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = testParser().Parse(strings.NewReader("not a zip"), ".xlsx")
	assert.True(t, errors.Is(err, ErrUnreadable))
}
