package ingest

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"stockroute/internal/distribution"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrUnreadable        = errors.New("unable to read spreadsheet")
)

// UnknownOrder stands in for a missing external id in parse errors.
const UnknownOrder = "Unknown order"

// ParseError describes a row that was skipped.
type ParseError struct {
	Row        int    `json:"row"`
	ExternalID string `json:"externalId"`
	Message    string `json:"message"`
}

func (e ParseError) Error() string {
	return fmt.Sprintf("row %d (%s): %s", e.Row, e.ExternalID, e.Message)
}

// Result holds the valid lines of a file and the rows that were rejected.
type Result struct {
	Lines  []distribution.OrderLine `json:"lines"`
	Errors []ParseError             `json:"errors"`
}

// Parser turns spreadsheet rows into order lines.
type Parser struct {
	Now    func() time.Time
	Logger *log.Logger
}

func (p Parser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p Parser) logger() *log.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return log.Default()
}

// ParseFile parses path with a zero Parser.
func ParseFile(path string) (Result, error) {
	return Parser{}.ParseFile(path)
}

// ParseFile reads path, choosing the format from its extension.
func (p Parser) ParseFile(path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()
	return p.Parse(f, filepath.Ext(path))
}

// Parse reads a spreadsheet of the given extension (".csv" or ".xlsx").
func (p Parser) Parse(r io.Reader, ext string) (Result, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(ext) {
	case ".csv":
		rows, err = readCSV(r)
	case ".xlsx":
		rows, err = readXLSX(r)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	res := p.ParseRows(rows)
	p.logger().Printf("ingest: %d valid lines, %d rejected rows", len(res.Lines), len(res.Errors))
	return res, nil
}

// ParseRows validates rows whose first entry is the header. Row numbers in errors are
// sheet rows, so the first data row is 2. Blank rows are skipped.
func (p Parser) ParseRows(rows [][]string) Result {
	res := Result{Lines: []distribution.OrderLine{}, Errors: []ParseError{}}
	if len(rows) == 0 {
		return res
	}
	cols := mapHeader(rows[0])
	now := p.now()
	for i, raw := range rows[1:] {
		if blank(raw) {
			continue
		}
		row := record{cols: cols, cells: raw}
		rowNumber := i + 2

		externalID := row.get(colExternalID)
		sku := row.get(colSKU)
		name := row.get(colProductName)
		qtyRaw := row.get(colQuantity)
		if qtyRaw == "" {
			qtyRaw = "1"
		}

		var problems []string
		if sku == "" {
			problems = append(problems, "The product SKU is missing")
		}
		if name == "" {
			problems = append(problems, "The product name is missing")
		}
		qty, ok := parseQuantity(qtyRaw)
		if !ok || qty <= 0 {
			problems = append(problems, fmt.Sprintf("Quantity is not valid (%s)", qtyRaw))
		}
		if len(problems) > 0 {
			id := externalID
			if id == "" {
				id = UnknownOrder
			}
			res.Errors = append(res.Errors, ParseError{Row: rowNumber, ExternalID: id, Message: strings.Join(problems, ", ")})
			continue
		}

		res.Lines = append(res.Lines, distribution.OrderLine{
			ExternalOrderID:      externalID,
			OrderName:            row.get(colOrderName),
			CustomerName:         row.get(colCustomerName),
			ShippingAddress:      row.get(colShippingAddress),
			ShippingCity:         row.get(colShippingCity),
			ShippingPhone:        row.get(colShippingPhone),
			OrderDate:            ParseDate(row.get(colDate), now),
			SKU:                  sku,
			Barcode:              row.get(colBarcode),
			ProductName:          name,
			Quantity:             qty,
			AvailableLocationIDs: distribution.ParseStoreIDs(row.get(colInventory)),
			LocationCode:         row.get(colLocation),
		})
	}
	return res
}

func parseQuantity(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func blank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
