package etl

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// RawRecord is one unvalidated transaction line from the tabular
// extract. All fields are kept as strings until sanitization.
type RawRecord struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    string
	InvoiceDate string
	UnitPrice   string
	CustomerID  string
	Country     string
}

// RecordSource yields the ordered raw records whose source row ordinals
// fall inside [startRow, endRow]. A window past the end of the source
// returns a short (possibly empty) slice, not an error.
type RecordSource interface {
	ReadWindow(startRow, endRow int) ([]RawRecord, error)
}

// csvSource reads the processed online-retail CSV. Row ordinal 1 is the
// first data row after the header.
type csvSource struct {
	path string
}

func NewCSVSource(path string) RecordSource {
	return &csvSource{path: path}
}

func (s *csvSource) ReadWindow(startRow, endRow int) ([]RawRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open source csv: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := mapColumns(header)
	for _, name := range []string{"invoiceno", "stockcode", "quantity", "invoicedate", "unitprice"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("source csv missing column %q", name)
		}
	}

	var out []RawRecord
	rowNum := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			// Malformed physical line. It still occupies an ordinal so
			// later windows stay aligned with the file.
			rowNum++
			continue
		}
		rowNum++
		if rowNum < startRow {
			continue
		}
		if rowNum > endRow {
			return out, nil
		}
		out = append(out, RawRecord{
			InvoiceNo:   field(row, cols, "invoiceno"),
			StockCode:   field(row, cols, "stockcode"),
			Description: field(row, cols, "description"),
			Quantity:    field(row, cols, "quantity"),
			InvoiceDate: field(row, cols, "invoicedate"),
			UnitPrice:   field(row, cols, "unitprice"),
			CustomerID:  field(row, cols, "customerid"),
			Country:     field(row, cols, "country"),
		})
	}
}

// mapColumns resolves header names to indexes. Headers are matched
// case-insensitively with spaces, quotes and underscores stripped, so
// "Invoice No", "INVOICE_NO" and "InvoiceNo" all resolve the same way.
func mapColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		h = strings.ReplaceAll(h, `"`, "")
		h = strings.ReplaceAll(h, " ", "")
		h = strings.ReplaceAll(h, "_", "")
		cols[strings.ToLower(h)] = i
	}
	return cols
}

func field(row []string, cols map[string]int, name string) string {
	idx, ok := cols[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}
