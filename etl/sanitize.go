package etl

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// invoiceDateLayouts covers the processed retail extract (M/D/YYYY H:MM
// without zero padding) plus the usual ISO forms.
var invoiceDateLayouts = []string{
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

func parseInvoiceDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range invoiceDateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// parseQuantity accepts integer or float spellings ("6", "6.0"); the
// extract round-trips quantities through a float column.
func parseQuantity(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

func parseCustomerID(s string) *int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return nil
	}
	id := int64(f)
	return &id
}

// BuildTransactionKey constructs the deterministic synthetic key used
// for dedup and fact identity.
func BuildTransactionKey(invoiceNo, stockCode string, rowNumber int) string {
	return invoiceNo + "_" + stockCode + "_" + strconv.Itoa(rowNumber)
}

// SanitizeRecords normalizes raw records into staged-transaction
// candidates. A record is dropped (and counted) when invoice no, stock
// code, invoice date, quantity or unit price fails to parse or is
// blank, or when the quantity is zero. Row ordinals and provenance are
// stamped later by the staging writer.
func SanitizeRecords(raw []RawRecord) (records []StagedTransaction, rejected int) {
	for _, r := range raw {
		invoiceNo := strings.TrimSpace(r.InvoiceNo)
		stockCode := strings.TrimSpace(r.StockCode)
		if invoiceNo == "" || stockCode == "" {
			rejected++
			continue
		}
		invoiceDate, ok := parseInvoiceDate(r.InvoiceDate)
		if !ok {
			rejected++
			continue
		}
		quantity, ok := parseQuantity(r.Quantity)
		if !ok || quantity == 0 {
			rejected++
			continue
		}
		unitPrice, err := decimal.NewFromString(strings.TrimSpace(r.UnitPrice))
		if err != nil {
			rejected++
			continue
		}

		customerID := parseCustomerID(r.CustomerID)
		records = append(records, StagedTransaction{
			InvoiceNo:          invoiceNo,
			StockCode:          stockCode,
			Description:        strings.TrimSpace(r.Description),
			Quantity:           quantity,
			InvoiceDate:        invoiceDate,
			UnitPrice:          unitPrice,
			CustomerID:         customerID,
			Country:            strings.TrimSpace(r.Country),
			TotalAmount:        unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
			IsReturn:           quantity < 0,
			HasMissingCustomer: customerID == nil,
		})
	}
	return records, rejected
}
