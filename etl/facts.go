package etl

import (
	"fmt"

	"gorm.io/gorm"
)

// TransactionTypeFor classifies a transaction by quantity sign.
func TransactionTypeFor(quantity int) string {
	switch {
	case quantity > 0:
		return TransactionSale
	case quantity < 0:
		return TransactionReturn
	default:
		return TransactionUnknown
	}
}

// publishFacts appends one immutable fact row per staged record that
// still satisfies the validity predicate. Duplicate synthetic keys are
// prevented upstream by staging-level dedup; the fact table's unique
// index is the backstop.
func publishFacts(db *gorm.DB, records []StagedTransaction) error {
	facts := make([]TransactionFact, 0, len(records))
	for _, rec := range records {
		if rec.InvoiceNo == "" || rec.StockCode == "" || rec.Quantity == 0 {
			continue
		}
		facts = append(facts, TransactionFact{
			TransactionID:    rec.TransactionKey,
			InvoiceNo:        rec.InvoiceNo,
			StockCode:        rec.StockCode,
			CustomerID:       rec.CustomerID,
			Description:      rec.Description,
			Quantity:         rec.Quantity,
			UnitPrice:        rec.UnitPrice,
			TotalAmount:      rec.TotalAmount,
			InvoiceDate:      rec.InvoiceDate,
			InvoiceYear:      rec.InvoiceDate.Year(),
			InvoiceMonth:     int(rec.InvoiceDate.Month()),
			InvoiceDayOfWeek: int(rec.InvoiceDate.Weekday()),
			Country:          rec.Country,
			TransactionType:  TransactionTypeFor(rec.Quantity),
			IsGuestPurchase:  rec.CustomerID == nil,
			SourceFile:       rec.FileName,
		})
	}
	if len(facts) == 0 {
		return nil
	}
	if err := db.Create(&facts).Error; err != nil {
		return fmt.Errorf("append transaction facts: %w", err)
	}
	return nil
}
