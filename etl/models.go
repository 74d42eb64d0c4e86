package etl

import (
	"time"

	"github.com/shopspring/decimal"
)

// StagedTransaction is one cleaned retail transaction line. Rows are
// immutable once written and are never deleted; TransactionKey is the
// synthetic dedup key INVOICE_STOCK_ROWNUM, unique for the lifetime of
// the warehouse.
type StagedTransaction struct {
	ID                 uint   `gorm:"primaryKey"`
	TransactionKey     string `gorm:"uniqueIndex;size:128"`
	InvoiceNo          string `gorm:"index;size:32"`
	StockCode          string `gorm:"index;size:32"`
	Description        string `gorm:"type:text"`
	Quantity           int
	InvoiceDate        time.Time       `gorm:"index"`
	UnitPrice          decimal.Decimal `gorm:"type:decimal(12,3)"`
	CustomerID         *int64          `gorm:"index"`
	Country            string          `gorm:"index;size:64"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(14,3)"`
	IsReturn           bool
	HasMissingCustomer bool
	RowNumberInFile    int       `gorm:"index"`
	LoadTimestamp      time.Time `gorm:"index"`
	FileName           string    `gorm:"size:128"`
	DataSource         string    `gorm:"index;size:64"`
}

// Product holds cumulative per-stock-code aggregates. Created on first
// observation, mutated only by the dimension merge.
type Product struct {
	StockCode         string `gorm:"primaryKey;size:32"`
	Description       string `gorm:"type:text"`
	TotalQuantitySold int64
	TotalRevenue      decimal.Decimal `gorm:"type:decimal(16,3)"`
	AverageUnitPrice  decimal.Decimal `gorm:"type:decimal(12,4)"`
	MinUnitPrice      decimal.Decimal `gorm:"type:decimal(12,3)"`
	MaxUnitPrice      decimal.Decimal `gorm:"type:decimal(12,3)"`
	FirstSaleDate     time.Time
	LastSaleDate      time.Time
	UniqueCustomers   int64
	UpdatedAt         time.Time `gorm:"index"`
}

// Customer segments, ordered by cumulative spend thresholds.
const (
	SegmentNew         = "NEW"
	SegmentLowValue    = "LOW_VALUE"
	SegmentMediumValue = "MEDIUM_VALUE"
	SegmentHighValue   = "HIGH_VALUE"
	SegmentVIP         = "VIP"
)

type Customer struct {
	CustomerID            int64  `gorm:"primaryKey"`
	Country               string `gorm:"size:64"`
	FirstPurchaseDate     time.Time
	LastPurchaseDate      time.Time
	TotalOrders           int64
	TotalItemsPurchased   int64
	TotalAmountSpent      decimal.Decimal `gorm:"type:decimal(16,3)"`
	AverageOrderValue     decimal.Decimal `gorm:"type:decimal(14,4)"`
	CustomerSegment       string          `gorm:"index;size:16"`
	DaysSinceLastPurchase int
	UpdatedAt             time.Time `gorm:"index"`
}

type Country struct {
	Name           string `gorm:"column:country;primaryKey;size:64"`
	TotalCustomers int64
	TotalOrders    int64
	TotalRevenue   decimal.Decimal `gorm:"type:decimal(16,3)"`
	FirstOrderDate time.Time
	LastOrderDate  time.Time
	UpdatedAt      time.Time `gorm:"index"`
}

// Transaction types derived from the sign of the quantity.
const (
	TransactionSale    = "SALE"
	TransactionReturn  = "RETURN"
	TransactionUnknown = "UNKNOWN"
)

// TransactionFact is the append-only fact row published per staged
// transaction. TransactionID repeats the staging synthetic key.
type TransactionFact struct {
	ID               uint   `gorm:"primaryKey"`
	TransactionID    string `gorm:"uniqueIndex;size:128"`
	InvoiceNo        string `gorm:"index;size:32"`
	StockCode        string `gorm:"index;size:32"`
	CustomerID       *int64 `gorm:"index"`
	Description      string `gorm:"type:text"`
	Quantity         int
	UnitPrice        decimal.Decimal `gorm:"type:decimal(12,3)"`
	TotalAmount      decimal.Decimal `gorm:"type:decimal(14,3)"`
	InvoiceDate      time.Time       `gorm:"index"`
	InvoiceYear      int             `gorm:"index"`
	InvoiceMonth     int             `gorm:"index"`
	InvoiceDayOfWeek int
	Country          string `gorm:"index;size:64"`
	TransactionType  string `gorm:"index;size:16"`
	IsGuestPurchase  bool
	SourceFile       string `gorm:"size:128"`
}

// Execution log states. RUNNING entries move to exactly one terminal
// state and are never reused by later attempts.
const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// ExecutionLogEntry records one batch attempt. A re-run of the same
// batch number creates a new entry rather than touching the old one.
type ExecutionLogEntry struct {
	ID               uint      `gorm:"primaryKey"`
	ExecutionID      string    `gorm:"index;size:36"`
	PipelineName     string    `gorm:"index;size:64"`
	PipelineVersion  string    `gorm:"size:16"`
	ExecutionType    string    `gorm:"index;size:32"`
	Status           string    `gorm:"index;size:16"`
	ExecutedBy       string    `gorm:"size:64"`
	StartTime        time.Time `gorm:"index"`
	EndTime          *time.Time
	RowsProcessed    int
	RowsInserted     int
	ErrorMessage     string `gorm:"type:text"`
	ExecutionContext string `gorm:"type:text"`
}
