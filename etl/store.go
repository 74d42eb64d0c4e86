package etl

import (
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func OpenDB(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(
		&StagedTransaction{},
		&Product{},
		&Customer{},
		&Country{},
		&TransactionFact{},
		&ExecutionLogEntry{},
	); err != nil {
		return nil, err
	}
	return db, nil
}

// OpenQueryDB opens an existing warehouse for read-only consumers (the
// API server, status reporting) without mutating the schema.
func OpenQueryDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{})
}

// Summary is the entity-count snapshot used for before/after reporting.
type Summary struct {
	Staging      int64 `json:"staging"`
	Transactions int64 `json:"transactions"`
	Products     int64 `json:"products"`
	Customers    int64 `json:"customers"`
	Countries    int64 `json:"countries"`
}

func CountSummary(db *gorm.DB) (Summary, error) {
	var s Summary
	counts := []struct {
		model any
		dst   *int64
	}{
		{&StagedTransaction{}, &s.Staging},
		{&TransactionFact{}, &s.Transactions},
		{&Product{}, &s.Products},
		{&Customer{}, &s.Customers},
		{&Country{}, &s.Countries},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return Summary{}, err
		}
	}
	return s, nil
}

// MaxStagedRowNumber returns the high-water mark: the largest source row
// ordinal already staged, 0 when the staging table is empty.
func MaxStagedRowNumber(db *gorm.DB) (int, error) {
	var last int
	err := db.Model(&StagedTransaction{}).
		Select("COALESCE(MAX(row_number_in_file), 0)").
		Scan(&last).Error
	if err != nil {
		return 0, err
	}
	return last, nil
}

// stagedKeySet loads every synthetic key ever staged, for dedup.
func stagedKeySet(db *gorm.DB) (map[string]struct{}, error) {
	var keys []string
	if err := db.Model(&StagedTransaction{}).Pluck("transaction_key", &keys).Error; err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}
