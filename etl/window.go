package etl

import (
	"fmt"

	"gorm.io/gorm"
)

const DefaultBatchSize = 1000

// Window is the contiguous source row range assigned to one batch
// attempt. Ranges are inclusive on both ends and never overlap across
// successive batch numbers.
type Window struct {
	BatchNumber int `json:"batch_number"`
	StartRow    int `json:"start_row"`
	EndRow      int `json:"end_row"`
}

func (w Window) Size() int { return w.EndRow - w.StartRow + 1 }

func (w Window) String() string {
	return fmt.Sprintf("batch %d rows %d-%d", w.BatchNumber, w.StartRow, w.EndRow)
}

// WindowFor computes the row range for a batch number. Pure: the same
// inputs always produce the same window.
func WindowFor(batchNumber int, batchSize int) Window {
	return Window{
		BatchNumber: batchNumber,
		StartRow:    (batchNumber-1)*batchSize + 1,
		EndRow:      batchNumber * batchSize,
	}
}

// NextBatchNumber derives the next batch from the staging high-water
// mark. An empty staging table yields batch 1.
func NextBatchNumber(db *gorm.DB, batchSize int) (int, error) {
	last, err := MaxStagedRowNumber(db)
	if err != nil {
		return 0, err
	}
	return last/batchSize + 1, nil
}

// ResolveWindow turns an explicit batch number (>0) or an auto request
// (<=0) into a concrete window. Read-only.
func ResolveWindow(db *gorm.DB, batchNumber int, batchSize int) (Window, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchNumber <= 0 {
		n, err := NextBatchNumber(db, batchSize)
		if err != nil {
			return Window{}, fmt.Errorf("resolve next batch: %w", err)
		}
		batchNumber = n
	}
	return WindowFor(batchNumber, batchSize), nil
}
