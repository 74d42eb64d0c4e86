package etl

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	pipelineName    = "INCREMENTAL_ETL"
	pipelineVersion = "1.0"
	executedBy      = "ETL_PIPELINE"
)

func executionType(batchNumber int) string {
	return fmt.Sprintf("BATCH_%d", batchNumber)
}

// startExecution opens a new RUNNING attempt for the batch. Every
// attempt gets a fresh entry; prior terminal entries are never reused.
// rows_processed starts at the window size and is rewritten with the
// actual source-row count when the attempt terminates.
func startExecution(db *gorm.DB, win Window) error {
	ctx, _ := json.Marshal(map[string]int{
		"batch_number": win.BatchNumber,
		"start_row":    win.StartRow,
		"end_row":      win.EndRow,
	})
	entry := ExecutionLogEntry{
		ExecutionID:      uuid.NewString(),
		PipelineName:     pipelineName,
		PipelineVersion:  pipelineVersion,
		ExecutionType:    executionType(win.BatchNumber),
		Status:           StatusRunning,
		ExecutedBy:       executedBy,
		StartTime:        time.Now().UTC(),
		RowsProcessed:    win.Size(),
		ExecutionContext: string(ctx),
	}
	return db.Create(&entry).Error
}

// finishExecution moves the latest RUNNING attempt for the batch to a
// terminal state. RUNNING -> COMPLETED | FAILED are the only
// transitions.
func finishExecution(db *gorm.DB, batchNumber int, status string, rowsProcessed, rowsInserted int, errMsg string) error {
	var entry ExecutionLogEntry
	err := db.Where("pipeline_name = ? AND execution_type = ? AND status = ?",
		pipelineName, executionType(batchNumber), StatusRunning).
		Order("start_time desc").
		First(&entry).Error
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return db.Model(&ExecutionLogEntry{}).
		Where("id = ?", entry.ID).
		Updates(map[string]any{
			"status":         status,
			"end_time":       &now,
			"rows_processed": rowsProcessed,
			"rows_inserted":  rowsInserted,
			"error_message":  errMsg,
		}).Error
}

// LatestExecutions returns the most recent attempts, newest first.
func LatestExecutions(db *gorm.DB, limit int) ([]ExecutionLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []ExecutionLogEntry
	err := db.Order("start_time desc, id desc").Limit(limit).Find(&entries).Error
	return entries, err
}
