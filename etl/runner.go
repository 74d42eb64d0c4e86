package etl

import (
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
)

type RunnerConfig struct {
	// DBPath is the warehouse SQLite file.
	DBPath string
	// SourceCSV is the tabular extract read in row windows.
	SourceCSV string
	// BatchSize is the fixed window width B. Defaults to 1000.
	BatchSize int
	Debug     bool
}

// Runner drives one batch end to end: resolve window, log start, stage
// with dedup, merge dimensions, publish facts, log outcome. Single
// writer; batch-to-batch ordering is the caller's responsibility.
type Runner struct {
	cfg    RunnerConfig
	db     *gorm.DB
	source RecordSource
	dims   dimensionMerger
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, fmt.Errorf("DBPath is required")
	}
	if strings.TrimSpace(cfg.SourceCSV) == "" {
		return nil, fmt.Errorf("SourceCSV is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	db, err := OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return &Runner{
		cfg:    cfg,
		db:     db,
		source: NewCSVSource(cfg.SourceCSV),
		dims:   warehouseMerger{},
	}, nil
}

func (r *Runner) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	r.db = nil
	return err
}

// DB exposes the warehouse handle for read-only consumers sharing the
// runner's lifecycle.
func (r *Runner) DB() *gorm.DB { return r.db }

func (r *Runner) debugf(format string, args ...any) {
	if r == nil || !r.cfg.Debug {
		return
	}
	log.Printf(format, args...)
}

// BatchResult is the before/after account of one attempt.
type BatchResult struct {
	Window        Window  `json:"window"`
	RowsProcessed int     `json:"rows_processed"`
	RowsRejected  int     `json:"rows_rejected"`
	RowsDuplicate int     `json:"rows_duplicate"`
	RowsInserted  int     `json:"rows_inserted"`
	Before        Summary `json:"before"`
	After         Summary `json:"after"`
}

// PipelineStatus reports current warehouse state without side effects.
type PipelineStatus struct {
	Summary          Summary `json:"summary"`
	LastProcessedRow int     `json:"last_processed_row"`
	NextBatch        int     `json:"next_batch"`
}

func (r *Runner) Status() (*PipelineStatus, error) {
	summary, err := CountSummary(r.db)
	if err != nil {
		return nil, err
	}
	last, err := MaxStagedRowNumber(r.db)
	if err != nil {
		return nil, err
	}
	return &PipelineStatus{
		Summary:          summary,
		LastProcessedRow: last,
		NextBatch:        last/r.batchSize() + 1,
	}, nil
}

func (r *Runner) batchSize() int {
	if r.cfg.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return r.cfg.BatchSize
}

// RunNext runs the next batch derived from the staging high-water mark.
func (r *Runner) RunNext() (*BatchResult, error) { return r.RunBatch(0) }

// RunBatch runs one batch. batchNumber <= 0 means auto-detect. Row
// level problems (short source, rejected rows, failed insert chunks)
// are absorbed into the counts; a dimension-merge or fact-publish
// failure marks the attempt FAILED in the execution log and is
// returned. Rows staged before such a failure stay durable.
func (r *Runner) RunBatch(batchNumber int) (*BatchResult, error) {
	win, err := ResolveWindow(r.db, batchNumber, r.cfg.BatchSize)
	if err != nil {
		return nil, err
	}
	r.debugf("run %s", win)

	before, err := CountSummary(r.db)
	if err != nil {
		return nil, fmt.Errorf("count before summary: %w", err)
	}

	// Log writes are advisory: a failure here must never change the
	// outcome of the batch itself.
	if err := startExecution(r.db, win); err != nil {
		log.Printf("warn: could not log start of batch %d: %v", win.BatchNumber, err)
	}

	load, err := r.loadStaging(win)
	if err != nil {
		r.logBatchEnd(win, StatusFailed, load.read, load.inserted, err.Error())
		return nil, err
	}

	result := &BatchResult{
		Window:        win,
		RowsProcessed: load.read,
		RowsRejected:  load.rejected,
		RowsDuplicate: load.duplicates,
		RowsInserted:  load.inserted,
		Before:        before,
	}

	if load.inserted == 0 {
		r.debugf("batch %d: nothing new to load", win.BatchNumber)
		r.logBatchEnd(win, StatusCompleted, load.read, 0, "No new data to load")
		result.After = before
		return result, nil
	}

	now := time.Now().UTC()
	if err := r.dims.MergeBatch(r.db, load.records, now); err != nil {
		r.logBatchEnd(win, StatusFailed, load.read, load.inserted, err.Error())
		return nil, err
	}
	if err := publishFacts(r.db, load.records); err != nil {
		r.logBatchEnd(win, StatusFailed, load.read, load.inserted, err.Error())
		return nil, err
	}

	r.logBatchEnd(win, StatusCompleted, load.read, load.inserted, "")

	after, err := CountSummary(r.db)
	if err != nil {
		return nil, fmt.Errorf("count after summary: %w", err)
	}
	result.After = after
	return result, nil
}

func (r *Runner) logBatchEnd(win Window, status string, rowsProcessed, rowsInserted int, errMsg string) {
	if err := finishExecution(r.db, win.BatchNumber, status, rowsProcessed, rowsInserted, errMsg); err != nil {
		log.Printf("warn: could not log end of batch %d: %v", win.BatchNumber, err)
	}
}

type loadStats struct {
	read       int
	rejected   int
	duplicates int
	inserted   int
	records    []StagedTransaction
}

// stagingInsertChunk keeps each bulk INSERT well under SQLite's bind
// variable limit.
const stagingInsertChunk = 50

// loadStaging reads the window, sanitizes, dedups against every key
// ever staged, and bulk-inserts the survivors with batch provenance.
// A source read error counts as zero rows processed, not a failure; a
// failed insert chunk is skipped and the batch continues short.
func (r *Runner) loadStaging(win Window) (loadStats, error) {
	var stats loadStats

	raw, err := r.source.ReadWindow(win.StartRow, win.EndRow)
	if err != nil {
		log.Printf("warn: source read for batch %d: %v", win.BatchNumber, err)
		raw = nil
	}
	stats.read = len(raw)

	records, rejected := SanitizeRecords(raw)
	stats.rejected = rejected
	if rejected > 0 {
		r.debugf("batch %d: rejected %d invalid rows", win.BatchNumber, rejected)
	}

	// Ordinals continue from the window start over accepted rows, so
	// the synthetic key is reproducible on a re-run of the same batch.
	loadedAt := time.Now().UTC()
	fileName := fmt.Sprintf("online_retail_batch_%d.csv", win.BatchNumber)
	dataSource := fmt.Sprintf("CSV_BATCH_%d", win.BatchNumber)
	for i := range records {
		records[i].RowNumberInFile = win.StartRow + i
		records[i].TransactionKey = BuildTransactionKey(records[i].InvoiceNo, records[i].StockCode, records[i].RowNumberInFile)
		records[i].LoadTimestamp = loadedAt
		records[i].FileName = fileName
		records[i].DataSource = dataSource
	}

	existing, err := stagedKeySet(r.db)
	if err != nil {
		return stats, fmt.Errorf("load staged keys: %w", err)
	}
	fresh := records[:0]
	for _, rec := range records {
		if _, dup := existing[rec.TransactionKey]; dup {
			stats.duplicates++
			continue
		}
		fresh = append(fresh, rec)
	}
	if stats.duplicates > 0 {
		r.debugf("batch %d: removed %d duplicate transactions", win.BatchNumber, stats.duplicates)
	}

	for start := 0; start < len(fresh); start += stagingInsertChunk {
		end := start + stagingInsertChunk
		if end > len(fresh) {
			end = len(fresh)
		}
		chunk := fresh[start:end]
		if err := r.db.Create(&chunk).Error; err != nil {
			log.Printf("warn: staging insert rows %d-%d failed, skipping: %v",
				chunk[0].RowNumberInFile, chunk[len(chunk)-1].RowNumberInFile, err)
			continue
		}
		stats.inserted += len(chunk)
		stats.records = append(stats.records, chunk...)
	}
	return stats, nil
}
