package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"retail-datalake/etl"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	// Best-effort: a missing .env is the normal case.
	_ = godotenv.Load()

	var configPath string
	var dbPath string
	var sourceCSV string
	var batchSize int
	var debug bool
	var batch int
	var next bool
	var status bool

	flag.StringVar(&configPath, "config", "", "YAML config file path.")
	flag.StringVar(&dbPath, "db", "retail.db", "Warehouse SQLite database path.")
	flag.StringVar(&sourceCSV, "source", "", "Processed online-retail CSV extract.")
	flag.IntVar(&batchSize, "batch-size", etl.DefaultBatchSize, "Fixed batch window size.")
	flag.BoolVar(&debug, "debug", false, "Enable debug logs.")
	flag.IntVar(&batch, "batch", 0, "Specific batch number to load.")
	flag.BoolVar(&next, "next", false, "Load the next batch derived from the staging high-water mark.")
	flag.BoolVar(&status, "status", false, "Show warehouse status and the suggested next batch, then exit.")
	flag.Parse()

	visited := map[string]bool{}
	flag.CommandLine.Visit(func(f *flag.Flag) {
		visited[f.Name] = true
	})

	fileCfg := &etl.FileConfig{}
	if configPath != "" {
		cfg, err := etl.LoadConfig(configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		fileCfg = cfg
	}

	// Merge config + environment + CLI overrides.
	finalDB := fileCfg.DB
	if env := strings.TrimSpace(os.Getenv("RETAIL_DB")); env != "" {
		finalDB = env
	}
	if visited["db"] || finalDB == "" {
		finalDB = dbPath
	}

	finalSource := fileCfg.SourceCSV
	if env := strings.TrimSpace(os.Getenv("RETAIL_SOURCE_CSV")); env != "" {
		finalSource = env
	}
	if visited["source"] {
		finalSource = sourceCSV
	}

	finalBatchSize := fileCfg.BatchSize
	if visited["batch-size"] || finalBatchSize == 0 {
		finalBatchSize = batchSize
	}

	finalDebug := fileCfg.Debug
	if visited["debug"] {
		finalDebug = debug
	}

	if strings.TrimSpace(finalSource) == "" {
		fmt.Fprintln(os.Stderr, "missing source extract (use --source or config.yaml source_csv)")
		os.Exit(2)
	}

	runner, err := etl.NewRunner(etl.RunnerConfig{
		DBPath:    finalDB,
		SourceCSV: finalSource,
		BatchSize: finalBatchSize,
		Debug:     finalDebug,
	})
	if err != nil {
		log.Fatalf("init runner: %v", err)
	}
	defer runner.Close()

	switch {
	case status:
		st, err := runner.Status()
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		printStatus(st)
	case batch > 0:
		runAndReport(runner, batch)
	case next:
		runAndReport(runner, 0)
	default:
		// No mode given: report status and the suggested next batch.
		st, err := runner.Status()
		if err != nil {
			log.Fatalf("status: %v", err)
		}
		printStatus(st)
		fmt.Println("\nrun with --next or --batch=N to load a batch")
	}
}

func runAndReport(runner *etl.Runner, batch int) {
	result, err := runner.RunBatch(batch)
	if err != nil {
		log.Fatalf("batch failed: %v", err)
	}
	printResult(result)
}

func printStatus(st *etl.PipelineStatus) {
	fmt.Println("warehouse status")
	fmt.Printf("  staging rows:       %d\n", st.Summary.Staging)
	fmt.Printf("  transactions:       %d\n", st.Summary.Transactions)
	fmt.Printf("  products:           %d\n", st.Summary.Products)
	fmt.Printf("  customers:          %d\n", st.Summary.Customers)
	fmt.Printf("  countries:          %d\n", st.Summary.Countries)
	fmt.Printf("  last processed row: %d\n", st.LastProcessedRow)
	fmt.Printf("  next batch:         %d\n", st.NextBatch)
}

func printResult(res *etl.BatchResult) {
	fmt.Printf("batch %d completed (rows %d-%d)\n",
		res.Window.BatchNumber, res.Window.StartRow, res.Window.EndRow)
	fmt.Printf("  processed=%d rejected=%d duplicate=%d inserted=%d\n",
		res.RowsProcessed, res.RowsRejected, res.RowsDuplicate, res.RowsInserted)
	fmt.Printf("  staging:      %d -> %d\n", res.Before.Staging, res.After.Staging)
	fmt.Printf("  transactions: %d -> %d\n", res.Before.Transactions, res.After.Transactions)
	fmt.Printf("  products:     %d -> %d\n", res.Before.Products, res.After.Products)
	fmt.Printf("  customers:    %d -> %d\n", res.Before.Customers, res.After.Customers)
	fmt.Printf("  countries:    %d -> %d\n", res.Before.Countries, res.After.Countries)
}
