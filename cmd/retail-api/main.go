package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"retail-datalake/api"
	"retail-datalake/etl"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	_ = godotenv.Load()

	var configPath string
	var dbPath string
	var addr string
	var batchSize int

	flag.StringVar(&configPath, "config", "", "YAML config file path.")
	flag.StringVar(&dbPath, "db", "retail.db", "Warehouse SQLite database path.")
	flag.StringVar(&addr, "addr", ":8080", "Listen address.")
	flag.IntVar(&batchSize, "batch-size", etl.DefaultBatchSize, "Fixed batch window size (for next-batch suggestions).")
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

	finalDB := fileCfg.DB
	if env := strings.TrimSpace(os.Getenv("RETAIL_DB")); env != "" {
		finalDB = env
	}
	if visited["db"] || finalDB == "" {
		finalDB = dbPath
	}

	finalAddr := fileCfg.APIAddr
	if visited["addr"] || finalAddr == "" {
		finalAddr = addr
	}

	finalBatchSize := fileCfg.BatchSize
	if visited["batch-size"] || finalBatchSize == 0 {
		finalBatchSize = batchSize
	}

	// The API never writes; open without touching the schema.
	db, err := etl.OpenQueryDB(finalDB)
	if err != nil {
		log.Fatalf("open warehouse: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("open warehouse: %v", err)
	}
	defer sqlDB.Close()

	server := api.NewServer(db, finalBatchSize)
	log.Printf("retail-api listening on %s (db=%s)", finalAddr, finalDB)
	if err := http.ListenAndServe(finalAddr, server.Router()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
