package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"retail-datalake/etl"
)

func newTestServer(t *testing.T) (*Server, *gorm.DB) {
	t.Helper()
	db, err := etl.OpenDB(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	return NewServer(db, 1000), db
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestSummaryEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	if err := db.Create(&etl.Product{StockCode: "85123A"}).Error; err != nil {
		t.Fatal(err)
	}

	rec := get(t, s, "/api/summary")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var summary etl.Summary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Products != 1 {
		t.Errorf("products = %d, want 1", summary.Products)
	}
}

func TestStatusEndpoint(t *testing.T) {
	s, db := newTestServer(t)
	staged := etl.StagedTransaction{
		TransactionKey:  "536365_85123A_2500",
		InvoiceNo:       "536365",
		StockCode:       "85123A",
		Quantity:        1,
		InvoiceDate:     time.Now().UTC(),
		RowNumberInFile: 2500,
	}
	if err := db.Create(&staged).Error; err != nil {
		t.Fatal(err)
	}

	rec := get(t, s, "/api/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var status struct {
		LastProcessedRow int `json:"last_processed_row"`
		NextBatch        int `json:"next_batch"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.LastProcessedRow != 2500 {
		t.Errorf("last_processed_row = %d, want 2500", status.LastProcessedRow)
	}
	if status.NextBatch != 3 {
		t.Errorf("next_batch = %d, want 3", status.NextBatch)
	}
}

func TestCustomersSegmentFilter(t *testing.T) {
	s, db := newTestServer(t)
	customers := []etl.Customer{
		{CustomerID: 17850, Country: "United Kingdom", TotalAmountSpent: decimal.RequireFromString("12000"), CustomerSegment: etl.SegmentVIP},
		{CustomerID: 13047, Country: "United Kingdom", TotalAmountSpent: decimal.RequireFromString("250"), CustomerSegment: etl.SegmentLowValue},
	}
	if err := db.Create(&customers).Error; err != nil {
		t.Fatal(err)
	}

	rec := get(t, s, "/api/customers?segment="+etl.SegmentVIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []etl.Customer
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].CustomerID != 17850 {
		t.Errorf("filtered customers = %+v, want the single VIP", got)
	}

	rec = get(t, s, "/api/customers")
	var all []etl.Customer
	if err := json.Unmarshal(rec.Body.Bytes(), &all); err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered customers = %d, want 2", len(all))
	}
}

func TestCustomersUnknownSegmentIsBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/customers?segment=PLATINUM")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] == "" {
		t.Error("expected an error message in the body")
	}
}

func TestExecutionsEndpointNewestFirst(t *testing.T) {
	s, db := newTestServer(t)
	base := time.Now().UTC().Add(-time.Hour)
	entries := []etl.ExecutionLogEntry{
		{ExecutionID: "a", PipelineName: "INCREMENTAL_ETL", ExecutionType: "BATCH_1", Status: etl.StatusCompleted, StartTime: base},
		{ExecutionID: "b", PipelineName: "INCREMENTAL_ETL", ExecutionType: "BATCH_2", Status: etl.StatusRunning, StartTime: base.Add(time.Minute)},
	}
	if err := db.Create(&entries).Error; err != nil {
		t.Fatal(err)
	}

	rec := get(t, s, "/api/executions")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []etl.ExecutionLogEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].ExecutionID != "b" {
		t.Errorf("first entry = %q, want the newest", got[0].ExecutionID)
	}
}

func TestProductsOrderedByRevenue(t *testing.T) {
	s, db := newTestServer(t)
	products := []etl.Product{
		{StockCode: "A1", TotalRevenue: decimal.RequireFromString("10")},
		{StockCode: "B2", TotalRevenue: decimal.RequireFromString("90")},
	}
	if err := db.Create(&products).Error; err != nil {
		t.Fatal(err)
	}

	rec := get(t, s, "/api/products?limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []etl.Product
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].StockCode != "B2" {
		t.Errorf("top product = %+v, want B2", got)
	}
}
