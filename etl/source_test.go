package etl

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCSVFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadWindow_Alignment(t *testing.T) {
	var b strings.Builder
	b.WriteString("InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n")
	for i := 1; i <= 10; i++ {
		fmt.Fprintf(&b, "INV%04d,SKU,desc,1,12/1/2010 8:26,2.55,17850,United Kingdom\n", i)
	}
	src := NewCSVSource(writeCSVFile(t, b.String()))

	rows, err := src.ReadWindow(4, 7)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("len = %d, want 4", len(rows))
	}
	if rows[0].InvoiceNo != "INV0004" || rows[3].InvoiceNo != "INV0007" {
		t.Errorf("window misaligned: first %q last %q", rows[0].InvoiceNo, rows[3].InvoiceNo)
	}
}

func TestReadWindow_ShortPastEndOfFile(t *testing.T) {
	src := NewCSVSource(writeCSVFile(t,
		"InvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n"+
			"536365,85123A,desc,6,12/1/2010 8:26,2.55,17850,United Kingdom\n"+
			"536366,22633,desc,3,12/1/2010 8:28,1.85,17850,United Kingdom\n"))

	rows, err := src.ReadWindow(2, 5)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
	if rows[0].InvoiceNo != "536366" {
		t.Errorf("InvoiceNo = %q, want 536366", rows[0].InvoiceNo)
	}

	rows, err = src.ReadWindow(10, 20)
	if err != nil {
		t.Fatalf("ReadWindow past EOF: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("window past EOF yielded %d rows, want 0", len(rows))
	}
}

func TestReadWindow_HeaderVariants(t *testing.T) {
	src := NewCSVSource(writeCSVFile(t,
		`"Invoice No","Stock Code",DESCRIPTION,quantity,Invoice_Date,UNIT_PRICE,Customer ID,country`+"\n"+
			"536365,85123A,WHITE HANGING HEART,6,12/1/2010 8:26,2.55,17850,United Kingdom\n"))

	rows, err := src.ReadWindow(1, 1)
	if err != nil {
		t.Fatalf("ReadWindow: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len = %d, want 1", len(rows))
	}
	r := rows[0]
	if r.InvoiceNo != "536365" || r.StockCode != "85123A" || r.CustomerID != "17850" {
		t.Errorf("fields not mapped across header variants: %+v", r)
	}
	if r.Country != "United Kingdom" {
		t.Errorf("Country = %q", r.Country)
	}
}

func TestReadWindow_MissingRequiredColumn(t *testing.T) {
	src := NewCSVSource(writeCSVFile(t,
		"InvoiceNo,Description,Quantity,InvoiceDate,UnitPrice\n"+
			"536365,desc,6,12/1/2010 8:26,2.55\n"))

	_, err := src.ReadWindow(1, 10)
	if err == nil {
		t.Fatal("expected missing column error")
	}
	if !strings.Contains(err.Error(), "stockcode") {
		t.Errorf("error = %v, want mention of stockcode", err)
	}
}

func TestReadWindow_MissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"))
	if _, err := src.ReadWindow(1, 10); err == nil {
		t.Fatal("expected open error")
	}
}
