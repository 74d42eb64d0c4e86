// Package api is the read-only JSON projection of the warehouse. It
// exposes entity counts, dimension tables and the execution log; no
// write path leads here.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"retail-datalake/etl"
)

type Server struct {
	db        *gorm.DB
	batchSize int
	router    chi.Router
}

func NewServer(db *gorm.DB, batchSize int) *Server {
	if batchSize <= 0 {
		batchSize = etl.DefaultBatchSize
	}
	s := &Server{db: db, batchSize: batchSize, router: chi.NewRouter()}
	s.routes()
	return s
}

func (s *Server) Router() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.Get("/api/summary", s.handleSummary)
	s.router.Get("/api/status", s.handleStatus)
	s.router.Get("/api/products", s.handleProducts)
	s.router.Get("/api/customers", s.handleCustomers)
	s.router.Get("/api/countries", s.handleCountries)
	s.router.Get("/api/executions", s.handleExecutions)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("warn: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func limitParam(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := etl.CountSummary(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := etl.CountSummary(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	last, err := etl.MaxStagedRowNumber(s.db)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"summary":            summary,
		"last_processed_row": last,
		"next_batch":         last/s.batchSize + 1,
	})
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	var products []etl.Product
	err := s.db.Order("total_revenue desc").
		Limit(limitParam(r, 20, 500)).
		Find(&products).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// validSegments is the closed set of customer filter modes; anything
// else is a client error rather than a silently empty result.
var validSegments = map[string]bool{
	etl.SegmentNew:         true,
	etl.SegmentLowValue:    true,
	etl.SegmentMediumValue: true,
	etl.SegmentHighValue:   true,
	etl.SegmentVIP:         true,
}

func (s *Server) handleCustomers(w http.ResponseWriter, r *http.Request) {
	q := s.db.Order("total_amount_spent desc").Limit(limitParam(r, 20, 500))
	if segment := r.URL.Query().Get("segment"); segment != "" {
		if !validSegments[segment] {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown segment %q", segment))
			return
		}
		q = q.Where("customer_segment = ?", segment)
	}
	var customers []etl.Customer
	if err := q.Find(&customers).Error; err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, customers)
}

func (s *Server) handleCountries(w http.ResponseWriter, r *http.Request) {
	var countries []etl.Country
	err := s.db.Order("total_revenue desc").
		Limit(limitParam(r, 50, 500)).
		Find(&countries).Error
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, countries)
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	entries, err := etl.LatestExecutions(s.db, limitParam(r, 20, 200))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
