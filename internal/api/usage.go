package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gdprop/waterbill/internal/ingest"
	"github.com/gdprop/waterbill/internal/metrics"
	"github.com/gdprop/waterbill/internal/storage"
)

// handleAutoFetch runs the ingestion orchestrator against the configured
// sample data directory and reports the batch summary.
func (s *Server) handleAutoFetch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start := time.Now()
	defer metrics.ObserveRequest("/api/auto-fetch-data", start)

	summary, err := s.ingest.RunDir(r.Context(), s.cfg.SampleDataDir)
	if err != nil {
		log.Printf("api: auto-fetch failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	if err := s.notifier.SendIngestSummary(r.Context(), summary); err != nil {
		log.Printf("api: ingest summary email failed: %v", err)
	}

	status := "ok"
	if summary.Failed() {
		status = "partial_failure"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"summary": summary,
	})
}

// handleUsageViewer returns the dense unit x date matrix for the retention
// window.
func (s *Server) handleUsageViewer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap, err := s.ingest.Viewer(r.Context(), ingest.RetentionDays)
	if err != nil {
		log.Printf("api: usage viewer failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type unitUsage struct {
	UnitNumber   string             `json:"unit_number"`
	Property     string             `json:"property"`
	Address      string             `json:"address"`
	TenantName   string             `json:"tenant_name,omitempty"`
	Daily        []storage.UsageRow `json:"daily"`
	TotalGallons float64            `json:"total_gallons"`
}

// handleUsageRange serves /api/water-usage/{start}/{end}: raw samples in the
// range grouped per unit with gallons totals.
func (s *Server) handleUsageRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/water-usage/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 {
		writeError(w, r, http.StatusBadRequest, "want /api/water-usage/{start}/{end}")
		return
	}
	startDate, endDate := parts[0], parts[1]
	for _, d := range []string{startDate, endDate} {
		if _, err := time.Parse("2006-01-02", d); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
			return
		}
	}
	if endDate < startDate {
		writeError(w, r, http.StatusBadRequest, "end date before start date")
		return
	}

	rows, err := s.storage.QueryUsage(r.Context(), startDate, endDate)
	if err != nil {
		log.Printf("api: query usage %s..%s failed: %v", startDate, endDate, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	byUnit := make(map[string]*unitUsage)
	var order []string
	for _, row := range rows {
		u, ok := byUnit[row.UnitNumber]
		if !ok {
			u = &unitUsage{
				UnitNumber: row.UnitNumber,
				Property:   row.Property,
				Address:    row.Address,
				TenantName: row.TenantName,
			}
			byUnit[row.UnitNumber] = u
			order = append(order, row.UnitNumber)
		}
		u.Daily = append(u.Daily, row)
		u.TotalGallons += row.Gallons
	}

	units := make([]unitUsage, 0, len(order))
	for _, key := range order {
		units = append(units, *byUnit[key])
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"start_date": startDate,
		"end_date":   endDate,
		"units":      units,
	})
}
