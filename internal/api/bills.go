package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gdprop/waterbill/internal/billing"
	"github.com/gdprop/waterbill/internal/ingest"
	"github.com/gdprop/waterbill/internal/ledger"
	"github.com/gdprop/waterbill/internal/metrics"
)

const maxUploadBytes = 32 << 20

type processBillsResponse struct {
	Bills        []billing.ComputedBill `json:"bills"`
	PeriodStart  string                 `json:"period_start"`
	PeriodEnd    string                 `json:"period_end"`
	BillingDays  int                    `json:"billing_days"`
	PeriodSource string                 `json:"period_source"`
	Warnings     []string               `json:"warnings,omitempty"`
}

// handleProcessBills is the upload path: one or more property CSV exports
// arrive as multipart files, their Total marker rows supply the billing
// period and per-unit gallons, and the engine produces a reviewable bill per
// unit. Any file that fails to open or parse aborts the whole request; the
// scheduled ingestion path is the one that warns and continues. Nothing is
// committed here.
func (s *Server) handleProcessBills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start := time.Now()
	defer metrics.ObserveRequest("/api/process-bills", start)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File) == 0 {
		writeError(w, r, http.StatusBadRequest, "no files uploaded")
		return
	}

	usage := make(billing.UsageByUnit)
	var period *billing.Period
	var warnings, fileErrors []string

	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			prop, ok := ingest.MatchProperty(fh.Filename)
			if !ok {
				fileErrors = append(fileErrors, fh.Filename+": matches no configured property")
				continue
			}
			f, err := fh.Open()
			if err != nil {
				fileErrors = append(fileErrors, fh.Filename+": "+err.Error())
				continue
			}
			res, err := ingest.ParseCSV(f, prop)
			f.Close()
			if err != nil {
				fileErrors = append(fileErrors, fh.Filename+": "+err.Error())
				continue
			}
			warnings = append(warnings, res.Warnings...)
			if res.Period != nil && period == nil {
				period = res.Period
			}
			for unitNumber, gallons := range res.PeriodTotals {
				usage[unitNumber] = billing.GallonsToCCF(gallons)
			}
		}
	}

	if len(fileErrors) > 0 {
		log.Printf("api: process-bills upload rejected, %d file(s) failed", len(fileErrors))
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":       "one or more uploaded files could not be processed",
			"file_errors": fileErrors,
		})
		return
	}

	periodSource := "marker"
	if period == nil {
		// No usable Total marker in any file. Bills still compute, but the
		// period is flagged so the operator can see it was not derived from
		// the upload.
		p := billing.DefaultPeriod()
		period = &p
		periodSource = "default"
		log.Printf("api: no period marker found in upload, using default period %s - %s",
			p.StartString(), p.EndString())
	}

	s.computeAndRespond(w, r, usage, *period, periodSource, warnings)
}

type processFromDataRequest struct {
	StartDate string `json:"start_date"` // YYYY-MM-DD
	EndDate   string `json:"end_date"`
}

// handleProcessBillsFromData is the date-range path: the operator picks a
// period, per-unit gallons are summed out of the usage store, and the same
// engine produces the bills.
func (s *Server) handleProcessBillsFromData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start := time.Now()
	defer metrics.ObserveRequest("/api/process-bills-from-data", start)

	var req processFromDataRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid start_date, want YYYY-MM-DD")
		return
	}
	endDate, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid end_date, want YYYY-MM-DD")
		return
	}
	period, err := billing.NewPeriod(startDate, endDate)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := s.storage.QueryUsage(r.Context(), req.StartDate, req.EndDate)
	if err != nil {
		log.Printf("api: query usage %s..%s failed: %v", req.StartDate, req.EndDate, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	usage := billing.SumGallonsToUsage(rows)
	s.computeAndRespond(w, r, usage, period, "explicit", nil)
}

func (s *Server) computeAndRespond(w http.ResponseWriter, r *http.Request, usage billing.UsageByUnit, period billing.Period, periodSource string, warnings []string) {
	units, err := s.storage.ListUnits(r.Context())
	if err != nil {
		log.Printf("api: list units failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	rateEntries, err := s.storage.ListRates(r.Context())
	if err != nil {
		log.Printf("api: list rates failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	bills, err := billing.ComputeAll(units, usage, period, periodSource, billing.SnapshotRates(rateEntries))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	metrics.BillsComputedTotal.Add(float64(len(bills)))

	writeJSON(w, http.StatusOK, processBillsResponse{
		Bills:        bills,
		PeriodStart:  period.StartString(),
		PeriodEnd:    period.EndString(),
		BillingDays:  period.Days(),
		PeriodSource: periodSource,
		Warnings:     warnings,
	})
}

// handleCommitBill applies one reviewed bill to the tenant's balance.
func (s *Server) handleCommitBill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var bill billing.ComputedBill
	if err := decodeJSON(r, &bill); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.ledger.CommitOne(r.Context(), bill); err != nil {
		if errors.Is(err, ledger.ErrInvalidBill) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		log.Printf("api: commit bill for tenant %d failed: %v", bill.TenantID, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tenant_id":   bill.TenantID,
		"unit_number": bill.UnitNumber,
		"status":      "committed",
	})
}

type commitBillsRequest struct {
	Bills []billing.ComputedBill `json:"bills"`
}

type commitBillsResponse struct {
	Status  string                `json:"status"`
	Results []ledger.CommitResult `json:"results"`
}

// handleCommitBills applies a batch of bills best-effort: failures are
// itemized, successes stay applied, and the overall status reports failure
// when any bill did not land.
func (s *Server) handleCommitBills(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req commitBillsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Bills) == 0 {
		writeError(w, r, http.StatusBadRequest, "no bills to commit")
		return
	}

	results, err := s.ledger.CommitMany(r.Context(), req.Bills)
	if err != nil {
		if errors.Is(err, ledger.ErrPartialCommit) {
			writeJSON(w, http.StatusInternalServerError, commitBillsResponse{
				Status:  "partial_failure",
				Results: results,
			})
			return
		}
		log.Printf("api: commit bills failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, commitBillsResponse{Status: "ok", Results: results})
}
