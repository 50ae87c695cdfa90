package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gdprop/waterbill/internal/billing"
	"github.com/gdprop/waterbill/internal/render"
)

// handleGeneratePDF renders one reviewed bill as a downloadable PDF.
func (s *Server) handleGeneratePDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var bill billing.ComputedBill
	if err := decodeJSON(r, &bill); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	data := render.PDF(bill, time.Now())
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%s", render.Filename(bill)))
	if _, err := w.Write(data); err != nil {
		log.Printf("api: write pdf failed: %v", err)
	}
}

type generateAllRequest struct {
	Bills []billing.ComputedBill `json:"bills"`
}

// handleGenerateAllPDFs renders a batch of bills into one zip archive.
func (s *Server) handleGenerateAllPDFs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req generateAllRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Bills) == 0 {
		writeError(w, r, http.StatusBadRequest, "no bills to render")
		return
	}

	data, err := render.ZipAll(req.Bills, time.Now())
	if err != nil {
		log.Printf("api: zip bills failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=water_bills.zip")
	if _, err := w.Write(data); err != nil {
		log.Printf("api: write zip failed: %v", err)
	}
}
