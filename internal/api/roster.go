package api

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gdprop/waterbill/internal/metrics"
)

// handleListUnits returns every unit with its tenant and balance, ordered by
// property then unit number.
func (s *Server) handleListUnits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	start := time.Now()
	defer metrics.ObserveRequest("/api/units", start)

	units, err := s.storage.ListUnits(r.Context())
	if err != nil {
		log.Printf("api: list units failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, units)
}

type assignTenantRequest struct {
	Name string `json:"name"`
}

// handleAssignTenant replaces the tenant for a unit. An empty name vacates
// the unit.
func (s *Server) handleAssignTenant(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/tenants/")
	unitID, err := strconv.ParseUint(strings.Trim(idStr, "/"), 10, 32)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid unit id")
		return
	}

	var req assignTenantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	tenant, err := s.storage.AssignTenant(r.Context(), uint(unitID), strings.TrimSpace(req.Name))
	if err != nil {
		log.Printf("api: assign tenant for unit %d failed: %v", unitID, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if tenant == nil {
		writeJSON(w, http.StatusOK, map[string]any{"unit_id": unitID, "vacant": true})
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type setBalanceRequest struct {
	Balance float64 `json:"current_balance"`
}

// handleSetBalance overwrites a tenant's running balance. This is the
// operator-correction path; bill commits and payments go through the ledger.
func (s *Server) handleSetBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/balances/")
	tenantID, err := strconv.ParseUint(strings.Trim(idStr, "/"), 10, 32)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid tenant id")
		return
	}

	var req setBalanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.storage.SetBalance(r.Context(), uint(tenantID), req.Balance); err != nil {
		log.Printf("api: set balance for tenant %d failed: %v", tenantID, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenantID, "current_balance": req.Balance})
}

// handleListRates returns the rate table.
func (s *Server) handleListRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rates, err := s.storage.ListRates(r.Context())
	if err != nil {
		log.Printf("api: list rates failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rates)
}

type updateRateRequest struct {
	Rate float64 `json:"rate"`
}

// handleUpdateRate changes one rate category's value. Categories and kinds
// are fixed; only the dollar amount is editable.
func (s *Server) handleUpdateRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/api/usage-costs/")
	id, err := strconv.ParseUint(strings.Trim(idStr, "/"), 10, 32)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid rate id")
		return
	}

	var req updateRateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Rate < 0 {
		writeError(w, r, http.StatusBadRequest, "rate must not be negative")
		return
	}

	if err := s.storage.UpdateRate(r.Context(), uint(id), req.Rate); err != nil {
		log.Printf("api: update rate %d failed: %v", id, err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "rate": req.Rate})
}

type paymentRequest struct {
	TenantID uint    `json:"tenant_id"`
	Amount   float64 `json:"amount"`
	Date     string  `json:"date"`
}

// handleRecordPayment appends a payment and decrements the tenant balance.
func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount <= 0 {
		writeError(w, r, http.StatusBadRequest, "amount must be positive")
		return
	}
	if req.Date == "" {
		req.Date = time.Now().Format("2006-01-02")
	}

	p, err := s.ledger.RecordPayment(r.Context(), req.TenantID, req.Amount, req.Date)
	if err != nil {
		log.Printf("api: record payment for tenant %d failed: %v", req.TenantID, err)
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}
