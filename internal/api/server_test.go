package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/gdprop/waterbill/internal/auth"
	"github.com/gdprop/waterbill/internal/billing"
	"github.com/gdprop/waterbill/internal/config"
	"github.com/gdprop/waterbill/internal/metrics"
	"github.com/gdprop/waterbill/internal/storage"
)

func newTestMux(t *testing.T) (*http.ServeMux, *storage.MemoryStorage, string) {
	t.Helper()
	ctx := context.Background()
	st := storage.NewMemory()
	if err := storage.Seed(ctx, st); err != nil {
		t.Fatal(err)
	}
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.SeedOperator(ctx, st, storage.DefaultOperatorUsername, hash); err != nil {
		t.Fatal(err)
	}

	authSvc, err := auth.NewService(st, "test-secret")
	if err != nil {
		t.Fatal(err)
	}
	cfg := config.Config{SampleDataDir: t.TempDir()}
	mux := NewMux(cfg, st, authSvc)

	// Log in once for the authenticated requests below.
	body := `{"username":"GDP","password":"hunter2"}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status = %d body = %s", rec.Code, rec.Body.String())
	}
	var login struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &login); err != nil {
		t.Fatal(err)
	}
	return mux, st, login.Token
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = httptest.NewRequest(method, path, bytes.NewReader(data))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, r)
	return rec
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	mux, _, _ := newTestMux(t)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/login",
		strings.NewReader(`{"username":"GDP","password":"nope"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestUnitsRequiresToken(t *testing.T) {
	mux, _, token := newTestMux(t)

	if rec := doJSON(t, mux, http.MethodGet, "/api/units", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated: status = %d, want 401", rec.Code)
	}

	rec := doJSON(t, mux, http.MethodGet, "/api/units", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var units []storage.UnitWithTenant
	if err := json.Unmarshal(rec.Body.Bytes(), &units); err != nil {
		t.Fatal(err)
	}
	if len(units) != 14 {
		t.Errorf("units = %d, want 14", len(units))
	}
}

func TestTenantAndBalanceFlow(t *testing.T) {
	mux, st, token := newTestMux(t)
	ctx := context.Background()

	unit, err := st.GetUnitByNumber(ctx, "484")
	if err != nil || unit == nil {
		t.Fatalf("unit: %v", err)
	}

	rec := doJSON(t, mux, http.MethodPut, fmt.Sprintf("/api/tenants/%d", unit.ID), token,
		map[string]string{"name": "John Smith"})
	if rec.Code != http.StatusOK {
		t.Fatalf("assign tenant: status = %d body = %s", rec.Code, rec.Body.String())
	}
	var tenant storage.Tenant
	if err := json.Unmarshal(rec.Body.Bytes(), &tenant); err != nil {
		t.Fatal(err)
	}

	rec = doJSON(t, mux, http.MethodPut, fmt.Sprintf("/api/balances/%d", tenant.ID), token,
		map[string]float64{"current_balance": 42.50})
	if rec.Code != http.StatusOK {
		t.Fatalf("set balance: status = %d body = %s", rec.Code, rec.Body.String())
	}

	got, _ := st.GetTenant(ctx, tenant.ID)
	if got.CurrentBalance != 42.50 {
		t.Errorf("balance = %v, want 42.50", got.CurrentBalance)
	}

	// Payment decrements through the ledger.
	rec = doJSON(t, mux, http.MethodPost, "/api/payments", token, map[string]any{
		"tenant_id": tenant.ID, "amount": 12.50, "date": "2025-06-24",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("payment: status = %d body = %s", rec.Code, rec.Body.String())
	}
	got, _ = st.GetTenant(ctx, tenant.ID)
	if math.Abs(got.CurrentBalance-30.00) > 1e-9 {
		t.Errorf("balance after payment = %v, want 30.00", got.CurrentBalance)
	}
}

func TestProcessBillsUpload(t *testing.T) {
	mux, st, token := newTestMux(t)
	ctx := context.Background()

	unit, _ := st.GetUnitByNumber(ctx, "484")
	if _, err := st.AssignTenant(ctx, unit.ID, "John Smith"); err != nil {
		t.Fatal(err)
	}

	csv := "Date (America/New_York),484 (gal),486 (gal)\n" +
		"Total 05/26/2025 - 06/24/2025,4488,2244\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("files", "champion_usage.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatal(err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/process-bills", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	var resp processBillsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PeriodSource != "marker" {
		t.Errorf("period source = %s, want marker", resp.PeriodSource)
	}
	if resp.BillingDays != 30 {
		t.Errorf("billing days = %d, want 30", resp.BillingDays)
	}
	if len(resp.Bills) != 14 {
		t.Fatalf("bills = %d, want one per unit", len(resp.Bills))
	}

	var b484 *billing.ComputedBill
	for i := range resp.Bills {
		if resp.Bills[i].UnitNumber == "484" {
			b484 = &resp.Bills[i]
		}
	}
	if b484 == nil {
		t.Fatal("no bill for unit 484")
	}
	if math.Abs(b484.CCFUsage-6.0) > 1e-9 {
		t.Errorf("ccf = %v, want 6.0 (4488 gal / 748)", b484.CCFUsage)
	}
	if b484.TenantName != "John Smith" {
		t.Errorf("tenant = %s, want John Smith", b484.TenantName)
	}
}

func TestProcessBillsUploadRejectsBadFile(t *testing.T) {
	mux, _, token := newTestMux(t)

	good := "Date (America/New_York),484 (gal),486 (gal)\n" +
		"Total 05/26/2025 - 06/24/2025,4488,2244\n"
	bad := "this is not a usage export\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range map[string]string{
		"champion_usage.csv": good,
		"cushing_usage.csv":  bad,
	} {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	mw.Close()

	errsBefore := testutil.ToFloat64(metrics.RequestErrorsTotal.WithLabelValues("/api/process-bills", "400"))

	req := httptest.NewRequest(http.MethodPost, "/api/process-bills", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// One unreadable file fails the whole upload. No bills are presented.
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Error      string                 `json:"error"`
		FileErrors []string               `json:"file_errors"`
		Bills      []billing.ComputedBill `json:"bills"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Bills) != 0 {
		t.Errorf("bills = %d, want none on a failed upload", len(resp.Bills))
	}
	if len(resp.FileErrors) != 1 || !strings.Contains(resp.FileErrors[0], "cushing_usage.csv") {
		t.Errorf("file_errors = %v, want the failed file itemized", resp.FileErrors)
	}

	errsAfter := testutil.ToFloat64(metrics.RequestErrorsTotal.WithLabelValues("/api/process-bills", "400"))
	if errsAfter <= errsBefore {
		t.Errorf("error counter = %v, want > %v", errsAfter, errsBefore)
	}
}

func TestNotificationConfigRoundTrip(t *testing.T) {
	mux, _, token := newTestMux(t)

	rec := doJSON(t, mux, http.MethodGet, "/api/notification-config", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get empty config: status = %d body = %s", rec.Code, rec.Body.String())
	}
	var empty storage.EmailConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &empty); err != nil {
		t.Fatal(err)
	}
	if empty.Enabled {
		t.Error("unsaved config reports enabled")
	}

	rec = doJSON(t, mux, http.MethodPut, "/api/notification-config", token, map[string]any{
		"provider":     "smtp",
		"host":         "mail.example.com",
		"port":         587,
		"from_address": "billing@example.com",
		"recipient":    "owner@example.com",
		"enabled":      true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save config: status = %d body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, mux, http.MethodGet, "/api/notification-config", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get config: status = %d body = %s", rec.Code, rec.Body.String())
	}
	var saved storage.EmailConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Recipient != "owner@example.com" || !saved.Enabled || saved.Provider != "smtp" {
		t.Errorf("saved config = %+v, want the stored smtp settings back", saved)
	}
	if saved.ID == "" {
		t.Error("saved config has no id")
	}
}

func TestUnknownFieldsRejected(t *testing.T) {
	mux, _, token := newTestMux(t)

	rec := doJSON(t, mux, http.MethodPost, "/api/payments", token, map[string]any{
		"tenant_id": 1, "amount": 5.0, "date": "2025-06-24", "bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown field", rec.Code)
	}
}

func TestProcessBillsFromDataAndCommit(t *testing.T) {
	mux, st, token := newTestMux(t)
	ctx := context.Background()

	unit, _ := st.GetUnitByNumber(ctx, "483")
	tenant, err := st.AssignTenant(ctx, unit.ID, "Jane Doe")
	if err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertUsage(ctx, unit.ID, "2025-06-01", 374); err != nil {
		t.Fatal(err)
	}
	if err := st.UpsertUsage(ctx, unit.ID, "2025-06-02", 374); err != nil {
		t.Fatal(err)
	}

	rec := doJSON(t, mux, http.MethodPost, "/api/process-bills-from-data", token,
		map[string]string{"start_date": "2025-06-01", "end_date": "2025-06-02"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	var resp processBillsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PeriodSource != "explicit" || resp.BillingDays != 2 {
		t.Errorf("period = %s/%d days, want explicit/2", resp.PeriodSource, resp.BillingDays)
	}

	var target *billing.ComputedBill
	for i := range resp.Bills {
		if resp.Bills[i].UnitNumber == "483" {
			target = &resp.Bills[i]
		}
	}
	if target == nil {
		t.Fatal("no bill for unit 483")
	}
	if math.Abs(target.CCFUsage-1.0) > 1e-9 {
		t.Errorf("ccf = %v, want 1.0 (748 gal)", target.CCFUsage)
	}

	// Commit the whole batch; vacant units have no tenant and must fail
	// individually while the tenanted bill lands.
	rec = doJSON(t, mux, http.MethodPost, "/api/update-balances-for-bills", token,
		map[string]any{"bills": resp.Bills})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("batch commit: status = %d, want 500 (partial failure)", rec.Code)
	}
	var commitResp commitBillsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &commitResp); err != nil {
		t.Fatal(err)
	}
	if commitResp.Status != "partial_failure" {
		t.Errorf("status = %s, want partial_failure", commitResp.Status)
	}

	got, _ := st.GetTenant(ctx, tenant.ID)
	if math.Abs(got.CurrentBalance-target.NewCharges) > 1e-9 {
		t.Errorf("balance = %v, want %v", got.CurrentBalance, target.NewCharges)
	}
}

func TestGeneratePDF(t *testing.T) {
	mux, _, token := newTestMux(t)

	bill := billing.ComputedBill{
		TenantID:    1,
		TenantName:  "John Smith",
		UnitNumber:  "484",
		Address:     "484 S Champion Avenue",
		PeriodStart: "05/26/2025",
		PeriodEnd:   "06/24/2025",
	}
	rec := doJSON(t, mux, http.MethodPost, "/api/generate-pdf", token, bill)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type = %s, want application/pdf", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("response is not a PDF")
	}
}

func TestHealthEndpoints(t *testing.T) {
	mux, _, _ := newTestMux(t)
	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}
