package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gdprop/waterbill/internal/api/swagger"
	"github.com/gdprop/waterbill/internal/auth"
	"github.com/gdprop/waterbill/internal/config"
	"github.com/gdprop/waterbill/internal/ingest"
	"github.com/gdprop/waterbill/internal/ledger"
	"github.com/gdprop/waterbill/internal/metrics"
	"github.com/gdprop/waterbill/internal/notification"
	"github.com/gdprop/waterbill/internal/storage"
)

// Server bundles the services the HTTP handlers close over.
type Server struct {
	cfg      config.Config
	storage  storage.Storage
	auth     *auth.Service
	ledger   *ledger.Ledger
	ingest   *ingest.Orchestrator
	notifier *notification.Service
}

func NewServer(cfg config.Config, st storage.Storage, authSvc *auth.Service) *Server {
	return &Server{
		cfg:      cfg,
		storage:  st,
		auth:     authSvc,
		ledger:   ledger.New(st),
		ingest:   ingest.NewOrchestrator(st),
		notifier: notification.NewService(st),
	}
}

// NewMux constructs the HTTP mux, wiring in billing, ingestion, metrics, and
// health endpoints. Every /api/ route except /api/login sits behind the JWT
// middleware with a casbin permission check.
func NewMux(cfg config.Config, st storage.Storage, authSvc *auth.Service) *http.ServeMux {
	s := NewServer(cfg, st, authSvc)
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(r.Context()); err != nil {
			log.Printf("readyz: db ping failed: %v", err)
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	// API docs.
	mux.Handle("/swagger/", http.StripPrefix("/swagger", swagger.Handler()))

	// Login is the only unauthenticated API route.
	mux.HandleFunc("/api/login", s.handleLogin)

	// Roster, rates and payments.
	mux.Handle("/api/units", s.protect("units", "read", http.HandlerFunc(s.handleListUnits)))
	mux.Handle("/api/tenants/", s.protect("tenants", "write", http.HandlerFunc(s.handleAssignTenant)))
	mux.Handle("/api/balances/", s.protect("tenants", "write", http.HandlerFunc(s.handleSetBalance)))
	mux.Handle("/api/usage-costs", s.protect("rates", "read", http.HandlerFunc(s.handleListRates)))
	mux.Handle("/api/usage-costs/", s.protect("rates", "write", http.HandlerFunc(s.handleUpdateRate)))
	mux.Handle("/api/payments", s.protect("payments", "write", http.HandlerFunc(s.handleRecordPayment)))

	// Billing engine and ledger.
	mux.Handle("/api/process-bills", s.protect("bills", "read", http.HandlerFunc(s.handleProcessBills)))
	mux.Handle("/api/process-bills-from-data", s.protect("bills", "read", http.HandlerFunc(s.handleProcessBillsFromData)))
	mux.Handle("/api/update-balance-for-bill", s.protect("bills", "write", http.HandlerFunc(s.handleCommitBill)))
	mux.Handle("/api/update-balances-for-bills", s.protect("bills", "write", http.HandlerFunc(s.handleCommitBills)))

	// Usage store.
	mux.Handle("/api/auto-fetch-data", s.protect("usage", "write", http.HandlerFunc(s.handleAutoFetch)))
	mux.Handle("/api/water-usage-viewer", s.protect("usage", "read", http.HandlerFunc(s.handleUsageViewer)))
	mux.Handle("/api/water-usage/", s.protect("usage", "read", http.HandlerFunc(s.handleUsageRange)))

	// Email notification settings. Write-gated even for reads since the
	// stored config carries SMTP credentials.
	mux.Handle("/api/notification-config", s.protect("settings", "write", http.HandlerFunc(s.handleNotificationConfig)))
	mux.Handle("/api/notification-test", s.protect("settings", "write", http.HandlerFunc(s.handleNotificationTest)))

	// PDF output.
	mux.Handle("/api/generate-pdf", s.protect("bills", "read", http.HandlerFunc(s.handleGeneratePDF)))
	mux.Handle("/api/generate-all-pdfs", s.protect("bills", "read", http.HandlerFunc(s.handleGenerateAllPDFs)))

	return mux
}

func (s *Server) protect(obj, act string, h http.Handler) http.Handler {
	if s.auth == nil {
		return h
	}
	return s.auth.RequirePermission(obj, act, h)
}

// writeJSON encodes v to the response, logging encode failures.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	metrics.RequestErrorsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeJSON reads a request body into dst with unknown fields rejected.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.storage.Close()
}
