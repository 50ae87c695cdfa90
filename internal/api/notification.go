package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gdprop/waterbill/internal/metrics"
	"github.com/gdprop/waterbill/internal/storage"
)

// handleNotificationConfig reads or replaces the email settings row the
// ingestion digest is sent with.
func (s *Server) handleNotificationConfig(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer metrics.ObserveRequest("/api/notification-config", start)

	switch r.Method {
	case http.MethodGet:
		cfg, err := s.notifier.GetConfig(r.Context())
		if err != nil {
			log.Printf("api: get email config failed: %v", err)
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		if cfg == nil {
			cfg = &storage.EmailConfig{}
		}
		writeJSON(w, http.StatusOK, cfg)
	case http.MethodPut:
		var req storage.EmailConfig
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := s.notifier.SaveConfig(r.Context(), req); err != nil {
			log.Printf("api: save email config failed: %v", err)
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	default:
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type notificationTestRequest struct {
	Config storage.EmailConfig `json:"config"`
	To     string              `json:"to"`
}

// handleNotificationTest sends a test email with a candidate config without
// saving it.
func (s *Server) handleNotificationTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req notificationTestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" {
		writeError(w, r, http.StatusBadRequest, "to is required")
		return
	}
	if err := s.notifier.TestConfig(r.Context(), req.Config, req.To); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
