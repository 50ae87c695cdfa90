package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// AlertConfig holds alerting configuration.
type AlertConfig struct {
	// WebhookURL is a generic webhook endpoint (Slack, Discord, or custom)
	WebhookURL string
	// WebhookType determines the payload format: "slack", "discord", or "generic"
	WebhookType string
	// Enabled controls whether alerts are sent
	Enabled bool
	// MinFailuresBeforeAlert is the threshold before sending alerts
	MinFailuresBeforeAlert int
	// Timeout for HTTP requests
	Timeout time.Duration
}

// DefaultAlertConfig returns config from environment variables.
func DefaultAlertConfig() AlertConfig {
	cfg := AlertConfig{
		WebhookURL:             os.Getenv("ALERT_WEBHOOK_URL"),
		WebhookType:            os.Getenv("ALERT_WEBHOOK_TYPE"),
		MinFailuresBeforeAlert: 1,
		Timeout:                10 * time.Second,
	}

	cfg.Enabled = cfg.WebhookURL != ""

	if cfg.WebhookType == "" {
		// Auto-detect from URL
		if strings.Contains(cfg.WebhookURL, "slack.com") {
			cfg.WebhookType = "slack"
		} else if strings.Contains(cfg.WebhookURL, "discord.com") {
			cfg.WebhookType = "discord"
		} else {
			cfg.WebhookType = "generic"
		}
	}

	if v := os.Getenv("ALERT_MIN_FAILURES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			cfg.MinFailuresBeforeAlert = n
		}
	}

	return cfg
}

// Alerter sends alerts to configured webhooks.
type Alerter struct {
	cfg    AlertConfig
	client *http.Client
}

// NewAlerter creates a new alerter instance.
func NewAlerter(cfg AlertConfig) *Alerter {
	return &Alerter{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// IngestAlert describes the outcome of one usage ingestion batch.
type IngestAlert struct {
	JobName       string
	BatchID       string
	FilesTotal    int
	FilesFailed   int
	SamplesStored int
	Duration      time.Duration
	Failures      []SourceFailure
	Timestamp     time.Time
}

// SourceFailure contains details about a failed usage source or file.
type SourceFailure struct {
	Source string `json:"source"`
	File   string `json:"file,omitempty"`
	Error  string `json:"error"`
}

// SendIngestAlert sends an alert about an ingestion batch with failures.
func (a *Alerter) SendIngestAlert(ctx context.Context, alert IngestAlert) error {
	if !a.cfg.Enabled {
		log.Printf("alerting: alerts disabled, skipping")
		return nil
	}

	if alert.FilesFailed < a.cfg.MinFailuresBeforeAlert {
		log.Printf("alerting: %d failures below threshold (%d), skipping",
			alert.FilesFailed, a.cfg.MinFailuresBeforeAlert)
		return nil
	}

	var payload []byte
	var err error

	switch a.cfg.WebhookType {
	case "slack":
		payload, err = a.buildSlackPayload(alert)
	case "discord":
		payload, err = a.buildDiscordPayload(alert)
	default:
		payload, err = a.buildGenericPayload(alert)
	}

	if err != nil {
		return fmt.Errorf("build payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	log.Printf("alerting: sent alert for %d failed sources", alert.FilesFailed)
	return nil
}

func (a *Alerter) buildSlackPayload(alert IngestAlert) ([]byte, error) {
	var failedList strings.Builder
	for _, f := range alert.Failures {
		failedList.WriteString(fmt.Sprintf("• *%s* %s: %s\n", f.Source, f.File, f.Error))
	}

	emoji := ":warning:"
	if alert.FilesFailed == alert.FilesTotal && alert.FilesTotal > 0 {
		emoji = ":x:"
	}

	payload := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]string{
					"type": "plain_text",
					"text": fmt.Sprintf("%s Usage Ingestion Alert: %s", emoji, alert.JobName),
				},
			},
			{
				"type": "section",
				"fields": []map[string]string{
					{"type": "mrkdwn", "text": fmt.Sprintf("*Status:*\n%d/%d files failed", alert.FilesFailed, alert.FilesTotal)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Duration:*\n%s", alert.Duration.Round(time.Millisecond))},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Samples Stored:*\n%d", alert.SamplesStored)},
					{"type": "mrkdwn", "text": fmt.Sprintf("*Timestamp:*\n%s", alert.Timestamp.Format(time.RFC3339))},
				},
			},
			{
				"type": "section",
				"text": map[string]string{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*Failures:*\n%s", failedList.String()),
				},
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildDiscordPayload(alert IngestAlert) ([]byte, error) {
	var failedList strings.Builder
	for _, f := range alert.Failures {
		failedList.WriteString(fmt.Sprintf("• **%s** %s: %s\n", f.Source, f.File, f.Error))
	}

	color := 16776960 // Yellow
	if alert.FilesFailed == alert.FilesTotal && alert.FilesTotal > 0 {
		color = 16711680 // Red
	}

	payload := map[string]interface{}{
		"embeds": []map[string]interface{}{
			{
				"title":       fmt.Sprintf("Usage Ingestion Alert: %s", alert.JobName),
				"description": fmt.Sprintf("%d/%d files failed", alert.FilesFailed, alert.FilesTotal),
				"color":       color,
				"fields": []map[string]interface{}{
					{"name": "Samples Stored", "value": fmt.Sprintf("%d", alert.SamplesStored), "inline": true},
					{"name": "Failed", "value": fmt.Sprintf("%d", alert.FilesFailed), "inline": true},
					{"name": "Duration", "value": alert.Duration.Round(time.Millisecond).String(), "inline": true},
					{"name": "Failures", "value": failedList.String(), "inline": false},
				},
				"timestamp": alert.Timestamp.Format(time.RFC3339),
			},
		},
	}

	return json.Marshal(payload)
}

func (a *Alerter) buildGenericPayload(alert IngestAlert) ([]byte, error) {
	payload := map[string]interface{}{
		"alert_type":     "ingest_batch_failure",
		"job_name":       alert.JobName,
		"batch_id":       alert.BatchID,
		"files_total":    alert.FilesTotal,
		"files_failed":   alert.FilesFailed,
		"samples_stored": alert.SamplesStored,
		"duration_ms":    alert.Duration.Milliseconds(),
		"timestamp":      alert.Timestamp.Format(time.RFC3339),
		"failures":       alert.Failures,
	}

	return json.Marshal(payload)
}
