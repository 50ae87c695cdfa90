package cron

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gdprop/waterbill/internal/alerting"
	"github.com/gdprop/waterbill/internal/config"
	"github.com/gdprop/waterbill/internal/ingest"
	"github.com/gdprop/waterbill/internal/metrics"
	"github.com/gdprop/waterbill/internal/notification"
	"github.com/gdprop/waterbill/internal/storage"
	"github.com/robfig/cron/v3"
)

// intervalSettingKey is the settings row the operator can edit to reschedule
// ingestion without restarting the worker.
const intervalSettingKey = "ingest_interval_seconds"

const jobName = "ingest_usage"

// lockKey guards the ingestion job across worker replicas.
const lockKey int64 = 748

// Run starts the ingestion worker. It periodically pulls usage CSVs from the
// configured sample data directory, lands them in storage, prunes samples
// past the retention window, and records the outcome. A Postgres advisory
// lock ensures only one replica runs the job at a time.
func Run(ctx context.Context, cfg config.Config, st storage.Storage) error {
	orch := ingest.NewOrchestrator(st)
	notifier := notification.NewService(st)
	alerter := alerting.NewAlerter(alerting.DefaultAlertConfig())

	// Initial interval from env or default.
	// Can be integer seconds or a cron expression.
	intervalSetting := strconv.Itoa(cfg.CronIntervalSeconds)

	// Check DB for override
	if val, err := st.GetSetting(ctx, intervalSettingKey); err == nil && val != "" {
		intervalSetting = val
	}

	// Control loop ticker (check config and run time)
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	getNextRun := func(setting string, lastRun time.Time) time.Time {
		// Try integer seconds
		if v, err := strconv.Atoi(setting); err == nil && v > 0 {
			return lastRun.Add(time.Duration(v) * time.Second)
		}
		// Try cron expression
		if sched, err := cron.ParseStandard(setting); err == nil {
			return sched.Next(lastRun)
		}
		// Fallback to daily
		return lastRun.Add(24 * time.Hour)
	}

	// If starting fresh, run immediately, then schedule next
	nextRun := time.Now()

	log.Printf("cron worker starting, initial setting=%q dir=%s", intervalSetting, cfg.SampleDataDir)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// 1. Check for config update
			if val, err := st.GetSetting(ctx, intervalSettingKey); err == nil && val != "" {
				if val != intervalSetting {
					log.Printf("cron: interval updated from %q to %q", intervalSetting, val)
					intervalSetting = val
					nextRun = getNextRun(intervalSetting, time.Now())
				}
			}

			// 2. Check if it's time to run
			if time.Now().Before(nextRun) {
				continue
			}

			started := time.Now()

			ok, err := st.AcquireAdvisoryLock(ctx, lockKey)
			if err != nil {
				log.Printf("cron: acquire advisory lock failed: %v", err)
				metrics.UpdateJobMetrics(jobName, started, err)
				nextRun = getNextRun(intervalSetting, time.Now())
				continue
			}
			if !ok {
				// Another worker is running this job.
				log.Printf("cron: advisory lock held by another worker, skipping run")
				nextRun = getNextRun(intervalSetting, time.Now())
				continue
			}

			// We hold the lock for the duration of the job.
			var summary *ingest.Summary
			var runErr error
			func() {
				defer func() {
					if _, err := st.ReleaseAdvisoryLock(ctx, lockKey); err != nil {
						log.Printf("cron: release advisory lock failed: %v", err)
					}
				}()
				summary, runErr = orch.RunDir(ctx, cfg.SampleDataDir)
			}()

			if runErr == nil && summary != nil && summary.Failed() {
				runErr = errors.New("ingestion batch had source failures")
			}

			// Record metrics & job row.
			metrics.UpdateJobMetrics(jobName, started, runErr)
			dur := time.Since(started)
			errMsg := ""
			success := runErr == nil
			if runErr != nil {
				errMsg = runErr.Error()
			}
			if err := st.UpdateScheduledJob(ctx, jobName, started, dur, success, errMsg); err != nil {
				log.Printf("cron: update scheduled_jobs failed: %v", err)
			}

			if summary != nil {
				if err := notifier.SendIngestSummary(ctx, summary); err != nil {
					log.Printf("cron: ingest summary email failed: %v", err)
				}
				if summary.Failed() {
					sendFailureAlert(ctx, alerter, summary, started, dur)
				}
			}

			if runErr != nil {
				log.Printf("cron: job %s completed with error: %v (duration=%s)", jobName, runErr, dur)
			} else {
				log.Printf("cron: job %s completed successfully (duration=%s)", jobName, dur)
			}

			// Schedule next run
			nextRun = getNextRun(intervalSetting, time.Now())
		}
	}
}

func sendFailureAlert(ctx context.Context, alerter *alerting.Alerter, summary *ingest.Summary, started time.Time, dur time.Duration) {
	failures := make([]alerting.SourceFailure, 0, len(summary.Failures))
	for _, f := range summary.Failures {
		failures = append(failures, alerting.SourceFailure{Source: f.Source, File: f.File, Error: f.Error})
	}
	alert := alerting.IngestAlert{
		JobName:       jobName,
		BatchID:       summary.BatchID,
		FilesTotal:    summary.FilesProcessed + len(summary.Failures),
		FilesFailed:   len(summary.Failures),
		SamplesStored: summary.SamplesStored,
		Duration:      dur,
		Failures:      failures,
		Timestamp:     started,
	}
	if err := alerter.SendIngestAlert(ctx, alert); err != nil {
		log.Printf("cron: webhook alert failed: %v", err)
	}
}
