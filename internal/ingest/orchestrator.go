package ingest

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/gdprop/waterbill/internal/billing"
	"github.com/gdprop/waterbill/internal/metrics"
	"github.com/gdprop/waterbill/internal/storage"
	"github.com/google/uuid"
)

// RetentionDays is the rolling window for stored usage samples. Samples
// strictly older than today minus this many days are purged after every
// ingestion batch; a sample exactly at the boundary is retained.
const RetentionDays = 65

// SourceFailure records why one source (or one of its files) was skipped.
type SourceFailure struct {
	Source string `json:"source"`
	File   string `json:"file,omitempty"`
	Error  string `json:"error"`
}

// PropertyResult reports per-property ingestion outcome.
type PropertyResult struct {
	Property     string `json:"property"`
	File         string `json:"file"`
	SamplesFound int    `json:"samples_found"`
	Stored       int    `json:"stored"`
}

// Summary is the aggregate outcome of one ingestion batch. Partial success
// is reported here, never thrown: one bad property must not block the rest.
type Summary struct {
	BatchID        string           `json:"batch_id"`
	FilesProcessed int              `json:"files_processed"`
	SamplesStored  int              `json:"samples_stored"`
	Purged         int64            `json:"purged"`
	RealizedStart  string           `json:"realized_start,omitempty"`
	RealizedEnd    string           `json:"realized_end,omitempty"`
	Period         *billing.Period  `json:"-"`
	Properties     []PropertyResult `json:"properties"`
	Failures       []SourceFailure  `json:"failures"`
	Warnings       []string         `json:"warnings,omitempty"`
}

// Failed reports whether any source failed outright.
func (s *Summary) Failed() bool { return len(s.Failures) > 0 }

// Orchestrator drives sources through the CSV parser and lands samples in
// storage. Re-running a window is safe: upserts are last-write-wins on
// (unit, date), so repeated batches never duplicate samples.
type Orchestrator struct {
	store storage.Storage
	// SourceTimeout bounds each source fetch; a timeout is a per-source
	// failure, not a batch abort.
	SourceTimeout time.Duration
	// Now is the clock, overridable in tests.
	Now func() time.Time
}

func NewOrchestrator(st storage.Storage) *Orchestrator {
	return &Orchestrator{
		store:         st,
		SourceTimeout: 2 * time.Minute,
		Now:           time.Now,
	}
}

// Window returns the target ingestion date range: the 65 days ending
// yesterday. Today is never included; yesterday is the most recent day with
// complete data.
func (o *Orchestrator) Window() (start, end string) {
	yesterday := o.Now().AddDate(0, 0, -1)
	first := yesterday.AddDate(0, 0, -(RetentionDays - 1))
	return first.Format("2006-01-02"), yesterday.Format("2006-01-02")
}

// cutoff is the purge boundary: samples dated strictly before it go away.
func (o *Orchestrator) cutoff() string {
	return o.Now().AddDate(0, 0, -RetentionDays).Format("2006-01-02")
}

// Run processes every source independently, stores daily samples that fall
// inside the target window, then purges the rolling window. Source and file
// failures are collected in the summary; only a storage-level purge error
// is returned.
func (o *Orchestrator) Run(ctx context.Context, sources []Source) (*Summary, error) {
	windowStart, windowEnd := o.Window()
	summary := &Summary{BatchID: uuid.New().String()}

	units, err := o.unitIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("load units: %w", err)
	}

	for _, src := range sources {
		files, err := fetchWithTimeout(ctx, src, o.SourceTimeout)
		if err != nil {
			log.Printf("ingest: source %s failed: %v", src.Name(), err)
			summary.Failures = append(summary.Failures, SourceFailure{
				Source: src.Name(), Error: err.Error(),
			})
			metrics.IngestFailuresTotal.WithLabelValues(src.Name()).Inc()
			continue
		}
		for _, f := range files {
			if err := o.processFile(ctx, f, units, windowStart, windowEnd, summary); err != nil {
				log.Printf("ingest: file %s failed: %v", f.Name, err)
				summary.Failures = append(summary.Failures, SourceFailure{
					Source: src.Name(), File: f.Name, Error: err.Error(),
				})
				metrics.IngestFailuresTotal.WithLabelValues(src.Name()).Inc()
			}
		}
	}

	purged, err := o.store.PurgeUsage(ctx, o.cutoff())
	if err != nil {
		return summary, fmt.Errorf("purge usage: %w", err)
	}
	summary.Purged = purged

	log.Printf("ingest: batch %s done: files=%d stored=%d purged=%d failures=%d range=%s..%s",
		summary.BatchID, summary.FilesProcessed, summary.SamplesStored, purged,
		len(summary.Failures), summary.RealizedStart, summary.RealizedEnd)
	return summary, nil
}

// RunDir is the one-shot sample-directory ingestion entry point.
func (o *Orchestrator) RunDir(ctx context.Context, dir string) (*Summary, error) {
	return o.Run(ctx, []Source{DirSource{Dir: dir}})
}

func (o *Orchestrator) processFile(ctx context.Context, f NamedFile, units map[string]uint, windowStart, windowEnd string, summary *Summary) error {
	prop, ok := MatchProperty(f.Name)
	if !ok {
		return fmt.Errorf("filename %q matches no configured property", f.Name)
	}

	res, err := ParseCSV(bytes.NewReader(f.Data), prop)
	if err != nil {
		return fmt.Errorf("parse %s: %w", f.Name, err)
	}
	summary.FilesProcessed++
	summary.Warnings = append(summary.Warnings, res.Warnings...)
	if res.Period != nil && summary.Period == nil {
		summary.Period = res.Period
	}

	stored := 0
	for _, s := range res.Daily {
		if s.Date < windowStart || s.Date > windowEnd {
			continue
		}
		unitID, ok := units[s.UnitNumber]
		if !ok {
			summary.Warnings = append(summary.Warnings,
				fmt.Sprintf("unit not found: %s - %s", prop.Name, s.UnitNumber))
			continue
		}
		if err := o.store.UpsertUsage(ctx, unitID, s.Date, s.Gallons); err != nil {
			return fmt.Errorf("store %s %s: %w", s.UnitNumber, s.Date, err)
		}
		stored++
		summary.SamplesStored++
		if summary.RealizedStart == "" || s.Date < summary.RealizedStart {
			summary.RealizedStart = s.Date
		}
		if summary.RealizedEnd == "" || s.Date > summary.RealizedEnd {
			summary.RealizedEnd = s.Date
		}
	}
	metrics.IngestSamplesStored.Add(float64(stored))

	summary.Properties = append(summary.Properties, PropertyResult{
		Property:     prop.Name,
		File:         f.Name,
		SamplesFound: len(res.Daily),
		Stored:       stored,
	})
	return nil
}

func (o *Orchestrator) unitIndex(ctx context.Context) (map[string]uint, error) {
	rows, err := o.store.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	idx := make(map[string]uint, len(rows))
	for _, u := range rows {
		idx[u.UnitNumber] = u.ID
	}
	return idx, nil
}

// ViewerSnapshot is the dense unit x date matrix for the most recent
// windowDays days: every known unit appears, missing cells are zero, dates
// newest first. Pure read.
type ViewerSnapshot struct {
	Dates  []string                      `json:"dates"`
	Units  []string                      `json:"units"`
	Matrix map[string]map[string]float64 `json:"dataMatrix"`
}

// Viewer builds the snapshot for display and debugging.
func (o *Orchestrator) Viewer(ctx context.Context, windowDays int) (*ViewerSnapshot, error) {
	end := o.Now().Format("2006-01-02")
	start := o.Now().AddDate(0, 0, -windowDays).Format("2006-01-02")

	units, err := o.store.ListUnits(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := o.store.QueryUsage(ctx, start, end)
	if err != nil {
		return nil, err
	}

	snap := &ViewerSnapshot{Matrix: make(map[string]map[string]float64)}
	// The unit axis comes from the roster, not the samples, so units with no
	// usage in the window still show up as rows of zeros.
	for _, u := range units {
		snap.Units = append(snap.Units, u.Property+"-"+u.UnitNumber)
	}

	seenDate := make(map[string]bool)
	type cell struct{ date, unit string }
	values := make(map[cell]float64)

	for _, r := range rows {
		if !seenDate[r.Date] {
			seenDate[r.Date] = true
			snap.Dates = append(snap.Dates, r.Date)
		}
		values[cell{r.Date, r.Property + "-" + r.UnitNumber}] = r.Gallons
	}

	sort.Sort(sort.Reverse(sort.StringSlice(snap.Dates)))
	sort.Strings(snap.Units)

	for _, d := range snap.Dates {
		snap.Matrix[d] = make(map[string]float64, len(snap.Units))
		for _, u := range snap.Units {
			snap.Matrix[d][u] = values[cell{d, u}]
		}
	}
	return snap, nil
}
