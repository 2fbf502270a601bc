package pipeline

import (
	"time"

	"github.com/halal-lens/filings-cli/internal/source"
	"github.com/halal-lens/filings-cli/internal/store"
)

// SourceReport holds the per-stage counts for one source's crawl.
type SourceReport struct {
	Source           string        `json:"source"`
	RunID            string        `json:"run_id,omitempty"`
	Fetched          int           `json:"fetched"`
	Inserted         int           `json:"inserted"`
	Updated          int           `json:"updated"`
	Skipped          int           `json:"skipped"`
	Financial        int           `json:"financial"`
	Snapshots        int           `json:"snapshots"`
	SnapshotsSkipped int           `json:"snapshots_skipped,omitempty"`
	PDFsStored       int           `json:"pdfs_stored"`
	PDFsMissing      int           `json:"pdfs_missing"`
	PDFsFailed       int           `json:"pdfs_failed"`
	Gaps             int           `json:"gaps"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
}

// Failed reports whether this source's crawl ended in an error.
func (s SourceReport) Failed() bool {
	return s.Error != ""
}

// runCounts shapes the report for the crawl_runs row.
func (s SourceReport) runCounts() store.RunCounts {
	return store.RunCounts{
		Fetched:    int64(s.Fetched),
		Inserted:   int64(s.Inserted),
		Updated:    int64(s.Updated),
		Skipped:    int64(s.Skipped),
		Snapshots:  int64(s.Snapshots),
		PDFsStored: int64(s.PDFsStored),
		Gaps:       int64(s.Gaps),
	}
}

// Report aggregates every source's outcome for one crawl invocation.
type Report struct {
	Window  source.Window  `json:"window"`
	Sources []SourceReport `json:"sources"`
}

// Failed returns the names of sources whose crawl ended in an error.
func (r *Report) Failed() []string {
	var failed []string
	for _, s := range r.Sources {
		if s.Failed() {
			failed = append(failed, s.Source)
		}
	}
	return failed
}

// Totals sums the per-source counts into one line.
func (r *Report) Totals() SourceReport {
	total := SourceReport{Source: "total"}
	for _, s := range r.Sources {
		total.Fetched += s.Fetched
		total.Inserted += s.Inserted
		total.Updated += s.Updated
		total.Skipped += s.Skipped
		total.Financial += s.Financial
		total.Snapshots += s.Snapshots
		total.SnapshotsSkipped += s.SnapshotsSkipped
		total.PDFsStored += s.PDFsStored
		total.PDFsMissing += s.PDFsMissing
		total.PDFsFailed += s.PDFsFailed
		total.Gaps += s.Gaps
		if s.Duration > total.Duration {
			total.Duration = s.Duration
		}
	}
	return total
}
