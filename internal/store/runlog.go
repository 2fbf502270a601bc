package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/halal-lens/filings-cli/internal/db"
)

// RunCounts holds the per-stage outcome counters of one crawl run.
type RunCounts struct {
	Fetched    int64 `json:"fetched"`
	Inserted   int64 `json:"inserted"`
	Updated    int64 `json:"updated"`
	Skipped    int64 `json:"skipped"`
	Snapshots  int64 `json:"snapshots"`
	PDFsStored int64 `json:"pdfs_stored"`
	Gaps       int64 `json:"gaps"`
}

// CrawlRun represents a row in filings.crawl_runs.
type CrawlRun struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	WindowFrom  time.Time  `json:"window_from"`
	WindowTo    time.Time  `json:"window_to"`
	Status      string     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Counts      RunCounts  `json:"counts"`
	Error       string     `json:"error,omitempty"`
}

// RunLog provides read/write access to the filings.crawl_runs table.
type RunLog struct {
	pool db.Pool
}

// NewRunLog creates a RunLog backed by the given connection pool.
func NewRunLog(pool db.Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Start records the beginning of a crawl run over a date window and returns
// its ID.
func (r *RunLog) Start(ctx context.Context, source string, from, to time.Time) (string, error) {
	id := uuid.New().String()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO filings.crawl_runs (id, source, window_from, window_to, status, started_at)
		 VALUES ($1, $2, $3, $4, 'running', now())`,
		id, source, from, to,
	)
	if err != nil {
		return "", eris.Wrapf(err, "runlog: start run for %s", source)
	}
	return id, nil
}

// Complete marks a crawl run as successfully completed with its counters.
func (r *RunLog) Complete(ctx context.Context, runID string, counts RunCounts) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE filings.crawl_runs
		 SET status = 'complete', completed_at = now(),
		     fetched = $1, inserted = $2, updated = $3, skipped = $4,
		     snapshots = $5, pdfs_stored = $6, gaps = $7
		 WHERE id = $8`,
		counts.Fetched, counts.Inserted, counts.Updated, counts.Skipped,
		counts.Snapshots, counts.PDFsStored, counts.Gaps, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: complete run %s", runID)
	}
	return nil
}

// Fail marks a crawl run as failed with an error message.
func (r *RunLog) Fail(ctx context.Context, runID string, errMsg string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE filings.crawl_runs
		 SET status = 'failed', completed_at = now(), error = $1
		 WHERE id = $2`,
		errMsg, runID,
	)
	if err != nil {
		return eris.Wrapf(err, "runlog: fail run %s", runID)
	}
	return nil
}

const crawlRunColumns = `id, source, window_from, window_to, status, started_at, completed_at,
	 fetched, inserted, updated, skipped, snapshots, pdfs_stored, gaps, error`

// LastRun returns the most recent successfully completed run for a source.
// Returns nil if the source has never completed a run.
func (r *RunLog) LastRun(ctx context.Context, source string) (*CrawlRun, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+crawlRunColumns+`
		 FROM filings.crawl_runs
		 WHERE source = $1 AND status = 'complete'
		 ORDER BY started_at DESC LIMIT 1`,
		source,
	)
	run, err := scanCrawlRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "runlog: last run for %s", source)
	}
	return run, nil
}

// List returns the most recent crawl runs across all sources.
func (r *RunLog) List(ctx context.Context, limit int) ([]CrawlRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+crawlRunColumns+`
		 FROM filings.crawl_runs
		 ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "runlog: list runs")
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		run, err := scanCrawlRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "runlog: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanCrawlRun(row pgx.Row) (*CrawlRun, error) {
	var run CrawlRun
	var errStr *string
	err := row.Scan(
		&run.ID, &run.Source, &run.WindowFrom, &run.WindowTo, &run.Status,
		&run.StartedAt, &run.CompletedAt,
		&run.Counts.Fetched, &run.Counts.Inserted, &run.Counts.Updated,
		&run.Counts.Skipped, &run.Counts.Snapshots, &run.Counts.PDFsStored,
		&run.Counts.Gaps, &errStr,
	)
	if err != nil {
		return nil, err
	}
	if errStr != nil {
		run.Error = *errStr
	}
	return &run, nil
}
