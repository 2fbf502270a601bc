package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/pdfstore"
	"github.com/halal-lens/filings-cli/internal/pipeline"
	"github.com/halal-lens/filings-cli/internal/resilience"
	"github.com/halal-lens/filings-cli/internal/session"
	"github.com/halal-lens/filings-cli/internal/source"
	"github.com/halal-lens/filings-cli/internal/store"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Fetch, classify, and persist exchange filings",
}

var crawlRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl a date window on the enabled exchanges",
	Long: `Crawl a date window on the enabled exchanges.

Fetches announcements, classifies financial-result filings, extracts
reporting-period facts into snapshots, and archives result PDFs. Sources
run concurrently; one exchange failing never stops the other. Every run
is recorded in the crawl log with its counters.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("crawl"); err != nil {
			return err
		}

		win, err := parseCrawlWindow(cmd)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		// Ensure migrations are current.
		if err := store.Migrate(ctx, st.Pool()); err != nil {
			return eris.Wrap(err, "crawl run: migrate")
		}

		reg := buildRegistry()
		if len(reg.AllNames()) == 0 {
			return eris.New("crawl run: no sources enabled")
		}

		resolver, err := buildResolver(ctx, cmd)
		if err != nil {
			return err
		}

		symbol, _ := cmd.Flags().GetString("symbol")
		category, _ := cmd.Flags().GetString("category")
		sources, _ := cmd.Flags().GetStringSlice("sources")

		zap.L().Info("starting crawl",
			zap.String("from", win.From.Format("2006-01-02")),
			zap.String("to", win.To.Format("2006-01-02")),
			zap.Strings("sources", sources),
			zap.String("symbol", symbol),
		)

		p := pipeline.New(reg, st, store.NewRunLog(st.Pool()), resolver, nil)
		report, err := p.Run(ctx, pipeline.Config{
			Window:  win,
			Query:   source.Query{Symbol: symbol, Category: category},
			Sources: sources,
		})
		if err != nil {
			return eris.Wrap(err, "crawl run")
		}

		formatCrawlReport(os.Stdout, report)

		if failed := report.Failed(); len(failed) == len(report.Sources) {
			return eris.Errorf("crawl run: all sources failed: %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

var crawlStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the crawl run log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("crawl"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := store.NewRunLog(st.Pool()).List(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "crawl status")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No crawl runs found. Run 'filings crawl run' first.")
			return nil
		}

		formatRunEntries(os.Stdout, runs)
		return nil
	},
}

func init() {
	crawlRunCmd.Flags().String("from", "", "window start (YYYY-MM-DD, default derived from --days)")
	crawlRunCmd.Flags().String("to", "", "window end (YYYY-MM-DD, default today)")
	crawlRunCmd.Flags().Int("days", 7, "window length in days when --from is not given")
	crawlRunCmd.Flags().StringSlice("sources", nil, "sources to crawl (default all enabled)")
	crawlRunCmd.Flags().String("symbol", "", "restrict to one company (BSE scrip code or NSE ticker)")
	crawlRunCmd.Flags().String("category", "", "restrict to one exchange category")
	crawlRunCmd.Flags().Bool("no-pdfs", false, "skip attachment download and storage")

	crawlStatusCmd.Flags().Int("limit", 20, "max number of runs to display")

	crawlCmd.AddCommand(crawlRunCmd)
	crawlCmd.AddCommand(crawlStatusCmd)
	rootCmd.AddCommand(crawlCmd)
}

// parseCrawlWindow resolves the --from/--to/--days flags into a date window.
func parseCrawlWindow(cmd *cobra.Command) (source.Window, error) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")
	days, _ := cmd.Flags().GetInt("days")

	to := time.Now().UTC().Truncate(24 * time.Hour)
	if toStr != "" {
		t, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			return source.Window{}, eris.Wrapf(err, "crawl run: parse --to %q", toStr)
		}
		to = t
	}

	from := to
	if fromStr != "" {
		t, err := time.Parse("2006-01-02", fromStr)
		if err != nil {
			return source.Window{}, eris.Wrapf(err, "crawl run: parse --from %q", fromStr)
		}
		from = t
	} else if days > 1 {
		from = to.AddDate(0, 0, -(days - 1))
	}

	if from.After(to) {
		return source.Window{}, eris.Errorf("crawl run: window start %s is after end %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return source.Window{From: from, To: to}, nil
}

// buildPolicy derives the shared backoff policy from config.
func buildPolicy() resilience.Policy {
	return resilience.FromConfig(cfg.Retry.MaxAttempts, cfg.Retry.TransientBaseMs,
		cfg.Retry.BlockedBaseMs, cfg.Retry.MaxDelayMs)
}

// buildRegistry constructs the enabled sources, each on its own throttled
// session. BSE answers without cookies; NSE needs a homepage visit to pick
// up its bot-check cookies and an aged session rebuilt from scratch.
func buildRegistry() *source.Registry {
	reg := source.NewRegistry()
	policy := buildPolicy()

	if cfg.Sources.BSE.Enabled {
		b := cfg.Sources.BSE
		sess := session.New(session.Config{
			Name:        source.SourceBSE,
			BaseURL:     b.SiteBase,
			Referer:     b.SiteBase + "/corporates/ann.html",
			MinInterval: time.Duration(b.MinIntervalMs) * time.Millisecond,
			Policy:      policy,
		})
		reg.Register(source.NewBSE(sess, source.BSEConfig{
			APIBase:         b.APIBase,
			ChunkDays:       b.ChunkDays,
			ChunkDelay:      time.Duration(b.ChunkDelayMs) * time.Millisecond,
			PageSize:        b.PageSize,
			DefaultCategory: b.Category,
		}))
	}

	if cfg.Sources.NSE.Enabled {
		n := cfg.Sources.NSE
		sess := session.New(session.Config{
			Name:        source.SourceNSE,
			BaseURL:     n.SiteBase,
			WarmupPaths: []string{"/"},
			Referer:     n.SiteBase + "/companies-listing/corporate-filings-announcements",
			MinInterval: time.Duration(n.MinIntervalMs) * time.Millisecond,
			MaxLifetime: time.Duration(n.SessionLifetimeSecs) * time.Second,
			Policy:      policy,
		})
		reg.Register(source.NewNSE(sess, source.NSEConfig{
			APIBase:         n.APIBase,
			ChunkDays:       n.ChunkDays,
			ChunkDelay:      time.Duration(n.ChunkDelayMs) * time.Millisecond,
			DefaultCategory: n.Category,
		}))
	}

	return reg
}

// The PDF host tolerates about one download per second before blocking.
const pdfSessionInterval = time.Second

// buildResolver wires the attachment resolver, or returns nil when PDFs are
// switched off or no object-store credentials are configured.
func buildResolver(ctx context.Context, cmd *cobra.Command) (pipeline.AttachmentResolver, error) {
	if noPDFs, _ := cmd.Flags().GetBool("no-pdfs"); noPDFs {
		return nil, nil
	}
	if !cfg.MinIO.HasCredentials() {
		zap.L().Info("attachment storage disabled, no object store credentials configured")
		return nil, nil
	}

	objStore, err := openObjectStore()
	if err != nil {
		return nil, err
	}
	if err := objStore.EnsureBucket(ctx); err != nil {
		return nil, eris.Wrap(err, "crawl run: ensure bucket")
	}

	sess := session.New(session.Config{
		Name:        "bse-pdf",
		BaseURL:     cfg.Sources.BSE.SiteBase,
		Referer:     cfg.Sources.BSE.SiteBase + "/corporates/ann.html",
		MinInterval: pdfSessionInterval,
		Policy:      buildPolicy(),
	})
	return pdfstore.NewResolver(objStore, sess, pdfstore.ResolverConfig{
		LiveURL:    cfg.Sources.BSE.AttachmentLiveURL,
		ArchiveURL: cfg.Sources.BSE.AttachmentArchiveURL,
	}), nil
}

// formatCrawlReport writes a per-source summary table, with a totals row
// when more than one source ran.
func formatCrawlReport(out io.Writer, rep *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tFETCHED\tINSERTED\tUPDATED\tFINANCIAL\tSNAPSHOTS\tPDFS\tGAPS\tDURATION\tERROR")

	writeRow := func(s pipeline.SourceReport) {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			s.Source, s.Fetched, s.Inserted, s.Updated, s.Financial,
			s.Snapshots, s.PDFsStored, s.Gaps,
			s.Duration.Round(time.Second), truncate(s.Error, 60))
	}

	for _, s := range rep.Sources {
		writeRow(s)
	}
	if len(rep.Sources) > 1 {
		writeRow(rep.Totals())
	}
	_ = w.Flush()
}

// formatRunEntries writes a tabular representation of crawl runs to w.
func formatRunEntries(out io.Writer, runs []store.CrawlRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tWINDOW\tSTATUS\tSTARTED\tDURATION\tFETCHED\tSNAPSHOTS\tPDFS\tGAPS\tERROR")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		window := r.WindowFrom.Format("2006-01-02") + ".." + r.WindowTo.Format("2006-01-02")

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			truncateID(r.ID),
			r.Source,
			window,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Counts.Fetched,
			r.Counts.Snapshots,
			r.Counts.PDFsStored,
			r.Counts.Gaps,
			truncate(r.Error, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
