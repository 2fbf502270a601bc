// Package pipeline orchestrates a crawl: fetch each source's window, classify
// and persist announcements, resolve attachments, and extract financial
// snapshots, with one run log entry per source.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/halal-lens/filings-cli/internal/classify"
	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/pdfstore"
	"github.com/halal-lens/filings-cli/internal/source"
	"github.com/halal-lens/filings-cli/internal/store"
)

// AttachmentResolver fetches, validates, and stores a filing's PDF.
// *pdfstore.Resolver implements it.
type AttachmentResolver interface {
	Resolve(ctx context.Context, raw model.RawAnnouncement, conf model.Confidence) pdfstore.Outcome
}

// Config selects what a crawl covers.
type Config struct {
	Window  source.Window
	Query   source.Query
	Sources []string // empty = all registered sources
}

// Pipeline wires sources to the store. Sources run concurrently; traffic to
// one upstream stays serialized inside its session manager.
type Pipeline struct {
	registry *source.Registry
	store    *store.Store
	runlog   *store.RunLog
	resolver AttachmentResolver
	rules    *classify.Rules
	log      *zap.Logger
}

// New creates a Pipeline. resolver may be nil, in which case attachments are
// left unresolved (announcements and snapshots still persist).
func New(reg *source.Registry, st *store.Store, rl *store.RunLog, resolver AttachmentResolver, rules *classify.Rules) *Pipeline {
	if rules == nil {
		rules = classify.Default()
	}
	return &Pipeline{
		registry: reg,
		store:    st,
		runlog:   rl,
		resolver: resolver,
		rules:    rules,
		log:      zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run executes the crawl over every selected source and always returns a
// report. A source failing is recorded in its report entry, not returned as
// an error: partial results across sources are valid.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (*Report, error) {
	srcs, err := p.registry.Select(cfg.Sources)
	if err != nil {
		return nil, err
	}
	if len(srcs) == 0 {
		return nil, eris.New("pipeline: no sources registered")
	}

	p.log.Info("starting crawl",
		zap.Time("from", cfg.Window.From),
		zap.Time("to", cfg.Window.To),
		zap.Int("sources", len(srcs)))

	reports := make([]SourceReport, len(srcs))
	var g errgroup.Group
	g.SetLimit(len(srcs))
	for i, src := range srcs {
		g.Go(func() error {
			reports[i] = p.runSource(ctx, src, cfg)
			return nil
		})
	}
	// Workers never return errors; per-source failures live in the report.
	_ = g.Wait()

	return &Report{Window: cfg.Window, Sources: reports}, nil
}

// runSource executes the fetch-classify-persist sequence for one source.
// Snapshot writes strictly follow their parent announcement writes.
func (p *Pipeline) runSource(ctx context.Context, src source.Source, cfg Config) SourceReport {
	rep := SourceReport{Source: src.Name()}
	start := time.Now()
	defer func() { rep.Duration = time.Since(start) }()
	log := p.log.With(zap.String("source", src.Name()))

	runID, err := p.runlog.Start(ctx, src.Name(), cfg.Window.From, cfg.Window.To)
	if err != nil {
		rep.Error = err.Error()
		rep.Gaps = 1
		log.Error("run log start failed", zap.Error(err))
		return rep
	}
	rep.RunID = runID

	res, err := src.Fetch(ctx, cfg.Window, cfg.Query)
	if err != nil {
		return p.failRun(ctx, log, rep, runID, eris.Wrapf(err, "pipeline: fetch %s", src.Name()))
	}
	rep.Fetched = len(res.Announcements)
	rep.Gaps = len(res.Gaps)

	anns := make([]model.Announcement, 0, len(res.Announcements))
	for _, raw := range res.Announcements {
		anns = append(anns, p.mapAnnouncement(raw))
	}

	stats, err := p.store.UpsertAnnouncements(ctx, anns)
	if err != nil {
		return p.failRun(ctx, log, rep, runID, err)
	}
	rep.Inserted = stats.Inserted
	rep.Updated = stats.Updated
	rep.Skipped = stats.Skipped

	var snaps []model.FinancialSnapshot
	for i, a := range anns {
		if !a.Financial || !a.HasKey() {
			continue
		}
		rep.Financial++
		raw := res.Announcements[i]

		p.resolveAttachment(ctx, log, &rep, raw, a)

		facts := p.rules.Extract(raw.Headline + " " + raw.Body)
		if facts.Empty() {
			continue
		}
		snaps = append(snaps, snapshotFromFacts(a, facts))
	}

	snapStats, err := p.store.UpsertSnapshots(ctx, snaps)
	if err != nil {
		return p.failRun(ctx, log, rep, runID, err)
	}
	rep.Snapshots = snapStats.Inserted + snapStats.Updated
	rep.SnapshotsSkipped = snapStats.Skipped

	if err := p.runlog.Complete(ctx, runID, rep.runCounts()); err != nil {
		log.Warn("run log completion failed", zap.Error(err))
	}

	log.Info("source crawl complete",
		zap.Int("fetched", rep.Fetched),
		zap.Int("inserted", rep.Inserted),
		zap.Int("updated", rep.Updated),
		zap.Int("skipped", rep.Skipped),
		zap.Int("financial", rep.Financial),
		zap.Int("snapshots", rep.Snapshots),
		zap.Int("pdfs_stored", rep.PDFsStored),
		zap.Int("gaps", rep.Gaps))
	return rep
}

// resolveAttachment runs the PDF resolution for one financial filing and
// patches the outcome onto its announcement row. Patch failures are logged,
// never fatal: the announcement itself is already persisted.
func (p *Pipeline) resolveAttachment(ctx context.Context, log *zap.Logger, rep *SourceReport, raw model.RawAnnouncement, a model.Announcement) {
	if p.resolver == nil {
		return
	}

	outcome := p.resolver.Resolve(ctx, raw, a.Confidence)
	var stored bool
	switch outcome.Status {
	case model.AttachmentStored:
		rep.PDFsStored++
		stored = true
	case model.AttachmentMissing:
		rep.PDFsMissing++
	case model.AttachmentFailed:
		rep.PDFsFailed++
	case model.AttachmentNone:
		return
	}

	if err := p.store.SetAttachment(ctx, a.Key(), outcome.Path, stored); err != nil {
		log.Warn("attachment patch failed",
			zap.String("symbol", a.Symbol),
			zap.Error(err))
	}
}

// failRun records a failed run entry and closes out the source report. Any
// failure leaves at least one gap: the window cannot be considered covered.
func (p *Pipeline) failRun(ctx context.Context, log *zap.Logger, rep SourceReport, runID string, err error) SourceReport {
	rep.Error = err.Error()
	if rep.Gaps == 0 {
		rep.Gaps = 1
	}
	log.Error("source crawl failed", zap.Error(err))
	if ferr := p.runlog.Fail(ctx, runID, err.Error()); ferr != nil {
		log.Warn("run log failure update failed", zap.Error(ferr))
	}
	return rep
}
