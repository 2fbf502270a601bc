package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/pdfstore"
	"github.com/halal-lens/filings-cli/internal/source"
	"github.com/halal-lens/filings-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// Typed nils for argument matching against nullable columns.
var (
	nilStr  *string
	nilF64  *float64
	nilTime *time.Time
)

func strPtr(s string) *string { return &s }

type fakeSource struct {
	name   string
	result *source.Result
	err    error
	calls  int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context, _ source.Window, _ source.Query) (*source.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeResolver struct {
	outcomes map[string]pdfstore.Outcome
	calls    int
}

func (f *fakeResolver) Resolve(_ context.Context, raw model.RawAnnouncement, _ model.Confidence) pdfstore.Outcome {
	f.calls++
	if o, ok := f.outcomes[raw.Symbol]; ok {
		return o
	}
	return pdfstore.Outcome{Status: model.AttachmentNone}
}

func rawFixture(symbol, company, category, headline string, filed time.Time) model.RawAnnouncement {
	return model.RawAnnouncement{
		Source:      "bse",
		Symbol:      symbol,
		CompanyName: company,
		FilingDate:  filed,
		Category:    category,
		Headline:    headline,
		Raw:         json.RawMessage(fmt.Sprintf(`{"SCRIP_CD":%q}`, symbol)),
	}
}

func expectRunStart(mock pgxmock.PgxPoolIface, sourceName string, win source.Window) {
	mock.ExpectExec("INSERT INTO filings.crawl_runs").
		WithArgs(pgxmock.AnyArg(), sourceName, win.From, win.To).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
}

func expectAnnUpsert(mock pgxmock.PgxPoolIface, raw model.RawAnnouncement, conf string, financial bool) {
	mock.ExpectQuery(`INSERT INTO "filings"."announcements"`).
		WithArgs(raw.Source, raw.Symbol, raw.CompanyName, raw.FilingDate, raw.Category,
			raw.Headline, conf, financial, []byte(raw.Raw),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
}

func expectSnapUpsert(mock pgxmock.PgxPoolIface, raw model.RawAnnouncement, fyEnd *time.Time, quarter, audit *string) {
	mock.ExpectQuery("SELECT 1 FROM filings.announcements").
		WithArgs(raw.Source, raw.Symbol, raw.FilingDate).
		WillReturnRows(pgxmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(`INSERT INTO "filings"."financial_snapshots"`).
		WithArgs(raw.Source, raw.Symbol, raw.FilingDate, fyEnd, quarter, audit,
			nilF64, nilF64, nilF64, nilF64, nilF64, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
}

func expectAttachmentPatch(mock pgxmock.PgxPoolIface, raw model.RawAnnouncement, path *string, stored bool) {
	mock.ExpectExec("UPDATE filings.announcements").
		WithArgs(path, stored, raw.Source, raw.Symbol, raw.FilingDate).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
}

// Five fetched filings, three financial. Announcements persist first, then
// attachments resolve per financial row, then the three extracted snapshots
// persist, then the run completes with matching counters.
func TestRun_EndToEnd(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	win := source.Window{
		From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC),
	}
	base := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)

	result := rawFixture("500325", "Reliance Industries Ltd", "Result",
		"Unaudited Financial Results for the quarter ended 30.06.2025", base)
	board := rawFixture("TCS", "Tata Consultancy Services", "Board Meeting",
		"Board meeting to approve Q1 results", base.Add(time.Hour))
	keyword := rawFixture("INFY", "Infosys Ltd", "Company Update",
		"Audited standalone annual results for FY 2025", base.Add(2*time.Hour))
	address := rawFixture("ABC", "ABC Ltd", "Company Update",
		"Change in registered office address", base.Add(3*time.Hour))
	agm := rawFixture("XYZ", "XYZ Ltd", "AGM/EGM",
		"Annual general meeting scheduled", base.Add(4*time.Hour))

	src := &fakeSource{name: "bse", result: &source.Result{
		Announcements: []model.RawAnnouncement{result, board, keyword, address, agm},
	}}

	pdfPath := "financial-results/2025/07/500325_20250701_100000.pdf"
	resolver := &fakeResolver{outcomes: map[string]pdfstore.Outcome{
		"500325": {Status: model.AttachmentStored, Path: pdfPath},
		"TCS":    {Status: model.AttachmentMissing},
		"INFY":   {Status: model.AttachmentNone},
	}}

	expectRunStart(mock, "bse", win)

	mock.ExpectBegin()
	expectAnnUpsert(mock, result, "HIGH", true)
	expectAnnUpsert(mock, board, "MEDIUM", true)
	expectAnnUpsert(mock, keyword, "LOW", true)
	expectAnnUpsert(mock, address, "LOW", false)
	expectAnnUpsert(mock, agm, "LOW", false)
	mock.ExpectCommit()

	expectAttachmentPatch(mock, result, strPtr(pdfPath), true)
	expectAttachmentPatch(mock, board, nilStr, false)
	// INFY resolved to AttachmentNone: no patch.

	quarterEnd := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	expectSnapUpsert(mock, result, &quarterEnd, nilStr, strPtr("unaudited"))
	expectSnapUpsert(mock, board, nilTime, strPtr("Q1"), nilStr)
	expectSnapUpsert(mock, keyword, nilTime, nilStr, strPtr("audited"))
	mock.ExpectCommit()

	mock.ExpectExec("SET status = 'complete'").
		WithArgs(int64(5), int64(5), int64(0), int64(0), int64(3), int64(1), int64(0), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p := New(source.NewRegistry(src), store.New(mock), store.NewRunLog(mock), resolver, nil)
	report, err := p.Run(context.Background(), Config{Window: win})
	require.NoError(t, err)
	require.Len(t, report.Sources, 1)

	rep := report.Sources[0]
	assert.Equal(t, "bse", rep.Source)
	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 5, rep.Fetched)
	assert.Equal(t, 5, rep.Inserted)
	assert.Equal(t, 0, rep.Updated)
	assert.Equal(t, 3, rep.Financial)
	assert.Equal(t, 3, rep.Snapshots)
	assert.Equal(t, 1, rep.PDFsStored)
	assert.Equal(t, 1, rep.PDFsMissing)
	assert.Equal(t, 0, rep.PDFsFailed)
	assert.Equal(t, 0, rep.Gaps)
	assert.Empty(t, rep.Error)

	assert.Equal(t, 3, resolver.calls, "resolver runs only for financial filings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_NilResolverSkipsAttachments(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	win := source.Window{
		From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	filed := time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)
	raw := rawFixture("500325", "Reliance Industries Ltd", "Result",
		"Unaudited Financial Results for the quarter ended 30.06.2025", filed)

	src := &fakeSource{name: "bse", result: &source.Result{
		Announcements: []model.RawAnnouncement{raw},
	}}

	expectRunStart(mock, "bse", win)

	mock.ExpectBegin()
	expectAnnUpsert(mock, raw, "HIGH", true)
	mock.ExpectCommit()

	quarterEnd := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	expectSnapUpsert(mock, raw, &quarterEnd, nilStr, strPtr("unaudited"))
	mock.ExpectCommit()

	mock.ExpectExec("SET status = 'complete'").
		WithArgs(int64(1), int64(1), int64(0), int64(0), int64(1), int64(0), int64(0), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p := New(source.NewRegistry(src), store.New(mock), store.NewRunLog(mock), nil, nil)
	report, err := p.Run(context.Background(), Config{Window: win})
	require.NoError(t, err)

	rep := report.Sources[0]
	assert.Equal(t, 1, rep.Snapshots)
	assert.Equal(t, 0, rep.PDFsStored)
	assert.Equal(t, 0, rep.PDFsMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// One source failing must not stop the other: the failure becomes a failed
// run entry plus a gap, and the healthy source completes normally.
func TestRun_SourceFailureIsIsolated(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// Sources run concurrently, so database calls interleave.
	mock.MatchExpectationsInOrder(false)

	win := source.Window{
		From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 7, 7, 0, 0, 0, 0, time.UTC),
	}

	failing := &fakeSource{name: "bse", err: fmt.Errorf("upstream blocked")}
	healthy := &fakeSource{name: "nse", result: &source.Result{}}

	mock.ExpectExec("INSERT INTO filings.crawl_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO filings.crawl_runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	mock.ExpectExec("SET status = 'failed'").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("SET status = 'complete'").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p := New(source.NewRegistry(failing, healthy), store.New(mock), store.NewRunLog(mock), nil, nil)
	report, err := p.Run(context.Background(), Config{Window: win})
	require.NoError(t, err)
	require.Len(t, report.Sources, 2)

	byName := map[string]SourceReport{}
	for _, s := range report.Sources {
		byName[s.Source] = s
	}

	assert.Contains(t, byName["bse"].Error, "upstream blocked")
	assert.Equal(t, 1, byName["bse"].Gaps)
	assert.Empty(t, byName["nse"].Error)
	assert.Equal(t, 0, byName["nse"].Fetched)
	assert.Equal(t, []string{"bse"}, report.Failed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRun_UnknownSource(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	p := New(source.NewRegistry(&fakeSource{name: "bse"}), store.New(mock), store.NewRunLog(mock), nil, nil)
	_, err = p.Run(context.Background(), Config{Sources: []string{"london"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestRun_PersistFailureRecordsFailedRun(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	win := source.Window{
		From: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	raw := rawFixture("500325", "Reliance Industries Ltd", "Result",
		"Quarterly results", time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC))
	src := &fakeSource{name: "bse", result: &source.Result{
		Announcements: []model.RawAnnouncement{raw},
	}}

	expectRunStart(mock, "bse", win)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "filings"."announcements"`).
		WillReturnError(fmt.Errorf("deadlock detected"))
	mock.ExpectRollback()
	mock.ExpectExec("SET status = 'failed'").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	p := New(source.NewRegistry(src), store.New(mock), store.NewRunLog(mock), nil, nil)
	report, err := p.Run(context.Background(), Config{Window: win})
	require.NoError(t, err)

	rep := report.Sources[0]
	assert.Contains(t, rep.Error, "deadlock detected")
	assert.Equal(t, 1, rep.Gaps)
	assert.Equal(t, 1, rep.Fetched, "fetch succeeded before the write failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
