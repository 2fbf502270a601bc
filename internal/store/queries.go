package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/halal-lens/filings-cli/internal/model"
)

// LatestAnnouncements returns the most recent announcements, newest filing
// first. A non-empty confidence narrows the result to that tier. The raw
// payload column is not loaded here.
func (s *Store) LatestAnnouncements(ctx context.Context, limit int, confidence model.Confidence) ([]model.Announcement, error) {
	query := `SELECT source, symbol, company_name, filing_date, category, headline,
	 confidence, financial, pdf_path, pdf_stored, created_at, updated_at
	 FROM filings.announcements WHERE true`
	args := []any{}
	argIdx := 1

	if confidence != "" {
		query += fmt.Sprintf(` AND confidence = $%d`, argIdx)
		args = append(args, string(confidence))
		argIdx++
	}
	query += ` ORDER BY filing_date DESC`

	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: latest announcements")
	}
	defer rows.Close()

	var anns []model.Announcement
	for rows.Next() {
		var a model.Announcement
		var confStr string
		var pdfPath *string
		if err := rows.Scan(&a.Source, &a.Symbol, &a.CompanyName, &a.FilingDate,
			&a.Category, &a.Headline, &confStr, &a.Financial,
			&pdfPath, &a.PDFStored, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "store: scan announcement")
		}
		a.Confidence = model.Confidence(confStr)
		if pdfPath != nil {
			a.PDFPath = *pdfPath
		}
		anns = append(anns, a)
	}
	return anns, eris.Wrap(rows.Err(), "store: latest announcements iterate")
}

// GetAnnouncement loads one announcement by its filing key. A missing row
// returns nil without error.
func (s *Store) GetAnnouncement(ctx context.Context, key model.FilingKey) (*model.Announcement, error) {
	var a model.Announcement
	var confStr string
	var pdfPath *string
	err := s.pool.QueryRow(ctx,
		`SELECT source, symbol, company_name, filing_date, category, headline,
		 confidence, financial, pdf_path, pdf_stored, created_at, updated_at
		 FROM filings.announcements
		 WHERE source = $1 AND symbol = $2 AND filing_date = $3`,
		key.Source, key.Symbol, key.FilingDate,
	).Scan(&a.Source, &a.Symbol, &a.CompanyName, &a.FilingDate,
		&a.Category, &a.Headline, &confStr, &a.Financial,
		&pdfPath, &a.PDFStored, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get announcement %s/%s", key.Source, key.Symbol)
	}
	a.Confidence = model.Confidence(confStr)
	if pdfPath != nil {
		a.PDFPath = *pdfPath
	}
	return &a, nil
}

// FinancialRow joins a financial snapshot with its parent announcement for
// the read path.
type FinancialRow struct {
	Source         string     `json:"source"`
	Symbol         string     `json:"symbol"`
	CompanyName    string     `json:"company_name"`
	FilingDate     time.Time  `json:"filing_date"`
	Category       string     `json:"category"`
	Quarter        string     `json:"quarter,omitempty"`
	AuditStatus    string     `json:"audit_status,omitempty"`
	FYEnd          *time.Time `json:"fy_end,omitempty"`
	TotalDebt      *float64   `json:"total_debt,omitempty"`
	CashEquiv      *float64   `json:"cash_equiv,omitempty"`
	Revenue        *float64   `json:"revenue,omitempty"`
	InterestIncome *float64   `json:"interest_income,omitempty"`
	DividendIncome *float64   `json:"dividend_income,omitempty"`
}

// FinancialData returns extracted financial snapshots joined with their
// announcements, newest filing first. A non-empty symbol narrows the result
// to one company.
func (s *Store) FinancialData(ctx context.Context, symbol string, limit int) ([]FinancialRow, error) {
	query := `SELECT a.source, a.symbol, a.company_name, a.filing_date, a.category,
	 f.quarter, f.audit_status, f.fy_end, f.total_debt, f.cash_equiv,
	 f.revenue, f.interest_income, f.dividend_income
	 FROM filings.announcements a
	 JOIN filings.financial_snapshots f
	   ON a.source = f.source AND a.symbol = f.symbol AND a.filing_date = f.filing_date
	 WHERE true`
	args := []any{}
	argIdx := 1

	if symbol != "" {
		query += fmt.Sprintf(` AND a.symbol = $%d`, argIdx)
		args = append(args, symbol)
		argIdx++
	}
	query += ` ORDER BY a.filing_date DESC`

	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: financial data")
	}
	defer rows.Close()

	var results []FinancialRow
	for rows.Next() {
		var r FinancialRow
		var quarter, auditStatus *string
		if err := rows.Scan(&r.Source, &r.Symbol, &r.CompanyName, &r.FilingDate,
			&r.Category, &quarter, &auditStatus, &r.FYEnd,
			&r.TotalDebt, &r.CashEquiv, &r.Revenue,
			&r.InterestIncome, &r.DividendIncome); err != nil {
			return nil, eris.Wrap(err, "store: scan financial row")
		}
		if quarter != nil {
			r.Quarter = *quarter
		}
		if auditStatus != nil {
			r.AuditStatus = *auditStatus
		}
		results = append(results, r)
	}
	return results, eris.Wrap(rows.Err(), "store: financial data iterate")
}

// Stats summarizes both filings tables.
type Stats struct {
	Announcements   int64      `json:"announcements"`
	HighConfidence  int64      `json:"high_confidence"`
	Financial       int64      `json:"financial"`
	PDFsStored      int64      `json:"pdfs_stored"`
	LatestFiling    *time.Time `json:"latest_filing,omitempty"`
	UniqueCompanies int64      `json:"unique_companies"`
	Snapshots       int64      `json:"snapshots"`
	WithDebtData    int64      `json:"with_debt_data"`
	WithRevenueData int64      `json:"with_revenue_data"`
	QuartersCovered int64      `json:"quarters_covered"`
}

// Stats returns aggregate counts over announcements and snapshots.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	var stats Stats

	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE confidence = 'HIGH'),
		        COUNT(*) FILTER (WHERE financial),
		        COUNT(*) FILTER (WHERE pdf_stored),
		        MAX(filing_date),
		        COUNT(DISTINCT symbol)
		 FROM filings.announcements`,
	).Scan(&stats.Announcements, &stats.HighConfidence, &stats.Financial,
		&stats.PDFsStored, &stats.LatestFiling, &stats.UniqueCompanies)
	if err != nil {
		return nil, eris.Wrap(err, "store: announcement stats")
	}

	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE total_debt IS NOT NULL),
		        COUNT(*) FILTER (WHERE revenue IS NOT NULL),
		        COUNT(DISTINCT quarter)
		 FROM filings.financial_snapshots`,
	).Scan(&stats.Snapshots, &stats.WithDebtData, &stats.WithRevenueData,
		&stats.QuartersCovered)
	if err != nil {
		return nil, eris.Wrap(err, "store: snapshot stats")
	}

	return &stats, nil
}
