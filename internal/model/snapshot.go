package model

import "time"

// FinancialSnapshot holds structured facts extracted from a financial filing.
// Every fact is optional; a snapshot exists as soon as one of them is known.
// The numeric columns are reserved for document-level extraction phases and
// stay null when only the headline was parsed.
type FinancialSnapshot struct {
	Source         string     `json:"source"`
	Symbol         string     `json:"symbol"`
	FilingDate     time.Time  `json:"filing_date"`
	FYEnd          *time.Time `json:"fy_end,omitempty"`
	Quarter        string     `json:"quarter,omitempty"`
	AuditStatus    string     `json:"audit_status,omitempty"`
	TotalDebt      *float64   `json:"total_debt,omitempty"`
	CashEquiv      *float64   `json:"cash_equiv,omitempty"`
	Revenue        *float64   `json:"revenue,omitempty"`
	InterestIncome *float64   `json:"interest_income,omitempty"`
	DividendIncome *float64   `json:"dividend_income,omitempty"`
	ParsedAt       time.Time  `json:"parsed_at,omitempty"`
}

// Key returns the identity triple of the parent announcement.
func (s FinancialSnapshot) Key() FilingKey {
	return FilingKey{Source: s.Source, Symbol: s.Symbol, FilingDate: s.FilingDate}
}
