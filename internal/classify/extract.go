package classify

import (
	"regexp"
	"strings"
)

// Facts is the structured information recoverable from filing text. Every
// field is best-effort; an all-empty value means the text carried nothing
// extractable and no snapshot should be written for it.
type Facts struct {
	Period        string `json:"period,omitempty"`
	ResultType    string `json:"result_type,omitempty"`
	FinancialYear string `json:"financial_year,omitempty"`
	Quarter       string `json:"quarter,omitempty"`
	AuditStatus   string `json:"audit_status,omitempty"`
}

// Empty reports whether extraction found nothing.
func (f Facts) Empty() bool {
	return f == Facts{}
}

var (
	// Quarter labels must be explicit: a bare Q-token or a spelled-out
	// ordinal. Loose digit matching would leak date digits into the label.
	quarterTokenRe = regexp.MustCompile(`(?i)\bq([1-4])\b`)
	quarterWordRe  = regexp.MustCompile(`(?i)\b(first|second|third|fourth)\s+quarter\b`)

	financialYearRe = regexp.MustCompile(`(?i)\bfy.*?(\d{4})`)
)

var quarterOrdinals = map[string]string{
	"first":  "Q1",
	"second": "Q2",
	"third":  "Q3",
	"fourth": "Q4",
}

// Extract pulls structured financial facts out of filing text, typically the
// headline concatenated with the body. Matching is case-insensitive.
func (r *Rules) Extract(text string) Facts {
	lower := strings.ToLower(text)
	return Facts{
		Period:        r.extractPeriod(lower),
		ResultType:    extractResultType(lower),
		FinancialYear: extractFinancialYear(lower),
		Quarter:       extractQuarter(lower),
		AuditStatus:   extractAuditStatus(lower),
	}
}

// extractPeriod returns the first match across the period patterns, which
// run in order from most to least specific.
func (r *Rules) extractPeriod(text string) string {
	for _, re := range r.periodRes {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// extractResultType prefers consolidated: filings mentioning both scopes are
// consolidated statements with standalone annexures.
func extractResultType(text string) string {
	if strings.Contains(text, "consolidated") {
		return "consolidated"
	}
	if strings.Contains(text, "standalone") {
		return "standalone"
	}
	return ""
}

func extractFinancialYear(text string) string {
	if m := financialYearRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func extractQuarter(text string) string {
	if m := quarterTokenRe.FindStringSubmatch(text); m != nil {
		return "Q" + m[1]
	}
	if m := quarterWordRe.FindStringSubmatch(text); m != nil {
		return quarterOrdinals[strings.ToLower(m[1])]
	}
	return ""
}

// extractAuditStatus checks "unaudited" first: "audited" is a substring of it.
func extractAuditStatus(text string) string {
	if strings.Contains(text, "unaudited") {
		return "unaudited"
	}
	if strings.Contains(text, "audited") {
		return "audited"
	}
	return ""
}
