package pipeline

import (
	"strings"
	"time"

	"github.com/halal-lens/filings-cli/internal/classify"
	"github.com/halal-lens/filings-cli/internal/model"
)

// maxHeadlineLen caps stored headlines; exchange subjects occasionally run to
// several kilobytes of boilerplate.
const maxHeadlineLen = 600

// mapAnnouncement classifies one fetched record and shapes it for persistence.
func (p *Pipeline) mapAnnouncement(raw model.RawAnnouncement) model.Announcement {
	verdict := p.rules.Classify(raw.Category, raw.Headline)
	return model.Announcement{
		Source:      raw.Source,
		Symbol:      raw.Symbol,
		CompanyName: raw.CompanyName,
		FilingDate:  raw.FilingDate,
		Category:    raw.Category,
		Headline:    truncateRunes(raw.Headline, maxHeadlineLen),
		Confidence:  verdict.Confidence,
		Financial:   verdict.Financial,
		Raw:         raw.Raw,
	}
}

// snapshotFromFacts builds the snapshot row for a financial filing from its
// extracted facts.
func snapshotFromFacts(a model.Announcement, f classify.Facts) model.FinancialSnapshot {
	return model.FinancialSnapshot{
		Source:      a.Source,
		Symbol:      a.Symbol,
		FilingDate:  a.FilingDate,
		FYEnd:       parsePeriodEnd(f.Period),
		Quarter:     f.Quarter,
		AuditStatus: f.AuditStatus,
	}
}

// parsePeriodEnd converts a dd.mm.yyyy period into a date. Periods matched as
// bare years carry no day precision and map to nil.
func parsePeriodEnd(period string) *time.Time {
	if !strings.Contains(period, ".") {
		return nil
	}
	t, err := time.Parse("02.01.2006", period)
	if err != nil {
		return nil
	}
	return &t
}

// truncateRunes shortens s to at most n runes without splitting a character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
