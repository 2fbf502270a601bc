package classify

import (
	"strings"

	"github.com/halal-lens/filings-cli/internal/model"
)

// Result is the classification verdict for one filing.
type Result struct {
	Financial  bool
	Confidence model.Confidence
}

// Classify grades a filing by its exchange category and headline.
//
// A "Result" category is financial at HIGH confidence outright. A board
// meeting counts as financial at MEDIUM confidence only when the headline
// carries a board keyword (approvals, period-end mentions). Any other filing
// is financial at LOW confidence when the headline carries a high-confidence
// keyword, and non-financial otherwise.
func (r *Rules) Classify(category, headline string) Result {
	lower := strings.ToLower(headline)

	for _, c := range r.ResultCategories {
		if category == c {
			return Result{Financial: true, Confidence: model.ConfidenceHigh}
		}
	}

	for _, c := range r.BoardMeetingCategories {
		if category == c {
			if containsAny(lower, r.BoardMeetingKeywords) {
				return Result{Financial: true, Confidence: model.ConfidenceMedium}
			}
			return Result{Financial: false, Confidence: model.ConfidenceLow}
		}
	}

	if containsAny(lower, r.HighConfidenceKeywords) {
		return Result{Financial: true, Confidence: model.ConfidenceLow}
	}

	return Result{Financial: false, Confidence: model.ConfidenceLow}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
