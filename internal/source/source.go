package source

import (
	"context"
	"time"

	"github.com/halal-lens/filings-cli/internal/model"
)

// Window is an inclusive calendar-day date range.
type Window struct {
	From time.Time
	To   time.Time
}

// Days returns how many calendar days the window spans.
func (w Window) Days() int {
	from := truncateDay(w.From)
	to := truncateDay(w.To)
	if to.Before(from) {
		return 0
	}
	return int(to.Sub(from).Hours()/24) + 1
}

// Query narrows a fetch beyond the date window.
type Query struct {
	// Symbol restricts the fetch to one company, in the exchange's native
	// form (BSE scrip code, NSE ticker). Empty fetches all companies.
	Symbol string

	// Category restricts the fetch to one exchange category. Empty keeps
	// the exchange default of everything.
	Category string
}

// Result holds what a fetch actually produced. Gaps lists the date chunks
// abandoned after retry exhaustion; the caller records them instead of
// failing the run.
type Result struct {
	Announcements []model.RawAnnouncement
	Gaps          []Window
}

// Source fetches raw corporate announcements from one exchange.
type Source interface {
	// Name returns the registry identifier ("bse", "nse").
	Name() string

	// Fetch pulls announcements for the window, chunking the range the way
	// the exchange tolerates. It returns the rows that were fetched plus
	// the chunks that were abandoned; the error is non-nil only when the
	// whole fetch cannot proceed.
	Fetch(ctx context.Context, win Window, q Query) (*Result, error)
}
