package pdfstore

import (
	"fmt"
	"time"

	"github.com/halal-lens/filings-cli/internal/model"
)

// ObjectPath builds the deterministic bucket path for a filing attachment:
// a confidence folder, the filing year and month, then a filename carrying
// the symbol and the filing timestamp. The same filing always maps to the
// same path, which is what makes storage idempotent.
func ObjectPath(symbol string, filingDate time.Time, conf model.Confidence) string {
	return fmt.Sprintf("%s/%s/%s_%s.pdf",
		confidenceFolder(conf),
		filingDate.Format("2006/01"),
		symbol,
		filingDate.Format("20060102_150405"),
	)
}

func confidenceFolder(conf model.Confidence) string {
	switch conf {
	case model.ConfidenceHigh:
		return "financial-results"
	case model.ConfidenceMedium:
		return "board-meetings"
	default:
		return "raw-downloads"
	}
}
