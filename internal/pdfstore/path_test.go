package pdfstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halal-lens/filings-cli/internal/model"
)

func TestObjectPath(t *testing.T) {
	filed := time.Date(2025, 7, 1, 14, 30, 22, 0, time.UTC)

	tests := []struct {
		conf model.Confidence
		want string
	}{
		{model.ConfidenceHigh, "financial-results/2025/07/500325_20250701_143022.pdf"},
		{model.ConfidenceMedium, "board-meetings/2025/07/500325_20250701_143022.pdf"},
		{model.ConfidenceLow, "raw-downloads/2025/07/500325_20250701_143022.pdf"},
		{model.Confidence("bogus"), "raw-downloads/2025/07/500325_20250701_143022.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectPath("500325", filed, tt.conf), "confidence %s", tt.conf)
	}

	// Same filing, same path.
	assert.Equal(t,
		ObjectPath("500325", filed, model.ConfidenceHigh),
		ObjectPath("500325", filed, model.ConfidenceHigh),
	)
}

func TestObjectPath_PadsMonth(t *testing.T) {
	filed := time.Date(2026, 1, 9, 8, 5, 0, 0, time.UTC)
	assert.Equal(t,
		"financial-results/2026/01/TCS_20260109_080500.pdf",
		ObjectPath("TCS", filed, model.ConfidenceHigh),
	)
}
