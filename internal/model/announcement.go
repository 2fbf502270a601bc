package model

import (
	"encoding/json"
	"time"
)

// Confidence grades how strongly a filing was classified as financial.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// AttachmentStatus describes the outcome of resolving a filing's PDF.
type AttachmentStatus string

const (
	// AttachmentStored means the PDF was validated and written to object storage.
	AttachmentStored AttachmentStatus = "stored"
	// AttachmentMissing means both the live and archive URLs returned not-found.
	AttachmentMissing AttachmentStatus = "missing"
	// AttachmentFailed means retries were exhausted without a valid payload.
	AttachmentFailed AttachmentStatus = "failed"
	// AttachmentNone means the filing carries no attachment reference.
	AttachmentNone AttachmentStatus = "none"
)

// FilingKey identifies a single announcement row.
type FilingKey struct {
	Source     string    `json:"source"`
	Symbol     string    `json:"symbol"`
	FilingDate time.Time `json:"filing_date"`
}

// RawAnnouncement is one upstream record as decoded at the fetch boundary.
// FilingDate is zero when the upstream timestamp failed to parse; persistence
// rejects such rows rather than the fetcher.
type RawAnnouncement struct {
	Source         string          `json:"source"`
	Symbol         string          `json:"symbol"`
	CompanyName    string          `json:"company_name"`
	FilingDate     time.Time       `json:"filing_date"`
	Category       string          `json:"category"`
	Headline       string          `json:"headline"`
	Body           string          `json:"body,omitempty"`
	AttachmentName string          `json:"attachment_name,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// Key returns the identity triple for this record.
func (r RawAnnouncement) Key() FilingKey {
	return FilingKey{Source: r.Source, Symbol: r.Symbol, FilingDate: r.FilingDate}
}

// HasKey reports whether the record carries the full identity triple.
// Source is set by the fetcher, so symbol and date are what can be absent.
func (r RawAnnouncement) HasKey() bool {
	return r.Symbol != "" && !r.FilingDate.IsZero()
}

// Announcement is the persisted filing record.
type Announcement struct {
	Source      string          `json:"source"`
	Symbol      string          `json:"symbol"`
	CompanyName string          `json:"company_name"`
	FilingDate  time.Time       `json:"filing_date"`
	Category    string          `json:"category"`
	Headline    string          `json:"headline"`
	Confidence  Confidence      `json:"confidence"`
	Financial   bool            `json:"financial"`
	Raw         json.RawMessage `json:"raw,omitempty"`
	PDFPath     string          `json:"pdf_path,omitempty"`
	PDFStored   bool            `json:"pdf_stored"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
	UpdatedAt   time.Time       `json:"updated_at,omitempty"`
}

// Key returns the identity triple for this announcement.
func (a Announcement) Key() FilingKey {
	return FilingKey{Source: a.Source, Symbol: a.Symbol, FilingDate: a.FilingDate}
}

// HasKey reports whether the record carries the identity fields persistence requires.
func (a Announcement) HasKey() bool {
	return a.Symbol != "" && !a.FilingDate.IsZero()
}
