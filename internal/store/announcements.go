package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/db"
	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/resilience"
)

// upsertAnnouncementSQL writes one announcement keyed on (source, symbol,
// filing_date). Attachment columns are deliberately absent from both lists:
// SetAttachment is their only writer, so a re-crawl never clobbers the
// stored-PDF state. The RETURNING clause reports whether the row was a fresh
// insert (xmax = 0) or a conflict update.
var upsertAnnouncementSQL = db.MustUpsertSQL(db.UpsertConfig{
	Table: "filings.announcements",
	Columns: []string{
		"source", "symbol", "company_name", "filing_date", "category",
		"headline", "confidence", "financial", "raw_json", "created_at", "updated_at",
	},
	ConflictKeys: []string{"source", "symbol", "filing_date"},
	UpdateCols: []string{
		"company_name", "category", "headline", "confidence", "financial",
		"raw_json", "updated_at",
	},
})

const setAttachmentSQL = `UPDATE filings.announcements
	 SET pdf_path = $1, pdf_stored = $2, updated_at = now()
	 WHERE source = $3 AND symbol = $4 AND filing_date = $5`

// UpsertStats reports the outcome of a batch write.
type UpsertStats struct {
	Inserted int
	Updated  int
	Skipped  int
}

// UpsertAnnouncements writes a batch of announcements in a single
// transaction. Records missing a symbol or filing timestamp are counted as
// skipped and never fail the batch; any database error rolls the whole batch
// back and surfaces as a PersistenceError.
func (s *Store) UpsertAnnouncements(ctx context.Context, anns []model.Announcement) (*UpsertStats, error) {
	log := zap.L().With(zap.String("component", "store"))
	stats := &UpsertStats{}
	if len(anns) == 0 {
		return stats, nil
	}

	now := time.Now().UTC()
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, a := range anns {
			if !a.HasKey() {
				log.Warn("skipping announcement without identity",
					zap.String("source", a.Source),
					zap.String("symbol", a.Symbol),
					zap.String("headline", a.Headline))
				stats.Skipped++
				continue
			}

			var inserted bool
			err := tx.QueryRow(ctx, upsertAnnouncementSQL,
				a.Source, a.Symbol, a.CompanyName, a.FilingDate, a.Category,
				a.Headline, string(a.Confidence), a.Financial, rawOrNil(a.Raw), now, now,
			).Scan(&inserted)
			if err != nil {
				return resilience.NewPersistenceError(
					eris.Wrapf(err, "store: upsert announcement %s/%s", a.Source, a.Symbol))
			}
			if inserted {
				stats.Inserted++
			} else {
				stats.Updated++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// SetAttachment patches the attachment columns of an existing announcement.
// It never inserts: patching a row that does not exist is a logged no-op.
func (s *Store) SetAttachment(ctx context.Context, key model.FilingKey, path string, stored bool) error {
	tag, err := s.pool.Exec(ctx, setAttachmentSQL,
		nullIfEmpty(path), stored, key.Source, key.Symbol, key.FilingDate)
	if err != nil {
		return eris.Wrapf(err, "store: set attachment %s/%s", key.Source, key.Symbol)
	}
	if tag.RowsAffected() == 0 {
		zap.L().With(zap.String("component", "store")).Warn("no announcement to patch",
			zap.String("source", key.Source),
			zap.String("symbol", key.Symbol),
			zap.Time("filing_date", key.FilingDate))
	}
	return nil
}

// rawOrNil maps an absent payload to SQL NULL instead of an empty jsonb.
func rawOrNil(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

// nullIfEmpty maps "" to SQL NULL for nullable text columns.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
