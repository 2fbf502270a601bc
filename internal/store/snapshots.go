package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/db"
	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/resilience"
)

// upsertSnapshotSQL writes one financial snapshot keyed like its parent
// announcement. parsed_at is refreshed on every write, including conflict
// updates, so it always reflects the latest extraction.
var upsertSnapshotSQL = db.MustUpsertSQL(db.UpsertConfig{
	Table: "filings.financial_snapshots",
	Columns: []string{
		"source", "symbol", "filing_date", "fy_end", "quarter", "audit_status",
		"total_debt", "cash_equiv", "revenue", "interest_income", "dividend_income",
		"parsed_at",
	},
	ConflictKeys: []string{"source", "symbol", "filing_date"},
	UpdateCols: []string{
		"fy_end", "quarter", "audit_status", "total_debt", "cash_equiv",
		"revenue", "interest_income", "dividend_income", "parsed_at",
	},
})

const snapshotParentSQL = `SELECT 1 FROM filings.announcements
	 WHERE source = $1 AND symbol = $2 AND filing_date = $3`

// UpsertSnapshots writes a batch of financial snapshots in a single
// transaction. A snapshot whose parent announcement is missing is skipped
// with a warning rather than failing the batch; database errors roll the
// batch back and surface as a PersistenceError.
func (s *Store) UpsertSnapshots(ctx context.Context, snaps []model.FinancialSnapshot) (*UpsertStats, error) {
	log := zap.L().With(zap.String("component", "store"))
	stats := &UpsertStats{}
	if len(snaps) == 0 {
		return stats, nil
	}

	now := time.Now().UTC()
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		for _, snap := range snaps {
			var one int
			err := tx.QueryRow(ctx, snapshotParentSQL,
				snap.Source, snap.Symbol, snap.FilingDate,
			).Scan(&one)
			if errors.Is(err, pgx.ErrNoRows) {
				log.Warn("skipping snapshot without parent announcement",
					zap.String("source", snap.Source),
					zap.String("symbol", snap.Symbol),
					zap.Time("filing_date", snap.FilingDate))
				stats.Skipped++
				continue
			}
			if err != nil {
				return resilience.NewPersistenceError(
					eris.Wrapf(err, "store: check snapshot parent %s/%s", snap.Source, snap.Symbol))
			}

			var inserted bool
			err = tx.QueryRow(ctx, upsertSnapshotSQL,
				snap.Source, snap.Symbol, snap.FilingDate,
				snap.FYEnd, nullIfEmpty(snap.Quarter), nullIfEmpty(snap.AuditStatus),
				snap.TotalDebt, snap.CashEquiv, snap.Revenue,
				snap.InterestIncome, snap.DividendIncome, now,
			).Scan(&inserted)
			if err != nil {
				return resilience.NewPersistenceError(
					eris.Wrapf(err, "store: upsert snapshot %s/%s", snap.Source, snap.Symbol))
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
