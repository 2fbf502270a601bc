// Package store persists announcements, financial snapshots, and crawl runs
// in the filings Postgres schema.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/halal-lens/filings-cli/internal/db"
)

// Store provides access to the filings schema through a pgx-compatible pool.
type Store struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the per-row crawl write path.
var preparedStatements = map[string]string{
	"upsert_announcement": upsertAnnouncementSQL,
	"set_attachment":      setAttachmentSQL,
	"upsert_snapshot":     upsertSnapshotSQL,
	"snapshot_parent":     snapshotParentSQL,
}

// New wraps an existing pool. Used by tests and by callers that manage the
// pool lifecycle themselves.
func New(pool db.Pool) *Store {
	return &Store{pool: pool}
}

// Connect creates a Store with its own connection pool.
func Connect(ctx context.Context, connString string, poolCfg *PoolConfig) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "store: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "store: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "store: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "store: ping")
	}
	return &Store{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that need
// direct query access (e.g., the run log).
func (s *Store) Pool() db.Pool {
	return s.pool
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT 1"); err != nil {
		return eris.Wrap(err, "store: ping")
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}
