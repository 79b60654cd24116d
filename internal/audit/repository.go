package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerlens/ledgerlens/internal/platform/db"
)

// Repository persists and lists query records.
type Repository interface {
	InsertQuery(ctx context.Context, rec QueryRecord) error
	ListQueries(ctx context.Context, filters QueryFilters) ([]QueryRecord, error)
	PruneQueries(ctx context.Context, before time.Time) (int64, error)
}

// PGRepository is the PostgreSQL-backed repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository over a connection pool.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) InsertQuery(ctx context.Context, rec QueryRecord) error {
	const stmt = `
		INSERT INTO ledger_query_log (id, query_hash, duration_ms, row_count, status, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.pool.Exec(ctx, stmt,
		rec.ID, rec.QueryHash, rec.Duration.Milliseconds(), rec.Rows, rec.Status, rec.Error, rec.At)
	if err != nil {
		return fmt.Errorf("audit: insert query record: %w", err)
	}
	return nil
}

func (r *PGRepository) ListQueries(ctx context.Context, filters QueryFilters) ([]QueryRecord, error) {
	limit := filters.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	since := filters.Since
	if since.IsZero() {
		since = time.Now().UTC().Add(-24 * time.Hour)
	}
	const stmt = `
		SELECT id, query_hash, duration_ms, row_count, status, error, at
		FROM ledger_query_log
		WHERE at >= $1 AND ($2 = '' OR status = $2)
		ORDER BY at DESC
		LIMIT $3`
	rows, err := r.pool.Query(ctx, stmt, since, filters.Status, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list query records: %w", err)
	}
	defer rows.Close()

	var out []QueryRecord
	for rows.Next() {
		var rec QueryRecord
		var durationMS int64
		if err := rows.Scan(&rec.ID, &rec.QueryHash, &durationMS, &rec.Rows, &rec.Status, &rec.Error, &rec.At); err != nil {
			return nil, fmt.Errorf("audit: scan query record: %w", err)
		}
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: list query records: %w", err)
	}
	return out, nil
}

func (r *PGRepository) PruneQueries(ctx context.Context, before time.Time) (int64, error) {
	var deleted int64
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM ledger_query_log WHERE at < $1`, before)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("audit: prune query records: %w", err)
	}
	return deleted, nil
}
