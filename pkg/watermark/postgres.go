package watermark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists watermarks in the etl_watermarks table. It shares
// the *sql.DB owned by the postgres vector driver and therefore never closes
// the handle itself.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the etl_watermarks table if needed.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	const schema = `
		CREATE TABLE IF NOT EXISTS etl_watermarks (
			source_kind     TEXT PRIMARY KEY,
			last_write_date TIMESTAMPTZ NOT NULL,
			records_indexed BIGINT NOT NULL DEFAULT 0,
			chunks_created  BIGINT NOT NULL DEFAULT 0,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create etl_watermarks: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, kind string) (Watermark, error) {
	const q = `
		SELECT source_kind, last_write_date, records_indexed, chunks_created, updated_at
		FROM etl_watermarks WHERE source_kind = $1`

	var wm Watermark
	err := s.db.QueryRowContext(ctx, q, kind).Scan(
		&wm.SourceKind, &wm.LastWriteDate, &wm.RecordsIndexed, &wm.ChunksCreated, &wm.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Watermark{}, ErrNotFound
	}
	if err != nil {
		return Watermark{}, fmt.Errorf("get watermark %s: %w", kind, err)
	}
	return wm, nil
}

func (s *PostgresStore) Advance(ctx context.Context, kind string, lastWrite time.Time, records, chunks int) error {
	const q = `
		INSERT INTO etl_watermarks (source_kind, last_write_date, records_indexed, chunks_created, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (source_kind) DO UPDATE SET
			last_write_date = GREATEST(etl_watermarks.last_write_date, EXCLUDED.last_write_date),
			records_indexed = etl_watermarks.records_indexed + EXCLUDED.records_indexed,
			chunks_created  = etl_watermarks.chunks_created + EXCLUDED.chunks_created,
			updated_at      = now()`

	if _, err := s.db.ExecContext(ctx, q, kind, lastWrite.UTC(), records, chunks); err != nil {
		return fmt.Errorf("advance watermark %s: %w", kind, err)
	}
	return nil
}

func (s *PostgresStore) All(ctx context.Context) ([]Watermark, error) {
	const q = `
		SELECT source_kind, last_write_date, records_indexed, chunks_created, updated_at
		FROM etl_watermarks ORDER BY source_kind`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()

	var out []Watermark
	for rows.Next() {
		var wm Watermark
		if err := rows.Scan(&wm.SourceKind, &wm.LastWriteDate, &wm.RecordsIndexed, &wm.ChunksCreated, &wm.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		out = append(out, wm)
	}
	return out, rows.Err()
}

// Close is a no-op; the underlying handle belongs to the vector driver.
func (s *PostgresStore) Close() error { return nil }
