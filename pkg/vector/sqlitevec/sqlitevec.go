// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
//
// Intended for single-host deployments and offline development where running
// Postgres is overkill. Chunks live in a mapping table; embeddings live in a
// vec0 virtual table sharing the same rowids.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/vector"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db         *sql.DB
	dimensions uint
	logger     *zap.Logger
}

var _ vector.Driver = (*Driver)(nil)

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint
}

// candidateMultiple controls how far past topK the KNN over-fetches when
// metadata filters must be applied after the vector match.
const candidateMultiple = 8

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *zap.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", vector.ErrConnection, err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite-vec not available: %v", vector.ErrConnection, err)
	}

	// Chunk rows keyed by the upsert key. vec0 virtual tables use integer
	// rowids, so the mapping table owns the rowid shared with vec_embeddings.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS medical_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			source_kind TEXT NOT NULL,
			source_id INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			content_text TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (source_kind, source_id, chunk_index)
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating documents table: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d])`,
		c.Dimensions,
	)
	if _, err := db.Exec(createVec); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating vec0 table: %w", err)
	}

	logger.Info("sqlite-vec vector driver initialized",
		zap.String("db_path", c.DBPath),
		zap.Uint("dimensions", c.Dimensions),
		zap.String("vec_version", vecVersion),
	)

	return &Driver{
		db:         db,
		dimensions: c.Dimensions,
		logger:     logger,
	}, nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// Upsert stores chunks keyed on (source_kind, source_id, chunk_index).
func (d *Driver) Upsert(ctx context.Context, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)

	for _, c := range chunks {
		if uint(len(c.Embedding)) != d.dimensions {
			return fmt.Errorf("%w: chunk %s has %d dimensions, store expects %d",
				vector.ErrDimensions, c.Key(), len(c.Embedding), d.dimensions)
		}

		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %s: %w", c.Key(), err)
		}
		embBlob := serializeFloat32(c.Embedding)

		// Check if the chunk already exists
		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			`SELECT rowid FROM medical_documents
			 WHERE source_kind = ? AND source_id = ? AND chunk_index = ?`,
			c.SourceKind, c.SourceID, c.ChunkIndex,
		).Scan(&existingRowID)

		switch err {
		case nil:
			// Chunk exists, update text and metadata, keep created_at
			if _, err := tx.ExecContext(ctx,
				`UPDATE medical_documents
				 SET content_text = ?, metadata = ?, updated_at = ?
				 WHERE rowid = ?`,
				c.Content, string(meta), now, existingRowID,
			); err != nil {
				return fmt.Errorf("updating chunk %s: %w", c.Key(), err)
			}

			// Update embedding in vec0 table via DELETE + INSERT
			// (vec0 does not support UPDATE)
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vec_embeddings WHERE rowid = ?`, existingRowID,
			); err != nil {
				return fmt.Errorf("deleting old embedding for %s: %w", c.Key(), err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				existingRowID, embBlob,
			); err != nil {
				return fmt.Errorf("re-inserting embedding for %s: %w", c.Key(), err)
			}
		case sql.ErrNoRows:
			// New chunk, insert into the mapping table first to get the rowid
			result, err := tx.ExecContext(ctx,
				`INSERT INTO medical_documents
					(source_kind, source_id, chunk_index, content_text, metadata, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.SourceKind, c.SourceID, c.ChunkIndex, c.Content, string(meta), now, now,
			)
			if err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.Key(), err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for %s: %w", c.Key(), err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				rowID, embBlob,
			); err != nil {
				return fmt.Errorf("inserting embedding for %s: %w", c.Key(), err)
			}
		default:
			return fmt.Errorf("checking for existing chunk %s: %w", c.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("upserted chunks to sqlite-vec",
		zap.Int("count", len(chunks)),
	)

	return nil
}

// Search runs a KNN query, then applies metadata filters to the candidates.
// The KNN over-fetches so filtered queries still fill topK in common cases.
func (d *Driver) Search(ctx context.Context, embedding []float32, topK int, filters vector.Filters) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	if uint(len(embedding)) != d.dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			vector.ErrDimensions, len(embedding), d.dimensions)
	}

	k := topK
	if len(filters) > 0 {
		k = topK * candidateMultiple
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			m.source_kind,
			m.source_id,
			m.chunk_index,
			m.content_text,
			m.metadata,
			ve.distance
		FROM vec_embeddings ve
		INNER JOIN medical_documents m ON m.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, serializeFloat32(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.SearchResult
	for rows.Next() {
		var (
			r        vector.SearchResult
			meta     string
			distance float64
		)
		if err := rows.Scan(&r.SourceKind, &r.SourceID, &r.ChunkIndex, &r.Content, &meta, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &r.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}

		if !filters.Match(r.Metadata) {
			continue
		}

		// sqlite-vec reports L2 distance; embeddings are L2-normalized, so
		// cosine similarity falls out of the squared distance.
		r.Similarity = 1 - (distance*distance)/2

		results = append(results, r)
		if len(results) == topK {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec",
		zap.Int("results", len(results)),
	)

	return results, nil
}

// FetchRecent returns matching chunks most recently written first.
func (d *Driver) FetchRecent(ctx context.Context, filters vector.Filters, limit int) ([]vector.Chunk, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := d.db.QueryContext(ctx, `
		SELECT source_kind, source_id, chunk_index, content_text, metadata
		FROM medical_documents
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var chunks []vector.Chunk
	for rows.Next() {
		var (
			c    vector.Chunk
			meta string
		)
		if err := rows.Scan(&c.SourceKind, &c.SourceID, &c.ChunkIndex, &c.Content, &meta); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &c.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshaling metadata: %w", err)
		}

		if !filters.Match(c.Metadata) {
			continue
		}

		chunks = append(chunks, c)
		if len(chunks) == limit {
			break
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}

	return chunks, nil
}

// TrimChunks deletes chunks of the record with chunk_index >= keep.
func (d *Driver) TrimChunks(ctx context.Context, sourceKind string, sourceID int64, keep int) error {
	return d.deleteWhere(ctx,
		`source_kind = ? AND source_id = ? AND chunk_index >= ?`,
		sourceKind, sourceID, keep,
	)
}

// DeleteSource removes every chunk of the given record.
func (d *Driver) DeleteSource(ctx context.Context, sourceKind string, sourceID int64) (int64, error) {
	var count int64
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM medical_documents WHERE source_kind = ? AND source_id = ?`,
		sourceKind, sourceID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks for %s/%d: %w", sourceKind, sourceID, err)
	}

	if err := d.deleteWhere(ctx, `source_kind = ? AND source_id = ?`, sourceKind, sourceID); err != nil {
		return 0, err
	}

	return count, nil
}

// deleteWhere removes matching rows from both tables inside one transaction.
func (d *Driver) deleteWhere(ctx context.Context, where string, args ...any) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM medical_documents WHERE `+where, args...,
	)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM medical_documents WHERE rowid = ?`, rowID,
		); err != nil {
			return fmt.Errorf("deleting document rowid %d: %w", rowID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("deleted chunks from sqlite-vec",
		zap.Int("count", len(rowIDs)),
	)

	return nil
}

// Stats reports chunk counts grouped by source kind.
func (d *Driver) Stats(ctx context.Context) (vector.Stats, error) {
	stats := vector.Stats{ByKind: make(map[string]int64)}

	rows, err := d.db.QueryContext(ctx,
		`SELECT source_kind, COUNT(*) FROM medical_documents GROUP BY source_kind`,
	)
	if err != nil {
		return stats, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return stats, fmt.Errorf("scanning stats row: %w", err)
		}
		stats.ByKind[kind] = count
		stats.Total += count
	}

	if err := rows.Err(); err != nil {
		return stats, fmt.Errorf("iterating stats rows: %w", err)
	}

	return stats, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}
