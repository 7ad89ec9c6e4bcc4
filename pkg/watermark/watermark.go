// Package watermark tracks per-kind indexing progress. Watermarks are
// status and reporting only: incremental record selection is driven by the
// source system's own synced flag, never by comparing against a watermark.
package watermark

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no watermark exists for a source kind.
var ErrNotFound = errors.New("watermark not found")

// Watermark records how far indexing has progressed for one source kind.
// UpdatedAt doubles as the last-indexed-at timestamp.
type Watermark struct {
	SourceKind     string    `json:"source_kind"`
	LastWriteDate  time.Time `json:"last_write_date"`
	RecordsIndexed int       `json:"records_indexed"`
	ChunksCreated  int       `json:"chunks_created"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store persists watermarks. Advance is forward-only on the write date: an
// older lastWrite never regresses the stored value, while the record and
// chunk counts always accumulate.
type Store interface {
	Get(ctx context.Context, kind string) (Watermark, error)
	Advance(ctx context.Context, kind string, lastWrite time.Time, records, chunks int) error
	All(ctx context.Context) ([]Watermark, error)
	Close() error
}
