// Package vector provides interfaces and implementations for clinical document
// vector storage and retrieval.
package vector

import "context"

// Chunk represents one stored chunk of a flattened clinical record.
type Chunk struct {
	// SourceKind names the record type in the source EMR (appointment,
	// prescription, patient, disease).
	SourceKind string

	// SourceID is the record's id in the source EMR.
	SourceID int64

	// ChunkIndex is the zero-based position of this chunk within its record.
	ChunkIndex int

	// Content is the flattened text of the chunk.
	Content string

	// Metadata carries the sanitized record metadata (patient ids, dates,
	// clinical sub-lists) stored alongside the chunk.
	Metadata map[string]any

	// Embedding is the L2-normalized vector representation of Content.
	Embedding []float32
}

// SearchResult represents a search hit with its cosine similarity.
type SearchResult struct {
	Chunk

	// Similarity is the cosine similarity to the query (higher = closer).
	Similarity float64
}

// Filters is a conjunctive set of metadata constraints applied to a search.
// Every key must match for a chunk to qualify. The patient_name key matches
// as a case-insensitive substring; all other keys match exactly against the
// string form of the metadata value.
type Filters map[string]string

// FilterPatientName is the one metadata key matched fuzzily.
const FilterPatientName = "patient_name"

// Stats summarizes the contents of the store.
type Stats struct {
	Total  int64            `json:"total"`
	ByKind map[string]int64 `json:"by_kind"`
}

// Driver handles storage and retrieval of clinical document chunks.
type Driver interface {
	// Upsert stores chunks keyed on (source_kind, source_id, chunk_index).
	// Existing rows are updated in place; their creation time is preserved.
	Upsert(ctx context.Context, chunks []Chunk) error

	// Search finds the topK most similar chunks to the given embedding,
	// restricted to chunks matching all filters.
	Search(ctx context.Context, embedding []float32, topK int, filters Filters) ([]SearchResult, error)

	// FetchRecent returns chunks matching the filters without ranking,
	// most recently written first. Embeddings are not populated.
	FetchRecent(ctx context.Context, filters Filters, limit int) ([]Chunk, error)

	// TrimChunks deletes chunks of the given record with chunk_index >= keep.
	// Called after re-indexing so a record that shrank leaves no stale tail.
	TrimChunks(ctx context.Context, sourceKind string, sourceID int64, keep int) error

	// DeleteSource removes every chunk of the given record and reports how
	// many rows were removed.
	DeleteSource(ctx context.Context, sourceKind string, sourceID int64) (int64, error)

	// Stats reports chunk counts grouped by source kind.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the driver.
	Close() error
}
