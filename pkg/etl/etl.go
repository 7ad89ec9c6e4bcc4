// Package etl drives the indexing pipeline: fetch records from the EMR,
// flatten them into chunks, embed the chunk texts, upsert the vectors, and
// record per-kind sync watermarks. Each source kind runs independently so a
// failing kind never aborts the others.
package etl

import (
	"time"

	"github.com/clidram/medrag/pkg/connector"
)

// RunOptions selects what an indexing run covers.
type RunOptions struct {
	// Kinds are the source kinds to index. Empty means all supported kinds.
	Kinds []string

	// Limit bounds the number of records fetched per kind. Zero means no limit.
	Limit int

	// Incremental restricts the fetch to records the EMR has not yet marked
	// as synced, and marks them synced after a successful upsert.
	Incremental bool
}

// KindResult is the outcome of indexing one source kind.
type KindResult struct {
	SourceKind     string `json:"source_kind"`
	RecordsIndexed int    `json:"records_indexed"`
	ChunksCreated  int    `json:"chunks_created"`
	Error          string `json:"error,omitempty"`
}

// RunResult aggregates per-kind outcomes for one indexing run.
type RunResult struct {
	Kinds          []KindResult  `json:"kinds"`
	RecordsIndexed int           `json:"records_indexed"`
	ChunksCreated  int           `json:"chunks_created"`
	Elapsed        time.Duration `json:"elapsed"`
}

// add folds one kind outcome into the totals.
func (r *RunResult) add(kr KindResult) {
	r.Kinds = append(r.Kinds, kr)
	r.RecordsIndexed += kr.RecordsIndexed
	r.ChunksCreated += kr.ChunksCreated
}

// batchSizes returns the embed and upsert batch sizes for a kind. The
// disease code list is a large fixed vocabulary of tiny texts, so it gets
// much larger batches than the narrative kinds.
func batchSizes(kind string, embedBatch, upsertBatch int) (int, int) {
	if kind == connector.KindDisease {
		return embedBatch * 4, upsertBatch * 5
	}
	return embedBatch, upsertBatch
}
