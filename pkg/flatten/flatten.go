// Package flatten converts structured EMR records into natural language
// chunks suitable for embedding. Each source kind has its own linearization
// template; long narratives are split into overlapping word windows.
package flatten

import (
	"fmt"
	"time"

	"github.com/clidram/medrag/pkg/connector"
)

// Chunk is one indexable text unit derived from a source record, together
// with the metadata stored alongside its embedding.
type Chunk struct {
	Text     string
	Metadata map[string]any
}

// Config holds the chunking knobs. ChunkSize and Overlap are token budgets;
// the word-level window is derived from them with the usual 0.75
// words-per-token estimate. Threshold is the word count above which a
// narrative gets windowed at all.
type Config struct {
	ChunkSize uint
	Overlap   uint
	Threshold uint
}

// DefaultConfig matches the embedding model's context budget.
func DefaultConfig() Config {
	return Config{ChunkSize: 800, Overlap: 150, Threshold: 350}
}

// Flattener converts one source record into one or more chunks.
type Flattener interface {
	Flatten(rec connector.Record) ([]Chunk, error)
}

// New returns the flattener for a source kind.
func New(kind string, cfg Config) (Flattener, error) {
	switch kind {
	case connector.KindAppointment:
		return &appointmentFlattener{cfg: cfg}, nil
	case connector.KindPrescription:
		return &prescriptionFlattener{cfg: cfg}, nil
	case connector.KindPatient:
		return &patientFlattener{cfg: cfg}, nil
	case connector.KindDisease:
		return &diseaseFlattener{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("no flattener for source kind %q", kind)
	}
}

// finalize splits the narrative per the chunking policy, stamps every chunk
// with its index and the total, and sanitizes the metadata. The base metadata
// map is shallow-copied per chunk so callers can reuse it.
func finalize(cfg Config, text string, base map[string]any) []Chunk {
	pieces := splitWords(text, cfg)

	out := make([]Chunk, 0, len(pieces))
	for i, piece := range pieces {
		meta := make(map[string]any, len(base)+2)
		for k, v := range base {
			meta[k] = v
		}
		meta["chunk_index"] = i
		meta["total_chunks"] = len(pieces)
		out = append(out, Chunk{Text: piece, Metadata: Sanitize(meta)})
	}
	return out
}

func indexedAt() string {
	return time.Now().UTC().Format(time.RFC3339)
}
