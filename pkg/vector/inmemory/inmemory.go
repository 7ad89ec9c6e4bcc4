// Package inmemory provides an in-memory vector driver for tests and
// single-process development setups.
package inmemory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/vector"
)

type entry struct {
	chunk     vector.Chunk
	createdAt time.Time
	updatedAt time.Time
}

// Driver implements vector.Driver with exact cosine similarity over a
// mutex-guarded map.
type Driver struct {
	mu      sync.RWMutex
	entries map[string]*entry
	seq     int64
	logger  *zap.Logger
}

var _ vector.Driver = (*Driver)(nil)

// NewDriver creates an empty in-memory vector driver.
func NewDriver(logger *zap.Logger) *Driver {
	return &Driver{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

// Upsert stores chunks keyed on (source_kind, source_id, chunk_index).
func (d *Driver) Upsert(_ context.Context, chunks []vector.Chunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for _, c := range chunks {
		key := c.Key()
		if existing, ok := d.entries[key]; ok {
			existing.chunk = c
			existing.updatedAt = now
			continue
		}
		d.entries[key] = &entry{chunk: c, createdAt: now, updatedAt: now}
	}

	return nil
}

// Search ranks all matching chunks by cosine similarity.
func (d *Driver) Search(_ context.Context, embedding []float32, topK int, filters vector.Filters) ([]vector.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	results := make([]vector.SearchResult, 0, len(d.entries))
	for _, e := range d.entries {
		if !filters.Match(e.chunk.Metadata) {
			continue
		}
		results = append(results, vector.SearchResult{
			Chunk:      e.chunk,
			Similarity: cosine(embedding, e.chunk.Embedding),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// FetchRecent returns matching chunks most recently written first.
func (d *Driver) FetchRecent(_ context.Context, filters vector.Filters, limit int) ([]vector.Chunk, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	type dated struct {
		chunk vector.Chunk
		at    time.Time
	}

	matched := make([]dated, 0, len(d.entries))
	for _, e := range d.entries {
		if !filters.Match(e.chunk.Metadata) {
			continue
		}
		c := e.chunk
		c.Embedding = nil
		matched = append(matched, dated{chunk: c, at: e.updatedAt})
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].at.After(matched[j].at)
	})

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	chunks := make([]vector.Chunk, len(matched))
	for i, m := range matched {
		chunks[i] = m.chunk
	}

	return chunks, nil
}

// TrimChunks deletes chunks of the record with chunk_index >= keep.
func (d *Driver) TrimChunks(_ context.Context, sourceKind string, sourceID int64, keep int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for key, e := range d.entries {
		c := e.chunk
		if c.SourceKind == sourceKind && c.SourceID == sourceID && c.ChunkIndex >= keep {
			delete(d.entries, key)
		}
	}

	return nil
}

// DeleteSource removes every chunk of the given record.
func (d *Driver) DeleteSource(_ context.Context, sourceKind string, sourceID int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var removed int64
	for key, e := range d.entries {
		if e.chunk.SourceKind == sourceKind && e.chunk.SourceID == sourceID {
			delete(d.entries, key)
			removed++
		}
	}

	return removed, nil
}

// Stats reports chunk counts grouped by source kind.
func (d *Driver) Stats(_ context.Context) (vector.Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := vector.Stats{ByKind: make(map[string]int64)}
	for _, e := range d.entries {
		stats.Total++
		stats.ByKind[e.chunk.SourceKind]++
	}

	return stats, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = make(map[string]*entry)
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
