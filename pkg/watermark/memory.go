package watermark

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps watermarks in process memory. Used by tests and by the
// in-memory vector backend.
type MemoryStore struct {
	mu    sync.RWMutex
	marks map[string]Watermark
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{marks: make(map[string]Watermark)}
}

func (s *MemoryStore) Get(_ context.Context, kind string) (Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wm, ok := s.marks[kind]
	if !ok {
		return Watermark{}, ErrNotFound
	}
	return wm, nil
}

func (s *MemoryStore) Advance(_ context.Context, kind string, lastWrite time.Time, records, chunks int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wm := s.marks[kind]
	wm.SourceKind = kind
	if lastWrite.After(wm.LastWriteDate) {
		wm.LastWriteDate = lastWrite
	}
	wm.RecordsIndexed += records
	wm.ChunksCreated += chunks
	wm.UpdatedAt = time.Now().UTC()
	s.marks[kind] = wm
	return nil
}

func (s *MemoryStore) All(_ context.Context) ([]Watermark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Watermark, 0, len(s.marks))
	for _, wm := range s.marks {
		out = append(out, wm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceKind < out[j].SourceKind })
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
