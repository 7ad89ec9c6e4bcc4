package etl_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/connector"
	"github.com/clidram/medrag/pkg/etl"
	testutils "github.com/clidram/medrag/pkg/utils/test"
	"github.com/clidram/medrag/pkg/vector"
	"github.com/clidram/medrag/pkg/vector/inmemory"
	"github.com/clidram/medrag/pkg/watermark"
)

// fakeSource serves canned records per kind and records MarkSynced calls.
type fakeSource struct {
	records map[string][]connector.Record
	failOn  string

	markedKind string
	markedIDs  []int64
	markCount  int
}

func (s *fakeSource) FetchAll(_ context.Context, kind string, _ connector.Domain, limit, _ int) ([]connector.Record, error) {
	if kind == s.failOn {
		return nil, errors.New("source unavailable")
	}
	recs := s.records[kind]
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	return recs, nil
}

func (s *fakeSource) FetchUnsynced(ctx context.Context, kind string, limit int) ([]connector.Record, error) {
	return s.FetchAll(ctx, kind, nil, limit, 0)
}

func (s *fakeSource) MarkSynced(_ context.Context, kind string, ids []int64) (int, error) {
	s.markedKind = kind
	s.markedIDs = ids
	if s.markCount > 0 {
		return s.markCount, nil
	}
	return len(ids), nil
}

func appointmentRecord(id int, patient string, writeDate string) connector.Record {
	return connector.Record{
		"id":                 float64(id),
		"appointment_number": "APT/" + patient,
		"appoint_date":       "2025-06-01",
		"appoint_state":      "done",
		"patient_name":       patient,
		"write_date":         writeDate,
	}
}

func newPipeline(t *testing.T, src etl.Source) (*etl.Pipeline, *inmemory.Driver, *watermark.MemoryStore, *testutils.RecordingPublisher) {
	t.Helper()

	store := inmemory.NewDriver(zap.NewNop())
	marks := watermark.NewMemoryStore()
	pub := testutils.NewRecordingPublisher()

	p, err := etl.NewPipeline(&etl.Config{
		Source:     src,
		Embedder:   testutils.NewMockEmbedder(),
		Store:      store,
		Watermarks: marks,
		Publisher:  pub,
		Logger:     zap.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return p, store, marks, pub
}

func TestRunIndexesKind(t *testing.T) {
	src := &fakeSource{records: map[string][]connector.Record{
		connector.KindAppointment: {
			appointmentRecord(1, "Jane Roe", "2025-06-01 09:00:00"),
			appointmentRecord(2, "John Doe", "2025-06-02 09:00:00"),
		},
	}}
	p, store, marks, pub := newPipeline(t, src)
	ctx := context.Background()

	result, err := p.Run(ctx, etl.RunOptions{Kinds: []string{connector.KindAppointment}})
	if err != nil {
		t.Fatal(err)
	}
	if result.RecordsIndexed != 2 || result.ChunksCreated != 2 {
		t.Fatalf("records/chunks = %d/%d, want 2/2", result.RecordsIndexed, result.ChunksCreated)
	}

	stats, _ := store.Stats(ctx)
	if stats.ByKind[connector.KindAppointment] != 2 {
		t.Fatalf("store has %d appointment chunks, want 2", stats.ByKind[connector.KindAppointment])
	}

	wm, err := marks.Get(ctx, connector.KindAppointment)
	if err != nil {
		t.Fatal(err)
	}
	if wm.RecordsIndexed != 2 || wm.ChunksCreated != 2 {
		t.Fatalf("watermark totals = %d/%d", wm.RecordsIndexed, wm.ChunksCreated)
	}
	want, _ := connector.ParseTimestamp("2025-06-02 09:00:00")
	if !wm.LastWriteDate.Equal(want) {
		t.Fatalf("last write = %v, want %v", wm.LastWriteDate, want)
	}

	events := pub.Published()
	if len(events) != 2 {
		t.Fatalf("published %d events, want 2", len(events))
	}
	if events[0].SourceKind != connector.KindAppointment || events[0].Chunks != 1 {
		t.Fatalf("event payload wrong: %+v", events[0])
	}

	// full runs acknowledge sync status back to the source too, so the
	// next incremental run only fetches new writes
	if src.markedKind != connector.KindAppointment {
		t.Fatal("full run should call MarkSynced")
	}
	if len(src.markedIDs) != 2 || src.markedIDs[0] != 1 || src.markedIDs[1] != 2 {
		t.Fatalf("marked ids = %v", src.markedIDs)
	}
}

func TestRunIncrementalMarksSynced(t *testing.T) {
	src := &fakeSource{
		records: map[string][]connector.Record{
			connector.KindAppointment: {
				appointmentRecord(1, "Jane Roe", "2025-06-01 09:00:00"),
				appointmentRecord(2, "John Doe", "2025-06-01 10:00:00"),
			},
		},
		markCount: 1, // partial confirmation must not fail the run
	}
	p, _, _, _ := newPipeline(t, src)

	result, err := p.Run(context.Background(), etl.RunOptions{
		Kinds:       []string{connector.KindAppointment},
		Incremental: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.RecordsIndexed != 2 {
		t.Fatalf("records = %d, want 2", result.RecordsIndexed)
	}
	if src.markedKind != connector.KindAppointment {
		t.Fatal("incremental run should call MarkSynced")
	}
	if len(src.markedIDs) != 2 || src.markedIDs[0] != 1 || src.markedIDs[1] != 2 {
		t.Fatalf("marked ids = %v", src.markedIDs)
	}
	if len(result.Kinds) != 1 || result.Kinds[0].Error != "" {
		t.Fatalf("partial mark confirmation should not error: %+v", result.Kinds)
	}
}

func TestRunWatermarkCoercesBadWriteDate(t *testing.T) {
	src := &fakeSource{records: map[string][]connector.Record{
		connector.KindAppointment: {
			appointmentRecord(1, "Jane Roe", "2020-01-01 00:00:00"),
			appointmentRecord(2, "John Doe", "not-a-date"),
		},
	}}
	p, _, marks, _ := newPipeline(t, src)
	ctx := context.Background()

	start := time.Now().UTC().Add(-time.Second)
	if _, err := p.Run(ctx, etl.RunOptions{Kinds: []string{connector.KindAppointment}}); err != nil {
		t.Fatal(err)
	}

	// The unparseable date counts as "now", which outranks the old but
	// valid date from the first record.
	wm, err := marks.Get(ctx, connector.KindAppointment)
	if err != nil {
		t.Fatal(err)
	}
	if wm.LastWriteDate.Before(start) {
		t.Fatalf("last write = %v, want at least %v", wm.LastWriteDate, start)
	}
}

func TestRunSkipsUnknownKind(t *testing.T) {
	src := &fakeSource{records: map[string][]connector.Record{}}
	p, _, _, _ := newPipeline(t, src)

	result, err := p.Run(context.Background(), etl.RunOptions{Kinds: []string{"imaging"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Kinds) != 0 {
		t.Fatalf("unknown kind should be skipped, got %+v", result.Kinds)
	}
}

func TestRunKindIsolation(t *testing.T) {
	src := &fakeSource{
		records: map[string][]connector.Record{
			connector.KindPatient: {
				{"id": float64(5), "name": "Jane Roe", "patient_seq": "PAT-5", "write_date": "2025-06-01 00:00:00"},
			},
		},
		failOn: connector.KindAppointment,
	}
	p, _, _, _ := newPipeline(t, src)

	result, err := p.Run(context.Background(), etl.RunOptions{
		Kinds: []string{connector.KindAppointment, connector.KindPatient},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Kinds) != 2 {
		t.Fatalf("expected both kinds reported, got %d", len(result.Kinds))
	}
	if result.Kinds[0].Error == "" {
		t.Fatal("failing kind should carry its error")
	}
	if result.Kinds[1].Error != "" || result.Kinds[1].RecordsIndexed != 1 {
		t.Fatalf("healthy kind should still index: %+v", result.Kinds[1])
	}
}

func TestRunEmptyFetchWritesNothing(t *testing.T) {
	src := &fakeSource{records: map[string][]connector.Record{}}
	p, _, marks, pub := newPipeline(t, src)
	ctx := context.Background()

	result, err := p.Run(ctx, etl.RunOptions{Kinds: []string{connector.KindDisease}})
	if err != nil {
		t.Fatal(err)
	}
	if result.RecordsIndexed != 0 {
		t.Fatalf("records = %d, want 0", result.RecordsIndexed)
	}
	if _, err := marks.Get(ctx, connector.KindDisease); !errors.Is(err, watermark.ErrNotFound) {
		t.Fatal("empty run should not advance the watermark")
	}
	if len(pub.Published()) != 0 {
		t.Fatal("empty run should publish nothing")
	}
}

func TestRunTrimsStaleChunks(t *testing.T) {
	src := &fakeSource{records: map[string][]connector.Record{
		connector.KindAppointment: {
			appointmentRecord(1, "Jane Roe", "2025-06-01 09:00:00"),
		},
	}}
	p, store, _, _ := newPipeline(t, src)
	ctx := context.Background()

	// simulate an earlier index where the record produced three chunks
	stale := make([]vector.Chunk, 3)
	for i := range stale {
		stale[i] = vector.Chunk{
			SourceKind: connector.KindAppointment,
			SourceID:   1,
			ChunkIndex: i,
			Content:    "old",
			Metadata:   map[string]any{},
			Embedding:  []float32{1, 0, 0, 0},
		}
	}
	if err := store.Upsert(ctx, stale); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Run(ctx, etl.RunOptions{Kinds: []string{connector.KindAppointment}}); err != nil {
		t.Fatal(err)
	}

	stats, _ := store.Stats(ctx)
	if stats.ByKind[connector.KindAppointment] != 1 {
		t.Fatalf("stale chunks not trimmed: %d remain", stats.ByKind[connector.KindAppointment])
	}
}

func TestStats(t *testing.T) {
	src := &fakeSource{records: map[string][]connector.Record{
		connector.KindAppointment: {appointmentRecord(1, "Jane Roe", "2025-06-01 09:00:00")},
	}}
	p, _, _, _ := newPipeline(t, src)
	ctx := context.Background()

	if _, err := p.Run(ctx, etl.RunOptions{Kinds: []string{connector.KindAppointment}}); err != nil {
		t.Fatal(err)
	}

	status, err := p.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.Store.Total != 1 {
		t.Fatalf("store total = %d, want 1", status.Store.Total)
	}
	if len(status.Watermarks) != 1 || status.Watermarks[0].SourceKind != connector.KindAppointment {
		t.Fatalf("watermarks = %+v", status.Watermarks)
	}
}
