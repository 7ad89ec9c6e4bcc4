package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clidram/medrag/pkg/connector"
	"github.com/clidram/medrag/pkg/embeddings"
	"github.com/clidram/medrag/pkg/eventstream"
	"github.com/clidram/medrag/pkg/flatten"
	"github.com/clidram/medrag/pkg/vector"
	"github.com/clidram/medrag/pkg/watermark"
)

var (
	defaultEmbedBatch  = 32
	defaultUpsertBatch = 100
	defaultWorkers     = 4
)

// Source fetches records from the EMR and reports sync status back. The
// connector client satisfies this.
type Source interface {
	FetchAll(ctx context.Context, kind string, domain connector.Domain, limit, offset int) ([]connector.Record, error)
	FetchUnsynced(ctx context.Context, kind string, limit int) ([]connector.Record, error)
	MarkSynced(ctx context.Context, kind string, ids []int64) (int, error)
}

// Config is the configuration options for the pipeline.
type Config struct {
	// Source is the EMR connector.
	Source Source

	// Embedder generates chunk embeddings.
	Embedder embeddings.Embedder

	// Store is the vector store chunks are upserted into.
	Store vector.Driver

	// Watermarks records per-kind indexing progress.
	Watermarks watermark.Store

	// Publisher receives one event per indexed record. Optional; publish
	// failures are logged and never fail a run.
	Publisher eventstream.Publisher

	// Flatten carries the chunking knobs.
	Flatten flatten.Config

	// EmbedBatch is the embedding sub-batch size (defaults to 32).
	EmbedBatch int

	// UpsertBatch is the vector store batch size (defaults to 100).
	UpsertBatch int

	// Workers bounds the embedding fan-out (defaults to 4).
	Workers int

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pipeline runs indexing for the supported source kinds.
type Pipeline struct {
	config *Config
	logger *zap.Logger
}

// NewPipeline validates the configuration and creates a pipeline.
func NewPipeline(c *Config) (*Pipeline, error) {
	if c.Source == nil {
		return nil, fmt.Errorf("etl: source is required")
	}
	if c.Embedder == nil {
		return nil, fmt.Errorf("etl: embedder is required")
	}
	if c.Store == nil {
		return nil, fmt.Errorf("etl: vector store is required")
	}
	if c.Watermarks == nil {
		return nil, fmt.Errorf("etl: watermark store is required")
	}
	if c.EmbedBatch <= 0 {
		c.EmbedBatch = defaultEmbedBatch
	}
	if c.UpsertBatch <= 0 {
		c.UpsertBatch = defaultUpsertBatch
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.Flatten.ChunkSize == 0 {
		c.Flatten = flatten.DefaultConfig()
	}

	return &Pipeline{config: c, logger: c.Logger}, nil
}

// Run indexes the requested kinds. Unknown kinds are skipped with a warning;
// a kind that fails mid-way reports its error in the result and does not
// abort the remaining kinds.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = connector.Kinds()
	}

	started := time.Now()
	result := &RunResult{}

	for _, kind := range kinds {
		if !connector.IsKind(kind) {
			p.logger.Warn("skipping unknown source kind", zap.String("kind", kind))
			continue
		}

		kr := p.runKind(ctx, kind, opts)
		if kr.Error != "" {
			p.logger.Error("indexing failed for kind",
				zap.String("kind", kind),
				zap.String("error", kr.Error),
			)
		} else {
			p.logger.Info("indexed kind",
				zap.String("kind", kind),
				zap.Int("records", kr.RecordsIndexed),
				zap.Int("chunks", kr.ChunksCreated),
			)
		}
		result.add(kr)
	}

	result.Elapsed = time.Since(started)
	return result, nil
}

// indexedRecord tracks one record's chunk span within the flattened batch.
type indexedRecord struct {
	id     int64
	chunks int
}

func (p *Pipeline) runKind(ctx context.Context, kind string, opts RunOptions) KindResult {
	kr := KindResult{SourceKind: kind}

	records, err := p.fetch(ctx, kind, opts)
	if err != nil {
		kr.Error = err.Error()
		return kr
	}
	if len(records) == 0 {
		p.logger.Info("no records to index", zap.String("kind", kind))
		return kr
	}

	flattener, err := flatten.New(kind, p.config.Flatten)
	if err != nil {
		kr.Error = err.Error()
		return kr
	}

	var (
		indexed  []indexedRecord
		docs     []vector.Chunk
		texts    []string
		maxWrite time.Time
	)
	for _, rec := range records {
		id := rec.Int64("id")
		chunks, err := flattener.Flatten(rec)
		if err != nil || len(chunks) == 0 {
			p.logger.Warn("skipping record that failed to flatten",
				zap.String("kind", kind),
				zap.Int64("id", id),
				zap.Error(err),
			)
			continue
		}

		for i, c := range chunks {
			docs = append(docs, vector.Chunk{
				SourceKind: kind,
				SourceID:   id,
				ChunkIndex: i,
				Content:    c.Text,
				Metadata:   c.Metadata,
			})
			texts = append(texts, c.Text)
		}
		indexed = append(indexed, indexedRecord{id: id, chunks: len(chunks)})

		// A missing or unparseable write date counts as "now" so the
		// watermark never sticks below a record we actually indexed.
		wd, ok := rec.Time("write_date")
		if !ok {
			wd = time.Now().UTC()
		}
		if wd.After(maxWrite) {
			maxWrite = wd
		}
	}
	if len(indexed) == 0 {
		return kr
	}

	embedBatch, upsertBatch := batchSizes(kind, p.config.EmbedBatch, p.config.UpsertBatch)

	vectors, err := p.embedAll(ctx, texts, embedBatch)
	if err != nil {
		kr.Error = err.Error()
		return kr
	}
	for i := range docs {
		docs[i].Embedding = vectors[i]
	}

	for start := 0; start < len(docs); start += upsertBatch {
		end := start + upsertBatch
		if end > len(docs) {
			end = len(docs)
		}
		if err := p.config.Store.Upsert(ctx, docs[start:end]); err != nil {
			kr.Error = fmt.Sprintf("upsert batch: %v", err)
			return kr
		}
	}

	for _, rec := range indexed {
		if err := p.config.Store.TrimChunks(ctx, kind, rec.id, rec.chunks); err != nil {
			p.logger.Warn("failed to trim stale chunks",
				zap.String("kind", kind),
				zap.Int64("id", rec.id),
				zap.Error(err),
			)
		}
		kr.RecordsIndexed++
		kr.ChunksCreated += rec.chunks
	}

	p.publish(ctx, kind, indexed, opts.Incremental)

	// Every successfully indexed record is acknowledged back to the EMR,
	// full runs included, so a later incremental run only sees new writes.
	ids := make([]int64, len(indexed))
	for i, rec := range indexed {
		ids[i] = rec.id
	}
	count, err := p.config.Source.MarkSynced(ctx, kind, ids)
	if err != nil {
		p.logger.Warn("failed to mark records synced",
			zap.String("kind", kind),
			zap.Error(err),
		)
	} else if count < len(ids) {
		p.logger.Warn("source confirmed fewer records than requested",
			zap.String("kind", kind),
			zap.Int("requested", len(ids)),
			zap.Int("confirmed", count),
		)
	}

	if maxWrite.IsZero() {
		maxWrite = time.Now().UTC()
	}
	if err := p.config.Watermarks.Advance(ctx, kind, maxWrite, kr.RecordsIndexed, kr.ChunksCreated); err != nil {
		p.logger.Warn("failed to advance watermark",
			zap.String("kind", kind),
			zap.Error(err),
		)
	}

	return kr
}

func (p *Pipeline) fetch(ctx context.Context, kind string, opts RunOptions) ([]connector.Record, error) {
	if opts.Incremental {
		return p.config.Source.FetchUnsynced(ctx, kind, opts.Limit)
	}
	return p.config.Source.FetchAll(ctx, kind, nil, opts.Limit, 0)
}

// publish emits one record.indexed event per record, best effort.
func (p *Pipeline) publish(ctx context.Context, kind string, indexed []indexedRecord, incremental bool) {
	if p.config.Publisher == nil {
		return
	}

	for _, rec := range indexed {
		event := &eventstream.RecordIndexedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeRecordIndexed,
			EventID:       uuid.NewString(),
			EmittedAt:     time.Now().UTC(),
			SourceKind:    kind,
			SourceID:      rec.id,
			Chunks:        rec.chunks,
			Incremental:   incremental,
		}
		if err := p.config.Publisher.PublishRecord(ctx, event); err != nil {
			p.logger.Warn("failed to publish indexing event",
				zap.String("kind", kind),
				zap.Int64("id", rec.id),
				zap.Error(err),
			)
		}
	}
}

// IndexStatus combines store stats with the per-kind watermarks for the
// status endpoint.
type IndexStatus struct {
	Store      vector.Stats          `json:"store"`
	Watermarks []watermark.Watermark `json:"watermarks"`
}

// Stats reports current index contents and sync watermarks.
func (p *Pipeline) Stats(ctx context.Context) (*IndexStatus, error) {
	stats, err := p.config.Store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	marks, err := p.config.Watermarks.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermarks: %w", err)
	}
	return &IndexStatus{Store: stats, Watermarks: marks}, nil
}
