package eventstream

import "time"

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeRecordIndexed is emitted after a source record's chunks have
	// been upserted into the vector store.
	EventTypeRecordIndexed = "medrag.record.indexed"
)

// RecordIndexedEvent is a transport-neutral event payload emitted once per
// indexed source record.
type RecordIndexedEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	SourceKind    string    `json:"source_kind"`
	SourceID      int64     `json:"source_id"`
	Chunks        int       `json:"chunks"`
	Incremental   bool      `json:"incremental"`
}
