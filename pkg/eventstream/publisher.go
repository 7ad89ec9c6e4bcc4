package eventstream

import "context"

// Publisher publishes indexing events to an event stream backend.
type Publisher interface {
	PublishRecord(ctx context.Context, event *RecordIndexedEvent) error
	Close() error
}
