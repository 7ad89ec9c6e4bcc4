package testutils

import (
	"context"
	"sync"

	"github.com/clidram/medrag/pkg/eventstream"
)

var _ eventstream.Publisher = (*RecordingPublisher)(nil)

// RecordingPublisher captures published events for assertions.
type RecordingPublisher struct {
	mu     sync.Mutex
	Events []eventstream.RecordIndexedEvent

	// Err, when set, is returned from every publish call.
	Err error
}

func NewRecordingPublisher() *RecordingPublisher {
	return &RecordingPublisher{}
}

func (p *RecordingPublisher) PublishRecord(_ context.Context, event *eventstream.RecordIndexedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	if p.Err != nil {
		return p.Err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, *event)
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Published returns a copy of the captured events.
func (p *RecordingPublisher) Published() []eventstream.RecordIndexedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]eventstream.RecordIndexedEvent, len(p.Events))
	copy(out, p.Events)
	return out
}
