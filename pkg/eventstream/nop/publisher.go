// Package nop provides a no-op eventstream publisher for tests and for
// deployments that run without a broker.
package nop

import (
	"context"

	"github.com/clidram/medrag/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishRecord validates input and otherwise does nothing.
func (p *Publisher) PublishRecord(_ context.Context, event *eventstream.RecordIndexedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
