package nop

import (
	"context"

	"github.com/papercomputeco/escrowd/pkg/eventstream"
)

// Publisher is a no-op eventstream publisher used for tests and disabled mode.
type Publisher struct{}

// NewPublisher creates a new no-op eventstream publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// PublishOrder validates input and otherwise does nothing.
func (p *Publisher) PublishOrder(_ context.Context, event *eventstream.OrderEvent) error {
	if event == nil {
		return eventstream.ErrNilOrderEvent
	}

	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error {
	return nil
}
