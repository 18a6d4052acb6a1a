package eventstream

import "context"

// Publisher publishes order events to an event stream backend.
type Publisher interface {
	PublishOrder(ctx context.Context, event *OrderEvent) error
	Close() error
}
