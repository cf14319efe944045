package telemetry

import "context"

// Publisher publishes lifecycle events to a stream backend.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}
