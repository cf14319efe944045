// Package nop provides a telemetry publisher that validates and discards
// every event. Used when telemetry is disabled by feature flag.
package nop

import (
	"context"

	"github.com/papercomputeco/strata/pkg/telemetry"
)

// Publisher discards all events.
type Publisher struct{}

// NewPublisher creates a no-op publisher.
func NewPublisher() *Publisher { return &Publisher{} }

// Publish validates the event and drops it.
func (p *Publisher) Publish(_ context.Context, event *telemetry.Event) error {
	if event == nil {
		return telemetry.ErrNilEvent
	}
	return nil
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }
