package redisstream

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/papercomputeco/strata/pkg/cache"
	"github.com/papercomputeco/strata/pkg/telemetry"
)

// readErrorBackoff spaces out retries when the stream backend keeps
// failing, so a dead backend does not turn Run into a busy loop.
const readErrorBackoff = time.Second

// Handler processes one lifecycle event. Handler errors are logged, never
// propagated to the producer side.
type Handler func(ctx context.Context, event *telemetry.Event) error

// Consumer reads lifecycle events from the stream through a consumer
// group and dispatches them to per-event-type handlers. Each consumer
// group reads the stream independently of every other group.
type Consumer struct {
	store    cache.Store
	stream   string
	group    string
	consumer string
	handlers map[telemetry.EventType][]Handler
	logger   *slog.Logger
}

// NewConsumer creates a consumer bound to a group. An empty stream name
// uses DefaultStream.
func NewConsumer(store cache.Store, stream, group, consumer string, logger *slog.Logger) *Consumer {
	if stream == "" {
		stream = DefaultStream
	}
	return &Consumer{
		store:    store,
		stream:   stream,
		group:    group,
		consumer: consumer,
		handlers: make(map[telemetry.EventType][]Handler),
		logger:   logger,
	}
}

// On registers a handler for an event type. Call before Run.
func (c *Consumer) On(t telemetry.EventType, h Handler) {
	c.handlers[t] = append(c.handlers[t], h)
}

// Run reads the stream until ctx is cancelled. Entries with no registered
// handler are acknowledged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := c.store.StreamRead(ctx, c.stream, c.group, c.consumer, 16, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("lifecycle stream read failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		for _, entry := range entries {
			c.dispatch(ctx, entry)

			if err := c.store.StreamAck(ctx, c.stream, c.group, entry.ID); err != nil {
				c.logger.Warn("lifecycle stream ack failed", "entry_id", entry.ID, "error", err)
			}
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, entry cache.StreamEntry) {
	raw, ok := entry.Values["event"]
	if !ok {
		c.logger.Warn("lifecycle entry missing event body", "entry_id", entry.ID)
		return
	}

	var event telemetry.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		c.logger.Warn("lifecycle entry undecodable", "entry_id", entry.ID, "error", err)
		return
	}

	for _, h := range c.handlers[event.EventType] {
		if err := h(ctx, &event); err != nil {
			c.logger.Warn("lifecycle handler failed",
				"event_type", event.EventType,
				"event_id", event.EventID,
				"error", err,
			)
		}
	}
}
