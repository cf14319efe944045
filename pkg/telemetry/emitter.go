package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultEmitterBuffer = 1024

// Emitter decouples tier operations from the publisher. Emit never
// blocks: events go into a buffered channel drained by a single
// goroutine, and when the buffer is full the event is dropped and
// counted. Tier latency must not depend on stream backend latency.
type Emitter struct {
	pub     Publisher
	ch      chan *Event
	logger  *slog.Logger
	wg      sync.WaitGroup
	dropped int64
	mu      sync.Mutex
	closed  bool
}

// NewEmitter starts an emitter draining into pub. A nil pub yields an
// emitter that discards everything, so callers never need nil checks.
func NewEmitter(pub Publisher, logger *slog.Logger) *Emitter {
	e := &Emitter{
		pub:    pub,
		ch:     make(chan *Event, defaultEmitterBuffer),
		logger: logger,
	}

	if pub != nil {
		e.wg.Add(1)
		go e.drain()
	}

	return e
}

// Emit enqueues an event for publication. Non-blocking: a full buffer
// drops the event and increments the drop counter.
func (e *Emitter) Emit(event *Event) {
	if e.pub == nil || event == nil {
		return
	}

	// The send happens under the same lock Close holds while closing
	// the channel, so Emit can never send on a closed channel.
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	select {
	case e.ch <- event:
		e.mu.Unlock()
	default:
		e.dropped++
		dropped := e.dropped
		e.mu.Unlock()
		e.logger.Warn("telemetry buffer full, event dropped",
			"event_type", event.EventType,
			"dropped_total", dropped,
		)
	}
}

// Dropped reports how many events were discarded due to backpressure.
func (e *Emitter) Dropped() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Close stops accepting events, drains the buffer, and closes the
// publisher.
func (e *Emitter) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.ch)
	e.mu.Unlock()

	e.wg.Wait()

	if e.pub != nil {
		return e.pub.Close()
	}
	return nil
}

func (e *Emitter) drain() {
	defer e.wg.Done()

	for event := range e.ch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := e.pub.Publish(ctx, event); err != nil {
			e.logger.Warn("publishing lifecycle event failed",
				"event_type", event.EventType,
				"error", err,
			)
		}
		cancel()
	}
}
