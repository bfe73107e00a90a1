package shared

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventOutbox is the in-process outbound event stream of the core.
//
// Mutations append their events while still holding the lock of the record
// they touched, which fixes the causal order of events per record. Each
// appended event receives the next global sequence number. Flush hands the
// pending events to the publisher in sequence order and must only be called
// after all record locks have been released, so a slow publisher never
// extends a critical section.
type EventOutbox struct {
	mu      sync.Mutex
	seq     uint64
	pending []DomainEvent

	// dispatchMu serializes flushes so that events reach the publisher in
	// sequence order even when several goroutines flush at once.
	dispatchMu sync.Mutex
	publisher  EventPublisher
	logger     *zap.Logger
}

// NewEventOutbox creates an outbox delivering to publisher
func NewEventOutbox(publisher EventPublisher, logger *zap.Logger) *EventOutbox {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventOutbox{
		publisher: publisher,
		logger:    logger,
	}
}

// Append assigns sequence numbers to events and queues them for delivery
func (o *EventOutbox) Append(events ...DomainEvent) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, e := range events {
		o.seq++
		e.AssignSequence(o.seq)
		o.pending = append(o.pending, e)
	}
}

// LastSequence returns the sequence number of the most recently appended event
func (o *EventOutbox) LastSequence() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.seq
}

// Pending returns the number of events waiting for delivery
func (o *EventOutbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Flush delivers every pending event to the publisher in sequence order.
// Publisher failures are logged; the state change behind an event has
// already happened and is never rolled back because delivery failed.
func (o *EventOutbox) Flush(ctx context.Context) {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	for {
		o.mu.Lock()
		batch := o.pending
		o.pending = nil
		o.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		if err := o.publisher.Publish(ctx, batch...); err != nil {
			o.logger.Error("failed to publish outbound events",
				zap.Int("count", len(batch)),
				zap.Uint64("first_sequence", batch[0].Sequence()),
				zap.Error(err),
			)
		}
	}
}
