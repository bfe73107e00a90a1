package event

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// ErrBusStopped is returned by Publish after Stop
var ErrBusStopped = errors.New("event bus stopped")

// BusOption configures an InMemoryEventBus
type BusOption func(*InMemoryEventBus)

// WithAsyncDispatch makes Publish enqueue events for workers instead of
// calling handlers inline. Events are partitioned by aggregate id, so the
// events of one stock record, order or transfer are handled in the order
// they were published. Publish blocks while a partition's buffer is full.
func WithAsyncDispatch(workers, buffer int) BusOption {
	return func(b *InMemoryEventBus) {
		if workers < 1 {
			workers = 1
		}
		if buffer < 0 {
			buffer = 0
		}
		b.workers = workers
		b.buffer = buffer
	}
}

type envelope struct {
	ctx   context.Context
	event shared.DomainEvent
}

// InMemoryEventBus implements EventBus with in-memory pub/sub
type InMemoryEventBus struct {
	subs   subscriptions
	logger *zap.Logger

	workers int
	buffer  int

	mu         sync.RWMutex
	partitions []chan envelope
	running    atomic.Bool
	stopped    atomic.Bool
	wg         sync.WaitGroup
}

// NewInMemoryEventBus creates a new in-memory event bus. Without
// WithAsyncDispatch handlers run synchronously inside Publish.
func NewInMemoryEventBus(logger *zap.Logger, opts ...BusOption) *InMemoryEventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &InMemoryEventBus{
		logger: logger.Named("event_bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish hands events to every matching handler. Handler failures are
// logged and never returned.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped.Load() {
		return ErrBusStopped
	}

	if len(b.partitions) == 0 {
		for _, event := range events {
			b.dispatch(ctx, event)
		}
		return nil
	}
	// handlers outlive the request that produced the event
	detached := context.WithoutCancel(ctx)
	for _, event := range events {
		p := b.partitions[partitionOf(event.AggregateID(), len(b.partitions))]
		select {
		case p <- envelope{ctx: detached, event: event}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func partitionOf(key string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// Subscribe registers a handler for specific event types
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.subs.add(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.subs.remove(handler)
}

// Subscriptions reports every subscribed handler in dispatch order
func (b *InMemoryEventBus) Subscriptions() []shared.SubscriptionStatus {
	return b.subs.statuses()
}

// Start launches the dispatch workers of an asynchronous bus
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	if !b.running.CompareAndSwap(false, true) {
		return nil
	}
	if b.workers == 0 {
		b.logger.Info("event bus started", zap.Bool("async", false))
		return nil
	}

	b.mu.Lock()
	b.partitions = make([]chan envelope, b.workers)
	for i := range b.partitions {
		ch := make(chan envelope, b.buffer)
		b.partitions[i] = ch
		b.wg.Add(1)
		go b.work(ch)
	}
	b.mu.Unlock()

	b.logger.Info("event bus started",
		zap.Bool("async", true),
		zap.Int("workers", b.workers),
		zap.Int("buffer", b.buffer),
	)
	return nil
}

func (b *InMemoryEventBus) work(ch <-chan envelope) {
	defer b.wg.Done()
	for env := range ch {
		b.dispatch(env.ctx, env.event)
	}
}

// Stop rejects new events, drains the queued ones and waits for the
// workers, or returns ctx's error if ctx ends first
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	if !b.stopped.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	for _, ch := range b.partitions {
		close(ch)
	}
	b.partitions = nil
	b.mu.Unlock()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		b.running.Store(false)
		b.logger.Info("event bus stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, event shared.DomainEvent) {
	for _, sub := range b.subs.matching(event.EventType()) {
		err := b.dispatchToHandler(ctx, sub.handler, event)
		sub.record(event.Sequence(), err)
		if err != nil {
			b.logger.Error("handler failed to process event",
				zap.String("handler", sub.name),
				zap.String("event_type", event.EventType()),
				zap.String("event_id", event.EventID().String()),
				zap.Uint64("sequence", event.Sequence()),
				zap.Error(err),
			)
		}
	}
}

func (b *InMemoryEventBus) dispatchToHandler(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)
