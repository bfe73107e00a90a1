package event

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// subscription is one handler of the outbound stream. A nil types set
// receives every event.
type subscription struct {
	handler shared.EventHandler
	name    string
	types   map[string]struct{}

	delivered    atomic.Uint64
	failed       atomic.Uint64
	lastSequence atomic.Uint64
}

func (s *subscription) wants(eventType string) bool {
	if s.types == nil {
		return true
	}
	_, ok := s.types[eventType]
	return ok
}

// record counts one handled event. lastSequence only moves forward: with
// async dispatch, partitions finish out of global order.
func (s *subscription) record(seq uint64, err error) {
	if err != nil {
		s.failed.Add(1)
		return
	}
	s.delivered.Add(1)
	for {
		cur := s.lastSequence.Load()
		if seq <= cur || s.lastSequence.CompareAndSwap(cur, seq) {
			return
		}
	}
}

func (s *subscription) status() shared.SubscriptionStatus {
	var types []string
	for t := range s.types {
		types = append(types, t)
	}
	sort.Strings(types)
	return shared.SubscriptionStatus{
		Handler:      s.name,
		EventTypes:   types,
		Delivered:    s.delivered.Load(),
		Failed:       s.failed.Load(),
		LastSequence: s.lastSequence.Load(),
	}
}

// subscriptions keeps handlers in the order they subscribed, and every
// event is handed to them in that order. The event journal is subscribed
// ahead of the Kafka fan-out, so an event is stored before it leaves the
// process.
type subscriptions struct {
	mu   sync.RWMutex
	list []*subscription
}

// add subscribes handler to eventTypes, or to every event when none are
// given. Subscribing an already subscribed handler widens its filter.
func (r *subscriptions) add(handler shared.EventHandler, eventTypes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.list {
		if s.handler != handler {
			continue
		}
		if len(eventTypes) == 0 {
			s.types = nil
		} else if s.types != nil {
			for _, t := range eventTypes {
				s.types[t] = struct{}{}
			}
		}
		return
	}

	s := &subscription{handler: handler, name: fmt.Sprintf("%T", handler)}
	if len(eventTypes) > 0 {
		s.types = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			s.types[t] = struct{}{}
		}
	}
	r.list = append(r.list, s)
}

func (r *subscriptions) remove(handler shared.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.list[:0:0]
	for _, s := range r.list {
		if s.handler != handler {
			kept = append(kept, s)
		}
	}
	r.list = kept
}

// matching returns the subscriptions receiving eventType, in subscription order
func (r *subscriptions) matching(eventType string) []*subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*subscription, 0, len(r.list))
	for _, s := range r.list {
		if s.wants(eventType) {
			out = append(out, s)
		}
	}
	return out
}

func (r *subscriptions) statuses() []shared.SubscriptionStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]shared.SubscriptionStatus, len(r.list))
	for i, s := range r.list {
		out[i] = s.status()
	}
	return out
}
