package cache

import (
	"context"
	"sync"
	"time"
)

type cacheEntry[T any] struct {
	value     T
	expiresAt time.Time
}

func (e *cacheEntry[T]) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// InMemoryAvailabilityCache implements AvailabilityCache in process memory.
// Entries of a SKU expire together, ttl after its last write.
type InMemoryAvailabilityCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry[map[string]StockLevel]
	ttl     time.Duration
	now     func() time.Time
}

// NewInMemoryAvailabilityCache creates a cache; ttl <= 0 never expires
func NewInMemoryAvailabilityCache(ttl time.Duration) *InMemoryAvailabilityCache {
	return &InMemoryAvailabilityCache{
		entries: make(map[string]*cacheEntry[map[string]StockLevel]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set stores level for the record, replacing an older one
func (c *InMemoryAvailabilityCache) Set(_ context.Context, sku, warehouseID string, level StockLevel) error {
	sku = normalizeSKU(sku)
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[sku]
	if !ok || entry.isExpired(now) {
		entry = &cacheEntry[map[string]StockLevel]{value: make(map[string]StockLevel)}
		c.entries[sku] = entry
	}
	if prev, ok := entry.value[warehouseID]; ok && level.Sequence != 0 && prev.Sequence > level.Sequence {
		return nil
	}
	entry.value[warehouseID] = level
	if c.ttl > 0 {
		entry.expiresAt = now.Add(c.ttl)
	}
	return nil
}

// Get returns a copy of the levels cached for sku
func (c *InMemoryAvailabilityCache) Get(_ context.Context, sku string) (map[string]StockLevel, error) {
	sku = normalizeSKU(sku)
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]StockLevel)
	entry, ok := c.entries[sku]
	if !ok || entry.isExpired(c.now()) {
		return out, nil
	}
	for wh, level := range entry.value {
		out[wh] = level
	}
	return out, nil
}

// Delete drops sku
func (c *InMemoryAvailabilityCache) Delete(_ context.Context, sku string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, normalizeSKU(sku))
	return nil
}

var _ AvailabilityCache = (*InMemoryAvailabilityCache)(nil)
