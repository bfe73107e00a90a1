package cache

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
)

// StockLevel is the cached quantity view of one stock record
type StockLevel struct {
	OnHand    int64  `json:"on_hand"`
	Reserved  int64  `json:"reserved"`
	Available int64  `json:"available"`
	Sequence  uint64 `json:"sequence"`
}

// AvailabilityCache stores per-warehouse stock levels by SKU for readers
// that must not touch the ledger, such as storefront availability checks
type AvailabilityCache interface {
	Set(ctx context.Context, sku, warehouseID string, level StockLevel) error
	// Get returns stock levels keyed by warehouse id. An unknown SKU
	// yields an empty map.
	Get(ctx context.Context, sku string) (map[string]StockLevel, error)
	Delete(ctx context.Context, sku string) error
}

// AvailabilityProjection keeps an AvailabilityCache in step with the
// ledger by applying the post-change quantities carried on stock events
type AvailabilityProjection struct {
	cache  AvailabilityCache
	logger *zap.Logger
}

// NewAvailabilityProjection creates a projection writing to cache
func NewAvailabilityProjection(cache AvailabilityCache, logger *zap.Logger) *AvailabilityProjection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityProjection{cache: cache, logger: logger.Named("availability_projection")}
}

// EventTypes returns the stock events that change quantities
func (p *AvailabilityProjection) EventTypes() []string {
	return []string{
		inventory.EventTypeStockReserved,
		inventory.EventTypeStockCommitted,
		inventory.EventTypeStockReleased,
		inventory.EventTypeStockRestocked,
	}
}

// Handle implements shared.EventHandler
func (p *AvailabilityProjection) Handle(ctx context.Context, e shared.DomainEvent) error {
	var change inventory.StockChange
	switch ev := e.(type) {
	case *inventory.StockReservedEvent:
		change = ev.StockChange
	case *inventory.StockCommittedEvent:
		change = ev.StockChange
	case *inventory.StockReleasedEvent:
		change = ev.StockChange
	case *inventory.StockRestockedEvent:
		change = ev.StockChange
	default:
		return fmt.Errorf("availability projection: unexpected event %s", e.EventType())
	}

	level := StockLevel{
		OnHand:    change.OnHand,
		Reserved:  change.Reserved,
		Available: change.Available,
		Sequence:  e.Sequence(),
	}
	if err := p.cache.Set(ctx, change.SKU, change.WarehouseID, level); err != nil {
		p.logger.Warn("failed to update availability cache",
			zap.String("sku", change.SKU),
			zap.String("warehouse_id", change.WarehouseID),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func normalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}

var _ shared.EventHandler = (*AvailabilityProjection)(nil)
