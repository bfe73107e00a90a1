package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/event"
	"github.com/erp/fulfillment/tests/testutil"
)

func TestInMemoryAvailabilityCache(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryAvailabilityCache(time.Minute)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "x", "W1", StockLevel{OnHand: 10, Available: 10, Sequence: 2}))
	require.NoError(t, c.Set(ctx, "X", "W2", StockLevel{OnHand: 4, Reserved: 1, Available: 3, Sequence: 3}))
	require.NoError(t, c.Set(ctx, "X", "W1", StockLevel{OnHand: 9, Available: 9, Sequence: 1}), "stale writes are ignored")

	got, err := c.Get(ctx, " x ")
	require.NoError(t, err)
	assert.Equal(t, map[string]StockLevel{
		"W1": {OnHand: 10, Available: 10, Sequence: 2},
		"W2": {OnHand: 4, Reserved: 1, Available: 3, Sequence: 3},
	}, got)

	got["W1"] = StockLevel{}
	again, _ := c.Get(ctx, "X")
	assert.Equal(t, int64(10), again["W1"].OnHand, "Get returns a copy")

	now = now.Add(2 * time.Minute)
	expired, err := c.Get(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, expired)

	require.NoError(t, c.Set(ctx, "Y", "W1", StockLevel{OnHand: 1}))
	require.NoError(t, c.Delete(ctx, "y"))
	gone, _ := c.Get(ctx, "Y")
	assert.Empty(t, gone)
}

func TestAvailabilityProjection_FromLedger(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryAvailabilityCache(0)
	bus := event.NewInMemoryEventBus(zap.NewNop())
	bus.Subscribe(NewAvailabilityProjection(c, zap.NewNop()))

	ledger := inventory.NewLedger(shared.NewEventOutbox(bus, zap.NewNop()), zap.NewNop())
	_, err := ledger.RegisterWarehouse(ctx, inventory.Warehouse{ID: "W1"})
	require.NoError(t, err)
	_, err = ledger.RegisterWarehouse(ctx, inventory.Warehouse{ID: "W2"})
	require.NoError(t, err)

	require.NoError(t, ledger.Restock(ctx, "X", "W1", 10))
	require.NoError(t, ledger.Restock(ctx, "X", "W2", 5))
	hold, err := ledger.Reserve(ctx, inventory.Owner{Kind: inventory.OwnerOrder, ID: "o-1"}, "X", "W1", 4)
	require.NoError(t, err)

	got, err := c.Get(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got["W1"].OnHand)
	assert.Equal(t, int64(4), got["W1"].Reserved)
	assert.Equal(t, int64(6), got["W1"].Available)
	assert.Equal(t, int64(5), got["W2"].Available)

	require.NoError(t, ledger.Commit(ctx, hold))
	got, _ = c.Get(ctx, "X")
	assert.Equal(t, StockLevel{OnHand: 6, Reserved: 0, Available: 6, Sequence: got["W1"].Sequence}, got["W1"])

	for _, snap := range ledger.Availability("X") {
		assert.Equal(t, snap.Available, got[snap.WarehouseID].Available, snap.WarehouseID)
	}
}

type failingCache struct{ InMemoryAvailabilityCache }

func (*failingCache) Set(context.Context, string, string, StockLevel) error {
	return errors.New("redis down")
}

func TestAvailabilityProjection_Errors(t *testing.T) {
	p := NewAvailabilityProjection(&failingCache{}, nil)
	ctx := context.Background()

	err := p.Handle(ctx, testutil.NewTestEvent(inventory.EventTypeStockReserved, "X@W1"))
	assert.ErrorContains(t, err, "unexpected event")

	restocked := &inventory.StockRestockedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(inventory.EventTypeStockRestocked, inventory.AggregateTypeStockRecord, "X@W1"),
	}
	assert.ErrorContains(t, p.Handle(ctx, restocked), "redis down")
	assert.Len(t, p.EventTypes(), 4)
}
