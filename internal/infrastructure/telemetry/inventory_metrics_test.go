package telemetry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
	"github.com/erp/fulfillment/tests/testutil"
)

func newInventoryMetrics(t *testing.T) (*telemetry.InventoryMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	m, err := telemetry.NewInventoryMetrics(provider.Meter("test"), zap.NewNop())
	require.NoError(t, err)
	return m, reader
}

func TestNewInventoryMetrics_NilMeter(t *testing.T) {
	m, err := telemetry.NewInventoryMetrics(nil, nil)
	assert.Nil(t, m)
	assert.Equal(t, "NewInventoryMetrics: meter cannot be nil", err.Error())
}

func TestInventoryMetrics_HandleCountsEventsAndUnits(t *testing.T) {
	m, reader := newInventoryMetrics(t)
	ctx := context.Background()
	assert.Empty(t, m.EventTypes(), "subscribes to every event")

	// drive real ledger events through the handler
	pub := testutil.NewRecordingPublisher()
	ledger := inventory.NewLedger(shared.NewEventOutbox(pub, nil), nil)
	_, err := ledger.RegisterWarehouse(ctx, inventory.Warehouse{ID: "W1"})
	require.NoError(t, err)
	require.NoError(t, ledger.Restock(ctx, "X", "W1", 10))
	_, err = ledger.Reserve(ctx, inventory.Owner{Kind: inventory.OwnerOrder, ID: "o-1"}, "X", "W1", 4)
	require.NoError(t, err)

	for _, e := range pub.Events() {
		require.NoError(t, m.Handle(ctx, e))
	}
	require.NoError(t, m.Handle(ctx, testutil.NewTestEvent("order_placed", "o-1")))

	metrics := collect(t, reader)
	events := metrics["inventory_events_total"]
	assert.Equal(t, int64(1), sumFor(t, events, telemetry.AttrEventType, inventory.EventTypeStockRestocked))
	assert.Equal(t, int64(1), sumFor(t, events, telemetry.AttrEventType, inventory.EventTypeStockReserved))
	assert.Equal(t, int64(1), sumFor(t, events, telemetry.AttrEventType, "order_placed"))

	units := metrics["inventory_units_total"]
	assert.Equal(t, int64(10), sumFor(t, units, telemetry.AttrEventType, inventory.EventTypeStockRestocked))
	assert.Equal(t, int64(4), sumFor(t, units, telemetry.AttrEventType, inventory.EventTypeStockReserved))
}

func TestInventoryMetrics_RecordOperation(t *testing.T) {
	m, reader := newInventoryMetrics(t)
	ctx := context.Background()
	started := time.Now()

	m.RecordOperation(ctx, "place_order", started, nil)
	m.RecordOperation(ctx, "place_order", started, &inventory.InsufficientStockError{SKU: "X"})
	m.RecordOperation(ctx, "restock", started, errors.New("boom"))

	ops := collect(t, reader)["inventory_operations_total"]
	assert.Equal(t, int64(2), sumFor(t, ops, telemetry.AttrOperation, "place_order"))
	assert.Equal(t, int64(1), sumFor(t, ops, telemetry.AttrErrorCode, shared.CodeInsufficientStock))
	assert.Equal(t, int64(2), sumFor(t, ops, telemetry.AttrOutcome, "error"))
}

type statsFunc func(ctx context.Context) (telemetry.StockStats, error)

func (f statsFunc) StockStats(ctx context.Context) (telemetry.StockStats, error) { return f(ctx) }

func TestInventoryMetrics_PeriodicCollection(t *testing.T) {
	m, reader := newInventoryMetrics(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 16)
	provider := statsFunc(func(context.Context) (telemetry.StockStats, error) {
		calls <- struct{}{}
		return telemetry.StockStats{
			OnHand:        map[string]int64{"W1": 10},
			Reserved:      map[string]int64{"W1": 4},
			Utilization:   map[string]float64{"W1": 0.5},
			LowStockCount: 2,
		}, nil
	})
	m.StartPeriodicCollection(ctx, provider, time.Hour)
	defer m.Stop()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("collection did not run")
	}

	testutil.AssertEventually(t, func() bool {
		_, ok := collect(t, reader)["inventory_low_stock_records"]
		return ok
	}, time.Second, 10*time.Millisecond)

	metrics := collect(t, reader)
	reserved, ok := metrics["inventory_reserved_units"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	assert.Equal(t, int64(4), reserved.DataPoints[0].Value)
	util, ok := metrics["inventory_warehouse_utilization_ratio"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	assert.InDelta(t, 0.5, util.DataPoints[0].Value, 1e-9)
}
