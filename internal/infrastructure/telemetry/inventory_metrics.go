package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/erp/fulfillment/internal/domain/shared"
)

// StockStats is a point-in-time view of the ledger used for gauges
type StockStats struct {
	OnHand        map[string]int64
	Reserved      map[string]int64
	Utilization   map[string]float64
	LowStockCount int64
}

// StockStatsProvider supplies StockStats for periodic collection
type StockStatsProvider interface {
	StockStats(ctx context.Context) (StockStats, error)
}

// InventoryMetrics counts outbound inventory events and application
// operations, and samples ledger gauges periodically. It subscribes to the
// event bus as a shared.EventHandler.
type InventoryMetrics struct {
	logger *zap.Logger

	eventsTotal       metric.Int64Counter
	unitsMoved        metric.Int64Counter
	operationsTotal   metric.Int64Counter
	operationDuration metric.Float64Histogram

	onHand        metric.Int64Gauge
	reserved      metric.Int64Gauge
	lowStockCount metric.Int64Gauge
	utilization   metric.Float64Gauge

	stopChan    chan struct{}
	stopOnce    sync.Once
	collectOnce sync.Once
}

// NewInventoryMetrics creates the inventory instruments on meter
func NewInventoryMetrics(meter metric.Meter, logger *zap.Logger) (*InventoryMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &InventoryMetrics{logger: logger, stopChan: make(chan struct{})}

	var err error
	if m.eventsTotal, err = meter.Int64Counter("inventory_events_total",
		metric.WithDescription("Outbound inventory events by type"),
		metric.WithUnit("{events}")); err != nil {
		return nil, instrumentError("inventory_events_total", err)
	}
	if m.unitsMoved, err = meter.Int64Counter("inventory_units_total",
		metric.WithDescription("Units reserved, committed, released or restocked"),
		metric.WithUnit("{units}")); err != nil {
		return nil, instrumentError("inventory_units_total", err)
	}
	if m.operationsTotal, err = meter.Int64Counter("inventory_operations_total",
		metric.WithDescription("Application operations by outcome"),
		metric.WithUnit("{operations}")); err != nil {
		return nil, instrumentError("inventory_operations_total", err)
	}
	if m.operationDuration, err = meter.Float64Histogram(MetricOperationDuration,
		metric.WithDescription("Duration of application operations"),
		metric.WithUnit("s")); err != nil {
		return nil, instrumentError(MetricOperationDuration, err)
	}
	if m.onHand, err = meter.Int64Gauge("inventory_on_hand_units",
		metric.WithDescription("On-hand units per warehouse"),
		metric.WithUnit("{units}")); err != nil {
		return nil, instrumentError("inventory_on_hand_units", err)
	}
	if m.reserved, err = meter.Int64Gauge("inventory_reserved_units",
		metric.WithDescription("Reserved units per warehouse"),
		metric.WithUnit("{units}")); err != nil {
		return nil, instrumentError("inventory_reserved_units", err)
	}
	if m.lowStockCount, err = meter.Int64Gauge("inventory_low_stock_records",
		metric.WithDescription("Stock records at or below their low stock threshold"),
		metric.WithUnit("{records}")); err != nil {
		return nil, instrumentError("inventory_low_stock_records", err)
	}
	if m.utilization, err = meter.Float64Gauge("inventory_warehouse_utilization_ratio",
		metric.WithDescription("On-hand units over warehouse capacity"),
		metric.WithUnit("1")); err != nil {
		return nil, instrumentError("inventory_warehouse_utilization_ratio", err)
	}
	return m, nil
}

// EventTypes subscribes to every event
func (m *InventoryMetrics) EventTypes() []string {
	return nil
}

type quantified interface {
	shared.DomainEvent
	MovedQuantity() int64
}

// Handle counts one outbound event
func (m *InventoryMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	byType := metric.WithAttributes(AttrEventType.String(event.EventType()))
	m.eventsTotal.Add(ctx, 1, byType)
	if q, ok := event.(quantified); ok {
		m.unitsMoved.Add(ctx, q.MovedQuantity(), byType)
	}
	return nil
}

// RecordOperation records the outcome and latency of one application call
func (m *InventoryMetrics) RecordOperation(ctx context.Context, operation string, started time.Time, err error) {
	outcome := "success"
	attrs := []attribute.KeyValue{AttrOperation.String(operation)}
	if err != nil {
		outcome = "error"
		if code := shared.CodeOf(err); code != "" {
			attrs = append(attrs, AttrErrorCode.String(code))
		}
	}
	attrs = append(attrs, AttrOutcome.String(outcome))
	m.operationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.operationDuration.Record(ctx, time.Since(started).Seconds(),
		metric.WithAttributes(AttrOperation.String(operation)))
}

// RecordStockStats records one sample of the ledger gauges
func (m *InventoryMetrics) RecordStockStats(ctx context.Context, stats StockStats) {
	for wh, v := range stats.OnHand {
		m.onHand.Record(ctx, v, metric.WithAttributes(AttrWarehouseID.String(wh)))
	}
	for wh, v := range stats.Reserved {
		m.reserved.Record(ctx, v, metric.WithAttributes(AttrWarehouseID.String(wh)))
	}
	for wh, v := range stats.Utilization {
		m.utilization.Record(ctx, v, metric.WithAttributes(AttrWarehouseID.String(wh)))
	}
	m.lowStockCount.Record(ctx, stats.LowStockCount)
}

// StartPeriodicCollection samples provider every interval (default 1 minute)
// until Stop is called or ctx is done. It does not block.
func (m *InventoryMetrics) StartPeriodicCollection(ctx context.Context, provider StockStatsProvider, interval time.Duration) {
	m.collectOnce.Do(func() {
		if interval <= 0 {
			interval = time.Minute
		}
		go m.runPeriodicCollection(ctx, provider, interval)
	})
}

func (m *InventoryMetrics) runPeriodicCollection(ctx context.Context, provider StockStatsProvider, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.collect(ctx, provider)
	for {
		select {
		case <-m.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collect(ctx, provider)
		}
	}
}

func (m *InventoryMetrics) collect(ctx context.Context, provider StockStatsProvider) {
	stats, err := provider.StockStats(ctx)
	if err != nil {
		m.logger.Warn("Failed to collect stock stats", zap.Error(err))
		return
	}
	m.RecordStockStats(ctx, stats)
}

// Stop stops periodic collection
func (m *InventoryMetrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopChan)
	})
}

var _ shared.EventHandler = (*InventoryMetrics)(nil)

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewInventoryMetrics", Err: "meter cannot be nil"}

// MetricsError reports an instrument that could not be created
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

func instrumentError(name string, err error) error {
	return &MetricsError{Op: "create " + name, Err: err.Error()}
}
