package telemetry_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap/zaptest"

	"github.com/erp/fulfillment/internal/infrastructure/telemetry"
)

// collect reads all metrics from reader into a name-indexed map
func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, key attribute.Key, value string) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(key); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{ServiceName: "fulfillment-test"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func histogramFor(t *testing.T, m metricdata.Metrics) metricdata.HistogramDataPoint[float64] {
	t.Helper()
	h, ok := m.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "metric %s is not a float64 histogram", m.Name)
	require.Len(t, h.DataPoints, 1)
	return h.DataPoints[0]
}

func TestMeterProviderWithReader_PinsHistogramBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := telemetry.NewMeterProviderWithReader(reader, nil)
	defer func() { _ = mp.Shutdown(context.Background()) }()

	ctx := context.Background()
	meter := mp.Meter("test")

	ops, err := meter.Float64Histogram(telemetry.MetricOperationDuration)
	require.NoError(t, err)
	ops.Record(ctx, 0.0002)

	reqs, err := meter.Float64Histogram(telemetry.MetricHTTPRequestDuration)
	require.NoError(t, err)
	reqs.Record(ctx, 0.02)
	reqs.Record(ctx, 0.3)

	other, err := meter.Float64Histogram("unrelated_seconds")
	require.NoError(t, err)
	other.Record(ctx, 1)

	metrics := collect(t, reader)

	dp := histogramFor(t, metrics[telemetry.MetricOperationDuration])
	assert.Equal(t, telemetry.OperationDurationBuckets, dp.Bounds)
	assert.Equal(t, uint64(1), dp.Count)

	dp = histogramFor(t, metrics[telemetry.MetricHTTPRequestDuration])
	assert.Equal(t, telemetry.HTTPDurationBuckets, dp.Bounds)
	assert.Equal(t, uint64(2), dp.Count)

	dp = histogramFor(t, metrics["unrelated_seconds"])
	assert.NotEqual(t, telemetry.OperationDurationBuckets, dp.Bounds)
	assert.NotEqual(t, telemetry.HTTPDurationBuckets, dp.Bounds)
}

func TestInventoryMetrics_OperationDurationUsesLedgerBuckets(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := telemetry.NewMeterProviderWithReader(reader, nil)
	defer func() { _ = mp.Shutdown(context.Background()) }()

	m, err := telemetry.NewInventoryMetrics(mp.Meter("inventory"), nil)
	require.NoError(t, err)
	m.RecordOperation(context.Background(), "restock", time.Now(), nil)

	metrics := collect(t, reader)
	assert.Equal(t, int64(1), sumFor(t, metrics["inventory_operations_total"], telemetry.AttrOperation, "restock"))
	dp := histogramFor(t, metrics[telemetry.MetricOperationDuration])
	assert.Equal(t, telemetry.OperationDurationBuckets, dp.Bounds)
	op, ok := dp.Attributes.Value(telemetry.AttrOperation)
	require.True(t, ok)
	assert.Equal(t, "restock", op.AsString())
}
