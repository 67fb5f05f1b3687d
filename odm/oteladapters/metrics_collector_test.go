package oteladapters_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/oteladapters"
)

func newCollector(t *testing.T) (*oteladapters.MetricsCollector, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return oteladapters.NewMetricsCollector(provider.Meter("test")), reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader, name string) metricdata.Aggregation {
	t.Helper()

	var resourceMetrics metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &resourceMetrics))

	for _, scope := range resourceMetrics.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}

	require.Failf(t, "metric not found", "%s", name)
	return nil
}

func Test_MetricsCollector_RecordDuration_In_Seconds(t *testing.T) {
	// arrange
	collector, reader := newCollector(t)
	labels := map[string]string{odm.LabelModel: "User", odm.LabelOperation: "find", odm.LabelStatus: "success"}

	// act
	collector.RecordDuration(odm.MetricOperationDuration, 150*time.Millisecond, labels)
	collector.RecordDurationContext(context.Background(), odm.MetricOperationDuration, 50*time.Millisecond, labels)

	// assert
	histogram, ok := collect(t, reader, odm.MetricOperationDuration).(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)

	point := histogram.DataPoints[0]
	assert.Equal(t, uint64(2), point.Count)
	assert.InDelta(t, 0.2, point.Sum, 0.0001)

	expected := attribute.NewSet(
		attribute.String(odm.LabelModel, "User"),
		attribute.String(odm.LabelOperation, "find"),
		attribute.String(odm.LabelStatus, "success"),
	)
	assert.True(t, point.Attributes.Equals(&expected))
}

func Test_MetricsCollector_IncrementCounter_Per_Label_Set(t *testing.T) {
	// arrange
	collector, reader := newCollector(t)

	// act
	collector.IncrementCounter(odm.MetricStoreErrors, map[string]string{odm.LabelOperation: "find"})
	collector.IncrementCounterContext(context.Background(), odm.MetricStoreErrors, map[string]string{odm.LabelOperation: "find"})
	collector.IncrementCounter(odm.MetricStoreErrors, map[string]string{odm.LabelOperation: "count"})

	// assert
	sum, ok := collect(t, reader, odm.MetricStoreErrors).(metricdata.Sum[int64])
	require.True(t, ok)
	assert.True(t, sum.IsMonotonic)

	totals := map[string]int64{}
	for _, point := range sum.DataPoints {
		operation, _ := point.Attributes.Value(attribute.Key(odm.LabelOperation))
		totals[operation.AsString()] = point.Value
	}
	assert.Equal(t, map[string]int64{"find": 2, "count": 1}, totals)
}

func Test_MetricsCollector_RecordValue_As_Distribution(t *testing.T) {
	// arrange
	collector, reader := newCollector(t)

	// act
	collector.RecordValue(odm.MetricDocumentsReturned, 3, nil)
	collector.RecordValueContext(context.Background(), odm.MetricDocumentsReturned, 7, nil)

	// assert
	histogram, ok := collect(t, reader, odm.MetricDocumentsReturned).(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, histogram.DataPoints, 1)
	assert.Equal(t, uint64(2), histogram.DataPoints[0].Count)
	assert.InDelta(t, 10.0, histogram.DataPoints[0].Sum, 0.0001)
}
