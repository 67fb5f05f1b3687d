package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/memengine"
	"github.com/hydromelvictor/gogoose/odm/oteladapters"
)

func newTracer(t *testing.T) (trace.Tracer, *tracetest.InMemoryExporter) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	return provider.Tracer("test"), exporter
}

func attributeValue(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) {
			return attr.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_Starts_And_Finishes_Spans(t *testing.T) {
	// arrange
	tracer, exporter := newTracer(t)
	collector := oteladapters.NewTracingCollector(tracer)

	// act
	ctx, spanCtx := collector.StartSpan(context.Background(), "odm.find", map[string]string{"odm.model": "User"})
	spanCtx.AddAttribute("odm.collection", "users")
	collector.FinishSpan(spanCtx, "success", map[string]string{"result": "ok"})

	// assert
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "odm.find", span.Name)
	assert.Equal(t, trace.SpanKindClient, span.SpanKind)
	assert.Equal(t, codes.Ok, span.Status.Code)

	for key, want := range map[string]string{"odm.model": "User", "odm.collection": "users", "result": "ok"} {
		got, found := attributeValue(span, key)
		assert.True(t, found, key)
		assert.Equal(t, want, got, key)
	}
}

func Test_TracingCollector_Status_Mapping(t *testing.T) {
	tests := []struct {
		status          string
		wantCode        codes.Code
		wantDescription string
		wantAttribute   bool
	}{
		{status: "success", wantCode: codes.Ok},
		{status: "ok", wantCode: codes.Ok},
		{status: "error", wantCode: codes.Error, wantDescription: "store call failed"},
		{status: "retrying", wantCode: codes.Unset, wantAttribute: true},
	}

	for _, tc := range tests {
		t.Run(tc.status, func(t *testing.T) {
			// arrange
			tracer, exporter := newTracer(t)
			collector := oteladapters.NewTracingCollector(tracer)
			_, spanCtx := collector.StartSpan(context.Background(), "odm.count", nil)

			// act
			collector.FinishSpan(spanCtx, tc.status, nil)

			// assert
			spans := exporter.GetSpans()
			require.Len(t, spans, 1)
			assert.Equal(t, tc.wantCode, spans[0].Status.Code)
			assert.Equal(t, tc.wantDescription, spans[0].Status.Description)

			status, found := attributeValue(spans[0], "status")
			assert.Equal(t, tc.wantAttribute, found)
			if tc.wantAttribute {
				assert.Equal(t, tc.status, status)
			}
		})
	}
}

func Test_TracingCollector_Ignores_Foreign_Span_Contexts(t *testing.T) {
	// arrange
	tracer, exporter := newTracer(t)
	collector := oteladapters.NewTracingCollector(tracer)

	// act
	collector.FinishSpan(nil, "success", nil)

	// assert
	assert.Empty(t, exporter.GetSpans())
}

func Test_TracingCollector_Traces_Model_Operations(t *testing.T) {
	// arrange
	ctx := context.Background()
	tracer, exporter := newTracer(t)
	store, err := memengine.New()
	require.NoError(t, err)
	registry, err := odm.NewRegistry(store, odm.WithTracing(oteladapters.NewTracingCollector(tracer)))
	require.NoError(t, err)
	schema, err := odm.NewSchema(odm.Definition{
		odm.F("name", odm.M{"type": "string", "required": true, "unique": true}),
	})
	require.NoError(t, err)
	users, err := registry.Model(ctx, "User", schema)
	require.NoError(t, err)

	// act
	_, err = users.Create(ctx, odm.Record{"name": "ann"})
	require.NoError(t, err)
	_, dupErr := users.Create(ctx, odm.Record{"name": "ann"})

	// assert
	require.ErrorIs(t, dupErr, odm.ErrDuplicateKey)

	var names []string
	var statuses []codes.Code
	for _, span := range exporter.GetSpans() {
		names = append(names, span.Name)
		statuses = append(statuses, span.Status.Code)
	}
	assert.Equal(t, []string{"odm.create_index", "odm.insert_one", "odm.insert_one"}, names)
	assert.Equal(t, []codes.Code{codes.Ok, codes.Ok, codes.Error}, statuses)
}
