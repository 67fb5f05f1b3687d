package odm

import (
	"context"
	"errors"
	"math"
	"time"
)

// Logger interface for store call logging, operation summaries, warnings, and error reporting.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// ContextualLogger interface for context-aware logging, e.g. with trace correlation.
// *slog.Logger satisfies it.
type ContextualLogger interface {
	DebugContext(ctx context.Context, msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
}

// MetricsCollector interface for collecting model operation metrics.
type MetricsCollector interface {
	RecordDuration(metric string, duration time.Duration, labels map[string]string)
	IncrementCounter(metric string, labels map[string]string)
	RecordValue(metric string, value float64, labels map[string]string)
}

// ContextualMetricsCollector extends MetricsCollector with context-aware methods.
// It is optional: models use the context-aware methods when available and fall back to
// the base MetricsCollector otherwise.
type ContextualMetricsCollector interface {
	MetricsCollector
	RecordDurationContext(ctx context.Context, metric string, duration time.Duration, labels map[string]string)
	IncrementCounterContext(ctx context.Context, metric string, labels map[string]string)
	RecordValueContext(ctx context.Context, metric string, value float64, labels map[string]string)
}

// SpanContext represents an active tracing span that can be finished and updated with attributes.
type SpanContext interface {
	SetStatus(status string)
	AddAttribute(key, value string)
}

// TracingCollector interface for tracing model operations with any tracing backend.
type TracingCollector interface {
	StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, SpanContext)
	FinishSpan(spanCtx SpanContext, status string, attrs map[string]string)
}

// Metric names recorded by models.
const (
	MetricOperationDuration = "odm_operation_duration_seconds"
	MetricDocumentsReturned = "odm_documents_returned"
	MetricStoreErrors       = "odm_store_errors_total"
	MetricDuplicateKeys     = "odm_duplicate_keys_total"
)

// Label keys attached to model metrics.
const (
	LabelModel     = "model"
	LabelOperation = "operation"
	LabelStatus    = "status"
)

// SpanPrefix prefixes the name of every span started for a store call ("odm.find").
const SpanPrefix = "odm."

// Span attribute keys.
const (
	SpanAttrModel      = "odm.model"
	SpanAttrCollection = "odm.collection"
	SpanAttrOperation  = "odm.operation"
	SpanAttrError      = "error"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	operationInsertOne   = "insert_one"
	operationInsertMany  = "insert_many"
	operationFind        = "find"
	operationUpdateOne   = "update_one"
	operationUpdateMany  = "update_many"
	operationDeleteOne   = "delete_one"
	operationDeleteMany  = "delete_many"
	operationCount       = "count"
	operationAggregate   = "aggregate"
	operationCreateIndex = "create_index"

	logMsgStoreCall        = "odm store call: "
	logMsgOperation        = "odm operation: "
	logMsgStoreCallFailed  = "odm store call failed"
	logMsgCloseCursor      = "failed to close cursor"
	logMsgHookFailed       = "post hooks failed after store write"
	logMsgModelRegistered  = "model registered"
	logMsgIndexCreated     = "index created"
	logMsgDocumentsFound   = "documents found"
	logMsgDocumentsCreated = "documents created"
	logAttrModel           = "model"
	logAttrCollection      = "collection"
	logAttrOperation       = "operation"
	logAttrError           = "error"
	logAttrDurationMS      = "duration_ms"
	logAttrCount           = "count"
	logAttrIndex           = "index"
	logAttrHook            = "hook"
	logAttrFailures        = "failures"
)

// observability bundles the optional collaborators shared by a Registry and its models.
type observability struct {
	logger           Logger
	contextualLogger ContextualLogger
	metricsCollector MetricsCollector
	tracingCollector TracingCollector
}

func (o observability) logDebug(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.DebugContext(ctx, msg, args...)
	}

	if o.logger != nil {
		o.logger.Debug(msg, args...)
	}
}

func (o observability) logInfo(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.InfoContext(ctx, msg, args...)
	}

	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o observability) logWarn(ctx context.Context, msg string, args ...any) {
	if o.contextualLogger != nil {
		o.contextualLogger.WarnContext(ctx, msg, args...)
	}

	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

func (o observability) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if o.contextualLogger != nil {
		o.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}

	if o.logger != nil {
		o.logger.Error(msg, allArgs...)
	}
}

func (o observability) recordDuration(ctx context.Context, duration time.Duration, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if collector, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		collector.RecordDurationContext(ctx, MetricOperationDuration, duration, labels)
		return
	}

	o.metricsCollector.RecordDuration(MetricOperationDuration, duration, labels)
}

func (o observability) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if collector, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		collector.RecordValueContext(ctx, metric, value, labels)
		return
	}

	o.metricsCollector.RecordValue(metric, value, labels)
}

func (o observability) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if o.metricsCollector == nil {
		return
	}

	if collector, ok := o.metricsCollector.(ContextualMetricsCollector); ok {
		collector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	o.metricsCollector.IncrementCounter(metric, labels)
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// operationObserver times one store call of a model and reports it to the logger and the
// metrics collector.
type operationObserver struct {
	model     *Model
	ctx       context.Context
	span      SpanContext
	operation string
	start     time.Time
}

// startOperation returns the context to run the store call with. It carries the span when
// a TracingCollector is configured.
func (m *Model) startOperation(ctx context.Context, operation string) (context.Context, *operationObserver) {
	var span SpanContext
	if m.tracingCollector != nil {
		ctx, span = m.tracingCollector.StartSpan(ctx, SpanPrefix+operation, map[string]string{
			SpanAttrModel:      m.name,
			SpanAttrCollection: m.collectionName,
			SpanAttrOperation:  operation,
		})
	}

	return ctx, &operationObserver{
		model:     m,
		ctx:       ctx,
		span:      span,
		operation: operation,
		start:     time.Now(),
	}
}

func (oo *operationObserver) finishSpan(err error) {
	tracer := oo.model.tracingCollector
	if tracer == nil || oo.span == nil {
		return
	}

	if err == nil {
		tracer.FinishSpan(oo.span, statusSuccess, nil)
		return
	}

	tracer.FinishSpan(oo.span, statusError, map[string]string{SpanAttrError: err.Error()})
}

func (oo *operationObserver) labels(status string) map[string]string {
	return map[string]string{
		LabelModel:     oo.model.name,
		LabelOperation: oo.operation,
		LabelStatus:    status,
	}
}

// finish records the outcome of the store call and returns err unchanged.
func (oo *operationObserver) finish(err error) error {
	duration := time.Since(oo.start)
	obs := oo.model.observability
	oo.finishSpan(err)

	obs.logDebug(
		oo.ctx,
		logMsgStoreCall+oo.operation,
		logAttrCollection, oo.model.collectionName,
		logAttrDurationMS, toMilliseconds(duration),
	)

	if err == nil {
		obs.recordDuration(oo.ctx, duration, oo.labels(statusSuccess))
		return nil
	}

	obs.recordDuration(oo.ctx, duration, oo.labels(statusError))

	if errors.Is(err, ErrDuplicateKey) {
		obs.incrementCounter(oo.ctx, MetricDuplicateKeys, oo.labels(statusError))
		return err
	}

	obs.incrementCounter(oo.ctx, MetricStoreErrors, oo.labels(statusError))
	obs.logError(
		oo.ctx,
		logMsgStoreCallFailed,
		err,
		logAttrModel, oo.model.name,
		logAttrOperation, oo.operation,
	)

	return err
}

// returned records how many documents a read produced.
func (oo *operationObserver) returned(count int) {
	oo.model.observability.recordValue(oo.ctx, MetricDocumentsReturned, float64(count), oo.labels(statusSuccess))
}
