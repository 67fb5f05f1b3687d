// Package oteladapters provides OpenTelemetry implementations of the odm observability
// interfaces: odm.ContextualLogger, odm.ContextualMetricsCollector and odm.TracingCollector.
//
// It lives in its own module so that applications which do not use OpenTelemetry do not
// pull in its dependencies.
//
// Usage example:
//
//	tracer := otel.Tracer("my-service")
//	meter := otel.Meter("my-service")
//
//	registry, _ := odm.NewRegistry(
//		store,
//		odm.WithContextualLogger(oteladapters.NewSlogBridgeLogger("my-service")),
//		odm.WithMetrics(oteladapters.NewMetricsCollector(meter)),
//		odm.WithTracing(oteladapters.NewTracingCollector(tracer)),
//	)
package oteladapters
