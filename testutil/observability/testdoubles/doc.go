// Package testdoubles provides test doubles (spies) for the odm observability interfaces.
//
// This package contains spy implementations for the interfaces used by models and stores:
//   - MetricsCollectorSpy: captures metrics recording calls for verification
//   - ContextualLoggerSpy: captures structured logging with context
//   - LogHandlerSpy: captures slog records, so a *slog.Logger can serve as odm.Logger in tests
//
// These test doubles enable testing of observability instrumentation
// without requiring actual telemetry backends.
package testdoubles
