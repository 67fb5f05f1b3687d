package testdoubles

import (
	"context"
	"sync"

	"github.com/hydromelvictor/gogoose/odm"
)

var _ odm.ContextualLogger = (*ContextualLoggerSpy)(nil)

// ContextualLoggerSpy is an odm.ContextualLogger that captures contextual logging calls for testing.
type ContextualLoggerSpy struct {
	records []SpyContextualLogRecord
	mu      sync.Mutex
}

// SpyContextualLogRecord represents a recorded contextual log call.
type SpyContextualLogRecord struct {
	Level   string
	Message string
	Args    []any
	Context context.Context
}

// NewContextualLoggerSpy creates a new ContextualLoggerSpy instance.
func NewContextualLoggerSpy() *ContextualLoggerSpy {
	return &ContextualLoggerSpy{}
}

// DebugContext implements the odm.ContextualLogger interface.
func (s *ContextualLoggerSpy) DebugContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "debug", msg, args)
}

// InfoContext implements the odm.ContextualLogger interface.
func (s *ContextualLoggerSpy) InfoContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "info", msg, args)
}

// WarnContext implements the odm.ContextualLogger interface.
func (s *ContextualLoggerSpy) WarnContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "warn", msg, args)
}

// ErrorContext implements the odm.ContextualLogger interface.
func (s *ContextualLoggerSpy) ErrorContext(ctx context.Context, msg string, args ...any) {
	s.record(ctx, "error", msg, args)
}

func (s *ContextualLoggerSpy) record(ctx context.Context, level string, msg string, args []any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = append(s.records, SpyContextualLogRecord{
		Level:   level,
		Message: msg,
		Args:    args,
		Context: ctx,
	})
}

// Records returns a copy of all captured records.
func (s *ContextualLoggerSpy) Records() []SpyContextualLogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]SpyContextualLogRecord, len(s.records))
	copy(records, s.records)

	return records
}

// HasRecord reports whether a record with the given level and message was captured.
func (s *ContextualLoggerSpy) HasRecord(level string, msg string) bool {
	for _, record := range s.Records() {
		if record.Level == level && record.Message == msg {
			return true
		}
	}

	return false
}

// HasRecordWithContextValue reports whether a record with the given message carries a context
// that holds value under key.
func (s *ContextualLoggerSpy) HasRecordWithContextValue(msg string, key any, value any) bool {
	for _, record := range s.Records() {
		if record.Message == msg && record.Context != nil && record.Context.Value(key) == value {
			return true
		}
	}

	return false
}
