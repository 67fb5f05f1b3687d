package odm

import "context"

// ConsistencyLevel defines the consistency requirements for store reads.
type ConsistencyLevel int

const (
	// StrongConsistency requires reads from the primary to ensure read-after-write
	// consistency. This is the default.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from replicas or secondaries, trading consistency
	// for a reduced load on the primary.
	EventualConsistency
)

// contextKey is a private type to prevent context key collisions.
type contextKey string

// ConsistencyLevelKey is the context key used to store consistency level preferences.
const ConsistencyLevelKey contextKey = "odm.consistency_level"

// WithStrongConsistency returns a context that signals store engines to read from the primary.
//
// Example usage:
//
//	ctx = odm.WithStrongConsistency(ctx)
//	doc, err := users.FindByID(ctx, id)
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that signals store engines they may read from a
// replica.
//
// Example usage:
//
//	ctx = odm.WithEventualConsistency(ctx)
//	docs, err := users.Find(odm.Filter{"active": true}).Exec(ctx)
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level from the context.
// If no consistency level is set, it returns StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

// String provides a string representation of ConsistencyLevel for logging and debugging.
func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
