package odm

import (
	"context"
	"errors"
	"sync"
)

// Registry owns the store handle and the models registered against it.
// It replaces a process-wide connection: construct one per store and pass it where models
// are needed.
type Registry struct {
	store  Store
	mu     sync.Mutex
	models map[string]*Model
	observability
}

// Option defines a functional option for configuring a Registry.
type Option func(*Registry) error

// WithLogger sets the logger for the Registry and all its models.
// The logger will receive messages at different levels based on its configured level:
//
// Debug level: store calls with execution timing (development use)
// Info level: document counts, registered models and indexes (production-safe)
// Warn level: non-critical issues like cursor close failures or failing post hooks
// Error level: store failures.
func WithLogger(logger Logger) Option {
	return func(r *Registry) error {
		r.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Registry and all its models.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(r *Registry) error {
		r.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Registry and all its models.
// It receives operation durations, returned document counts, store errors and
// duplicate key conflicts.
func WithMetrics(collector MetricsCollector) Option {
	return func(r *Registry) error {
		r.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Registry and all its models.
// Every store call runs inside a span named after its operation, e.g. "odm.find".
func WithTracing(collector TracingCollector) Option {
	return func(r *Registry) error {
		r.tracingCollector = collector
		return nil
	}
}

// NewRegistry creates a Registry for the given store with optional configuration.
func NewRegistry(store Store, options ...Option) (*Registry, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	r := &Registry{
		store:  store,
		models: make(map[string]*Model),
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Model registers a model for schema under name, or returns the model already registered
// under that name. Registering freezes the schema and creates its indexes in the store.
// Registering a name again with a different schema fails with ErrModelRedefined.
func (r *Registry) Model(ctx context.Context, name string, schema *Schema) (*Model, error) {
	if name == "" {
		return nil, ErrEmptyModelName
	}

	if schema == nil {
		return nil, ErrNilSchema
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.models[name]; ok {
		if existing.schema != schema {
			return nil, ErrModelRedefined
		}

		return existing, nil
	}

	schema.freeze()

	collectionName := collectionNameFor(name, schema)
	m := &Model{
		name:           name,
		schema:         schema,
		collectionName: collectionName,
		collection:     r.store.Collection(collectionName),
		observability:  r.observability,
	}

	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}

	r.models[name] = m
	r.logInfo(ctx, logMsgOperation+logMsgModelRegistered, logAttrModel, name, logAttrCollection, collectionName)

	return m, nil
}

// Lookup returns the model registered under name.
func (r *Registry) Lookup(name string) (*Model, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.models[name]

	return m, ok
}

// Store returns the store the registry was created with.
func (r *Registry) Store() Store {
	return r.store
}

func (m *Model) ensureIndexes(ctx context.Context) error {
	for _, index := range m.schema.Indexes() {
		if index.Options.Name == "" {
			index.Options.Name = IndexName(index.Keys)
		}

		indexCtx, observer := m.startOperation(ctx, operationCreateIndex)
		if err := observer.finish(m.collection.CreateIndex(indexCtx, index)); err != nil {
			return errors.Join(ErrCreatingIndexFailed, err)
		}

		m.logInfo(ctx, logMsgOperation+logMsgIndexCreated, logAttrModel, m.name, logAttrIndex, index.Options.Name)
	}

	return nil
}
