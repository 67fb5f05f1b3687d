// Package odm provides a document-object mapping layer on top of a document store.
//
// It lets callers declare a Schema for a class of documents, validates and coerces data
// against that schema, tracks per-instance mutations on a Document, and composes queries
// lazily with a fluent Query builder that only talks to the store when materialized.
//
// The store itself is an external collaborator described by the Store and Collection
// interfaces. Engines are provided in sub packages:
//   - memengine: in-process collections, handy for tests
//   - postgresengine: JSONB document tables in PostgreSQL (pgx, sql.DB, sqlx)
//   - mongoengine: MongoDB collections
//
// Observability is optional and dependency-free: a Registry accepts a Logger,
// ContextualLogger, MetricsCollector and TracingCollector. Prometheus and OpenTelemetry
// implementations live in promadapters and oteladapters.
//
// Key types:
//   - FieldSpec: validation and coercion rules for one field
//   - Schema: ordered FieldSpecs, options, hooks, methods, statics and indexes
//   - Document: one record bound to a Schema with dirty-field tracking
//   - Query: lazily executed filter/projection/sort/skip/limit intent
//   - Model, Registry: bind schemas to store collections
//
// Common usage pattern:
//
//	userSchema, err := odm.NewSchema(
//		odm.Definition{
//			odm.F("username", odm.M{"type": odm.String, "required": true, "min_length": 3}),
//			odm.F("email", odm.M{"type": odm.String, "validate": "email"}),
//			odm.F("age", odm.Int),
//			odm.F("tags", []any{odm.String}),
//		},
//		odm.WithTimestamps(),
//	)
//
//	registry, _ := odm.NewRegistry(store, odm.WithLogger(slog.Default()))
//	users, _ := registry.Model(ctx, "User", userSchema)
//
//	doc, err := users.Create(ctx, odm.Record{"username": "ada", "age": 36})
//	_ = doc.Set("age", 37)
//	_, err = doc.Save(ctx)
//
//	adults, err := users.Find(odm.Filter{"age": odm.M{"$gte": 18}}).
//		Sort("-created_at").
//		Limit(5).
//		Exec(ctx)
package odm
