// Package postgresengine provides a PostgreSQL implementation of the odm.Store interface.
//
// Every collection is stored in its own table with three columns: seq (insertion order),
// id (the document identity as text) and doc (the remaining fields as jsonb). Filters, sorts
// and updates are translated into jsonb expressions with goqu; projections and aggregation
// stages after a leading $match run on the decoded records.
//
// Key features:
//   - Multiple database adapter support (PGX, SQL, SQLX)
//   - Unique and sparse indexes as jsonb expression indexes
//   - Unique violations reported as odm.ErrDuplicateKey
//   - Replica reads for contexts marked with odm.WithEventualConsistency (pgx only)
//   - Configurable table prefix and dual-logger support
//
// Usage examples:
//
//	db, _ := pgxpool.New(context.Background(), dsn)
//	store, _ := postgresengine.NewStoreFromPGXPool(db, postgresengine.WithTablePrefix("app_"))
//
//	registry, _ := odm.NewRegistry(store)
//	users, _ := registry.Model(ctx, "User", userSchema)
package postgresengine
