// Package pgtesthelpers provides test utilities for the PostgreSQL document store with multi-adapter support.
//
// This package enables testing across different PostgreSQL drivers (pgx, sql.DB, sqlx.DB) through
// a unified Wrapper interface. Test adapter selection is controlled via the ADAPTER_TYPE environment
// variable. Tests are skipped when the test database cannot be reached.
//
// Adapter Types:
//
//	PGXPoolWrapper: wraps pgx.Pool for high-performance connection pooling
//	SQLDBWrapper: wraps database/sql with the lib/pq driver
//	SQLXWrapper: wraps sqlx.DB
//
// Environment Variables:
//
//	ADAPTER_TYPE: selects adapter (pgx.pool, sql.db, sqlx.db)
//	TEST_POSTGRES_DSN: PostgreSQL test instance DSN
package pgtesthelpers
