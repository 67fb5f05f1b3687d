// Package config provides PostgreSQL database configuration for document store testing.
//
// This package contains factory functions for creating database connections
// using the supported PostgreSQL adapters (pgx.Pool, sql.DB, sqlx.DB)
// with a pre-configured test database DSN that can be overridden from the environment.
package config
