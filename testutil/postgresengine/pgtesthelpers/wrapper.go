package pgtesthelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/hydromelvictor/gogoose/odm/postgresengine"
	"github.com/hydromelvictor/gogoose/testutil/postgresengine/config"
)

// Adapter type constants.
const (
	TypePGXPool = "pgx.pool"
	TypeSQLDB   = "sql.db"
	TypeSQLXDB  = "sqlx.db"

	envAdapterType = "ADAPTER_TYPE"
	connectTimeout = 3 * time.Second
)

// Wrapper abstracts over the different connection types.
type Wrapper interface {
	Store() *postgresengine.Store
	Close()
}

// PGXPoolWrapper wraps pgxpool-based testing.
type PGXPoolWrapper struct {
	pool  *pgxpool.Pool
	store *postgresengine.Store
}

func (w *PGXPoolWrapper) Store() *postgresengine.Store { return w.store }

func (w *PGXPoolWrapper) Close() { w.pool.Close() }

// SQLDBWrapper wraps sql.DB-based testing.
type SQLDBWrapper struct {
	db    *sql.DB
	store *postgresengine.Store
}

func (w *SQLDBWrapper) Store() *postgresengine.Store { return w.store }

func (w *SQLDBWrapper) Close() { _ = w.db.Close() }

// SQLXWrapper wraps sqlx.DB-based testing.
type SQLXWrapper struct {
	db    *sqlx.DB
	store *postgresengine.Store
}

func (w *SQLXWrapper) Store() *postgresengine.Store { return w.store }

func (w *SQLXWrapper) Close() { _ = w.db.Close() }

// AdapterTypeFromEnv returns the adapter selected by ADAPTER_TYPE, defaulting to pgx.pool.
func AdapterTypeFromEnv() string {
	adapterType := strings.ToLower(os.Getenv(envAdapterType))
	if adapterType == "" {
		return TypePGXPool
	}

	return adapterType
}

// CreateWrapperWithTestConfig connects to the test database with the adapter selected by ADAPTER_TYPE
// and builds a Store with a unique table prefix. The test is skipped when the database is unreachable.
func CreateWrapperWithTestConfig(t testing.TB, options ...postgresengine.Option) Wrapper {
	t.Helper()

	return CreateWrapper(t, AdapterTypeFromEnv(), options...)
}

// CreateWrapper is CreateWrapperWithTestConfig for an explicit adapter type.
func CreateWrapper(t testing.TB, adapterType string, options ...postgresengine.Option) Wrapper {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	options = append([]postgresengine.Option{postgresengine.WithTablePrefix(UniqueTablePrefix())}, options...)
	dsn := config.PostgresSingleDSN()

	var wrapper Wrapper

	switch adapterType {
	case TypePGXPool:
		pool, err := config.PostgresPGXPool(ctx, dsn)
		skipWhenUnreachable(t, err)

		store, err := postgresengine.NewStoreFromPGXPool(pool, options...)
		require.NoError(t, err, "error creating the store in test setup")
		wrapper = &PGXPoolWrapper{pool: pool, store: store}

	case TypeSQLDB:
		db, err := config.PostgresSQLDB(ctx, dsn)
		skipWhenUnreachable(t, err)

		store, err := postgresengine.NewStoreFromSQLDB(db, options...)
		require.NoError(t, err, "error creating the store in test setup")
		wrapper = &SQLDBWrapper{db: db, store: store}

	case TypeSQLXDB:
		db, err := config.PostgresSQLX(ctx, dsn)
		skipWhenUnreachable(t, err)

		store, err := postgresengine.NewStoreFromSQLX(db, options...)
		require.NoError(t, err, "error creating the store in test setup")
		wrapper = &SQLXWrapper{db: db, store: store}

	default:
		panic(fmt.Sprintf("unsupported adapter type: %s", adapterType))
	}

	t.Cleanup(wrapper.Close)

	return wrapper
}

// CleanUpCollections drops the tables of the given collections.
func CleanUpCollections(t testing.TB, store *postgresengine.Store, collections ...string) {
	t.Helper()

	for _, collection := range collections {
		err := store.DropCollection(context.Background(), collection)
		require.NoError(t, err, "error cleaning up collection %s", collection)
	}
}

// UniqueTablePrefix returns a table prefix that isolates one test from every other.
func UniqueTablePrefix() string {
	return "t" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12] + "_"
}

func skipWhenUnreachable(t testing.TB, err error) {
	t.Helper()

	if err != nil {
		t.Skipf("postgres test database not reachable: %v", err)
	}
}
