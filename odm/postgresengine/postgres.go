package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/postgresengine/internal/adapters"
)

var (
	ErrNilDatabaseConnection     = errors.New("nil database connection supplied")
	ErrEmptyTablePrefix          = errors.New("empty table prefix supplied")
	ErrReplicaNotSupported       = errors.New("replica pool is only supported for pgxpool stores")
	ErrBuildingQueryFailed       = errors.New("building query failed")
	ErrQueryingFailed            = errors.New("querying documents failed")
	ErrExecFailed                = errors.New("executing statement failed")
	ErrScanningDBRowFailed       = errors.New("scanning db row failed")
	ErrGettingRowsAffectedFailed = errors.New("getting rows affected failed")
	ErrEncodingFailed            = errors.New("encoding document failed")
	ErrDecodingFailed            = errors.New("decoding document failed")
	ErrUnsupportedIdentity       = errors.New("unsupported identity type")
)

const (
	defaultTablePrefix = "odm_"
	dialectPostgres    = "postgres"

	logMsgSQLExecuted         = "executed sql for: "
	logMsgOperation           = "postgresengine operation: "
	logMsgDBQueryFailed       = "database query execution failed"
	logMsgDBExecFailed        = "database statement execution failed"
	logMsgCloseRowsFailed     = "failed to close database rows"
	logMsgBuildQueryFailed    = "failed to build query"
	logMsgDuplicateKey        = "duplicate key rejected"
	logMsgCollectionEnsured   = "collection ensured"
	logAttrError              = "error"
	logAttrQuery              = "query"
	logAttrTable              = "table"
	logAttrDurationMS         = "duration_ms"
	logActionFind             = "find"
	logActionInsert           = "insert"
	logActionUpdate           = "update"
	logActionDelete           = "delete"
	logActionCount            = "count"
	logActionDDL              = "ddl"
	logActionAggregate        = "aggregate"
	pgUniqueViolation         = "23505"
	pgUndefinedTable          = "42P01"
	sqlStateCodeUnknownStatus = ""
)

// Store is an odm.Store on PostgreSQL. Every collection is a table with the columns
// seq (insertion order), id (text primary key) and doc (jsonb).
type Store struct {
	db               adapters.DBAdapter
	tablePrefix      string
	logger           odm.Logger
	contextualLogger odm.ContextualLogger
	ensured          sync.Map
}

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithTablePrefix sets the prefix of the collection tables (default "odm_").
func WithTablePrefix(prefix string) Option {
	return func(s *Store) error {
		if prefix == "" {
			return ErrEmptyTablePrefix
		}

		s.tablePrefix = prefix

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: duplicate key rejections, ensured collections (production-safe)
// Warn level: non-critical issues like cleanup failures
// Error level: critical failures that cause operation failures.
func WithLogger(logger odm.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Store.
func WithContextualLogger(logger odm.ContextualLogger) Option {
	return func(s *Store) error {
		s.contextualLogger = logger
		return nil
	}
}

// WithReplica sets a replica pool that serves reads from contexts marked with
// odm.WithEventualConsistency. Only stores created from a pgxpool.Pool support it.
func WithReplica(replica *pgxpool.Pool) Option {
	return func(s *Store) error {
		pgxAdapter, ok := s.db.(*adapters.PGXAdapter)
		if !ok {
			return ErrReplicaNotSupported
		}

		if replica == nil {
			return ErrNilDatabaseConnection
		}

		pgxAdapter.SetReplica(replica)

		return nil
	}
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB (e.g. with the lib/pq driver) with
// optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options)
}

func newStore(db adapters.DBAdapter, options []Option) (*Store, error) {
	s := &Store{
		db:          db,
		tablePrefix: defaultTablePrefix,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Collection returns a handle for the named collection. No I/O happens until the handle is used;
// the table is created by EnsureCollection or the first CreateIndex.
func (s *Store) Collection(name string) odm.Collection {
	return s.collection(name)
}

func (s *Store) collection(name string) *Collection {
	return &Collection{store: s, name: name, table: s.tablePrefix + name}
}

// TableName returns the table backing the named collection.
func (s *Store) TableName(collection string) string {
	return s.tablePrefix + collection
}

// EnsureCollection creates the table of the named collection if it does not exist.
func (s *Store) EnsureCollection(ctx context.Context, name string) error {
	return s.ensureTable(ctx, s.TableName(name))
}

// DropCollection drops the table of the named collection together with its indexes.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	table := s.TableName(name)
	sqlQuery := "DROP TABLE IF EXISTS " + pgx.Identifier{table}.Sanitize()

	start := time.Now()
	_, execErr := s.db.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, logActionDDL, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(ErrExecFailed, execErr)
	}

	s.ensured.Delete(table)

	return nil
}

// ensureTable creates a collection table once per Store.
func (s *Store) ensureTable(ctx context.Context, table string) error {
	if _, done := s.ensured.Load(table); done {
		return nil
	}

	sqlQuery := "CREATE TABLE IF NOT EXISTS " + pgx.Identifier{table}.Sanitize() +
		" (" + colSeq + " bigserial NOT NULL, " + colID + " text PRIMARY KEY, " + colDoc + " jsonb NOT NULL)"

	start := time.Now()
	_, execErr := s.db.Exec(ctx, sqlQuery)
	s.logQueryWithDuration(ctx, sqlQuery, logActionDDL, time.Since(start))

	if execErr != nil {
		s.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return errors.Join(ErrExecFailed, execErr)
	}

	s.ensured.Store(table, struct{}{})
	s.logOperation(ctx, logMsgCollectionEnsured, logAttrTable, table)

	return nil
}

// === logging ===

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (s *Store) logQueryWithDuration(ctx context.Context, sqlQuery string, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	}
}

// logOperation logs operational information at info level.
func (s *Store) logOperation(ctx context.Context, action string, args ...any) {
	if s.logger != nil {
		s.logger.Info(logMsgOperation+action, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, logMsgOperation+action, args...)
	}
}

// logWarn logs non-critical issues.
func (s *Store) logWarn(ctx context.Context, message string, err error) {
	if s.logger != nil {
		s.logger.Warn(message, logAttrError, err.Error())
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, message, logAttrError, err.Error())
	}
}

// logError logs error information at the error level.
func (s *Store) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if s.logger != nil {
		s.logger.Error(message, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
