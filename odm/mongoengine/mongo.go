package mongoengine

import (
	"context"
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hydromelvictor/gogoose/odm"
)

var (
	ErrNilClient          = errors.New("nil mongo client supplied")
	ErrEmptyDatabaseName  = errors.New("empty database name supplied")
	ErrCommandFailed      = errors.New("mongo command failed")
	ErrDecodingFailed     = errors.New("decoding document failed")
	ErrCloningCollection  = errors.New("cloning collection with read preference failed")
	ErrUnsupportedSortKey = errors.New("unsupported sort specification")
)

const (
	logMsgCommandExecuted = "executed mongo command: "
	logMsgOperation       = "mongoengine operation: "
	logMsgCommandFailed   = "mongo command failed"
	logMsgDuplicateKey    = "duplicate key rejected"
	logMsgCloseCursor     = "failed to close mongo cursor"
	logAttrError          = "error"
	logAttrCollection     = "collection"
	logAttrCommand        = "command"
	logAttrDurationMS     = "duration_ms"

	commandInsert     = "insert"
	commandFind       = "find"
	commandUpdate     = "update"
	commandDelete     = "delete"
	commandCount      = "count"
	commandAggregate  = "aggregate"
	commandCreateIdx  = "create_index"
	commandDropCollec = "drop"
)

// Store is an odm.Store backed by one MongoDB database.
type Store struct {
	client           *mongo.Client
	database         *mongo.Database
	logger           odm.Logger
	contextualLogger odm.ContextualLogger
}

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithLogger sets the logger for the Store.
// Commands are logged at debug level with their duration, duplicate keys at info level and
// failed commands at error level.
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

// NewStore creates a Store on the named database of a connected client.
func NewStore(client *mongo.Client, database string, options ...Option) (*Store, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	if database == "" {
		return nil, ErrEmptyDatabaseName
	}

	s := &Store{
		client:   client,
		database: client.Database(database),
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Collection returns a handle for the named collection.
func (s *Store) Collection(name string) odm.Collection {
	return &Collection{store: s, name: name, collection: s.database.Collection(name)}
}

// DropCollection drops the named collection together with its indexes.
func (s *Store) DropCollection(ctx context.Context, name string) error {
	start := time.Now()
	err := s.database.Collection(name).Drop(ctx)
	s.logCommand(ctx, commandDropCollec, name, time.Since(start))

	return s.translate(ctx, err, name)
}

// translate maps duplicate key errors onto odm.ErrDuplicateKey and wraps everything else.
func (s *Store) translate(ctx context.Context, err error, collection string) error {
	if err == nil {
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		s.logInfo(ctx, logMsgOperation+logMsgDuplicateKey, logAttrCollection, collection)
		return errors.Join(odm.ErrDuplicateKey, err)
	}

	s.logError(ctx, logMsgCommandFailed, err, logAttrCollection, collection)

	return errors.Join(ErrCommandFailed, err)
}

func (s *Store) logCommand(ctx context.Context, command string, collection string, duration time.Duration) {
	args := []any{logAttrCollection, collection, logAttrDurationMS, toMilliseconds(duration)}

	if s.logger != nil {
		s.logger.Debug(logMsgCommandExecuted+command, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.DebugContext(ctx, logMsgCommandExecuted+command, args...)
	}
}

func (s *Store) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.Info(msg, args...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.InfoContext(ctx, msg, args...)
	}
}

func (s *Store) logWarn(ctx context.Context, msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, logAttrError, err.Error())
	}

	if s.contextualLogger != nil {
		s.contextualLogger.WarnContext(ctx, msg, logAttrError, err.Error())
	}
}

func (s *Store) logError(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if s.logger != nil {
		s.logger.Error(msg, allArgs...)
	}

	if s.contextualLogger != nil {
		s.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
