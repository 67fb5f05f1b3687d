// Package memengine provides an in-process odm.Store.
//
// Records live in memory, per collection, in insertion order. Filters, updates, projections,
// sorting and aggregation pipelines use the same Mongo-style vocabulary as the other engines.
// Unique indexes, including the implicit one on _id, are enforced and reported as
// odm.ErrDuplicateKey. All records are deep-copied on the way in and out.
//
// The store is safe for concurrent use.
package memengine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/internal/recordops"
)

const (
	logMsgIndexCreated = "memengine: index created"
	logMsgDuplicateKey = "memengine: duplicate key"
	logAttrCollection  = "collection"
	logAttrIndex       = "index"
)

// ErrEmptyIndexKeys is returned by CreateIndex for an index without keys.
var ErrEmptyIndexKeys = errors.New("index has no keys")

// Store is an in-memory odm.Store.
type Store struct {
	mu          sync.Mutex
	collections map[string]*Collection
	newID       func() any
	logger      odm.Logger
}

// Option defines a functional option for configuring Store.
type Option func(*Store) error

// WithIDGenerator replaces the default identity generator (UUID v7 strings).
func WithIDGenerator(generate func() any) Option {
	return func(s *Store) error {
		if generate == nil {
			return errors.New("nil id generator supplied")
		}

		s.newID = generate

		return nil
	}
}

// WithLogger sets the logger for the Store.
func WithLogger(logger odm.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// New creates an empty Store with optional configuration.
func New(options ...Option) (*Store, error) {
	s := &Store{
		collections: make(map[string]*Collection),
		newID:       newUUIDv7,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func newUUIDv7() any {
	return uuid.Must(uuid.NewV7()).String()
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(name string) odm.Collection {
	return s.collection(name)
}

func (s *Store) collection(name string) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		c = &Collection{name: name, store: s}
		s.collections[name] = c
	}

	return c
}

// Collection is one in-memory collection.
type Collection struct {
	name    string
	store   *Store
	mu      sync.RWMutex
	records []odm.Record
	indexes []odm.IndexModel
}

// Len returns the number of stored records.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.records)
}

// Indexes returns the created indexes.
func (c *Collection) Indexes() []odm.IndexModel {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]odm.IndexModel, len(c.indexes))
	copy(out, c.indexes)

	return out
}

// InsertOne stores a copy of record and returns its identity, generating one when absent.
func (c *Collection) InsertOne(ctx context.Context, record odm.Record) (any, error) {
	ids, err := c.InsertMany(ctx, []odm.Record{record})
	if err != nil {
		return nil, err
	}

	return ids[0], nil
}

// InsertMany stores copies of all records atomically: either all are inserted or, on a
// duplicate key, none.
func (c *Collection) InsertMany(ctx context.Context, records []odm.Record) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prepared := make([]odm.Record, len(records))
	ids := make([]any, len(records))

	for i, record := range records {
		copied := record.Clone()
		if copied == nil {
			copied = odm.Record{}
		}

		if id, ok := copied[odm.IDField]; !ok || id == nil {
			copied[odm.IDField] = c.store.newID()
		}

		prepared[i] = copied
		ids[i] = copied[odm.IDField]
	}

	candidate := append(append(make([]odm.Record, 0, len(c.records)+len(prepared)), c.records...), prepared...)
	if err := c.checkUnique(candidate); err != nil {
		return nil, err
	}

	c.records = candidate

	return ids, nil
}

// Find returns the matching records, sorted, windowed and projected.
func (c *Collection) Find(ctx context.Context, filter odm.Filter, opts odm.FindOptions) (odm.Cursor, error) {
	matched, err := c.matching(ctx, filter)
	if err != nil {
		return nil, err
	}

	recordops.Sort(matched, opts.Sort)
	matched = recordops.Window(matched, opts.Skip, opts.Limit)

	out := make([]odm.Record, len(matched))
	for i, record := range matched {
		if out[i], err = recordops.Project(record, opts.Projection); err != nil {
			return nil, err
		}
	}

	return recordops.NewSliceCursor(out), nil
}

// UpdateOne updates the first matching record and returns the number of matched records.
func (c *Collection) UpdateOne(ctx context.Context, filter odm.Filter, update odm.Update) (int64, error) {
	return c.update(ctx, filter, update, 1)
}

// UpdateMany updates all matching records atomically.
func (c *Collection) UpdateMany(ctx context.Context, filter odm.Filter, update odm.Update) (int64, error) {
	return c.update(ctx, filter, update, -1)
}

func (c *Collection) update(ctx context.Context, filter odm.Filter, update odm.Update, limit int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	candidate := make([]odm.Record, len(c.records))
	copy(candidate, c.records)

	var matched int64

	for i, record := range c.records {
		if limit >= 0 && matched >= int64(limit) {
			break
		}

		ok, err := recordops.Match(record, filter)
		if err != nil {
			return 0, err
		}

		if !ok {
			continue
		}

		updated, err := recordops.ApplyUpdate(record, update)
		if err != nil {
			return 0, err
		}

		candidate[i] = updated
		matched++
	}

	if matched == 0 {
		return 0, nil
	}

	if err := c.checkUnique(candidate); err != nil {
		return 0, err
	}

	c.records = candidate

	return matched, nil
}

// DeleteOne removes the first matching record.
func (c *Collection) DeleteOne(ctx context.Context, filter odm.Filter) (int64, error) {
	return c.delete(ctx, filter, 1)
}

// DeleteMany removes all matching records.
func (c *Collection) DeleteMany(ctx context.Context, filter odm.Filter) (int64, error) {
	return c.delete(ctx, filter, -1)
}

func (c *Collection) delete(ctx context.Context, filter odm.Filter, limit int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	kept := make([]odm.Record, 0, len(c.records))
	var deleted int64

	for _, record := range c.records {
		if limit < 0 || deleted < int64(limit) {
			ok, err := recordops.Match(record, filter)
			if err != nil {
				return 0, err
			}

			if ok {
				deleted++
				continue
			}
		}

		kept = append(kept, record)
	}

	c.records = kept

	return deleted, nil
}

// CountDocuments returns the number of matching records.
func (c *Collection) CountDocuments(ctx context.Context, filter odm.Filter) (int64, error) {
	matched, err := c.matching(ctx, filter)
	if err != nil {
		return 0, err
	}

	return int64(len(matched)), nil
}

// CreateIndex registers an index. A unique index fails with odm.ErrDuplicateKey when the
// existing records already violate it. Creating an index with an existing name replaces it.
func (c *Collection) CreateIndex(ctx context.Context, index odm.IndexModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if len(index.Keys) == 0 {
		return ErrEmptyIndexKeys
	}

	if index.Options.Name == "" {
		index.Options.Name = odm.IndexName(index.Keys)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if index.Options.Unique {
		if err := checkIndex(c.records, index); err != nil {
			return err
		}
	}

	replaced := false
	for i := range c.indexes {
		if c.indexes[i].Options.Name == index.Options.Name {
			c.indexes[i] = index
			replaced = true
		}
	}

	if !replaced {
		c.indexes = append(c.indexes, index)
	}

	if c.store.logger != nil {
		c.store.logger.Debug(logMsgIndexCreated, logAttrCollection, c.name, logAttrIndex, index.Options.Name)
	}

	return nil
}

// Aggregate runs the pipeline over a snapshot of the collection.
func (c *Collection) Aggregate(ctx context.Context, pipeline []odm.Record) ([]odm.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	snapshot := make([]odm.Record, len(c.records))
	copy(snapshot, c.records)
	c.mu.RUnlock()

	return recordops.RunPipeline(snapshot, pipeline)
}

// matching returns deep copies of the matching records in insertion order.
func (c *Collection) matching(ctx context.Context, filter odm.Filter) ([]odm.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]odm.Record, 0)
	for _, record := range c.records {
		ok, err := recordops.Match(record, filter)
		if err != nil {
			return nil, err
		}

		if ok {
			out = append(out, record.Clone())
		}
	}

	return out, nil
}

// checkUnique verifies the implicit _id index and every unique index over records.
func (c *Collection) checkUnique(records []odm.Record) error {
	idIndex := odm.IndexModel{Keys: odm.IndexKeys{odm.Asc(odm.IDField)}, Options: odm.IndexOptions{Name: "_id_", Unique: true}}

	if err := checkIndex(records, idIndex); err != nil {
		c.logDuplicate(idIndex)
		return err
	}

	for _, index := range c.indexes {
		if !index.Options.Unique {
			continue
		}

		if err := checkIndex(records, index); err != nil {
			c.logDuplicate(index)
			return err
		}
	}

	return nil
}

func (c *Collection) logDuplicate(index odm.IndexModel) {
	if c.store.logger != nil {
		c.store.logger.Info(logMsgDuplicateKey, logAttrCollection, c.name, logAttrIndex, index.Options.Name)
	}
}

func checkIndex(records []odm.Record, index odm.IndexModel) error {
	seen := make(map[string]struct{}, len(records))

	for _, record := range records {
		values := make([]any, len(index.Keys))
		present := false

		for i, key := range index.Keys {
			value, ok := recordops.Lookup(record, key.Field)
			values[i] = value
			present = present || ok
		}

		if index.Options.Sparse && !present {
			continue
		}

		key := recordops.KeyOf(values)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: index %s, key %v", odm.ErrDuplicateKey, index.Options.Name, values)
		}

		seen[key] = struct{}{}
	}

	return nil
}
