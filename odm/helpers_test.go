package odm_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/memengine"
)

func newMemStore(t *testing.T) *memengine.Store {
	t.Helper()

	store, err := memengine.New()
	require.NoError(t, err)

	return store
}

func newRegistry(t *testing.T, store odm.Store, options ...odm.Option) *odm.Registry {
	t.Helper()

	registry, err := odm.NewRegistry(store, options...)
	require.NoError(t, err)

	return registry
}

func userSchema(t *testing.T, opts ...odm.SchemaOption) *odm.Schema {
	t.Helper()

	schema, err := odm.NewSchema(odm.Definition{
		odm.F("name", odm.M{"type": "string", "required": true}),
		odm.F("email", odm.M{"type": "string", "validate": odm.ValidatorEmail, "unique": true}),
		odm.F("age", odm.M{"type": "int", "min": 0}),
		odm.F("city", "string"),
		odm.F("tags", []any{"string"}),
	}, opts...)
	require.NoError(t, err)

	return schema
}

func userModel(t *testing.T, store odm.Store, opts ...odm.SchemaOption) *odm.Model {
	t.Helper()

	model, err := newRegistry(t, store).Model(context.Background(), "User", userSchema(t, opts...))
	require.NoError(t, err)

	return model
}

// spyStore wraps a store and records the calls made on its collections.
type spyStore struct {
	inner odm.Store

	mu      sync.Mutex
	calls   []string
	updates []odm.Update
	failOn  map[string]error
}

func newSpyStore(inner odm.Store) *spyStore {
	return &spyStore{inner: inner, failOn: map[string]error{}}
}

func (s *spyStore) Collection(name string) odm.Collection {
	return &spyCollection{Collection: s.inner.Collection(name), store: s}
}

func (s *spyStore) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, call)

	return s.failOn[call]
}

func (s *spyStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.calls...)
}

func (s *spyStore) Updates() []odm.Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]odm.Update(nil), s.updates...)
}

func (s *spyStore) FailOn(call string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failOn[call] = err
}

type spyCollection struct {
	odm.Collection
	store *spyStore
}

func (c *spyCollection) InsertOne(ctx context.Context, record odm.Record) (any, error) {
	if err := c.store.record("InsertOne"); err != nil {
		return nil, err
	}

	return c.Collection.InsertOne(ctx, record)
}

func (c *spyCollection) InsertMany(ctx context.Context, records []odm.Record) ([]any, error) {
	if err := c.store.record("InsertMany"); err != nil {
		return nil, err
	}

	return c.Collection.InsertMany(ctx, records)
}

func (c *spyCollection) Find(ctx context.Context, filter odm.Filter, opts odm.FindOptions) (odm.Cursor, error) {
	if err := c.store.record("Find"); err != nil {
		return nil, err
	}

	return c.Collection.Find(ctx, filter, opts)
}

func (c *spyCollection) UpdateOne(ctx context.Context, filter odm.Filter, update odm.Update) (int64, error) {
	if err := c.store.record("UpdateOne"); err != nil {
		return 0, err
	}

	c.store.mu.Lock()
	c.store.updates = append(c.store.updates, update)
	c.store.mu.Unlock()

	return c.Collection.UpdateOne(ctx, filter, update)
}

func (c *spyCollection) DeleteOne(ctx context.Context, filter odm.Filter) (int64, error) {
	if err := c.store.record("DeleteOne"); err != nil {
		return 0, err
	}

	return c.Collection.DeleteOne(ctx, filter)
}

func (c *spyCollection) CountDocuments(ctx context.Context, filter odm.Filter) (int64, error) {
	if err := c.store.record("CountDocuments"); err != nil {
		return 0, err
	}

	return c.Collection.CountDocuments(ctx, filter)
}

func (c *spyCollection) CreateIndex(ctx context.Context, index odm.IndexModel) error {
	if err := c.store.record("CreateIndex"); err != nil {
		return err
	}

	return c.Collection.CreateIndex(ctx, index)
}
