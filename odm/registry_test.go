package odm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromelvictor/gogoose/odm"
)

func Test_NewRegistry_Rejects_Nil_Store(t *testing.T) {
	// act
	registry, err := odm.NewRegistry(nil)

	// assert
	assert.Nil(t, registry)
	assert.ErrorIs(t, err, odm.ErrNilStore)
}

func Test_NewRegistry_Propagates_Option_Errors(t *testing.T) {
	// arrange
	failing := errors.New("bad option")

	// act
	_, err := odm.NewRegistry(newMemStore(t), func(*odm.Registry) error { return failing })

	// assert
	assert.ErrorIs(t, err, failing)
}

func Test_Registry_Model(t *testing.T) {
	t.Run("rejects_empty_name_and_nil_schema", func(t *testing.T) {
		// arrange
		registry := newRegistry(t, newMemStore(t))

		// act
		_, nameErr := registry.Model(context.Background(), "", userSchema(t))
		_, schemaErr := registry.Model(context.Background(), "User", nil)

		// assert
		assert.ErrorIs(t, nameErr, odm.ErrEmptyModelName)
		assert.ErrorIs(t, schemaErr, odm.ErrNilSchema)
	})

	t.Run("returns_cached_model_for_same_schema", func(t *testing.T) {
		// arrange
		registry := newRegistry(t, newMemStore(t))
		schema := userSchema(t)

		// act
		first, err1 := registry.Model(context.Background(), "User", schema)
		second, err2 := registry.Model(context.Background(), "User", schema)
		looked, ok := registry.Lookup("User")

		// assert
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Same(t, first, second)
		assert.True(t, ok)
		assert.Same(t, first, looked)
	})

	t.Run("rejects_redefinition", func(t *testing.T) {
		// arrange
		registry := newRegistry(t, newMemStore(t))
		_, err := registry.Model(context.Background(), "User", userSchema(t))
		require.NoError(t, err)

		// act
		_, err = registry.Model(context.Background(), "User", userSchema(t))

		// assert
		assert.ErrorIs(t, err, odm.ErrModelRedefined)
	})

	t.Run("lookup_of_unknown_name", func(t *testing.T) {
		// act
		_, ok := newRegistry(t, newMemStore(t)).Lookup("Ghost")

		// assert
		assert.False(t, ok)
	})

	t.Run("creates_declared_indexes", func(t *testing.T) {
		// arrange
		store := newMemStore(t)
		schema := userSchema(t)
		require.NoError(t, schema.Index(odm.IndexKeys{odm.Asc("city"), odm.Desc("age")}, odm.IndexOptions{}))

		// act
		_, err := newRegistry(t, store).Model(context.Background(), "User", schema)

		// assert
		require.NoError(t, err)
		indexes := store.Collection("users").(interface{ Indexes() []odm.IndexModel }).Indexes()
		assert.Equal(t, []odm.IndexModel{
			{Keys: odm.IndexKeys{odm.Asc("city"), odm.Desc("age")}, Options: odm.IndexOptions{Name: "city_1_age_-1"}},
			{Keys: odm.IndexKeys{odm.Asc("email")}, Options: odm.IndexOptions{Name: "email_1", Unique: true, Sparse: true}},
		}, indexes)
	})

	t.Run("index_failure_leaves_model_unregistered", func(t *testing.T) {
		// arrange
		store := newSpyStore(newMemStore(t))
		store.FailOn("CreateIndex", assert.AnError)
		registry := newRegistry(t, store)

		// act
		_, err := registry.Model(context.Background(), "User", userSchema(t))

		// assert
		assert.ErrorIs(t, err, odm.ErrCreatingIndexFailed)
		assert.ErrorIs(t, err, assert.AnError)
		_, ok := registry.Lookup("User")
		assert.False(t, ok)
	})
}

func Test_Registry_Store(t *testing.T) {
	// arrange
	store := newMemStore(t)

	// act
	registry := newRegistry(t, store)

	// assert
	assert.Same(t, store, registry.Store())
}
