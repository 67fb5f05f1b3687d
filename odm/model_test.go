package odm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromelvictor/gogoose/odm"
)

func Test_Model_Collection_Name(t *testing.T) {
	// arrange
	registry := newRegistry(t, newMemStore(t))
	custom, err := odm.NewSchema(odm.Definition{odm.F("name", "string")}, odm.WithCollection("people"))
	require.NoError(t, err)

	// act
	users, err1 := registry.Model(context.Background(), "User", userSchema(t))
	people, err2 := registry.Model(context.Background(), "Person", custom)

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, "User", users.Name())
	assert.Equal(t, "users", users.CollectionName())
	assert.Equal(t, "people", people.CollectionName())
	assert.NotNil(t, users.Collection())
}

func Test_Model_Create(t *testing.T) {
	// arrange
	model := userModel(t, newMemStore(t))

	// act
	doc, err := model.Create(context.Background(), odm.Record{"name": "ann", "age": "22"})

	// assert
	require.NoError(t, err)
	assert.False(t, doc.IsNew())
	found, err := model.FindByID(context.Background(), doc.ID())
	require.NoError(t, err)
	assert.Equal(t, odm.Record{odm.IDField: doc.ID(), "name": "ann", "age": int64(22)}, found.ToRecord())
}

func Test_Model_Create_Allows_Many_Records_Without_Optional_Unique_Field(t *testing.T) {
	// arrange
	ctx := context.Background()
	model := userModel(t, newMemStore(t))

	// act
	_, firstErr := model.Create(ctx, odm.Record{"name": "ann"})
	_, secondErr := model.Create(ctx, odm.Record{"name": "bob"})
	_, withEmailErr := model.Create(ctx, odm.Record{"name": "cleo", "email": "cleo@example.com"})
	_, dupErr := model.Create(ctx, odm.Record{"name": "dan", "email": "cleo@example.com"})

	// assert
	require.NoError(t, firstErr)
	require.NoError(t, secondErr)
	require.NoError(t, withEmailErr)
	assert.ErrorIs(t, dupErr, odm.ErrDuplicateKey)

	count, err := model.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func Test_Model_Create_Rejects_Invalid_Record_Without_Store_Call(t *testing.T) {
	// arrange
	store := newSpyStore(newMemStore(t))
	model := userModel(t, store)

	// act
	doc, err := model.Create(context.Background(), odm.Record{"age": 3})

	// assert
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, odm.ErrRequiredFieldMissing)
	assert.NotContains(t, store.Calls(), "InsertOne")
}

func Test_Model_CreateMany(t *testing.T) {
	t.Run("assigns_identities_in_order", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t))

		// act
		docs, err := model.CreateMany(context.Background(), []odm.Record{{"name": "ann"}, {"name": "bob"}})

		// assert
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, []string{"ann", "bob"}, names(t, docs))
		assert.NotEqual(t, docs[0].ID(), docs[1].ID())
		for _, doc := range docs {
			assert.False(t, doc.IsNew())
			assert.False(t, doc.IsModified())
		}
	})

	t.Run("invalid_record_writes_nothing", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t))

		// act
		_, err := model.CreateMany(context.Background(), []odm.Record{{"name": "ann"}, {"name": "bob", "age": -1}})

		// assert
		assert.ErrorIs(t, err, odm.ErrConstraintViolated)
		assert.Contains(t, err.Error(), "record 1")
		n, countErr := model.Count(context.Background(), nil)
		require.NoError(t, countErr)
		assert.Zero(t, n)
	})

	t.Run("duplicate_key", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t))

		// act
		_, err := model.CreateMany(context.Background(), []odm.Record{
			{"name": "ann", "email": "same@example.com"},
			{"name": "bob", "email": "same@example.com"},
		})

		// assert
		assert.ErrorIs(t, err, odm.ErrDuplicateKey)
	})

	t.Run("empty_input", func(t *testing.T) {
		// act
		docs, err := userModel(t, newMemStore(t)).CreateMany(context.Background(), nil)

		// assert
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}

func Test_Model_FindOne_And_FindByID(t *testing.T) {
	// arrange
	model := userModel(t, newMemStore(t))
	docs := seedUsers(t, model)

	// act
	one, err := model.FindOne(context.Background(), odm.Filter{"city": "Paris"})
	byID, byIDErr := model.FindByID(context.Background(), docs[3].ID())
	_, missingErr := model.FindByID(context.Background(), "missing")

	// assert
	require.NoError(t, err)
	require.NoError(t, byIDErr)
	assert.Equal(t, []string{"bob", "dan"}, names(t, []*odm.Document{one, byID}))
	assert.ErrorIs(t, missingErr, odm.ErrNotFound)
}

func Test_Model_Update(t *testing.T) {
	t.Run("update_one_changes_first_match", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t))
		seedUsers(t, model)

		// act
		n, err := model.UpdateOne(context.Background(), odm.Filter{"city": "Paris"}, odm.Update{"$inc": odm.M{"age": 1}})

		// assert
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		bob, err := model.FindOne(context.Background(), odm.Filter{"name": "bob"})
		require.NoError(t, err)
		age, _ := bob.Get("age")
		assert.Equal(t, int64(29), age)
	})

	t.Run("update_many_changes_all_matches", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t))
		seedUsers(t, model)

		// act
		n, err := model.UpdateMany(context.Background(), odm.Filter{"city": "Berlin"}, odm.Update{"$set": odm.M{"city": "Hamburg"}})

		// assert
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		count, err := model.Count(context.Background(), odm.Filter{"city": "Hamburg"})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("timestamps_set_updated_at", func(t *testing.T) {
		// arrange
		store := newSpyStore(newMemStore(t))
		model := userModel(t, store, odm.WithTimestamps())
		doc, err := model.Create(context.Background(), odm.Record{"name": "ann"})
		require.NoError(t, err)
		before, _ := doc.Get(odm.UpdatedAtField)
		time.Sleep(2 * time.Millisecond)

		// act
		_, err = model.UpdateOne(context.Background(), odm.Filter{"name": "ann"}, odm.Update{"$set": odm.M{"city": "Rome"}})

		// assert
		require.NoError(t, err)
		updates := store.Updates()
		require.Len(t, updates, 1)
		set := updates[0]["$set"].(odm.M)
		assert.Equal(t, "Rome", set["city"])
		assert.Contains(t, set, odm.UpdatedAtField)

		found, err := model.FindByID(context.Background(), doc.ID())
		require.NoError(t, err)
		after, _ := found.Get(odm.UpdatedAtField)
		assert.True(t, after.(time.Time).After(before.(time.Time)))
	})

	t.Run("timestamps_do_not_modify_caller_update", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t), odm.WithTimestamps())
		seedUsers(t, model)
		update := odm.Update{"$set": odm.M{"city": "Rome"}}

		// act
		_, err := model.UpdateMany(context.Background(), odm.Filter{}, update)

		// assert
		require.NoError(t, err)
		assert.Equal(t, odm.Update{"$set": odm.M{"city": "Rome"}}, update)
	})
}

func Test_Model_Delete(t *testing.T) {
	// arrange
	model := userModel(t, newMemStore(t))
	seedUsers(t, model)

	// act
	one, err1 := model.DeleteOne(context.Background(), odm.Filter{"city": "Paris"})
	many, err2 := model.DeleteMany(context.Background(), odm.Filter{"city": "Berlin"})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, int64(1), one)
	assert.Equal(t, int64(2), many)
	docs, err := model.Find(nil).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cleo"}, names(t, docs))
}

func Test_Model_Aggregate(t *testing.T) {
	// arrange
	model := userModel(t, newMemStore(t))
	seedUsers(t, model)

	// act
	results, err := model.Aggregate(context.Background(), []odm.Record{
		{"$match": odm.M{"age": odm.M{"$gte": 25}}},
		{"$group": odm.M{"_id": "$city", "count": odm.M{"$sum": 1}}},
		{"$sort": odm.M{"_id": 1}},
	})

	// assert
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Berlin", results[0]["_id"])
	assert.EqualValues(t, 1, results[0]["count"])
	assert.Equal(t, "Paris", results[1]["_id"])
	assert.EqualValues(t, 2, results[1]["count"])
}

func Test_Model_Aggregate_Empty_Result(t *testing.T) {
	// arrange
	model := userModel(t, newMemStore(t))

	// act
	results, err := model.Aggregate(context.Background(), []odm.Record{{"$match": odm.M{"name": "x"}}})

	// assert
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func Test_Model_Call_Static(t *testing.T) {
	// arrange
	schema := userSchema(t)
	require.NoError(t, schema.Static("countIn", func(ctx context.Context, model *odm.Model, args ...any) (any, error) {
		return model.Count(ctx, odm.Filter{"city": args[0]})
	}))
	model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "User", schema)
	require.NoError(t, err)
	seedUsers(t, model)

	// act
	n, err := model.Call(context.Background(), "countIn", "Paris")
	_, unknownErr := model.Call(context.Background(), "nope")

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.ErrorIs(t, unknownErr, odm.ErrNoSuchMethod)
}
