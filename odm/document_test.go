package odm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromelvictor/gogoose/odm"
)

func Test_New_Document_Is_New_And_Fully_Modified(t *testing.T) {
	// arrange
	model := userModel(t, newMemStore(t))

	// act
	doc, err := model.New(odm.Record{"name": "ann", "age": 22})

	// assert
	require.NoError(t, err)
	assert.True(t, doc.IsNew())
	assert.Nil(t, doc.ID())
	assert.Equal(t, []string{"age", "name"}, doc.ModifiedFields())
	assert.True(t, doc.IsModified())
	assert.True(t, doc.IsModified("age"))
	assert.False(t, doc.IsModified("city"))
}

func Test_New_Document_Rejects_Invalid_Data(t *testing.T) {
	// arrange
	model := userModel(t, newMemStore(t))

	// act
	doc, err := model.New(odm.Record{"name": "ann", "email": "not-an-email"})

	// assert
	assert.Nil(t, doc)
	assert.ErrorIs(t, err, odm.ErrValidatorRejected)
}

func Test_Document_Set(t *testing.T) {
	t.Run("coerces_and_marks_modified", func(t *testing.T) {
		// arrange
		doc, err := userModel(t, newMemStore(t)).Create(context.Background(), odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		err = doc.Set("age", "30")

		// assert
		require.NoError(t, err)
		age, _ := doc.Get("age")
		assert.Equal(t, int64(30), age)
		assert.Equal(t, []string{"age"}, doc.ModifiedFields())
	})

	t.Run("invalid_value_leaves_document_unchanged", func(t *testing.T) {
		// arrange
		doc, err := userModel(t, newMemStore(t)).New(odm.Record{"name": "ann", "age": 5})
		require.NoError(t, err)

		// act
		err = doc.Set("age", -3)

		// assert
		assert.ErrorIs(t, err, odm.ErrConstraintViolated)
		var validationErr *odm.ValidationError
		require.ErrorAs(t, err, &validationErr)
		assert.Equal(t, "age", validationErr.Field)
		age, _ := doc.Get("age")
		assert.Equal(t, int64(5), age)
	})

	t.Run("undeclared_field_in_strict_mode", func(t *testing.T) {
		// arrange
		doc, err := userModel(t, newMemStore(t)).New(odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		err = doc.Set("nickname", "a")

		// assert
		assert.ErrorIs(t, err, odm.ErrNoSuchField)
	})

	t.Run("undeclared_field_in_non_strict_mode", func(t *testing.T) {
		// arrange
		doc, err := userModel(t, newMemStore(t), odm.WithStrict(false)).New(odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		err = doc.Set("nickname", "a")

		// assert
		require.NoError(t, err)
		nickname, _ := doc.Get("nickname")
		assert.Equal(t, "a", nickname)
	})

	t.Run("identity_is_immutable", func(t *testing.T) {
		// arrange
		doc, err := userModel(t, newMemStore(t)).New(odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		err = doc.Set(odm.IDField, "other")

		// assert
		assert.ErrorIs(t, err, odm.ErrIdentityImmutable)
	})

	t.Run("bumps_updated_at_with_timestamps", func(t *testing.T) {
		// arrange
		doc, err := userModel(t, newMemStore(t), odm.WithTimestamps()).Create(context.Background(), odm.Record{"name": "ann"})
		require.NoError(t, err)
		created, _ := doc.Get(odm.UpdatedAtField)

		// act
		time.Sleep(2 * time.Millisecond)
		require.NoError(t, doc.Set("city", "Paris"))

		// assert
		updated, _ := doc.Get(odm.UpdatedAtField)
		assert.True(t, updated.(time.Time).After(created.(time.Time)))
		assert.Equal(t, []string{"city", odm.UpdatedAtField}, doc.ModifiedFields())
	})
}

func Test_Document_Get(t *testing.T) {
	// arrange
	schema, err := odm.NewSchema(odm.Definition{
		odm.F("name", "string"),
		odm.F("visits", odm.M{"type": "int", "default": 0}),
	})
	require.NoError(t, err)
	model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "Page", schema)
	require.NoError(t, err)
	doc, err := model.New(odm.Record{"name": "home"})
	require.NoError(t, err)

	// act
	name, nameErr := doc.Get("name")
	visits, visitsErr := doc.Get("visits")
	_, missingErr := doc.Get("nope")

	// assert
	require.NoError(t, nameErr)
	require.NoError(t, visitsErr)
	assert.Equal(t, "home", name)
	assert.Equal(t, int64(0), visits)
	assert.ErrorIs(t, missingErr, odm.ErrNoSuchField)
}

func Test_New_Documents_Do_Not_Share_Default_Lists(t *testing.T) {
	// arrange
	shared := []any{"draft"}
	schema, err := odm.NewSchema(odm.Definition{
		odm.F("name", "string"),
		odm.F("labels", odm.M{"type": []any{"string"}, "default": func() any { return shared }}),
	})
	require.NoError(t, err)
	model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "Page", schema)
	require.NoError(t, err)

	// act
	first, err1 := model.New(odm.Record{"name": "home"})
	second, err2 := model.New(odm.Record{"name": "about"})

	// assert
	require.NoError(t, err1)
	require.NoError(t, err2)
	labels, err := first.Get("labels")
	require.NoError(t, err)
	labels.([]any)[0] = "published"

	got, err := second.Get("labels")
	require.NoError(t, err)
	assert.Equal(t, []any{"draft"}, got)
	assert.Equal(t, []any{"draft"}, shared)
}

func Test_New_Document_Copies_Undeclared_Values(t *testing.T) {
	// arrange
	schema, err := odm.NewSchema(odm.Definition{
		odm.F("name", "string"),
		odm.F("extra", "mixed"),
	}, odm.WithStrict(false))
	require.NoError(t, err)
	model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "Page", schema)
	require.NoError(t, err)
	meta := map[string]any{"k": 1}
	extra := map[string]any{"k": 1}

	// act
	doc, err := model.New(odm.Record{"name": "home", "meta": meta, "extra": extra})
	require.NoError(t, err)
	meta["k"] = 2
	extra["k"] = 2

	// assert
	gotMeta, err := doc.Get("meta")
	require.NoError(t, err)
	gotExtra, err := doc.Get("extra")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k": 1}, gotMeta)
	assert.Equal(t, map[string]any{"k": 1}, gotExtra)
}

func Test_Document_Save(t *testing.T) {
	t.Run("insert_assigns_identity", func(t *testing.T) {
		// arrange
		store := newMemStore(t)
		doc, err := userModel(t, store).New(odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		_, err = doc.Save(context.Background())

		// assert
		require.NoError(t, err)
		assert.False(t, doc.IsNew())
		assert.NotNil(t, doc.ID())
		assert.False(t, doc.IsModified())
		assert.Equal(t, doc.ID(), doc.ToRecord()[odm.IDField])

		n, err := store.Collection("users").CountDocuments(context.Background(), odm.Filter{odm.IDField: doc.ID()})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("persisted_sends_only_modified_fields", func(t *testing.T) {
		// arrange
		store := newSpyStore(newMemStore(t))
		model := userModel(t, store)
		doc, err := model.Create(context.Background(), odm.Record{"name": "ann", "city": "Berlin", "age": 20})
		require.NoError(t, err)
		require.NoError(t, doc.Set("city", "Paris"))
		require.NoError(t, doc.Set("age", nil))

		// act
		_, err = doc.Save(context.Background())

		// assert
		require.NoError(t, err)
		assert.Equal(t, []odm.Update{{
			"$set":   odm.M{"city": "Paris"},
			"$unset": odm.M{"age": ""},
		}}, store.Updates())

		stored, err := model.FindByID(context.Background(), doc.ID())
		require.NoError(t, err)
		assert.Equal(t, odm.Record{odm.IDField: doc.ID(), "name": "ann", "city": "Paris"}, stored.ToRecord())
	})

	t.Run("unmodified_does_not_touch_store", func(t *testing.T) {
		// arrange
		store := newSpyStore(newMemStore(t))
		doc, err := userModel(t, store).Create(context.Background(), odm.Record{"name": "ann"})
		require.NoError(t, err)
		calls := len(store.Calls())

		// act
		_, err = doc.Save(context.Background())

		// assert
		require.NoError(t, err)
		assert.Len(t, store.Calls(), calls)
	})

	t.Run("store_error_keeps_document_new", func(t *testing.T) {
		// arrange
		store := newSpyStore(newMemStore(t))
		cause := errors.New("connection reset")
		store.FailOn("InsertOne", cause)
		doc, err := userModel(t, store).New(odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		_, err = doc.Save(context.Background())

		// assert
		assert.ErrorIs(t, err, cause)
		assert.True(t, doc.IsNew())
		assert.True(t, doc.IsModified("name"))
	})

	t.Run("timestamps_across_saves", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t), odm.WithTimestamps())
		doc, err := model.New(odm.Record{"name": "ann"})
		require.NoError(t, err)
		_, err = doc.Save(context.Background())
		require.NoError(t, err)

		first, err := model.FindByID(context.Background(), doc.ID())
		require.NoError(t, err)
		created, _ := first.Get(odm.CreatedAtField)
		updated, _ := first.Get(odm.UpdatedAtField)
		require.Equal(t, created, updated)

		// act
		time.Sleep(2 * time.Millisecond)
		require.NoError(t, doc.Set("city", "Paris"))
		_, err = doc.Save(context.Background())
		require.NoError(t, err)

		// assert
		second, err := model.FindByID(context.Background(), doc.ID())
		require.NoError(t, err)
		createdAgain, _ := second.Get(odm.CreatedAtField)
		updatedAgain, _ := second.Get(odm.UpdatedAtField)
		assert.Equal(t, created, createdAgain)
		assert.True(t, updatedAgain.(time.Time).After(updated.(time.Time)))
	})

	t.Run("duplicate_key", func(t *testing.T) {
		// arrange
		model := userModel(t, newMemStore(t))
		_, err := model.Create(context.Background(), odm.Record{"name": "ann", "email": "ann@example.com"})
		require.NoError(t, err)
		doc, err := model.New(odm.Record{"name": "ann2", "email": "ann@example.com"})
		require.NoError(t, err)

		// act
		_, err = doc.Save(context.Background())

		// assert
		assert.ErrorIs(t, err, odm.ErrDuplicateKey)
		assert.True(t, doc.IsNew())
	})
}

func Test_Document_Save_Hooks(t *testing.T) {
	t.Run("pre_hooks_run_in_order_and_may_mutate", func(t *testing.T) {
		// arrange
		var order []string
		schema := userSchema(t)
		require.NoError(t, schema.Pre(odm.ActionSave, func(_ context.Context, doc *odm.Document) error {
			order = append(order, "first")
			return doc.Set("city", "Berlin")
		}))
		require.NoError(t, schema.Pre(odm.ActionSave, func(context.Context, *odm.Document) error {
			order = append(order, "second")
			return nil
		}))
		require.NoError(t, schema.Post(odm.ActionSave, func(context.Context, *odm.Document) error {
			order = append(order, "post")
			return nil
		}))
		model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "User", schema)
		require.NoError(t, err)

		// act
		doc, err := model.Create(context.Background(), odm.Record{"name": "ann"})

		// assert
		require.NoError(t, err)
		assert.Equal(t, []string{"first", "second", "post"}, order)
		stored, err := model.FindByID(context.Background(), doc.ID())
		require.NoError(t, err)
		city, _ := stored.Get("city")
		assert.Equal(t, "Berlin", city)
	})

	t.Run("pre_hook_error_aborts_before_store", func(t *testing.T) {
		// arrange
		cause := errors.New("not allowed")
		store := newSpyStore(newMemStore(t))
		schema := userSchema(t)
		require.NoError(t, schema.Pre(odm.ActionSave, func(context.Context, *odm.Document) error { return cause }))
		model, err := newRegistry(t, store).Model(context.Background(), "User", schema)
		require.NoError(t, err)

		// act
		_, err = model.Create(context.Background(), odm.Record{"name": "ann"})

		// assert
		assert.ErrorIs(t, err, odm.ErrHookFailed)
		assert.ErrorIs(t, err, cause)
		assert.NotContains(t, store.Calls(), "InsertOne")
	})

	t.Run("post_hook_errors_keep_the_write", func(t *testing.T) {
		// arrange
		first := errors.New("mail failed")
		second := errors.New("audit failed")
		schema := userSchema(t)
		require.NoError(t, schema.Post(odm.ActionSave, func(context.Context, *odm.Document) error { return first }))
		require.NoError(t, schema.Post(odm.ActionSave, func(context.Context, *odm.Document) error { return second }))
		model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "User", schema)
		require.NoError(t, err)
		doc, err := model.New(odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		_, err = doc.Save(context.Background())

		// assert
		assert.ErrorIs(t, err, odm.ErrHookFailed)
		assert.ErrorIs(t, err, first)
		assert.ErrorIs(t, err, second)
		assert.False(t, doc.IsNew())
		n, countErr := model.Count(context.Background(), odm.Filter{})
		require.NoError(t, countErr)
		assert.Equal(t, int64(1), n)
	})
}

func Test_Document_Delete(t *testing.T) {
	t.Run("new_document_fails_without_store_call", func(t *testing.T) {
		// arrange
		store := newSpyStore(newMemStore(t))
		doc, err := userModel(t, store).New(odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		err = doc.Delete(context.Background())

		// assert
		assert.ErrorIs(t, err, odm.ErrNotPersisted)
		assert.NotContains(t, store.Calls(), "DeleteOne")
	})

	t.Run("persisted_document_is_removed_with_hooks", func(t *testing.T) {
		// arrange
		var hooks []string
		schema := userSchema(t)
		require.NoError(t, schema.Pre(odm.ActionDelete, func(context.Context, *odm.Document) error {
			hooks = append(hooks, "pre")
			return nil
		}))
		require.NoError(t, schema.Post(odm.ActionDelete, func(context.Context, *odm.Document) error {
			hooks = append(hooks, "post")
			return nil
		}))
		model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "User", schema)
		require.NoError(t, err)
		doc, err := model.Create(context.Background(), odm.Record{"name": "ann"})
		require.NoError(t, err)

		// act
		err = doc.Delete(context.Background())

		// assert
		require.NoError(t, err)
		assert.Equal(t, []string{"pre", "post"}, hooks)
		_, err = model.FindByID(context.Background(), doc.ID())
		assert.ErrorIs(t, err, odm.ErrNotFound)
	})
}

func Test_Document_Call_Instance_Method(t *testing.T) {
	// arrange
	schema := userSchema(t)
	require.NoError(t, schema.Method("greet", func(_ context.Context, doc *odm.Document, args ...any) (any, error) {
		name, err := doc.Get("name")
		if err != nil {
			return nil, err
		}
		return args[0].(string) + ", " + name.(string), nil
	}))
	model, err := newRegistry(t, newMemStore(t)).Model(context.Background(), "User", schema)
	require.NoError(t, err)
	doc, err := model.New(odm.Record{"name": "ann"})
	require.NoError(t, err)

	// act
	greeting, err := doc.Call(context.Background(), "greet", "hello")
	_, unknownErr := doc.Call(context.Background(), "wave")

	// assert
	require.NoError(t, err)
	assert.Equal(t, "hello, ann", greeting)
	assert.ErrorIs(t, unknownErr, odm.ErrNoSuchMethod)
}

func Test_Document_ToRecord_And_ToJSON(t *testing.T) {
	// arrange
	doc, err := userModel(t, newMemStore(t)).New(odm.Record{"name": "ann", "tags": []any{"go"}})
	require.NoError(t, err)

	// act
	record := doc.ToRecord()
	record["tags"].([]any)[0] = "changed"
	encoded, err := doc.ToJSON()

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"ann","tags":["go"]}`, string(encoded))
}
