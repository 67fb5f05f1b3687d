// Package storetest provides a behavioural test suite that every odm.Store engine has to pass.
//
// Engine packages call RunCollectionContract with a factory for a fresh store; every sub-test
// works on its own collection so that one store can serve the whole suite.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromelvictor/gogoose/odm"
)

const contractTimeout = 10 * time.Second

// StoreFactory returns a ready store for one test.
type StoreFactory func(t *testing.T) odm.Store

// RunCollectionContract runs the collection behaviours shared by all engines.
//
//nolint:funlen
func RunCollectionContract(t *testing.T, newStore StoreFactory) {
	t.Run("insert_generates_identity_and_find_returns_the_record", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)

		// act
		id, err := collection.InsertOne(ctx, odm.Record{"name": "ada", "age": 36})

		// assert
		require.NoError(t, err)
		assert.NotNil(t, id)

		records := findAll(t, ctx, collection, odm.Filter{odm.IDField: id}, odm.FindOptions{})
		require.Len(t, records, 1)
		assert.Equal(t, id, records[0][odm.IDField])
		assert.Equal(t, "ada", records[0]["name"])
		assert.EqualValues(t, 36, records[0]["age"])
	})

	t.Run("insert_keeps_a_supplied_identity", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		supplied := uuid.NewString()

		// act
		id, err := collection.InsertOne(ctx, odm.Record{odm.IDField: supplied, "name": "grace"})

		// assert
		require.NoError(t, err)
		assert.Equal(t, supplied, id)

		count, err := collection.CountDocuments(ctx, odm.Filter{odm.IDField: supplied})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("duplicate_identity_is_rejected", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		supplied := uuid.NewString()
		_, err := collection.InsertOne(ctx, odm.Record{odm.IDField: supplied})
		require.NoError(t, err)

		// act
		_, err = collection.InsertOne(ctx, odm.Record{odm.IDField: supplied})

		// assert
		assert.ErrorIs(t, err, odm.ErrDuplicateKey)
	})

	t.Run("insert_many_returns_identities_in_order", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)

		// act
		ids, err := collection.InsertMany(ctx, people())

		// assert
		require.NoError(t, err)
		require.Len(t, ids, len(people()))

		records := findAll(t, ctx, collection, odm.Filter{}, odm.FindOptions{})
		require.Len(t, records, len(ids))
		for i, record := range records {
			assert.Equal(t, ids[i], record[odm.IDField])
		}
	})

	t.Run("filters", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		_, err := collection.InsertMany(ctx, people())
		require.NoError(t, err)

		tests := []struct {
			name   string
			filter odm.Filter
			want   []string
		}{
			{name: "equality", filter: odm.Filter{"name": "bob"}, want: []string{"bob"}},
			{name: "greater_than", filter: odm.Filter{"age": odm.M{"$gt": 30}}, want: []string{"cleo", "dan"}},
			{name: "range", filter: odm.Filter{"age": odm.M{"$gte": 25, "$lt": 40}}, want: []string{"bob", "cleo"}},
			{name: "not_equal", filter: odm.Filter{"name": odm.M{"$ne": "bob"}}, want: []string{"ann", "cleo", "dan"}},
			{name: "in", filter: odm.Filter{"name": odm.M{"$in": []any{"ann", "dan", "zed"}}}, want: []string{"ann", "dan"}},
			{name: "not_in", filter: odm.Filter{"name": odm.M{"$nin": []any{"ann", "dan"}}}, want: []string{"bob", "cleo"}},
			{name: "exists", filter: odm.Filter{"email": odm.M{"$exists": true}}, want: []string{"ann", "cleo"}},
			{name: "missing", filter: odm.Filter{"email": odm.M{"$exists": false}}, want: []string{"bob", "dan"}},
			{name: "array_element", filter: odm.Filter{"tags": "go"}, want: []string{"ann", "dan"}},
			{name: "dotted_path", filter: odm.Filter{"address.city": "Paris"}, want: []string{"bob", "cleo"}},
			{name: "or", filter: odm.Filter{"$or": []any{odm.M{"name": "ann"}, odm.M{"age": odm.M{"$gt": 40}}}}, want: []string{"ann", "dan"}},
			{name: "and", filter: odm.Filter{"$and": []any{odm.M{"address.city": "Paris"}, odm.M{"age": odm.M{"$lt": 30}}}}, want: []string{"bob"}},
			{name: "regex", filter: odm.Filter{"name": odm.M{"$regex": "^[ab]"}}, want: []string{"ann", "bob"}},
			{name: "no_match", filter: odm.Filter{"name": "zed"}, want: []string{}},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				// act
				records := findAll(t, ctx, collection, tc.filter, odm.FindOptions{})

				// assert
				assert.Equal(t, tc.want, names(records))
			})
		}
	})

	t.Run("sort_skip_limit", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		_, err := collection.InsertMany(ctx, people())
		require.NoError(t, err)

		// act
		records := findAll(t, ctx, collection, odm.Filter{}, odm.FindOptions{
			Sort:  odm.SortSpec{odm.Desc("age")},
			Skip:  int64Ptr(1),
			Limit: int64Ptr(2),
		})

		// assert
		assert.Equal(t, []string{"cleo", "bob"}, names(records))
	})

	t.Run("projection", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		_, err := collection.InsertMany(ctx, people())
		require.NoError(t, err)

		// act
		records := findAll(t, ctx, collection, odm.Filter{"name": "ann"}, odm.FindOptions{
			Projection: odm.Projection{"name": 1},
		})

		// assert
		require.Len(t, records, 1)
		assert.Len(t, records[0], 2)
		assert.Equal(t, "ann", records[0]["name"])
		assert.Contains(t, records[0], odm.IDField)
	})

	t.Run("update_one_changes_the_first_match", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		_, err := collection.InsertMany(ctx, people())
		require.NoError(t, err)

		// act
		matched, err := collection.UpdateOne(ctx,
			odm.Filter{"address.city": "Paris"},
			odm.Update{"$set": odm.M{"status": "moved"}, "$inc": odm.M{"age": 1}},
		)

		// assert
		require.NoError(t, err)
		assert.Equal(t, int64(1), matched)

		records := findAll(t, ctx, collection, odm.Filter{"status": "moved"}, odm.FindOptions{})
		require.Len(t, records, 1)
		assert.Equal(t, "bob", records[0]["name"])
		assert.EqualValues(t, 29, records[0]["age"])
	})

	t.Run("update_many_and_unset", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		_, err := collection.InsertMany(ctx, people())
		require.NoError(t, err)

		// act
		matched, err := collection.UpdateMany(ctx,
			odm.Filter{"email": odm.M{"$exists": true}},
			odm.Update{"$unset": odm.M{"email": ""}, "$set": odm.M{"address.zip": "00000"}},
		)

		// assert
		require.NoError(t, err)
		assert.Equal(t, int64(2), matched)

		remaining, err := collection.CountDocuments(ctx, odm.Filter{"email": odm.M{"$exists": true}})
		require.NoError(t, err)
		assert.Equal(t, int64(0), remaining)

		zipped := findAll(t, ctx, collection, odm.Filter{"address.zip": "00000"}, odm.FindOptions{})
		assert.Equal(t, []string{"ann", "cleo"}, names(zipped))
	})

	t.Run("delete_one_and_delete_many", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		_, err := collection.InsertMany(ctx, people())
		require.NoError(t, err)

		// act
		deletedOne, errOne := collection.DeleteOne(ctx, odm.Filter{"address.city": "Paris"})
		deletedMany, errMany := collection.DeleteMany(ctx, odm.Filter{"age": odm.M{"$gt": 40}})

		// assert
		require.NoError(t, errOne)
		require.NoError(t, errMany)
		assert.Equal(t, int64(1), deletedOne)
		assert.Equal(t, int64(1), deletedMany)

		records := findAll(t, ctx, collection, odm.Filter{}, odm.FindOptions{})
		assert.Equal(t, []string{"ann", "cleo"}, names(records))
	})

	t.Run("unique_index_rejects_duplicates", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		err := collection.CreateIndex(ctx, odm.IndexModel{
			Keys:    odm.IndexKeys{odm.Asc("email")},
			Options: odm.IndexOptions{Unique: true, Sparse: true},
		})
		require.NoError(t, err)
		_, err = collection.InsertMany(ctx, people())
		require.NoError(t, err)

		// act
		_, err = collection.InsertOne(ctx, odm.Record{"name": "eve", "email": "ann@example.com"})

		// assert
		assert.ErrorIs(t, err, odm.ErrDuplicateKey)

		count, countErr := collection.CountDocuments(ctx, odm.Filter{})
		require.NoError(t, countErr)
		assert.Equal(t, int64(len(people())), count)
	})

	t.Run("aggregate_groups_matching_records", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		_, err := collection.InsertMany(ctx, people())
		require.NoError(t, err)

		// act
		results, err := collection.Aggregate(ctx, []odm.Record{
			{"$match": odm.M{"age": odm.M{"$gte": 25}}},
			{"$group": odm.M{"_id": "$address.city", "total": odm.M{"$sum": "$age"}, "people": odm.M{"$sum": 1}}},
			{"$sort": odm.M{"_id": 1}},
		})

		// assert
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "Berlin", results[0][odm.IDField])
		assert.InDelta(t, 45, results[0]["total"], 0.001)
		assert.Equal(t, "Paris", results[1][odm.IDField])
		assert.InDelta(t, 63, results[1]["total"], 0.001)
		assert.InDelta(t, 2, results[1]["people"], 0.001)
	})

	t.Run("times_round_trip", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)
		at := time.Date(2024, 3, 9, 14, 30, 15, 250*int(time.Millisecond), time.UTC)

		// act
		id, err := collection.InsertOne(ctx, odm.Record{"at": at})
		require.NoError(t, err)

		// assert
		records := findAll(t, ctx, collection, odm.Filter{"at": odm.M{"$gte": at.Add(-time.Second)}}, odm.FindOptions{})
		require.Len(t, records, 1)
		assert.Equal(t, id, records[0][odm.IDField])
		stored, ok := records[0]["at"].(time.Time)
		require.True(t, ok, "expected a time.Time, got %T", records[0]["at"])
		assert.True(t, at.Equal(stored))
	})

	t.Run("reading_an_unknown_collection_is_empty", func(t *testing.T) {
		// setup
		ctx, collection := setup(t, newStore)

		// act
		records := findAll(t, ctx, collection, odm.Filter{"name": "nobody"}, odm.FindOptions{})
		count, err := collection.CountDocuments(ctx, odm.Filter{})

		// assert
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.Equal(t, int64(0), count)
	})
}

func setup(t *testing.T, newStore StoreFactory) (context.Context, odm.Collection) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), contractTimeout)
	t.Cleanup(cancel)

	return ctx, newStore(t).Collection(UniqueCollectionName())
}

// UniqueCollectionName returns a collection name no other test uses.
func UniqueCollectionName() string {
	return fmt.Sprintf("c%s", uuid.NewString()[:8])
}

// people is inserted in this order by the tests above.
func people() []odm.Record {
	return []odm.Record{
		{"name": "ann", "age": 22, "email": "ann@example.com", "tags": []any{"go", "sql"}, "address": odm.M{"city": "Berlin"}},
		{"name": "bob", "age": 28, "tags": []any{"rust"}, "address": odm.M{"city": "Paris"}},
		{"name": "cleo", "age": 35, "email": "cleo@example.com", "tags": []any{}, "address": odm.M{"city": "Paris"}},
		{"name": "dan", "age": 45, "tags": []any{"go"}, "address": odm.M{"city": "Berlin"}},
	}
}

func findAll(t *testing.T, ctx context.Context, collection odm.Collection, filter odm.Filter, opts odm.FindOptions) []odm.Record {
	t.Helper()

	cursor, err := collection.Find(ctx, filter, opts)
	require.NoError(t, err)

	defer func() {
		assert.NoError(t, cursor.Close(ctx))
	}()

	records := make([]odm.Record, 0)
	for cursor.Next(ctx) {
		records = append(records, cursor.Record())
	}
	require.NoError(t, cursor.Err())

	return records
}

func names(records []odm.Record) []string {
	out := make([]string, 0, len(records))
	for _, record := range records {
		name, _ := record["name"].(string)
		out = append(out, name)
	}

	return out
}

func int64Ptr(v int64) *int64 {
	return &v
}
