package mongoengine

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hydromelvictor/gogoose/odm"
)

func Test_ToBSONValue_Converts_Outgoing_Values(t *testing.T) {
	// arrange
	id := uuid.New()
	oid := primitive.NewObjectID()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	// act
	doc := toBSONDocument(odm.Filter{
		"ref":    id,
		"oid":    oid,
		"at":     at,
		"nested": odm.M{"ids": []uuid.UUID{id}},
		"$or":    []any{odm.M{"a": 1}},
	})

	// assert
	assert.Equal(t, id.String(), doc["ref"])
	assert.Equal(t, oid, doc["oid"])
	assert.Equal(t, at, doc["at"])
	assert.Equal(t, bson.M{"ids": bson.A{id.String()}}, doc["nested"])
	assert.Equal(t, bson.A{bson.M{"a": 1}}, doc["$or"])
}

func Test_ToBSONDocument_Of_Nil_Is_Empty(t *testing.T) {
	assert.Equal(t, bson.M{}, toBSONDocument(nil))
}

func Test_FromBSONDocument_Normalizes_Decoded_Values(t *testing.T) {
	// arrange
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	oid := primitive.NewObjectID()

	// act
	record := fromBSONDocument(bson.M{
		"_id":   oid,
		"count": int32(7),
		"big":   int64(1) << 40,
		"ratio": 0.25,
		"at":    primitive.NewDateTimeFromTime(at),
		"tags":  primitive.A{"go", int32(1)},
		"doc":   primitive.D{{Key: "inner", Value: primitive.M{"n": int32(2)}}},
	})

	// assert
	assert.Equal(t, oid, record["_id"])
	assert.Equal(t, int64(7), record["count"])
	assert.Equal(t, int64(1)<<40, record["big"])
	assert.Equal(t, 0.25, record["ratio"])
	assert.Equal(t, at, record["at"])
	assert.Equal(t, []any{"go", int64(1)}, record["tags"])
	assert.Equal(t, map[string]any{"inner": map[string]any{"n": int64(2)}}, record["doc"])
}

func Test_SortDocument_Keeps_Key_Order(t *testing.T) {
	// act
	doc := sortDocument(odm.SortSpec{odm.Desc("age"), odm.Asc("name")})

	// assert
	assert.Equal(t, bson.D{{Key: "age", Value: -1}, {Key: "name", Value: 1}}, doc)
}

func Test_PipelineStages(t *testing.T) {
	// act
	stages, err := pipelineStages([]odm.Record{
		{"$match": odm.M{"age": odm.M{"$gte": 18}}},
		{"$sort": odm.SortSpec{odm.Desc("age"), odm.Asc("name")}},
		{"$sort": odm.M{"b": 1, "a": -1}},
	})

	// assert
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, bson.M{"$match": bson.M{"age": bson.M{"$gte": 18}}}, stages[0])
	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "age", Value: -1}, {Key: "name", Value: 1}}}}, stages[1])
	assert.Equal(t, bson.D{{Key: "$sort", Value: bson.D{{Key: "a", Value: -1}, {Key: "b", Value: 1}}}}, stages[2])
}
