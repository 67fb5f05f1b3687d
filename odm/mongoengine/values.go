package mongoengine

import (
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/internal/recordops"
)

// toBSONValue prepares a filter, update or record value for the driver.
func toBSONValue(value any) any {
	switch v := value.(type) {
	case uuid.UUID:
		return v.String()
	case odm.SortSpec:
		return sortDocument(v)
	case []odm.SortField:
		return sortDocument(v)
	case primitive.ObjectID, primitive.DateTime, bson.D:
		return v
	}

	if m, ok := recordops.AsMap(value); ok {
		out := make(bson.M, len(m))
		for k, item := range m {
			out[k] = toBSONValue(item)
		}
		return out
	}

	if s, ok := recordops.AsSlice(value); ok {
		out := make(bson.A, len(s))
		for i, item := range s {
			out[i] = toBSONValue(item)
		}
		return out
	}

	return value
}

func toBSONDocument(m map[string]any) bson.M {
	if m == nil {
		return bson.M{}
	}

	return toBSONValue(map[string]any(m)).(bson.M)
}

// sortDocument keeps the order of the sort keys.
func sortDocument(spec odm.SortSpec) bson.D {
	doc := make(bson.D, len(spec))
	for i, key := range spec {
		direction := odm.Ascending
		if key.Direction < 0 {
			direction = odm.Descending
		}
		doc[i] = bson.E{Key: key.Field, Value: direction}
	}

	return doc
}

// projectionDocument converts a projection.
func projectionDocument(projection odm.Projection) bson.M {
	doc := make(bson.M, len(projection))
	for field, include := range projection {
		doc[field] = include
	}

	return doc
}

// pipelineStages converts an aggregation pipeline. $sort stages go through SortSpecFrom so that
// multi-key sorts keep a deterministic order.
func pipelineStages(pipeline []odm.Record) ([]any, error) {
	stages := make([]any, len(pipeline))

	for i, stage := range pipeline {
		if spec, ok := stage["$sort"]; ok && len(stage) == 1 {
			sortSpec, err := recordops.SortSpecFrom(spec)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnsupportedSortKey, err)
			}
			stages[i] = bson.D{{Key: "$sort", Value: sortDocument(sortSpec)}}
			continue
		}

		stages[i] = toBSONDocument(stage)
	}

	return stages, nil
}

// fromBSONValue normalizes a decoded value.
func fromBSONValue(value any) any {
	switch v := value.(type) {
	case primitive.M:
		return map[string]any(fromBSONDocument(v))
	case primitive.D:
		out := make(map[string]any, len(v))
		for _, e := range v {
			out[e.Key] = fromBSONValue(e.Value)
		}
		return out
	case primitive.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromBSONValue(item)
		}
		return out
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Timestamp:
		return v
	case int32:
		return int64(v)
	}

	return value
}

// fromBSONDocument normalizes a decoded document into a record.
func fromBSONDocument(doc bson.M) odm.Record {
	record := make(odm.Record, len(doc))
	for k, v := range doc {
		record[k] = fromBSONValue(v)
	}

	return record
}
