package odm

import (
	"context"
	"maps"
	"strings"
)

// IDField is the key under which a record carries its identity.
const IDField = "_id"

// M is a shorthand for generic mappings in definitions, filters and updates.
type M = map[string]any

// Record is one document as exchanged with the store.
type Record map[string]any

// Filter selects records. It uses the Mongo query vocabulary:
// equality, $eq, $ne, $gt, $gte, $lt, $lte, $in, $nin, $exists, and top-level $and / $or.
// Dotted keys address nested fields.
type Filter map[string]any

// Update is a patch using the operators $set, $unset and $inc.
type Update map[string]any

// Projection maps field names to 1 (include) or 0 (exclude).
type Projection map[string]int

// SortDirection is 1 for ascending and -1 for descending order.
type SortDirection = int

const (
	Ascending  SortDirection = 1
	Descending SortDirection = -1
)

// SortField is one (field, direction) pair of a sort specification.
type SortField struct {
	Field     string
	Direction SortDirection
}

// SortSpec is an ordered list of sort fields.
type SortSpec []SortField

// Asc creates an ascending SortField.
func Asc(field string) SortField {
	return SortField{Field: field, Direction: Ascending}
}

// Desc creates a descending SortField.
func Desc(field string) SortField {
	return SortField{Field: field, Direction: Descending}
}

// IndexKeys is the ordered key specification of an index.
type IndexKeys = SortSpec

// IndexOptions configures an index.
type IndexOptions struct {
	Name   string
	Unique bool
	Sparse bool
}

// IndexModel is an index specification together with its options.
type IndexModel struct {
	Keys    IndexKeys
	Options IndexOptions
}

// FindOptions are the cursor-level modifiers applied to a find request.
type FindOptions struct {
	Projection Projection
	Sort       SortSpec
	Skip       *int64
	Limit      *int64
}

// Store hands out collection handles. It replaces any process-wide connection singleton:
// callers construct one and pass it to NewRegistry explicitly.
type Store interface {
	Collection(name string) Collection
}

// Collection is the set of primitives the ODM needs from a document store.
//
// Implementations translate their native unique-key conflict into ErrDuplicateKey and pass
// every other failure through to the caller.
type Collection interface {
	InsertOne(ctx context.Context, record Record) (any, error)
	InsertMany(ctx context.Context, records []Record) ([]any, error)
	Find(ctx context.Context, filter Filter, opts FindOptions) (Cursor, error)
	UpdateOne(ctx context.Context, filter Filter, update Update) (int64, error)
	UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error)
	DeleteOne(ctx context.Context, filter Filter) (int64, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
	CountDocuments(ctx context.Context, filter Filter) (int64, error)
	CreateIndex(ctx context.Context, index IndexModel) error
	Aggregate(ctx context.Context, pipeline []Record) ([]Record, error)
}

// Cursor iterates over the records returned by Collection.Find.
type Cursor interface {
	Next(ctx context.Context) bool
	Record() Record
	Err() error
	Close(ctx context.Context) error
}

// Clone returns a deep copy of the record; nested records, maps and slices are copied too.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}

	out := make(Record, len(r))
	for k, v := range r {
		out[k] = CloneValue(v)
	}

	return out
}

// CloneValue deep-copies maps and slices produced by validation or by a store engine.
func CloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]any:
		return map[string]any(Record(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	default:
		return v
	}
}

// IndexName derives the conventional name for an index ("field_1_other_-1").
func IndexName(keys IndexKeys) string {
	parts := make([]string, 0, len(keys)*2)
	for _, key := range keys {
		parts = append(parts, key.Field)
		if key.Direction < 0 {
			parts = append(parts, "-1")
		} else {
			parts = append(parts, "1")
		}
	}

	return strings.Join(parts, "_")
}

func mergeFilter(dst Filter, src Filter) Filter {
	if dst == nil {
		dst = Filter{}
	}
	maps.Copy(dst, src)

	return dst
}
