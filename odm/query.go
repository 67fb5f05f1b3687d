package odm

import (
	"context"
	"maps"
	"slices"
	"strings"
)

// Query is a lazy, chainable description of a find request. Builder methods mutate the query
// and return it; only Exec, First, and Count talk to the store.
//
// A Query belongs to one goroutine.
type Query struct {
	model      *Model
	filter     Filter
	projection Projection
	sort       SortSpec
	skip       *int64
	limit      *int64
	populate   []string
}

func newQuery(model *Model, filter Filter) *Query {
	return &Query{
		model:  model,
		filter: mergeFilter(nil, filter),
	}
}

// Find merges more conditions into the filter. Existing keys are overwritten.
func (q *Query) Find(filter Filter) *Query {
	q.filter = mergeFilter(q.filter, filter)
	return q
}

// Where adds an equality condition or an operator document for one field.
// A nil value leaves the query unchanged.
func (q *Query) Where(field string, value any) *Query {
	if value == nil {
		return q
	}

	q.filter[field] = value

	return q
}

// Select sets the projection. Each argument may hold several space separated names;
// a leading "-" excludes the field.
//
//	q.Select("name email")
//	q.Select("-password")
func (q *Query) Select(fields ...string) *Query {
	projection := Projection{}

	for _, arg := range fields {
		for _, field := range strings.Fields(arg) {
			if name, excluded := strings.CutPrefix(field, "-"); excluded {
				projection[name] = 0
			} else {
				projection[field] = 1
			}
		}
	}

	q.projection = projection

	return q
}

// Project sets an explicit projection mapping.
func (q *Query) Project(projection Projection) *Query {
	q.projection = maps.Clone(projection)
	return q
}

// Sort sets the sort order from field names; a leading "-" sorts descending.
//
//	q.Sort("-created_at", "name")
func (q *Query) Sort(fields ...string) *Query {
	spec := make(SortSpec, 0, len(fields))

	for _, arg := range fields {
		for _, field := range strings.Fields(arg) {
			if name, desc := strings.CutPrefix(field, "-"); desc {
				spec = append(spec, Desc(name))
			} else {
				spec = append(spec, Asc(field))
			}
		}
	}

	q.sort = spec

	return q
}

// SortBy sets an explicit sort specification.
func (q *Query) SortBy(spec ...SortField) *Query {
	q.sort = slices.Clone(spec)
	return q
}

// Limit caps the number of returned documents.
func (q *Query) Limit(n int64) *Query {
	q.limit = &n
	return q
}

// Skip skips the first n matching documents.
func (q *Query) Skip(n int64) *Query {
	q.skip = &n
	return q
}

// Populate records the intent to resolve a reference field. Resolution itself is not
// performed; the names are available through PopulateFields for callers that resolve
// references on their own.
func (q *Query) Populate(field string) *Query {
	q.populate = append(q.populate, field)
	return q
}

// PopulateFields returns the fields passed to Populate.
func (q *Query) PopulateFields() []string {
	return slices.Clone(q.populate)
}

// Filter returns a copy of the accumulated filter.
func (q *Query) Filter() Filter {
	return mergeFilter(nil, q.filter)
}

// Options returns the cursor-level modifiers of the query.
func (q *Query) Options() FindOptions {
	return FindOptions{
		Projection: maps.Clone(q.projection),
		Sort:       slices.Clone(q.sort),
		Skip:       q.skip,
		Limit:      q.limit,
	}
}

// Exec runs the query and returns the matching documents in store order.
// The slice is empty, never nil, when nothing matches.
func (q *Query) Exec(ctx context.Context) ([]*Document, error) {
	m := q.model
	ctx, observer := m.startOperation(ctx, operationFind)

	cursor, err := m.collection.Find(ctx, q.Filter(), q.Options())
	if err != nil {
		return nil, observer.finish(err)
	}
	defer q.closeCursor(ctx, cursor)

	docs := make([]*Document, 0)
	for cursor.Next(ctx) {
		docs = append(docs, newTrustedDocument(m, cursor.Record()))
	}

	if err := observer.finish(cursor.Err()); err != nil {
		return nil, err
	}

	observer.returned(len(docs))
	m.logInfo(
		ctx,
		logMsgOperation+logMsgDocumentsFound,
		logAttrModel, m.name,
		logAttrCount, len(docs),
	)

	return docs, nil
}

// First runs the query with a limit of one and returns ErrNotFound when nothing matches.
// The receiver is not modified.
func (q *Query) First(ctx context.Context) (*Document, error) {
	single := q.clone().Limit(1)

	docs, err := single.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if len(docs) == 0 {
		return nil, ErrNotFound
	}

	return docs[0], nil
}

// Count returns the number of records matching the filter. Projection, sort, skip,
// and limit are ignored.
func (q *Query) Count(ctx context.Context) (int64, error) {
	return q.model.Count(ctx, q.Filter())
}

func (q *Query) clone() *Query {
	return &Query{
		model:      q.model,
		filter:     q.Filter(),
		projection: maps.Clone(q.projection),
		sort:       slices.Clone(q.sort),
		skip:       q.skip,
		limit:      q.limit,
		populate:   slices.Clone(q.populate),
	}
}

func (q *Query) closeCursor(ctx context.Context, cursor Cursor) {
	if err := cursor.Close(ctx); err != nil {
		q.model.logWarn(ctx, logMsgCloseCursor, logAttrError, err.Error(), logAttrModel, q.model.name)
	}
}
