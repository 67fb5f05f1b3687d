package odm

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Model binds a frozen Schema to a named collection and is the entry point for creating,
// reading, updating, and deleting documents. Models are created by Registry.Model and are
// safe for concurrent use.
type Model struct {
	name           string
	schema         *Schema
	collectionName string
	collection     Collection
	observability
}

// collectionNameFor returns the collection option of the schema, else the lowercased model
// name with an "s" appended.
func collectionNameFor(name string, schema *Schema) string {
	if schema.options.Collection != "" {
		return schema.options.Collection
	}

	return strings.ToLower(name) + "s"
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// Schema returns the frozen schema of the model.
func (m *Model) Schema() *Schema {
	return m.schema
}

// CollectionName returns the name of the backing collection.
func (m *Model) CollectionName() string {
	return m.collectionName
}

// Collection returns the backing store collection.
func (m *Model) Collection() Collection {
	return m.collection
}

// New validates record and returns a new, unsaved Document.
func (m *Model) New(record Record) (*Document, error) {
	return newDocument(m, record)
}

// Create validates record, saves it, and returns the persisted Document.
// Save hooks run as for Document.Save.
func (m *Model) Create(ctx context.Context, record Record) (*Document, error) {
	doc, err := m.New(record)
	if err != nil {
		return nil, err
	}

	if _, err := doc.Save(ctx); err != nil {
		return nil, err
	}

	return doc, nil
}

// CreateMany validates every record first and then inserts them in one store call.
// Nothing is written when any record is invalid. Save hooks do not run.
func (m *Model) CreateMany(ctx context.Context, records []Record) ([]*Document, error) {
	validated := make([]Record, len(records))
	for i, record := range records {
		v, err := m.schema.Validate(record)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}

		validated[i] = v
	}

	if len(validated) == 0 {
		return []*Document{}, nil
	}

	ctx, observer := m.startOperation(ctx, operationInsertMany)
	ids, err := m.collection.InsertMany(ctx, cloneRecords(validated))
	if err = observer.finish(err); err != nil {
		return nil, err
	}

	docs := make([]*Document, len(validated))
	for i, record := range validated {
		if i < len(ids) {
			record[IDField] = ids[i]
		}

		docs[i] = newTrustedDocument(m, record)
	}

	m.logInfo(ctx, logMsgOperation+logMsgDocumentsCreated, logAttrModel, m.name, logAttrCount, len(docs))

	return docs, nil
}

// Find starts a lazy Query. Nothing touches the store until Exec, First, or Count.
func (m *Model) Find(filter Filter) *Query {
	return newQuery(m, filter)
}

// FindOne returns the first matching document or ErrNotFound.
func (m *Model) FindOne(ctx context.Context, filter Filter) (*Document, error) {
	return m.Find(filter).First(ctx)
}

// FindByID returns the document with the given identity or ErrNotFound.
func (m *Model) FindByID(ctx context.Context, id any) (*Document, error) {
	return m.FindOne(ctx, Filter{IDField: id})
}

// UpdateOne applies update to the first matching record and returns the number of records
// modified. With timestamps enabled, updated_at is set as part of the update.
func (m *Model) UpdateOne(ctx context.Context, filter Filter, update Update) (int64, error) {
	return m.updateOne(ctx, filter, m.withTimestamp(update))
}

// UpdateMany applies update to all matching records.
func (m *Model) UpdateMany(ctx context.Context, filter Filter, update Update) (int64, error) {
	ctx, observer := m.startOperation(ctx, operationUpdateMany)
	n, err := m.collection.UpdateMany(ctx, filter, m.withTimestamp(update))

	return n, observer.finish(err)
}

// DeleteOne removes the first matching record. Delete hooks do not run.
func (m *Model) DeleteOne(ctx context.Context, filter Filter) (int64, error) {
	return m.deleteOne(ctx, filter)
}

// DeleteMany removes all matching records.
func (m *Model) DeleteMany(ctx context.Context, filter Filter) (int64, error) {
	ctx, observer := m.startOperation(ctx, operationDeleteMany)
	n, err := m.collection.DeleteMany(ctx, filter)

	return n, observer.finish(err)
}

// Count returns the number of matching records.
func (m *Model) Count(ctx context.Context, filter Filter) (int64, error) {
	ctx, observer := m.startOperation(ctx, operationCount)
	n, err := m.collection.CountDocuments(ctx, filter)

	return n, observer.finish(err)
}

// Aggregate runs a pipeline on the collection and returns the raw result records.
func (m *Model) Aggregate(ctx context.Context, pipeline []Record) ([]Record, error) {
	ctx, observer := m.startOperation(ctx, operationAggregate)
	records, err := m.collection.Aggregate(ctx, pipeline)
	if err = observer.finish(err); err != nil {
		return nil, err
	}

	observer.returned(len(records))

	if records == nil {
		records = []Record{}
	}

	return records, nil
}

// Call invokes a static function registered on the schema.
func (m *Model) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := m.schema.static(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchMethod, name)
	}

	return fn(ctx, m, args...)
}

func (m *Model) withTimestamp(update Update) Update {
	if !m.schema.Timestamps() {
		return update
	}

	patched := make(Update, len(update)+1)
	maps.Copy(patched, update)

	set := M{}
	switch existing := update["$set"].(type) {
	case M:
		maps.Copy(set, existing)
	case Record:
		maps.Copy(set, existing)
	}

	set[UpdatedAtField] = time.Now()
	patched["$set"] = set

	return patched
}

func (m *Model) insertOne(ctx context.Context, record Record) (any, error) {
	ctx, observer := m.startOperation(ctx, operationInsertOne)
	id, err := m.collection.InsertOne(ctx, record)

	return id, observer.finish(err)
}

func (m *Model) updateOne(ctx context.Context, filter Filter, update Update) (int64, error) {
	ctx, observer := m.startOperation(ctx, operationUpdateOne)
	n, err := m.collection.UpdateOne(ctx, filter, update)

	return n, observer.finish(err)
}

func (m *Model) deleteOne(ctx context.Context, filter Filter) (int64, error) {
	ctx, observer := m.startOperation(ctx, operationDeleteOne)
	n, err := m.collection.DeleteOne(ctx, filter)

	return n, observer.finish(err)
}

func (m *Model) logHookFailure(ctx context.Context, when string, action string, failures int) {
	m.logWarn(ctx, logMsgHookFailed, logAttrModel, m.name, logAttrHook, when+" "+action, logAttrFailures, failures)
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, record := range records {
		out[i] = record.Clone()
	}

	return out
}
