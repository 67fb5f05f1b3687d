package mongoengine

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/internal/recordops"
)

// Collection is one MongoDB collection.
type Collection struct {
	store      *Store
	name       string
	collection *mongo.Collection
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

// InsertOne inserts one record and returns its identity; the driver generates an ObjectID
// when the record has none.
func (c *Collection) InsertOne(ctx context.Context, record odm.Record) (any, error) {
	start := time.Now()
	result, err := c.collection.InsertOne(ctx, toBSONDocument(record))
	c.store.logCommand(ctx, commandInsert, c.name, time.Since(start))

	if err != nil {
		return nil, c.store.translate(ctx, err, c.name)
	}

	return result.InsertedID, nil
}

// InsertMany inserts the records in order and stops at the first failure.
func (c *Collection) InsertMany(ctx context.Context, records []odm.Record) ([]any, error) {
	if len(records) == 0 {
		return []any{}, nil
	}

	documents := make([]any, len(records))
	for i, record := range records {
		documents[i] = toBSONDocument(record)
	}

	start := time.Now()
	result, err := c.collection.InsertMany(ctx, documents, options.InsertMany().SetOrdered(true))
	c.store.logCommand(ctx, commandInsert, c.name, time.Since(start))

	if err != nil {
		return nil, c.store.translate(ctx, err, c.name)
	}

	return result.InsertedIDs, nil
}

// Find runs a find command and drains the cursor.
func (c *Collection) Find(ctx context.Context, filter odm.Filter, opts odm.FindOptions) (odm.Cursor, error) {
	findOptions := options.Find()

	if len(opts.Sort) > 0 {
		findOptions.SetSort(sortDocument(opts.Sort))
	}

	if len(opts.Projection) > 0 {
		findOptions.SetProjection(projectionDocument(opts.Projection))
	}

	if opts.Skip != nil {
		findOptions.SetSkip(*opts.Skip)
	}

	if opts.Limit != nil {
		findOptions.SetLimit(*opts.Limit)
	}

	collection, err := c.readCollection(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cursor, err := collection.Find(ctx, toBSONDocument(filter), findOptions)
	if err != nil {
		c.store.logCommand(ctx, commandFind, c.name, time.Since(start))
		return nil, c.store.translate(ctx, err, c.name)
	}

	records, err := c.drain(ctx, cursor)
	c.store.logCommand(ctx, commandFind, c.name, time.Since(start))

	if err != nil {
		return nil, err
	}

	return recordops.NewSliceCursor(records), nil
}

// UpdateOne updates the first matching record and returns the matched count.
func (c *Collection) UpdateOne(ctx context.Context, filter odm.Filter, update odm.Update) (int64, error) {
	start := time.Now()
	result, err := c.collection.UpdateOne(ctx, toBSONDocument(filter), toBSONDocument(update))
	c.store.logCommand(ctx, commandUpdate, c.name, time.Since(start))

	if err != nil {
		return 0, c.store.translate(ctx, err, c.name)
	}

	return result.MatchedCount, nil
}

// UpdateMany updates every matching record and returns the matched count.
func (c *Collection) UpdateMany(ctx context.Context, filter odm.Filter, update odm.Update) (int64, error) {
	start := time.Now()
	result, err := c.collection.UpdateMany(ctx, toBSONDocument(filter), toBSONDocument(update))
	c.store.logCommand(ctx, commandUpdate, c.name, time.Since(start))

	if err != nil {
		return 0, c.store.translate(ctx, err, c.name)
	}

	return result.MatchedCount, nil
}

// DeleteOne deletes the first matching record.
func (c *Collection) DeleteOne(ctx context.Context, filter odm.Filter) (int64, error) {
	start := time.Now()
	result, err := c.collection.DeleteOne(ctx, toBSONDocument(filter))
	c.store.logCommand(ctx, commandDelete, c.name, time.Since(start))

	if err != nil {
		return 0, c.store.translate(ctx, err, c.name)
	}

	return result.DeletedCount, nil
}

// DeleteMany deletes every matching record.
func (c *Collection) DeleteMany(ctx context.Context, filter odm.Filter) (int64, error) {
	start := time.Now()
	result, err := c.collection.DeleteMany(ctx, toBSONDocument(filter))
	c.store.logCommand(ctx, commandDelete, c.name, time.Since(start))

	if err != nil {
		return 0, c.store.translate(ctx, err, c.name)
	}

	return result.DeletedCount, nil
}

// CountDocuments counts the matching records.
func (c *Collection) CountDocuments(ctx context.Context, filter odm.Filter) (int64, error) {
	collection, err := c.readCollection(ctx)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	count, err := collection.CountDocuments(ctx, toBSONDocument(filter))
	c.store.logCommand(ctx, commandCount, c.name, time.Since(start))

	if err != nil {
		return 0, c.store.translate(ctx, err, c.name)
	}

	return count, nil
}

// CreateIndex creates an index; existing records violating a unique index yield odm.ErrDuplicateKey.
func (c *Collection) CreateIndex(ctx context.Context, index odm.IndexModel) error {
	if len(index.Keys) == 0 {
		return errors.Join(odm.ErrCreatingIndexFailed, errors.New("index without keys"))
	}

	name := index.Options.Name
	if name == "" {
		name = odm.IndexName(index.Keys)
	}

	model := mongo.IndexModel{
		Keys: sortDocument(index.Keys),
		Options: options.Index().
			SetName(name).
			SetUnique(index.Options.Unique).
			SetSparse(index.Options.Sparse),
	}

	start := time.Now()
	_, err := c.collection.Indexes().CreateOne(ctx, model)
	c.store.logCommand(ctx, commandCreateIdx, c.name, time.Since(start))

	return c.store.translate(ctx, err, c.name)
}

// Aggregate runs the pipeline on the server.
func (c *Collection) Aggregate(ctx context.Context, pipeline []odm.Record) ([]odm.Record, error) {
	stages, err := pipelineStages(pipeline)
	if err != nil {
		return nil, errors.Join(odm.ErrInvalidPipeline, err)
	}

	collection, err := c.readCollection(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	cursor, err := collection.Aggregate(ctx, stages)
	if err != nil {
		c.store.logCommand(ctx, commandAggregate, c.name, time.Since(start))
		return nil, c.store.translate(ctx, err, c.name)
	}

	records, err := c.drain(ctx, cursor)
	c.store.logCommand(ctx, commandAggregate, c.name, time.Since(start))

	return records, err
}

// readCollection returns the handle for reads: secondaryPreferred when the context asks for
// eventual consistency, the primary otherwise.
func (c *Collection) readCollection(ctx context.Context) (*mongo.Collection, error) {
	if odm.GetConsistencyLevel(ctx) != odm.EventualConsistency {
		return c.collection, nil
	}

	collection, err := c.collection.Clone(options.Collection().SetReadPreference(readpref.SecondaryPreferred()))
	if err != nil {
		return nil, errors.Join(ErrCloningCollection, err)
	}

	return collection, nil
}

func (c *Collection) drain(ctx context.Context, cursor *mongo.Cursor) ([]odm.Record, error) {
	defer func() {
		if closeErr := cursor.Close(ctx); closeErr != nil {
			c.store.logWarn(ctx, logMsgCloseCursor, closeErr)
		}
	}()

	records := make([]odm.Record, 0)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, errors.Join(ErrDecodingFailed, err)
		}

		records = append(records, fromBSONDocument(doc))
	}

	if err := cursor.Err(); err != nil {
		return nil, c.store.translate(ctx, err, c.name)
	}

	return records, nil
}
