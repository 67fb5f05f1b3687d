// Package mongoengine provides a MongoDB implementation of the odm.Store interface on top of the
// official Go driver.
//
// Filters, updates, sorts, projections and pipelines are passed to the server as they are; only
// values without a BSON form (uuid.UUID) are converted on the way out. Records read back are
// normalized to the same value types the other engines produce: nested documents become
// map[string]any, arrays []any, 32-bit integers int64 and BSON dates time.Time in UTC.
//
// Reads from a context marked with odm.WithEventualConsistency use the secondaryPreferred read
// preference.
//
// Usage example:
//
//	client, _ := mongo.Connect(ctx, options.Client().ApplyURI(uri))
//	store, _ := mongoengine.NewStore(client, "app", mongoengine.WithLogger(logger))
//
//	registry, _ := odm.NewRegistry(store)
package mongoengine
