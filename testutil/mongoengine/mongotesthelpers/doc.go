// Package mongotesthelpers provides test utilities for the MongoDB document store.
//
// Tests connect to the URI in TEST_MONGO_URI (default mongodb://localhost:27017) and are skipped
// when no server answers. Every store gets its own database, dropped when the test ends.
package mongotesthelpers
