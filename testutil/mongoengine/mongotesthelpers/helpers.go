package mongotesthelpers

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hydromelvictor/gogoose/odm/mongoengine"
)

const (
	envMongoURI     = "TEST_MONGO_URI"
	defaultMongoURI = "mongodb://localhost:27017"
	connectTimeout  = 3 * time.Second
)

// MongoURI returns the URI of the test server.
func MongoURI() string {
	if uri := os.Getenv(envMongoURI); uri != "" {
		return uri
	}

	return defaultMongoURI
}

// ConnectForTest connects to the test server and skips the test when it is unreachable.
func ConnectForTest(t testing.TB) *mongo.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(MongoURI()).
		SetServerSelectionTimeout(connectTimeout).
		SetConnectTimeout(connectTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		t.Skipf("mongo test server not reachable: %v", err)
	}

	if pingErr := client.Ping(ctx, nil); pingErr != nil {
		_ = client.Disconnect(context.Background())
		t.Skipf("mongo test server not reachable: %v", pingErr)
	}

	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})

	return client
}

// CreateStoreForTest builds a Store on a fresh database that is dropped after the test.
func CreateStoreForTest(t testing.TB, options ...mongoengine.Option) *mongoengine.Store {
	t.Helper()

	client := ConnectForTest(t)
	database := "gogoose_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	store, err := mongoengine.NewStore(client, database, options...)
	require.NoError(t, err, "error creating the store in test setup")

	t.Cleanup(func() {
		_ = client.Database(database).Drop(context.Background())
	})

	return store
}
