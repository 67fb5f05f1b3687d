package mongoengine_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/mongoengine"
	"github.com/hydromelvictor/gogoose/testutil/mongoengine/mongotesthelpers"
	"github.com/hydromelvictor/gogoose/testutil/observability/testdoubles"
	"github.com/hydromelvictor/gogoose/testutil/storetest"
)

func Test_NewStore_Validates_Its_Arguments(t *testing.T) {
	tests := []struct {
		name     string
		client   *mongo.Client
		database string
		wantErr  error
	}{
		{name: "nil_client", client: nil, database: "app", wantErr: mongoengine.ErrNilClient},
		{name: "empty_database", client: &mongo.Client{}, database: "", wantErr: mongoengine.ErrEmptyDatabaseName},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			store, err := mongoengine.NewStore(tc.client, tc.database)

			// assert
			assert.Nil(t, store)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func Test_Mongoengine_Satisfies_The_Collection_Contract(t *testing.T) {
	storetest.RunCollectionContract(t, func(t *testing.T) odm.Store {
		return mongotesthelpers.CreateStoreForTest(t)
	})
}

func Test_Eventually_Consistent_Reads_Use_The_Same_Data_On_A_Single_Node(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	collection := mongotesthelpers.CreateStoreForTest(t).Collection("users")

	// arrange
	_, err := collection.InsertOne(ctx, odm.Record{"name": "ada"})
	require.NoError(t, err)

	// act
	count, err := collection.CountDocuments(odm.WithEventualConsistency(ctx), odm.Filter{"name": "ada"})

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func Test_Duplicate_Keys_Are_Logged_And_Translated(t *testing.T) {
	// setup
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logHandler := testdoubles.NewLogHandlerSpy(false)
	collection := mongotesthelpers.CreateStoreForTest(t, mongoengine.WithLogger(slog.New(logHandler))).Collection("users")

	// arrange
	_, err := collection.InsertOne(ctx, odm.Record{odm.IDField: "u1"})
	require.NoError(t, err)

	// act
	_, err = collection.InsertOne(ctx, odm.Record{odm.IDField: "u1"})

	// assert
	assert.ErrorIs(t, err, odm.ErrDuplicateKey)
	assert.True(t, logHandler.HasLog(slog.LevelInfo, "mongoengine operation: duplicate key rejected"))
	assert.True(t, logHandler.HasLogWithAttr(slog.LevelDebug, "executed mongo command: insert", "duration_ms"))
}
