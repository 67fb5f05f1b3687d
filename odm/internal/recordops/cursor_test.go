package recordops_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/internal/recordops"
)

func Test_SliceCursor_Iterates_Records(t *testing.T) {
	// arrange
	ctx := context.Background()
	cursor := recordops.NewSliceCursor([]odm.Record{{"_id": 1}, {"_id": 2}})
	var seen []any

	// act
	assert.Nil(t, cursor.Record())
	for cursor.Next(ctx) {
		seen = append(seen, cursor.Record()["_id"])
	}

	// assert
	assert.Equal(t, []any{1, 2}, seen)
	assert.NoError(t, cursor.Err())
	assert.False(t, cursor.Next(ctx))
	require.NoError(t, cursor.Close(ctx))
	assert.Nil(t, cursor.Record())
}

func Test_SliceCursor_Stops_On_Cancelled_Context(t *testing.T) {
	// arrange
	ctx, cancel := context.WithCancel(context.Background())
	cursor := recordops.NewSliceCursor([]odm.Record{{"_id": 1}, {"_id": 2}})
	require.True(t, cursor.Next(ctx))

	// act
	cancel()

	// assert
	assert.False(t, cursor.Next(ctx))
	assert.ErrorIs(t, cursor.Err(), context.Canceled)
	assert.False(t, cursor.Next(context.Background()), "a failed cursor stays failed")
}
