package odm_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hydromelvictor/gogoose/odm"
)

func Test_Consistency_Level(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want odm.ConsistencyLevel
	}{
		{name: "default_is_strong", ctx: context.Background(), want: odm.StrongConsistency},
		{name: "strong", ctx: odm.WithStrongConsistency(context.Background()), want: odm.StrongConsistency},
		{name: "eventual", ctx: odm.WithEventualConsistency(context.Background()), want: odm.EventualConsistency},
		{
			name: "innermost_wins",
			ctx:  odm.WithStrongConsistency(odm.WithEventualConsistency(context.Background())),
			want: odm.StrongConsistency,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			got := odm.GetConsistencyLevel(tc.ctx)

			// assert
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_Consistency_Level_String(t *testing.T) {
	assert.Equal(t, "strong", odm.StrongConsistency.String())
	assert.Equal(t, "eventual", odm.EventualConsistency.String())
	assert.Equal(t, "unknown", odm.ConsistencyLevel(7).String())
}
