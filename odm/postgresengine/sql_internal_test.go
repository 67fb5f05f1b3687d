package postgresengine

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hydromelvictor/gogoose/odm"
)

func whereSQL(t *testing.T, filter odm.Filter) string {
	t.Helper()

	where, err := buildWhere(filter)
	require.NoError(t, err)

	sqlQuery, _, err := goqu.Dialect(dialectPostgres).From("t").Where(where).ToSQL()
	require.NoError(t, err)

	return sqlQuery
}

func updateSQL(t *testing.T, update odm.Update) string {
	t.Helper()

	expression, err := buildUpdateExpression(update)
	require.NoError(t, err)

	sqlQuery, _, err := goqu.Dialect(dialectPostgres).Update("t").Set(goqu.Record{colDoc: expression}).ToSQL()
	require.NoError(t, err)

	return sqlQuery
}

func Test_BuildWhere_Translates_Filters(t *testing.T) {
	tests := []struct {
		name     string
		filter   odm.Filter
		contains []string
	}{
		{
			name:     "scalar_equality_uses_containment_for_value_and_array_element",
			filter:   odm.Filter{"name": "ada"},
			contains: []string{`doc @> '{"name":"ada"}'::jsonb`, `doc @> '{"name":["ada"]}'::jsonb`},
		},
		{
			name:     "dotted_path_builds_nested_document",
			filter:   odm.Filter{"address.city": "Paris"},
			contains: []string{`'{"address":{"city":"Paris"}}'::jsonb`},
		},
		{
			name:     "identity_equality_uses_id_column",
			filter:   odm.Filter{"_id": "abc"},
			contains: []string{`"id" = 'abc'`},
		},
		{
			name:     "identity_in_uses_id_column",
			filter:   odm.Filter{"_id": odm.M{"$in": []any{"a", "b"}}},
			contains: []string{`"id" IN ('a', 'b')`},
		},
		{
			name:     "range_compares_same_jsonb_type",
			filter:   odm.Filter{"age": odm.M{"$gte": 18}},
			contains: []string{`jsonb_typeof('18'::jsonb)`, `doc #> '{"age"}'::text[] >= '18'::jsonb`},
		},
		{
			name:     "case_insensitive_regex",
			filter:   odm.Filter{"name": odm.M{"$regex": "^ad", "$options": "i"}},
			contains: []string{`~* '^ad'`},
		},
		{
			name:     "exists_false_checks_for_missing_path",
			filter:   odm.Filter{"email": odm.M{"$exists": false}},
			contains: []string{`doc #> '{"email"}'::text[] IS NULL`},
		},
		{
			name:     "null_matches_missing_or_null",
			filter:   odm.Filter{"email": nil},
			contains: []string{`IS NULL OR doc #> '{"email"}'::text[] = 'null'::jsonb`},
		},
		{
			name:     "or_combines_clauses",
			filter:   odm.Filter{"$or": []any{odm.M{"a": 1}, odm.M{"b": 2}}},
			contains: []string{`'{"a":1}'::jsonb`, " OR ", `'{"b":2}'::jsonb`},
		},
		{
			name:     "empty_in_matches_nothing",
			filter:   odm.Filter{"tags": odm.M{"$in": []any{}}},
			contains: []string{"FALSE"},
		},
		{
			name:     "time_values_use_date_wrapper",
			filter:   odm.Filter{"at": time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
			contains: []string{`{"$date":"2024-05-01T12:00:00.000000000Z"}`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			sqlQuery := whereSQL(t, tc.filter)

			// assert
			for _, fragment := range tc.contains {
				assert.Contains(t, sqlQuery, fragment)
			}
		})
	}
}

func Test_BuildWhere_Rejects_Unsupported_Operators(t *testing.T) {
	tests := []odm.Filter{
		{"age": odm.M{"$near": 1}},
		{"$where": "this.a > 1"},
		{"$or": "not-a-list"},
	}

	for i, filter := range tests {
		t.Run(fmt.Sprintf("filter_%d", i), func(t *testing.T) {
			// act
			_, err := buildWhere(filter)

			// assert
			assert.ErrorIs(t, err, odm.ErrUnsupportedOperator)
		})
	}
}

func Test_BuildUpdateExpression_Translates_Operators(t *testing.T) {
	tests := []struct {
		name     string
		update   odm.Update
		contains []string
	}{
		{
			name:     "set",
			update:   odm.Update{"$set": odm.M{"name": "x"}},
			contains: []string{`jsonb_set("doc", '{"name"}'::text[], '"x"'::jsonb, true)`},
		},
		{
			name:     "nested_set_creates_parents",
			update:   odm.Update{"$set": odm.M{"address.city": "Paris"}},
			contains: []string{`COALESCE("doc" #> '{"address"}'::text[], '{}'::jsonb)`, `'{"address","city"}'::text[]`},
		},
		{
			name:     "unset",
			update:   odm.Update{"$unset": odm.M{"tmp": ""}},
			contains: []string{`("doc" #- '{"tmp"}'::text[])`},
		},
		{
			name:     "inc",
			update:   odm.Update{"$inc": odm.M{"visits": 2}},
			contains: []string{`COALESCE(("doc" #>> '{"visits"}'::text[])::numeric, 0) + 2`},
		},
		{
			name:     "push",
			update:   odm.Update{"$push": odm.M{"tags": "go"}},
			contains: []string{`jsonb_build_array('"go"'::jsonb)`},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			sqlQuery := updateSQL(t, tc.update)

			// assert
			for _, fragment := range tc.contains {
				assert.Contains(t, sqlQuery, fragment)
			}
		})
	}
}

func Test_BuildUpdateExpression_Rejects_Invalid_Updates(t *testing.T) {
	tests := []struct {
		name   string
		update odm.Update
		want   error
	}{
		{name: "empty", update: odm.Update{}, want: odm.ErrInvalidUpdate},
		{name: "identity", update: odm.Update{"$set": odm.M{"_id": "x"}}, want: odm.ErrInvalidUpdate},
		{name: "replacement", update: odm.Update{"name": "x"}, want: odm.ErrInvalidUpdate},
		{name: "inc_without_number", update: odm.Update{"$inc": odm.M{"n": "one"}}, want: odm.ErrInvalidUpdate},
		{name: "unknown_operator", update: odm.Update{"$rename": odm.M{"a": "b"}}, want: odm.ErrUnsupportedOperator},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := buildUpdateExpression(tc.update)

			// assert
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func Test_OrderBy_Appends_Insertion_Order(t *testing.T) {
	// arrange
	selectStmt := goqu.Dialect(dialectPostgres).From("t").Order(orderBy(odm.SortSpec{odm.Desc("age"), odm.Asc("_id")})...)

	// act
	sqlQuery, _, err := selectStmt.ToSQL()

	// assert
	require.NoError(t, err)
	assert.Contains(t, sqlQuery, `doc #> '{"age"}'::text[] DESC NULLS LAST, "id" ASC NULLS FIRST, "seq" ASC`)
}

func Test_IndexStatement(t *testing.T) {
	collection := &Collection{name: "users", table: "odm_users"}

	tests := []struct {
		name  string
		index odm.IndexModel
		want  string
	}{
		{
			name:  "unique_index_treats_missing_like_null",
			index: odm.IndexModel{Keys: odm.IndexKeys{odm.Asc("email")}, Options: odm.IndexOptions{Unique: true}},
			want:  `CREATE UNIQUE INDEX IF NOT EXISTS "odm_users_email_1" ON "odm_users" ((COALESCE(("doc" #> '{"email"}'), 'null'::jsonb)))`,
		},
		{
			name:  "sparse_unique_index_skips_records_without_the_field",
			index: odm.IndexModel{Keys: odm.IndexKeys{odm.Asc("email")}, Options: odm.IndexOptions{Unique: true, Sparse: true}},
			want:  `CREATE UNIQUE INDEX IF NOT EXISTS "odm_users_email_1" ON "odm_users" (("doc" #> '{"email"}')) WHERE ("doc" #> '{"email"}') IS NOT NULL`,
		},
		{
			name:  "sparse_descending_index",
			index: odm.IndexModel{Keys: odm.IndexKeys{odm.Desc("age")}, Options: odm.IndexOptions{Sparse: true}},
			want:  `CREATE INDEX IF NOT EXISTS "odm_users_age_-1" ON "odm_users" (("doc" #> '{"age"}') DESC) WHERE ("doc" #> '{"age"}') IS NOT NULL`,
		},
		{
			name:  "identity_key_uses_id_column",
			index: odm.IndexModel{Keys: odm.IndexKeys{odm.Asc("_id")}, Options: odm.IndexOptions{Name: "by_id"}},
			want:  `CREATE INDEX IF NOT EXISTS "odm_users_by_id" ON "odm_users" ("id")`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			name := tc.index.Options.Name
			if name == "" {
				name = odm.IndexName(tc.index.Keys)
			}

			// act
			statement := collection.indexStatement(name, tc.index)

			// assert
			assert.Equal(t, tc.want, statement)
		})
	}
}

func Test_DecodeDocument_Restores_Value_Types(t *testing.T) {
	// arrange
	at := time.Date(2024, 5, 1, 12, 30, 0, 123, time.UTC)
	oid := primitive.NewObjectID()
	record := odm.Record{
		"_id":   "ignored-in-body",
		"count": int64(3),
		"ratio": 0.5,
		"at":    at,
		"ref":   oid,
		"tags":  []any{"a", int64(1)},
		"nested": map[string]any{
			"at": at,
		},
	}

	// act
	encoded, err := encodeDocument(record)
	require.NoError(t, err)
	decoded, err := decodeDocument("doc-1", []byte(encoded))

	// assert
	require.NoError(t, err)
	assert.NotContains(t, encoded, "ignored-in-body")
	assert.Equal(t, "doc-1", decoded["_id"])
	assert.Equal(t, int64(3), decoded["count"])
	assert.Equal(t, 0.5, decoded["ratio"])
	assert.True(t, at.Equal(decoded["at"].(time.Time)))
	assert.Equal(t, oid, decoded["ref"])
	assert.Equal(t, []any{"a", int64(1)}, decoded["tags"])
	assert.True(t, at.Equal(decoded["nested"].(map[string]any)["at"].(time.Time)))
}

func Test_IDText(t *testing.T) {
	oid := primitive.NewObjectID()

	tests := []struct {
		name    string
		id      any
		want    string
		wantErr bool
	}{
		{name: "string", id: "abc", want: "abc"},
		{name: "object_id", id: oid, want: oid.Hex()},
		{name: "integer", id: 42, want: "42"},
		{name: "unsupported", id: []int{1}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			got, err := idText(tc.id)

			// assert
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedIdentity)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func Test_TranslateError_Maps_Unique_Violations(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		duplicate bool
	}{
		{name: "pgx_unique_violation", err: &pgconn.PgError{Code: pgUniqueViolation}, duplicate: true},
		{name: "pq_unique_violation", err: &pq.Error{Code: pgUniqueViolation}, duplicate: true},
		{name: "pgx_other", err: &pgconn.PgError{Code: "22P02"}},
		{name: "plain", err: errors.New("connection reset")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			err := translateError(fmt.Errorf("wrapped: %w", tc.err), ErrExecFailed)

			// assert
			assert.Equal(t, tc.duplicate, errors.Is(err, odm.ErrDuplicateKey))
			assert.Equal(t, !tc.duplicate, errors.Is(err, ErrExecFailed))
		})
	}
}
