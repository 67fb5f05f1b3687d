package postgresengine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"

	"github.com/hydromelvictor/gogoose/odm"
	"github.com/hydromelvictor/gogoose/odm/internal/recordops"
)

const (
	colSeq = "seq"
	colID  = "id"
	colDoc = "doc"

	sqlPath = "doc #> ?::text[]"
)

// pathLiteral renders a dotted field path as a postgres text[] literal: "a.b" -> {"a","b"}.
func pathLiteral(field string) string {
	segments := strings.Split(field, ".")
	quoted := make([]string, len(segments))

	for i, segment := range segments {
		escaped := strings.ReplaceAll(segment, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		quoted[i] = `"` + escaped + `"`
	}

	return "{" + strings.Join(quoted, ",") + "}"
}

// nestedDocument wraps value into the nested object a dotted path describes.
func nestedDocument(field string, value any) any {
	segments := strings.Split(field, ".")

	var doc = value
	for i := len(segments) - 1; i >= 0; i-- {
		doc = map[string]any{segments[i]: doc}
	}

	return doc
}

// buildWhere translates a filter into a boolean SQL expression over the id and doc columns.
func buildWhere(filter odm.Filter) (exp.Expression, error) {
	keys := make([]string, 0, len(filter))
	for key := range filter {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	expressions := make([]exp.Expression, 0, len(keys))

	for _, key := range keys {
		expression, err := keyCondition(key, filter[key])
		if err != nil {
			return nil, err
		}

		expressions = append(expressions, expression)
	}

	return goqu.And(expressions...), nil
}

func keyCondition(key string, condition any) (exp.Expression, error) {
	switch key {
	case "$and", "$or", "$nor":
		return logicalCondition(key, condition)
	case odm.IDField:
		return idCondition(condition)
	}

	if strings.HasPrefix(key, "$") {
		return nil, fmt.Errorf("%w: %s", odm.ErrUnsupportedOperator, key)
	}

	return fieldCondition(key, condition)
}

func logicalCondition(operator string, condition any) (exp.Expression, error) {
	clauses, ok := recordops.AsSlice(condition)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs a list of filters", odm.ErrUnsupportedOperator, operator)
	}

	expressions := make([]exp.Expression, 0, len(clauses))
	for _, clause := range clauses {
		sub, ok := recordops.AsMap(clause)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a list of filters", odm.ErrUnsupportedOperator, operator)
		}

		expression, err := buildWhere(sub)
		if err != nil {
			return nil, err
		}

		expressions = append(expressions, expression)
	}

	if len(expressions) == 0 {
		return goqu.L(sqlBool(operator != "$or")), nil
	}

	switch operator {
	case "$and":
		return goqu.And(expressions...), nil
	case "$or":
		return goqu.Or(expressions...), nil
	default:
		return not(goqu.Or(expressions...)), nil
	}
}

func fieldCondition(field string, condition any) (exp.Expression, error) {
	if !recordops.IsOperatorDocument(condition) {
		return equalityCondition(field, condition)
	}

	operators, _ := recordops.AsMap(condition)

	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	slices.Sort(names)

	expressions := make([]exp.Expression, 0, len(names))
	for _, name := range names {
		if name == "$options" {
			continue
		}

		expression, err := operatorCondition(field, name, operators[name], operators)
		if err != nil {
			return nil, err
		}

		expressions = append(expressions, expression)
	}

	return goqu.And(expressions...), nil
}

func equalityCondition(field string, value any) (exp.Expression, error) {
	path := pathLiteral(field)

	if value == nil {
		return goqu.L("(doc #> ?::text[] IS NULL OR doc #> ?::text[] = 'null'::jsonb)", path, path), nil
	}

	_, isMap := recordops.AsMap(value)
	_, isSlice := recordops.AsSlice(value)

	if isMap || isSlice {
		encoded, err := encodeJSON(value)
		if err != nil {
			return nil, err
		}

		return goqu.L("COALESCE(doc #> ?::text[] = ?::jsonb, false)", path, encoded), nil
	}

	scalar, err := encodeJSON(nestedDocument(field, value))
	if err != nil {
		return nil, err
	}

	element, err := encodeJSON(nestedDocument(field, []any{value}))
	if err != nil {
		return nil, err
	}

	return goqu.L("(doc @> ?::jsonb OR doc @> ?::jsonb)", scalar, element), nil
}

var rangeOperators = map[string]string{
	"$gt":  ">",
	"$gte": ">=",
	"$lt":  "<",
	"$lte": "<=",
}

//nolint:gocyclo
func operatorCondition(field string, operator string, operand any, all map[string]any) (exp.Expression, error) {
	path := pathLiteral(field)

	switch operator {
	case "$eq":
		return equalityCondition(field, operand)

	case "$ne":
		eq, err := equalityCondition(field, operand)
		if err != nil {
			return nil, err
		}
		return not(eq), nil

	case "$gt", "$gte", "$lt", "$lte":
		encoded, err := encodeJSON(operand)
		if err != nil {
			return nil, err
		}
		return goqu.L(
			"COALESCE(jsonb_typeof(doc #> ?::text[]) = jsonb_typeof(?::jsonb) AND doc #> ?::text[] "+rangeOperators[operator]+" ?::jsonb, false)",
			path, encoded, path, encoded,
		), nil

	case "$in", "$nin":
		candidates, ok := recordops.AsSlice(operand)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a list", odm.ErrUnsupportedOperator, operator)
		}
		if len(candidates) == 0 {
			return goqu.L(sqlBool(operator == "$nin")), nil
		}
		expressions := make([]exp.Expression, len(candidates))
		for i, candidate := range candidates {
			eq, err := equalityCondition(field, candidate)
			if err != nil {
				return nil, err
			}
			expressions[i] = eq
		}
		if operator == "$in" {
			return goqu.Or(expressions...), nil
		}
		return not(goqu.Or(expressions...)), nil

	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: $exists needs a bool", odm.ErrUnsupportedOperator)
		}
		if want {
			return goqu.L(sqlPath+" IS NOT NULL", path), nil
		}
		return goqu.L(sqlPath+" IS NULL", path), nil

	case "$regex":
		pattern, ok := operand.(string)
		if !ok {
			return nil, fmt.Errorf("%w: $regex needs a string pattern", odm.ErrUnsupportedOperator)
		}
		match := "~"
		if flags, ok := all["$options"].(string); ok && strings.Contains(flags, "i") {
			match = "~*"
		}
		return goqu.L(
			"COALESCE(jsonb_typeof(doc #> ?::text[]) = 'string' AND doc #>> ?::text[] "+match+" ?, false)",
			path, path, pattern,
		), nil

	case "$size":
		size, ok := recordops.ToInt64(operand)
		if !ok {
			return nil, fmt.Errorf("%w: $size needs an integer", odm.ErrUnsupportedOperator)
		}
		return goqu.L(
			"COALESCE(CASE WHEN jsonb_typeof(doc #> ?::text[]) = 'array' THEN jsonb_array_length(doc #> ?::text[]) = ? ELSE false END, false)",
			path, path, size,
		), nil

	case "$not":
		inner, err := fieldCondition(field, operand)
		if err != nil {
			return nil, err
		}
		return not(inner), nil

	default:
		return nil, fmt.Errorf("%w: %s", odm.ErrUnsupportedOperator, operator)
	}
}

// idCondition filters on the id column, which holds identities as text.
func idCondition(condition any) (exp.Expression, error) {
	if !recordops.IsOperatorDocument(condition) {
		id, err := idText(condition)
		if err != nil {
			return nil, err
		}

		return goqu.C(colID).Eq(id), nil
	}

	operators, _ := recordops.AsMap(condition)

	names := make([]string, 0, len(operators))
	for name := range operators {
		names = append(names, name)
	}
	slices.Sort(names)

	expressions := make([]exp.Expression, 0, len(names))
	for _, name := range names {
		expression, err := idOperatorCondition(name, operators[name])
		if err != nil {
			return nil, err
		}

		expressions = append(expressions, expression)
	}

	return goqu.And(expressions...), nil
}

func idOperatorCondition(operator string, operand any) (exp.Expression, error) {
	switch operator {
	case "$in", "$nin":
		candidates, ok := recordops.AsSlice(operand)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a list", odm.ErrUnsupportedOperator, operator)
		}
		if len(candidates) == 0 {
			return goqu.L(sqlBool(operator == "$nin")), nil
		}
		ids := make([]string, len(candidates))
		for i, candidate := range candidates {
			id, err := idText(candidate)
			if err != nil {
				return nil, err
			}
			ids[i] = id
		}
		if operator == "$in" {
			return goqu.C(colID).In(ids), nil
		}
		return goqu.C(colID).NotIn(ids), nil

	case "$exists":
		want, ok := operand.(bool)
		if !ok {
			return nil, fmt.Errorf("%w: $exists needs a bool", odm.ErrUnsupportedOperator)
		}
		return goqu.L(sqlBool(want)), nil
	}

	id, err := idText(operand)
	if err != nil {
		return nil, err
	}

	switch operator {
	case "$eq":
		return goqu.C(colID).Eq(id), nil
	case "$ne":
		return goqu.C(colID).Neq(id), nil
	case "$gt":
		return goqu.C(colID).Gt(id), nil
	case "$gte":
		return goqu.C(colID).Gte(id), nil
	case "$lt":
		return goqu.C(colID).Lt(id), nil
	case "$lte":
		return goqu.C(colID).Lte(id), nil
	default:
		return nil, fmt.Errorf("%w: %s on %s", odm.ErrUnsupportedOperator, operator, odm.IDField)
	}
}

func not(expression exp.Expression) exp.Expression {
	return goqu.L("NOT (?)", expression)
}

func sqlBool(b bool) string {
	if b {
		return "TRUE"
	}

	return "FALSE"
}

// orderBy translates a sort specification; ties and unsorted queries fall back to insertion order.
func orderBy(spec odm.SortSpec) []exp.OrderedExpression {
	order := make([]exp.OrderedExpression, 0, len(spec)+1)

	for _, key := range spec {
		var target exp.Orderable = goqu.L(sqlPath, pathLiteral(key.Field))
		if key.Field == odm.IDField {
			target = goqu.C(colID)
		}

		if key.Direction < 0 {
			order = append(order, target.Desc().NullsLast())
		} else {
			order = append(order, target.Asc().NullsFirst())
		}
	}

	return append(order, goqu.C(colSeq).Asc())
}
