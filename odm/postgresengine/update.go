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

// buildUpdateExpression translates $set, $unset, $inc and $push into one jsonb expression
// computed from the current doc column. Operators and fields are applied in sorted order.
func buildUpdateExpression(update odm.Update) (exp.Expression, error) {
	if len(update) == 0 {
		return nil, fmt.Errorf("%w: empty update", odm.ErrInvalidUpdate)
	}

	var current exp.Expression = goqu.C(colDoc)

	operators := make([]string, 0, len(update))
	for operator := range update {
		operators = append(operators, operator)
	}
	slices.Sort(operators)

	for _, operator := range operators {
		fields, ok := recordops.AsMap(update[operator])
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a mapping of fields", odm.ErrInvalidUpdate, operator)
		}

		paths := make([]string, 0, len(fields))
		for path := range fields {
			paths = append(paths, path)
		}
		slices.Sort(paths)

		for _, path := range paths {
			if path == odm.IDField || strings.HasPrefix(path, odm.IDField+".") {
				return nil, fmt.Errorf("%w: %s is immutable", odm.ErrInvalidUpdate, odm.IDField)
			}

			next, err := updateOperator(current, operator, path, fields[path])
			if err != nil {
				return nil, err
			}

			current = next
		}
	}

	return current, nil
}

func updateOperator(current exp.Expression, operator string, path string, operand any) (exp.Expression, error) {
	switch operator {
	case "$set":
		encoded, err := encodeJSON(operand)
		if err != nil {
			return nil, err
		}
		return goqu.L("jsonb_set(?, ?::text[], ?::jsonb, true)", withParents(current, path), pathLiteral(path), encoded), nil

	case "$unset":
		return goqu.L("(? #- ?::text[])", current, pathLiteral(path)), nil

	case "$inc":
		if _, ok := recordops.ToFloat(operand); !ok {
			return nil, fmt.Errorf("%w: $inc needs a number for %q", odm.ErrInvalidUpdate, path)
		}
		return goqu.L(
			"jsonb_set(?, ?::text[], to_jsonb(COALESCE((? #>> ?::text[])::numeric, 0) + ?), true)",
			withParents(current, path), pathLiteral(path), current, pathLiteral(path), operand,
		), nil

	case "$push":
		encoded, err := encodeJSON(operand)
		if err != nil {
			return nil, err
		}
		return goqu.L(
			"jsonb_set(?, ?::text[], COALESCE(? #> ?::text[], '[]'::jsonb) || jsonb_build_array(?::jsonb), true)",
			withParents(current, path), pathLiteral(path), current, pathLiteral(path), encoded,
		), nil

	default:
		if strings.HasPrefix(operator, "$") {
			return nil, fmt.Errorf("%w: %s", odm.ErrUnsupportedOperator, operator)
		}

		return nil, fmt.Errorf("%w: replacement documents are not supported, use $set", odm.ErrInvalidUpdate)
	}
}

// withParents makes sure every intermediate object of a dotted path exists, since jsonb_set
// only creates the last path element.
func withParents(current exp.Expression, path string) exp.Expression {
	segments := strings.Split(path, ".")

	for i := 1; i < len(segments); i++ {
		parent := pathLiteral(strings.Join(segments[:i], "."))
		current = goqu.L("jsonb_set(?, ?::text[], COALESCE(? #> ?::text[], '{}'::jsonb), true)", current, parent, current, parent)
	}

	return current
}
