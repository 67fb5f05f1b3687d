package recordops

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hydromelvictor/gogoose/odm"
)

// ApplyUpdate returns a copy of record with the $set, $unset, $inc and $push operators of
// update applied. The identity field cannot be changed.
func ApplyUpdate(record odm.Record, update odm.Update) (odm.Record, error) {
	if len(update) == 0 {
		return nil, fmt.Errorf("%w: empty update", odm.ErrInvalidUpdate)
	}

	out := record.Clone()

	for _, operator := range sortedKeys(update) {
		fields, ok := AsMap(update[operator])
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a mapping of fields", odm.ErrInvalidUpdate, operator)
		}

		for _, path := range sortedKeys(fields) {
			if path == odm.IDField || strings.HasPrefix(path, odm.IDField+".") {
				return nil, fmt.Errorf("%w: %s is immutable", odm.ErrInvalidUpdate, odm.IDField)
			}

			if err := applyOperator(out, operator, path, fields[path]); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

func applyOperator(record odm.Record, operator string, path string, operand any) error {
	switch operator {
	case "$set":
		return SetPath(record, path, odm.CloneValue(operand))

	case "$unset":
		UnsetPath(record, path)
		return nil

	case "$inc":
		if _, ok := ToFloat(operand); !ok {
			return fmt.Errorf("%w: $inc needs a number for %q", odm.ErrInvalidUpdate, path)
		}

		current, present := Lookup(record, path)
		if !present || current == nil {
			return SetPath(record, path, operand)
		}

		if _, ok := ToFloat(current); !ok {
			return fmt.Errorf("%w: $inc on non-numeric field %q", odm.ErrInvalidUpdate, path)
		}

		return SetPath(record, path, addNumbers(current, operand))

	case "$push":
		current, present := Lookup(record, path)
		if !present || current == nil {
			return SetPath(record, path, []any{odm.CloneValue(operand)})
		}

		items, ok := AsSlice(current)
		if !ok {
			return fmt.Errorf("%w: $push on non-array field %q", odm.ErrInvalidUpdate, path)
		}

		return SetPath(record, path, append(slices.Clone(items), odm.CloneValue(operand)))

	default:
		if strings.HasPrefix(operator, "$") {
			return fmt.Errorf("%w: %s", odm.ErrUnsupportedOperator, operator)
		}

		return fmt.Errorf("%w: replacement documents are not supported, use $set", odm.ErrInvalidUpdate)
	}
}

func addNumbers(a, b any) any {
	if isInteger(a) && isInteger(b) {
		x, _ := ToInt64(a)
		y, _ := ToInt64(b)
		return x + y
	}

	x, _ := ToFloat(a)
	y, _ := ToFloat(b)

	return x + y
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
