package recordops

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hydromelvictor/gogoose/odm"
)

type accumulator struct {
	operator string
	expr     any
	intSum   int64
	floatSum float64
	floats   bool
	count    int64
	value    any
	set      bool
	items    []any
}

type bucket struct {
	id     any
	fields []string
	acc    map[string]*accumulator
}

// group implements $group with the accumulators $sum, $avg, $min, $max, $first, $last,
// $push and $count. Groups are returned in order of first appearance.
func group(records []odm.Record, spec any) ([]odm.Record, error) {
	m, ok := AsMap(spec)
	if !ok {
		return nil, fmt.Errorf("%w: $group needs a mapping", odm.ErrInvalidPipeline)
	}

	idExpr, ok := m[odm.IDField]
	if !ok {
		return nil, fmt.Errorf("%w: $group needs an _id expression", odm.ErrInvalidPipeline)
	}

	fields := make([]string, 0, len(m))
	for _, field := range sortedKeys(m) {
		if field != odm.IDField {
			fields = append(fields, field)
		}
	}

	var order []string
	buckets := make(map[string]*bucket)

	for _, record := range records {
		id := evaluate(record, idExpr)
		key := KeyOf(id)

		b, exists := buckets[key]
		if !exists {
			var err error
			if b, err = newBucket(id, fields, m); err != nil {
				return nil, err
			}
			buckets[key] = b
			order = append(order, key)
		}

		for _, field := range fields {
			b.acc[field].add(record)
		}
	}

	out := make([]odm.Record, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		result := odm.Record{odm.IDField: b.id}
		for _, field := range b.fields {
			result[field] = b.acc[field].result()
		}
		out = append(out, result)
	}

	return out, nil
}

func newBucket(id any, fields []string, spec map[string]any) (*bucket, error) {
	b := &bucket{id: id, fields: fields, acc: make(map[string]*accumulator, len(fields))}

	for _, field := range fields {
		accSpec, ok := AsMap(spec[field])
		if !ok || len(accSpec) != 1 {
			return nil, fmt.Errorf("%w: accumulator for %q must be a single-operator mapping", odm.ErrInvalidPipeline, field)
		}

		for operator, expr := range accSpec {
			switch operator {
			case "$sum", "$avg", "$min", "$max", "$first", "$last", "$push", "$count":
			default:
				return nil, fmt.Errorf("%w: accumulator %s", odm.ErrUnsupportedOperator, operator)
			}
			b.acc[field] = &accumulator{operator: operator, expr: expr}
		}
	}

	return b, nil
}

func (a *accumulator) add(record odm.Record) {
	if a.operator == "$count" {
		a.count++
		return
	}

	value := evaluate(record, a.expr)

	switch a.operator {
	case "$sum", "$avg":
		if _, ok := ToFloat(value); !ok {
			return
		}
		if isInteger(value) {
			n, _ := ToInt64(value)
			a.intSum += n
		} else {
			f, _ := ToFloat(value)
			a.floatSum += f
			a.floats = true
		}
		a.count++

	case "$min", "$max":
		if value == nil {
			return
		}
		if !a.set {
			a.value, a.set = value, true
			return
		}
		c := SortCompare(value, a.value)
		if (a.operator == "$min" && c < 0) || (a.operator == "$max" && c > 0) {
			a.value = value
		}

	case "$first":
		if !a.set {
			a.value, a.set = value, true
		}

	case "$last":
		a.value, a.set = value, true

	case "$push":
		a.items = append(a.items, odm.CloneValue(value))
	}
}

func (a *accumulator) result() any {
	switch a.operator {
	case "$count":
		return a.count
	case "$sum":
		if a.floats {
			return a.floatSum + float64(a.intSum)
		}
		return a.intSum
	case "$avg":
		if a.count == 0 {
			return nil
		}
		return (a.floatSum + float64(a.intSum)) / float64(a.count)
	case "$push":
		if a.items == nil {
			return []any{}
		}
		return a.items
	default:
		return a.value
	}
}

// evaluate resolves "$path" references and mappings of expressions; everything else is a literal.
func evaluate(record odm.Record, expr any) any {
	if s, ok := expr.(string); ok && strings.HasPrefix(s, "$") {
		value, _ := Lookup(record, strings.TrimPrefix(s, "$"))
		return value
	}

	if m, ok := AsMap(expr); ok {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = evaluate(record, v)
		}
		return out
	}

	return expr
}

type timeKey string

func normalizeKey(v any) any {
	if f, ok := ToFloat(v); ok {
		return f
	}

	switch x := v.(type) {
	case time.Time:
		return timeKey(x.UTC().Format(time.RFC3339Nano))
	case primitive.ObjectID, uuid.UUID:
		return x
	}

	if m, ok := AsMap(v); ok {
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = normalizeKey(item)
		}
		return out
	}

	if s, ok := AsSlice(v); ok {
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = normalizeKey(item)
		}
		return out
	}

	return v
}

// KeyOf renders a value as a string that is equal for values Equal considers equal, for
// scalars, maps and slices. It is used to bucket groups and unique index entries.
func KeyOf(v any) string {
	return fmt.Sprintf("%#v", normalizeKey(v))
}
