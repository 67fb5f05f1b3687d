package odm

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FieldType is the declared type of a field.
type FieldType int

const (
	Mixed FieldType = iota
	String
	Int
	Float
	Bool
	DateTime
	ObjectID
	Array
	Nested
)

// String provides a string representation of FieldType for error messages and logging.
func (t FieldType) String() string {
	switch t {
	case Mixed:
		return "mixed"
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case DateTime:
		return "datetime"
	case ObjectID:
		return "ObjectId"
	case Array:
		return "array"
	case Nested:
		return "nested"
	default:
		return "unknown"
	}
}

// DefaultFunc provides a default value. It is invoked fresh for every missing value,
// so two documents never share a mutable default.
type DefaultFunc func() any

// ValidatorFunc validates a coerced value and may transform it.
type ValidatorFunc func(value any) (any, error)

// FieldSpec is the validation and coercion rule set for one field.
//
// FieldSpecs are built by NewSchema from a Definition and must not be modified afterwards.
type FieldSpec struct {
	Type          FieldType
	Required      bool
	Default       DefaultFunc
	Unique        bool // advisory: enforced by the store through an index
	ValidatorName string
	Validator     ValidatorFunc
	Min           *float64
	Max           *float64
	MinLength     *int
	MaxLength     *int
	Enum          []any
	Elem          *FieldSpec // element spec of an Array field
	Schema        *Schema    // sub schema of a Nested field
}

// HasDefault reports whether the field declares a default provider.
func (fs *FieldSpec) HasDefault() bool {
	return fs.Default != nil
}

// DefaultValue invokes the default provider; it returns nil when none is declared.
func (fs *FieldSpec) DefaultValue() any {
	if fs.Default == nil {
		return nil
	}

	return CloneValue(fs.Default())
}

// Validate checks and coerces one value. The order of the checks is fixed:
// required/default, type coercion, validator, constraints (min, max, min_length, max_length, enum).
func (fs *FieldSpec) Validate(value any) (any, error) {
	if isAbsent(value) {
		if fs.Required {
			return nil, newValidationError(RequiredFieldMissing)
		}

		return fs.DefaultValue(), nil
	}

	coerced, err := fs.coerce(value)
	if err != nil {
		return nil, err
	}

	if coerced, err = fs.applyValidator(coerced); err != nil {
		return nil, err
	}

	if err := fs.checkConstraints(coerced); err != nil {
		return nil, err
	}

	return coerced, nil
}

func (fs *FieldSpec) applyValidator(value any) (any, error) {
	if fs.Validator == nil {
		return value, nil
	}

	validated, err := fs.Validator(value)
	if err != nil {
		return nil, &ValidationError{Kind: ValidatorRejected, Err: err}
	}

	return validated, nil
}

func (fs *FieldSpec) checkConstraints(value any) error {
	if number, ok := toFloat(value); ok {
		if fs.Min != nil && number < *fs.Min {
			return constraintViolated(ConstraintMin, *fs.Min)
		}

		if fs.Max != nil && number > *fs.Max {
			return constraintViolated(ConstraintMax, *fs.Max)
		}
	}

	if s, ok := value.(string); ok {
		length := len([]rune(s))

		if fs.MinLength != nil && length < *fs.MinLength {
			return constraintViolated(ConstraintMinLength, *fs.MinLength)
		}

		if fs.MaxLength != nil && length > *fs.MaxLength {
			return constraintViolated(ConstraintMaxLength, *fs.MaxLength)
		}
	}

	if len(fs.Enum) > 0 && !containsValue(fs.Enum, value) {
		return constraintViolated(ConstraintEnum, fs.Enum)
	}

	return nil
}

func constraintViolated(constraint string, limit any) *ValidationError {
	return &ValidationError{Kind: ConstraintViolated, Constraint: constraint, Limit: limit}
}

func (fs *FieldSpec) coerce(value any) (any, error) {
	var (
		coerced any
		ok      bool
	)

	switch fs.Type {
	case Mixed:
		return CloneValue(value), nil
	case String:
		coerced, ok = coerceString(value)
	case Int:
		coerced, ok = coerceInt(value)
	case Float:
		coerced, ok = coerceFloat(value)
	case Bool:
		coerced, ok = coerceBool(value)
	case DateTime:
		coerced, ok = coerceDateTime(value)
	case ObjectID:
		coerced, ok = coerceObjectID(value)
	case Array:
		return fs.coerceArray(value)
	case Nested:
		return fs.coerceNested(value)
	}

	if !ok {
		return nil, &ValidationError{Kind: TypeMismatch, ExpectedType: fs.Type}
	}

	return coerced, nil
}

func (fs *FieldSpec) coerceArray(value any) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, &ValidationError{Kind: TypeMismatch, ExpectedType: Array}
	}

	out := make([]any, rv.Len())
	for i := range out {
		item := rv.Index(i).Interface()

		if fs.Elem == nil {
			out[i] = CloneValue(item)
			continue
		}

		validated, err := fs.Elem.Validate(item)
		if err != nil {
			return nil, annotate(err, fmt.Sprintf("[%d]", i))
		}

		out[i] = validated
	}

	return out, nil
}

func (fs *FieldSpec) coerceNested(value any) (any, error) {
	var record Record

	switch v := value.(type) {
	case Record:
		record = v
	case map[string]any:
		record = v
	default:
		return nil, &ValidationError{Kind: TypeMismatch, ExpectedType: Nested}
	}

	if fs.Schema == nil {
		return map[string]any(record.Clone()), nil
	}

	validated, err := fs.Schema.Validate(record)
	if err != nil {
		return nil, err
	}

	return map[string]any(validated), nil
}

func isAbsent(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

func coerceString(value any) (any, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case primitive.ObjectID:
		return v.Hex(), true
	case fmt.Stringer:
		return v.String(), true
	case bool, map[string]any, []any:
		return nil, false
	}

	if i, ok := toInt64(value); ok {
		return strconv.FormatInt(i, 10), true
	}

	if f, ok := toFloat(value); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}

	return nil, false
}

func coerceInt(value any) (any, bool) {
	if i, ok := toInt64(value); ok {
		return i, true
	}

	switch v := value.(type) {
	case float32, float64:
		f, _ := toFloat(v)
		if !integralInt64(f) {
			return nil, false
		}
		return int64(f), true
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, false
		}
		return i, true
	}

	return nil, false
}

func coerceFloat(value any) (any, bool) {
	if f, ok := toFloat(value); ok {
		return f, true
	}

	if s, ok := value.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, false
		}
		return f, true
	}

	return nil, false
}

func coerceBool(value any) (any, bool) {
	switch v := value.(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return b, true
	}

	return nil, false
}

func coerceDateTime(value any) (any, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		return *v, true
	case primitive.DateTime:
		return v.Time(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return nil, false
		}
		return t, true
	}

	return nil, false
}

func coerceObjectID(value any) (any, bool) {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v, true
	case uuid.UUID:
		return v, true
	case string:
		if oid, err := primitive.ObjectIDFromHex(v); err == nil {
			return oid, true
		}
		if id, err := uuid.Parse(v); err == nil {
			return id, true
		}
	}

	return nil, false
}

// toInt64 converts all Go integer kinds.
func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		if uint64(v) > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	}

	return 0, false
}

// integralInt64 reports whether f is a whole number that int64 represents exactly. 2^63 itself
// is out of range; -2^63 is MinInt64.
func integralInt64(f float64) bool {
	return f == math.Trunc(f) && f >= -0x1p63 && f < 0x1p63
}

// toFloat converts all Go numeric kinds.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	}

	if i, ok := toInt64(value); ok {
		return float64(i), true
	}

	return 0, false
}

// containsValue compares numbers by value and everything else by deep equality.
func containsValue(list []any, value any) bool {
	for _, candidate := range list {
		if ValuesEqual(candidate, value) {
			return true
		}
	}

	return false
}

// ValuesEqual compares two field values: numbers by numeric value, times by instant,
// everything else by deep equality.
func ValuesEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}

	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}

	return reflect.DeepEqual(a, b)
}
