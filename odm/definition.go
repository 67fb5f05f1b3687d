package odm

import (
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Field option keys recognized in a mapping with a "type" key.
const (
	optType      = "type"
	optRequired  = "required"
	optDefault   = "default"
	optUnique    = "unique"
	optValidate  = "validate"
	optMin       = "min"
	optMax       = "max"
	optMinLength = "min_length"
	optMaxLength = "max_length"
	optEnum      = "enum"
	defaultNow   = "now"
)

// FieldDef is one named entry of a Definition.
type FieldDef struct {
	Name string
	Spec any
}

// F creates a FieldDef.
func F(name string, spec any) FieldDef {
	return FieldDef{Name: name, Spec: spec}
}

// Definition is an ordered field-definition tree. Declaration order decides which field
// error surfaces first.
//
// A Spec may be:
//   - a FieldType (bare type token)
//   - a string tag: "string", "int", "float", "bool", "datetime", "ObjectId", "mixed"
//   - a single-element slice []any{T}: array of T
//   - a mapping with a "type" key: full spec with the options required, default, unique,
//     validate, min, max, min_length, max_length, enum
//   - a Definition or a mapping without a "type" key: nested sub-schema
//   - a FieldSpec or *FieldSpec
type Definition []FieldDef

func parseField(spec any) (*FieldSpec, error) {
	switch s := spec.(type) {
	case nil:
		return &FieldSpec{Type: Mixed}, nil
	case FieldSpec:
		return &s, nil
	case *FieldSpec:
		if s == nil {
			return &FieldSpec{Type: Mixed}, nil
		}
		copied := *s
		return &copied, nil
	case FieldType:
		return &FieldSpec{Type: s}, nil
	case string:
		return &FieldSpec{Type: typeFromTag(s)}, nil
	case Definition:
		return parseNested(s)
	case Record:
		return parseMapping(s)
	case map[string]any:
		return parseMapping(s)
	}

	rv := reflect.ValueOf(spec)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return parseArray(rv)
	}

	return nil, fmt.Errorf("%w: unsupported field spec of type %T", ErrInvalidDefinition, spec)
}

func typeFromTag(tag string) FieldType {
	switch tag {
	case "datetime":
		return DateTime
	case "ObjectId", "objectid", "ObjectID":
		return ObjectID
	case "int", "integer":
		return Int
	case "float", "number":
		return Float
	case "bool", "boolean":
		return Bool
	case "mixed", "any":
		return Mixed
	default:
		return String
	}
}

func parseArray(rv reflect.Value) (*FieldSpec, error) {
	if rv.Len() != 1 {
		return nil, fmt.Errorf("%w: array spec needs exactly one element type, got %d", ErrInvalidDefinition, rv.Len())
	}

	elem, err := parseField(rv.Index(0).Interface())
	if err != nil {
		return nil, err
	}

	return &FieldSpec{Type: Array, Elem: elem}, nil
}

func parseNested(def Definition) (*FieldSpec, error) {
	sub, err := NewSchema(def)
	if err != nil {
		return nil, err
	}

	return &FieldSpec{Type: Nested, Schema: sub}, nil
}

// definitionFromMap orders the keys of a plain map, which has no declaration order of its own.
func definitionFromMap(m map[string]any) Definition {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)

	def := make(Definition, 0, len(names))
	for _, name := range names {
		def = append(def, F(name, m[name]))
	}

	return def
}

func parseMapping(m map[string]any) (*FieldSpec, error) {
	typeSpec, hasType := m[optType]
	if !hasType {
		return parseNested(definitionFromMap(m))
	}

	fs, err := parseField(typeSpec)
	if err != nil {
		return nil, err
	}

	for key, value := range m {
		if err := applyOption(fs, key, value); err != nil {
			return nil, err
		}
	}

	return fs, nil
}

//nolint:gocyclo
func applyOption(fs *FieldSpec, key string, value any) error {
	switch key {
	case optType:
		return nil
	case optRequired:
		b, ok := value.(bool)
		if !ok {
			return optionError(key, value)
		}
		fs.Required = b
	case optUnique:
		b, ok := value.(bool)
		if !ok {
			return optionError(key, value)
		}
		fs.Unique = b
	case optDefault:
		provider, err := defaultProvider(fs, value)
		if err != nil {
			return err
		}
		fs.Default = provider
	case optValidate:
		validator, name, err := validatorFrom(value)
		if err != nil {
			return err
		}
		fs.Validator = validator
		fs.ValidatorName = name
	case optMin, optMax:
		f, ok := toFloat(value)
		if !ok {
			return optionError(key, value)
		}
		if key == optMin {
			fs.Min = &f
		} else {
			fs.Max = &f
		}
	case optMinLength, optMaxLength:
		i, ok := toInt64(value)
		if !ok || i < 0 {
			return optionError(key, value)
		}
		n := int(i)
		if key == optMinLength {
			fs.MinLength = &n
		} else {
			fs.MaxLength = &n
		}
	case optEnum:
		enum, err := enumFrom(fs, value)
		if err != nil {
			return err
		}
		fs.Enum = enum
	default:
		return fmt.Errorf("%w: unknown field option %q", ErrInvalidDefinition, key)
	}

	return nil
}

func optionError(key string, value any) error {
	return fmt.Errorf("%w: invalid value %v (%T) for option %q", ErrInvalidDefinition, value, value, key)
}

func defaultProvider(fs *FieldSpec, value any) (DefaultFunc, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case DefaultFunc:
		return v, nil
	case func() any:
		return v, nil
	case string:
		if v == defaultNow && fs.Type == DateTime {
			return func() any { return time.Now() }, nil
		}
	}

	switch value.(type) {
	case string, bool, time.Time, primitive.ObjectID, uuid.UUID:
	default:
		if _, ok := toFloat(value); !ok {
			return nil, fmt.Errorf("%w: %T", ErrMutableDefault, value)
		}
	}

	literal := value
	if fs.Type != Mixed {
		coerced, err := fs.coerce(value)
		if err != nil {
			return nil, fmt.Errorf("%w: default %v does not match type %s", ErrInvalidDefinition, value, fs.Type)
		}
		literal = coerced
	}

	return func() any { return literal }, nil
}

func validatorFrom(value any) (ValidatorFunc, string, error) {
	switch v := value.(type) {
	case string:
		fn, ok := LookupValidator(v)
		if !ok {
			return nil, "", fmt.Errorf("%w: %q", ErrUnknownValidator, v)
		}
		return fn, v, nil
	case ValidatorFunc:
		return v, "", nil
	case func(any) (any, error):
		return v, "", nil
	case func(any) bool:
		return Predicate(v), "", nil
	default:
		return nil, "", optionError(optValidate, value)
	}
}

func enumFrom(fs *FieldSpec, value any) ([]any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, optionError(optEnum, value)
	}

	enum := make([]any, rv.Len())
	for i := range enum {
		item := rv.Index(i).Interface()

		if fs.Type != Mixed && fs.Type != Array && fs.Type != Nested {
			coerced, err := fs.coerce(item)
			if err != nil {
				return nil, fmt.Errorf("%w: enum value %v does not match type %s", ErrInvalidDefinition, item, fs.Type)
			}
			item = coerced
		}

		enum[i] = item
	}

	return enum, nil
}
