package odm

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// Names of the automatically managed timestamp fields.
const (
	CreatedAtField = "created_at"
	UpdatedAtField = "updated_at"
)

// Lifecycle actions that accept hooks.
const (
	ActionSave   = "save"
	ActionDelete = "delete"
)

// Hook is a lifecycle callback. Pre hooks may read and mutate the document; a pre hook error
// aborts the action. Post hooks are meant for side effects.
type Hook func(ctx context.Context, doc *Document) error

// MethodFunc is an instance method registered on a schema and invoked through Document.Call.
type MethodFunc func(ctx context.Context, doc *Document, args ...any) (any, error)

// StaticFunc is a model-bound function registered on a schema and invoked through Model.Call.
type StaticFunc func(ctx context.Context, model *Model, args ...any) (any, error)

// SchemaOptions are the schema-wide options.
type SchemaOptions struct {
	Timestamps bool
	Strict     bool
	Collection string
}

// SchemaOption configures a Schema.
type SchemaOption func(*SchemaOptions)

// WithTimestamps injects created_at and updated_at fields maintained by the ODM.
func WithTimestamps() SchemaOption {
	return func(o *SchemaOptions) {
		o.Timestamps = true
	}
}

// WithStrict toggles strict mode (default true). Non-strict schemas accept undeclared fields.
func WithStrict(strict bool) SchemaOption {
	return func(o *SchemaOptions) {
		o.Strict = strict
	}
}

// WithCollection overrides the name of the backing collection.
func WithCollection(name string) SchemaOption {
	return func(o *SchemaOptions) {
		o.Collection = name
	}
}

type schemaField struct {
	name string
	spec *FieldSpec
}

// Schema is the set of FieldSpecs, options, hooks, methods, statics and indexes for one
// class of documents.
//
// A Schema is frozen when a Model is registered for it; from then on it is read-only and
// safe to share between goroutines.
type Schema struct {
	fields    []schemaField
	byName    map[string]*FieldSpec
	options   SchemaOptions
	preHooks  map[string][]Hook
	postHooks map[string][]Hook
	methods   map[string]MethodFunc
	statics   map[string]StaticFunc
	indexes   []IndexModel
	frozen    atomic.Bool
}

// NewSchema parses a Definition into a Schema.
func NewSchema(def Definition, opts ...SchemaOption) (*Schema, error) {
	options := SchemaOptions{Strict: true}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Schema{
		fields:    make([]schemaField, 0, len(def)+2),
		byName:    make(map[string]*FieldSpec, len(def)+2),
		options:   options,
		preHooks:  make(map[string][]Hook),
		postHooks: make(map[string][]Hook),
		methods:   make(map[string]MethodFunc),
		statics:   make(map[string]StaticFunc),
	}

	for _, fd := range def {
		if fd.Name == "" {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidDefinition)
		}

		if _, exists := s.byName[fd.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidDefinition, fd.Name)
		}

		spec, err := parseField(fd.Spec)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", fd.Name, err)
		}

		s.addField(fd.Name, spec)
	}

	if options.Timestamps {
		now := func() any { return time.Now() }
		s.addField(CreatedAtField, &FieldSpec{Type: DateTime, Default: now})
		s.addField(UpdatedAtField, &FieldSpec{Type: DateTime, Default: now})
	}

	return s, nil
}

func (s *Schema) addField(name string, spec *FieldSpec) {
	if _, exists := s.byName[name]; !exists {
		s.fields = append(s.fields, schemaField{name: name, spec: spec})
	} else {
		for i := range s.fields {
			if s.fields[i].name == name {
				s.fields[i].spec = spec
			}
		}
	}

	s.byName[name] = spec
}

// Validate applies every declared FieldSpec in declaration order and returns the validated
// record. It stops at the first failing field and reports it with the field name attached.
// Undeclared keys are dropped in strict mode and copied through otherwise.
func (s *Schema) Validate(record Record) (Record, error) {
	validated := make(Record, len(s.fields))

	for _, field := range s.fields {
		value, err := field.spec.Validate(record[field.name])
		if err != nil {
			return nil, annotate(err, field.name)
		}

		if value != nil {
			validated[field.name] = value
		}
	}

	if s.options.Timestamps && isAbsent(record[CreatedAtField]) && isAbsent(record[UpdatedAtField]) {
		validated[UpdatedAtField] = validated[CreatedAtField]
	}

	if id, ok := record[IDField]; ok {
		validated[IDField] = id
	}

	if !s.options.Strict {
		for key, value := range record {
			if _, declared := validated[key]; declared {
				continue
			}

			if _, declared := s.byName[key]; declared {
				continue
			}

			validated[key] = CloneValue(value)
		}
	}

	return validated, nil
}

// Field returns the FieldSpec declared under name.
func (s *Schema) Field(name string) (*FieldSpec, bool) {
	spec, ok := s.byName[name]
	return spec, ok
}

// FieldNames returns the declared field names in declaration order.
func (s *Schema) FieldNames() []string {
	names := make([]string, len(s.fields))
	for i, field := range s.fields {
		names[i] = field.name
	}

	return names
}

// Options returns the schema options.
func (s *Schema) Options() SchemaOptions {
	return s.options
}

// Strict reports whether undeclared fields are rejected.
func (s *Schema) Strict() bool {
	return s.options.Strict
}

// Timestamps reports whether created_at and updated_at are maintained.
func (s *Schema) Timestamps() bool {
	return s.options.Timestamps
}

// Pre registers a hook that runs before the given action. Hooks run in registration order.
func (s *Schema) Pre(action string, hook Hook) error {
	if err := s.checkMutable(); err != nil {
		return err
	}

	s.preHooks[action] = append(s.preHooks[action], hook)

	return nil
}

// Post registers a hook that runs after the given action. Hooks run in registration order.
func (s *Schema) Post(action string, hook Hook) error {
	if err := s.checkMutable(); err != nil {
		return err
	}

	s.postHooks[action] = append(s.postHooks[action], hook)

	return nil
}

// Method registers an instance method.
func (s *Schema) Method(name string, fn MethodFunc) error {
	if err := s.checkMutable(); err != nil {
		return err
	}

	s.methods[name] = fn

	return nil
}

// Static registers a model-bound function.
func (s *Schema) Static(name string, fn StaticFunc) error {
	if err := s.checkMutable(); err != nil {
		return err
	}

	s.statics[name] = fn

	return nil
}

// Index declares an index created when a Model is registered for the schema.
func (s *Schema) Index(keys IndexKeys, opts IndexOptions) error {
	if err := s.checkMutable(); err != nil {
		return err
	}

	if len(keys) == 0 {
		return fmt.Errorf("%w: index without keys", ErrInvalidDefinition)
	}

	s.indexes = append(s.indexes, IndexModel{Keys: keys, Options: opts})

	return nil
}

// Indexes returns the declared indexes followed by one unique index per field marked unique
// that no declared index already covers. The index is sparse unless the field is required,
// so any number of records may omit an optional unique field.
func (s *Schema) Indexes() []IndexModel {
	indexes := make([]IndexModel, len(s.indexes), len(s.indexes)+len(s.fields))
	copy(indexes, s.indexes)

	for _, field := range s.fields {
		if !field.spec.Unique || s.hasSingleFieldUniqueIndex(field.name) {
			continue
		}

		indexes = append(indexes, IndexModel{
			Keys:    IndexKeys{Asc(field.name)},
			Options: IndexOptions{Unique: true, Sparse: !field.spec.Required},
		})
	}

	return indexes
}

func (s *Schema) hasSingleFieldUniqueIndex(name string) bool {
	for _, index := range s.indexes {
		if index.Options.Unique && len(index.Keys) == 1 && index.Keys[0].Field == name {
			return true
		}
	}

	return false
}

func (s *Schema) hooks(when string, action string) []Hook {
	if when == hookPre {
		return s.preHooks[action]
	}

	return s.postHooks[action]
}

func (s *Schema) method(name string) (MethodFunc, bool) {
	fn, ok := s.methods[name]
	return fn, ok
}

func (s *Schema) static(name string) (StaticFunc, bool) {
	fn, ok := s.statics[name]
	return fn, ok
}

func (s *Schema) freeze() {
	s.frozen.Store(true)
}

func (s *Schema) checkMutable() error {
	if s.frozen.Load() {
		return ErrSchemaFrozen
	}

	return nil
}
