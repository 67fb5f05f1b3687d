package odm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	hookPre  = "pre"
	hookPost = "post"
)

// Document is one in-memory record bound to a Schema.
//
// A Document is either New (not persisted, no identity) or Persisted. Every mutation goes
// through the schema's FieldSpecs, and the names of mutated fields are tracked until the next
// successful Save, which then only sends those fields to the store.
//
// A Document must not be mutated concurrently; callers needing shared access must synchronize.
type Document struct {
	model    *Model
	schema   *Schema
	values   Record
	modified map[string]struct{}
	isNew    bool
	id       any
}

// newDocument validates fresh data; all supplied fields count as modified.
func newDocument(model *Model, record Record) (*Document, error) {
	validated, err := model.schema.Validate(record)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		model:    model,
		schema:   model.schema,
		values:   validated,
		modified: make(map[string]struct{}, len(validated)),
		isNew:    true,
	}

	for name := range validated {
		if name != IDField {
			doc.modified[name] = struct{}{}
		}
	}

	return doc, nil
}

// newTrustedDocument wraps data loaded from the store without validating it.
func newTrustedDocument(model *Model, record Record) *Document {
	values := record.Clone()
	if values == nil {
		values = Record{}
	}

	return &Document{
		model:    model,
		schema:   model.schema,
		values:   values,
		modified: make(map[string]struct{}),
		isNew:    false,
		id:       values[IDField],
	}
}

// Model returns the model the document belongs to.
func (d *Document) Model() *Model {
	return d.model
}

// IsNew reports whether the document has never been persisted.
func (d *Document) IsNew() bool {
	return d.isNew
}

// ID returns the identity assigned by the store, or nil while the document is new.
func (d *Document) ID() any {
	return d.id
}

// Get returns the value of a field. A declared field without a value gets its default
// materialized and stored on first access.
func (d *Document) Get(name string) (any, error) {
	if value, ok := d.values[name]; ok {
		return value, nil
	}

	if spec, declared := d.schema.Field(name); declared && spec.HasDefault() {
		value := spec.DefaultValue()
		d.values[name] = value

		return value, nil
	}

	return nil, &ValidationError{Field: name, Kind: NoSuchField}
}

// Set validates and stores a field value and marks the field as modified.
// On a validation failure the document is left unchanged.
func (d *Document) Set(name string, value any) error {
	if name == IDField {
		return ErrIdentityImmutable
	}

	spec, declared := d.schema.Field(name)

	switch {
	case declared:
		validated, err := spec.Validate(value)
		if err != nil {
			return annotate(err, name)
		}

		if validated == nil {
			delete(d.values, name)
		} else {
			d.values[name] = validated
		}

	case !d.schema.Strict():
		d.values[name] = value

	default:
		return &ValidationError{Field: name, Kind: NoSuchField}
	}

	d.modified[name] = struct{}{}

	if d.schema.Timestamps() && name != UpdatedAtField {
		d.values[UpdatedAtField] = time.Now()
		d.modified[UpdatedAtField] = struct{}{}
	}

	return nil
}

// IsModified reports whether the document, or the named field, changed since the last persist.
func (d *Document) IsModified(field ...string) bool {
	if len(field) == 0 {
		return len(d.modified) > 0
	}

	_, ok := d.modified[field[0]]

	return ok
}

// ModifiedFields returns the sorted names of the fields changed since the last persist.
func (d *Document) ModifiedFields() []string {
	names := make([]string, 0, len(d.modified))
	for name := range d.modified {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Save persists the document.
//
// A new document is inserted with all its values and receives its identity. A persisted
// document sends only its modified fields as a partial update; without modifications Save
// does not touch the store.
//
// A pre-save hook error aborts Save before any store call. Post-save hook errors are returned
// after the store write, which stays in effect.
func (d *Document) Save(ctx context.Context) (*Document, error) {
	if err := d.runHooks(ctx, hookPre, ActionSave); err != nil {
		return d, err
	}

	if d.isNew {
		id, err := d.model.insertOne(ctx, d.values.Clone())
		if err != nil {
			return d, err
		}

		d.id = id
		d.values[IDField] = id
		d.isNew = false
	} else if len(d.modified) > 0 {
		if _, err := d.model.updateOne(ctx, Filter{IDField: d.id}, d.patch()); err != nil {
			return d, err
		}
	}

	clear(d.modified)

	if err := d.runHooks(ctx, hookPost, ActionSave); err != nil {
		return d, err
	}

	return d, nil
}

// patch builds the partial update for the modified fields; fields removed from the
// document are unset.
func (d *Document) patch() Update {
	set := M{}
	unset := M{}

	for name := range d.modified {
		if value, ok := d.values[name]; ok {
			set[name] = CloneValue(value)
		} else {
			unset[name] = ""
		}
	}

	update := Update{}
	if len(set) > 0 {
		update["$set"] = set
	}

	if len(unset) > 0 {
		update["$unset"] = unset
	}

	return update
}

// Delete removes the persisted document from the store.
// It fails with ErrNotPersisted, without calling the store, while the document is new.
// The instance is a dangling handle afterwards.
func (d *Document) Delete(ctx context.Context) error {
	if d.isNew {
		return ErrNotPersisted
	}

	if err := d.runHooks(ctx, hookPre, ActionDelete); err != nil {
		return err
	}

	if _, err := d.model.deleteOne(ctx, Filter{IDField: d.id}); err != nil {
		return err
	}

	return d.runHooks(ctx, hookPost, ActionDelete)
}

// Call invokes an instance method registered on the schema.
func (d *Document) Call(ctx context.Context, name string, args ...any) (any, error) {
	fn, ok := d.schema.method(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchMethod, name)
	}

	return fn(ctx, d, args...)
}

// ToRecord returns a copy of the current values, including the identity once assigned.
func (d *Document) ToRecord() Record {
	return d.values.Clone()
}

// ToJSON encodes the current values as JSON.
func (d *Document) ToJSON() ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(d.values)
}

// MarshalJSON implements json.Marshaler.
func (d *Document) MarshalJSON() ([]byte, error) {
	return d.ToJSON()
}

// runHooks runs pre hooks until the first error and post hooks to completion.
func (d *Document) runHooks(ctx context.Context, when string, action string) error {
	hooks := d.schema.hooks(when, action)
	if len(hooks) == 0 {
		return nil
	}

	var errs []error

	for _, hook := range hooks {
		if err := hook(ctx, d); err != nil {
			if when == hookPre {
				return errors.Join(ErrHookFailed, fmt.Errorf("%s %s: %w", when, action, err))
			}

			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		d.model.logHookFailure(ctx, when, action, len(errs))
		return errors.Join(ErrHookFailed, fmt.Errorf("%s %s: %w", when, action, errors.Join(errs...)))
	}

	return nil
}
