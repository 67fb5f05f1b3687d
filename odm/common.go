package odm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRequiredFieldMissing = errors.New("required field missing")
	ErrTypeMismatch         = errors.New("type mismatch")
	ErrValidatorRejected    = errors.New("validator rejected value")
	ErrConstraintViolated   = errors.New("constraint violated")
	ErrNoSuchField          = errors.New("no such field")
	ErrNotPersisted         = errors.New("document is not persisted")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrNotFound             = errors.New("document not found")
	ErrHookFailed           = errors.New("hook failed")
	ErrNoSuchMethod         = errors.New("no such method")
	ErrInvalidDefinition    = errors.New("invalid schema definition")
	ErrMutableDefault       = errors.New("mutable literal default, use a factory function")
	ErrSchemaFrozen         = errors.New("schema is frozen after model registration")
	ErrNilStore             = errors.New("nil store supplied")
	ErrNilSchema            = errors.New("nil schema supplied")
	ErrEmptyModelName       = errors.New("empty model name supplied")
	ErrUnknownValidator     = errors.New("unknown built-in validator")
	ErrIdentityImmutable    = errors.New("document identity cannot be changed")
	ErrModelRedefined       = errors.New("model already registered with a different schema")
	ErrCreatingIndexFailed  = errors.New("creating index failed")
	ErrUnsupportedOperator  = errors.New("unsupported operator")
	ErrInvalidUpdate        = errors.New("invalid update document")
	ErrInvalidPipeline      = errors.New("invalid aggregation pipeline")
)

// ErrorKind classifies a ValidationError.
type ErrorKind int

const (
	RequiredFieldMissing ErrorKind = iota + 1
	TypeMismatch
	ValidatorRejected
	ConstraintViolated
	NoSuchField
)

func (k ErrorKind) sentinel() error {
	switch k {
	case RequiredFieldMissing:
		return ErrRequiredFieldMissing
	case TypeMismatch:
		return ErrTypeMismatch
	case ValidatorRejected:
		return ErrValidatorRejected
	case ConstraintViolated:
		return ErrConstraintViolated
	case NoSuchField:
		return ErrNoSuchField
	default:
		return nil
	}
}

// String provides a string representation of ErrorKind for logging and debugging.
func (k ErrorKind) String() string {
	if s := k.sentinel(); s != nil {
		return s.Error()
	}

	return "unknown"
}

// Constraint names reported by ConstraintViolated errors.
const (
	ConstraintMin       = "min"
	ConstraintMax       = "max"
	ConstraintMinLength = "min_length"
	ConstraintMaxLength = "max_length"
	ConstraintEnum      = "enum"
)

// ValidationError reports the first rule a value violated.
//
// Field is a dotted path ("address.city", "tags[2]") and is empty when the error was raised
// by a FieldSpec that is not attached to a schema yet.
// It unwraps to the sentinel of its Kind, so errors.Is(err, ErrConstraintViolated) works.
type ValidationError struct {
	Field        string
	Kind         ErrorKind
	ExpectedType FieldType // TypeMismatch only
	Constraint   string    // ConstraintViolated only
	Limit        any       // ConstraintViolated only
	Err          error     // cause, e.g. the error returned by a custom validator
}

func (e *ValidationError) Error() string {
	var b strings.Builder

	if e.Field != "" {
		fmt.Fprintf(&b, "field %q: ", e.Field)
	}

	b.WriteString(e.Kind.String())

	switch e.Kind {
	case TypeMismatch:
		fmt.Fprintf(&b, ", expected %s", e.ExpectedType)
	case ConstraintViolated:
		fmt.Fprintf(&b, " (%s: %v)", e.Constraint, e.Limit)
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *ValidationError) Unwrap() []error {
	errs := make([]error, 0, 2)

	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// withField returns a copy of the error whose Field is prefixed by the given path segment.
func (e *ValidationError) withField(name string) *ValidationError {
	annotated := *e

	switch {
	case e.Field == "":
		annotated.Field = name
	case strings.HasPrefix(e.Field, "["):
		annotated.Field = name + e.Field
	default:
		annotated.Field = name + "." + e.Field
	}

	return &annotated
}

// annotate attaches a field name to a validation error and leaves other errors untouched.
func annotate(err error, name string) error {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.withField(name)
	}

	return err
}

func newValidationError(kind ErrorKind) *ValidationError {
	return &ValidationError{Kind: kind}
}
