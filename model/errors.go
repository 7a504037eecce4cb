package model

import (
	"errors"
	"fmt"

	"github.com/jacentio/espalier/validate"
)

var (
	// ErrDefinition is returned when an entity definition is inconsistent
	// (duplicate keys, composite cycles, missing child types).
	ErrDefinition = errors.New("espalier: invalid entity definition")

	// ErrInvalidType is returned when a relation field is assigned a value that
	// is neither a child instance nor a record.
	ErrInvalidType = errors.New("espalier: invalid attribute type")

	// ErrValidation is returned when an instance or record fails validation.
	ErrValidation = errors.New("espalier: validation failed")

	// ErrUnknownEntity is returned when a stored record names no registered entity type.
	ErrUnknownEntity = errors.New("espalier: unknown entity type")
)

// DefinitionError describes a definition-time failure.
type DefinitionError struct {
	Entity string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("espalier: entity %q: %s", e.Entity, e.Reason)
}

func (e *DefinitionError) Is(target error) bool {
	return target == ErrDefinition
}

// TypeError is returned by Set when a relation field receives an unusable value.
type TypeError struct {
	Entity string
	Field  string
	Value  any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("espalier: %s.%s cannot be assigned a value of type %T", e.Entity, e.Field, e.Value)
}

func (e *TypeError) Is(target error) bool {
	return target == ErrInvalidType
}

// ValidationError wraps the engine's structured error with the entity name.
type ValidationError struct {
	Entity string
	Err    *validate.Error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("espalier: %s: %s", e.Entity, e.Err.Error())
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Fields returns the failing field paths.
func (e *ValidationError) Fields() []string {
	return e.Err.Fields()
}

// RequiredFieldError is returned when a required linked relation has no value.
// Linked relations are not part of the stored record, so their presence is
// checked before the schema runs.
type RequiredFieldError struct {
	Entity string
	Field  string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("espalier: %s: %s is required", e.Entity, e.Field)
}

func (e *RequiredFieldError) Is(target error) bool {
	return target == ErrValidation
}

// UnknownEntityError names the entity tag that could not be resolved.
type UnknownEntityError struct {
	Name string
}

func (e *UnknownEntityError) Error() string {
	if e.Name == "" {
		return "espalier: record carries no entity tag"
	}
	return fmt.Sprintf("espalier: no entity type registered as %q", e.Name)
}

func (e *UnknownEntityError) Is(target error) bool {
	return target == ErrUnknownEntity
}

func wrapValidation(entity string, err error) error {
	if err == nil {
		return nil
	}
	var verr *validate.Error
	if errors.As(err, &verr) {
		return &ValidationError{Entity: entity, Err: verr}
	}
	return err
}
