package store

import (
	"errors"
	"fmt"

	"github.com/jacentio/espalier/model"
)

var (
	// ErrNotFound is returned when a record to update or delete does not exist.
	ErrNotFound = errors.New("espalier: record not found")

	// ErrMissingKeys is returned when a type without both a primary and a
	// secondary key is used for storage.
	ErrMissingKeys = errors.New("espalier: entity type declares no primary and secondary key")

	// ErrMissingTable is returned when the store has no table name.
	ErrMissingTable = errors.New("espalier: no table name configured")

	// ErrTooManyItems is returned when a cascading write exceeds the
	// transaction item limit.
	ErrTooManyItems = errors.New("espalier: too many items for one transaction")

	// ErrCursorExhausted is returned by Cursor.Next after the last page.
	ErrCursorExhausted = errors.New("espalier: cursor has no more pages")

	// ErrCursorBusy is returned by Cursor.Next while another Next is running.
	ErrCursorBusy = errors.New("espalier: cursor is already advancing")
)

// NotFoundError names the record that was expected to exist.
type NotFoundError struct {
	Entity string
	Key    Key
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("espalier: %s %v/%v not found", e.Entity, e.Key.PK, e.Key.SK)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// KeysError names the type that cannot be stored. It matches both
// ErrMissingKeys and model.ErrDefinition.
type KeysError struct {
	Entity string
}

func (e *KeysError) Error() string {
	return fmt.Sprintf("espalier: entity %q must declare a primary and a secondary key", e.Entity)
}

func (e *KeysError) Is(target error) bool {
	return target == ErrMissingKeys || target == model.ErrDefinition
}
