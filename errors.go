package tablemap

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an update targets a record that does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrInvalidMapper is returned for inconsistent mapper or relation definitions.
	ErrInvalidMapper = errors.New("invalid mapper")
	// ErrInvalidQuery is returned for queries that cannot be compiled.
	ErrInvalidQuery = errors.New("invalid query")
)

// NotFoundError identifies the missing record. It matches ErrNotFound.
type NotFoundError struct {
	Table string
	ID    any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: %s %v", ErrNotFound, e.Table, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ProvisioningError reports a failure to create or await a database, table or
// index. The failure is memoized: later callers for the same object receive
// the same error.
type ProvisioningError struct {
	Object string // "database", "table" or "index"
	Name   string
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to provision %s %s: %v", e.Object, e.Name, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// NativeError reports errors counted by the store in a write result.
type NativeError struct {
	Op      string
	Errors  int
	Message string
}

func (e *NativeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// RelationError reports a failed sub-query while eager-loading a relation.
type RelationError struct {
	Mapper   string
	Relation string
	Err      error
}

func (e *RelationError) Error() string {
	return fmt.Sprintf("failed to load relation %s.%s: %v", e.Mapper, e.Relation, e.Err)
}

func (e *RelationError) Unwrap() error { return e.Err }
