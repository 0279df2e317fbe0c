package engine

import (
	"errors"
	"fmt"

	"devquest/internal/repo"
)

// ValidationError reports malformed input; nothing was written.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: invalid %s: %s", e.Op, e.Field, e.Reason)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ConflictError reports a transition the stored state does not allow.
type ConflictError struct {
	Entity string
	ID     string
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Reason)
}

// StorageError wraps a repository or driver failure.
type StorageError struct {
	Op  string
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("%s: storage: %v", e.Op, e.Err)
}

func (e StorageError) Unwrap() error { return e.Err }

// storage passes typed errors through and wraps everything else.
func storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var (
		v ValidationError
		n NotFoundError
		c ConflictError
		s StorageError
	)
	if errors.As(err, &v) || errors.As(err, &n) || errors.As(err, &c) || errors.As(err, &s) {
		return err
	}
	return StorageError{Op: op, Err: err}
}

// lookup maps repo.ErrNotFound to NotFoundError.
func lookup(op, entity, id string, err error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError{Entity: entity, ID: id}
	}
	return storage(op, err)
}

func concurrent(entity, id string) error {
	return ConflictError{Entity: entity, ID: id, Reason: "modified concurrently"}
}
