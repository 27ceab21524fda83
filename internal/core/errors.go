package core

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks at the transport edges.
var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation failed")
	ErrPersistence = errors.New("persistence failed")
)

// NotFoundError reports an unknown task, agent or notification id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError reports caller input that cannot be applied.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// PersistenceError wraps a failed load or save. The stored state is the one
// from before the operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// DeliveryError is a failed notification push. It is recorded on the
// notification and logged, never returned to API callers.
type DeliveryError struct {
	NotificationID string
	AgentID        string
	Err            error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering notification %s to %s: %v", e.NotificationID, e.AgentID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
