package model

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below match them through errors.Is so callers
// can branch on the error kind without caring about the concrete type.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrCycle              = errors.New("activity graph contains a cycle")
	ErrDownstreamNotEmpty = errors.New("activity has downstream dependents")
	ErrStaleCatalog       = errors.New("activity catalog is out of date")
)

// NotFoundError is returned by strict lookups that find nothing.
type NotFoundError struct {
	Kind string // "dataset", "plan", "activity", "tag", ...
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFound creates a NotFoundError.
func NewNotFound(kind, key string) *NotFoundError {
	return &NotFoundError{Kind: kind, Key: key}
}

// ConflictError reports a user-level conflict such as a duplicate slug or tag.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Conflictf creates a ConflictError with a formatted message.
func Conflictf(format string, args ...any) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// GraphError reports a structural problem with the activity graph.
// Kind is one of ErrCycle, ErrDownstreamNotEmpty or ErrStaleCatalog.
type GraphError struct {
	Kind        error
	ActivityIDs []string
	Detail      string
}

func (e *GraphError) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if len(e.ActivityIDs) > 0 {
		msg += fmt.Sprintf(" %v", e.ActivityIDs)
	}
	return msg
}

func (e *GraphError) Is(target error) bool { return target == e.Kind }

// InvariantViolation is the panic value used when a caller breaks a documented
// precondition. It is never returned as an error.
type InvariantViolation struct {
	Message string
}

func (v *InvariantViolation) Error() string {
	return "invariant violation: " + v.Message
}

// Invariant panics with an InvariantViolation when cond is false.
func Invariant(cond bool, format string, args ...any) {
	if !cond {
		panic(&InvariantViolation{Message: fmt.Sprintf(format, args...)})
	}
}

// FrozenError is the panic value raised when a frozen entity is mutated.
type FrozenError struct {
	Kind string
	ID   string
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("cannot modify frozen %s %s: call Unfreeze first", e.Kind, e.ID)
}
