package store

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrNotFound is returned by reads and deletes of resources that do not
	// exist. It is never returned for backend failures.
	ErrNotFound = errors.New("entity not found")

	// ErrInvalidConfig is returned for resource type configurations the store
	// cannot work with.
	ErrInvalidConfig = errors.New("invalid resource type configuration")
)

// Reason describes why a resource failed validation.
type Reason string

const (
	MissingRequiredField Reason = "missing required field"
	MissingIndexValue    Reason = "missing index value"
	InvalidField         Reason = "invalid field"
	ImmutableField       Reason = "immutable field"
)

// ValidationError is returned before any backend call when a resource does
// not satisfy its type's configuration.
type ValidationError struct {
	Field   string
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Reason, e.Field, e.Message)
	}
	return fmt.Sprintf("%s [%s]", e.Reason, e.Field)
}

// DuplicateIndexError is returned when a unique index value is already
// claimed by another resource.
type DuplicateIndexError struct {
	ResourceType string
	Field        string
	Value        string
}

func (e *DuplicateIndexError) Error() string {
	return fmt.Sprintf("duplicate index for %s: %s=%q is already taken", e.ResourceType, e.Field, e.Value)
}

// AssociationError wraps the failure of an association hook.
type AssociationError struct {
	Hook string
	Err  error
}

func (e *AssociationError) Error() string {
	return fmt.Sprintf("association %s: %v", e.Hook, e.Err)
}

func (e *AssociationError) Unwrap() error { return e.Err }

// BackendError wraps a failure of the underlying backend or of encoding a
// resource. The store never retries these.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Phase is a step of the create state machine.
type Phase int

const (
	PhaseValidating Phase = iota
	PhaseIndexChecking
	PhaseAssociationRunning
	PhaseBatching
)

func (p Phase) String() string {
	switch p {
	case PhaseValidating:
		return "validating"
	case PhaseIndexChecking:
		return "index checking"
	case PhaseAssociationRunning:
		return "running associations"
	case PhaseBatching:
		return "batching"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// CreateError records the phase a create failed in. It unwraps to the
// specific error, so errors.As and Classify see through it.
type CreateError struct {
	ResourceType string
	Phase        Phase
	Err          error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("create %s: %s: %v", e.ResourceType, e.Phase, e.Err)
}

func (e *CreateError) Unwrap() error { return e.Err }

// Class is the coarse category of a store error.
type Class int

const (
	ClassNone Class = iota
	ClassValidation
	ClassConflict
	ClassNotFound
	ClassAssociation
	ClassBackend
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassValidation:
		return "validation"
	case ClassConflict:
		return "conflict"
	case ClassNotFound:
		return "not_found"
	case ClassAssociation:
		return "association"
	default:
		return "backend"
	}
}

// Classify maps err to its Class. Unknown errors are treated as backend
// failures. A duplicate index is a conflict wherever it was detected; any
// other association hook failure is an association failure.
func Classify(err error) Class {
	var (
		assocErr *AssociationError
		dupErr   *DuplicateIndexError
		valErr   *ValidationError
	)
	switch {
	case err == nil:
		return ClassNone
	case errors.As(err, &dupErr):
		return ClassConflict
	case errors.As(err, &assocErr):
		return ClassAssociation
	case errors.As(err, &valErr), errors.Is(err, ErrInvalidConfig):
		return ClassValidation
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	default:
		return ClassBackend
	}
}
