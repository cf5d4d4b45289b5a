// internal/app/system/reconcile/errors.go
package reconcile

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Sentinel categories. Callers match with errors.Is; the typed errors below
// carry the details.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
)

var (
	// ErrVersionConflict is returned when the project changed between load and write.
	ErrVersionConflict = fmt.Errorf("%w: project was modified by another request", ErrConflict)
	// ErrProjectCompleted is returned when an update targets a completed project.
	ErrProjectCompleted = fmt.Errorf("%w: project is completed and can no longer be edited", ErrConflict)
)

// NotFoundError names the kind and id that did not resolve.
type NotFoundError struct {
	Kind string // project | task | user
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func projectNotFound(id primitive.ObjectID) error {
	return &NotFoundError{Kind: "project", ID: id.Hex()}
}

// ValidationError reports a rejected input field. It is always returned
// before any store mutation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// UserFailure is one participant write that did not go through.
type UserFailure struct {
	UserID primitive.ObjectID
	Err    error
}

// PartialFailureError is returned after the project document was written but
// one or more participant updates failed. The project write is not rolled
// back; the failed ids are recorded on the run so repair can heal them.
type PartialFailureError struct {
	RunID     string
	ProjectID primitive.ObjectID
	Attempted int
	Failures  []UserFailure
}

func (e *PartialFailureError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.UserID.Hex())
	}
	return fmt.Sprintf("project saved, %d of %d participant updates failed: %s",
		len(e.Failures), e.Attempted, strings.Join(ids, ", "))
}

// FailedIDs returns the ids of the users that were not reconciled.
func (e *PartialFailureError) FailedIDs() []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.UserID)
	}
	return out
}
