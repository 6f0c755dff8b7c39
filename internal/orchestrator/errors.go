package orchestrator

import (
	"errors"
	"fmt"
)

// ErrUnknownRequest indicates the request id is not in the registry,
// either because it never existed or because it was purged.
var ErrUnknownRequest = errors.New("unknown request")

// ValidationError rejects a create call with a malformed name or tier.
// It is returned synchronously, before any record is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError rejects a create call because an active request already
// holds the requested name.
type ConflictError struct {
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("an active request already holds name %q", e.Name)
}

// IsValidation checks if an error is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict checks if an error is a ConflictError.
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
