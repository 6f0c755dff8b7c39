package provider

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the provider does not know the requested cluster.
var ErrNotFound = errors.New("cluster not found")

// ErrMalformed indicates the provider sent a payload this client could not
// interpret. Unlike transport errors, this is not retryable polling noise.
var ErrMalformed = errors.New("malformed provider payload")

// APIError is a structured error returned by the provider API.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // provider error code, if present
	Message string // provider error message, verbatim
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %s (status %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (status %d): %s", e.Status, e.Message)
}

// IsNotFound checks if an error indicates the cluster was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsMalformed checks if an error indicates an uninterpretable provider payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformed)
}

// AsAPIError extracts a structured provider error, if err carries one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
