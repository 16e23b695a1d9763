package services

import (
	"errors"
	"fmt"
)

// ErrNotFound covers lookups by an unknown decision_id. Handlers map
// it to 404.
var ErrNotFound = errors.New("decision not found")

// ValidationError reports malformed or out-of-range input with the
// offending field. Handlers map it to 422.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}
