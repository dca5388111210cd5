package models

import (
	"errors"
	"fmt"
)

// ErrValidation represents a validation error with field and message.
type ErrValidation struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Common validation errors for models.
var (
	// ErrInputPathRequired indicates a required input path field is empty.
	ErrInputPathRequired = errors.New("input_path is required")

	// ErrEngineRequired indicates a required translation engine field is empty.
	ErrEngineRequired = errors.New("engine is required")

	// ErrInvalidStatus indicates an unknown job status value.
	ErrInvalidStatus = errors.New("invalid job status")
)
