package imagebuild

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrNoBaseImage  = errors.New("build definition must have a base image")
	ErrNoUser       = errors.New("build definition must have a non-root user")
	ErrRootUser     = errors.New("runtime user must not be root")
	ErrInvalidPort  = errors.New("exposed port out of range")
	ErrNoVirtualEnv = errors.New("build definition must have a dependency environment path")
)

// DefinitionError wraps validation errors with the offending field.
type DefinitionError struct {
	Field   string
	Message string
	Err     error
}

func (e *DefinitionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *DefinitionError) Unwrap() error {
	return e.Err
}

// NewDefinitionError creates a new DefinitionError.
func NewDefinitionError(field, message string, err error) *DefinitionError {
	return &DefinitionError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}
