package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error taxonomy shared by services, repositories and the HTTP boundary.
var (
	ErrValidation         = errors.New("validation failed")
	ErrDuplicate          = errors.New("duplicate record")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrInvalidToken       = errors.New("invalid token")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
)

// ValidationError collects per-field problems with an input.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError returns an empty ValidationError ready for Add.
func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a problem for field. The first message per field wins.
func (e *ValidationError) Add(field, message string) {
	if _, exists := e.Fields[field]; exists {
		return
	}
	e.Fields[field] = message
}

// Empty reports whether no problems were recorded.
func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

// OrNil returns e if it holds problems, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DuplicateError reports a uniqueness violation on a principal field.
type DuplicateError struct {
	Field string // "username" or "email"
}

func (e *DuplicateError) Error() string {
	switch e.Field {
	case "username":
		return "username already taken"
	case "email":
		return "email already registered"
	default:
		return fmt.Sprintf("%s already exists", e.Field)
	}
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}
