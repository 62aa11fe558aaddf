// Package apperr defines the error taxonomy shared by the knowledge and
// triage packages. Only external-service and validation failures surface
// to callers; everything else is recovered where it happens.
package apperr

import (
	"errors"
	"fmt"
)

// ExternalServiceError is a failure of an embedding, index or generation backend.
type ExternalServiceError struct {
	Service string // embedding, index, generation
	Op      string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Service, e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// External wraps err as an ExternalServiceError. A nil err returns nil, and
// an error that already is one is returned unchanged.
func External(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return err
	}
	return &ExternalServiceError{Service: service, Op: op, Err: err}
}

// ValidationError is caller input rejected before any external call.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// Invalid builds a ValidationError.
func Invalid(field, value, reason string) error {
	return &ValidationError{Field: field, Value: value, Reason: reason}
}

// IsExternal reports whether err wraps an ExternalServiceError.
func IsExternal(err error) bool {
	var ext *ExternalServiceError
	return errors.As(err, &ext)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
