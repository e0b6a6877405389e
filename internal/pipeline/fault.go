package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure for the caller. Only
// KindProviderTransient is handled internally (by the gateway retry
// middleware); every other kind bubbles to the request boundary unmodified.
type Kind string

const (
	KindValidation        Kind = "validation_error"
	KindMissingContext    Kind = "missing_context"
	KindProviderTransient Kind = "provider_transient"
	KindProviderExhausted Kind = "provider_exhausted"
	KindSchemaViolation   Kind = "schema_violation"
	KindEmptyContent      Kind = "empty_content"
	KindPersistence       Kind = "persistence_error"
)

// Fault is a classified pipeline error. The wrapped error carries the last
// underlying cause for diagnostics.
type Fault struct {
	Kind Kind
	Err  error
}

func (f *Fault) Error() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %v", f.Kind, f.Err)
}

func (f *Fault) Unwrap() error { return f.Err }

func newFault(kind Kind, err error) error {
	return &Fault{Kind: kind, Err: err}
}

func faultf(kind Kind, format string, args ...any) error {
	return &Fault{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err, or "" when err is not a
// pipeline fault.
func KindOf(err error) Kind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return ""
}
