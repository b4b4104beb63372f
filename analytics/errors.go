// api/analytics/errors.go
package analytics

import (
	"errors"
	"fmt"
)

// ErrTenantNotFound is returned when the requested tenant does not exist
// in the registry.
var ErrTenantNotFound = errors.New("tenant not found")

// ValidationError reports a user-correctable problem with the requested
// window or granularity. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreError wraps a failure of the event store after the adapter's own
// retries are exhausted. Transient from the caller's point of view.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("event store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// CompositionError reports internally inconsistent partial results. This
// indicates an upstream store or planner defect, is fatal for the request
// and must never be retried.
type CompositionError struct {
	Reason string
}

func (e *CompositionError) Error() string {
	return fmt.Sprintf("inconsistent aggregation results: %s", e.Reason)
}
