package store

import "fmt"

// NotFoundError indicates a referenced document is absent. Surfaced to the
// caller, never retried internally.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ValidationError indicates a client-side validation failure, raised before
// any mutation is issued.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// ConflictError indicates a uniqueness or state conflict.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// PartialReconciliationError indicates a reciprocal write failed after
// earlier writes in the same operation succeeded. The applied writes are not
// rolled back; the accepted remediation is a later idempotent re-update with
// the same desired state.
type PartialReconciliationError struct {
	Collection string
	DocID      string
	Field      string
	Err        error
}

func (e *PartialReconciliationError) Error() string {
	return fmt.Sprintf("reconciliation write to %s/%s (%s) failed: %v", e.Collection, e.DocID, e.Field, e.Err)
}

func (e *PartialReconciliationError) Unwrap() error { return e.Err }

// StorageUnavailableError indicates the document store could not be reached.
// Propagated without retry; a surrounding resilience layer may add backoff.
type StorageUnavailableError struct {
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("storage unavailable: %v", e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }
