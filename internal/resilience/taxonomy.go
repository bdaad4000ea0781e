package resilience

import (
	"errors"
	"fmt"
)

// MalformedExtractionError means a model response could not be turned into
// the expected JSON shape. Never retried blindly; the caller records a
// per-item error and moves on.
type MalformedExtractionError struct {
	Doc    string
	Reason string
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("malformed extraction for %s: %s", e.Doc, e.Reason)
}

// ProductNotFoundError means a per-product lookup returned no match.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// AuthLostError signals the remote session dropped its authentication
// mid-run. The pipeline re-authenticates once; a second loss is fatal for
// the remaining items.
type AuthLostError struct {
	Detail string
}

func (e *AuthLostError) Error() string {
	if e.Detail == "" {
		return "authentication lost"
	}
	return "authentication lost: " + e.Detail
}

// MissingIdentifierError means a fragment carries no usable identifier, so
// its product cannot participate in the merge.
type MissingIdentifierError struct {
	ProductName string
}

func (e *MissingIdentifierError) Error() string {
	return fmt.Sprintf("product %q has no usable identifier", e.ProductName)
}

// InitialFetchError wraps a failure to obtain the primary presentation
// document or response. Nothing downstream can run without it, so it is
// always job-fatal.
type InitialFetchError struct {
	Err error
}

func (e *InitialFetchError) Error() string {
	return "initial presentation fetch failed: " + e.Err.Error()
}

func (e *InitialFetchError) Unwrap() error { return e.Err }

// IsRecoverable reports whether an error is per-item: the job records it
// against the current product and continues with the rest of the queue.
// Transient errors are not recoverable in this sense; they are retried
// in place and only surface once retries are exhausted, at which point the
// caller decides based on stage.
func IsRecoverable(err error) bool {
	var (
		malformed *MalformedExtractionError
		notFound  *ProductNotFoundError
		missing   *MissingIdentifierError
	)
	return errors.As(err, &malformed) ||
		errors.As(err, &notFound) ||
		errors.As(err, &missing)
}

// IsJobFatal reports whether an error must end the whole job regardless of
// how many items already succeeded.
func IsJobFatal(err error) bool {
	var initial *InitialFetchError
	return errors.As(err, &initial)
}
