package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// ERROR TAXONOMY
// =============================================================================

// ValidationError reports a static shape problem in caller input: an empty
// query, a non-descriptor entity, a negative page number.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// NewValidationError builds a ValidationError for a named input field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// QueryValidationError reports that a generated or user-supplied query failed
// the validator on a hard rule.
type QueryValidationError struct {
	Query  string
	Issues []string
}

func (e *QueryValidationError) Error() string {
	return fmt.Sprintf("query validation failed: %s", strings.Join(e.Issues, "; "))
}

// QueryGenerationError reports that the generator exhausted its retries
// without producing a valid query.
type QueryGenerationError struct {
	Question string
	Attempts int
	Issues   []string
}

func (e *QueryGenerationError) Error() string {
	return fmt.Sprintf("query generation failed after %d attempts: %s",
		e.Attempts, strings.Join(e.Issues, "; "))
}

// ReadOnlyViolation reports write clauses detected while read-only mode is
// required. Clauses names the offending keywords.
type ReadOnlyViolation struct {
	Query   string
	Clauses []string
}

func (e *ReadOnlyViolation) Error() string {
	return fmt.Sprintf("read-only violation: query contains write clauses: %s",
		strings.Join(e.Clauses, ", "))
}

// QueryTimeout reports that the store did not respond within the deadline.
type QueryTimeout struct {
	Query   string
	Seconds float64
}

func (e *QueryTimeout) Error() string {
	return fmt.Sprintf("query timed out after %.1fs", e.Seconds)
}

// QueryExecutionError wraps any other store-side or transport-side failure
// during execution.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryExecutionError) Unwrap() error { return e.Err }

// DataConsistencyError reports a partial dual-store outcome. When RolledBack
// is true the compensating write succeeded and the stores are consistent
// again; the caller is told what happened, not left to reconcile.
type DataConsistencyError struct {
	EntityID      interface{}
	Operation     string // ingest | remove | sync
	GraphSuccess  bool
	VectorSuccess bool
	RolledBack    bool
	Err           error
}

func (e *DataConsistencyError) Error() string {
	return fmt.Sprintf("data consistency error during %s of entity %v (graph=%t vector=%t rolled_back=%t): %v",
		e.Operation, e.EntityID, e.GraphSuccess, e.VectorSuccess, e.RolledBack, e.Err)
}

func (e *DataConsistencyError) Unwrap() error { return e.Err }

// CriticalConsistencyError reports that a rollback attempt itself failed:
// the stores are known-divergent and manual reconciliation is required.
// This error must be surfaced, never swallowed.
type CriticalConsistencyError struct {
	EntityID    interface{}
	Operation   string
	WriteErr    error // the failure that triggered rollback
	RollbackErr error // the failure of the rollback itself
}

func (e *CriticalConsistencyError) Error() string {
	return fmt.Sprintf("CRITICAL: stores divergent for entity %v after %s (write: %v, rollback: %v); manual reconciliation required",
		e.EntityID, e.Operation, e.WriteErr, e.RollbackErr)
}

func (e *CriticalConsistencyError) Unwrap() error { return e.WriteErr }
