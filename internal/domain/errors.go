package domain

import "fmt"

// Error types for consistent error handling across the service.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrRemoteQuery indicates a read against the backend failed (network
// failure or permission denial). Reads are not retried transparently
// by repositories; callers decide.
type ErrRemoteQuery struct {
	Table string
	Err   error
}

func (e *ErrRemoteQuery) Error() string {
	return fmt.Sprintf("remote query failed [%s]: %v", e.Table, e.Err)
}

func (e *ErrRemoteQuery) Unwrap() error {
	return e.Err
}

// ErrRemoteWrite indicates a mutation was rejected by the backend
// (constraint violation, permission denial or network failure).
type ErrRemoteWrite struct {
	Table string
	Op    string // insert, update, upsert, delete
	Err   error
}

func (e *ErrRemoteWrite) Error() string {
	return fmt.Sprintf("remote %s failed [%s]: %v", e.Op, e.Table, e.Err)
}

func (e *ErrRemoteWrite) Unwrap() error {
	return e.Err
}

// ErrAuth indicates a credential or signup failure. The password and
// duplicate-email policy is owned by the auth backend.
type ErrAuth struct {
	Message string
	Err     error
}

func (e *ErrAuth) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("auth error: %v", e.Err)
}

func (e *ErrAuth) Unwrap() error {
	return e.Err
}

// ErrProfileResolution indicates the identity-to-profile mapping could
// not be read or provisioned.
type ErrProfileResolution struct {
	IdentityID string
	Err        error
}

func (e *ErrProfileResolution) Error() string {
	return fmt.Sprintf("profile resolution failed for %s: %v", e.IdentityID, e.Err)
}

func (e *ErrProfileResolution) Unwrap() error {
	return e.Err
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrUnauthorized indicates a missing or invalid access token.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
