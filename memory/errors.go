package memory

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a session, chat or profile does not exist.
	ErrNotFound = errors.New("memory: not found")

	// ErrAlreadyExists is returned by create operations on an existing key.
	ErrAlreadyExists = errors.New("memory: already exists")

	// ErrBudgetExceeded is returned when content is still over budget after compression.
	ErrBudgetExceeded = errors.New("memory: budget exceeded")

	// ErrRejected marks a write declined by an admission rule. Expected, never fatal.
	ErrRejected = errors.New("memory: rejected")

	// ErrExternalService marks a failed or timed out collaborator call.
	ErrExternalService = errors.New("memory: external service failure")

	// ErrQueueFull is returned when the background queue cannot accept more work.
	ErrQueueFull = errors.New("memory: queue full")

	// ErrClosed is returned after the engine has been closed.
	ErrClosed = errors.New("memory: closed")
)

// Rejection kinds reported by RejectionError.Kind.
const (
	RejectForbidden       = "forbidden_content"
	RejectInvalidCategory = "invalid_category"
	RejectUnsuitable      = "unsuitable_for_tier"
	RejectLowScore        = "low_score"
	RejectEmpty           = "empty"
)

// RejectionError describes why a candidate memory was declined.
type RejectionError struct {
	Kind   string
	Reason string
}

func (e *RejectionError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("memory: rejected (%s)", e.Kind)
	}
	return fmt.Sprintf("memory: rejected (%s): %s", e.Kind, e.Reason)
}

func (e *RejectionError) Unwrap() error { return ErrRejected }

// NewRejection builds a RejectionError.
func NewRejection(kind, reason string) *RejectionError {
	return &RejectionError{Kind: kind, Reason: reason}
}

// ExternalError wraps a collaborator failure with the service and operation names.
type ExternalError struct {
	Service string
	Op      string
	Err     error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("memory: %s %s failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is.
func (e *ExternalError) Unwrap() []error { return []error{ErrExternalService, e.Err} }

// NewExternalError builds an ExternalError.
func NewExternalError(service, op string, err error) *ExternalError {
	return &ExternalError{Service: service, Op: op, Err: err}
}

// IsRejection reports whether err is an expected admission rejection.
func IsRejection(err error) bool {
	return errors.Is(err, ErrRejected)
}
