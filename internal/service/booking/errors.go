package booking

import (
	"context"
	"errors"
	"fmt"

	"appointly/backend/internal/auth"
	"appointly/backend/internal/domain"
	"appointly/backend/internal/service/conflicts"
	"appointly/backend/internal/store"
)

const (
	CodeInvalidInput   = "INVALID_INPUT"
	CodeInvalidService = "INVALID_SERVICE"
)

// ValidationError is caller-correctable input. ValidServices is set for
// INVALID_SERVICE so the caller can pick a name that exists.
type ValidationError struct {
	Code          string
	ValidServices []string
	msg           string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{Code: CodeInvalidInput, msg: msg}
}

func invalidService(services []domain.Service) error {
	return &ValidationError{
		Code:          CodeInvalidService,
		ValidServices: domain.ServiceNames(services),
		msg:           "service not offered by this business",
	}
}

// RejectionError carries a negative conflict decision out of a write
// operation. For NO_AVAILABILITY and OUTSIDE_HOURS, Decision.Hours holds the
// business's windows for the requested weekday.
type RejectionError struct {
	Decision conflicts.Decision
}

func (e *RejectionError) Error() string {
	switch e.Decision.Reason {
	case conflicts.ReasonNoAvailability:
		return fmt.Sprintf("business has no availability on %s", e.Decision.Weekday)
	case conflicts.ReasonOutsideHours:
		return "requested time is outside business hours"
	default:
		return "requested time conflicts with an existing appointment"
	}
}

func (e *RejectionError) Reason() conflicts.Reason {
	return e.Decision.Reason
}

func timeConflict() error {
	return &RejectionError{Decision: conflicts.Decision{Reason: conflicts.ReasonTimeConflict}}
}

// ErrTransient marks a store failure the caller may retry.
var ErrTransient = errors.New("transient store failure")

// classify passes typed outcomes through unchanged and marks everything else
// as transient. A lost race on the exclusion constraint becomes TIME_CONFLICT.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var vErr *ValidationError
	var rErr *RejectionError
	switch {
	case errors.As(err, &vErr), errors.As(err, &rErr):
		return err
	case errors.Is(err, store.ErrConflict):
		return timeConflict()
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrIdempotencyConflict),
		errors.Is(err, auth.ErrUnauthenticated),
		errors.Is(err, auth.ErrForbidden),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
