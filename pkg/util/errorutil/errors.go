package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/servicedesk-sla/internal/domain"
	"github.com/spec-kit/servicedesk-sla/internal/sla"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError("UNAUTHORIZED", message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError("FORBIDDEN", message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

// NewInvalidTransition reports a ticket status change the lifecycle forbids.
func NewInvalidTransition(from, to domain.TicketStatus) error {
	return &DomainError{
		Code:       "INVALID_TRANSITION",
		Message:    fmt.Sprintf("cannot move ticket from %q to %q", from, to),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"from": from, "to": to},
		Err:        domain.ErrInvalidTransition,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var formatErr *sla.FormatError
	if errors.As(err, &formatErr) {
		return NewDomainError("INVALID_DURATION", formatErr.Error(), http.StatusBadRequest,
			map[string]any{"value": formatErr.Input})
	}
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return NewNotFound("resource", nil).(*DomainError)
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return &DomainError{
			Code:       "CONCURRENT_UPDATE",
			Message:    "the sla timer is being updated by another request; retry",
			HTTPStatus: http.StatusConflict,
			Details:    map[string]any{"retryable": true},
			Err:        err,
		}
	case errors.Is(err, domain.ErrDuplicate):
		return &DomainError{
			Code:       "CONFLICT",
			Message:    "resource already exists",
			HTTPStatus: http.StatusConflict,
			Err:        err,
		}
	case errors.Is(err, domain.ErrMissingReference):
		return &DomainError{
			Code:       "VALIDATION_FAILED",
			Message:    "referenced record does not exist",
			HTTPStatus: http.StatusBadRequest,
			Err:        err,
		}
	case errors.Is(err, domain.ErrInvalidTransition):
		return &DomainError{
			Code:       "INVALID_TRANSITION",
			Message:    "invalid status transition",
			HTTPStatus: http.StatusUnprocessableEntity,
			Err:        err,
		}
	}
	return NewInternalError(err).(*DomainError)
}
