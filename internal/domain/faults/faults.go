// Package faults holds the error taxonomy shared by the membership and
// moderation flows. Concrete errors wrap their class, so callers can match
// either the precise condition or the whole class with errors.Is.
package faults

import (
	"errors"
	"fmt"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrGateway        = errors.New("gateway error")
	ErrReconciliation = errors.New("reconciliation error")
	ErrAuthorization  = errors.New("authorization error")
	ErrConflict       = errors.New("state already changed")
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("too many requests")
)

var (
	ErrInvalidAmount   = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidFeedback = fmt.Errorf("%w: feedback must be a non-empty tag", ErrValidation)
	ErrMissingFeedback = fmt.Errorf("%w: comment must be classified before it is reported", ErrValidation)
	ErrInvalidAction   = fmt.Errorf("%w: unknown resolve action", ErrValidation)
	ErrInvalidInput    = fmt.Errorf("%w: invalid input", ErrValidation)

	ErrGatewayUnavailable    = fmt.Errorf("%w: gateway unavailable", ErrGateway)
	ErrPaymentMethodRejected = fmt.Errorf("%w: payment method rejected", ErrGateway)
	ErrPaymentDeclined       = fmt.Errorf("%w: payment declined", ErrGateway)
	ErrTimeout               = fmt.Errorf("%w: gateway timeout", ErrGateway)

	ErrReconciliationPending = fmt.Errorf("%w: payment received, membership not recorded yet", ErrReconciliation)
	ErrPaymentUnverified     = fmt.Errorf("%w: payment outcome unknown, verifying with the gateway", ErrReconciliation)

	ErrForbidden = fmt.Errorf("%w: forbidden", ErrAuthorization)

	ErrAlreadyMember     = fmt.Errorf("%w: user is already a member", ErrConflict)
	ErrAlreadyReported   = fmt.Errorf("%w: comment already reported", ErrConflict)
	ErrNotReported       = fmt.Errorf("%w: comment is not reported", ErrConflict)
	ErrAlreadyClassified = fmt.Errorf("%w: comment already classified", ErrConflict)
	ErrIntentInProgress  = fmt.Errorf("%w: another membership intent is in progress", ErrConflict)
	ErrInvalidTransition = fmt.Errorf("%w: invalid intent transition", ErrConflict)

	ErrCommentNotFound = fmt.Errorf("comment %w", ErrNotFound)
	ErrIntentNotFound  = fmt.Errorf("intent %w", ErrNotFound)
	ErrPostNotFound    = fmt.Errorf("post %w", ErrNotFound)
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
)

// GatewayError carries the gateway's own message so it can be shown verbatim.
type GatewayError struct {
	Reason  error
	Message string
	Err     error
}

func NewGatewayError(reason error, message string, err error) *GatewayError {
	return &GatewayError{Reason: reason, Message: message, Err: err}
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Reason != nil:
		return fmt.Sprintf("%v: %s", e.Reason, e.Message)
	case e.Reason != nil && e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Reason, e.Err)
	case e.Reason != nil:
		return e.Reason.Error()
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *GatewayError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Reason != nil {
		errs = append(errs, e.Reason)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// RateLimitError tells the caller when the action may be retried.
type RateLimitError struct {
	RetryAfterSec int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %ds", ErrRateLimited, e.RetryAfterSec)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// UserMessage returns the text a UI should show for err.
func UserMessage(err error) string {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) && gwErr.Message != "" {
		return gwErr.Message
	}
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPaymentUnverified):
		return "checking your payment with the bank, this can take a few minutes"
	case errors.Is(err, ErrReconciliationPending):
		return "payment received, finishing setup"
	case errors.Is(err, ErrConflict):
		return "state already changed, refresh and try again"
	default:
		return err.Error()
	}
}

// Code maps err to a stable API error code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrReconciliation):
		return "RECONCILIATION_PENDING"
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrGateway):
		return "GATEWAY_ERROR"
	case errors.Is(err, ErrAuthorization):
		return "FORBIDDEN"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrRateLimited):
		return "RATE_LIMITED"
	default:
		return "INTERNAL_ERROR"
	}
}
