package pullpay

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/pullpay/metadata"
	"github.com/xraph/pullpay/token"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound         = errors.New("pullpay: not found")
	ErrInvalidParameter = errors.New("pullpay: invalid parameter")
	ErrUnauthorized     = errors.New("pullpay: unauthorized")

	// Product errors
	ErrProductNotFound     = fmt.Errorf("%w: product", ErrNotFound)
	ErrInsufficientBalance = errors.New("pullpay: insufficient product balance")

	// Subscription errors
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", ErrNotFound)
	ErrAlreadySubscribed    = errors.New("pullpay: already subscribed")
	ErrNotSubscribed        = errors.New("pullpay: no active subscription")

	// Withdrawal errors
	ErrWithdrawalNotFound = fmt.Errorf("%w: withdrawal", ErrNotFound)

	// Charge errors
	ErrChargeConflict = errors.New("pullpay: charge slot already applied")

	// Token errors, raised by the token mover.
	ErrInsufficientFunds         = token.ErrInsufficientFunds
	ErrInsufficientAuthorization = token.ErrInsufficientAuthorization

	// Metadata errors, raised by resolvers.
	ErrUnresolvable = metadata.ErrUnresolvable

	// Store errors
	ErrStoreClosed     = errors.New("pullpay: store is closed")
	ErrMigrationFailed = errors.New("pullpay: migration failed")
)

// ValidationError represents a validation failure with details.
// It matches ErrInvalidParameter under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("pullpay: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidParameter) match.
func (e ValidationError) Unwrap() error { return ErrInvalidParameter }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "pullpay: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("pullpay: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrNotSubscribed)
}

// IsPaymentFailure returns true if the error means the subscriber could not
// be charged: an empty wallet or a missing allowance.
func IsPaymentFailure(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientAuthorization)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrChargeConflict) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Error kinds reported by Kind.
const (
	KindInvalidParameter          = "InvalidParameter"
	KindNotFound                  = "NotFound"
	KindUnauthorized              = "Unauthorized"
	KindAlreadySubscribed         = "AlreadySubscribed"
	KindInsufficientBalance       = "InsufficientBalance"
	KindInsufficientFunds         = "InsufficientFunds"
	KindInsufficientAuthorization = "InsufficientAuthorization"
	KindUnresolvable              = "Unresolvable"
	KindConflict                  = "Conflict"
	KindInternal                  = "Internal"
)

// Kind maps err onto the caller-facing error taxonomy. Unknown errors are
// KindInternal; nil is the empty string.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidParameter):
		return KindInvalidParameter
	case IsNotFound(err):
		return KindNotFound
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrAlreadySubscribed):
		return KindAlreadySubscribed
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrInsufficientAuthorization):
		return KindInsufficientAuthorization
	case errors.Is(err, ErrUnresolvable):
		return KindUnresolvable
	case errors.Is(err, ErrChargeConflict):
		return KindConflict
	default:
		return KindInternal
	}
}
