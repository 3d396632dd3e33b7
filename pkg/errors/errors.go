package errors

import (
	"errors"
	"fmt"
)

// Domain error types for business logic

var (
	// ErrInvalidInput indicates invalid input parameters
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the caller lacks ownership or a required role
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrUnavailable indicates an external collaborator is unavailable
	ErrUnavailable = errors.New("service unavailable")
)

// Validation errors, all matching ErrInvalidInput

var (
	// ErrLeverageOutOfRange indicates leverage outside the allowed bounds
	ErrLeverageOutOfRange = fmt.Errorf("%w: leverage out of range", ErrInvalidInput)

	// ErrInvalidSize indicates a non-positive position or order size
	ErrInvalidSize = fmt.Errorf("%w: size must be positive", ErrInvalidInput)

	// ErrInvalidPrice indicates a non-positive reference price
	ErrInvalidPrice = fmt.Errorf("%w: price must be positive", ErrInvalidInput)

	// ErrInvalidExpiry indicates an order expiry outside the allowed window
	ErrInvalidExpiry = fmt.Errorf("%w: expiry out of range", ErrInvalidInput)

	// ErrInvalidTrigger indicates a stop-limit trigger/limit ordering violation
	ErrInvalidTrigger = fmt.Errorf("%w: trigger price ordering", ErrInvalidInput)

	// ErrInvalidTrader indicates a missing trader identity
	ErrInvalidTrader = fmt.Errorf("%w: trader is required", ErrInvalidInput)

	// ErrInvalidAmount indicates a non-positive transfer amount
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
)

// Lookup errors, all matching ErrNotFound

var (
	// ErrPositionNotFound indicates no live position under the given id
	ErrPositionNotFound = fmt.Errorf("%w: position", ErrNotFound)

	// ErrOrderNotFound indicates no order under the given id
	ErrOrderNotFound = fmt.Errorf("%w: order", ErrNotFound)
)

// Trading errors

var (
	// ErrInsufficientMargin indicates the account lacks the required margin
	ErrInsufficientMargin = errors.New("insufficient margin")

	// ErrInsufficientAvailable indicates the requested amount exceeds available balance
	ErrInsufficientAvailable = errors.New("insufficient available balance")

	// ErrOrderNotActive indicates the order is in a terminal state
	ErrOrderNotActive = errors.New("order not active")

	// ErrNotExecutable indicates order conditions are not met at the current price
	ErrNotExecutable = errors.New("order not executable")

	// ErrNotLiquidatable indicates the position is above its maintenance threshold
	ErrNotLiquidatable = errors.New("position not liquidatable")

	// ErrPriceUnavailable indicates no valid price for the requested pair
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Internal invariant violations. These indicate a logic defect, not a user
// mistake; valid usage must never hit them and tests assert they do not.

var (
	// ErrInvariantViolation is the class all internal assertion failures match
	ErrInvariantViolation = errors.New("internal invariant violation")

	// ErrDuplicateID indicates an id collision on a live position
	ErrDuplicateID = fmt.Errorf("%w: duplicate position id", ErrInvariantViolation)

	// ErrOverRelease indicates a margin release exceeding the locked amount
	ErrOverRelease = fmt.Errorf("%w: margin over-release", ErrInvariantViolation)

	// ErrSequenceExhausted indicates an id counter reached its ceiling
	ErrSequenceExhausted = fmt.Errorf("%w: id sequence exhausted", ErrInvariantViolation)
)

// IsInvariantViolation reports whether err belongs to the internal
// invariant-violation class, as opposed to ordinary input rejection.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}

// Helper functions

// Is checks if err is or wraps target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target type
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func New(message string) error {
	return errors.New(message)
}

func Newf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
