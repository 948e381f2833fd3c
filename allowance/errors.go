/*
errors.go - Error types for the allowance engine and the pass ledger

ERROR CATEGORIES:
  1. Not found - caller referenced a nonexistent entity
  2. Rejections - business rule violations shown to the user
  3. Misuse - forbidden transitions, non-admin callers
  4. Store races - constraint violations that warrant one retry

The pass package reuses these sentinels so callers only need one import
for errors.Is checks.
*/
package allowance

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrVehicleNotFound = errors.New("vehicle not found")
	ErrUnitNotFound    = errors.New("unit not found")
	ErrPassNotFound    = errors.New("pass not found")

	// ErrUnitExists is returned when creating a unit whose ID is taken.
	ErrUnitExists = errors.New("unit already exists")

	// ErrDuplicateActivePass is returned when the vehicle already holds a
	// non-expired pass.
	ErrDuplicateActivePass = errors.New("vehicle already has an active pass")

	// ErrPartyLimitReached is returned when the unit has used every party
	// day allowed this month.
	ErrPartyLimitReached = errors.New("party pass limit reached")

	ErrInvalidTransition = errors.New("invalid payment status transition")
	ErrInvalidKind       = errors.New("invalid pass kind")
	ErrForbidden         = errors.New("administrator access required")

	// ErrConstraintViolation is returned by a store when a concurrent writer
	// inserted an active pass for the same vehicle first.
	ErrConstraintViolation = errors.New("active pass constraint violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateActivePassError carries the expiry of the pass that blocked
// creation so the UI can tell the resident when to retry.
type DuplicateActivePassError struct {
	VehicleID string
	PassID    string
	ExpiresAt time.Time
}

func (e *DuplicateActivePassError) Error() string {
	return fmt.Sprintf("vehicle %s already has an active pass until %s",
		e.VehicleID, e.ExpiresAt.UTC().Format(time.RFC3339))
}

func (e *DuplicateActivePassError) Unwrap() error { return ErrDuplicateActivePass }

type PartyLimitReachedError struct {
	Limit int
}

func (e *PartyLimitReachedError) Error() string {
	return fmt.Sprintf("party pass limit reached: %d per month", e.Limit)
}

func (e *PartyLimitReachedError) Unwrap() error { return ErrPartyLimitReached }

type InvalidTransitionError struct {
	From PaymentStatus
	To   PaymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid payment status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true for the storage race that warrants one retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}

// IsClientError returns true if the error is due to the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicateActivePass) ||
		errors.Is(err, ErrPartyLimitReached) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrUnitExists)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrVehicleNotFound) ||
		errors.Is(err, ErrUnitNotFound) ||
		errors.Is(err, ErrPassNotFound)
}
