/*
errors.go - Centralized error types for the chit engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Business-rule violations are surfaced verbatim to the caller, never
  silently corrected. Storage failures are wrapped, logged by the caller,
  and reported as retryable.

ERROR CATEGORIES:
  1. Validation errors  - bad input shape/range, always caller-fixable
  2. Business rules     - duplicate membership, re-withdrawal, bad shares
  3. Concurrency        - lock contention, safe to retry once
  4. Storage            - persistence failures, retryable

USAGE:
  if errors.Is(err, chit.ErrAlreadyWithdrawn) {
      // 409 to the caller with the precise reason
  }

SEE ALSO:
  - recorder.go, withdrawal.go, group.go: Producers of these errors
  - api/handlers.go: Error -> HTTP status mapping
*/
package chit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateMembership is returned when the (fund, user) pair already
	// exists. There are no silent duplicate rows.
	ErrDuplicateMembership = errors.New("membership already exists")

	// ErrAlreadyWithdrawn is returned on any attempt to withdraw, or record a
	// withdrawal payment, for a membership that is already withdrawn.
	ErrAlreadyWithdrawn = errors.New("member has already withdrawn from this fund")

	// ErrInvalidCommission is returned when a commission would leave a
	// non-positive payout.
	ErrInvalidCommission = errors.New("commission must be less than the pool amount")

	// ErrEmptyGroup is returned when distributing over a group with no members.
	ErrEmptyGroup = errors.New("member group has no members")

	// ErrInvalidShare is returned when group shares do not sum to 100.
	ErrInvalidShare = errors.New("group shares must sum to 100")

	// ErrConcurrencyConflict is returned on lock contention. Safe to retry once.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrFundNotFound is returned when a referenced fund doesn't exist.
	ErrFundNotFound = errors.New("fund not found")

	// ErrMembershipNotFound is returned when a referenced membership doesn't exist.
	ErrMembershipNotFound = errors.New("membership not found")

	// ErrGroupNotFound is returned when a referenced member group doesn't exist.
	ErrGroupNotFound = errors.New("member group not found")

	// ErrPaymentNotFound is returned when a referenced payment doesn't exist.
	ErrPaymentNotFound = errors.New("payment not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports input that fails shape or range checks.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// AlreadyWithdrawnError identifies which membership blocked the operation.
type AlreadyWithdrawnError struct {
	FundID          FundID
	UserID          UserID
	WithdrawalMonth int
}

func (e *AlreadyWithdrawnError) Error() string {
	return fmt.Sprintf("member %s has already withdrawn from fund %s (month %d)",
		e.UserID, e.FundID, e.WithdrawalMonth)
}

func (e *AlreadyWithdrawnError) Unwrap() error { return ErrAlreadyWithdrawn }

// InvalidShareError reports the actual share total of a bad group.
type InvalidShareError struct {
	GroupID GroupID
	Total   string // Rendered share sum
}

func (e *InvalidShareError) Error() string {
	return fmt.Sprintf("group %s shares sum to %s, want 100", e.GroupID, e.Total)
}

func (e *InvalidShareError) Unwrap() error { return ErrInvalidShare }

// StorageError wraps a persistence failure. The operation may be retried.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// DuplicateMembershipError identifies the offending pair.
type DuplicateMembershipError struct {
	FundID FundID
	UserID UserID
}

func (e *DuplicateMembershipError) Error() string {
	return fmt.Sprintf("user %s is already a member of fund %s", e.UserID, e.FundID)
}

func (e *DuplicateMembershipError) Unwrap() error { return ErrDuplicateMembership }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	var se *StorageError
	return errors.Is(err, ErrConcurrencyConflict) || errors.As(err, &se)
}

// IsClientError returns true if the error is due to invalid client input or
// a business-rule violation (4xx-equivalent).
func IsClientError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrDuplicateMembership) ||
		errors.Is(err, ErrAlreadyWithdrawn) ||
		errors.Is(err, ErrInvalidCommission) ||
		errors.Is(err, ErrEmptyGroup) ||
		errors.Is(err, ErrInvalidShare)
}

// IsNotFound returns true if the error indicates a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFundNotFound) ||
		errors.Is(err, ErrMembershipNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
