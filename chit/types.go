/*
Package chit implements the ledger and reconciliation engine for rotating
savings ("chit fund") groups.

PURPOSE:
  Members contribute fixed monthly amounts into a pool; each month one member
  may withdraw the pool minus a flat commission. This package computes the
  monthly dues, records payments, derives receivable/payable ledger entries
  from those payments, processes the one-time withdrawal payout, and splits
  group-slot payments across co-owners by share percentage.

KEY CONCEPTS IN THIS FILE (types.go):
  - Fund:        The pool - amount, duration, installment schedule, status
  - Membership:  Per (fund, member) withdrawal state and running totals
  - MemberGroup: A virtual member shared by several users by percentage
  - Payment:     An immutable contribution/bonus/withdrawal event
  - Receivable:  Expected-vs-paid entry for one member's one month (derived)
  - Payable:     An outbound disbursement record

DESIGN PRINCIPLES:
  1. Immutability: Payments and payables are never edited; corrections are
     new compensating entries
  2. Derivation: Receivable rows are produced only by the reconciler, and
     their status is a pure function of paid/expected/due-date
  3. Precision: All amounts are money.Money (exact fixed-point)
  4. Type safety: Typed IDs prevent mixing fund/user/group identifiers

SEE ALSO:
  - fund.go:       Fund validation and installment schedule
  - reconciler.go: Receivable derivation rules
  - withdrawal.go: The Active -> Withdrawn state machine
*/
package chit

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nidhi/chit-engine/money"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type FundID string
type UserID string
type GroupID string
type PaymentID string
type PayableID string

// NewPaymentID returns a fresh payment identity.
func NewPaymentID() PaymentID { return PaymentID(uuid.NewString()) }

// NewPayableID returns a fresh payable identity.
func NewPayableID() PayableID { return PayableID(uuid.NewString()) }

// NewBatchID tags all payments fanned out from one group distribution.
func NewBatchID() string { return uuid.NewString() }

// =============================================================================
// FUND
// =============================================================================

type FundStatus string

const (
	FundActive    FundStatus = "active"
	FundCompleted FundStatus = "completed"
	FundClosed    FundStatus = "closed"
)

// Fund is the pool definition.
//
// INVARIANT: MonthlyContribution * DurationMonths sums to PoolAmount exactly,
// with any rounding remainder carried by month 1 (see ScheduleForMonth).
type Fund struct {
	ID                  FundID
	Name                string
	PoolAmount          money.Money
	DurationMonths      int
	MemberCount         int
	StartDate           time.Time
	MonthlyContribution money.Money // Base installment (months 2..n when a remainder exists)
	MonthlyBonus        money.Money
	BaseCommission      money.Money
	Status              FundStatus
	CreatedAt           time.Time
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

// Membership is one member's position in one fund. Unique per (fund, user).
//
// INVARIANT: IsWithdrawn=true implies EarlyWithdrawalMonth is set and
// immutable - a membership is marked withdrawn exactly once.
type Membership struct {
	FundID               FundID
	UserID               UserID
	IsWithdrawn          bool
	EarlyWithdrawalMonth *int
	IncreasedMonthly     *money.Money // Per-member installment override, if any
	TotalBonusReceived   money.Money  // Monotonically non-decreasing
	TotalCommissionPaid  money.Money
	CreatedAt            time.Time
}

// =============================================================================
// MEMBER GROUP - a virtual member shared by percentage
// =============================================================================

// MemberGroup fills one membership slot collectively.
//
// INVARIANT: Share percentages sum to 100 within ShareEpsilon.
type MemberGroup struct {
	ID        GroupID
	Name      string
	Members   []GroupMember
	CreatedAt time.Time
}

type GroupMember struct {
	UserID          UserID
	SharePercentage decimal.Decimal // 0..100
}

// Allocation is one member's slice of a distributed group payment.
type Allocation struct {
	UserID UserID
	Amount money.Money
}

// =============================================================================
// PAYMENT - immutable event
// =============================================================================

type PaymentType string

const (
	PaymentMonthly    PaymentType = "monthly"
	PaymentBonus      PaymentType = "bonus"
	PaymentWithdrawal PaymentType = "withdrawal"
)

type PaymentMethod string

const (
	MethodCash         PaymentMethod = "cash"
	MethodBankTransfer PaymentMethod = "bank_transfer"
	MethodUPI          PaymentMethod = "upi"
	MethodCheque       PaymentMethod = "cheque"
)

// ValidMethod reports whether m is one of the enumerated payment methods.
func ValidMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodUPI, MethodCheque:
		return true
	}
	return false
}

// Payment records one contribution/bonus/withdrawal event. Immutable once
// created: corrections are new compensating entries, never in-place edits,
// because receivables are derived from payments and must stay traceable.
type Payment struct {
	ID          PaymentID
	UserID      UserID
	FundID      FundID
	Amount      money.Money
	MonthNumber int
	Type        PaymentType
	Method      PaymentMethod
	Commission  *money.Money // Only meaningful for withdrawal payments
	RecordedBy  string
	PaymentDate time.Time
	Notes       string
	BatchID     string // Shared by all payments of one group distribution
	CreatedAt   time.Time
}

// =============================================================================
// RECEIVABLE - derived, reconciler-owned
// =============================================================================

type ReceivableStatus string

const (
	ReceivablePending ReceivableStatus = "pending"
	ReceivablePartial ReceivableStatus = "partial"
	ReceivablePaid    ReceivableStatus = "paid"
	ReceivableOverdue ReceivableStatus = "overdue"
)

// Receivable is the expected-vs-paid entry for one member's one month.
// Unique per (fund, user, month). Never created directly by a client;
// always produced or updated by the reconciler from payments.
type Receivable struct {
	FundID         FundID
	UserID         UserID
	MonthNumber    int
	ExpectedAmount money.Money
	PaidAmount     money.Money
	Status         ReceivableStatus
	DueDate        time.Time
	UpdatedAt      time.Time
}

// DeriveReceivableStatus is the single source of truth for receivable status.
// Stored status must always agree with recomputing it through this function.
func DeriveReceivableStatus(expected, paid money.Money, dueDate, now time.Time) ReceivableStatus {
	switch {
	case paid.GreaterThanOrEqual(expected) && paid.IsPositive():
		return ReceivablePaid
	case paid.IsPositive():
		return ReceivablePartial
	case now.After(dueDate):
		return ReceivableOverdue
	default:
		return ReceivablePending
	}
}

// =============================================================================
// PAYABLE - outbound disbursement
// =============================================================================

type PayableType string

const (
	PayableBonus      PayableType = "bonus"
	PayableWithdrawal PayableType = "withdrawal"
	PayableCommission PayableType = "commission"
)

// Payable records an outbound disbursement. Created only as a side effect of
// the withdrawal processor or an explicit bonus disbursement; never
// user-editable after creation.
type Payable struct {
	ID         PayableID
	UserID     UserID
	FundID     FundID
	Type       PayableType
	Amount     money.Money
	Commission *money.Money
	PaidDate   time.Time
	RecordedBy string
	Notes      string
	CreatedAt  time.Time
}

// =============================================================================
// SYNC REPORT
// =============================================================================

// SyncReport summarizes one batch payment-to-receivable sync run.
type SyncReport struct {
	ReconciledCount int `json:"reconciled_count"`
	SkippedCount    int `json:"skipped_count"`
	ErrorCount      int `json:"error_count"`
}
