/*
fund.go - Fund model: validation, installment schedule, status lifecycle

PURPOSE:
  A fund is a pool of PoolAmount collected over DurationMonths. The monthly
  installment is PoolAmount/DurationMonths computed with exact division:
  any rounding remainder is carried by month 1 so the installments always
  sum back to the pool exactly.

STATUS LIFECYCLE:
  active -> completed   when the duration has elapsed and no eligible
                        non-withdrawn member remains (pure recompute)
  active -> closed      administrative override only

  Status is a pure function of (now, duration, memberships); it is never
  imperatively toggled anywhere else.

SEE ALSO:
  - money/money.go: Split (exact division with remainder)
  - membership.go:  The memberships consulted by the status recompute
*/
package chit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nidhi/chit-engine/money"
)

// =============================================================================
// FUND SPEC + VALIDATION
// =============================================================================

// FundSpec is the input to CreateFund.
type FundSpec struct {
	Name           string
	PoolAmount     money.Money
	DurationMonths int
	MemberCount    int
	StartDate      time.Time
	// MonthlyContribution overrides the derived installment when set.
	MonthlyContribution *money.Money
	MonthlyBonus        money.Money
	BaseCommission      money.Money
}

// Validate checks the spec's shape and ranges.
func (s FundSpec) Validate() error {
	if s.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if !s.PoolAmount.IsPositive() {
		return &ValidationError{Field: "poolAmount", Reason: "must be positive"}
	}
	if s.DurationMonths < 1 {
		return &ValidationError{Field: "durationMonths", Reason: "must be at least 1"}
	}
	if s.MemberCount < 2 {
		return &ValidationError{Field: "memberCount", Reason: "must be at least 2"}
	}
	if s.StartDate.IsZero() {
		return &ValidationError{Field: "startDate", Reason: "must be set"}
	}
	return nil
}

// NewFund builds a Fund from a validated spec. When no explicit contribution
// is supplied the installment is derived by exact division. Either way the
// stored value is the BASE installment (months 2..n) and month 1 carries
// whatever remains of the pool - see ScheduleForMonth. An explicit
// contribution must stay consistent with the pool over the duration.
func NewFund(spec FundSpec) (*Fund, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	contribution := money.Zero
	if spec.MonthlyContribution != nil {
		contribution = *spec.MonthlyContribution
		if !contribution.IsPositive() {
			return nil, &ValidationError{Field: "monthlyContribution", Reason: "must be positive"}
		}
		if err := validateContribution(contribution, spec.PoolAmount, spec.DurationMonths); err != nil {
			return nil, err
		}
	} else {
		parts := spec.PoolAmount.Split(spec.DurationMonths)
		contribution = parts[len(parts)-1] // base installment; parts[0] carries the remainder
	}

	return &Fund{
		ID:                  FundID(uuid.NewString()),
		Name:                spec.Name,
		PoolAmount:          spec.PoolAmount,
		DurationMonths:      spec.DurationMonths,
		MemberCount:         spec.MemberCount,
		StartDate:           spec.StartDate,
		MonthlyContribution: contribution,
		MonthlyBonus:        spec.MonthlyBonus,
		BaseCommission:      spec.BaseCommission,
		Status:              FundActive,
		CreatedAt:           time.Now().UTC(),
	}, nil
}

// validateContribution rejects an explicit contribution whose schedule would
// stray from the pool: the total over the full duration may diverge by less
// than one whole unit per month, and month 1 (which absorbs the difference)
// must still owe a positive amount.
func validateContribution(c, pool money.Money, months int) error {
	drift := pool.Sub(c.MulInt(int64(months)))
	if drift.IsNegative() {
		drift = drift.Neg()
	}
	if drift.GreaterThanOrEqual(money.FromInt(int64(months))) {
		return &ValidationError{
			Field:  "monthlyContribution",
			Reason: fmt.Sprintf("%s over %d months does not add up to the pool %s", c, months, pool),
		}
	}
	if !pool.Sub(c.MulInt(int64(months - 1))).IsPositive() {
		return &ValidationError{
			Field:  "monthlyContribution",
			Reason: "leaves no positive first installment",
		}
	}
	return nil
}

// =============================================================================
// SCHEDULE
// =============================================================================

// ScheduleForMonth returns the expected per-member contribution for month n
// (1-based). Months 2..DurationMonths owe the fund's stored contribution;
// month 1 owes whatever remains of the pool, so the schedule sums to
// PoolAmount exactly whether the contribution was derived or supplied.
// A membership with an installment override is consulted first.
func (f *Fund) ScheduleForMonth(n int, m *Membership) (money.Money, error) {
	if n < 1 || n > f.DurationMonths {
		return money.Zero, &ValidationError{
			Field:  "monthNumber",
			Reason: fmt.Sprintf("must be within [1, %d]", f.DurationMonths),
		}
	}
	if m != nil && m.IncreasedMonthly != nil {
		return *m.IncreasedMonthly, nil
	}
	if n == 1 {
		return f.PoolAmount.Sub(f.MonthlyContribution.MulInt(int64(f.DurationMonths - 1))), nil
	}
	return f.MonthlyContribution, nil
}

// DueDateForMonth returns the due date of month n's installment.
func (f *Fund) DueDateForMonth(n int) time.Time {
	return f.StartDate.AddDate(0, n-1, 0)
}

// =============================================================================
// STATUS
// =============================================================================

// RecomputeStatus derives the fund's status. Closed is sticky (it is an
// administrative override); otherwise the fund completes once the duration
// has elapsed and every membership has withdrawn.
func (f *Fund) RecomputeStatus(now time.Time, memberships []Membership) FundStatus {
	if f.Status == FundClosed {
		return FundClosed
	}
	elapsed := !now.Before(f.StartDate.AddDate(0, f.DurationMonths, 0))
	if !elapsed {
		return FundActive
	}
	for _, m := range memberships {
		if !m.IsWithdrawn {
			return FundActive
		}
	}
	if len(memberships) == 0 {
		return FundActive
	}
	return FundCompleted
}

// =============================================================================
// FUND REGISTRY - persistence-facing fund operations
// =============================================================================

// FundRegistry creates and reads funds. Reads recompute status rather than
// trusting the stored value.
type FundRegistry struct {
	store TxStore
	log   *logrus.Logger
}

func NewFundRegistry(store TxStore, log *logrus.Logger) *FundRegistry {
	return &FundRegistry{store: store, log: log}
}

// CreateFund validates, builds, and persists a fund.
func (r *FundRegistry) CreateFund(ctx context.Context, spec FundSpec) (*Fund, error) {
	fund, err := NewFund(spec)
	if err != nil {
		return nil, err
	}
	if err := r.store.SaveFund(ctx, *fund); err != nil {
		return nil, &StorageError{Op: "create fund", Err: err}
	}
	r.log.WithFields(logrus.Fields{
		"fund_id":  fund.ID,
		"pool":     fund.PoolAmount.String(),
		"duration": fund.DurationMonths,
	}).Info("fund created")
	return fund, nil
}

// GetFund returns a fund with its status recomputed against its memberships.
func (r *FundRegistry) GetFund(ctx context.Context, id FundID) (*Fund, error) {
	fund, err := r.store.GetFund(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "get fund", Err: err}
	}
	if fund == nil {
		return nil, ErrFundNotFound
	}
	memberships, err := r.store.ListMembershipsByFund(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "list memberships", Err: err}
	}
	fund.Status = fund.RecomputeStatus(time.Now().UTC(), memberships)
	return fund, nil
}

// ListFunds returns all funds with recomputed statuses.
func (r *FundRegistry) ListFunds(ctx context.Context) ([]Fund, error) {
	funds, err := r.store.ListFunds(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list funds", Err: err}
	}
	now := time.Now().UTC()
	for i := range funds {
		memberships, err := r.store.ListMembershipsByFund(ctx, funds[i].ID)
		if err != nil {
			return nil, &StorageError{Op: "list memberships", Err: err}
		}
		funds[i].Status = funds[i].RecomputeStatus(now, memberships)
	}
	return funds, nil
}

// CloseFund applies the administrative override.
func (r *FundRegistry) CloseFund(ctx context.Context, id FundID) error {
	fund, err := r.store.GetFund(ctx, id)
	if err != nil {
		return &StorageError{Op: "get fund", Err: err}
	}
	if fund == nil {
		return ErrFundNotFound
	}
	fund.Status = FundClosed
	if err := r.store.SaveFund(ctx, *fund); err != nil {
		return &StorageError{Op: "close fund", Err: err}
	}
	r.log.WithField("fund_id", id).Info("fund closed by administrator")
	return nil
}
