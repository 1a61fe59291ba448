package chit_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhi/chit-engine/chit"
	"github.com/nidhi/chit-engine/chit/store"
	"github.com/nidhi/chit-engine/money"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*chit.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	log := logrus.New()
	log.SetOutput(io.Discard)
	return chit.NewEngine(mem, log), mem
}

func newTestFund(t *testing.T, engine *chit.Engine, pool string, months, memberCount int) *chit.Fund {
	t.Helper()
	fund, err := engine.Funds.CreateFund(context.Background(), chit.FundSpec{
		Name:           "test fund",
		PoolAmount:     money.MustParse(pool),
		DurationMonths: months,
		MemberCount:    memberCount,
		StartDate:      time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return fund
}

func enroll(t *testing.T, engine *chit.Engine, fundID chit.FundID, userID string) *chit.Membership {
	t.Helper()
	m, err := engine.Members.AddMember(context.Background(), fundID, chit.UserID(userID))
	require.NoError(t, err)
	return m
}

// =============================================================================
// SCHEDULE TESTS
// =============================================================================

func TestFund_Schedule_EvenDivision(t *testing.T) {
	// GIVEN: A 100000 pool over 20 months
	// WHEN: Computing the installment for every month
	// THEN: Each month is exactly 5000.00

	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 20, 20)

	for n := 1; n <= 20; n++ {
		installment, err := fund.ScheduleForMonth(n, nil)
		require.NoError(t, err)
		assert.Equal(t, "5000.00", installment.String(), "month %d", n)
	}
}

func TestFund_Schedule_RemainderToFirstMonth(t *testing.T) {
	// GIVEN: A 100000 pool over 3 months (does not divide evenly)
	// WHEN: Computing the schedule
	// THEN: Month 1 carries the remainder; the months sum to the pool exactly

	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 3, 3)

	m1, err := fund.ScheduleForMonth(1, nil)
	require.NoError(t, err)
	m2, err := fund.ScheduleForMonth(2, nil)
	require.NoError(t, err)
	m3, err := fund.ScheduleForMonth(3, nil)
	require.NoError(t, err)

	assert.Equal(t, "33334.00", m1.String())
	assert.Equal(t, "33333.00", m2.String())
	assert.Equal(t, "33333.00", m3.String())
	assert.Equal(t, "100000.00", m1.Add(m2).Add(m3).String())
}

func TestFund_Schedule_MemberOverrideWins(t *testing.T) {
	// GIVEN: A member with an increased monthly amount
	// WHEN: Computing their installment
	// THEN: The override replaces the derived schedule for every month

	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 20, 20)
	m := enroll(t, engine, fund.ID, "user-1")

	err := engine.Members.SetInstallmentOverride(context.Background(), fund.ID, m.UserID, money.MustParse("7500"))
	require.NoError(t, err)

	updated, err := engine.Members.GetMembership(context.Background(), fund.ID, m.UserID)
	require.NoError(t, err)

	installment, err := fund.ScheduleForMonth(5, updated)
	require.NoError(t, err)
	assert.Equal(t, "7500.00", installment.String())
}

func TestFund_Schedule_ExplicitContribution(t *testing.T) {
	// GIVEN: A 100000 pool over 3 months with an explicit 33333 contribution
	// WHEN: Computing the schedule and reconciling a month-2 payment
	// THEN: Months 2-3 owe the supplied amount, month 1 owes the rest of the
	//       pool, and the receivable expects the supplied amount

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	contribution := money.MustParse("33333")
	fund, err := engine.Funds.CreateFund(ctx, chit.FundSpec{
		Name:                "explicit",
		PoolAmount:          money.MustParse("100000"),
		DurationMonths:      3,
		MemberCount:         3,
		StartDate:           time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		MonthlyContribution: &contribution,
	})
	require.NoError(t, err)
	assert.Equal(t, "33333.00", fund.MonthlyContribution.String())

	m1, err := fund.ScheduleForMonth(1, nil)
	require.NoError(t, err)
	m2, err := fund.ScheduleForMonth(2, nil)
	require.NoError(t, err)
	m3, err := fund.ScheduleForMonth(3, nil)
	require.NoError(t, err)
	assert.Equal(t, "33334.00", m1.String())
	assert.Equal(t, "33333.00", m2.String())
	assert.Equal(t, "33333.00", m3.String())
	assert.Equal(t, "100000.00", m1.Add(m2).Add(m3).String())

	enroll(t, engine, fund.ID, "user-1")
	recordMonthly(t, engine, fund.ID, "user-1", 2, "33333")

	rows, err := engine.Reconciler.ReceivablesByFund(ctx, fund.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "33333.00", rows[0].ExpectedAmount.String())
	assert.Equal(t, chit.ReceivablePaid, rows[0].Status)
}

func TestNewFund_ExplicitContributionMustMatchPool(t *testing.T) {
	// GIVEN: A 100000 pool over 20 months
	// WHEN: Supplying a 6000 contribution (would collect 120000)
	// THEN: The spec is rejected; the consistent 5000 is accepted

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	spec := chit.FundSpec{
		Name:           "override",
		PoolAmount:     money.MustParse("100000"),
		DurationMonths: 20,
		MemberCount:    20,
		StartDate:      time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}

	bad := money.MustParse("6000")
	spec.MonthlyContribution = &bad
	var ve *chit.ValidationError
	_, err := engine.Funds.CreateFund(ctx, spec)
	assert.ErrorAs(t, err, &ve)

	good := money.MustParse("5000")
	spec.MonthlyContribution = &good
	_, err = engine.Funds.CreateFund(ctx, spec)
	assert.NoError(t, err)
}

func TestFund_Schedule_MonthOutOfRange(t *testing.T) {
	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 20, 20)

	var ve *chit.ValidationError
	_, err := fund.ScheduleForMonth(0, nil)
	assert.ErrorAs(t, err, &ve)
	_, err = fund.ScheduleForMonth(21, nil)
	assert.ErrorAs(t, err, &ve)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestFundSpec_Validate_Rejections(t *testing.T) {
	base := chit.FundSpec{
		Name:           "f",
		PoolAmount:     money.MustParse("1000"),
		DurationMonths: 10,
		MemberCount:    10,
		StartDate:      time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	cases := []struct {
		name   string
		mutate func(*chit.FundSpec)
	}{
		{"empty name", func(s *chit.FundSpec) { s.Name = "" }},
		{"zero pool", func(s *chit.FundSpec) { s.PoolAmount = money.Zero }},
		{"zero duration", func(s *chit.FundSpec) { s.DurationMonths = 0 }},
		{"one member", func(s *chit.FundSpec) { s.MemberCount = 1 }},
		{"no start date", func(s *chit.FundSpec) { s.StartDate = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			spec := base
			tc.mutate(&spec)
			var ve *chit.ValidationError
			assert.ErrorAs(t, spec.Validate(), &ve)
		})
	}
}

// =============================================================================
// STATUS TESTS
// =============================================================================

func TestFund_RecomputeStatus(t *testing.T) {
	// GIVEN: A 3-month fund started January 2025 with two members
	// WHEN: Recomputing status at different points in time
	// THEN: Active until elapsed AND everyone withdrew; closed is sticky

	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 3, 2)

	withdrawn := chit.Membership{FundID: fund.ID, UserID: "u1", IsWithdrawn: true}
	active := chit.Membership{FundID: fund.ID, UserID: "u2"}

	during := time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC)
	after := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, chit.FundActive,
		fund.RecomputeStatus(during, []chit.Membership{withdrawn, active}))
	assert.Equal(t, chit.FundActive,
		fund.RecomputeStatus(after, []chit.Membership{withdrawn, active}),
		"a non-withdrawn member keeps the fund active")
	assert.Equal(t, chit.FundCompleted,
		fund.RecomputeStatus(after, []chit.Membership{withdrawn, {FundID: fund.ID, UserID: "u2", IsWithdrawn: true}}))
	assert.Equal(t, chit.FundActive,
		fund.RecomputeStatus(after, nil), "no memberships, nothing completed")

	fund.Status = chit.FundClosed
	assert.Equal(t, chit.FundClosed, fund.RecomputeStatus(during, nil), "closed is sticky")
}

func TestFundRegistry_CloseFund(t *testing.T) {
	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 3, 2)
	ctx := context.Background()

	require.NoError(t, engine.Funds.CloseFund(ctx, fund.ID))

	got, err := engine.Funds.GetFund(ctx, fund.ID)
	require.NoError(t, err)
	assert.Equal(t, chit.FundClosed, got.Status)

	err = engine.Funds.CloseFund(ctx, chit.FundID("missing"))
	assert.ErrorIs(t, err, chit.ErrFundNotFound)
}

// =============================================================================
// MEMBERSHIP TESTS
// =============================================================================

func TestMembershipLedger_DuplicateRejected(t *testing.T) {
	// GIVEN: user-1 is already enrolled
	// WHEN: Enrolling user-1 again
	// THEN: DuplicateMembershipError; no second row appears

	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 20, 20)
	ctx := context.Background()

	enroll(t, engine, fund.ID, "user-1")

	_, err := engine.Members.AddMember(ctx, fund.ID, "user-1")
	var dup *chit.DuplicateMembershipError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, chit.ErrDuplicateMembership)

	members, err := engine.Members.ListMembers(ctx, fund.ID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestMembershipLedger_RecordBonus(t *testing.T) {
	// GIVEN: An enrolled member
	// WHEN: Disbursing a 500 bonus
	// THEN: TotalBonusReceived grows and a bonus payable is written; no
	//       receivable is ever created by a bonus

	engine, _ := newTestEngine(t)
	fund := newTestFund(t, engine, "100000", 20, 20)
	ctx := context.Background()
	enroll(t, engine, fund.ID, "user-1")

	payable, err := engine.Members.RecordBonus(ctx, fund.ID, "user-1", money.MustParse("500"), "admin")
	require.NoError(t, err)
	assert.Equal(t, chit.PayableBonus, payable.Type)
	assert.Equal(t, "500.00", payable.Amount.String())

	m, err := engine.Members.GetMembership(ctx, fund.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "500.00", m.TotalBonusReceived.String())

	receivables, err := engine.Reconciler.ReceivablesByFund(ctx, fund.ID)
	require.NoError(t, err)
	assert.Empty(t, receivables)
}
