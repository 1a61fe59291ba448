package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhi/chit-engine/chit"
	"github.com/nidhi/chit-engine/money"
	"github.com/nidhi/chit-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testFund(id string) chit.Fund {
	return chit.Fund{
		ID:                  chit.FundID(id),
		Name:                "fund " + id,
		PoolAmount:          money.MustParse("100000"),
		DurationMonths:      20,
		MemberCount:         20,
		StartDate:           time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		MonthlyContribution: money.MustParse("5000"),
		MonthlyBonus:        money.MustParse("100"),
		BaseCommission:      money.MustParse("5000"),
		Status:              chit.FundActive,
		CreatedAt:           time.Date(2025, time.January, 1, 9, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// ROUND-TRIP TESTS
// =============================================================================

func TestSQLite_FundRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	want := testFund("f1")
	require.NoError(t, st.SaveFund(ctx, want))

	got, err := st.GetFund(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, "100000.00", got.PoolAmount.String())
	assert.Equal(t, "5000.00", got.MonthlyContribution.String())
	assert.Equal(t, want.DurationMonths, got.DurationMonths)
	assert.True(t, want.StartDate.Equal(got.StartDate))
	assert.Equal(t, chit.FundActive, got.Status)

	missing, err := st.GetFund(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSQLite_SaveFund_UpdatesStatus(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	f := testFund("f1")
	require.NoError(t, st.SaveFund(ctx, f))

	f.Status = chit.FundClosed
	require.NoError(t, st.SaveFund(ctx, f))

	got, err := st.GetFund(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, chit.FundClosed, got.Status)

	funds, err := st.ListFunds(ctx)
	require.NoError(t, err)
	assert.Len(t, funds, 1, "upsert, not a second row")
}

func TestSQLite_MembershipUniqueness(t *testing.T) {
	// GIVEN: A stored (fund, user) membership
	// WHEN: Inserting the same pair again
	// THEN: The unique index surfaces ErrDuplicateMembership

	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveFund(ctx, testFund("f1")))

	m := chit.Membership{
		FundID:              "f1",
		UserID:              "u1",
		TotalBonusReceived:  money.Zero,
		TotalCommissionPaid: money.Zero,
		CreatedAt:           time.Now().UTC(),
	}
	require.NoError(t, st.CreateMembership(ctx, m))

	err := st.CreateMembership(ctx, m)
	assert.ErrorIs(t, err, chit.ErrDuplicateMembership)
}

func TestSQLite_MembershipNullableFields(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveFund(ctx, testFund("f1")))

	month := 5
	override := money.MustParse("7500")
	m := chit.Membership{
		FundID:               "f1",
		UserID:               "u1",
		IsWithdrawn:          true,
		EarlyWithdrawalMonth: &month,
		IncreasedMonthly:     &override,
		TotalBonusReceived:   money.MustParse("300"),
		TotalCommissionPaid:  money.MustParse("5000"),
		CreatedAt:            time.Now().UTC(),
	}
	require.NoError(t, st.CreateMembership(ctx, m))

	got, err := st.GetMembership(ctx, "f1", "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsWithdrawn)
	require.NotNil(t, got.EarlyWithdrawalMonth)
	assert.Equal(t, 5, *got.EarlyWithdrawalMonth)
	require.NotNil(t, got.IncreasedMonthly)
	assert.Equal(t, "7500.00", got.IncreasedMonthly.String())
}

func TestSQLite_UpdateMembership_MissingRow(t *testing.T) {
	st := newTestStore(t)
	err := st.UpdateMembership(context.Background(), chit.Membership{
		FundID: "f1", UserID: "ghost",
		TotalBonusReceived: money.Zero, TotalCommissionPaid: money.Zero,
	})
	assert.ErrorIs(t, err, chit.ErrMembershipNotFound)
}

func TestSQLite_GroupRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	g := chit.MemberGroup{
		ID:   "g1",
		Name: "slot",
		Members: []chit.GroupMember{
			{UserID: "u1", SharePercentage: decimal.RequireFromString("50")},
			{UserID: "u2", SharePercentage: decimal.RequireFromString("30")},
			{UserID: "u3", SharePercentage: decimal.RequireFromString("20")},
		},
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.SaveGroup(ctx, g))

	got, err := st.GetGroup(ctx, "g1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "slot", got.Name)
	require.Len(t, got.Members, 3)
	assert.Equal(t, chit.UserID("u1"), got.Members[0].UserID)
	assert.True(t, got.Members[0].SharePercentage.Equal(decimal.RequireFromString("50")))
}

func TestSQLite_PaymentsOrderedByCreation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, st.SaveFund(ctx, testFund("f1")))

	base := time.Date(2025, time.February, 1, 10, 0, 0, 0, time.UTC)
	ids := []chit.PaymentID{"p1", "p2", "p3"}
	for i, id := range ids {
		commission := money.MustParse("10")
		p := chit.Payment{
			ID:          id,
			UserID:      "u1",
			FundID:      "f1",
			Amount:      money.MustParse("5000"),
			MonthNumber: i + 1,
			Type:        chit.PaymentMonthly,
			Method:      chit.MethodCash,
			Commission:  &commission,
			RecordedBy:  "collector",
			PaymentDate: base,
			Notes:       "note",
			BatchID:     "b1",
			CreatedAt:   base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, st.InsertPayment(ctx, p))
	}

	got, err := st.ListPaymentsByType(ctx, chit.PaymentMonthly)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, id := range ids {
		assert.Equal(t, id, got[i].ID, "stable ascending creation order")
	}
	require.NotNil(t, got[0].Commission)
	assert.Equal(t, "10.00", got[0].Commission.String())
	assert.Equal(t, "b1", got[0].BatchID)
}

func TestSQLite_ReceivableUpsert(t *testing.T) {
	// GIVEN: A receivable row for (f1, u1, month 1)
	// WHEN: Upserting the same key with a new paid amount
	// THEN: The single row is updated in place

	st := newTestStore(t)
	ctx := context.Background()

	r := chit.Receivable{
		FundID:         "f1",
		UserID:         "u1",
		MonthNumber:    1,
		ExpectedAmount: money.MustParse("5000"),
		PaidAmount:     money.MustParse("2000"),
		Status:         chit.ReceivablePartial,
		DueDate:        time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, st.UpsertReceivable(ctx, r))

	r.PaidAmount = money.MustParse("5000")
	r.Status = chit.ReceivablePaid
	require.NoError(t, st.UpsertReceivable(ctx, r))

	rows, err := st.ListReceivablesByFund(ctx, "f1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "5000.00", rows[0].PaidAmount.String())
	assert.Equal(t, chit.ReceivablePaid, rows[0].Status)
}

func TestSQLite_ReconciliationJunction(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	done, err := st.IsPaymentReconciled(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, st.MarkPaymentReconciled(ctx, "p1", "f1", "u1", 1))

	done, err = st.IsPaymentReconciled(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, done)

	err = st.MarkPaymentReconciled(ctx, "p1", "f1", "u1", 1)
	assert.ErrorIs(t, err, chit.ErrConcurrencyConflict, "double mark is a conflict")
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction writing a fund and a membership
	// WHEN: The unit of work fails after both writes
	// THEN: Neither row survives

	st := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(s chit.Store) error {
		if err := s.SaveFund(ctx, testFund("f1")); err != nil {
			return err
		}
		m := chit.Membership{
			FundID: "f1", UserID: "u1",
			TotalBonusReceived: money.Zero, TotalCommissionPaid: money.Zero,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.CreateMembership(ctx, m); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	fund, err := st.GetFund(ctx, "f1")
	require.NoError(t, err)
	assert.Nil(t, fund)
	membership, err := st.GetMembership(ctx, "f1", "u1")
	require.NoError(t, err)
	assert.Nil(t, membership)
}

func TestSQLite_WithTx_CommitsOnSuccess(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	err := st.WithTx(ctx, func(s chit.Store) error {
		return s.SaveFund(ctx, testFund("f1"))
	})
	require.NoError(t, err)

	fund, err := st.GetFund(ctx, "f1")
	require.NoError(t, err)
	assert.NotNil(t, fund)
}
