/*
withdrawal.go - One-time withdrawal payout processing

PURPOSE:
  Per membership the state machine is Active -> Withdrawn, and Withdrawn is
  terminal. A second withdrawal attempt always fails with
  AlreadyWithdrawnError and leaves state unchanged.

TRANSITION (single transaction, all-or-nothing):
  1. Reject if already withdrawn.
  2. Reject if commission >= pool amount (payout would be <= 0).
  3. payout = poolAmount - commission, computed exactly.
  4. Atomically: mark the membership withdrawn, accumulate its commission
     total, write the withdrawal Payable, and record the withdrawal Payment -
     which reconciles the member's receivable for that month as paid in
     full.

  A membership marked withdrawn without its payable (or vice versa) is a
  correctness violation; WithTx rolls back every prior write on failure.

SEE ALSO:
  - recorder.go:   recordIn (payment creation within this transaction)
  - membership.go: The state this is the only writer of
*/
package chit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nidhi/chit-engine/money"
)

// Processor executes withdrawal payouts. It is the only writer of
// Membership.IsWithdrawn.
type Processor struct {
	store    TxStore
	recorder *Recorder
	log      *logrus.Logger
}

func NewProcessor(store TxStore, recorder *Recorder, log *logrus.Logger) *Processor {
	return &Processor{store: store, recorder: recorder, log: log}
}

// Withdraw pays out the pool to one member. Eligibility is a business-rule
// check only; the caller is expected to already be authorized.
func (p *Processor) Withdraw(ctx context.Context, fundID FundID, userID UserID, month int, commission money.Money, recordedBy string) (*Payable, *Payment, error) {
	if recordedBy == "" {
		return nil, nil, &ValidationError{Field: "recordedBy", Reason: "must not be empty"}
	}
	if commission.IsNegative() {
		return nil, nil, &ValidationError{Field: "commissionAmount", Reason: "must not be negative"}
	}

	var (
		payable *Payable
		payment *Payment
	)
	err := p.store.WithTx(ctx, func(s Store) error {
		fund, err := s.GetFund(ctx, fundID)
		if err != nil {
			return err
		}
		if fund == nil {
			return ErrFundNotFound
		}
		if month < 1 || month > fund.DurationMonths {
			return &ValidationError{Field: "month", Reason: "outside the fund duration"}
		}

		membership, err := s.GetMembership(ctx, fundID, userID)
		if err != nil {
			return err
		}
		if membership == nil {
			return ErrMembershipNotFound
		}
		if membership.IsWithdrawn {
			withdrawnMonth := 0
			if membership.EarlyWithdrawalMonth != nil {
				withdrawnMonth = *membership.EarlyWithdrawalMonth
			}
			return &AlreadyWithdrawnError{FundID: fundID, UserID: userID, WithdrawalMonth: withdrawnMonth}
		}

		if commission.GreaterThanOrEqual(fund.PoolAmount) {
			return ErrInvalidCommission
		}
		payout := fund.PoolAmount.Sub(commission)
		now := time.Now().UTC()

		// The withdrawal payment settles the member's installment for the
		// payout month, so the receivable for that month shows paid in full.
		// Recorded before the membership flag flips: the recorder rejects
		// withdrawal payments for already-withdrawn members.
		installment, err := fund.ScheduleForMonth(month, membership)
		if err != nil {
			return err
		}
		commissionCopy := commission
		payment, err = p.recorder.recordIn(ctx, s, RecordPaymentInput{
			UserID:      userID,
			FundID:      fundID,
			Amount:      installment,
			MonthNumber: month,
			Type:        PaymentWithdrawal,
			Method:      MethodBankTransfer,
			Commission:  &commissionCopy,
			RecordedBy:  recordedBy,
			PaymentDate: now,
			Notes:       "withdrawal payout settlement",
		})
		if err != nil {
			return err
		}

		withdrawalMonth := month
		membership.IsWithdrawn = true
		membership.EarlyWithdrawalMonth = &withdrawalMonth
		membership.TotalCommissionPaid = membership.TotalCommissionPaid.Add(commission)
		if err := s.UpdateMembership(ctx, *membership); err != nil {
			return err
		}

		pay := Payable{
			ID:         NewPayableID(),
			UserID:     userID,
			FundID:     fundID,
			Type:       PayableWithdrawal,
			Amount:     payout,
			Commission: &commission,
			PaidDate:   now,
			RecordedBy: recordedBy,
			CreatedAt:  now,
		}
		if err := s.InsertPayable(ctx, pay); err != nil {
			return err
		}
		payable = &pay
		return nil
	})
	if err != nil {
		if IsClientError(err) || IsNotFound(err) {
			return nil, nil, err
		}
		return nil, nil, &StorageError{Op: "withdraw", Err: err}
	}

	p.recorder.emit(ctx, *payment)
	p.log.WithFields(logrus.Fields{
		"fund_id":    fundID,
		"user_id":    userID,
		"month":      month,
		"payout":     payable.Amount.String(),
		"commission": commission.String(),
	}).Info("withdrawal processed")
	return payable, payment, nil
}
