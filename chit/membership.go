/*
membership.go - Membership ledger: per (fund, member) state and totals

PURPOSE:
  Tracks each member's position in a fund. The uniqueness invariant - one
  membership per (fund, user) - is checked here and backed by a storage
  unique index, so concurrent AddMember calls cannot create silent
  duplicates.

WRITERS:
  - AddMember:    the only creator of memberships
  - RecordBonus:  increments TotalBonusReceived (monotonic) and writes the
                  bonus Payable for the disbursement
  - Processor.Withdraw (withdrawal.go): the ONLY writer of IsWithdrawn

SEE ALSO:
  - withdrawal.go: The Active -> Withdrawn transition
  - store.go:      The uniqueness contract
*/
package chit

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nidhi/chit-engine/money"
)

// MembershipLedger manages fund memberships and their running totals.
type MembershipLedger struct {
	store TxStore
	log   *logrus.Logger
}

func NewMembershipLedger(store TxStore, log *logrus.Logger) *MembershipLedger {
	return &MembershipLedger{store: store, log: log}
}

// AddMember enrolls a user in a fund. Fails with DuplicateMembershipError if
// the pair already exists.
func (l *MembershipLedger) AddMember(ctx context.Context, fundID FundID, userID UserID) (*Membership, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "userId", Reason: "must not be empty"}
	}
	fund, err := l.store.GetFund(ctx, fundID)
	if err != nil {
		return nil, &StorageError{Op: "get fund", Err: err}
	}
	if fund == nil {
		return nil, ErrFundNotFound
	}

	m := Membership{
		FundID:              fundID,
		UserID:              userID,
		TotalBonusReceived:  money.Zero,
		TotalCommissionPaid: money.Zero,
		CreatedAt:           time.Now().UTC(),
	}
	if err := l.store.CreateMembership(ctx, m); err != nil {
		if errors.Is(err, ErrDuplicateMembership) {
			return nil, &DuplicateMembershipError{FundID: fundID, UserID: userID}
		}
		return nil, &StorageError{Op: "create membership", Err: err}
	}

	l.log.WithFields(logrus.Fields{"fund_id": fundID, "user_id": userID}).Info("member added")
	return &m, nil
}

// SetInstallmentOverride records a per-member increased monthly amount.
func (l *MembershipLedger) SetInstallmentOverride(ctx context.Context, fundID FundID, userID UserID, amount money.Money) error {
	if !amount.IsPositive() {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	m, err := l.store.GetMembership(ctx, fundID, userID)
	if err != nil {
		return &StorageError{Op: "get membership", Err: err}
	}
	if m == nil {
		return ErrMembershipNotFound
	}
	m.IncreasedMonthly = &amount
	if err := l.store.UpdateMembership(ctx, *m); err != nil {
		return &StorageError{Op: "update membership", Err: err}
	}
	return nil
}

// RecordBonus disburses a bonus to a member: TotalBonusReceived is
// incremented and a bonus Payable is written, atomically.
func (l *MembershipLedger) RecordBonus(ctx context.Context, fundID FundID, userID UserID, amount money.Money, recordedBy string) (*Payable, error) {
	if !amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var payable *Payable
	err := l.store.WithTx(ctx, func(s Store) error {
		m, err := s.GetMembership(ctx, fundID, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return ErrMembershipNotFound
		}

		m.TotalBonusReceived = m.TotalBonusReceived.Add(amount)
		if err := s.UpdateMembership(ctx, *m); err != nil {
			return err
		}

		now := time.Now().UTC()
		p := Payable{
			ID:         NewPayableID(),
			UserID:     userID,
			FundID:     fundID,
			Type:       PayableBonus,
			Amount:     amount,
			PaidDate:   now,
			RecordedBy: recordedBy,
			CreatedAt:  now,
		}
		if err := s.InsertPayable(ctx, p); err != nil {
			return err
		}
		payable = &p
		return nil
	})
	if err != nil {
		if IsClientError(err) || IsNotFound(err) {
			return nil, err
		}
		return nil, &StorageError{Op: "record bonus", Err: err}
	}

	l.log.WithFields(logrus.Fields{
		"fund_id": fundID,
		"user_id": userID,
		"amount":  amount.String(),
	}).Info("bonus disbursed")
	return payable, nil
}

// GetMembership returns one membership, or ErrMembershipNotFound.
func (l *MembershipLedger) GetMembership(ctx context.Context, fundID FundID, userID UserID) (*Membership, error) {
	m, err := l.store.GetMembership(ctx, fundID, userID)
	if err != nil {
		return nil, &StorageError{Op: "get membership", Err: err}
	}
	if m == nil {
		return nil, ErrMembershipNotFound
	}
	return m, nil
}

// ListMembers returns all memberships of a fund.
func (l *MembershipLedger) ListMembers(ctx context.Context, fundID FundID) ([]Membership, error) {
	ms, err := l.store.ListMembershipsByFund(ctx, fundID)
	if err != nil {
		return nil, &StorageError{Op: "list memberships", Err: err}
	}
	return ms, nil
}
