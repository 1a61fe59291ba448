/*
recorder.go - Payment recorder: validate, persist, reconcile, notify

PURPOSE:
  The single entry point for contribution/bonus/withdrawal events. On
  success the immutable payment row is persisted and - for monthly and
  withdrawal types - the receivable is reconciled synchronously in the same
  transaction. Bonus payments never create receivables; they only grow the
  membership's bonus total.

EVENTS:
  After commit, a "payment recorded" domain event is emitted to subscribed
  sinks. The recorder never performs notification delivery itself; sinks are
  the integration point for the external notification collaborator.

VALIDATION:
  - amount > 0
  - monthNumber within [1, durationMonths]
  - enumerated payment type and method
  - withdrawal payments: member not already withdrawn, commission present

SEE ALSO:
  - reconciler.go:  applyToReceivable (shared transaction step)
  - withdrawal.go:  Builds the withdrawal payment through recordIn so the
                    whole payout is one transaction
*/
package chit

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nidhi/chit-engine/money"
)

// EventSink receives domain events after the transaction that produced them
// has committed. Implementations must not block.
type EventSink interface {
	PaymentRecorded(ctx context.Context, p Payment)
}

// RecordPaymentInput is the validated request shape for RecordPayment.
type RecordPaymentInput struct {
	UserID      UserID
	FundID      FundID
	Amount      money.Money
	MonthNumber int
	Type        PaymentType
	Method      PaymentMethod
	Commission  *money.Money
	RecordedBy  string
	PaymentDate time.Time
	Notes       string
	BatchID     string
}

// Recorder validates and persists payment events.
type Recorder struct {
	store TxStore
	log   *logrus.Logger
	sinks []EventSink
}

func NewRecorder(store TxStore, log *logrus.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

// Subscribe registers an event sink. Not safe to call concurrently with
// RecordPayment; wire sinks at startup.
func (r *Recorder) Subscribe(sink EventSink) {
	r.sinks = append(r.sinks, sink)
}

// RecordPayment persists one payment and synchronously reconciles its
// receivable, all inside a single transaction.
func (r *Recorder) RecordPayment(ctx context.Context, input RecordPaymentInput) (*Payment, error) {
	var payment *Payment
	err := r.store.WithTx(ctx, func(s Store) error {
		p, err := r.recordIn(ctx, s, input)
		if err != nil {
			return err
		}
		payment = p
		return nil
	})
	if err != nil {
		if IsClientError(err) || IsNotFound(err) {
			return nil, err
		}
		return nil, &StorageError{Op: "record payment", Err: err}
	}

	r.emit(ctx, *payment)
	r.log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"fund_id":    payment.FundID,
		"user_id":    payment.UserID,
		"type":       payment.Type,
		"month":      payment.MonthNumber,
		"amount":     payment.Amount.String(),
	}).Info("payment recorded")
	return payment, nil
}

// PaymentsByFund is the reporting projection, including group batch ids.
func (r *Recorder) PaymentsByFund(ctx context.Context, fundID FundID) ([]Payment, error) {
	rows, err := r.store.ListPaymentsByFund(ctx, fundID)
	if err != nil {
		return nil, &StorageError{Op: "list payments", Err: err}
	}
	return rows, nil
}

// recordIn validates and writes one payment within an existing transaction.
// The withdrawal processor and group distributor call this so their multi-row
// units of work stay atomic.
func (r *Recorder) recordIn(ctx context.Context, s Store, input RecordPaymentInput) (*Payment, error) {
	if !input.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	switch input.Type {
	case PaymentMonthly, PaymentBonus, PaymentWithdrawal:
	default:
		return nil, &ValidationError{Field: "paymentType", Reason: "must be monthly, bonus, or withdrawal"}
	}
	if !ValidMethod(input.Method) {
		return nil, &ValidationError{Field: "paymentMethod", Reason: "unknown method"}
	}
	if input.RecordedBy == "" {
		return nil, &ValidationError{Field: "recordedBy", Reason: "must not be empty"}
	}

	fund, err := s.GetFund(ctx, input.FundID)
	if err != nil {
		return nil, err
	}
	if fund == nil {
		return nil, ErrFundNotFound
	}
	if input.MonthNumber < 1 || input.MonthNumber > fund.DurationMonths {
		return nil, &ValidationError{Field: "monthNumber", Reason: "outside the fund duration"}
	}

	membership, err := s.GetMembership(ctx, input.FundID, input.UserID)
	if err != nil {
		return nil, err
	}
	if membership == nil {
		return nil, ErrMembershipNotFound
	}

	if input.Type == PaymentWithdrawal {
		if membership.IsWithdrawn {
			month := 0
			if membership.EarlyWithdrawalMonth != nil {
				month = *membership.EarlyWithdrawalMonth
			}
			return nil, &AlreadyWithdrawnError{FundID: input.FundID, UserID: input.UserID, WithdrawalMonth: month}
		}
		if input.Commission == nil {
			return nil, &ValidationError{Field: "commission", Reason: "required for withdrawal payments"}
		}
	}

	now := time.Now().UTC()
	paymentDate := input.PaymentDate
	if paymentDate.IsZero() {
		paymentDate = now
	}

	p := Payment{
		ID:          NewPaymentID(),
		UserID:      input.UserID,
		FundID:      input.FundID,
		Amount:      input.Amount,
		MonthNumber: input.MonthNumber,
		Type:        input.Type,
		Method:      input.Method,
		Commission:  input.Commission,
		RecordedBy:  input.RecordedBy,
		PaymentDate: paymentDate,
		Notes:       input.Notes,
		BatchID:     input.BatchID,
		CreatedAt:   now,
	}
	if err := s.InsertPayment(ctx, p); err != nil {
		return nil, err
	}

	switch p.Type {
	case PaymentBonus:
		membership.TotalBonusReceived = membership.TotalBonusReceived.Add(p.Amount)
		if err := s.UpdateMembership(ctx, *membership); err != nil {
			return nil, err
		}
	default:
		if err := applyToReceivable(ctx, s, p, now); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// emit fans the committed payment out to all sinks.
func (r *Recorder) emit(ctx context.Context, p Payment) {
	for _, sink := range r.sinks {
		sink.PaymentRecorded(ctx, p)
	}
}
