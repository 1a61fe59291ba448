/*
reconciler.go - Receivable derivation from payments (idempotent)

PURPOSE:
  Receivable rows are keyed uniquely by (fund, user, month) and exist only
  as a function of recorded payments. Replaying the same payment - a retried
  request, or a re-run of the batch sync - must not create duplicate rows or
  double-count paid amounts.

IDEMPOTENCY CONTRACT:
  Every applied payment is recorded in a payment-to-receivable junction in
  the SAME transaction as the receivable upsert. A payment id found in the
  junction is skipped, not re-applied. Two DIFFERENT payments for the same
  (fund, user, month) accumulate additively.

CONCURRENCY:
  Each reconciliation runs inside WithTx, so two concurrent payments for the
  same key serialize at the storage layer instead of lost-updating each
  other. The batch sync processes payments in stable ascending creation
  order and may run concurrently with live recording.

BATCH FAILURE POLICY:
  SyncAllPayments isolates per-item failures: one bad payment does not block
  reconciling the rest. It reports {reconciled, skipped, errors} counts and
  never throws on partial failure.

SEE ALSO:
  - recorder.go: Invokes the same application logic synchronously in the
                 payment-insert transaction
  - store.go:    IsPaymentReconciled / MarkPaymentReconciled junction
*/
package chit

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// errAlreadyReconciled marks a replayed payment. Internal: callers surface
// it as a skip, never as a failure.
var errAlreadyReconciled = errors.New("payment already reconciled")

// Reconciler derives receivable rows from payments. It is the only writer
// of receivables.
type Reconciler struct {
	store TxStore
	log   *logrus.Logger
}

func NewReconciler(store TxStore, log *logrus.Logger) *Reconciler {
	return &Reconciler{store: store, log: log}
}

// Reconcile applies one payment to its receivable inside a single
// transaction. Replaying the same payment is a no-op.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID PaymentID) error {
	err := r.store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		if p == nil {
			return ErrPaymentNotFound
		}
		return applyToReceivable(ctx, s, *p, time.Now().UTC())
	})
	if errors.Is(err, errAlreadyReconciled) {
		return nil
	}
	if err != nil {
		if IsClientError(err) || IsNotFound(err) {
			return err
		}
		return &StorageError{Op: "reconcile payment", Err: err}
	}
	return nil
}

// SyncAllPayments reconciles every monthly payment not yet reflected in a
// receivable, in ascending creation order. Safe to re-run after partial
// failure: already-applied payments count as skipped.
func (r *Reconciler) SyncAllPayments(ctx context.Context) (SyncReport, error) {
	payments, err := r.store.ListPaymentsByType(ctx, PaymentMonthly)
	if err != nil {
		return SyncReport{}, &StorageError{Op: "list payments", Err: err}
	}

	var report SyncReport
	for _, p := range payments {
		p := p
		err := r.store.WithTx(ctx, func(s Store) error {
			return applyToReceivable(ctx, s, p, time.Now().UTC())
		})
		switch {
		case err == nil:
			report.ReconciledCount++
		case errors.Is(err, errAlreadyReconciled):
			report.SkippedCount++
		default:
			report.ErrorCount++
			r.log.WithError(err).WithFields(logrus.Fields{
				"payment_id": p.ID,
				"fund_id":    p.FundID,
				"user_id":    p.UserID,
				"month":      p.MonthNumber,
			}).Error("sync: failed to reconcile payment")
		}
	}

	r.log.WithFields(logrus.Fields{
		"reconciled": report.ReconciledCount,
		"skipped":    report.SkippedCount,
		"errors":     report.ErrorCount,
	}).Info("payment sync completed")
	return report, nil
}

// ReceivablesByFund is the read projection for reporting collaborators.
func (r *Reconciler) ReceivablesByFund(ctx context.Context, fundID FundID) ([]Receivable, error) {
	rows, err := r.store.ListReceivablesByFund(ctx, fundID)
	if err != nil {
		return nil, &StorageError{Op: "list receivables", Err: err}
	}
	return rows, nil
}

// ReceivablesByUser is the per-member read projection.
func (r *Reconciler) ReceivablesByUser(ctx context.Context, userID UserID) ([]Receivable, error) {
	rows, err := r.store.ListReceivablesByUser(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "list receivables", Err: err}
	}
	return rows, nil
}

// PayablesByFund lists disbursements for a fund.
func (r *Reconciler) PayablesByFund(ctx context.Context, fundID FundID) ([]Payable, error) {
	rows, err := r.store.ListPayablesByFund(ctx, fundID)
	if err != nil {
		return nil, &StorageError{Op: "list payables", Err: err}
	}
	return rows, nil
}

// PayablesByUser lists disbursements to a member.
func (r *Reconciler) PayablesByUser(ctx context.Context, userID UserID) ([]Payable, error) {
	rows, err := r.store.ListPayablesByUser(ctx, userID)
	if err != nil {
		return nil, &StorageError{Op: "list payables", Err: err}
	}
	return rows, nil
}

// =============================================================================
// CORE APPLICATION STEP (shared with recorder and withdrawal processor)
// =============================================================================

// applyToReceivable upserts the receivable for one payment. Must run inside
// a transaction together with whatever produced the payment. Steps:
//
//  1. Skip if the payment id is already in the junction.
//  2. Load (or create) the receivable for (fund, user, month); a new row's
//     expected amount comes from the fund schedule, honoring any per-member
//     installment override.
//  3. Accumulate paidAmount - never overwrite, so partial payments add up.
//  4. Recompute status from the derivation rule.
//  5. Persist row + junction entry.
func applyToReceivable(ctx context.Context, s Store, p Payment, now time.Time) error {
	if p.Type == PaymentBonus {
		return nil // bonus payments never touch receivables
	}

	done, err := s.IsPaymentReconciled(ctx, p.ID)
	if err != nil {
		return err
	}
	if done {
		return errAlreadyReconciled
	}

	fund, err := s.GetFund(ctx, p.FundID)
	if err != nil {
		return err
	}
	if fund == nil {
		return ErrFundNotFound
	}
	membership, err := s.GetMembership(ctx, p.FundID, p.UserID)
	if err != nil {
		return err
	}
	if membership == nil {
		return ErrMembershipNotFound
	}

	row, err := s.GetReceivable(ctx, p.FundID, p.UserID, p.MonthNumber)
	if err != nil {
		return err
	}
	if row == nil {
		expected, err := fund.ScheduleForMonth(p.MonthNumber, membership)
		if err != nil {
			return err
		}
		row = &Receivable{
			FundID:         p.FundID,
			UserID:         p.UserID,
			MonthNumber:    p.MonthNumber,
			ExpectedAmount: expected,
			DueDate:        fund.DueDateForMonth(p.MonthNumber),
		}
	}

	row.PaidAmount = row.PaidAmount.Add(p.Amount)
	row.Status = DeriveReceivableStatus(row.ExpectedAmount, row.PaidAmount, row.DueDate, now)
	row.UpdatedAt = now

	if err := s.UpsertReceivable(ctx, *row); err != nil {
		return err
	}
	return s.MarkPaymentReconciled(ctx, p.ID, p.FundID, p.UserID, p.MonthNumber)
}
