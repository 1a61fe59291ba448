/*
store.go - Persistence interface for the chit engine

PURPOSE:
  Defines the interface between the domain logic and the database. Different
  implementations can use SQLite or in-memory storage; the uniqueness
  constraints stated below are enforced at the storage layer as well as in
  code.

KEY INTERFACES:
  Store:   All reads/writes over the five collections
           (funds, memberships, groups+members, payments, receivables,
           payables) plus the payment-to-receivable junction.
  TxStore: Store plus WithTx for atomic multi-row units of work.

OWNERSHIP RULES (who may call what):
  - Payments are append-only: InsertPayment only, no update or delete.
  - Receivables are written only by the reconciler (UpsertReceivable,
    MarkPaymentReconciled).
  - Payables are written only by the withdrawal processor and bonus
    disbursement (InsertPayable).
  - Membership withdrawal flags are written only inside Processor.Withdraw.

UNIQUENESS (backed by storage indexes):
  - memberships:  (fund_id, user_id)
  - receivables:  (fund_id, user_id, month_number)
  - reconciled payments junction: payment_id

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - chit/store/memory.go:   In-memory for testing

SEE ALSO:
  - reconciler.go: The junction-based idempotency contract
*/
package chit

import "context"

// Store handles persistence for the engine's five collections.
type Store interface {
	// Funds
	SaveFund(ctx context.Context, f Fund) error
	GetFund(ctx context.Context, id FundID) (*Fund, error)
	ListFunds(ctx context.Context) ([]Fund, error)

	// Memberships. CreateMembership returns ErrDuplicateMembership (possibly
	// wrapped) when the (fund, user) pair already exists.
	CreateMembership(ctx context.Context, m Membership) error
	GetMembership(ctx context.Context, fundID FundID, userID UserID) (*Membership, error)
	ListMembershipsByFund(ctx context.Context, fundID FundID) ([]Membership, error)
	UpdateMembership(ctx context.Context, m Membership) error

	// Member groups
	SaveGroup(ctx context.Context, g MemberGroup) error
	GetGroup(ctx context.Context, id GroupID) (*MemberGroup, error)

	// Payments. Append-only: there is no update or delete.
	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id PaymentID) (*Payment, error)
	ListPaymentsByFund(ctx context.Context, fundID FundID) ([]Payment, error)
	// ListPaymentsByType returns payments of one type in stable ascending
	// creation order - the batch sync iterates this.
	ListPaymentsByType(ctx context.Context, t PaymentType) ([]Payment, error)

	// Receivables. Written only by the reconciler.
	GetReceivable(ctx context.Context, fundID FundID, userID UserID, month int) (*Receivable, error)
	UpsertReceivable(ctx context.Context, r Receivable) error
	ListReceivablesByFund(ctx context.Context, fundID FundID) ([]Receivable, error)
	ListReceivablesByUser(ctx context.Context, userID UserID) ([]Receivable, error)

	// Payables. Insert-only.
	InsertPayable(ctx context.Context, p Payable) error
	ListPayablesByFund(ctx context.Context, fundID FundID) ([]Payable, error)
	ListPayablesByUser(ctx context.Context, userID UserID) ([]Payable, error)

	// Payment-to-receivable junction. A payment id present here has already
	// been applied to its receivable; replays must skip it.
	IsPaymentReconciled(ctx context.Context, id PaymentID) (bool, error)
	MarkPaymentReconciled(ctx context.Context, id PaymentID, fundID FundID, userID UserID, month int) error
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn within one unit of work: if fn returns an error, every
// write made through the Store it received is rolled back; if fn returns
// nil, all are committed. The reconciler and withdrawal processor depend on
// this to never partially apply a multi-step operation.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
