/*
Package sqlite provides a SQLite-backed implementation of chit.TxStore.

PURPOSE:
  Persists the engine's five collections (funds, memberships, member groups,
  payments, receivables, payables) plus the payment-to-receivable junction.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

UNIQUENESS ENFORCEMENT (backed by indexes, not just code):
  - memberships:            UNIQUE (fund_id, user_id)
  - receivables:            UNIQUE (fund_id, user_id, month_number)
  - reconciled_payments:    payment_id PRIMARY KEY

IMMUTABILITY:
  payments and payables have INSERT and SELECT paths only. No UPDATE or
  DELETE statements exist for them; corrections are new compensating rows.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. WithTx serializes
  multi-row units of work; BUSY/LOCKED errors surface as
  chit.ErrConcurrencyConflict so callers can retry once.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  st, err := sqlite.New("./data/chit.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()
  engine := chit.NewEngine(st, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - chit/store.go:        Interface definitions and ownership rules
  - chit/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/nidhi/chit-engine/chit"
	"github.com/nidhi/chit-engine/money"
)

// Store implements chit.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ chit.TxStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS funds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		pool_amount TEXT NOT NULL,
		duration_months INTEGER NOT NULL,
		member_count INTEGER NOT NULL,
		start_date TEXT NOT NULL,
		monthly_contribution TEXT NOT NULL,
		monthly_bonus TEXT NOT NULL,
		base_commission TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS memberships (
		fund_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		is_withdrawn BOOLEAN NOT NULL DEFAULT FALSE,
		early_withdrawal_month INTEGER,
		increased_monthly TEXT,
		total_bonus_received TEXT NOT NULL,
		total_commission_paid TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (fund_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS member_groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		share_percentage TEXT NOT NULL,
		PRIMARY KEY (group_id, user_id)
	);

	-- Payments are append-only: no UPDATE or DELETE path exists in this package.
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		fund_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		month_number INTEGER NOT NULL,
		payment_type TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		commission TEXT,
		recorded_by TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		notes TEXT,
		batch_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_fund ON payments(fund_id);
	CREATE INDEX IF NOT EXISTS idx_payments_type_created ON payments(payment_type, created_at);
	CREATE INDEX IF NOT EXISTS idx_payments_batch ON payments(batch_id) WHERE batch_id IS NOT NULL;

	-- CRITICAL: one receivable row per (fund, user, month). The reconciler's
	-- idempotent upsert depends on this key.
	CREATE TABLE IF NOT EXISTS receivables (
		fund_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		month_number INTEGER NOT NULL,
		expected_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		due_date TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (fund_id, user_id, month_number)
	);

	CREATE INDEX IF NOT EXISTS idx_receivables_user ON receivables(user_id);

	CREATE TABLE IF NOT EXISTS payables (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		fund_id TEXT NOT NULL,
		payable_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		commission TEXT,
		paid_date TEXT NOT NULL,
		recorded_by TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payables_fund ON payables(fund_id);
	CREATE INDEX IF NOT EXISTS idx_payables_user ON payables(user_id);

	-- Payment-to-receivable junction: a payment id present here has already
	-- been applied; the reconciler skips it on replay.
	CREATE TABLE IF NOT EXISTS reconciled_payments (
		payment_id TEXT PRIMARY KEY,
		fund_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		month_number INTEGER NOT NULL,
		reconciled_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (chit.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. Rolls back on error.
func (s *Store) WithTx(ctx context.Context, fn func(chit.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr(err)
	}
	return nil
}

// txStore routes Store calls through an open transaction.
type txStore struct {
	q querier
}

var _ chit.Store = (*txStore)(nil)

// =============================================================================
// FUNDS
// =============================================================================

func (s *Store) SaveFund(ctx context.Context, f chit.Fund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveFund(ctx, s.db, f)
}
func (t *txStore) SaveFund(ctx context.Context, f chit.Fund) error { return saveFund(ctx, t.q, f) }

func saveFund(ctx context.Context, q querier, f chit.Fund) error {
	query := `
		INSERT INTO funds
		(id, name, pool_amount, duration_months, member_count, start_date,
		 monthly_contribution, monthly_bonus, base_commission, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status
	`
	_, err := q.ExecContext(ctx, query,
		f.ID, f.Name, f.PoolAmount.String(), f.DurationMonths, f.MemberCount,
		f.StartDate.UTC().Format(time.RFC3339),
		f.MonthlyContribution.String(), f.MonthlyBonus.String(), f.BaseCommission.String(),
		f.Status, f.CreatedAt.UTC().Format(time.RFC3339),
	)
	return mapErr(err)
}

const fundColumns = `id, name, pool_amount, duration_months, member_count, start_date,
	monthly_contribution, monthly_bonus, base_commission, status, created_at`

func (s *Store) GetFund(ctx context.Context, id chit.FundID) (*chit.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getFund(ctx, s.db, id)
}
func (t *txStore) GetFund(ctx context.Context, id chit.FundID) (*chit.Fund, error) {
	return getFund(ctx, t.q, id)
}

func getFund(ctx context.Context, q querier, id chit.FundID) (*chit.Fund, error) {
	row := q.QueryRowContext(ctx, "SELECT "+fundColumns+" FROM funds WHERE id = ?", id)
	f, err := scanFund(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (s *Store) ListFunds(ctx context.Context) ([]chit.Fund, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listFunds(ctx, s.db)
}
func (t *txStore) ListFunds(ctx context.Context) ([]chit.Fund, error) { return listFunds(ctx, t.q) }

func listFunds(ctx context.Context, q querier) ([]chit.Fund, error) {
	rows, err := q.QueryContext(ctx, "SELECT "+fundColumns+" FROM funds ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var funds []chit.Fund
	for rows.Next() {
		f, err := scanFund(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		funds = append(funds, *f)
	}
	return funds, mapErr(rows.Err())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFund(r rowScanner) (*chit.Fund, error) {
	var (
		f                    chit.Fund
		pool, contribution   string
		bonus, commission    string
		startDate, createdAt string
	)
	err := r.Scan(&f.ID, &f.Name, &pool, &f.DurationMonths, &f.MemberCount, &startDate,
		&contribution, &bonus, &commission, &f.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	f.PoolAmount = mustMoney(pool)
	f.MonthlyContribution = mustMoney(contribution)
	f.MonthlyBonus = mustMoney(bonus)
	f.BaseCommission = mustMoney(commission)
	f.StartDate, _ = time.Parse(time.RFC3339, startDate)
	f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &f, nil
}

// =============================================================================
// MEMBERSHIPS
// =============================================================================

func (s *Store) CreateMembership(ctx context.Context, m chit.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createMembership(ctx, s.db, m)
}
func (t *txStore) CreateMembership(ctx context.Context, m chit.Membership) error {
	return createMembership(ctx, t.q, m)
}

func createMembership(ctx context.Context, q querier, m chit.Membership) error {
	query := `
		INSERT INTO memberships
		(fund_id, user_id, is_withdrawn, early_withdrawal_month, increased_monthly,
		 total_bonus_received, total_commission_paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		m.FundID, m.UserID, m.IsWithdrawn, nullInt(m.EarlyWithdrawalMonth),
		nullMoney(m.IncreasedMonthly),
		m.TotalBonusReceived.String(), m.TotalCommissionPaid.String(),
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil && isUniqueConstraintError(err) {
		return chit.ErrDuplicateMembership
	}
	return mapErr(err)
}

const membershipColumns = `fund_id, user_id, is_withdrawn, early_withdrawal_month,
	increased_monthly, total_bonus_received, total_commission_paid, created_at`

func (s *Store) GetMembership(ctx context.Context, fundID chit.FundID, userID chit.UserID) (*chit.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMembership(ctx, s.db, fundID, userID)
}
func (t *txStore) GetMembership(ctx context.Context, fundID chit.FundID, userID chit.UserID) (*chit.Membership, error) {
	return getMembership(ctx, t.q, fundID, userID)
}

func getMembership(ctx context.Context, q querier, fundID chit.FundID, userID chit.UserID) (*chit.Membership, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+membershipColumns+" FROM memberships WHERE fund_id = ? AND user_id = ?",
		fundID, userID)
	m, err := scanMembership(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

func (s *Store) ListMembershipsByFund(ctx context.Context, fundID chit.FundID) ([]chit.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMemberships(ctx, s.db, fundID)
}
func (t *txStore) ListMembershipsByFund(ctx context.Context, fundID chit.FundID) ([]chit.Membership, error) {
	return listMemberships(ctx, t.q, fundID)
}

func listMemberships(ctx context.Context, q querier, fundID chit.FundID) ([]chit.Membership, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT "+membershipColumns+" FROM memberships WHERE fund_id = ? ORDER BY user_id ASC",
		fundID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []chit.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *m)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) UpdateMembership(ctx context.Context, m chit.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMembership(ctx, s.db, m)
}
func (t *txStore) UpdateMembership(ctx context.Context, m chit.Membership) error {
	return updateMembership(ctx, t.q, m)
}

func updateMembership(ctx context.Context, q querier, m chit.Membership) error {
	query := `
		UPDATE memberships SET
			is_withdrawn = ?,
			early_withdrawal_month = ?,
			increased_monthly = ?,
			total_bonus_received = ?,
			total_commission_paid = ?
		WHERE fund_id = ? AND user_id = ?
	`
	res, err := q.ExecContext(ctx, query,
		m.IsWithdrawn, nullInt(m.EarlyWithdrawalMonth), nullMoney(m.IncreasedMonthly),
		m.TotalBonusReceived.String(), m.TotalCommissionPaid.String(),
		m.FundID, m.UserID,
	)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return chit.ErrMembershipNotFound
	}
	return nil
}

func scanMembership(r rowScanner) (*chit.Membership, error) {
	var (
		m           chit.Membership
		month       sql.NullInt64
		increased   sql.NullString
		bonus, paid string
		createdAt   string
	)
	err := r.Scan(&m.FundID, &m.UserID, &m.IsWithdrawn, &month, &increased, &bonus, &paid, &createdAt)
	if err != nil {
		return nil, err
	}
	if month.Valid {
		v := int(month.Int64)
		m.EarlyWithdrawalMonth = &v
	}
	if increased.Valid {
		v := mustMoney(increased.String)
		m.IncreasedMonthly = &v
	}
	m.TotalBonusReceived = mustMoney(bonus)
	m.TotalCommissionPaid = mustMoney(paid)
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

// =============================================================================
// MEMBER GROUPS
// =============================================================================

func (s *Store) SaveGroup(ctx context.Context, g chit.MemberGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveGroup(ctx, s.db, g)
}
func (t *txStore) SaveGroup(ctx context.Context, g chit.MemberGroup) error {
	return saveGroup(ctx, t.q, g)
}

func saveGroup(ctx context.Context, q querier, g chit.MemberGroup) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO member_groups (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		g.ID, g.Name, g.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return mapErr(err)
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM group_members WHERE group_id = ?", g.ID); err != nil {
		return mapErr(err)
	}
	for _, m := range g.Members {
		_, err := q.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id, share_percentage) VALUES (?, ?, ?)",
			g.ID, m.UserID, m.SharePercentage.String())
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (s *Store) GetGroup(ctx context.Context, id chit.GroupID) (*chit.MemberGroup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getGroup(ctx, s.db, id)
}
func (t *txStore) GetGroup(ctx context.Context, id chit.GroupID) (*chit.MemberGroup, error) {
	return getGroup(ctx, t.q, id)
}

func getGroup(ctx context.Context, q querier, id chit.GroupID) (*chit.MemberGroup, error) {
	var g chit.MemberGroup
	var createdAt string
	err := q.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM member_groups WHERE id = ?", id,
	).Scan(&g.ID, &g.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	rows, err := q.QueryContext(ctx,
		"SELECT user_id, share_percentage FROM group_members WHERE group_id = ? ORDER BY user_id ASC", id)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var m chit.GroupMember
		var share string
		if err := rows.Scan(&m.UserID, &share); err != nil {
			return nil, mapErr(err)
		}
		m.SharePercentage, err = decimal.NewFromString(share)
		if err != nil {
			return nil, fmt.Errorf("corrupt share percentage %q: %w", share, err)
		}
		g.Members = append(g.Members, m)
	}
	return &g, mapErr(rows.Err())
}

// =============================================================================
// PAYMENTS (append-only)
// =============================================================================

func (s *Store) InsertPayment(ctx context.Context, p chit.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, p)
}
func (t *txStore) InsertPayment(ctx context.Context, p chit.Payment) error {
	return insertPayment(ctx, t.q, p)
}

func insertPayment(ctx context.Context, q querier, p chit.Payment) error {
	query := `
		INSERT INTO payments
		(id, user_id, fund_id, amount, month_number, payment_type, payment_method,
		 commission, recorded_by, payment_date, notes, batch_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		p.ID, p.UserID, p.FundID, p.Amount.String(), p.MonthNumber, p.Type, p.Method,
		nullMoney(p.Commission), p.RecordedBy,
		p.PaymentDate.UTC().Format(time.RFC3339),
		nullString(p.Notes), nullString(p.BatchID),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil && isUniqueConstraintError(err) {
		return chit.ErrConcurrencyConflict
	}
	return mapErr(err)
}

const paymentColumns = `id, user_id, fund_id, amount, month_number, payment_type,
	payment_method, commission, recorded_by, payment_date, notes, batch_id, created_at`

func (s *Store) GetPayment(ctx context.Context, id chit.PaymentID) (*chit.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPayment(ctx, s.db, id)
}
func (t *txStore) GetPayment(ctx context.Context, id chit.PaymentID) (*chit.Payment, error) {
	return getPayment(ctx, t.q, id)
}

func getPayment(ctx context.Context, q querier, id chit.PaymentID) (*chit.Payment, error) {
	row := q.QueryRowContext(ctx, "SELECT "+paymentColumns+" FROM payments WHERE id = ?", id)
	p, err := scanPayment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return p, nil
}

func (s *Store) ListPaymentsByFund(ctx context.Context, fundID chit.FundID) ([]chit.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPayments(ctx, s.db,
		"SELECT "+paymentColumns+" FROM payments WHERE fund_id = ? ORDER BY created_at ASC, id ASC", fundID)
}
func (t *txStore) ListPaymentsByFund(ctx context.Context, fundID chit.FundID) ([]chit.Payment, error) {
	return queryPayments(ctx, t.q,
		"SELECT "+paymentColumns+" FROM payments WHERE fund_id = ? ORDER BY created_at ASC, id ASC", fundID)
}

func (s *Store) ListPaymentsByType(ctx context.Context, pt chit.PaymentType) ([]chit.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPayments(ctx, s.db,
		"SELECT "+paymentColumns+" FROM payments WHERE payment_type = ? ORDER BY created_at ASC, id ASC", pt)
}
func (t *txStore) ListPaymentsByType(ctx context.Context, pt chit.PaymentType) ([]chit.Payment, error) {
	return queryPayments(ctx, t.q,
		"SELECT "+paymentColumns+" FROM payments WHERE payment_type = ? ORDER BY created_at ASC, id ASC", pt)
}

func queryPayments(ctx context.Context, q querier, query string, args ...any) ([]chit.Payment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []chit.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *p)
	}
	return out, mapErr(rows.Err())
}

func scanPayment(r rowScanner) (*chit.Payment, error) {
	var (
		p                      chit.Payment
		amount                 string
		commission             sql.NullString
		notes, batchID         sql.NullString
		paymentDate, createdAt string
	)
	err := r.Scan(&p.ID, &p.UserID, &p.FundID, &amount, &p.MonthNumber, &p.Type,
		&p.Method, &commission, &p.RecordedBy, &paymentDate, &notes, &batchID, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Amount = mustMoney(amount)
	if commission.Valid {
		v := mustMoney(commission.String)
		p.Commission = &v
	}
	p.Notes = notes.String
	p.BatchID = batchID.String
	p.PaymentDate, _ = time.Parse(time.RFC3339, paymentDate)
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &p, nil
}

// =============================================================================
// RECEIVABLES (reconciler-owned)
// =============================================================================

const receivableColumns = `fund_id, user_id, month_number, expected_amount,
	paid_amount, status, due_date, updated_at`

func (s *Store) GetReceivable(ctx context.Context, fundID chit.FundID, userID chit.UserID, month int) (*chit.Receivable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReceivable(ctx, s.db, fundID, userID, month)
}
func (t *txStore) GetReceivable(ctx context.Context, fundID chit.FundID, userID chit.UserID, month int) (*chit.Receivable, error) {
	return getReceivable(ctx, t.q, fundID, userID, month)
}

func getReceivable(ctx context.Context, q querier, fundID chit.FundID, userID chit.UserID, month int) (*chit.Receivable, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+receivableColumns+" FROM receivables WHERE fund_id = ? AND user_id = ? AND month_number = ?",
		fundID, userID, month)
	r, err := scanReceivable(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(err)
	}
	return r, nil
}

func (s *Store) UpsertReceivable(ctx context.Context, r chit.Receivable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertReceivable(ctx, s.db, r)
}
func (t *txStore) UpsertReceivable(ctx context.Context, r chit.Receivable) error {
	return upsertReceivable(ctx, t.q, r)
}

func upsertReceivable(ctx context.Context, q querier, r chit.Receivable) error {
	query := `
		INSERT INTO receivables
		(fund_id, user_id, month_number, expected_amount, paid_amount, status, due_date, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fund_id, user_id, month_number) DO UPDATE SET
			expected_amount = excluded.expected_amount,
			paid_amount = excluded.paid_amount,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		r.FundID, r.UserID, r.MonthNumber,
		r.ExpectedAmount.String(), r.PaidAmount.String(), r.Status,
		r.DueDate.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	return mapErr(err)
}

func (s *Store) ListReceivablesByFund(ctx context.Context, fundID chit.FundID) ([]chit.Receivable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryReceivables(ctx, s.db,
		"SELECT "+receivableColumns+" FROM receivables WHERE fund_id = ? ORDER BY user_id ASC, month_number ASC", fundID)
}
func (t *txStore) ListReceivablesByFund(ctx context.Context, fundID chit.FundID) ([]chit.Receivable, error) {
	return queryReceivables(ctx, t.q,
		"SELECT "+receivableColumns+" FROM receivables WHERE fund_id = ? ORDER BY user_id ASC, month_number ASC", fundID)
}

func (s *Store) ListReceivablesByUser(ctx context.Context, userID chit.UserID) ([]chit.Receivable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryReceivables(ctx, s.db,
		"SELECT "+receivableColumns+" FROM receivables WHERE user_id = ? ORDER BY fund_id ASC, month_number ASC", userID)
}
func (t *txStore) ListReceivablesByUser(ctx context.Context, userID chit.UserID) ([]chit.Receivable, error) {
	return queryReceivables(ctx, t.q,
		"SELECT "+receivableColumns+" FROM receivables WHERE user_id = ? ORDER BY fund_id ASC, month_number ASC", userID)
}

func queryReceivables(ctx context.Context, q querier, query string, args ...any) ([]chit.Receivable, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []chit.Receivable
	for rows.Next() {
		r, err := scanReceivable(rows)
		if err != nil {
			return nil, mapErr(err)
		}
		out = append(out, *r)
	}
	return out, mapErr(rows.Err())
}

func scanReceivable(r rowScanner) (*chit.Receivable, error) {
	var (
		rec                chit.Receivable
		expected, paid     string
		dueDate, updatedAt string
	)
	err := r.Scan(&rec.FundID, &rec.UserID, &rec.MonthNumber, &expected, &paid,
		&rec.Status, &dueDate, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.ExpectedAmount = mustMoney(expected)
	rec.PaidAmount = mustMoney(paid)
	rec.DueDate, _ = time.Parse(time.RFC3339, dueDate)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// =============================================================================
// PAYABLES (insert-only)
// =============================================================================

func (s *Store) InsertPayable(ctx context.Context, p chit.Payable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayable(ctx, s.db, p)
}
func (t *txStore) InsertPayable(ctx context.Context, p chit.Payable) error {
	return insertPayable(ctx, t.q, p)
}

func insertPayable(ctx context.Context, q querier, p chit.Payable) error {
	query := `
		INSERT INTO payables
		(id, user_id, fund_id, payable_type, amount, commission, paid_date, recorded_by, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.ExecContext(ctx, query,
		p.ID, p.UserID, p.FundID, p.Type, p.Amount.String(), nullMoney(p.Commission),
		p.PaidDate.UTC().Format(time.RFC3339), p.RecordedBy, nullString(p.Notes),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return mapErr(err)
}

const payableColumns = `id, user_id, fund_id, payable_type, amount, commission,
	paid_date, recorded_by, notes, created_at`

func (s *Store) ListPayablesByFund(ctx context.Context, fundID chit.FundID) ([]chit.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPayables(ctx, s.db,
		"SELECT "+payableColumns+" FROM payables WHERE fund_id = ? ORDER BY created_at ASC, id ASC", fundID)
}
func (t *txStore) ListPayablesByFund(ctx context.Context, fundID chit.FundID) ([]chit.Payable, error) {
	return queryPayables(ctx, t.q,
		"SELECT "+payableColumns+" FROM payables WHERE fund_id = ? ORDER BY created_at ASC, id ASC", fundID)
}

func (s *Store) ListPayablesByUser(ctx context.Context, userID chit.UserID) ([]chit.Payable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPayables(ctx, s.db,
		"SELECT "+payableColumns+" FROM payables WHERE user_id = ? ORDER BY created_at ASC, id ASC", userID)
}
func (t *txStore) ListPayablesByUser(ctx context.Context, userID chit.UserID) ([]chit.Payable, error) {
	return queryPayables(ctx, t.q,
		"SELECT "+payableColumns+" FROM payables WHERE user_id = ? ORDER BY created_at ASC, id ASC", userID)
}

func queryPayables(ctx context.Context, q querier, query string, args ...any) ([]chit.Payable, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []chit.Payable
	for rows.Next() {
		var (
			p                   chit.Payable
			amount              string
			commission, notes   sql.NullString
			paidDate, createdAt string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &p.FundID, &p.Type, &amount, &commission,
			&paidDate, &p.RecordedBy, &notes, &createdAt); err != nil {
			return nil, mapErr(err)
		}
		p.Amount = mustMoney(amount)
		if commission.Valid {
			v := mustMoney(commission.String)
			p.Commission = &v
		}
		p.Notes = notes.String
		p.PaidDate, _ = time.Parse(time.RFC3339, paidDate)
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

// =============================================================================
// RECONCILIATION JUNCTION
// =============================================================================

func (s *Store) IsPaymentReconciled(ctx context.Context, id chit.PaymentID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isPaymentReconciled(ctx, s.db, id)
}
func (t *txStore) IsPaymentReconciled(ctx context.Context, id chit.PaymentID) (bool, error) {
	return isPaymentReconciled(ctx, t.q, id)
}

func isPaymentReconciled(ctx context.Context, q querier, id chit.PaymentID) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reconciled_payments WHERE payment_id = ?", id,
	).Scan(&count)
	if err != nil {
		return false, mapErr(err)
	}
	return count > 0, nil
}

func (s *Store) MarkPaymentReconciled(ctx context.Context, id chit.PaymentID, fundID chit.FundID, userID chit.UserID, month int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return markPaymentReconciled(ctx, s.db, id, fundID, userID, month)
}
func (t *txStore) MarkPaymentReconciled(ctx context.Context, id chit.PaymentID, fundID chit.FundID, userID chit.UserID, month int) error {
	return markPaymentReconciled(ctx, t.q, id, fundID, userID, month)
}

func markPaymentReconciled(ctx context.Context, q querier, id chit.PaymentID, fundID chit.FundID, userID chit.UserID, month int) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO reconciled_payments (payment_id, fund_id, user_id, month_number, reconciled_at) VALUES (?, ?, ?, ?, ?)",
		id, fundID, userID, month, time.Now().UTC().Format(time.RFC3339))
	if err != nil && isUniqueConstraintError(err) {
		// Raced with another reconciliation of the same payment.
		return chit.ErrConcurrencyConflict
	}
	return mapErr(err)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullMoney(m *money.Money) sql.NullString {
	if m == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: m.String(), Valid: true}
}

func mustMoney(s string) money.Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return money.Zero
	}
	return money.FromDecimal(d)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

func isBusyError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "database is locked") ||
		strings.Contains(err.Error(), "SQLITE_BUSY"))
}

// mapErr translates driver-level failures into engine error kinds.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if isBusyError(err) {
		return chit.ErrConcurrencyConflict
	}
	return err
}
