// Package store provides chit.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/nidhi/chit-engine/chit"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type membershipKey struct {
	FundID chit.FundID
	UserID chit.UserID
}

type receivableKey struct {
	FundID chit.FundID
	UserID chit.UserID
	Month  int
}

// Memory is an in-memory chit.TxStore. WithTx is simulated with a full
// snapshot + restore on error, which also serializes concurrent units of
// work the way row locks would.
type Memory struct {
	// txMu serializes units of work; mu guards individual reads and writes.
	txMu        sync.Mutex
	mu          sync.RWMutex
	funds       map[chit.FundID]chit.Fund
	memberships map[membershipKey]chit.Membership
	groups      map[chit.GroupID]chit.MemberGroup
	payments    []chit.Payment
	paymentByID map[chit.PaymentID]int
	receivables map[receivableKey]chit.Receivable
	payables    []chit.Payable
	reconciled  map[chit.PaymentID]bool
}

func NewMemory() *Memory {
	return &Memory{
		funds:       make(map[chit.FundID]chit.Fund),
		memberships: make(map[membershipKey]chit.Membership),
		groups:      make(map[chit.GroupID]chit.MemberGroup),
		paymentByID: make(map[chit.PaymentID]int),
		receivables: make(map[receivableKey]chit.Receivable),
		reconciled:  make(map[chit.PaymentID]bool),
	}
}

// =============================================================================
// FUNDS
// =============================================================================

func (m *Memory) SaveFund(_ context.Context, f chit.Fund) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funds[f.ID] = f
	return nil
}

func (m *Memory) GetFund(_ context.Context, id chit.FundID) (*chit.Fund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.funds[id]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

func (m *Memory) ListFunds(_ context.Context) ([]chit.Fund, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	funds := make([]chit.Fund, 0, len(m.funds))
	for _, f := range m.funds {
		funds = append(funds, f)
	}
	sort.Slice(funds, func(i, j int) bool { return funds[i].ID < funds[j].ID })
	return funds, nil
}

// =============================================================================
// MEMBERSHIPS
// =============================================================================

func (m *Memory) CreateMembership(_ context.Context, ms chit.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := membershipKey{FundID: ms.FundID, UserID: ms.UserID}
	if _, exists := m.memberships[k]; exists {
		return chit.ErrDuplicateMembership
	}
	m.memberships[k] = ms
	return nil
}

func (m *Memory) GetMembership(_ context.Context, fundID chit.FundID, userID chit.UserID) (*chit.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.memberships[membershipKey{FundID: fundID, UserID: userID}]
	if !ok {
		return nil, nil
	}
	return &ms, nil
}

func (m *Memory) ListMembershipsByFund(_ context.Context, fundID chit.FundID) ([]chit.Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chit.Membership
	for k, ms := range m.memberships {
		if k.FundID == fundID {
			out = append(out, ms)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *Memory) UpdateMembership(_ context.Context, ms chit.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := membershipKey{FundID: ms.FundID, UserID: ms.UserID}
	if _, exists := m.memberships[k]; !exists {
		return chit.ErrMembershipNotFound
	}
	m.memberships[k] = ms
	return nil
}

// =============================================================================
// GROUPS
// =============================================================================

func (m *Memory) SaveGroup(_ context.Context, g chit.MemberGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[g.ID] = g
	return nil
}

func (m *Memory) GetGroup(_ context.Context, id chit.GroupID) (*chit.MemberGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, nil
	}
	members := make([]chit.GroupMember, len(g.Members))
	copy(members, g.Members)
	g.Members = members
	return &g, nil
}

// =============================================================================
// PAYMENTS (append-only)
// =============================================================================

func (m *Memory) InsertPayment(_ context.Context, p chit.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.paymentByID[p.ID]; exists {
		return chit.ErrConcurrencyConflict
	}
	m.paymentByID[p.ID] = len(m.payments)
	m.payments = append(m.payments, p)
	return nil
}

func (m *Memory) GetPayment(_ context.Context, id chit.PaymentID) (*chit.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.paymentByID[id]
	if !ok {
		return nil, nil
	}
	p := m.payments[i]
	return &p, nil
}

func (m *Memory) ListPaymentsByFund(_ context.Context, fundID chit.FundID) ([]chit.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chit.Payment
	for _, p := range m.payments {
		if p.FundID == fundID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) ListPaymentsByType(_ context.Context, t chit.PaymentType) ([]chit.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chit.Payment
	for _, p := range m.payments {
		if p.Type == t {
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// RECEIVABLES
// =============================================================================

func (m *Memory) GetReceivable(_ context.Context, fundID chit.FundID, userID chit.UserID, month int) (*chit.Receivable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.receivables[receivableKey{FundID: fundID, UserID: userID, Month: month}]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Memory) UpsertReceivable(_ context.Context, r chit.Receivable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivables[receivableKey{FundID: r.FundID, UserID: r.UserID, Month: r.MonthNumber}] = r
	return nil
}

func (m *Memory) ListReceivablesByFund(_ context.Context, fundID chit.FundID) ([]chit.Receivable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chit.Receivable
	for k, r := range m.receivables {
		if k.FundID == fundID {
			out = append(out, r)
		}
	}
	sortReceivables(out)
	return out, nil
}

func (m *Memory) ListReceivablesByUser(_ context.Context, userID chit.UserID) ([]chit.Receivable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chit.Receivable
	for k, r := range m.receivables {
		if k.UserID == userID {
			out = append(out, r)
		}
	}
	sortReceivables(out)
	return out, nil
}

func sortReceivables(rs []chit.Receivable) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].FundID != rs[j].FundID {
			return rs[i].FundID < rs[j].FundID
		}
		if rs[i].UserID != rs[j].UserID {
			return rs[i].UserID < rs[j].UserID
		}
		return rs[i].MonthNumber < rs[j].MonthNumber
	})
}

// =============================================================================
// PAYABLES
// =============================================================================

func (m *Memory) InsertPayable(_ context.Context, p chit.Payable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payables = append(m.payables, p)
	return nil
}

func (m *Memory) ListPayablesByFund(_ context.Context, fundID chit.FundID) ([]chit.Payable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chit.Payable
	for _, p := range m.payables {
		if p.FundID == fundID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *Memory) ListPayablesByUser(_ context.Context, userID chit.UserID) ([]chit.Payable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []chit.Payable
	for _, p := range m.payables {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// RECONCILIATION JUNCTION
// =============================================================================

func (m *Memory) IsPaymentReconciled(_ context.Context, id chit.PaymentID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconciled[id], nil
}

func (m *Memory) MarkPaymentReconciled(_ context.Context, id chit.PaymentID, _ chit.FundID, _ chit.UserID, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciled[id] = true
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against an unlocked view while holding the write lock,
// snapshotting first so an error restores the pre-transaction state.
func (m *Memory) WithTx(_ context.Context, fn func(chit.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

var _ chit.TxStore = (*Memory)(nil)

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		funds:       make(map[chit.FundID]chit.Fund, len(m.funds)),
		memberships: make(map[membershipKey]chit.Membership, len(m.memberships)),
		groups:      make(map[chit.GroupID]chit.MemberGroup, len(m.groups)),
		payments:    append([]chit.Payment(nil), m.payments...),
		paymentByID: make(map[chit.PaymentID]int, len(m.paymentByID)),
		receivables: make(map[receivableKey]chit.Receivable, len(m.receivables)),
		payables:    append([]chit.Payable(nil), m.payables...),
		reconciled:  make(map[chit.PaymentID]bool, len(m.reconciled)),
	}
	for k, v := range m.funds {
		s.funds[k] = v
	}
	for k, v := range m.memberships {
		s.memberships[k] = v
	}
	for k, v := range m.groups {
		s.groups[k] = v
	}
	for k, v := range m.paymentByID {
		s.paymentByID[k] = v
	}
	for k, v := range m.receivables {
		s.receivables[k] = v
	}
	for k, v := range m.reconciled {
		s.reconciled[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funds = s.funds
	m.memberships = s.memberships
	m.groups = s.groups
	m.payments = s.payments
	m.paymentByID = s.paymentByID
	m.receivables = s.receivables
	m.payables = s.payables
	m.reconciled = s.reconciled
}

type memorySnapshot struct {
	funds       map[chit.FundID]chit.Fund
	memberships map[membershipKey]chit.Membership
	groups      map[chit.GroupID]chit.MemberGroup
	payments    []chit.Payment
	paymentByID map[chit.PaymentID]int
	receivables map[receivableKey]chit.Receivable
	payables    []chit.Payable
	reconciled  map[chit.PaymentID]bool
}

// txView routes transactional calls back to the parent store.
type txView struct {
	parent *Memory
}

func (v *txView) SaveFund(ctx context.Context, f chit.Fund) error { return v.parent.SaveFund(ctx, f) }
func (v *txView) GetFund(ctx context.Context, id chit.FundID) (*chit.Fund, error) {
	return v.parent.GetFund(ctx, id)
}
func (v *txView) ListFunds(ctx context.Context) ([]chit.Fund, error) { return v.parent.ListFunds(ctx) }

func (v *txView) CreateMembership(ctx context.Context, m chit.Membership) error {
	return v.parent.CreateMembership(ctx, m)
}
func (v *txView) GetMembership(ctx context.Context, f chit.FundID, u chit.UserID) (*chit.Membership, error) {
	return v.parent.GetMembership(ctx, f, u)
}
func (v *txView) ListMembershipsByFund(ctx context.Context, f chit.FundID) ([]chit.Membership, error) {
	return v.parent.ListMembershipsByFund(ctx, f)
}
func (v *txView) UpdateMembership(ctx context.Context, m chit.Membership) error {
	return v.parent.UpdateMembership(ctx, m)
}

func (v *txView) SaveGroup(ctx context.Context, g chit.MemberGroup) error {
	return v.parent.SaveGroup(ctx, g)
}
func (v *txView) GetGroup(ctx context.Context, id chit.GroupID) (*chit.MemberGroup, error) {
	return v.parent.GetGroup(ctx, id)
}

func (v *txView) InsertPayment(ctx context.Context, p chit.Payment) error {
	return v.parent.InsertPayment(ctx, p)
}
func (v *txView) GetPayment(ctx context.Context, id chit.PaymentID) (*chit.Payment, error) {
	return v.parent.GetPayment(ctx, id)
}
func (v *txView) ListPaymentsByFund(ctx context.Context, f chit.FundID) ([]chit.Payment, error) {
	return v.parent.ListPaymentsByFund(ctx, f)
}
func (v *txView) ListPaymentsByType(ctx context.Context, t chit.PaymentType) ([]chit.Payment, error) {
	return v.parent.ListPaymentsByType(ctx, t)
}

func (v *txView) GetReceivable(ctx context.Context, f chit.FundID, u chit.UserID, month int) (*chit.Receivable, error) {
	return v.parent.GetReceivable(ctx, f, u, month)
}
func (v *txView) UpsertReceivable(ctx context.Context, r chit.Receivable) error {
	return v.parent.UpsertReceivable(ctx, r)
}
func (v *txView) ListReceivablesByFund(ctx context.Context, f chit.FundID) ([]chit.Receivable, error) {
	return v.parent.ListReceivablesByFund(ctx, f)
}
func (v *txView) ListReceivablesByUser(ctx context.Context, u chit.UserID) ([]chit.Receivable, error) {
	return v.parent.ListReceivablesByUser(ctx, u)
}

func (v *txView) InsertPayable(ctx context.Context, p chit.Payable) error {
	return v.parent.InsertPayable(ctx, p)
}
func (v *txView) ListPayablesByFund(ctx context.Context, f chit.FundID) ([]chit.Payable, error) {
	return v.parent.ListPayablesByFund(ctx, f)
}
func (v *txView) ListPayablesByUser(ctx context.Context, u chit.UserID) ([]chit.Payable, error) {
	return v.parent.ListPayablesByUser(ctx, u)
}

func (v *txView) IsPaymentReconciled(ctx context.Context, id chit.PaymentID) (bool, error) {
	return v.parent.IsPaymentReconciled(ctx, id)
}
func (v *txView) MarkPaymentReconciled(ctx context.Context, id chit.PaymentID, f chit.FundID, u chit.UserID, month int) error {
	return v.parent.MarkPaymentReconciled(ctx, id, f, u, month)
}
