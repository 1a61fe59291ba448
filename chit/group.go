/*
group.go - Group distribution engine

PURPOSE:
  A "group slot" is one membership position filled collectively by several
  real users, each owning a share percentage. One incoming payment for the
  slot is split into per-user allocations that sum back to the total
  exactly, and each allocation is recorded as an independent monthly payment
  tagged with a shared batch id for traceability.

ROUNDING:
  Each allocation is round(total * share/100). The accumulated rounding
  remainder is assigned to the member with the largest share; ties break to
  the lowest user id.

VALIDATION:
  Shares must sum to 100 within ShareEpsilon. This is enforced at group
  creation and re-checked defensively at distribution time.

SEE ALSO:
  - money/money.go: Allocate (exact weighted division)
  - recorder.go:    Each allocation flows through recordIn in one transaction
*/
package chit

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nidhi/chit-engine/money"
)

// ShareEpsilon is the tolerance on the 100% share-sum check.
var ShareEpsilon = decimal.NewFromFloat(0.01)

// Distributor splits group-slot payments across co-owners.
type Distributor struct {
	store    TxStore
	recorder *Recorder
	log      *logrus.Logger
}

func NewDistributor(store TxStore, recorder *Recorder, log *logrus.Logger) *Distributor {
	return &Distributor{store: store, recorder: recorder, log: log}
}

// =============================================================================
// GROUP MANAGEMENT
// =============================================================================

// ValidateShares checks a member list for distribution eligibility.
func ValidateShares(groupID GroupID, members []GroupMember) error {
	if len(members) == 0 {
		return ErrEmptyGroup
	}
	sum := decimal.Zero
	seen := make(map[UserID]bool, len(members))
	for _, m := range members {
		if m.UserID == "" {
			return &ValidationError{Field: "userId", Reason: "must not be empty"}
		}
		if seen[m.UserID] {
			return &ValidationError{Field: "userId", Reason: "duplicate member " + string(m.UserID)}
		}
		seen[m.UserID] = true
		if !m.SharePercentage.IsPositive() || m.SharePercentage.GreaterThan(decimal.NewFromInt(100)) {
			return &ValidationError{Field: "sharePercentage", Reason: "must be within (0, 100]"}
		}
		sum = sum.Add(m.SharePercentage)
	}
	if sum.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(ShareEpsilon) {
		return &InvalidShareError{GroupID: groupID, Total: sum.String()}
	}
	return nil
}

// CreateGroup validates and persists a member group.
func (d *Distributor) CreateGroup(ctx context.Context, name string, members []GroupMember) (*MemberGroup, error) {
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	g := MemberGroup{
		ID:        GroupID(uuid.NewString()),
		Name:      name,
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}
	if err := ValidateShares(g.ID, members); err != nil {
		return nil, err
	}
	if err := d.store.SaveGroup(ctx, g); err != nil {
		return nil, &StorageError{Op: "save group", Err: err}
	}
	d.log.WithFields(logrus.Fields{"group_id": g.ID, "members": len(members)}).Info("member group created")
	return &g, nil
}

// GetGroup returns one group, or ErrGroupNotFound.
func (d *Distributor) GetGroup(ctx context.Context, id GroupID) (*MemberGroup, error) {
	g, err := d.store.GetGroup(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "get group", Err: err}
	}
	if g == nil {
		return nil, ErrGroupNotFound
	}
	return g, nil
}

// =============================================================================
// DISTRIBUTION
// =============================================================================

// Distribute splits totalAmount across the group by share percentage. The
// allocations always sum to totalAmount exactly; the rounding remainder goes
// to the largest share, ties to the lowest user id. Pure: no writes.
func Distribute(group *MemberGroup, totalAmount money.Money) ([]Allocation, error) {
	if err := ValidateShares(group.ID, group.Members); err != nil {
		return nil, err
	}
	if !totalAmount.IsPositive() {
		return nil, &ValidationError{Field: "totalAmount", Reason: "must be positive"}
	}

	// Sorting by user id first makes money.Allocate's "first largest weight"
	// remainder rule resolve ties to the lowest user id.
	members := make([]GroupMember, len(group.Members))
	copy(members, group.Members)
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })

	weights := make([]decimal.Decimal, len(members))
	for i, m := range members {
		weights[i] = m.SharePercentage
	}
	parts := totalAmount.Allocate(weights)

	allocations := make([]Allocation, len(members))
	for i, m := range members {
		allocations[i] = Allocation{UserID: m.UserID, Amount: parts[i]}
	}
	return allocations, nil
}

// DistributeGroupPayment fans one group-slot payment into per-member monthly
// payments, all in a single transaction and tagged with one batch id.
func (d *Distributor) DistributeGroupPayment(ctx context.Context, groupID GroupID, fundID FundID, totalAmount money.Money, monthNumber int, method PaymentMethod, recordedBy string) ([]Payment, error) {
	group, err := d.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	allocations, err := Distribute(group, totalAmount)
	if err != nil {
		return nil, err
	}

	batchID := NewBatchID()
	payments := make([]Payment, 0, len(allocations))
	err = d.store.WithTx(ctx, func(s Store) error {
		for _, a := range allocations {
			p, err := d.recorder.recordIn(ctx, s, RecordPaymentInput{
				UserID:      a.UserID,
				FundID:      fundID,
				Amount:      a.Amount,
				MonthNumber: monthNumber,
				Type:        PaymentMonthly,
				Method:      method,
				RecordedBy:  recordedBy,
				Notes:       "group slot distribution " + group.Name,
				BatchID:     batchID,
			})
			if err != nil {
				return err
			}
			payments = append(payments, *p)
		}
		return nil
	})
	if err != nil {
		if IsClientError(err) || IsNotFound(err) {
			return nil, err
		}
		return nil, &StorageError{Op: "distribute group payment", Err: err}
	}

	for _, p := range payments {
		d.recorder.emit(ctx, p)
	}
	d.log.WithFields(logrus.Fields{
		"group_id": groupID,
		"fund_id":  fundID,
		"batch_id": batchID,
		"total":    totalAmount.String(),
		"payments": len(payments),
	}).Info("group payment distributed")
	return payments, nil
}
