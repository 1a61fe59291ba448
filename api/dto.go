/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY REPRESENTATION:
  All monetary fields travel as strings with exactly two decimal places
  ("5000.00"). Floats never appear on the wire; see money.Money.

VALIDATION:
  Structural validation (parse, enum membership) is done in handlers;
  business-rule validation lives in the chit package. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - chit/types.go: Domain model these map from
*/
package api

import (
	"time"

	"github.com/nidhi/chit-engine/chit"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// CreateFundRequest is the request to create a fund.
type CreateFundRequest struct {
	Name                string  `json:"name"`
	PoolAmount          string  `json:"pool_amount"`
	DurationMonths      int     `json:"duration_months"`
	MemberCount         int     `json:"member_count"`
	StartDate           string  `json:"start_date"` // ISO date
	MonthlyContribution *string `json:"monthly_contribution,omitempty"`
	MonthlyBonus        string  `json:"monthly_bonus,omitempty"`
	BaseCommission      string  `json:"base_commission,omitempty"`
}

// FundDTO represents a fund in API responses.
type FundDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	PoolAmount          string `json:"pool_amount"`
	DurationMonths      int    `json:"duration_months"`
	MemberCount         int    `json:"member_count"`
	StartDate           string `json:"start_date"`
	MonthlyContribution string `json:"monthly_contribution"`
	MonthlyBonus        string `json:"monthly_bonus"`
	BaseCommission      string `json:"base_commission"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at,omitempty"`
}

// AddMemberRequest is the request to enroll a user in a fund.
type AddMemberRequest struct {
	UserID string `json:"user_id"`
}

// MembershipDTO represents a membership in API responses.
type MembershipDTO struct {
	FundID               string  `json:"fund_id"`
	UserID               string  `json:"user_id"`
	IsWithdrawn          bool    `json:"is_withdrawn"`
	EarlyWithdrawalMonth *int    `json:"early_withdrawal_month,omitempty"`
	IncreasedMonthly     *string `json:"increased_monthly,omitempty"`
	TotalBonusReceived   string  `json:"total_bonus_received"`
	TotalCommissionPaid  string  `json:"total_commission_paid"`
	CreatedAt            string  `json:"created_at,omitempty"`
}

// RecordPaymentRequest is the request to record a payment event.
type RecordPaymentRequest struct {
	UserID        string  `json:"user_id"`
	FundID        string  `json:"fund_id"`
	Amount        string  `json:"amount"`
	MonthNumber   int     `json:"month_number"`
	PaymentType   string  `json:"payment_type"`
	PaymentMethod string  `json:"payment_method"`
	Commission    *string `json:"commission,omitempty"`
	RecordedBy    string  `json:"recorded_by"`
	PaymentDate   string  `json:"payment_date,omitempty"` // ISO date, defaults to now
	Notes         string  `json:"notes,omitempty"`
}

// PaymentDTO represents a recorded payment.
type PaymentDTO struct {
	ID            string  `json:"id"`
	UserID        string  `json:"user_id"`
	FundID        string  `json:"fund_id"`
	Amount        string  `json:"amount"`
	MonthNumber   int     `json:"month_number"`
	PaymentType   string  `json:"payment_type"`
	PaymentMethod string  `json:"payment_method"`
	Commission    *string `json:"commission,omitempty"`
	RecordedBy    string  `json:"recorded_by"`
	PaymentDate   string  `json:"payment_date"`
	Notes         string  `json:"notes,omitempty"`
	BatchID       string  `json:"batch_id,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

// ReceivableDTO represents one expected-vs-paid ledger row.
type ReceivableDTO struct {
	FundID         string `json:"fund_id"`
	UserID         string `json:"user_id"`
	MonthNumber    int    `json:"month_number"`
	ExpectedAmount string `json:"expected_amount"`
	PaidAmount     string `json:"paid_amount"`
	Status         string `json:"status"`
	DueDate        string `json:"due_date"`
	UpdatedAt      string `json:"updated_at,omitempty"`
}

// PayableDTO represents an outgoing obligation.
type PayableDTO struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	FundID      string  `json:"fund_id"`
	PayableType string  `json:"payable_type"`
	Amount      string  `json:"amount"`
	Commission  *string `json:"commission,omitempty"`
	PaidDate    string  `json:"paid_date"`
	RecordedBy  string  `json:"recorded_by"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

// WithdrawalRequest is the request to process a withdrawal payout.
type WithdrawalRequest struct {
	FundID           string `json:"fund_id"`
	UserID           string `json:"user_id"`
	MonthNumber      int    `json:"month_number"`
	CommissionAmount string `json:"commission_amount"`
	RecordedBy       string `json:"recorded_by"`
}

// WithdrawalResponse is the result of a processed withdrawal.
type WithdrawalResponse struct {
	Payable PayableDTO `json:"payable"`
	Payment PaymentDTO `json:"payment"`
}

// CreateGroupRequest is the request to create a member group.
type CreateGroupRequest struct {
	Name    string           `json:"name"`
	Members []GroupMemberDTO `json:"members"`
}

// GroupMemberDTO represents one share in a member group.
type GroupMemberDTO struct {
	UserID          string `json:"user_id"`
	SharePercentage string `json:"share_percentage"`
}

// GroupDTO represents a member group in API responses.
type GroupDTO struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Members   []GroupMemberDTO `json:"members"`
	CreatedAt string           `json:"created_at,omitempty"`
}

// DistributeRequest is the request to split one group-slot payment.
type DistributeRequest struct {
	FundID        string `json:"fund_id"`
	TotalAmount   string `json:"total_amount"`
	MonthNumber   int    `json:"month_number"`
	PaymentMethod string `json:"payment_method"`
	RecordedBy    string `json:"recorded_by"`
}

// BonusRequest is the request to record a bonus payout to a member.
type BonusRequest struct {
	UserID     string `json:"user_id"`
	Amount     string `json:"amount"`
	RecordedBy string `json:"recorded_by"`
	Notes      string `json:"notes,omitempty"`
}

// SyncReportDTO is the result of a bulk reconciliation run.
type SyncReportDTO struct {
	ReconciledCount int `json:"reconciled_count"`
	SkippedCount    int `json:"skipped_count"`
	ErrorCount      int `json:"error_count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toFundDTO(f chit.Fund) FundDTO {
	return FundDTO{
		ID:                  string(f.ID),
		Name:                f.Name,
		PoolAmount:          f.PoolAmount.String(),
		DurationMonths:      f.DurationMonths,
		MemberCount:         f.MemberCount,
		StartDate:           f.StartDate.Format("2006-01-02"),
		MonthlyContribution: f.MonthlyContribution.String(),
		MonthlyBonus:        f.MonthlyBonus.String(),
		BaseCommission:      f.BaseCommission.String(),
		Status:              string(f.Status),
		CreatedAt:           f.CreatedAt.Format(time.RFC3339),
	}
}

func toMembershipDTO(m chit.Membership) MembershipDTO {
	dto := MembershipDTO{
		FundID:               string(m.FundID),
		UserID:               string(m.UserID),
		IsWithdrawn:          m.IsWithdrawn,
		EarlyWithdrawalMonth: m.EarlyWithdrawalMonth,
		TotalBonusReceived:   m.TotalBonusReceived.String(),
		TotalCommissionPaid:  m.TotalCommissionPaid.String(),
		CreatedAt:            m.CreatedAt.Format(time.RFC3339),
	}
	if m.IncreasedMonthly != nil {
		s := m.IncreasedMonthly.String()
		dto.IncreasedMonthly = &s
	}
	return dto
}

func toPaymentDTO(p chit.Payment) PaymentDTO {
	dto := PaymentDTO{
		ID:            string(p.ID),
		UserID:        string(p.UserID),
		FundID:        string(p.FundID),
		Amount:        p.Amount.String(),
		MonthNumber:   p.MonthNumber,
		PaymentType:   string(p.Type),
		PaymentMethod: string(p.Method),
		RecordedBy:    p.RecordedBy,
		PaymentDate:   p.PaymentDate.Format(time.RFC3339),
		Notes:         p.Notes,
		BatchID:       p.BatchID,
		CreatedAt:     p.CreatedAt.Format(time.RFC3339),
	}
	if p.Commission != nil {
		s := p.Commission.String()
		dto.Commission = &s
	}
	return dto
}

func toPaymentDTOs(payments []chit.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}

func toReceivableDTO(r chit.Receivable) ReceivableDTO {
	return ReceivableDTO{
		FundID:         string(r.FundID),
		UserID:         string(r.UserID),
		MonthNumber:    r.MonthNumber,
		ExpectedAmount: r.ExpectedAmount.String(),
		PaidAmount:     r.PaidAmount.String(),
		Status:         string(r.Status),
		DueDate:        r.DueDate.Format("2006-01-02"),
		UpdatedAt:      r.UpdatedAt.Format(time.RFC3339),
	}
}

func toReceivableDTOs(rows []chit.Receivable) []ReceivableDTO {
	dtos := make([]ReceivableDTO, len(rows))
	for i, r := range rows {
		dtos[i] = toReceivableDTO(r)
	}
	return dtos
}

func toPayableDTO(p chit.Payable) PayableDTO {
	dto := PayableDTO{
		ID:          string(p.ID),
		UserID:      string(p.UserID),
		FundID:      string(p.FundID),
		PayableType: string(p.Type),
		Amount:      p.Amount.String(),
		PaidDate:    p.PaidDate.Format(time.RFC3339),
		RecordedBy:  p.RecordedBy,
		Notes:       p.Notes,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
	if p.Commission != nil {
		s := p.Commission.String()
		dto.Commission = &s
	}
	return dto
}

func toPayableDTOs(rows []chit.Payable) []PayableDTO {
	dtos := make([]PayableDTO, len(rows))
	for i, p := range rows {
		dtos[i] = toPayableDTO(p)
	}
	return dtos
}

func toGroupDTO(g chit.MemberGroup) GroupDTO {
	members := make([]GroupMemberDTO, len(g.Members))
	for i, m := range g.Members {
		members[i] = GroupMemberDTO{
			UserID:          string(m.UserID),
			SharePercentage: m.SharePercentage.String(),
		}
	}
	return GroupDTO{
		ID:        string(g.ID),
		Name:      g.Name,
		Members:   members,
		CreatedAt: g.CreatedAt.Format(time.RFC3339),
	}
}
