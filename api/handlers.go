/*
handlers.go - HTTP API handlers for the chit ledger engine

PURPOSE:
  Exposes the ledger & reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Funds:
    GET    /api/funds                    List all funds
    POST   /api/funds                    Create fund
    GET    /api/funds/{id}               Get fund (status recomputed)
    POST   /api/funds/{id}/close         Administrative close
    GET    /api/funds/{id}/members       List memberships
    POST   /api/funds/{id}/members       Enroll a member
    GET    /api/funds/{id}/payments      Payment history (incl. batch ids)
    GET    /api/funds/{id}/receivables   Expected-vs-paid projection
    GET    /api/funds/{id}/payables      Disbursement history

  Members:
    GET    /api/funds/{id}/members/{userId}              Membership detail
    PUT    /api/funds/{id}/members/{userId}/installment  Installment override
    POST   /api/funds/{id}/members/{userId}/bonus        Disburse a bonus

  Payments:
    POST   /api/payments                 Record a payment event

  Withdrawals:
    POST   /api/withdrawals              Process a one-time payout

  Groups:
    POST   /api/groups                   Create member group
    GET    /api/groups/{id}              Get group
    POST   /api/groups/{id}/distribute   Split one group-slot payment

  Users:
    GET    /api/users/{id}/receivables   Cross-fund receivables
    GET    /api/users/{id}/payables      Cross-fund payables

  Admin:
    POST   /api/admin/sync-payments      Bulk reconciliation run

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Entity not found
  - 409: Business-rule violation (duplicate membership, re-withdrawal,
         bad shares, concurrency conflict)
  - 500: Storage failures

  Writes hitting a concurrency conflict are retried once before 409.

SECURITY NOTE:
  Authentication is out of scope here; recorded_by carries the principal
  already authenticated upstream. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - chit/errors.go: Error categories this mapping is built on
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nidhi/chit-engine/chit"
	"github.com/nidhi/chit-engine/money"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *chit.Engine
	Log    *logrus.Logger
}

// NewHandler creates a new handler around a wired engine.
func NewHandler(engine *chit.Engine, log *logrus.Logger) *Handler {
	return &Handler{Engine: engine, Log: log}
}

// =============================================================================
// FUND HANDLERS
// =============================================================================

// CreateFund creates a fund from a validated spec.
// POST /api/funds
func (h *Handler) CreateFund(w http.ResponseWriter, r *http.Request) {
	var req CreateFundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pool, err := money.Parse(req.PoolAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pool_amount", err)
		return
	}
	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date, want YYYY-MM-DD", err)
		return
	}

	spec := chit.FundSpec{
		Name:           req.Name,
		PoolAmount:     pool,
		DurationMonths: req.DurationMonths,
		MemberCount:    req.MemberCount,
		StartDate:      startDate,
	}
	if req.MonthlyContribution != nil {
		contribution, err := money.Parse(*req.MonthlyContribution)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid monthly_contribution", err)
			return
		}
		spec.MonthlyContribution = &contribution
	}
	if req.MonthlyBonus != "" {
		if spec.MonthlyBonus, err = money.Parse(req.MonthlyBonus); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid monthly_bonus", err)
			return
		}
	}
	if req.BaseCommission != "" {
		if spec.BaseCommission, err = money.Parse(req.BaseCommission); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid base_commission", err)
			return
		}
	}

	fund, err := h.Engine.Funds.CreateFund(r.Context(), spec)
	if err != nil {
		writeDomainError(w, "Failed to create fund", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFundDTO(*fund))
}

// ListFunds returns all funds with recomputed statuses.
// GET /api/funds
func (h *Handler) ListFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := h.Engine.Funds.ListFunds(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to list funds", err)
		return
	}
	dtos := make([]FundDTO, len(funds))
	for i, f := range funds {
		dtos[i] = toFundDTO(f)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetFund returns a single fund.
// GET /api/funds/{id}
func (h *Handler) GetFund(w http.ResponseWriter, r *http.Request) {
	id := chit.FundID(chi.URLParam(r, "id"))
	fund, err := h.Engine.Funds.GetFund(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get fund", err)
		return
	}
	writeJSON(w, http.StatusOK, toFundDTO(*fund))
}

// CloseFund applies the administrative close override.
// POST /api/funds/{id}/close
func (h *Handler) CloseFund(w http.ResponseWriter, r *http.Request) {
	id := chit.FundID(chi.URLParam(r, "id"))
	if err := h.Engine.Funds.CloseFund(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to close fund", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// MEMBERSHIP HANDLERS
// =============================================================================

// AddMember enrolls a user in a fund.
// POST /api/funds/{id}/members
func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.Engine.Members.AddMember(r.Context(), fundID, chit.UserID(req.UserID))
	if err != nil {
		writeDomainError(w, "Failed to add member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMembershipDTO(*m))
}

// ListMembers returns all memberships of a fund.
// GET /api/funds/{id}/members
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))
	members, err := h.Engine.Members.ListMembers(r.Context(), fundID)
	if err != nil {
		writeDomainError(w, "Failed to list members", err)
		return
	}
	dtos := make([]MembershipDTO, len(members))
	for i, m := range members {
		dtos[i] = toMembershipDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns one membership.
// GET /api/funds/{id}/members/{userId}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))
	userID := chit.UserID(chi.URLParam(r, "userId"))

	m, err := h.Engine.Members.GetMembership(r.Context(), fundID, userID)
	if err != nil {
		writeDomainError(w, "Failed to get membership", err)
		return
	}
	writeJSON(w, http.StatusOK, toMembershipDTO(*m))
}

// SetInstallment records a per-member increased monthly amount.
// PUT /api/funds/{id}/members/{userId}/installment
func (h *Handler) SetInstallment(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))
	userID := chit.UserID(chi.URLParam(r, "userId"))

	var req struct {
		Amount string `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	if err := h.Engine.Members.SetInstallmentOverride(r.Context(), fundID, userID, amount); err != nil {
		writeDomainError(w, "Failed to set installment override", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecordBonus disburses a bonus to a member.
// POST /api/funds/{id}/members/{userId}/bonus
func (h *Handler) RecordBonus(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))
	userID := chit.UserID(chi.URLParam(r, "userId"))

	var req BonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if req.RecordedBy == "" {
		writeError(w, http.StatusBadRequest, "recorded_by is required", nil)
		return
	}

	payable, err := h.Engine.Members.RecordBonus(r.Context(), fundID, userID, amount, req.RecordedBy)
	if err != nil {
		writeDomainError(w, "Failed to record bonus", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayableDTO(*payable))
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// RecordPayment records one payment event and reconciles its receivable.
// POST /api/payments
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := money.Parse(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	input := chit.RecordPaymentInput{
		UserID:      chit.UserID(req.UserID),
		FundID:      chit.FundID(req.FundID),
		Amount:      amount,
		MonthNumber: req.MonthNumber,
		Type:        chit.PaymentType(req.PaymentType),
		Method:      chit.PaymentMethod(req.PaymentMethod),
		RecordedBy:  req.RecordedBy,
		Notes:       req.Notes,
	}
	if req.Commission != nil {
		commission, err := money.Parse(*req.Commission)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid commission", err)
			return
		}
		input.Commission = &commission
	}
	if req.PaymentDate != "" {
		input.PaymentDate, err = time.Parse("2006-01-02", req.PaymentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid payment_date, want YYYY-MM-DD", err)
			return
		}
	}

	payment, err := h.Engine.Recorder.RecordPayment(r.Context(), input)
	if chit.IsRetryable(err) {
		payment, err = h.Engine.Recorder.RecordPayment(r.Context(), input)
	}
	if err != nil {
		writeDomainError(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTO(*payment))
}

// FundPayments returns a fund's payment history.
// GET /api/funds/{id}/payments
func (h *Handler) FundPayments(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))
	payments, err := h.Engine.Recorder.PaymentsByFund(r.Context(), fundID)
	if err != nil {
		writeDomainError(w, "Failed to list payments", err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

// =============================================================================
// WITHDRAWAL HANDLERS
// =============================================================================

// ProcessWithdrawal executes a one-time payout.
// POST /api/withdrawals
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req WithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	commission, err := money.Parse(req.CommissionAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid commission_amount", err)
		return
	}

	payable, payment, err := h.Engine.Withdrawals.Withdraw(r.Context(),
		chit.FundID(req.FundID), chit.UserID(req.UserID), req.MonthNumber, commission, req.RecordedBy)
	if chit.IsRetryable(err) {
		payable, payment, err = h.Engine.Withdrawals.Withdraw(r.Context(),
			chit.FundID(req.FundID), chit.UserID(req.UserID), req.MonthNumber, commission, req.RecordedBy)
	}
	if err != nil {
		writeDomainError(w, "Failed to process withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, WithdrawalResponse{
		Payable: toPayableDTO(*payable),
		Payment: toPaymentDTO(*payment),
	})
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// CreateGroup creates a member group with share percentages.
// POST /api/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	members := make([]chit.GroupMember, len(req.Members))
	for i, m := range req.Members {
		share, err := decimal.NewFromString(m.SharePercentage)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid share_percentage", err)
			return
		}
		members[i] = chit.GroupMember{UserID: chit.UserID(m.UserID), SharePercentage: share}
	}

	group, err := h.Engine.Groups.CreateGroup(r.Context(), req.Name, members)
	if err != nil {
		writeDomainError(w, "Failed to create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, toGroupDTO(*group))
}

// GetGroup returns one member group.
// GET /api/groups/{id}
func (h *Handler) GetGroup(w http.ResponseWriter, r *http.Request) {
	id := chit.GroupID(chi.URLParam(r, "id"))
	group, err := h.Engine.Groups.GetGroup(r.Context(), id)
	if err != nil {
		writeDomainError(w, "Failed to get group", err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupDTO(*group))
}

// DistributeGroupPayment splits one group-slot payment across co-owners.
// POST /api/groups/{id}/distribute
func (h *Handler) DistributeGroupPayment(w http.ResponseWriter, r *http.Request) {
	groupID := chit.GroupID(chi.URLParam(r, "id"))

	var req DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	total, err := money.Parse(req.TotalAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total_amount", err)
		return
	}

	payments, err := h.Engine.Groups.DistributeGroupPayment(r.Context(), groupID,
		chit.FundID(req.FundID), total, req.MonthNumber,
		chit.PaymentMethod(req.PaymentMethod), req.RecordedBy)
	if chit.IsRetryable(err) {
		payments, err = h.Engine.Groups.DistributeGroupPayment(r.Context(), groupID,
			chit.FundID(req.FundID), total, req.MonthNumber,
			chit.PaymentMethod(req.PaymentMethod), req.RecordedBy)
	}
	if err != nil {
		writeDomainError(w, "Failed to distribute group payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentDTOs(payments))
}

// =============================================================================
// PROJECTION HANDLERS
// =============================================================================

// FundReceivables returns the expected-vs-paid projection for a fund.
// GET /api/funds/{id}/receivables
func (h *Handler) FundReceivables(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))
	rows, err := h.Engine.Reconciler.ReceivablesByFund(r.Context(), fundID)
	if err != nil {
		writeDomainError(w, "Failed to list receivables", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceivableDTOs(rows))
}

// FundPayables returns a fund's disbursement history.
// GET /api/funds/{id}/payables
func (h *Handler) FundPayables(w http.ResponseWriter, r *http.Request) {
	fundID := chit.FundID(chi.URLParam(r, "id"))
	rows, err := h.Engine.Reconciler.PayablesByFund(r.Context(), fundID)
	if err != nil {
		writeDomainError(w, "Failed to list payables", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayableDTOs(rows))
}

// UserReceivables returns a member's receivables across all funds.
// GET /api/users/{id}/receivables
func (h *Handler) UserReceivables(w http.ResponseWriter, r *http.Request) {
	userID := chit.UserID(chi.URLParam(r, "id"))
	rows, err := h.Engine.Reconciler.ReceivablesByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to list receivables", err)
		return
	}
	writeJSON(w, http.StatusOK, toReceivableDTOs(rows))
}

// UserPayables returns a member's payables across all funds.
// GET /api/users/{id}/payables
func (h *Handler) UserPayables(w http.ResponseWriter, r *http.Request) {
	userID := chit.UserID(chi.URLParam(r, "id"))
	rows, err := h.Engine.Reconciler.PayablesByUser(r.Context(), userID)
	if err != nil {
		writeDomainError(w, "Failed to list payables", err)
		return
	}
	writeJSON(w, http.StatusOK, toPayableDTOs(rows))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// SyncPayments reconciles every monthly payment not yet reflected in a
// receivable. Re-runnable; replays count as skipped.
// POST /api/admin/sync-payments
func (h *Handler) SyncPayments(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Reconciler.SyncAllPayments(r.Context())
	if err != nil {
		writeDomainError(w, "Failed to sync payments", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncReportDTO{
		ReconciledCount: report.ReconciledCount,
		SkippedCount:    report.SkippedCount,
		ErrorCount:      report.ErrorCount,
	})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors onto HTTP statuses:
// validation 400, missing entities 404, business rules and concurrency 409,
// everything else 500.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var ve *chit.ValidationError
	var pe *money.ParseError
	switch {
	case errors.As(err, &ve) || errors.As(err, &pe):
		writeError(w, http.StatusBadRequest, message, err)
	case chit.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case chit.IsClientError(err) || errors.Is(err, chit.ErrConcurrencyConflict):
		writeError(w, http.StatusConflict, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
