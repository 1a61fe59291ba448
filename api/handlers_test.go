package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nidhi/chit-engine/api"
	"github.com/nidhi/chit-engine/chit"
	"github.com/nidhi/chit-engine/chit/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	engine := chit.NewEngine(store.NewMemory(), log)
	srv := httptest.NewServer(api.NewRouter(api.NewHandler(engine, log)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func createFund(t *testing.T, srv *httptest.Server) api.FundDTO {
	t.Helper()
	var fund api.FundDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/funds", api.CreateFundRequest{
		Name:           "test fund",
		PoolAmount:     "100000",
		DurationMonths: 20,
		MemberCount:    20,
		StartDate:      "2025-01-01",
	}, &fund)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return fund
}

func addMember(t *testing.T, srv *httptest.Server, fundID, userID string) {
	t.Helper()
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/funds/"+fundID+"/members",
		api.AddMemberRequest{UserID: userID}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// END-TO-END FLOW TESTS
// =============================================================================

func TestAPI_PaymentFlow(t *testing.T) {
	// GIVEN: A fund with one enrolled member
	// WHEN: Recording a monthly payment over HTTP
	// THEN: The receivable projection shows the month paid

	srv := newTestServer(t)
	fund := createFund(t, srv)
	addMember(t, srv, fund.ID, "user-1")

	var payment api.PaymentDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/payments", api.RecordPaymentRequest{
		UserID:        "user-1",
		FundID:        fund.ID,
		Amount:        "5000",
		MonthNumber:   1,
		PaymentType:   "monthly",
		PaymentMethod: "upi",
		RecordedBy:    "collector",
	}, &payment)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "5000.00", payment.Amount)

	var rows []api.ReceivableDTO
	resp = doJSON(t, http.MethodGet, srv.URL+"/api/funds/"+fund.ID+"/receivables", nil, &rows)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, rows, 1)
	assert.Equal(t, "paid", rows[0].Status)
	assert.Equal(t, "5000.00", rows[0].PaidAmount)
}

func TestAPI_WithdrawalFlow(t *testing.T) {
	// GIVEN: A fund with one enrolled member
	// WHEN: Processing a withdrawal, then attempting it again
	// THEN: First returns 201 with the 95000 payout; second returns 409

	srv := newTestServer(t)
	fund := createFund(t, srv)
	addMember(t, srv, fund.ID, "user-1")

	req := api.WithdrawalRequest{
		FundID:           fund.ID,
		UserID:           "user-1",
		MonthNumber:      5,
		CommissionAmount: "5000",
		RecordedBy:       "manager",
	}

	var result api.WithdrawalResponse
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/withdrawals", req, &result)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "95000.00", result.Payable.Amount)
	assert.Equal(t, "withdrawal", result.Payable.PayableType)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/withdrawals", req, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_GroupDistributionFlow(t *testing.T) {
	// GIVEN: Three members co-owning one slot 50/30/20
	// WHEN: Distributing one 5000 slot payment
	// THEN: Three payments are returned, tagged with one batch id

	srv := newTestServer(t)
	fund := createFund(t, srv)
	for _, u := range []string{"u1", "u2", "u3"} {
		addMember(t, srv, fund.ID, u)
	}

	var group api.GroupDTO
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups", api.CreateGroupRequest{
		Name: "slot-3",
		Members: []api.GroupMemberDTO{
			{UserID: "u1", SharePercentage: "50"},
			{UserID: "u2", SharePercentage: "30"},
			{UserID: "u3", SharePercentage: "20"},
		},
	}, &group)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var payments []api.PaymentDTO
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/groups/"+group.ID+"/distribute",
		api.DistributeRequest{
			FundID:        fund.ID,
			TotalAmount:   "5000",
			MonthNumber:   1,
			PaymentMethod: "cash",
			RecordedBy:    "collector",
		}, &payments)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, payments, 3)
	for _, p := range payments {
		assert.Equal(t, payments[0].BatchID, p.BatchID)
	}
}

func TestAPI_SyncPayments(t *testing.T) {
	srv := newTestServer(t)
	fund := createFund(t, srv)
	addMember(t, srv, fund.ID, "user-1")

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/payments", api.RecordPaymentRequest{
		UserID: "user-1", FundID: fund.ID, Amount: "5000", MonthNumber: 1,
		PaymentType: "monthly", PaymentMethod: "cash", RecordedBy: "collector",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var report api.SyncReportDTO
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/admin/sync-payments", nil, &report)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, report.ReconciledCount)
	assert.Equal(t, 1, report.SkippedCount, "live recording already reconciled it")
}

// =============================================================================
// ERROR MAPPING TESTS
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	srv := newTestServer(t)
	fund := createFund(t, srv)
	addMember(t, srv, fund.ID, "user-1")

	t.Run("validation is 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/funds", api.CreateFundRequest{
			Name: "", PoolAmount: "100000", DurationMonths: 20, MemberCount: 20,
			StartDate: "2025-01-01",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("malformed money is 400", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/payments", api.RecordPaymentRequest{
			UserID: "user-1", FundID: fund.ID, Amount: "-100", MonthNumber: 1,
			PaymentType: "monthly", PaymentMethod: "cash", RecordedBy: "collector",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("missing fund is 404", func(t *testing.T) {
		resp := doJSON(t, http.MethodGet, srv.URL+"/api/funds/missing", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("duplicate membership is 409", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/funds/"+fund.ID+"/members",
			api.AddMemberRequest{UserID: "user-1"}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("bad shares are 409", func(t *testing.T) {
		resp := doJSON(t, http.MethodPost, srv.URL+"/api/groups", api.CreateGroupRequest{
			Name: "broken",
			Members: []api.GroupMemberDTO{
				{UserID: "u1", SharePercentage: "50"},
				{UserID: "u2", SharePercentage: "40"},
			},
		}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}
