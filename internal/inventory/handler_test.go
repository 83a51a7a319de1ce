package inventory

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type stubCosting struct {
	receiveFn func(ctx context.Context, in ReceiveInput) (ReceiveResult, error)
	issueFn   func(ctx context.Context, in IssueInput) (IssueResult, error)
	lockFn    func(ctx context.Context, company, productID string, date time.Time, actor string) (int, error)
	ledgerFn  func(ctx context.Context, filter LedgerFilter) ([]LedgerLine, error)
}

func (s *stubCosting) Receive(ctx context.Context, in ReceiveInput) (ReceiveResult, error) {
	return s.receiveFn(ctx, in)
}

func (s *stubCosting) Issue(ctx context.Context, in IssueInput) (IssueResult, error) {
	return s.issueFn(ctx, in)
}

func (s *stubCosting) LockThrough(ctx context.Context, company, productID string, date time.Time, actor string) (int, error) {
	return s.lockFn(ctx, company, productID, date, actor)
}

func (s *stubCosting) Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerLine, error) {
	return s.ledgerFn(ctx, filter)
}

func (s *stubCosting) GetBalance(context.Context, string, string) (Balance, error) {
	return Balance{}, ErrNotFound
}

func (s *stubCosting) LockedQueue(context.Context, string, string) ([]LockedEntry, error) {
	return nil, nil
}

func serve(t *testing.T, svc costingService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc)
	r := chi.NewRouter()
	h.MountRoutes(r)
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(httpx.ActorHeader, "wh")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestReceiveBindsMovement(t *testing.T) {
	var captured ReceiveInput
	svc := &stubCosting{receiveFn: func(_ context.Context, in ReceiveInput) (ReceiveResult, error) {
		captured = in
		return ReceiveResult{RunningAverage: decimal.NewFromInt(11)}, nil
	}}
	rr := serve(t, svc, http.MethodPost, "/companies/acme/inventory/SKU-1/receipts", `{"date":"2024-01-02","quantity":"50","unit_cost":"13","source_ref":"GRN-2"}`)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "acme", captured.Company)
	assert.Equal(t, "SKU-1", captured.ProductID)
	assert.Equal(t, "wh", captured.Actor)
	assert.True(t, captured.Quantity.Equal(decimal.NewFromInt(50)))
	assert.True(t, captured.UnitCost.Equal(decimal.NewFromInt(13)))
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), captured.Date)
}

func TestIssueErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{ErrInsufficientInventory, http.StatusUnprocessableEntity},
		{ErrTransactionLocked, http.StatusConflict},
		{ErrDuplicateMovement, http.StatusConflict},
		{ErrInvalidQuantity, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			svc := &stubCosting{issueFn: func(context.Context, IssueInput) (IssueResult, error) {
				return IssueResult{}, tc.err
			}}
			rr := serve(t, svc, http.MethodPost, "/companies/acme/inventory/SKU-1/issues", `{"date":"2024-01-03","quantity":"30"}`)
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestMovementRequiresDate(t *testing.T) {
	svc := &stubCosting{}
	rr := serve(t, svc, http.MethodPost, "/companies/acme/inventory/SKU-1/issues", `{"quantity":"30"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLockPassesThroughDate(t *testing.T) {
	var through time.Time
	svc := &stubCosting{lockFn: func(_ context.Context, _, _ string, date time.Time, _ string) (int, error) {
		through = date
		return 4, nil
	}}
	rr := serve(t, svc, http.MethodPost, "/companies/acme/inventory/SKU-1/lock", `{"through":"2024-01-31"}`)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), through)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.EqualValues(t, 4, body["locked"])
}

func TestStockCardParsesRange(t *testing.T) {
	var captured LedgerFilter
	svc := &stubCosting{ledgerFn: func(_ context.Context, filter LedgerFilter) ([]LedgerLine, error) {
		captured = filter
		return nil, nil
	}}
	rr := serve(t, svc, http.MethodGet, "/companies/acme/inventory/SKU-1/stock-card?from=2024-01-01&to=2024-01-31", "")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), captured.From)
	assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), captured.To)
	assert.JSONEq(t, `{"items":[],"count":0}`, rr.Body.String())

	rr = serve(t, svc, http.MethodGet, "/companies/acme/inventory/SKU-1/stock-card?from=01-01-2024", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestBalanceNotFound(t *testing.T) {
	rr := serve(t, &stubCosting{}, http.MethodGet, "/companies/acme/inventory/SKU-1/balance", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
