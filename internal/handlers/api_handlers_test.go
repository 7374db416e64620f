package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
	"github.com/sand/forex-wallet-app/backend/internal/entities"
	"github.com/sand/forex-wallet-app/backend/internal/usecases"
)

type fakeOrderService struct {
	order *entities.ForexOrder
	err   error

	gotInput  usecases.CreateOrderInput
	gotLimit  uint64
	gotOffset uint64
}

func (f *fakeOrderService) CreateOrder(_ context.Context, input usecases.CreateOrderInput) (*entities.ForexOrder, error) {
	f.gotInput = input
	return f.order, f.err
}

func (f *fakeOrderService) GetOrder(_ context.Context, _ uuid.UUID) (*entities.ForexOrder, error) {
	return f.order, f.err
}

func (f *fakeOrderService) GetUserOrders(_ context.Context, _ int64, limit, offset uint64) ([]entities.ForexOrder, error) {
	f.gotLimit, f.gotOffset = limit, offset
	if f.err != nil {
		return nil, f.err
	}
	return []entities.ForexOrder{}, nil
}

type fakeWalletService struct {
	wallet entities.Wallet
	err    error
}

func (f *fakeWalletService) Adjust(_ context.Context, _ int64, _ string, _ decimal.Decimal, _ usecases.AdjustDirection, _ string) (entities.Wallet, error) {
	return f.wallet, f.err
}

func (f *fakeWalletService) GetUserWallets(_ context.Context, _ int64) ([]entities.Wallet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []entities.Wallet{f.wallet}, nil
}

func (f *fakeWalletService) GetWalletTransactions(_ context.Context, _ uuid.UUID, _, _ uint64) ([]entities.WalletTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []entities.WalletTransaction{}, nil
}

func newTestRouter(orders *fakeOrderService, wallets *fakeWalletService) *mux.Router {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHTTPHandler(logger, orders, wallets, nil, nil)
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateOrderStatusReflectsOutcome(t *testing.T) {
	cases := []struct {
		name       string
		status     entities.OrderStatus
		wantStatus int
	}{
		{"completed order", entities.OrderStatusCompleted, http.StatusCreated},
		{"failed order", entities.OrderStatusFailed, http.StatusCreated},
		{"pending order still retrying", entities.OrderStatusPending, http.StatusAccepted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			orders := &fakeOrderService{order: &entities.ForexOrder{ID: uuid.New(), Status: tc.status}}
			router := newTestRouter(orders, &fakeWalletService{})

			rec := doRequest(t, router, http.MethodPost, "/orders",
				`{"user_id":7,"user_email":"t@example.com","type":"BUY","base_currency":"USD","target_currency":"EUR","amount":"100.00"}`)

			require.Equal(t, tc.wantStatus, rec.Code)
			var got entities.ForexOrder
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			require.Equal(t, tc.status, got.Status)
		})
	}
}

func TestCreateOrderParsesDecimalAmount(t *testing.T) {
	orders := &fakeOrderService{order: &entities.ForexOrder{Status: entities.OrderStatusCompleted}}
	router := newTestRouter(orders, &fakeWalletService{})

	rec := doRequest(t, router, http.MethodPost, "/orders",
		`{"user_id":7,"user_email":"t@example.com","type":"BUY","base_currency":"USD","target_currency":"EUR","amount":"0.015"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, orders.gotInput.Amount.Equal(decimal.RequireFromString("0.015")))

	rec = doRequest(t, router, http.MethodPost, "/orders",
		`{"user_id":7,"amount":"not a number"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFaultCodesMapToHTTPStatus(t *testing.T) {
	cases := []struct {
		code fault.Code
		want int
	}{
		{fault.CodeNotFound, http.StatusNotFound},
		{fault.CodeInvalidArgument, http.StatusBadRequest},
		{fault.CodeFailedPrecondition, http.StatusUnprocessableEntity},
		{fault.CodeUnavailable, http.StatusServiceUnavailable},
		{fault.CodeDeadlineExceeded, http.StatusServiceUnavailable},
		{fault.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			orders := &fakeOrderService{err: fault.New(tc.code, "boom")}
			router := newTestRouter(orders, &fakeWalletService{})

			rec := doRequest(t, router, http.MethodGet, "/orders/"+uuid.NewString(), "")
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestInternalErrorsNeverLeakDetails(t *testing.T) {
	orders := &fakeOrderService{err: fault.New(fault.CodeInternal, "pq: constraint violated on forex_orders")}
	router := newTestRouter(orders, &fakeWalletService{})

	rec := doRequest(t, router, http.MethodGet, "/orders/"+uuid.NewString(), "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "internal error", body["error"])
}

func TestGetUserOrdersRequiresUserIDAndClampsPagination(t *testing.T) {
	orders := &fakeOrderService{}
	router := newTestRouter(orders, &fakeWalletService{})

	rec := doRequest(t, router, http.MethodGet, "/orders/user", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/orders/user?user_id=7&limit=1000&offset=20", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, uint64(50), orders.gotLimit, "out-of-range limit falls back to default")
	require.Equal(t, uint64(20), orders.gotOffset)
}

func TestFundWalletReturnsAdjustedWallet(t *testing.T) {
	wallets := &fakeWalletService{wallet: entities.Wallet{
		ID: uuid.New(), UserID: 7, Currency: "USD",
		Balance: decimal.RequireFromString("250.00"),
	}}
	router := newTestRouter(&fakeOrderService{}, wallets)

	rec := doRequest(t, router, http.MethodPost, "/wallet/fund",
		`{"user_id":7,"currency":"USD","amount":"250.00"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got entities.Wallet
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.Balance.Equal(decimal.RequireFromString("250.00")))
}

func TestWithdrawInsufficientBalanceIsUnprocessable(t *testing.T) {
	wallets := &fakeWalletService{err: fault.New(fault.CodeFailedPrecondition, "insufficient USD balance")}
	router := newTestRouter(&fakeOrderService{}, wallets)

	rec := doRequest(t, router, http.MethodPost, "/wallet/withdraw",
		`{"user_id":7,"currency":"USD","amount":"9000.00"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "insufficient USD balance", body["error"])
}
