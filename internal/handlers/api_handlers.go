package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sand/forex-wallet-app/backend/internal/core/fault"
	"github.com/sand/forex-wallet-app/backend/internal/usecases"
)

var _ OrderService = (*usecases.OrderService)(nil)
var _ WalletService = (*usecases.WalletService)(nil)

type HTTPHandler struct {
	logger        *slog.Logger
	orderService  OrderService
	walletService WalletService

	db  *pgxpool.Pool
	rdb *redis.Client
}

func NewHTTPHandler(logger *slog.Logger, orderService OrderService, walletService WalletService, db *pgxpool.Pool, rdb *redis.Client) *HTTPHandler {
	return &HTTPHandler{
		logger:        logger,
		orderService:  orderService,
		walletService: walletService,
		db:            db,
		rdb:           rdb,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Orders
	router.HandleFunc("/orders", h.CreateOrder).Methods("POST")
	router.HandleFunc("/orders/user", h.GetUserOrders).Methods("GET")
	router.HandleFunc("/orders/{orderId}", h.GetOrder).Methods("GET")

	// Wallets
	router.HandleFunc("/wallet/fund", h.FundWallet).Methods("POST")
	router.HandleFunc("/wallet/withdraw", h.WithdrawWallet).Methods("POST")
	router.HandleFunc("/wallets/user", h.GetUserWallets).Methods("GET")
	router.HandleFunc("/wallet/transactions", h.GetWalletTransactions).Methods("GET")

	// Health
	router.HandleFunc("/health", h.Health).Methods("GET")
}

func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	if h.rdb != nil {
		if err := h.rdb.Ping(ctx).Err(); err != nil {
			h.writeError(w, http.StatusServiceUnavailable, "redis unreachable")
			return
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeFault maps a classified error to an HTTP status. Messages come
// from the fault itself, so internals never leak.
func (h *HTTPHandler) writeFault(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.CodeOf(err) {
	case fault.CodeNotFound:
		status = http.StatusNotFound
	case fault.CodeInvalidArgument:
		status = http.StatusBadRequest
	case fault.CodeFailedPrecondition:
		status = http.StatusUnprocessableEntity
	case fault.CodeUnavailable, fault.CodeDeadlineExceeded, fault.CodeAborted:
		status = http.StatusServiceUnavailable
	}

	message := fault.Message(err)
	if status == http.StatusInternalServerError {
		message = "internal error"
		h.logger.Error("request failed", "error", err)
	}

	h.writeError(w, status, message)
}
