package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/sand/forex-wallet-app/backend/internal/entities"
	"github.com/sand/forex-wallet-app/backend/internal/usecases"
)

type OrderService interface {
	CreateOrder(ctx context.Context, input usecases.CreateOrderInput) (*entities.ForexOrder, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*entities.ForexOrder, error)
	GetUserOrders(ctx context.Context, userID int64, limit, offset uint64) ([]entities.ForexOrder, error)
}

type createOrderRequest struct {
	UserID         int64  `json:"user_id"`
	UserEmail      string `json:"user_email"`
	Type           string `json:"type"`
	BaseCurrency   string `json:"base_currency"`
	TargetCurrency string `json:"target_currency"`
	Amount         string `json:"amount"`
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Money arrives as a decimal string; binary floats are never parsed.
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "amount must be a decimal string")
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), usecases.CreateOrderInput{
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		Type:           entities.OrderType(req.Type),
		BaseCurrency:   req.BaseCurrency,
		TargetCurrency: req.TargetCurrency,
		Amount:         amount,
	})
	if err != nil {
		h.logger.Error("[Create Order] Error creating order", "error", err, "user_id", req.UserID)
		h.writeFault(w, err)
		return
	}

	h.logger.Info("[Create Order] Order processed", "order_id", order.ID, "status", order.Status)

	// The order record carries its own outcome: COMPLETED, FAILED with a
	// readable message, or PENDING while retries are in flight.
	status := http.StatusCreated
	if order.Status == entities.OrderStatusPending {
		status = http.StatusAccepted
	}
	h.writeJSON(w, status, order)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.orderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, order)
}

func (h *HTTPHandler) GetUserOrders(w http.ResponseWriter, r *http.Request) {
	userIDParam := r.URL.Query().Get("user_id")
	if userIDParam == "" {
		h.writeError(w, http.StatusBadRequest, "Missing required parameters: user_id")
		return
	}

	userID, err := strconv.ParseInt(userIDParam, 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "user_id must be an integer")
		return
	}

	limit, offset := paginationParams(r)

	orders, err := h.orderService.GetUserOrders(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, orders)
}

func paginationParams(r *http.Request) (limit, offset uint64) {
	limit = 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.ParseUint(raw, 10, 64); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}
