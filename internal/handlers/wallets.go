package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sand/forex-wallet-app/backend/internal/entities"
	"github.com/sand/forex-wallet-app/backend/internal/usecases"
)

type WalletService interface {
	Adjust(ctx context.Context, userID int64, currency string, amount decimal.Decimal, direction usecases.AdjustDirection, description string) (entities.Wallet, error)
	GetUserWallets(ctx context.Context, userID int64) ([]entities.Wallet, error)
	GetWalletTransactions(ctx context.Context, walletID uuid.UUID, limit, offset uint64) ([]entities.WalletTransaction, error)
}

type adjustRequest struct {
	UserID      int64  `json:"user_id"`
	Currency    string `json:"currency"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

func (h *HTTPHandler) FundWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustWallet(w, r, usecases.AdjustFund)
}

func (h *HTTPHandler) WithdrawWallet(w http.ResponseWriter, r *http.Request) {
	h.adjustWallet(w, r, usecases.AdjustWithdraw)
}

func (h *HTTPHandler) adjustWallet(w http.ResponseWriter, r *http.Request, direction usecases.AdjustDirection) {
	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "amount must be a decimal string")
		return
	}

	description := req.Description
	if description == "" {
		description = string(direction)
	}

	wallet, err := h.walletService.Adjust(r.Context(), req.UserID, req.Currency, amount, direction, description)
	if err != nil {
		h.logger.Error("[Adjust Wallet] Error adjusting wallet",
			"error", err, "user_id", req.UserID, "currency", req.Currency, "direction", direction)
		h.writeFault(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, wallet)
}

func (h *HTTPHandler) GetUserWallets(w http.ResponseWriter, r *http.Request) {
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

	wallets, err := h.walletService.GetUserWallets(r.Context(), userID)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, wallets)
}

func (h *HTTPHandler) GetWalletTransactions(w http.ResponseWriter, r *http.Request) {
	walletIDParam := r.URL.Query().Get("wallet_id")
	if walletIDParam == "" {
		h.writeError(w, http.StatusBadRequest, "Missing required parameters: wallet_id")
		return
	}

	walletID, err := uuid.Parse(walletIDParam)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "wallet_id must be a uuid")
		return
	}

	limit, offset := paginationParams(r)

	transactions, err := h.walletService.GetWalletTransactions(r.Context(), walletID, limit, offset)
	if err != nil {
		h.writeFault(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, transactions)
}
