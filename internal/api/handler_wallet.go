package api

import (
	"net/http"

	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
	"github.com/fastprodman/retailpay/internal/services/ledger"
	"github.com/fastprodman/retailpay/internal/services/registration"
)

// GetBalanceHandler handles GET /wallet/balance
func (h *HandlerProvider) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	id := caller(r)

	wlt, err := h.Wallets.Wallet(r.Context(), id.UserID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ownerId":   wlt.OwnerID,
		"balance":   wlt.Balance,
		"currency":  wlt.Currency,
		"status":    wlt.Status,
		"updatedAt": wlt.UpdatedAt,
	})
}

// ListTransactionsHandler handles GET /wallet/transactions
func (h *HandlerProvider) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	list, err := h.Wallets.History(r.Context(), caller(r).UserID, limit)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"transactions": list})
}

type creditRequest struct {
	Amount money.Amount `json:"amount"`
	Note   string       `json:"note"`
}

// AdminCreditHandler handles POST /admin/wallets/{ownerId}/credit
func (h *HandlerProvider) AdminCreditHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseOwnerIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	var req creditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Note == "" {
		writeServiceError(w, r, registration.ErrNoteRequired)

		return
	}

	t, err := h.Wallets.Credit(r.Context(), ledger.Credit{
		OwnerID:    ownerID,
		Amount:     req.Amount,
		Kind:       transactions.KindAdminAdjustment,
		Reason:     "admin credit",
		Manual:     true,
		ManualNote: req.Note,
	})
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	h.Logger.InfoContext(r.Context(), "admin credit", "owner_id", ownerID, "amount", req.Amount, "admin_id", caller(r).UserID)
	writeJSON(w, http.StatusCreated, t)
}

type reverseRequest struct {
	Note string `json:"note"`
}

// AdminReverseHandler handles POST /admin/transactions/{transactionId}/reverse
func (h *HandlerProvider) AdminReverseHandler(w http.ResponseWriter, r *http.Request) {
	txID, err := parseUUIDParam(r, "transactionId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	var req reverseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Note == "" {
		writeServiceError(w, r, registration.ErrNoteRequired)

		return
	}

	refund, err := h.Wallets.Reverse(r.Context(), ledger.Reversal{TransactionID: txID, Note: req.Note})
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, refund)
}

// AdminWalletAuditHandler handles GET /admin/wallets/{ownerId}/audit
func (h *HandlerProvider) AdminWalletAuditHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseOwnerIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	report, err := h.Wallets.Audit(r.Context(), ownerID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, report)
}
