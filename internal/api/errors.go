package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/repos/catalog"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/repos/registrations"
	"github.com/fastprodman/retailpay/internal/services/ledger"
	"github.com/fastprodman/retailpay/internal/services/orchestrator"
	"github.com/fastprodman/retailpay/internal/services/reconcile"
	"github.com/fastprodman/retailpay/internal/services/registration"
)

// Stable error codes returned to clients.
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeUnauthenticated        = "UNAUTHENTICATED"
	CodeForbidden              = "FORBIDDEN"
	CodeInsufficientFunds      = "INSUFFICIENT_FUNDS"
	CodeWalletNotFound         = "WALLET_NOT_FOUND"
	CodeWalletLocked           = "WALLET_LOCKED"
	CodeProviderRejected       = "PROVIDER_REJECTED"
	CodeProviderUnavailable    = "PROVIDER_UNAVAILABLE"
	CodeReconciliationRequired = "RECONCILIATION_REQUIRED"
	CodeBillFetchRequired      = "BILL_FETCH_REQUIRED"
	CodeBillMismatch           = "BILL_MISMATCH"
	CodeBillNotAvailable       = "BILL_NOT_AVAILABLE"
	CodeAmountOutOfRange       = "AMOUNT_OUT_OF_RANGE"
	CodeOperatorNotFound       = "OPERATOR_NOT_FOUND"
	CodeOrderNotFound          = "ORDER_NOT_FOUND"
	CodeTransactionNotFound    = "TRANSACTION_NOT_FOUND"
	CodeRegistrationNotFound   = "REGISTRATION_NOT_FOUND"
	CodeAlreadyLinked          = "ALREADY_LINKED"
	CodeNotPaid                = "NOT_PAID"
	CodeNoteRequired           = "NOTE_REQUIRED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeDuplicateTransaction   = "DUPLICATE_TRANSACTION"
	CodeProviderRefConflict    = "PROVIDER_REF_CONFLICT"
	CodeInternal               = "INTERNAL"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{orchestrator.ErrReconciliationRequired, http.StatusAccepted, CodeReconciliationRequired, "the provider has not confirmed the outcome yet; the order will be reconciled"},
	{ledger.ErrInsufficientFunds, http.StatusConflict, CodeInsufficientFunds, "insufficient wallet balance"},
	{ledger.ErrWalletNotFound, http.StatusNotFound, CodeWalletNotFound, "wallet not found"},
	{ledger.ErrWalletLocked, http.StatusLocked, CodeWalletLocked, "wallet is busy or locked, retry later"},
	{provider.ErrProviderRejected, http.StatusUnprocessableEntity, CodeProviderRejected, "the provider rejected the request"},
	{provider.ErrBillNotAvailable, http.StatusNotFound, CodeBillNotAvailable, "no payable bill found"},
	{provider.ErrProviderTransient, http.StatusBadGateway, CodeProviderUnavailable, "the provider is unavailable, retry later"},
	{orchestrator.ErrProviderRefConflict, http.StatusConflict, CodeProviderRefConflict, "provider reference belongs to another order"},
	{orchestrator.ErrBillMismatch, http.StatusUnprocessableEntity, CodeBillMismatch, "payment does not match the fetched bill"},
	{orchestrator.ErrBillFetchRequired, http.StatusUnprocessableEntity, CodeBillFetchRequired, "fetch the bill before paying"},
	{catalog.ErrAmountOutOfRange, http.StatusUnprocessableEntity, CodeAmountOutOfRange, ""},
	{catalog.ErrOperatorNotFound, http.StatusNotFound, CodeOperatorNotFound, "operator not found"},
	{orders.ErrOrderNotFound, http.StatusNotFound, CodeOrderNotFound, "order not found"},
	{ledger.ErrTransactionNotFound, http.StatusNotFound, CodeTransactionNotFound, "transaction not found"},
	{registrations.ErrPaymentNotFound, http.StatusNotFound, CodeRegistrationNotFound, "registration payment not found"},
	{registrations.ErrAlreadyLinked, http.StatusConflict, CodeAlreadyLinked, "registration already linked to an account"},
	{registrations.ErrNotPaid, http.StatusConflict, CodeNotPaid, "registration is not paid"},
	{registration.ErrNoteRequired, http.StatusBadRequest, CodeNoteRequired, "a note is required"},
	{reconcile.ErrNotPending, http.StatusConflict, CodeInvalidTransition, ""},
	{reconcile.ErrInvalidDecision, http.StatusBadRequest, CodeInvalidRequest, ""},
	{orders.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition, "order cannot move to that status"},
	{orders.ErrStatusConflict, http.StatusConflict, CodeInvalidTransition, "order changed concurrently, retry"},
	{registrations.ErrStatusConflict, http.StatusConflict, CodeInvalidTransition, "registration payment is already final"},
	{ledger.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition, "transaction cannot move to that status"},
	{ledger.ErrNotReversible, http.StatusConflict, CodeInvalidTransition, "transaction cannot be reversed"},
	{ledger.ErrDuplicateTransaction, http.StatusConflict, CodeDuplicateTransaction, "duplicate transaction"},
	{orchestrator.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest, ""},
	{registration.ErrInvalidFee, http.StatusBadRequest, CodeInvalidRequest, ""},
	{money.ErrInvalidAmount, http.StatusBadRequest, CodeInvalidRequest, ""},
	{money.ErrAmountPrecision, http.StatusBadRequest, CodeInvalidRequest, ""},
	{money.ErrNonPositive, http.StatusBadRequest, CodeInvalidRequest, ""},
}

// classify maps a service error to status, code and client message. An
// empty mapping message means the error text is safe to show.
func classify(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			msg := m.message
			if msg == "" {
				msg = err.Error()
			}

			return m.status, m.code, msg
		}
	}

	return http.StatusInternalServerError, CodeInternal, "internal error"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: msg}})
}

// writeServiceError logs unexpected failures and writes the mapped error.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	} else {
		slog.DebugContext(r.Context(), "request rejected", "path", r.URL.Path, "code", code, "error", err)
	}

	writeError(w, status, code, msg)
}

// decodeJSON reads a bounded JSON body and rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	//nolint:errcheck
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, CodeInvalidRequest, "empty body")

			return false
		}

		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON: "+err.Error())

		return false
	}

	return true
}
