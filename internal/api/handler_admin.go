package api

import (
	"net/http"

	"github.com/fastprodman/retailpay/internal/repos/orders"
)

// AdminPendingOrdersHandler handles GET /admin/orders/pending
func (h *HandlerProvider) AdminPendingOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	list, err := h.Reconciler.Pending(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

// AdminReconcileOrderHandler handles POST /admin/orders/{orderId}/reconcile
func (h *HandlerProvider) AdminReconcileOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	out, err := h.Reconciler.Reconcile(r.Context(), orderID, caller(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, out)
}

type overrideRequest struct {
	Status orders.Status `json:"status"`
	Note   string        `json:"note"`
}

// AdminOverrideOrderHandler handles POST /admin/orders/{orderId}/override
func (h *HandlerProvider) AdminOverrideOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	var req overrideRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	out, err := h.Reconciler.ManualOverride(r.Context(), orderID, req.Status, req.Note, caller(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, out)
}

// AdminReconcileRegistrationHandler handles POST /admin/registrations/{orderId}/reconcile
func (h *HandlerProvider) AdminReconcileRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	p, decision, err := h.Reconciler.ReconcileRegistration(r.Context(), orderID, caller(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"decision": decision, "payment": p})
}

type markPaidRequest struct {
	Note string `json:"note"`
}

// AdminMarkRegistrationPaidHandler handles POST /admin/registrations/{orderId}/mark-paid
func (h *HandlerProvider) AdminMarkRegistrationPaidHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	var req markPaidRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := h.Reconciler.MarkRegistrationPaid(r.Context(), orderID, req.Note, caller(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}
