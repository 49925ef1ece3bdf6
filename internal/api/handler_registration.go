package api

import (
	"net/http"
)

// CreateRegistrationHandler handles POST /registrations
func (h *HandlerProvider) CreateRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	p, err := h.Registrations.Create(r.Context(), h.Fee)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// VerifyRegistrationHandler handles POST /registrations/{orderId}/verify
func (h *HandlerProvider) VerifyRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	p, err := h.Registrations.Verify(r.Context(), orderID, nil)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}

// LinkRegistrationHandler handles POST /registrations/{orderId}/link. The
// calling user becomes the owner of the paid registration.
func (h *HandlerProvider) LinkRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	p, err := h.Registrations.LinkAccount(r.Context(), orderID, caller(r).UserID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, p)
}
