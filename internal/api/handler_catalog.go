package api

import (
	"net/http"
	"strings"
)

// ListOperatorsHandler handles GET /catalog/operators?service=
func (h *HandlerProvider) ListOperatorsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.Catalog.Operators(r.Context(), strings.TrimSpace(r.URL.Query().Get("service")))
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"operators": list})
}

// ListCirclesHandler handles GET /catalog/circles
func (h *HandlerProvider) ListCirclesHandler(w http.ResponseWriter, r *http.Request) {
	list, err := h.Catalog.Circles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"circles": list})
}

// ListPlansHandler handles GET /catalog/plans?operator=&circle=
func (h *HandlerProvider) ListPlansHandler(w http.ResponseWriter, r *http.Request) {
	operator := strings.TrimSpace(r.URL.Query().Get("operator"))
	if operator == "" {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "operator is required")

		return
	}

	// Plans are only served for operators the catalog knows.
	_, err := h.Catalog.Operator(r.Context(), operator)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	plans, err := h.Plans.Plans(r.Context(), operator, strings.TrimSpace(r.URL.Query().Get("circle")))
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
}
