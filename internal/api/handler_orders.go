package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/services/orchestrator"
)

type rechargeRequest struct {
	Operator string       `json:"operator"`
	Number   string       `json:"number"`
	Circle   string       `json:"circle"`
	Amount   money.Amount `json:"amount"`
}

// CreateRechargeHandler handles POST /recharges
func (h *HandlerProvider) CreateRechargeHandler(w http.ResponseWriter, r *http.Request) {
	var req rechargeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.Orders.Recharge(r.Context(), orchestrator.RechargeRequest{
		OwnerID:  caller(r).UserID,
		Operator: req.Operator,
		Target:   req.Number,
		Circle:   req.Circle,
		Amount:   req.Amount,
	})
	writeOrderResult(w, r, res, err)
}

type fetchBillRequest struct {
	Operator   string            `json:"operator"`
	ConsumerID string            `json:"consumerId"`
	Extra      map[string]string `json:"extra"`
}

// FetchBillHandler handles POST /bills/fetch
func (h *HandlerProvider) FetchBillHandler(w http.ResponseWriter, r *http.Request) {
	var req fetchBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	b, err := h.Orders.FetchBill(r.Context(), orchestrator.BillRequest{
		OwnerID:    caller(r).UserID,
		Operator:   req.Operator,
		ConsumerID: req.ConsumerID,
		Extra:      req.Extra,
	})
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, b)
}

type payBillRequest struct {
	Operator   string       `json:"operator"`
	ConsumerID string       `json:"consumerId"`
	Amount     money.Amount `json:"amount"`
	BillID     *uuid.UUID   `json:"billId"`
}

// PayBillHandler handles POST /bills/pay
func (h *HandlerProvider) PayBillHandler(w http.ResponseWriter, r *http.Request) {
	var req payBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var billID uuid.NullUUID
	if req.BillID != nil {
		billID = uuid.NullUUID{UUID: *req.BillID, Valid: true}
	}

	res, err := h.Orders.PayBill(r.Context(), orchestrator.BillPayment{
		OwnerID:    caller(r).UserID,
		Operator:   req.Operator,
		ConsumerID: req.ConsumerID,
		Amount:     req.Amount,
		BillID:     billID,
	})
	writeOrderResult(w, r, res, err)
}

type purchaseRequest struct {
	SKU            string            `json:"sku"`
	Amount         money.Amount      `json:"amount"`
	DeliveryCharge money.Amount      `json:"deliveryCharge"`
	PaymentMethod  orders.Method     `json:"paymentMethod"`
	Delivery       map[string]string `json:"delivery"`
}

// CreateOrderHandler handles POST /orders
func (h *HandlerProvider) CreateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.Orders.PurchaseProduct(r.Context(), orchestrator.Purchase{
		OwnerID:        caller(r).UserID,
		SKU:            req.SKU,
		Amount:         req.Amount,
		DeliveryCharge: req.DeliveryCharge,
		Method:         req.PaymentMethod,
		Delivery:       req.Delivery,
	})
	writeOrderResult(w, r, res, err)
}

// GetOrderHandler handles GET /orders/{orderId}
func (h *HandlerProvider) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, err := parseUUIDParam(r, "orderId")
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	o, err := h.Orders.Order(r.Context(), caller(r).UserID, orderID)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, o)
}

// ListOrdersHandler handles GET /orders
func (h *HandlerProvider) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())

		return
	}

	list, err := h.Orders.ListOrders(r.Context(), caller(r).UserID, limit)
	if err != nil {
		writeServiceError(w, r, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

type orderResponse struct {
	orchestrator.Result
	Error *errorDetail `json:"error,omitempty"`
}

// writeOrderResult answers 201 for settled orders and 202 for orders waiting
// on reconciliation. Other errors use the regular error body.
func writeOrderResult(w http.ResponseWriter, r *http.Request, res orchestrator.Result, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, orderResponse{Result: res})
	case errors.Is(err, orchestrator.ErrReconciliationRequired):
		_, code, msg := classify(err)
		writeJSON(w, http.StatusAccepted, orderResponse{Result: res, Error: &errorDetail{Code: code, Message: msg}})
	default:
		writeServiceError(w, r, err)
	}
}
