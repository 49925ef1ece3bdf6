package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/events"
	"github.com/fastprodman/retailpay/internal/provider/recharge"
	"github.com/fastprodman/retailpay/internal/repos/audit"
	"github.com/fastprodman/retailpay/internal/repos/bills"
	"github.com/fastprodman/retailpay/internal/repos/catalog"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/repos/registrations"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
	"github.com/fastprodman/retailpay/internal/repos/wallets"
	"github.com/fastprodman/retailpay/internal/services/ledger"
	"github.com/fastprodman/retailpay/internal/services/orchestrator"
	"github.com/fastprodman/retailpay/internal/services/reconcile"
	"github.com/fastprodman/retailpay/internal/services/registration"
)

type WalletService interface {
	Wallet(ctx context.Context, ownerID uint64) (wallets.Wallet, error)
	History(ctx context.Context, ownerID uint64, limit int) ([]transactions.Transaction, error)
	Credit(ctx context.Context, c ledger.Credit) (transactions.Transaction, error)
	Reverse(ctx context.Context, r ledger.Reversal) (transactions.Transaction, error)
	Audit(ctx context.Context, ownerID uint64) (ledger.AuditReport, error)
}

type OrderService interface {
	Recharge(ctx context.Context, req orchestrator.RechargeRequest) (orchestrator.Result, error)
	FetchBill(ctx context.Context, req orchestrator.BillRequest) (bills.Bill, error)
	PayBill(ctx context.Context, req orchestrator.BillPayment) (orchestrator.Result, error)
	PurchaseProduct(ctx context.Context, p orchestrator.Purchase) (orchestrator.Result, error)
	Order(ctx context.Context, ownerID uint64, orderID uuid.UUID) (orders.Order, error)
	ListOrders(ctx context.Context, ownerID uint64, limit int) ([]orders.Order, error)
}

type PlanSource interface {
	Plans(ctx context.Context, operator, circle string) ([]recharge.Plan, error)
}

type RegistrationService interface {
	Create(ctx context.Context, fee registration.Fee) (registrations.Payment, error)
	Verify(ctx context.Context, orderID uuid.UUID, entry *audit.Entry) (registrations.Payment, error)
	LinkAccount(ctx context.Context, orderID uuid.UUID, userID uint64) (registrations.Payment, error)
}

type ReconcileService interface {
	Reconcile(ctx context.Context, orderID uuid.UUID, actorID uint64) (reconcile.Outcome, error)
	ManualOverride(ctx context.Context, orderID uuid.UUID, status orders.Status, note string, adminID uint64) (reconcile.Outcome, error)
	ReconcileRegistration(ctx context.Context, orderID uuid.UUID, actorID uint64) (registrations.Payment, reconcile.Decision, error)
	MarkRegistrationPaid(ctx context.Context, orderID uuid.UUID, note string, adminID uint64) (registrations.Payment, error)
	Pending(ctx context.Context, limit int) ([]orders.Order, error)
}

// Deps is everything the HTTP layer serves from.
type Deps struct {
	Wallets       WalletService
	Orders        OrderService
	Catalog       catalog.Catalog
	Plans         PlanSource
	Registrations RegistrationService
	Reconciler    ReconcileService
	Hub           *events.Hub
	Fee           registration.Fee
	// Health reports readiness of backing stores; nil means always healthy.
	Health      func(ctx context.Context) error
	CORSOrigins []string
	Logger      *slog.Logger
}

// HandlerProvider exposes the services as HTTP handlers.
type HandlerProvider struct {
	Deps
}

// NewHandler returns a new Handler provider.
func NewHandler(deps Deps) *HandlerProvider {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &HandlerProvider{Deps: deps}
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}

	return min(n, maxListLimit), nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s", name)
	}

	return id, nil
}

// parseOwnerIDParam reads `{ownerId}` from admin routes like:
//
//	POST /admin/wallets/{ownerId}/credit
//	GET  /admin/wallets/{ownerId}/audit
func parseOwnerIDParam(r *http.Request) (uint64, error) {
	idStr := chi.URLParam(r, "ownerId")
	if idStr == "" {
		return 0, fmt.Errorf("missing ownerId")
	}

	id, err := strconv.ParseUint(idStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ownerId: %w", err)
	}

	if id == 0 {
		return 0, fmt.Errorf("invalid ownerId: must be positive")
	}

	return id, nil
}

// caller is only used behind requireUser or requireAdmin.
func caller(r *http.Request) Identity {
	id, _ := identityFrom(r.Context())

	return id
}

func (h *HandlerProvider) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		err := h.Health(r.Context())
		if err != nil {
			slog.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})

			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
