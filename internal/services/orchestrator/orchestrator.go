// Package orchestrator drives orders through
// CREATED -> RESERVED -> PROVIDER_CALLED -> FULFILLED | FAILED | PENDING_RECONCILE.
// The wallet is debited and committed before any provider call and no lock
// is held while the provider is being called.
package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/events"
	"github.com/fastprodman/retailpay/internal/infra/metrics"
	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider/gateway"
	"github.com/fastprodman/retailpay/internal/provider/recharge"
	"github.com/fastprodman/retailpay/internal/repos/audit"
	pgaudit "github.com/fastprodman/retailpay/internal/repos/audit/postgres"
	"github.com/fastprodman/retailpay/internal/repos/bills"
	pgbills "github.com/fastprodman/retailpay/internal/repos/bills/postgres"
	"github.com/fastprodman/retailpay/internal/repos/catalog"
	pgcatalog "github.com/fastprodman/retailpay/internal/repos/catalog/postgres"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	pgorders "github.com/fastprodman/retailpay/internal/repos/orders/postgres"
	"github.com/fastprodman/retailpay/internal/services/ledger"
)

var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrBillFetchRequired      = errors.New("bill fetch required before payment")
	ErrBillMismatch           = errors.New("payment does not match fetched bill")
	ErrReconciliationRequired = errors.New("provider outcome unknown, order awaits reconciliation")
	ErrProviderRefConflict    = errors.New("provider reference already settled another order")
	ErrOrderNotFound          = orders.ErrOrderNotFound
)

// RechargeProvider is the part of the recharge API the orchestrator needs.
type RechargeProvider interface {
	SubmitRecharge(ctx context.Context, req recharge.Request) (recharge.Result, error)
	FetchBill(ctx context.Context, q recharge.BillQuery) (recharge.Bill, error)
}

// PaymentGateway creates payable orders for GATEWAY purchases.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (gateway.Order, error)
}

type Service struct {
	db       *sql.DB
	ledger   *ledger.Service
	orders   orders.Orders
	catalog  catalog.Catalog
	bills    bills.Bills
	audit    audit.Log
	provider RechargeProvider
	gateway  PaymentGateway
	billTTL  time.Duration
	pub      events.Publisher
	log      *slog.Logger
}

type Option func(*Service)

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.pub = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithBillTTL sets how long a fetched bill may back a payment.
func WithBillTTL(d time.Duration) Option {
	return func(s *Service) { s.billTTL = d }
}

func New(db *sql.DB, l *ledger.Service, p RechargeProvider, g PaymentGateway, opts ...Option) *Service {
	s := &Service{
		db:       db,
		ledger:   l,
		orders:   pgorders.New(db),
		catalog:  pgcatalog.New(db),
		bills:    pgbills.New(db),
		audit:    pgaudit.New(db),
		provider: p,
		gateway:  g,
		billTTL:  30 * time.Minute,
		pub:      events.Nop(),
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("component", "orchestrator")

	return s
}

// Result is what a submitted order resolved to.
type Result struct {
	Order   orders.Order `json:"order"`
	Reward  money.Amount `json:"reward"`
	Balance money.Amount `json:"balance"`
}

// Order returns ownerID's order. Other owners' orders are reported missing.
func (s *Service) Order(ctx context.Context, ownerID uint64, orderID uuid.UUID) (orders.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return orders.Order{}, fmt.Errorf("get order: %w", err)
	}

	if o.OwnerID != ownerID {
		return orders.Order{}, fmt.Errorf("get order: %w", orders.ErrOrderNotFound)
	}

	return o, nil
}

// OrderAny returns an order regardless of owner, for admin paths.
func (s *Service) OrderAny(ctx context.Context, orderID uuid.UUID) (orders.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListOrders returns ownerID's most recent orders.
func (s *Service) ListOrders(ctx context.Context, ownerID uint64, limit int) ([]orders.Order, error) {
	list, err := s.orders.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	return list, nil
}

func (s *Service) Orders() orders.Orders {
	return s.orders
}

func (s *Service) Catalog() catalog.Catalog {
	return s.catalog
}

// insertOrder persists a CREATED order; extra runs in the same transaction.
func (s *Service) insertOrder(ctx context.Context, o orders.Order, extra func(tx *sql.Tx) error) error {
	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.orders.Insert(ctx, tx, o)
		if err != nil {
			return err
		}

		if extra != nil {
			return extra(tx)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}

	s.announce(ctx, o)

	return nil
}

// advance moves an order in its own short transaction.
func (s *Service) advance(ctx context.Context, o *orders.Order, t orders.Transition) error {
	t.ID = o.ID
	t.From = o.Status

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.orders.Advance(ctx, tx, t)
	})
	if err != nil {
		return fmt.Errorf("advance order %s -> %s: %w", t.From, t.To, err)
	}

	applyTransition(o, t)
	s.announce(ctx, *o)

	return nil
}

func applyTransition(o *orders.Order, t orders.Transition) {
	o.Status = t.To
	o.UpdatedAt = time.Now().UTC()

	if t.ProviderRef != "" {
		o.ProviderRef = t.ProviderRef
	}

	if t.GatewayOrderID != "" {
		o.GatewayOrderID = t.GatewayOrderID
	}

	if t.DebitTxID.Valid {
		o.DebitTxID = t.DebitTxID
	}

	if t.FailureReason != "" {
		o.FailureReason = t.FailureReason
	}
}

func (s *Service) announce(ctx context.Context, o orders.Order) {
	metrics.OrderState(string(o.Kind), string(o.Method), string(o.Status))

	events.Emit(ctx, s.pub, s.log, events.Event{
		Topic:    events.TopicOrder,
		Type:     "order.status",
		OwnerID:  o.OwnerID,
		EntityID: o.ID.String(),
		Status:   string(o.Status),
		Data: map[string]any{
			"kind":   o.Kind,
			"method": o.Method,
			"amount": o.Total(),
		},
	})
}

func (s *Service) result(ctx context.Context, o orders.Order, reward money.Amount) Result {
	r := Result{Order: o, Reward: reward}

	balance, err := s.ledger.GetBalance(ctx, o.OwnerID)
	if err != nil {
		s.log.WarnContext(ctx, "read balance for result", "owner_id", o.OwnerID, "error", err)
	} else {
		r.Balance = balance
	}

	return r
}

func nullUUID(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: true}
}
