// Package registration sells account registrations through the payment
// gateway and turns a paid registration into an account with a wallet.
package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/retailpay/internal/config"
	"github.com/fastprodman/retailpay/internal/events"
	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider/gateway"
	"github.com/fastprodman/retailpay/internal/repos/audit"
	pgaudit "github.com/fastprodman/retailpay/internal/repos/audit/postgres"
	"github.com/fastprodman/retailpay/internal/repos/registrations"
	pgregistrations "github.com/fastprodman/retailpay/internal/repos/registrations/postgres"
	"github.com/fastprodman/retailpay/internal/services/ledger"
)

var (
	ErrPaymentNotFound = registrations.ErrPaymentNotFound
	ErrAlreadyLinked   = registrations.ErrAlreadyLinked
	ErrNotPaid         = registrations.ErrNotPaid
	ErrNoteRequired    = errors.New("a note is required for manual actions")
	ErrInvalidFee      = errors.New("invalid registration fee")
)

type Gateway interface {
	CreateOrder(ctx context.Context, req gateway.CreateOrderRequest) (gateway.Order, error)
	VerifyOrder(ctx context.Context, gatewayOrderID string) (gateway.Verification, error)
}

// Fee is the registration price before tax.
type Fee struct {
	Base       money.Amount
	TaxPercent decimal.Decimal
}

// FeeFromConfig parses the configured fee.
func FeeFromConfig(cfg config.RegistrationFeeConfig) (Fee, error) {
	base, err := money.ParsePositive(cfg.Base)
	if err != nil {
		return Fee{}, fmt.Errorf("%w: base: %w", ErrInvalidFee, err)
	}

	if cfg.TaxPercent.IsNegative() {
		return Fee{}, fmt.Errorf("%w: negative tax", ErrInvalidFee)
	}

	return Fee{Base: base, TaxPercent: cfg.TaxPercent}, nil
}

// Breakdown returns the tax and the total charged by the gateway.
func (f Fee) Breakdown() (tax, total money.Amount) {
	tax = f.Base.PercentRounded(f.TaxPercent)

	return tax, f.Base + tax
}

type Service struct {
	db       *sql.DB
	payments registrations.Registrations
	audit    audit.Log
	ledger   *ledger.Service
	gateway  Gateway
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

func New(db *sql.DB, l *ledger.Service, g Gateway, opts ...Option) *Service {
	s := &Service{
		db:       db,
		payments: pgregistrations.New(db),
		audit:    pgaudit.New(db),
		ledger:   l,
		gateway:  g,
		pub:      events.Nop(),
		log:      slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("component", "registration")

	return s
}

// Create opens a gateway order for the fee and stores the payment as CREATED.
// Nothing is stored when the gateway cannot be reached.
func (s *Service) Create(ctx context.Context, fee Fee) (registrations.Payment, error) {
	if fee.Base <= 0 {
		return registrations.Payment{}, fmt.Errorf("%w: %w", ErrInvalidFee, money.ErrNonPositive)
	}

	tax, total := fee.Breakdown()
	orderID := uuid.New()

	gw, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Receipt: orderID.String(),
		Amount:  total,
		Notes:   map[string]string{"purpose": "registration"},
	})
	if err != nil {
		return registrations.Payment{}, fmt.Errorf("create gateway order: %w", err)
	}

	p := registrations.Payment{
		OrderID:        orderID,
		GatewayOrderID: gw.ID,
		Base:           fee.Base,
		Tax:            tax,
		Total:          total,
		Status:         registrations.StatusCreated,
	}

	err = s.payments.Insert(ctx, p)
	if err != nil {
		return registrations.Payment{}, fmt.Errorf("store registration payment: %w", err)
	}

	s.announce(ctx, p, "registration.created")

	return s.payments.Get(ctx, orderID)
}

func (s *Service) Get(ctx context.Context, orderID uuid.UUID) (registrations.Payment, error) {
	return s.payments.Get(ctx, orderID)
}

// Pending lists CREATED payments last touched before updatedBefore.
func (s *Service) Pending(ctx context.Context, updatedBefore time.Time, limit int) ([]registrations.Payment, error) {
	return s.payments.ListCreated(ctx, updatedBefore, limit)
}

// Verify asks the gateway for the payment status and stores a final one.
// A payment that is still open, or already final, is returned as is.
func (s *Service) Verify(ctx context.Context, orderID uuid.UUID, entry *audit.Entry) (registrations.Payment, error) {
	p, err := s.payments.Get(ctx, orderID)
	if err != nil {
		return registrations.Payment{}, err
	}

	if p.Status.Terminal() {
		return p, nil
	}

	v, err := s.gateway.VerifyOrder(ctx, p.GatewayOrderID)
	if err != nil {
		return p, fmt.Errorf("verify gateway order: %w", err)
	}

	to, ok := finalStatus(v.Status)
	if !ok {
		return p, nil
	}

	return s.settle(ctx, registrations.StatusChange{
		OrderID:       orderID,
		To:            to,
		PaymentMethod: v.PaymentMethod,
		PaidAt:        v.PaidAt,
	}, entry)
}

// MarkPaid records an out-of-band payment an admin has checked by hand.
func (s *Service) MarkPaid(ctx context.Context, orderID uuid.UUID, note string, actorID uint64) (registrations.Payment, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return registrations.Payment{}, ErrNoteRequired
	}

	now := time.Now().UTC()

	return s.settle(ctx, registrations.StatusChange{
		OrderID:       orderID,
		To:            registrations.StatusPaid,
		PaymentMethod: registrations.MethodManualVerification,
		PaidAt:        &now,
		Manual:        true,
		ManualNote:    note,
	}, &audit.Entry{
		ActorID:   actorID,
		ActorRole: "admin",
		Action:    "registration.mark-paid",
		Manual:    true,
		Note:      note,
	})
}

func (s *Service) settle(ctx context.Context, change registrations.StatusChange, entry *audit.Entry) (registrations.Payment, error) {
	var p registrations.Payment

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		p, err = s.payments.GetForUpdate(ctx, tx, change.OrderID)
		if err != nil {
			return err
		}

		if p.Status != registrations.StatusCreated {
			return fmt.Errorf("%w: %s is %s", registrations.ErrStatusConflict, p.OrderID, p.Status)
		}

		err = s.payments.Settle(ctx, tx, change)
		if err != nil {
			return err
		}

		if entry != nil {
			e := *entry
			e.Entity = "registration"
			e.EntityID = change.OrderID.String()

			if e.Action == "" {
				e.Action = "registration." + string(change.To)
			}

			err = s.audit.Insert(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("audit: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return registrations.Payment{}, fmt.Errorf("settle registration %s: %w", change.OrderID, err)
	}

	p, err = s.payments.Get(ctx, change.OrderID)
	if err != nil {
		return registrations.Payment{}, err
	}

	s.announce(ctx, p, "registration.status")

	return p, nil
}

// LinkAccount binds a PAID registration to the new user and opens their
// wallet in the same transaction.
func (s *Service) LinkAccount(ctx context.Context, orderID uuid.UUID, userID uint64) (registrations.Payment, error) {
	if userID == 0 {
		return registrations.Payment{}, fmt.Errorf("link account: user id is required")
	}

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := s.payments.LinkUser(ctx, tx, orderID, userID)
		if err != nil {
			return err
		}

		return s.ledger.CreateWalletTx(ctx, tx, userID)
	})
	if err != nil {
		return registrations.Payment{}, fmt.Errorf("link account: %w", err)
	}

	p, err := s.payments.Get(ctx, orderID)
	if err != nil {
		return registrations.Payment{}, err
	}

	s.log.InfoContext(ctx, "registration linked", "order_id", orderID, "user_id", userID)
	s.announce(ctx, p, "registration.linked")

	return p, nil
}

func finalStatus(st gateway.Status) (registrations.Status, bool) {
	switch st {
	case gateway.StatusPaid:
		return registrations.StatusPaid, true
	case gateway.StatusFailed:
		return registrations.StatusFailed, true
	case gateway.StatusExpired:
		return registrations.StatusExpired, true
	case gateway.StatusCancelled:
		return registrations.StatusCancelled, true
	default:
		return "", false
	}
}

func (s *Service) announce(ctx context.Context, p registrations.Payment, typ string) {
	ev := events.Event{
		Topic:    events.TopicRegistration,
		Type:     typ,
		EntityID: p.OrderID.String(),
		Status:   string(p.Status),
		Data: map[string]any{
			"total":  p.Total,
			"manual": p.Manual,
		},
	}

	if p.UserID != nil {
		ev.OwnerID = *p.UserID
	}

	events.Emit(ctx, s.pub, s.log, ev)
}
