// Package reconcile resolves orders and registration payments whose outcome
// was not known when the request finished, either on a timer or on demand.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/config"
	"github.com/fastprodman/retailpay/internal/infra/metrics"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/provider/gateway"
	"github.com/fastprodman/retailpay/internal/provider/recharge"
	"github.com/fastprodman/retailpay/internal/repos/audit"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/repos/registrations"
	"github.com/fastprodman/retailpay/internal/services/orchestrator"
	"github.com/fastprodman/retailpay/internal/services/registration"
)

var (
	ErrNoteRequired    = registration.ErrNoteRequired
	ErrNotPending      = errors.New("order is not pending reconciliation")
	ErrInvalidDecision = errors.New("override status must be FULFILLED or FAILED")
)

type Decision string

const (
	DecisionFulfilled Decision = "fulfilled"
	DecisionFailed    Decision = "failed"
	DecisionCancelled Decision = "cancelled"
	DecisionPaid      Decision = "paid"
	// DecisionUnchanged means the outcome is still unknown.
	DecisionUnchanged Decision = "unchanged"
	// DecisionNoop means the entity was already final.
	DecisionNoop Decision = "noop"
)

// StatusChecker re-queries recharge outcomes by request id.
type StatusChecker interface {
	RechargeStatus(ctx context.Context, requestID string) (recharge.Result, error)
}

type GatewayVerifier interface {
	VerifyOrder(ctx context.Context, gatewayOrderID string) (gateway.Verification, error)
}

type Service struct {
	orch     *orchestrator.Service
	reg      *registration.Service
	provider StatusChecker
	gateway  GatewayVerifier
	cfg      config.ReconcileConfig
	log      *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(
	orch *orchestrator.Service,
	reg *registration.Service,
	p StatusChecker,
	g GatewayVerifier,
	cfg config.ReconcileConfig,
	opts ...Option,
) *Service {
	s := &Service{
		orch:     orch,
		reg:      reg,
		provider: p,
		gateway:  g,
		cfg:      cfg,
		log:      slog.Default(),
	}

	if s.cfg.BatchSize <= 0 {
		s.cfg.BatchSize = 50
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("component", "reconcile")

	return s
}

// Outcome is the result of reconciling one order.
type Outcome struct {
	Decision Decision     `json:"decision"`
	Order    orders.Order `json:"order"`
	Reward   money.Amount `json:"reward"`
}

// Reconcile re-queries the provider or gateway for one order and applies a
// definite answer. Running it again on a settled order changes nothing
// except crediting a reward that is still missing.
func (s *Service) Reconcile(ctx context.Context, orderID uuid.UUID, actorID uint64) (Outcome, error) {
	o, err := s.orch.OrderAny(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}

	out, err := s.reconcile(ctx, o, systemEntry(actorID))
	if err != nil {
		return Outcome{}, fmt.Errorf("reconcile order %s: %w", orderID, err)
	}

	metrics.ReconcileDecision("order", string(out.Decision))

	if out.Decision != DecisionNoop && out.Decision != DecisionUnchanged {
		s.log.InfoContext(ctx, "order reconciled", "order_id", orderID, "from", o.Status, "decision", out.Decision)
	}

	return out, nil
}

func (s *Service) reconcile(ctx context.Context, o orders.Order, entry *audit.Entry) (Outcome, error) {
	stale := time.Since(o.UpdatedAt) >= s.cfg.MinAge

	switch o.Status {
	case orders.StatusFulfilled, orders.StatusFailed, orders.StatusCancelled:
		out := Outcome{Decision: DecisionNoop, Order: o}
		if o.Status == orders.StatusFulfilled && o.Method == orders.MethodWallet && o.Kind != orders.KindProductPurchase {
			out.Reward = s.orch.CreditReward(ctx, o, 0)
		}

		return out, nil
	case orders.StatusCreated:
		if o.Method == orders.MethodGateway && o.GatewayOrderID != "" {
			return s.reconcileGateway(ctx, o, entry)
		}

		if !stale {
			return Outcome{Decision: DecisionUnchanged, Order: o}, nil
		}

		res, err := s.orch.AbandonOrder(ctx, o.ID, entry)
		if err != nil {
			return Outcome{}, err
		}

		return decided(res), nil
	case orders.StatusReserved:
		if !stale {
			return Outcome{Decision: DecisionUnchanged, Order: o}, nil
		}

		// The provider was never called, so the reservation is released.
		res, err := s.orch.Settle(ctx, o.ID, orchestrator.Settlement{
			Outcome: provider.OutcomeFailed,
			Reason:  "provider not called",
			Audit:   entry,
		})
		if err != nil {
			return Outcome{}, err
		}

		return decided(res), nil
	case orders.StatusProviderCalled, orders.StatusPendingReconcile:
		if o.Status == orders.StatusProviderCalled && !stale {
			return Outcome{Decision: DecisionUnchanged, Order: o}, nil
		}

		return s.reconcileRecharge(ctx, o, entry)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown status %s", orders.ErrInvalidTransition, o.Status)
	}
}

func (s *Service) reconcileRecharge(ctx context.Context, o orders.Order, entry *audit.Entry) (Outcome, error) {
	st, err := s.provider.RechargeStatus(ctx, o.ID.String())
	if err != nil {
		return Outcome{}, fmt.Errorf("recharge status: %w", err)
	}

	if st.Outcome == provider.OutcomeAmbiguous {
		if o.Status == orders.StatusProviderCalled {
			return s.park(ctx, o, st.ProviderRef)
		}

		return Outcome{Decision: DecisionUnchanged, Order: o}, nil
	}

	res, err := s.orch.Settle(ctx, o.ID, orchestrator.Settlement{
		Outcome:     st.Outcome,
		ProviderRef: st.ProviderRef,
		Commission:  st.Commission,
		Reason:      st.Message,
		Audit:       entry,
	})
	if err != nil {
		return Outcome{}, err
	}

	return decided(res), nil
}

// park moves a stale PROVIDER_CALLED order, left by a crash mid-call, to
// PENDING_RECONCILE so that it shows up for admins.
func (s *Service) park(ctx context.Context, o orders.Order, providerRef string) (Outcome, error) {
	parked, err := s.orch.Park(ctx, o.ID, providerRef)
	if err != nil {
		return Outcome{}, err
	}

	return Outcome{Decision: DecisionUnchanged, Order: parked}, nil
}

func (s *Service) reconcileGateway(ctx context.Context, o orders.Order, entry *audit.Entry) (Outcome, error) {
	v, err := s.gateway.VerifyOrder(ctx, o.GatewayOrderID)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify gateway order: %w", err)
	}

	res, err := s.orch.SettleGatewayOrder(ctx, o.ID, v, entry)
	if err != nil {
		return Outcome{}, err
	}

	return decided(res), nil
}

func decided(res orchestrator.Result) Outcome {
	out := Outcome{Order: res.Order, Reward: res.Reward}

	switch res.Order.Status {
	case orders.StatusFulfilled:
		out.Decision = DecisionFulfilled
	case orders.StatusFailed:
		out.Decision = DecisionFailed
	case orders.StatusCancelled:
		out.Decision = DecisionCancelled
	default:
		out.Decision = DecisionUnchanged
	}

	return out
}

// ManualOverride lets an admin settle a PENDING_RECONCILE order. The note is
// stored on the debit and in the audit log.
func (s *Service) ManualOverride(ctx context.Context, orderID uuid.UUID, status orders.Status, note string, adminID uint64) (Outcome, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return Outcome{}, ErrNoteRequired
	}

	var (
		outcome provider.Outcome
		reason  string
	)

	switch status {
	case orders.StatusFulfilled:
		outcome = provider.OutcomeSuccess
	case orders.StatusFailed:
		outcome = provider.OutcomeFailed
		reason = "manual override"
	default:
		return Outcome{}, ErrInvalidDecision
	}

	o, err := s.orch.OrderAny(ctx, orderID)
	if err != nil {
		return Outcome{}, err
	}

	if o.Status != orders.StatusPendingReconcile {
		return Outcome{}, fmt.Errorf("%w: order is %s", ErrNotPending, o.Status)
	}

	res, err := s.orch.Settle(ctx, orderID, orchestrator.Settlement{
		Outcome: outcome,
		Reason:  reason,
		Audit: &audit.Entry{
			ActorID:   adminID,
			ActorRole: "admin",
			Action:    "manual",
			Manual:    true,
			Note:      note,
		},
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("manual override %s: %w", orderID, err)
	}

	out := decided(res)
	metrics.ReconcileDecision("order", "manual-"+string(out.Decision))
	s.log.InfoContext(ctx, "manual override", "order_id", orderID, "admin_id", adminID, "status", status)

	return out, nil
}

// ReconcileRegistration re-verifies a CREATED registration payment.
func (s *Service) ReconcileRegistration(ctx context.Context, orderID uuid.UUID, actorID uint64) (registrations.Payment, Decision, error) {
	before, err := s.reg.Get(ctx, orderID)
	if err != nil {
		return registrations.Payment{}, "", err
	}

	if before.Status.Terminal() {
		metrics.ReconcileDecision("registration", string(DecisionNoop))

		return before, DecisionNoop, nil
	}

	p, err := s.reg.Verify(ctx, orderID, systemEntry(actorID))
	if err != nil {
		return registrations.Payment{}, "", fmt.Errorf("reconcile registration %s: %w", orderID, err)
	}

	d := DecisionUnchanged

	switch p.Status {
	case registrations.StatusPaid:
		d = DecisionPaid
	case registrations.StatusFailed:
		d = DecisionFailed
	case registrations.StatusExpired, registrations.StatusCancelled:
		d = DecisionCancelled
	}

	metrics.ReconcileDecision("registration", string(d))

	return p, d, nil
}

func (s *Service) MarkRegistrationPaid(ctx context.Context, orderID uuid.UUID, note string, adminID uint64) (registrations.Payment, error) {
	p, err := s.reg.MarkPaid(ctx, orderID, note, adminID)
	if err != nil {
		return registrations.Payment{}, err
	}

	metrics.ReconcileDecision("registration", "manual-paid")

	return p, nil
}

// Pending lists orders awaiting reconciliation, oldest first.
func (s *Service) Pending(ctx context.Context, limit int) ([]orders.Order, error) {
	return s.orch.Orders().ListByStatus(ctx, orders.StatusPendingReconcile, time.Now(), limit)
}

// systemEntry is the audit entry of a reconciliation decision; actorID 0 is
// the background worker.
func systemEntry(actorID uint64) *audit.Entry {
	e := &audit.Entry{ActorID: actorID, ActorRole: "admin", Action: "reconcile"}
	if actorID == 0 {
		e.ActorRole = audit.System
	}

	return e
}
