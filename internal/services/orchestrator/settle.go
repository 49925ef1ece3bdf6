package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/provider/gateway"
	"github.com/fastprodman/retailpay/internal/repos/audit"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
	"github.com/fastprodman/retailpay/internal/services/ledger"
)

// Settlement is a final provider outcome for a wallet-funded order.
type Settlement struct {
	// Outcome is OutcomeSuccess or OutcomeFailed.
	Outcome     provider.Outcome
	ProviderRef string
	Commission  money.Amount
	Reason      string
	// Audit, when set, is recorded with the decision.
	Audit *audit.Entry
}

// Settle finalizes the held debit of an order and moves it to FULFILLED or
// FAILED in one transaction. Settling a terminal order changes nothing; a
// FULFILLED order still gets a missing reward credited.
func (s *Service) Settle(ctx context.Context, orderID uuid.UUID, st Settlement) (Result, error) {
	var (
		o       orders.Order
		debit   transactions.Transaction
		changed bool
		settled bool
	)

	txStatus := transactions.StatusFailed
	to := orders.StatusFailed

	switch st.Outcome {
	case provider.OutcomeSuccess:
		txStatus = transactions.StatusSuccess
		to = orders.StatusFulfilled
	case provider.OutcomeFailed:
	default:
		return Result{}, fmt.Errorf("%w: outcome %q cannot settle an order", ErrInvalidRequest, st.Outcome)
	}

	err := s.checkProviderRef(ctx, orderID, st.ProviderRef)
	if err != nil {
		return Result{}, err
	}

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		o, err = s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if o.Status.Terminal() {
			return nil
		}

		if !o.Status.CanAdvance(to) || (o.Status == orders.StatusReserved && to == orders.StatusFulfilled) {
			return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, o.Status, to)
		}

		manual := st.Audit != nil && st.Audit.Manual
		note := ""

		if st.Audit != nil {
			note = st.Audit.Note
		}

		reason := ""
		if to == orders.StatusFailed {
			reason = failureText(st.Reason)
		}

		if o.DebitTxID.Valid {
			debit, changed, err = s.ledger.FinalizeTx(ctx, tx, ledger.Finalization{
				TransactionID: o.DebitTxID.UUID,
				Outcome:       txStatus,
				ProviderRef:   st.ProviderRef,
				FailureReason: reason,
				Manual:        manual,
				ManualNote:    note,
			})
			if err != nil {
				return err
			}
		}

		t := orders.Transition{ID: o.ID, From: o.Status, To: to, ProviderRef: st.ProviderRef, FailureReason: reason}

		err = s.orders.Advance(ctx, tx, t)
		if err != nil {
			return err
		}

		err = s.recordAudit(ctx, tx, st.Audit, o.ID, string(to))
		if err != nil {
			return err
		}

		applyTransition(&o, t)
		settled = true

		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("settle order %s: %w", orderID, err)
	}

	if settled {
		s.announce(ctx, o)
	}

	if changed {
		s.ledger.Announce(ctx, debit)
	}

	var reward money.Amount
	if o.Status == orders.StatusFulfilled && o.Method == orders.MethodWallet && o.Kind != orders.KindProductPurchase {
		reward = s.CreditReward(ctx, o, st.Commission)
	}

	return s.result(ctx, o, reward), nil
}

// CreditReward credits the operator reward of a fulfilled order at most once.
// The operator's reward rate wins; commission reported by the provider is
// used when the operator has none. Failures are logged and left to
// reconciliation.
func (s *Service) CreditReward(ctx context.Context, o orders.Order, commission money.Amount) money.Amount {
	var reward money.Amount

	op, err := s.catalog.Operator(ctx, o.OperatorCode)
	if err != nil {
		s.log.WarnContext(ctx, "reward rate lookup failed, using provider commission",
			"order_id", o.ID, "operator", o.OperatorCode, "commission", commission, "error", err)
	} else {
		reward = op.Reward(o.Amount)
	}

	if reward == 0 {
		reward = commission
	}

	if reward <= 0 {
		return 0
	}

	_, err = s.ledger.Credit(ctx, ledger.Credit{
		OwnerID: o.OwnerID,
		Amount:  reward,
		Kind:    transactions.KindReward,
		OrderID: nullUUID(o.ID),
		Reason:  fmt.Sprintf("reward for %s %s", o.Kind, o.ID),
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return 0
		}

		s.log.ErrorContext(ctx, "credit reward", "order_id", o.ID, "amount", reward, "error", err)

		return 0
	}

	return reward
}

// SettleGatewayOrder applies a gateway verification to a GATEWAY purchase.
// Orders whose payment is still open are returned unchanged.
func (s *Service) SettleGatewayOrder(ctx context.Context, orderID uuid.UUID, v gateway.Verification, entry *audit.Entry) (Result, error) {
	var (
		o       orders.Order
		settled bool
	)

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		o, err = s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if o.Status.Terminal() {
			return nil
		}

		if o.Method != orders.MethodGateway || o.Status != orders.StatusCreated {
			return fmt.Errorf("%w: %s order in %s", orders.ErrInvalidTransition, o.Method, o.Status)
		}

		t := orders.Transition{ID: o.ID, From: o.Status}

		switch v.Status {
		case gateway.StatusPaid:
			t.To = orders.StatusFulfilled
			t.ProviderRef = o.GatewayOrderID

			err = s.ledger.RecordTx(ctx, tx, transactions.Transaction{
				ID:          uuid.New(),
				OwnerID:     o.OwnerID,
				Direction:   transactions.Debit,
				Amount:      o.Total(),
				Kind:        transactions.KindProductPurchase,
				Status:      transactions.StatusSuccess,
				OrderID:     nullUUID(o.ID),
				ProviderRef: o.GatewayOrderID,
				Reason:      "paid via gateway " + v.PaymentMethod,
				Manual:      entry != nil && entry.Manual,
			})
			if err != nil {
				return err
			}
		case gateway.StatusFailed:
			t.To = orders.StatusFailed
			t.FailureReason = "payment failed"
		case gateway.StatusExpired, gateway.StatusCancelled:
			t.To = orders.StatusCancelled
			t.FailureReason = "payment " + string(v.Status)
		default:
			return nil
		}

		err = s.orders.Advance(ctx, tx, t)
		if err != nil {
			return err
		}

		err = s.recordAudit(ctx, tx, entry, o.ID, string(t.To))
		if err != nil {
			return err
		}

		applyTransition(&o, t)
		settled = true

		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("settle gateway order %s: %w", orderID, err)
	}

	if settled {
		s.announce(ctx, o)
	}

	return s.result(ctx, o, 0), nil
}

// AbandonOrder fails a CREATED order that never reserved funds, such as one
// left behind by a crash before the debit committed.
func (s *Service) AbandonOrder(ctx context.Context, orderID uuid.UUID, entry *audit.Entry) (Result, error) {
	var (
		o       orders.Order
		settled bool
	)

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		o, err = s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if o.Status != orders.StatusCreated || o.DebitTxID.Valid {
			return nil
		}

		t := orders.Transition{ID: o.ID, From: o.Status, To: orders.StatusFailed, FailureReason: "abandoned"}

		err = s.orders.Advance(ctx, tx, t)
		if err != nil {
			return err
		}

		err = s.recordAudit(ctx, tx, entry, o.ID, string(t.To))
		if err != nil {
			return err
		}

		applyTransition(&o, t)
		settled = true

		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("abandon order %s: %w", orderID, err)
	}

	if settled {
		s.announce(ctx, o)
	}

	return s.result(ctx, o, 0), nil
}

func (s *Service) recordAudit(ctx context.Context, tx *sql.Tx, entry *audit.Entry, orderID uuid.UUID, to string) error {
	if entry == nil {
		return nil
	}

	e := *entry
	e.Entity = "order"
	e.EntityID = orderID.String()

	if e.Action == "" {
		e.Action = "order." + to
	}

	err := s.audit.Insert(ctx, tx, e)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	return nil
}

func failureText(reason string) string {
	if reason == "" {
		return "provider rejected"
	}

	return reason
}

// Park moves a PROVIDER_CALLED order to PENDING_RECONCILE. Orders in any
// other status are returned unchanged.
func (s *Service) Park(ctx context.Context, orderID uuid.UUID, providerRef string) (orders.Order, error) {
	var (
		o      orders.Order
		parked bool
	)

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		o, err = s.orders.GetForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}

		if o.Status != orders.StatusProviderCalled {
			return nil
		}

		t := orders.Transition{ID: o.ID, From: o.Status, To: orders.StatusPendingReconcile, ProviderRef: providerRef}

		err = s.orders.Advance(ctx, tx, t)
		if err != nil {
			return err
		}

		applyTransition(&o, t)
		parked = true

		return nil
	})
	if err != nil {
		return orders.Order{}, fmt.Errorf("park order %s: %w", orderID, err)
	}

	if parked {
		s.announce(ctx, o)
	}

	return o, nil
}

// checkProviderRef rejects a provider reference that is already recorded
// against a different order. One provider confirmation settles one order.
func (s *Service) checkProviderRef(ctx context.Context, orderID uuid.UUID, ref string) error {
	if ref == "" {
		return nil
	}

	t, err := s.ledger.Recorder().FindByExternalRef(ctx, ref)
	if errors.Is(err, transactions.ErrNotFound) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("find provider ref: %w", err)
	}

	if t.OrderID.Valid && t.OrderID.UUID != orderID {
		s.log.WarnContext(ctx, "provider reference reused",
			"order_id", orderID, "provider_ref", ref, "settled_order_id", t.OrderID.UUID)

		return fmt.Errorf("%w: %s", ErrProviderRefConflict, ref)
	}

	return nil
}
