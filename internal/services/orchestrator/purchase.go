package orchestrator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider/gateway"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
	"github.com/fastprodman/retailpay/internal/services/ledger"
)

// DeliveryFields must be present on every product purchase.
var DeliveryFields = []string{"name", "phone", "address", "pincode"}

type Purchase struct {
	OwnerID        uint64
	SKU            string
	Amount         money.Amount
	DeliveryCharge money.Amount
	Method         orders.Method
	Delivery       map[string]string
}

func (p Purchase) validate() error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: sku is required", ErrInvalidRequest)
	}

	if p.Amount <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, money.ErrNonPositive)
	}

	if p.DeliveryCharge < 0 {
		return fmt.Errorf("%w: delivery charge must be >= 0", ErrInvalidRequest)
	}

	if !p.Method.Valid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidRequest, p.Method)
	}

	for _, f := range DeliveryFields {
		if strings.TrimSpace(p.Delivery[f]) == "" {
			return fmt.Errorf("%w: delivery %s is required", ErrInvalidRequest, f)
		}
	}

	return nil
}

// PurchaseProduct places a product order paid from the wallet, on delivery
// or through the payment gateway.
func (s *Service) PurchaseProduct(ctx context.Context, p Purchase) (Result, error) {
	err := p.validate()
	if err != nil {
		return Result{}, err
	}

	o := orders.Order{
		ID:             uuid.New(),
		OwnerID:        p.OwnerID,
		Kind:           orders.KindProductPurchase,
		Target:         strings.TrimSpace(p.SKU),
		Amount:         p.Amount,
		DeliveryCharge: p.DeliveryCharge,
		Method:         p.Method,
		Status:         orders.StatusCreated,
		Metadata:       p.Delivery,
	}

	switch p.Method {
	case orders.MethodCOD:
		return s.purchaseOnDelivery(ctx, o)
	case orders.MethodGateway:
		return s.purchaseViaGateway(ctx, o)
	default:
		return s.purchaseFromWallet(ctx, o)
	}
}

// purchaseFromWallet debits and fulfills in one transaction; there is no
// provider to wait for.
func (s *Service) purchaseFromWallet(ctx context.Context, o orders.Order) (Result, error) {
	err := s.insertOrder(ctx, o, nil)
	if err != nil {
		return Result{}, err
	}

	var debit transactions.Transaction

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		h, err := s.ledger.ReserveAndDebitTx(ctx, tx, ledger.Debit{
			OwnerID: o.OwnerID,
			Amount:  o.Total(),
			Kind:    transactions.KindProductPurchase,
			OrderID: nullUUID(o.ID),
			Reason:  "product " + o.Target,
		})
		if err != nil {
			return err
		}

		err = s.orders.Advance(ctx, tx, orders.Transition{
			ID: o.ID, From: orders.StatusCreated, To: orders.StatusReserved, DebitTxID: nullUUID(h.TransactionID),
		})
		if err != nil {
			return err
		}

		debit, _, err = s.ledger.FinalizeTx(ctx, tx, ledger.Finalization{
			TransactionID: h.TransactionID,
			Outcome:       transactions.StatusSuccess,
		})
		if err != nil {
			return err
		}

		return s.orders.Advance(ctx, tx, orders.Transition{
			ID: o.ID, From: orders.StatusReserved, To: orders.StatusFulfilled,
		})
	})
	if err != nil {
		return s.failUnreserved(ctx, o, err)
	}

	applyTransition(&o, orders.Transition{To: orders.StatusFulfilled, DebitTxID: nullUUID(debit.ID)})
	s.announce(ctx, o)
	s.ledger.Announce(ctx, debit)

	return s.result(ctx, o, 0), nil
}

// purchaseOnDelivery records the order with a pending history row; the
// wallet is not touched.
func (s *Service) purchaseOnDelivery(ctx context.Context, o orders.Order) (Result, error) {
	err := s.insertOrder(ctx, o, func(tx *sql.Tx) error {
		err := s.ledger.RecordTx(ctx, tx, transactions.Transaction{
			ID:        uuid.New(),
			OwnerID:   o.OwnerID,
			Direction: transactions.Debit,
			Amount:    o.Total(),
			Kind:      transactions.KindProductPurchase,
			Status:    transactions.StatusPending,
			OrderID:   nullUUID(o.ID),
			Reason:    "cash on delivery " + o.Target,
		})
		if err != nil {
			return err
		}

		return s.orders.Advance(ctx, tx, orders.Transition{
			ID: o.ID, From: orders.StatusCreated, To: orders.StatusFulfilled,
		})
	})
	if err != nil {
		return Result{}, err
	}

	applyTransition(&o, orders.Transition{To: orders.StatusFulfilled})
	s.announce(ctx, o)

	return s.result(ctx, o, 0), nil
}

// purchaseViaGateway opens a gateway order the buyer pays out of band. The
// order stays CREATED until the payment is verified.
func (s *Service) purchaseViaGateway(ctx context.Context, o orders.Order) (Result, error) {
	err := s.insertOrder(ctx, o, nil)
	if err != nil {
		return Result{}, err
	}

	gw, err := s.gateway.CreateOrder(ctx, gateway.CreateOrderRequest{
		Receipt: o.ID.String(),
		Amount:  o.Total(),
		Notes:   map[string]string{"sku": o.Target, "kind": string(o.Kind)},
	})
	if err != nil {
		advErr := s.advance(context.WithoutCancel(ctx), &o, orders.Transition{
			To:            orders.StatusFailed,
			FailureReason: "payment gateway unavailable",
		})
		if advErr != nil {
			s.log.ErrorContext(ctx, "mark gateway order failed", "order_id", o.ID, "error", advErr)
		}

		return s.result(ctx, o, 0), fmt.Errorf("create gateway order: %w", err)
	}

	err = pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return s.orders.AttachGatewayOrder(ctx, tx, o.ID, gw.ID)
	})
	if err != nil {
		return Result{}, fmt.Errorf("attach gateway order: %w", err)
	}

	o.GatewayOrderID = gw.ID

	return s.result(ctx, o, 0), nil
}
