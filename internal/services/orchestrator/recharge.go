package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/provider/recharge"
	"github.com/fastprodman/retailpay/internal/repos/bills"
	"github.com/fastprodman/retailpay/internal/repos/catalog"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
	"github.com/fastprodman/retailpay/internal/services/ledger"
)

type RechargeRequest struct {
	OwnerID  uint64
	Operator string
	Target   string
	Circle   string
	Amount   money.Amount
}

// Recharge tops up a prepaid or DTH account from the wallet.
func (s *Service) Recharge(ctx context.Context, req RechargeRequest) (Result, error) {
	op, err := s.validate(ctx, req.Operator, req.Target, req.Amount)
	if err != nil {
		return Result{}, err
	}

	if op.BillFetchRequired {
		return Result{}, fmt.Errorf("%w: %s is billed, pay it as a bill", ErrBillFetchRequired, op.Code)
	}

	o := orders.Order{
		ID:           uuid.New(),
		OwnerID:      req.OwnerID,
		Kind:         orders.KindRecharge,
		OperatorCode: op.Code,
		Target:       strings.TrimSpace(req.Target),
		Circle:       req.Circle,
		Amount:       req.Amount,
		Method:       orders.MethodWallet,
		Status:       orders.StatusCreated,
	}

	err = s.insertOrder(ctx, o, nil)
	if err != nil {
		return Result{}, err
	}

	return s.runProviderOrder(ctx, o)
}

type BillRequest struct {
	OwnerID    uint64
	Operator   string
	ConsumerID string
	Extra      map[string]string
}

// FetchBill asks the provider for the payable bill and keeps it so that a
// payment can later prove its amount.
func (s *Service) FetchBill(ctx context.Context, req BillRequest) (bills.Bill, error) {
	consumerID := strings.TrimSpace(req.ConsumerID)
	if consumerID == "" {
		return bills.Bill{}, fmt.Errorf("%w: consumer id is required", ErrInvalidRequest)
	}

	op, err := s.catalog.Operator(ctx, req.Operator)
	if err != nil {
		return bills.Bill{}, err
	}

	fetched, err := s.provider.FetchBill(ctx, recharge.BillQuery{Operator: op.Code, ConsumerID: consumerID, Extra: req.Extra})
	if err != nil {
		return bills.Bill{}, err
	}

	now := time.Now().UTC()
	b := bills.Bill{
		ID:           uuid.New(),
		OwnerID:      req.OwnerID,
		OperatorCode: op.Code,
		ConsumerID:   consumerID,
		CustomerName: fetched.CustomerName,
		BillNumber:   fetched.BillNumber,
		Amount:       fetched.Amount,
		DueDate:      fetched.DueDate,
		FetchedAt:    now,
		ExpiresAt:    now.Add(s.billTTL),
	}

	err = s.bills.Insert(ctx, b)
	if err != nil {
		return bills.Bill{}, fmt.Errorf("store bill: %w", err)
	}

	return b, nil
}

type BillPayment struct {
	OwnerID    uint64
	Operator   string
	ConsumerID string
	Amount     money.Amount
	// BillID references a prior FetchBill; mandatory for operators that
	// require bill fetch.
	BillID uuid.NullUUID
}

// PayBill pays a utility or postpaid bill from the wallet.
func (s *Service) PayBill(ctx context.Context, req BillPayment) (Result, error) {
	op, err := s.validate(ctx, req.Operator, req.ConsumerID, req.Amount)
	if err != nil {
		return Result{}, err
	}

	if op.BillFetchRequired && !req.BillID.Valid {
		return Result{}, fmt.Errorf("%w: operator %s", ErrBillFetchRequired, op.Code)
	}

	o := orders.Order{
		ID:           uuid.New(),
		OwnerID:      req.OwnerID,
		Kind:         orders.KindBillPayment,
		OperatorCode: op.Code,
		Target:       strings.TrimSpace(req.ConsumerID),
		Amount:       req.Amount,
		Method:       orders.MethodWallet,
		Status:       orders.StatusCreated,
		Metadata:     map[string]string{},
	}

	var consume func(tx *sql.Tx) error

	if req.BillID.Valid {
		b, err := s.checkBill(ctx, req, o.Target)
		if err != nil {
			return Result{}, err
		}

		o.Metadata["billId"] = b.ID.String()
		o.Metadata["customerName"] = b.CustomerName
		o.Metadata["billNumber"] = b.BillNumber

		consume = func(tx *sql.Tx) error {
			err := s.bills.Consume(ctx, tx, b.ID, o.ID)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrBillFetchRequired, err)
			}

			return nil
		}
	}

	err = s.insertOrder(ctx, o, consume)
	if err != nil {
		return Result{}, err
	}

	return s.runProviderOrder(ctx, o)
}

func (s *Service) checkBill(ctx context.Context, req BillPayment, consumerID string) (bills.Bill, error) {
	b, err := s.bills.Get(ctx, req.BillID.UUID)
	if err != nil {
		if errors.Is(err, bills.ErrBillNotFound) {
			return bills.Bill{}, fmt.Errorf("%w: %w", ErrBillFetchRequired, err)
		}

		return bills.Bill{}, err
	}

	switch {
	case b.OwnerID != req.OwnerID:
		return bills.Bill{}, fmt.Errorf("%w: %w", ErrBillFetchRequired, bills.ErrBillNotFound)
	case b.OrderID.Valid:
		return bills.Bill{}, fmt.Errorf("%w: %w", ErrBillFetchRequired, bills.ErrBillConsumed)
	case time.Now().After(b.ExpiresAt):
		return bills.Bill{}, fmt.Errorf("%w: %w", ErrBillFetchRequired, bills.ErrBillExpired)
	case !strings.EqualFold(b.OperatorCode, req.Operator) || b.ConsumerID != consumerID:
		return bills.Bill{}, fmt.Errorf("%w: bill is for %s/%s", ErrBillMismatch, b.OperatorCode, b.ConsumerID)
	case b.Amount != req.Amount:
		return bills.Bill{}, fmt.Errorf("%w: bill amount is %s", ErrBillMismatch, b.Amount)
	}

	return b, nil
}

// validate runs every check that must pass before anything is persisted.
func (s *Service) validate(ctx context.Context, operator, target string, amount money.Amount) (catalog.Operator, error) {
	if strings.TrimSpace(operator) == "" || strings.TrimSpace(target) == "" {
		return catalog.Operator{}, fmt.Errorf("%w: operator and number are required", ErrInvalidRequest)
	}

	if amount <= 0 {
		return catalog.Operator{}, fmt.Errorf("%w: %w", ErrInvalidRequest, money.ErrNonPositive)
	}

	op, err := s.catalog.Operator(ctx, operator)
	if err != nil {
		return catalog.Operator{}, err
	}

	err = op.CheckAmount(amount)
	if err != nil {
		return catalog.Operator{}, err
	}

	return op, nil
}

// runProviderOrder takes a CREATED order through reservation, the provider
// call and settlement.
func (s *Service) runProviderOrder(ctx context.Context, o orders.Order) (Result, error) {
	var h ledger.Handle

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		h, err = s.ledger.ReserveAndDebitTx(ctx, tx, ledger.Debit{
			OwnerID: o.OwnerID,
			Amount:  o.Total(),
			Kind:    transactions.Kind(o.Kind),
			OrderID: nullUUID(o.ID),
			Reason:  fmt.Sprintf("%s %s %s", o.Kind, o.OperatorCode, o.Target),
		})
		if err != nil {
			return err
		}

		return s.orders.Advance(ctx, tx, orders.Transition{
			ID: o.ID, From: orders.StatusCreated, To: orders.StatusReserved, DebitTxID: nullUUID(h.TransactionID),
		})
	})
	if err != nil {
		return s.failUnreserved(ctx, o, err)
	}

	applyTransition(&o, orders.Transition{To: orders.StatusReserved, DebitTxID: nullUUID(h.TransactionID)})
	s.announce(ctx, o)
	s.ledger.AnnounceReserved(ctx, h)

	// Once PROVIDER_CALLED is committed the call may have happened and only
	// reconciliation can undo the reservation.
	err = s.advance(ctx, &o, orders.Transition{To: orders.StatusProviderCalled})
	if err != nil {
		return s.result(ctx, o, 0), err
	}

	res, err := s.provider.SubmitRecharge(ctx, recharge.Request{
		RequestID: o.ID.String(),
		Operator:  o.OperatorCode,
		Target:    o.Target,
		Circle:    o.Circle,
		Amount:    o.Amount,
	})
	if err != nil {
		res = recharge.Result{Outcome: provider.OutcomeAmbiguous, Message: err.Error()}
	}

	// The outcome must be recorded even if the caller went away.
	ctx = context.WithoutCancel(ctx)

	switch res.Outcome {
	case provider.OutcomeSuccess, provider.OutcomeFailed:
		r, err := s.Settle(ctx, o.ID, Settlement{
			Outcome:     res.Outcome,
			ProviderRef: res.ProviderRef,
			Commission:  res.Commission,
			Reason:      res.Message,
		})
		if err != nil {
			return s.result(ctx, o, 0), err
		}

		if res.Outcome == provider.OutcomeFailed {
			return r, fmt.Errorf("%w: order %s", provider.ErrProviderRejected, o.ID)
		}

		return r, nil
	default:
		s.log.WarnContext(ctx, "provider outcome ambiguous", "order_id", o.ID, "message", res.Message)

		err = s.advance(ctx, &o, orders.Transition{To: orders.StatusPendingReconcile, ProviderRef: res.ProviderRef})
		if err != nil {
			return s.result(ctx, o, 0), err
		}

		return s.result(ctx, o, 0), fmt.Errorf("%w: order %s", ErrReconciliationRequired, o.ID)
	}
}

// failUnreserved marks an order FAILED when the reservation did not happen.
func (s *Service) failUnreserved(ctx context.Context, o orders.Order, cause error) (Result, error) {
	advErr := s.advance(context.WithoutCancel(ctx), &o, orders.Transition{
		To:            orders.StatusFailed,
		FailureReason: failureReason(cause),
	})
	if advErr != nil {
		s.log.ErrorContext(ctx, "mark unreserved order failed", "order_id", o.ID, "error", advErr)
	}

	return s.result(ctx, o, 0), fmt.Errorf("reserve funds: %w", cause)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient funds"
	case errors.Is(err, ledger.ErrWalletNotFound):
		return "wallet not found"
	case errors.Is(err, ledger.ErrWalletLocked):
		return "wallet locked"
	default:
		return "reservation failed"
	}
}
