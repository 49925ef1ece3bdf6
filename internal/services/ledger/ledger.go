// Package ledger owns the wallet balance invariant: every balance change is
// made together with exactly one transaction row, inside one database
// transaction, under the wallet row lock.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/events"
	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
	pgtransactions "github.com/fastprodman/retailpay/internal/repos/transactions/postgres"
	"github.com/fastprodman/retailpay/internal/repos/wallets"
	pgwallets "github.com/fastprodman/retailpay/internal/repos/wallets/postgres"
)

var (
	ErrInsufficientFunds = wallets.ErrInsufficientFunds
	ErrWalletNotFound    = wallets.ErrWalletNotFound
	ErrWalletLocked      = wallets.ErrWalletLocked

	ErrDuplicateTransaction = transactions.ErrDuplicateTransaction
	ErrTransactionNotFound  = transactions.ErrNotFound
	ErrInvalidTransition    = errors.New("invalid transaction transition")
	ErrNotReversible        = errors.New("transaction cannot be reversed")
)

type Service struct {
	db          *sql.DB
	wallets     wallets.Wallets
	txns        transactions.Transactions
	lockTimeout time.Duration
	pub         events.Publisher
	log         *slog.Logger
}

type Option func(*Service)

// WithLockTimeout bounds the wait for a wallet row lock. Zero waits forever.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) { s.lockTimeout = d }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.pub = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

func New(db *sql.DB, opts ...Option) *Service {
	s := &Service{
		db:          db,
		wallets:     pgwallets.New(db),
		txns:        pgtransactions.New(db),
		lockTimeout: 3 * time.Second,
		pub:         events.Nop(),
		log:         slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.log = s.log.With("component", "ledger")

	return s
}

// Recorder exposes the transaction store for read paths and bookkeeping rows.
func (s *Service) Recorder() transactions.Transactions {
	return s.txns
}

// Debit describes a reservation request.
type Debit struct {
	OwnerID uint64
	Amount  money.Amount
	Kind    transactions.Kind
	OrderID uuid.NullUUID
	Reason  string
}

// Handle identifies a reserved (pending) debit until it is finalized.
type Handle struct {
	TransactionID uuid.UUID
	OwnerID       uint64
	Amount        money.Amount
	OrderID       uuid.NullUUID
}

// ReserveAndDebit atomically checks balance >= amount, decrements it and
// records a pending debit. On ErrInsufficientFunds nothing is written.
func (s *Service) ReserveAndDebit(ctx context.Context, d Debit) (Handle, error) {
	var h Handle

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		h, err = s.ReserveAndDebitTx(ctx, tx, d)

		return err
	})
	if err != nil {
		return Handle{}, fmt.Errorf("reserve and debit: %w", err)
	}

	s.announce(ctx, d.OwnerID, h.TransactionID, "transaction.reserved", transactions.StatusPending)

	return h, nil
}

// ReserveAndDebitTx is ReserveAndDebit inside a caller-owned transaction, so
// that order state can move in the same commit.
func (s *Service) ReserveAndDebitTx(ctx context.Context, tx *sql.Tx, d Debit) (Handle, error) {
	if d.Amount <= 0 {
		return Handle{}, money.ErrNonPositive
	}

	err := pgutils.SetLockTimeout(ctx, tx, s.lockTimeout)
	if err != nil {
		return Handle{}, err
	}

	w, err := s.wallets.LockAndGet(ctx, tx, d.OwnerID)
	if err != nil {
		return Handle{}, fmt.Errorf("lock wallet: %w", err)
	}

	if w.Balance < d.Amount {
		return Handle{}, fmt.Errorf("%w: balance %s, need %s", ErrInsufficientFunds, w.Balance, d.Amount)
	}

	err = s.wallets.DecreaseBalance(ctx, tx, d.OwnerID, d.Amount)
	if err != nil {
		return Handle{}, fmt.Errorf("decrease balance: %w", err)
	}

	t := transactions.Transaction{
		ID:        uuid.New(),
		OwnerID:   d.OwnerID,
		Direction: transactions.Debit,
		Amount:    d.Amount,
		Kind:      d.Kind,
		Status:    transactions.StatusPending,
		Applied:   true,
		OrderID:   d.OrderID,
		Reason:    d.Reason,
	}

	err = s.txns.Record(ctx, tx, t)
	if err != nil {
		return Handle{}, fmt.Errorf("record debit: %w", err)
	}

	return Handle{TransactionID: t.ID, OwnerID: t.OwnerID, Amount: t.Amount, OrderID: t.OrderID}, nil
}

// Finalization closes a pending transaction.
type Finalization struct {
	TransactionID uuid.UUID
	// Outcome is StatusSuccess or StatusFailed.
	Outcome       transactions.Status
	ProviderRef   string
	FailureReason string
	Manual        bool
	ManualNote    string
}

// Finalize settles a reserved debit. A failed outcome re-credits the reserved
// amount and flips the same row to failed, so the net balance effect is zero.
// Finalizing again with the same outcome is a no-op.
func (s *Service) Finalize(ctx context.Context, f Finalization) (transactions.Transaction, error) {
	var (
		t       transactions.Transaction
		changed bool
	)

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		t, changed, err = s.FinalizeTx(ctx, tx, f)

		return err
	})
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("finalize: %w", err)
	}

	if changed {
		s.Announce(ctx, t)
	}

	return t, nil
}

// FinalizeTx is Finalize inside a caller-owned transaction. changed is false
// when the transaction already had the requested outcome.
func (s *Service) FinalizeTx(ctx context.Context, tx *sql.Tx, f Finalization) (t transactions.Transaction, changed bool, err error) {
	if f.Outcome != transactions.StatusSuccess && f.Outcome != transactions.StatusFailed {
		return t, false, fmt.Errorf("%w: outcome %q", ErrInvalidTransition, f.Outcome)
	}

	err = pgutils.SetLockTimeout(ctx, tx, s.lockTimeout)
	if err != nil {
		return t, false, err
	}

	t, err = s.txns.GetForUpdate(ctx, tx, f.TransactionID)
	if err != nil {
		return t, false, fmt.Errorf("load transaction: %w", err)
	}

	if t.Status == f.Outcome {
		return t, false, nil
	}

	if t.Status != transactions.StatusPending {
		return t, false, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, t.ID, t.Status)
	}

	if f.Outcome == transactions.StatusFailed && t.Applied {
		err = s.restore(ctx, tx, t)
		if err != nil {
			return t, false, err
		}
	}

	err = s.txns.MarkFinal(ctx, tx, transactions.StatusChange{
		ID:            t.ID,
		From:          transactions.StatusPending,
		To:            f.Outcome,
		ProviderRef:   f.ProviderRef,
		FailureReason: f.FailureReason,
		Manual:        f.Manual,
		ManualNote:    f.ManualNote,
	})
	if err != nil {
		return t, false, fmt.Errorf("mark final: %w", err)
	}

	t.Status = f.Outcome
	if f.ProviderRef != "" {
		t.ProviderRef = f.ProviderRef
	}

	if f.FailureReason != "" {
		t.FailureReason = f.FailureReason
	}

	t.Manual = t.Manual || f.Manual

	return t, true, nil
}

// restore undoes the balance effect of an applied pending row.
func (s *Service) restore(ctx context.Context, tx *sql.Tx, t transactions.Transaction) error {
	var err error

	switch t.Direction {
	case transactions.Debit:
		err = s.wallets.IncreaseBalance(ctx, tx, t.OwnerID, t.Amount)
	case transactions.Credit:
		err = s.wallets.DecreaseBalance(ctx, tx, t.OwnerID, t.Amount)
	}

	if err != nil {
		return fmt.Errorf("compensate %s: %w", t.ID, err)
	}

	return nil
}

// Credit describes an unconditional credit.
type Credit struct {
	OwnerID    uint64
	Amount     money.Amount
	Kind       transactions.Kind
	OrderID    uuid.NullUUID
	Reason     string
	Manual     bool
	ManualNote string
}

// Credit adds money and records a successful credit. A second credit of the
// same kind for the same order fails with ErrDuplicateTransaction, which makes
// rewards safe to retry.
func (s *Service) Credit(ctx context.Context, c Credit) (transactions.Transaction, error) {
	var t transactions.Transaction

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error

		t, err = s.CreditTx(ctx, tx, c)

		return err
	})
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("credit: %w", err)
	}

	s.Announce(ctx, t)

	return t, nil
}

func (s *Service) CreditTx(ctx context.Context, tx *sql.Tx, c Credit) (transactions.Transaction, error) {
	if c.Amount <= 0 {
		return transactions.Transaction{}, money.ErrNonPositive
	}

	err := pgutils.SetLockTimeout(ctx, tx, s.lockTimeout)
	if err != nil {
		return transactions.Transaction{}, err
	}

	err = s.wallets.Exists(ctx, tx, c.OwnerID)
	if err != nil {
		return transactions.Transaction{}, err
	}

	t := transactions.Transaction{
		ID:         uuid.New(),
		OwnerID:    c.OwnerID,
		Direction:  transactions.Credit,
		Amount:     c.Amount,
		Kind:       c.Kind,
		Status:     transactions.StatusSuccess,
		Applied:    true,
		OrderID:    c.OrderID,
		Reason:     c.Reason,
		Manual:     c.Manual,
		ManualNote: c.ManualNote,
		CreatedAt:  time.Now().UTC(),
	}

	// Record first: a duplicate must fail before the balance moves.
	err = s.txns.Record(ctx, tx, t)
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("record credit: %w", err)
	}

	err = s.wallets.IncreaseBalance(ctx, tx, c.OwnerID, c.Amount)
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("increase balance: %w", err)
	}

	return t, nil
}

// Reversal undoes a successful applied debit through a linked refund credit.
type Reversal struct {
	TransactionID uuid.UUID
	Note          string
}

// Reverse marks the debit reversed and records the refund that pays it back.
// The original row keeps its amount and direction.
func (s *Service) Reverse(ctx context.Context, r Reversal) (transactions.Transaction, error) {
	var refund transactions.Transaction

	err := pgutils.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		err := pgutils.SetLockTimeout(ctx, tx, s.lockTimeout)
		if err != nil {
			return err
		}

		orig, err := s.txns.GetForUpdate(ctx, tx, r.TransactionID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}

		if orig.Direction != transactions.Debit || orig.Status != transactions.StatusSuccess || !orig.Applied {
			return fmt.Errorf("%w: %s %s %s", ErrNotReversible, orig.Direction, orig.Kind, orig.Status)
		}

		err = s.txns.MarkFinal(ctx, tx, transactions.StatusChange{
			ID:         orig.ID,
			From:       transactions.StatusSuccess,
			To:         transactions.StatusReversed,
			Manual:     true,
			ManualNote: r.Note,
		})
		if err != nil {
			return fmt.Errorf("mark reversed: %w", err)
		}

		refund = transactions.Transaction{
			ID:         uuid.New(),
			OwnerID:    orig.OwnerID,
			Direction:  transactions.Credit,
			Amount:     orig.Amount,
			Kind:       transactions.KindRefund,
			Status:     transactions.StatusSuccess,
			Applied:    true,
			OrderID:    orig.OrderID,
			ReversesID: uuid.NullUUID{UUID: orig.ID, Valid: true},
			Reason:     "reversal of " + orig.ID.String(),
			Manual:     true,
			ManualNote: r.Note,
			CreatedAt:  time.Now().UTC(),
		}

		err = s.txns.Record(ctx, tx, refund)
		if err != nil {
			return fmt.Errorf("record refund: %w", err)
		}

		err = s.wallets.IncreaseBalance(ctx, tx, orig.OwnerID, orig.Amount)
		if err != nil {
			return fmt.Errorf("increase balance: %w", err)
		}

		return nil
	})
	if err != nil {
		return transactions.Transaction{}, fmt.Errorf("reverse: %w", err)
	}

	s.Announce(ctx, refund)

	return refund, nil
}

// CreateWalletTx opens a wallet for a new account; idempotent.
func (s *Service) CreateWalletTx(ctx context.Context, tx *sql.Tx, ownerID uint64) error {
	return s.wallets.Create(ctx, tx, ownerID)
}

// RecordTx stores a bookkeeping row that does not move the balance, such as
// cash-on-delivery or gateway-paid purchases.
func (s *Service) RecordTx(ctx context.Context, tx *sql.Tx, t transactions.Transaction) error {
	if t.Applied {
		return fmt.Errorf("%w: applied rows must go through debit or credit", ErrInvalidTransition)
	}

	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}

	return s.txns.Record(ctx, tx, t)
}

func (s *Service) GetBalance(ctx context.Context, ownerID uint64) (money.Amount, error) {
	balance, err := s.wallets.GetBalance(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}

func (s *Service) Wallet(ctx context.Context, ownerID uint64) (wallets.Wallet, error) {
	w, err := s.wallets.Get(ctx, ownerID)
	if err != nil {
		return wallets.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}

func (s *Service) History(ctx context.Context, ownerID uint64, limit int) ([]transactions.Transaction, error) {
	list, err := s.txns.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	return list, nil
}

type AuditReport struct {
	OwnerID    uint64       `json:"ownerId"`
	Balance    money.Amount `json:"balance"`
	Credits    money.Amount `json:"credits"`
	Debits     money.Amount `json:"debits"`
	Computed   money.Amount `json:"computed"`
	Consistent bool         `json:"consistent"`
}

// Audit recomputes the balance from the applied, non-failed transactions and
// compares it with the stored one.
func (s *Service) Audit(ctx context.Context, ownerID uint64) (AuditReport, error) {
	balance, err := s.wallets.GetBalance(ctx, ownerID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("audit: %w", err)
	}

	totals, err := s.txns.Totals(ctx, ownerID)
	if err != nil {
		return AuditReport{}, fmt.Errorf("audit: %w", err)
	}

	r := AuditReport{
		OwnerID:  ownerID,
		Balance:  balance,
		Credits:  totals.Credits,
		Debits:   totals.Debits,
		Computed: totals.Credits - totals.Debits,
	}
	r.Consistent = r.Computed == r.Balance

	if !r.Consistent {
		s.log.ErrorContext(ctx, "wallet balance drift", "owner_id", ownerID, "balance", balance, "computed", r.Computed)
	}

	return r, nil
}

// Announce publishes the committed transactions and the resulting balance of
// every wallet they touched.
func (s *Service) Announce(ctx context.Context, txns ...transactions.Transaction) {
	owners := make(map[uint64]struct{}, 1)

	for _, t := range txns {
		events.Emit(ctx, s.pub, s.log, events.Event{
			Topic:    events.TopicTransaction,
			Type:     "transaction." + string(t.Status),
			OwnerID:  t.OwnerID,
			EntityID: t.ID.String(),
			Status:   string(t.Status),
			Data: map[string]any{
				"direction": t.Direction,
				"kind":      t.Kind,
				"amount":    t.Amount,
			},
		})

		owners[t.OwnerID] = struct{}{}
	}

	for owner := range owners {
		s.announceBalance(ctx, owner)
	}
}

// AnnounceReserved publishes a reservation committed through ReserveAndDebitTx.
func (s *Service) AnnounceReserved(ctx context.Context, h Handle) {
	s.announce(ctx, h.OwnerID, h.TransactionID, "transaction.reserved", transactions.StatusPending)
}

func (s *Service) announce(ctx context.Context, ownerID uint64, txID uuid.UUID, typ string, status transactions.Status) {
	events.Emit(ctx, s.pub, s.log, events.Event{
		Topic:    events.TopicTransaction,
		Type:     typ,
		OwnerID:  ownerID,
		EntityID: txID.String(),
		Status:   string(status),
	})

	s.announceBalance(ctx, ownerID)
}

func (s *Service) announceBalance(ctx context.Context, ownerID uint64) {
	balance, err := s.wallets.GetBalance(ctx, ownerID)
	if err != nil {
		s.log.WarnContext(ctx, "read balance for event", "owner_id", ownerID, "error", err)
		return
	}

	events.Emit(ctx, s.pub, s.log, events.Event{
		Topic:    events.TopicWallet,
		Type:     "wallet.balance",
		OwnerID:  ownerID,
		EntityID: strconv.FormatUint(ownerID, 10),
		Data:     map[string]any{"balance": balance},
	})
}
