package registration

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/retailpay/internal/config"
	"github.com/fastprodman/retailpay/internal/infra/logging"
	"github.com/fastprodman/retailpay/internal/infra/pgtestutil"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider/gateway"
	"github.com/fastprodman/retailpay/internal/repos/audit"
	pgaudit "github.com/fastprodman/retailpay/internal/repos/audit/postgres"
	"github.com/fastprodman/retailpay/internal/repos/registrations"
	"github.com/fastprodman/retailpay/internal/services/ledger"
)

type fakeGateway struct {
	mu      sync.Mutex
	created []gateway.CreateOrderRequest
	status  gateway.Status
	err     error
}

func (f *fakeGateway) CreateOrder(_ context.Context, req gateway.CreateOrderRequest) (gateway.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return gateway.Order{}, f.err
	}

	f.created = append(f.created, req)

	return gateway.Order{ID: "gw_" + req.Receipt, Status: gateway.StatusCreated}, nil
}

func (f *fakeGateway) VerifyOrder(context.Context, string) (gateway.Verification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return gateway.Verification{Status: f.status, PaymentMethod: "upi"}, f.err
}

func (f *fakeGateway) setStatus(st gateway.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.status = st
}

var testFee = Fee{Base: 42288, TaxPercent: decimal.NewFromInt(18)}

func newService(t *testing.T) (*Service, *ledger.Service, *fakeGateway, audit.Log) {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	l := ledger.New(db, ledger.WithLogger(logging.Discard()))
	g := &fakeGateway{status: gateway.StatusCreated}

	return New(db, l, g, WithLogger(logging.Discard())), l, g, pgaudit.New(db)
}

func TestFeeFromConfig(t *testing.T) {
	t.Parallel()

	fee, err := FeeFromConfig(config.RegistrationFeeConfig{Base: "422.88", TaxPercent: decimal.NewFromInt(18)})
	require.NoError(t, err)

	tax, total := fee.Breakdown()
	require.Equal(t, money.Amount(7612), tax)
	require.Equal(t, money.FromRupees(499), total)

	_, err = FeeFromConfig(config.RegistrationFeeConfig{Base: "0", TaxPercent: decimal.NewFromInt(18)})
	require.ErrorIs(t, err, ErrInvalidFee)
}

func TestRegistration_PaidThenLinked(t *testing.T) {
	t.Parallel()

	s, l, g, _ := newService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, testFee)
	require.NoError(t, err)
	require.Equal(t, registrations.StatusCreated, p.Status)
	require.Equal(t, money.FromRupees(499), p.Total)
	require.Equal(t, "gw_"+p.OrderID.String(), p.GatewayOrderID)
	require.Len(t, g.created, 1)
	require.Equal(t, money.FromRupees(499), g.created[0].Amount)

	_, err = s.LinkAccount(ctx, p.OrderID, 42)
	require.ErrorIs(t, err, ErrNotPaid)

	// Still open at the gateway.
	p, err = s.Verify(ctx, p.OrderID, nil)
	require.NoError(t, err)
	require.Equal(t, registrations.StatusCreated, p.Status)

	g.setStatus(gateway.StatusPaid)

	p, err = s.Verify(ctx, p.OrderID, nil)
	require.NoError(t, err)
	require.Equal(t, registrations.StatusPaid, p.Status)
	require.Equal(t, "upi", p.PaymentMethod)

	p, err = s.LinkAccount(ctx, p.OrderID, 42)
	require.NoError(t, err)
	require.NotNil(t, p.UserID)
	require.Equal(t, uint64(42), *p.UserID)

	balance, err := l.GetBalance(ctx, 42)
	require.NoError(t, err)
	require.Zero(t, balance)

	_, err = s.LinkAccount(ctx, p.OrderID, 43)
	require.ErrorIs(t, err, ErrAlreadyLinked)
}

func TestRegistration_VerifyFinalStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status gateway.Status
		want   registrations.Status
	}{
		{status: gateway.StatusFailed, want: registrations.StatusFailed},
		{status: gateway.StatusExpired, want: registrations.StatusExpired},
		{status: gateway.StatusCancelled, want: registrations.StatusCancelled},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()

			s, _, g, _ := newService(t)
			ctx := context.Background()

			p, err := s.Create(ctx, testFee)
			require.NoError(t, err)

			g.setStatus(tt.status)

			p, err = s.Verify(ctx, p.OrderID, nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Status)

			// Final payments are not re-queried.
			g.setStatus(gateway.StatusPaid)

			p, err = s.Verify(ctx, p.OrderID, nil)
			require.NoError(t, err)
			require.Equal(t, tt.want, p.Status)
		})
	}
}

func TestRegistration_MarkPaid(t *testing.T) {
	t.Parallel()

	s, _, _, log := newService(t)
	ctx := context.Background()

	p, err := s.Create(ctx, testFee)
	require.NoError(t, err)

	_, err = s.MarkPaid(ctx, p.OrderID, "  ", 1)
	require.ErrorIs(t, err, ErrNoteRequired)

	p, err = s.MarkPaid(ctx, p.OrderID, "bank transfer UTR 1234", 1)
	require.NoError(t, err)
	require.Equal(t, registrations.StatusPaid, p.Status)
	require.Equal(t, registrations.MethodManualVerification, p.PaymentMethod)
	require.True(t, p.Manual)
	require.NotNil(t, p.PaidAt)

	entries, err := log.List(ctx, "registration", p.OrderID.String())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].Manual)
	require.Equal(t, uint64(1), entries[0].ActorID)

	_, err = s.MarkPaid(ctx, p.OrderID, "again", 1)
	require.ErrorIs(t, err, registrations.ErrStatusConflict)
}

func TestRegistration_GatewayDownStoresNothing(t *testing.T) {
	t.Parallel()

	s, _, g, _ := newService(t)
	g.err = errors.New("connection refused")

	_, err := s.Create(context.Background(), testFee)
	require.Error(t, err)

	pending, err := s.Pending(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	_, err = s.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrPaymentNotFound)
}
