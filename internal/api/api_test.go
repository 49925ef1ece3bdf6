package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/retailpay/internal/events"
	"github.com/fastprodman/retailpay/internal/infra/logging"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/repos/bills"
	"github.com/fastprodman/retailpay/internal/repos/catalog"
	"github.com/fastprodman/retailpay/internal/repos/orders"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
	"github.com/fastprodman/retailpay/internal/repos/wallets"
	"github.com/fastprodman/retailpay/internal/services/ledger"
	"github.com/fastprodman/retailpay/internal/services/orchestrator"
	"github.com/fastprodman/retailpay/internal/services/reconcile"
)

type fakeWallets struct {
	WalletService
	credited []ledger.Credit
}

func (f *fakeWallets) Wallet(_ context.Context, ownerID uint64) (wallets.Wallet, error) {
	if ownerID != 7 {
		return wallets.Wallet{}, fmt.Errorf("get wallet: %w", ledger.ErrWalletNotFound)
	}

	return wallets.Wallet{OwnerID: 7, Balance: 20600, Currency: money.Currency, Status: wallets.StatusActive}, nil
}

func (f *fakeWallets) Credit(_ context.Context, c ledger.Credit) (transactions.Transaction, error) {
	f.credited = append(f.credited, c)

	return transactions.Transaction{ID: uuid.New(), OwnerID: c.OwnerID, Amount: c.Amount, Kind: c.Kind}, nil
}

type fakeOrders struct {
	OrderService
	result orchestrator.Result
	err    error
	last   orchestrator.RechargeRequest
}

func (f *fakeOrders) Recharge(_ context.Context, req orchestrator.RechargeRequest) (orchestrator.Result, error) {
	f.last = req

	return f.result, f.err
}

func (f *fakeOrders) PayBill(context.Context, orchestrator.BillPayment) (orchestrator.Result, error) {
	return f.result, f.err
}

func (f *fakeOrders) FetchBill(context.Context, orchestrator.BillRequest) (bills.Bill, error) {
	return bills.Bill{}, f.err
}

type fakeReconciler struct {
	ReconcileService
}

func (fakeReconciler) ManualOverride(_ context.Context, _ uuid.UUID, _ orders.Status, note string, _ uint64) (reconcile.Outcome, error) {
	if strings.TrimSpace(note) == "" {
		return reconcile.Outcome{}, reconcile.ErrNoteRequired
	}

	return reconcile.Outcome{Decision: reconcile.DecisionFulfilled}, nil
}

type testEnv struct {
	srv     *httptest.Server
	wallets *fakeWallets
	orders  *fakeOrders
	hub     *events.Hub
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	env := testEnv{
		wallets: &fakeWallets{},
		orders:  &fakeOrders{},
		hub:     events.NewHub(),
	}

	env.srv = httptest.NewServer(NewRouter(Deps{
		Wallets:     env.wallets,
		Orders:      env.orders,
		Reconciler:  fakeReconciler{},
		Hub:         env.hub,
		CORSOrigins: []string{"*"},
		Logger:      logging.Discard(),
	}))
	t.Cleanup(env.srv.Close)

	return env
}

func (env testEnv) do(t *testing.T, method, path, body string, userID uint64, role string) (*http.Response, map[string]any) {
	t.Helper()

	req, err := http.NewRequest(method, env.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)

	if userID != 0 {
		req.Header.Set(HeaderUserID, fmt.Sprint(userID))
	}

	if role != "" {
		req.Header.Set(HeaderUserRole, role)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	//nolint:errcheck
	defer resp.Body.Close()

	var out map[string]any

	err = json.NewDecoder(resp.Body).Decode(&out)
	require.NoError(t, err)

	return resp, out
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()

	e, ok := body["error"].(map[string]any)
	require.True(t, ok, "no error in %v", body)

	return e["code"].(string)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz", "", 0, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}

func TestIdentity(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	tests := []struct {
		name     string
		path     string
		userID   uint64
		role     string
		wantCode int
		wantErr  string
	}{
		{name: "anonymous", path: "/api/v1/wallet/balance", wantCode: http.StatusUnauthorized, wantErr: CodeUnauthenticated},
		{name: "user_on_admin_route", path: "/api/v1/admin/wallets/7/audit", userID: 7, wantCode: http.StatusForbidden, wantErr: CodeForbidden},
		{name: "own_wallet", path: "/api/v1/wallet/balance", userID: 7, wantCode: http.StatusOK},
		{name: "no_wallet", path: "/api/v1/wallet/balance", userID: 8, wantCode: http.StatusNotFound, wantErr: CodeWalletNotFound},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp, body := env.do(t, http.MethodGet, tt.path, "", tt.userID, tt.role)
			require.Equal(t, tt.wantCode, resp.StatusCode)

			if tt.wantErr != "" {
				require.Equal(t, tt.wantErr, errorCode(t, body))
			} else {
				require.Equal(t, "206.00", body["balance"])
			}
		})
	}
}

func TestRechargeResponses(t *testing.T) {
	t.Parallel()

	order := orders.Order{ID: uuid.New(), OwnerID: 7, Status: orders.StatusPendingReconcile}

	tests := []struct {
		name     string
		body     string
		result   orchestrator.Result
		err      error
		wantCode int
		wantErr  string
	}{
		{
			name:     "fulfilled",
			body:     `{"operator":"AIRTEL","number":"9876543210","amount":"300.00"}`,
			result:   orchestrator.Result{Order: orders.Order{ID: order.ID, Status: orders.StatusFulfilled}, Reward: 600, Balance: 20600},
			wantCode: http.StatusCreated,
		},
		{
			name:     "ambiguous",
			body:     `{"operator":"AIRTEL","number":"9876543210","amount":"300.00"}`,
			result:   orchestrator.Result{Order: order},
			err:      fmt.Errorf("%w: order %s", orchestrator.ErrReconciliationRequired, order.ID),
			wantCode: http.StatusAccepted,
			wantErr:  CodeReconciliationRequired,
		},
		{
			name:     "rejected",
			body:     `{"operator":"AIRTEL","number":"9876543210","amount":"300.00"}`,
			err:      fmt.Errorf("%w: raw provider body", provider.ErrProviderRejected),
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  CodeProviderRejected,
		},
		{
			name:     "insufficient",
			body:     `{"operator":"AIRTEL","number":"9876543210","amount":"300.00"}`,
			err:      fmt.Errorf("reserve funds: %w", ledger.ErrInsufficientFunds),
			wantCode: http.StatusConflict,
			wantErr:  CodeInsufficientFunds,
		},
		{
			name:     "out_of_range",
			body:     `{"operator":"AIRTEL","number":"9876543210","amount":"3.00"}`,
			err:      fmt.Errorf("%w: too small", catalog.ErrAmountOutOfRange),
			wantCode: http.StatusUnprocessableEntity,
			wantErr:  CodeAmountOutOfRange,
		},
		{
			name:     "too_many_decimals",
			body:     `{"operator":"AIRTEL","number":"9876543210","amount":"3.001"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  CodeInvalidRequest,
		},
		{
			name:     "unknown_field",
			body:     `{"operator":"AIRTEL","msisdn":"1"}`,
			wantCode: http.StatusBadRequest,
			wantErr:  CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.orders.result = tt.result
			env.orders.err = tt.err

			resp, body := env.do(t, http.MethodPost, "/api/v1/recharges", tt.body, 7, "")
			require.Equal(t, tt.wantCode, resp.StatusCode)

			if tt.wantErr != "" {
				require.Equal(t, tt.wantErr, errorCode(t, body))
				require.NotContains(t, fmt.Sprint(body), "raw provider body")
			}

			if tt.wantCode == http.StatusCreated {
				require.Equal(t, "6.00", body["reward"])
				require.Equal(t, uint64(7), env.orders.last.OwnerID)
				require.Equal(t, money.Amount(30000), env.orders.last.Amount)
			}

			if tt.wantCode == http.StatusAccepted {
				o := body["order"].(map[string]any)
				require.Equal(t, string(orders.StatusPendingReconcile), o["status"])
			}
		})
	}
}

func TestAdminCredit(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/admin/wallets/7/credit", `{"amount":"100.00"}`, 1, RoleAdmin)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, CodeNoteRequired, errorCode(t, body))

	resp, _ = env.do(t, http.MethodPost, "/api/v1/admin/wallets/7/credit", `{"amount":"100.00","note":"promo"}`, 1, RoleAdmin)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, env.wallets.credited, 1)
	require.True(t, env.wallets.credited[0].Manual)
	require.Equal(t, transactions.KindAdminAdjustment, env.wallets.credited[0].Kind)
}

func TestAdminOverride_NoteRequired(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	path := "/api/v1/admin/orders/" + uuid.NewString() + "/override"

	resp, body := env.do(t, http.MethodPost, path, `{"status":"FULFILLED","note":""}`, 1, RoleAdmin)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, CodeNoteRequired, errorCode(t, body))

	resp, body = env.do(t, http.MethodPost, path, `{"status":"FULFILLED","note":"confirmed"}`, 1, RoleAdmin)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, string(reconcile.DecisionFulfilled), body["decision"])
}

func TestClassify_UnknownIsInternal(t *testing.T) {
	t.Parallel()

	status, code, msg := classify(fmt.Errorf("pq: connection reset"))
	require.Equal(t, http.StatusInternalServerError, status)
	require.Equal(t, CodeInternal, code)
	require.Equal(t, "internal error", msg)
}

func TestWebSocket_ReceivesOwnEvents(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	header := http.Header{HeaderUserID: []string{"7"}}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	//nolint:errcheck
	defer resp.Body.Close()
	//nolint:errcheck
	defer conn.Close()

	// The subscription is registered right after the upgrade; publish until
	// the first event makes it through.
	got := make(chan events.Event, 1)

	go func() {
		var ev events.Event
		if conn.ReadJSON(&ev) == nil {
			got <- ev
		}
	}()

	deadline := time.After(3 * time.Second)

	for {
		_ = env.hub.Publish(context.Background(), events.Event{Topic: events.TopicOrder, OwnerID: 8, EntityID: "other"})
		_ = env.hub.Publish(context.Background(), events.Event{Topic: events.TopicOrder, OwnerID: 7, EntityID: "mine"})

		select {
		case ev := <-got:
			require.Equal(t, "mine", ev.EntityID)

			return
		case <-deadline:
			t.Fatal("no event received")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
