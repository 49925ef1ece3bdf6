package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/fastprodman/retailpay/internal/api"
	"github.com/fastprodman/retailpay/internal/events"
	"github.com/fastprodman/retailpay/internal/infra/logging"
	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/provider/gateway"
	"github.com/fastprodman/retailpay/internal/provider/recharge"
	"github.com/fastprodman/retailpay/internal/services/ledger"
	"github.com/fastprodman/retailpay/internal/services/orchestrator"
	"github.com/fastprodman/retailpay/internal/services/reconcile"
	"github.com/fastprodman/retailpay/internal/services/registration"
	"github.com/fastprodman/retailpay/pkg/envconf"
	"github.com/fastprodman/retailpay/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	err := envconf.LoadFile(".env")
	if err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	cfg := new(apiConfig)

	err = envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = cfg.Reconcile.Validate(cfg.Recharge, cfg.Retry)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	logging.SetupJSON(cfg.LogLevel)

	fee, err := registration.FeeFromConfig(cfg.Fee)
	if err != nil {
		return fmt.Errorf("registration fee: %w", err)
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	db, err := pgutils.OpenDB(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}

	shutdownqueue.AddNamed("postgres", func(context.Context) error {
		return db.Close()
	})

	hub := events.NewHub()

	pub, err := setupEvents(ctx, cfg, hub)
	if err != nil {
		return err
	}

	// --- Providers ---
	rechargeClient := recharge.New(cfg.Recharge, cfg.Retry)
	gatewayClient := gateway.New(cfg.Gateway, cfg.Retry)

	// --- Services ---
	ledgerSrv := ledger.New(db, ledger.WithLockTimeout(cfg.Postgres.LockTimeout), ledger.WithPublisher(pub))
	orchSrv := orchestrator.New(db, ledgerSrv, rechargeClient, gatewayClient,
		orchestrator.WithPublisher(pub),
		orchestrator.WithBillTTL(cfg.BillTTL),
	)
	regSrv := registration.New(db, ledgerSrv, gatewayClient, registration.WithPublisher(pub))
	reconcileSrv := reconcile.New(orchSrv, regSrv, rechargeClient, gatewayClient, cfg.Reconcile)

	// --- Reconciliation worker ---
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	workerDone := make(chan struct{})

	go func() {
		defer close(workerDone)

		//nolint:errcheck
		reconcileSrv.Run(workerCtx)
	}()

	shutdownqueue.AddNamed("reconcile-worker", func(c context.Context) error {
		stopWorker()

		select {
		case <-workerDone:
			return nil
		case <-c.Done():
			return fmt.Errorf("wait reconcile worker: %w", c.Err())
		}
	}, shutdownqueue.WithTimeout(cfg.HTTP.ShutdownTimeout/2))

	// --- HTTP server ---
	srv := api.NewServer(cfg.HTTP, api.Deps{
		Wallets:       ledgerSrv,
		Orders:        orchSrv,
		Catalog:       orchSrv.Catalog(),
		Plans:         rechargeClient,
		Registrations: regSrv,
		Reconciler:    reconcileSrv,
		Hub:           hub,
		Fee:           fee,
		Health:        db.PingContext,
		CORSOrigins:   cfg.HTTP.CORSOrigins,
		Logger:        slog.Default(),
	})

	// Register HTTP server graceful shutdown
	shutdownqueue.AddNamed("http", func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	// Run server
	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr
			return
		}

		errCh <- nil
	}()

	slog.Info("API started", "port", cfg.HTTP.Port)

	// --- Wait until either context cancels or server errors out ---
	select {
	case <-ctx.Done():
		// graceful path; deferred shutdownqueue.Shutdown will run
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}

// setupEvents returns the publisher services write to. With Redis configured
// events go through Redis and come back into the local hub through a bridge,
// so websocket clients of every instance see every change.
func setupEvents(ctx context.Context, cfg *apiConfig, hub *events.Hub) (events.Publisher, error) {
	if cfg.Redis.Addr == "" {
		slog.Info("redis not configured, change feed is local to this instance")

		return hub, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	err := rdb.Ping(ctx).Err()
	if err != nil {
		//nolint:errcheck
		rdb.Close()

		return nil, fmt.Errorf("ping redis: %w", err)
	}

	shutdownqueue.AddNamed("redis", func(context.Context) error {
		return rdb.Close()
	})

	bridgeCtx, stopBridge := context.WithCancel(context.WithoutCancel(ctx))
	bridge := events.NewBridge(rdb, cfg.Redis.ChannelPrefix, hub, slog.Default())

	go func() {
		err := bridge.Run(bridgeCtx, nil)
		if err != nil {
			slog.Error("events bridge stopped", "error", err)
		}
	}()

	shutdownqueue.AddNamed("events-bridge", func(context.Context) error {
		stopBridge()

		return nil
	})

	return events.NewRedisPublisher(rdb, cfg.Redis.ChannelPrefix), nil
}
