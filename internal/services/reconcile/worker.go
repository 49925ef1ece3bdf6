package reconcile

import (
	"context"
	"time"

	"github.com/fastprodman/retailpay/internal/repos/orders"
)

// Run reconciles in batches every cfg.Interval until ctx is done. A zero
// interval disables the loop.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		s.log.InfoContext(ctx, "reconcile worker disabled")

		return nil
	}

	s.log.InfoContext(ctx, "reconcile worker started", "interval", s.cfg.Interval, "batch", s.cfg.BatchSize)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.InfoContext(context.WithoutCancel(ctx), "reconcile worker stopped")

			return nil
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// sweep order matters: parked orders first, then crash leftovers.
var sweepStatuses = []orders.Status{
	orders.StatusPendingReconcile,
	orders.StatusProviderCalled,
	orders.StatusReserved,
	orders.StatusCreated,
}

// RunOnce reconciles one batch per status plus one batch of registration
// payments, all older than cfg.MinAge. It returns how many entities were
// looked at.
func (s *Service) RunOnce(ctx context.Context) int {
	before := time.Now().Add(-s.cfg.MinAge)
	seen := 0

	for _, st := range sweepStatuses {
		list, err := s.orch.Orders().ListByStatus(ctx, st, before, s.cfg.BatchSize)
		if err != nil {
			s.log.ErrorContext(ctx, "list orders", "status", st, "error", err)

			continue
		}

		for _, o := range list {
			if ctx.Err() != nil {
				return seen
			}

			seen++

			_, err := s.Reconcile(ctx, o.ID, 0)
			if err != nil {
				s.log.WarnContext(ctx, "reconcile order", "order_id", o.ID, "status", o.Status, "error", err)
			}
		}
	}

	payments, err := s.reg.Pending(ctx, before, s.cfg.BatchSize)
	if err != nil {
		s.log.ErrorContext(ctx, "list registration payments", "error", err)

		return seen
	}

	for _, p := range payments {
		if ctx.Err() != nil {
			return seen
		}

		seen++

		_, _, err := s.ReconcileRegistration(ctx, p.OrderID, 0)
		if err != nil {
			s.log.WarnContext(ctx, "reconcile registration", "order_id", p.OrderID, "error", err)
		}
	}

	return seen
}
