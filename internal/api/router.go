package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/fastprodman/retailpay/internal/infra/metrics"
)

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(deps Deps) http.Handler {
	h := NewHandler(deps)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: deps.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderUserID, HeaderUserRole},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.HealthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identify, requireUser)
		r.Get("/ws", h.WebSocketHandler)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(identify)

		// Registration happens before the account exists.
		r.Post("/registrations", h.CreateRegistrationHandler)
		r.Post("/registrations/{orderId}/verify", h.VerifyRegistrationHandler)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Post("/registrations/{orderId}/link", h.LinkRegistrationHandler)

			r.Get("/wallet/balance", h.GetBalanceHandler)
			r.Get("/wallet/transactions", h.ListTransactionsHandler)

			r.Get("/catalog/operators", h.ListOperatorsHandler)
			r.Get("/catalog/circles", h.ListCirclesHandler)
			r.Get("/catalog/plans", h.ListPlansHandler)

			r.Post("/bills/fetch", h.FetchBillHandler)
			r.Post("/bills/pay", h.PayBillHandler)
			r.Post("/recharges", h.CreateRechargeHandler)

			r.Post("/orders", h.CreateOrderHandler)
			r.Get("/orders", h.ListOrdersHandler)
			r.Get("/orders/{orderId}", h.GetOrderHandler)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Post("/wallets/{ownerId}/credit", h.AdminCreditHandler)
			r.Get("/wallets/{ownerId}/audit", h.AdminWalletAuditHandler)
			r.Post("/transactions/{transactionId}/reverse", h.AdminReverseHandler)

			r.Get("/orders/pending", h.AdminPendingOrdersHandler)
			r.Post("/orders/{orderId}/reconcile", h.AdminReconcileOrderHandler)
			r.Post("/orders/{orderId}/override", h.AdminOverrideOrderHandler)

			r.Post("/registrations/{orderId}/reconcile", h.AdminReconcileRegistrationHandler)
			r.Post("/registrations/{orderId}/mark-paid", h.AdminMarkRegistrationPaidHandler)
		})
	})

	return r
}
