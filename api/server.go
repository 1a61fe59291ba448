/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for operator tooling

ROUTE GROUPS:
  /api/funds/*        Fund, membership, and projection routes
  /api/payments       Payment recording
  /api/withdrawals    Withdrawal payouts
  /api/groups/*       Member groups and distribution
  /api/users/*        Cross-fund member projections
  /api/admin/*        Bulk reconciliation

SECURITY NOTE:
  No authentication middleware currently. The engine trusts recorded_by
  as the principal authenticated by the upstream gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Fund routes
		r.Route("/funds", func(r chi.Router) {
			r.Get("/", h.ListFunds)
			r.Post("/", h.CreateFund)
			r.Get("/{id}", h.GetFund)
			r.Post("/{id}/close", h.CloseFund)
			r.Get("/{id}/members", h.ListMembers)
			r.Post("/{id}/members", h.AddMember)
			r.Get("/{id}/members/{userId}", h.GetMember)
			r.Put("/{id}/members/{userId}/installment", h.SetInstallment)
			r.Post("/{id}/members/{userId}/bonus", h.RecordBonus)
			r.Get("/{id}/payments", h.FundPayments)
			r.Get("/{id}/receivables", h.FundReceivables)
			r.Get("/{id}/payables", h.FundPayables)
		})

		// Payment routes
		r.Route("/payments", func(r chi.Router) {
			r.Post("/", h.RecordPayment)
		})

		// Withdrawal routes
		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", h.ProcessWithdrawal)
		})

		// Group routes
		r.Route("/groups", func(r chi.Router) {
			r.Post("/", h.CreateGroup)
			r.Get("/{id}", h.GetGroup)
			r.Post("/{id}/distribute", h.DistributeGroupPayment)
		})

		// Per-user projections
		r.Route("/users", func(r chi.Router) {
			r.Get("/{id}/receivables", h.UserReceivables)
			r.Get("/{id}/payables", h.UserPayables)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sync-payments", h.SyncPayments)
		})
	})

	return r
}
