package app

import (
	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// setupRouter builds the router with all middleware and routes.
func setupRouter(deps *dependencies, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	setupMiddleware(r, logger)
	setupRoutes(r, deps)

	return r
}

func setupMiddleware(r *chi.Mux, logger *zap.Logger) {
	r.Use(handlers.RequestIDMiddleware())
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RecoveryMiddleware(logger))
	r.Use(middleware.Compress(5))
}

func setupRoutes(r *chi.Mux, deps *dependencies) {
	r.Get("/health", deps.handlers.health.Health)
	r.Get("/ready", deps.handlers.health.Ready)

	// The gateway posts callbacks unauthenticated; the handler answers
	// 200 unconditionally.
	r.Post("/api/wallet/callback", deps.handlers.callback.Handle)

	r.Group(func(r chi.Router) {
		r.Use(handlers.AuthMiddleware(deps.jwtManager))

		// Client surface
		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireRole(domain.RoleClient))
			r.Post("/api/orders", deps.handlers.orders.Submit)
			r.Get("/api/orders", deps.handlers.orders.List)
			r.Get("/api/orders/{id}", deps.handlers.orders.Get)
			r.Post("/api/orders/{id}/pay", deps.handlers.orders.Pay)
			r.Post("/api/orders/{id}/input", deps.handlers.orders.SubmitInput)
			r.Get("/api/wallet", deps.handlers.wallet.Get)
			r.Post("/api/wallet/deposit", deps.handlers.wallet.Deposit)
			r.Post("/api/wallet/airtime", deps.handlers.wallet.Airtime)
		})

		// Staff surface
		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireRole(domain.RoleStaff))
			r.Get("/api/staff/tasks", deps.handlers.tasks.List)
			r.Put("/api/staff/tasks/{id}/step", deps.handlers.tasks.UpdateStep)
			r.Put("/api/staff/tasks/{id}/request-input", deps.handlers.tasks.RequestInput)
			r.Put("/api/staff/tasks/{id}/complete", deps.handlers.tasks.Complete)
			r.Put("/api/staff/tasks/{id}/reject", deps.handlers.tasks.Reject)
			r.Get("/api/staff/earnings", deps.handlers.tasks.Earnings)
			r.Post("/api/wallet/withdraw", deps.handlers.wallet.Withdraw)
		})

		// Admin surface
		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireRole(domain.RoleAdmin))
			r.Get("/api/admin/orders", deps.handlers.admin.List)
			r.Get("/api/admin/orders/{id}/timeline", deps.handlers.admin.Timeline)
			r.Put("/api/admin/orders/{id}/assign", deps.handlers.admin.Assign)
			r.Put("/api/admin/orders/{id}/verify", deps.handlers.admin.Verify)
			r.Put("/api/admin/orders/{id}/reject", deps.handlers.admin.Reject)
		})
	})
}
