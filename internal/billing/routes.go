package billing

import (
	"github.com/go-chi/chi/v5"

	"github.com/nazrul121/customer-billing/internal/rbac"
)

// MountRoutes registers billing endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapView))
		r.Get("/subscriptions/{id}/due", h.due)
		r.Get("/subscriptions/{id}/setup-bills", h.setupBills)
		r.Get("/monthly", h.statement)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapCollect))
		r.Post("/monthly", h.recordMonthly)
		r.Post("/setup", h.recordSetup)
	})
}
