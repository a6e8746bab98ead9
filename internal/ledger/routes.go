package ledger

import (
	"github.com/go-chi/chi/v5"

	"github.com/nazrul121/customer-billing/internal/rbac"
)

// MountRoutes registers ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapView))
		r.Get("/", h.listAccounts)
		r.Get("/entries", h.listEntries)
		r.Get("/subscriptions/{id}/summary", h.summary)
		r.Get("/receipts/monthly/{billID}", h.monthlyReceipt)
		r.Get("/receipts/setup/{billID}", h.setupReceipt)
	})
}
