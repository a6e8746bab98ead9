package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	audithttp "github.com/nazrul121/customer-billing/internal/audit/http"
	"github.com/nazrul121/customer-billing/internal/billing"
	"github.com/nazrul121/customer-billing/internal/catalog"
	"github.com/nazrul121/customer-billing/internal/customers"
	"github.com/nazrul121/customer-billing/internal/dashboard"
	"github.com/nazrul121/customer-billing/internal/ledger"
	"github.com/nazrul121/customer-billing/internal/observability"
	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/subscriptions"
	"github.com/nazrul121/customer-billing/jobs"
)

// Pinger reports backing store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger               *slog.Logger
	Config               *Config
	RBACMiddleware       rbac.Middleware
	BillingHandler       *billing.Handler
	LedgerHandler        *ledger.Handler
	CustomersHandler     *customers.Handler
	CatalogHandler       *catalog.Handler
	SubscriptionsHandler *subscriptions.Handler
	DashboardHandler     *dashboard.Handler
	AuditHandler         *audithttp.Handler
	JobHandler           *jobs.Handler
	Metrics              *observability.Metrics
	DB                   Pinger
}

// NewRouter constructs the chi.Router with billing defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Auth:    params.RBACMiddleware,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if params.DB != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := params.DB.Ping(ctx); err != nil {
				params.Logger.Warn("readiness check failed", slog.Any("error", err))
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Route("/api", func(r chi.Router) {
		if params.BillingHandler != nil {
			r.Route("/billing", params.BillingHandler.MountRoutes)
		}
		if params.LedgerHandler != nil {
			r.Route("/ledger", params.LedgerHandler.MountRoutes)
		}
		r.Route("/customers", func(r chi.Router) {
			if params.CustomersHandler != nil {
				params.CustomersHandler.MountRoutes(r)
			}
			if params.SubscriptionsHandler != nil {
				params.SubscriptionsHandler.MountCustomerRoutes(r)
			}
		})
		if params.CatalogHandler != nil {
			r.Route("/service-types", params.CatalogHandler.MountServiceTypeRoutes)
			r.Route("/services", params.CatalogHandler.MountServiceRoutes)
		}
		if params.SubscriptionsHandler != nil {
			r.Route("/subscriptions", params.SubscriptionsHandler.MountRoutes)
		}
		r.Route("/admin", func(r chi.Router) {
			if params.DashboardHandler != nil {
				params.DashboardHandler.MountRoutes(r)
			}
			params.AuditHandler.MountRoutes(r)
		})
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
