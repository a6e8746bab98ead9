// Package dashboard serves the admin headline counts.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/rbac"
)

// ServiceCounter counts catalog services.
type ServiceCounter interface {
	CountServices(ctx context.Context) (int, error)
}

// CustomerCounter counts customers.
type CustomerCounter interface {
	Count(ctx context.Context) (int, error)
}

// Stats is the admin dashboard payload.
type Stats struct {
	ActiveServices int `json:"activeServices"`
	TotalCustomers int `json:"totalCustomers"`
}

// Service loads dashboard stats.
type Service struct {
	services  ServiceCounter
	customers CustomerCounter
}

func NewService(services ServiceCounter, customers CustomerCounter) *Service {
	return &Service{services: services, customers: customers}
}

// Stats runs both counts concurrently.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.services.CountServices(ctx)
		if err != nil {
			return fmt.Errorf("dashboard: count services: %w", err)
		}
		out.ActiveServices = n
		return nil
	})
	g.Go(func() error {
		n, err := s.customers.Count(ctx)
		if err != nil {
			return fmt.Errorf("dashboard: count customers: %w", err)
		}
		out.TotalCustomers = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return out, nil
}

// Handler exposes GET /api/admin/stats.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.CapAdminReport)).Get("/stats", h.stats)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("dashboard stats", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}
