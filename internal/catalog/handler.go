package catalog

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// Catalog is the API served by the handler.
type Catalog interface {
	ListServiceTypes(ctx context.Context, f ListFilters) ([]ServiceType, shared.Pagination, error)
	CreateServiceType(ctx context.Context, in ServiceTypeInput) (ServiceType, error)
	UpdateServiceType(ctx context.Context, id uuid.UUID, in ServiceTypeInput) (ServiceType, error)
	DeleteServiceType(ctx context.Context, id uuid.UUID) error
	ListServices(ctx context.Context, f ListFilters) ([]Service, shared.Pagination, error)
	GetService(ctx context.Context, id uuid.UUID) (Service, error)
	CreateService(ctx context.Context, in ServiceInput) (Service, error)
	UpdateService(ctx context.Context, id uuid.UUID, in ServiceInput) (Service, error)
	DeleteService(ctx context.Context, id uuid.UUID) error
}

// Handler serves service type and service endpoints.
type Handler struct {
	logger  *slog.Logger
	service Catalog
	rbac    rbac.Middleware
}

// NewHandler builds the catalog handler.
func NewHandler(logger *slog.Logger, service Catalog, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountServiceTypeRoutes registers /api/service-types.
func (h *Handler) MountServiceTypeRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.CapView)).Get("/", h.listServiceTypes)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapManage))
		r.Post("/", h.createServiceType)
		r.Put("/{id}", h.updateServiceType)
		r.Delete("/{id}", h.deleteServiceType)
	})
}

// MountServiceRoutes registers /api/services.
func (h *Handler) MountServiceRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapView))
		r.Get("/", h.listServices)
		r.Get("/{id}", h.showService)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapManage))
		r.Post("/", h.createService)
		r.Put("/{id}", h.updateService)
		r.Delete("/{id}", h.deleteService)
	})
}

func filtersFrom(r *http.Request) ListFilters {
	q := r.URL.Query()
	page := shared.PageFromQuery(q)
	return ListFilters{Search: q.Get("search"), Page: page.Page, Limit: page.Limit()}
}

func (h *Handler) listServiceTypes(w http.ResponseWriter, r *http.Request) {
	items, meta, err := h.service.ListServiceTypes(r.Context(), filtersFrom(r))
	if err != nil {
		h.fail(w, "list service types", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "meta": meta})
}

func (h *Handler) createServiceType(w http.ResponseWriter, r *http.Request) {
	var in ServiceTypeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.CreateServiceType(r.Context(), in)
	if err != nil {
		h.fail(w, "create service type", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, st)
}

func (h *Handler) updateServiceType(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ServiceTypeInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	st, err := h.service.UpdateServiceType(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update service type", err)
		return
	}
	httpx.JSON(w, http.StatusOK, st)
}

func (h *Handler) deleteServiceType(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteServiceType(r.Context(), id); err != nil {
		h.fail(w, "delete service type", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	items, meta, err := h.service.ListServices(r.Context(), filtersFrom(r))
	if err != nil {
		h.fail(w, "list services", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "meta": meta})
}

func (h *Handler) showService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	svc, err := h.service.GetService(r.Context(), id)
	if err != nil {
		h.fail(w, "get service", err)
		return
	}
	httpx.JSON(w, http.StatusOK, svc)
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	var in ServiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	svc, err := h.service.CreateService(r.Context(), in)
	if err != nil {
		h.fail(w, "create service", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, svc)
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in ServiceInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	svc, err := h.service.UpdateService(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update service", err)
		return
	}
	httpx.JSON(w, http.StatusOK, svc)
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.DeleteService(r.Context(), id); err != nil {
		h.fail(w, "delete service", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
