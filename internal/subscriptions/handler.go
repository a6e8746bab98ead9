package subscriptions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// Manager is the subscription API the handler serves.
type Manager interface {
	List(ctx context.Context, filter ListFilter) ([]Subscription, shared.Pagination, error)
	Get(ctx context.Context, id uuid.UUID) (Subscription, error)
	Create(ctx context.Context, in Input, collector string) (Created, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	logger  *slog.Logger
	service Manager
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service Manager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers /api/subscriptions.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapView))
		r.Get("/", h.list)
		r.Get("/{id}", h.show)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.Require(rbac.CapManage))
		r.Post("/", h.create)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
}

// MountCustomerRoutes registers the per-customer listing under /api/customers.
func (h *Handler) MountCustomerRoutes(r chi.Router) {
	r.With(h.rbac.Require(rbac.CapView)).Get("/{id}/subscriptions", h.listForCustomer)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	customerID, err := httpx.QueryUUID(r, "customerId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondList(w, r, customerID)
}

func (h *Handler) listForCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.respondList(w, r, uuid.NullUUID{UUID: id, Valid: true})
}

func (h *Handler) respondList(w http.ResponseWriter, r *http.Request, customerID uuid.NullUUID) {
	q := r.URL.Query()
	sort, ok := ParseSortField(q.Get("sortId"))
	if !ok {
		httpx.RespondError(w, shared.NewUserError(ErrInvalidSort, "Cannot sort by %q.", q.Get("sortId")))
		return
	}
	page := shared.PageFromQuery(q)
	items, meta, err := h.service.List(r.Context(), ListFilter{
		CustomerID: customerID,
		Search:     q.Get("search"),
		Sort:       sort,
		Desc:       q.Get("sortDir") != "asc",
		Page:       page.Page,
		Limit:      page.Limit(),
	})
	if err != nil {
		h.fail(w, "list subscriptions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "meta": meta})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get subscription", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, _ := shared.PrincipalFromContext(r.Context())
	out, err := h.service.Create(r.Context(), in, p.Name)
	switch {
	case errors.Is(err, ErrInitialPaymentFailed):
		h.logger.Warn("subscription created without initial payment", slog.Any("error", err))
		httpx.JSON(w, http.StatusCreated, out)
	case err != nil:
		h.fail(w, "create subscription", err)
	default:
		httpx.JSON(w, http.StatusCreated, out)
	}
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	sub, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update subscription", err)
		return
	}
	httpx.JSON(w, http.StatusOK, sub)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete subscription", err)
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
