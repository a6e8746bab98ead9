package customers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// Directory is the customer API the handler serves.
type Directory interface {
	List(ctx context.Context, filters ListFilters) ([]Customer, shared.Pagination, error)
	Get(ctx context.Context, id uuid.UUID) (Customer, error)
	Create(ctx context.Context, in Input) (Customer, error)
	Update(ctx context.Context, id uuid.UUID, in Input) (Customer, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type Handler struct {
	logger  *slog.Logger
	service Directory
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service Directory, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromQuery(q)
	items, meta, err := h.service.List(r.Context(), ListFilters{
		Search:  q.Get("search"),
		SortBy:  q.Get("sortId"),
		SortDir: q.Get("sortDir"),
		Page:    page.Page,
		Limit:   page.Limit(),
	})
	if err != nil {
		h.fail(w, "list customers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": items, "meta": meta})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	c, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create customer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
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
	c, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, "update customer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, "delete customer", err)
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
