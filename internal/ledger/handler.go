package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// Reader is the read API the handler serves.
type Reader interface {
	Summary(ctx context.Context, subscriptionID uuid.UUID) (Summary, error)
	ListAccounts(ctx context.Context, filter AccountFilter) (AccountPage, error)
	ListEntries(ctx context.Context, filter EntryFilter) (EntryPage, error)
	MonthlyReceipt(ctx context.Context, billID uuid.UUID) (Receipt, error)
	SetupReceipt(ctx context.Context, billID uuid.UUID) (Receipt, error)
}

// Handler serves ledger endpoints.
type Handler struct {
	logger  *slog.Logger
	service Reader
	rbac    rbac.Middleware
}

// NewHandler builds a ledger handler.
func NewHandler(logger *slog.Logger, service Reader, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.Summary(r.Context(), id)
	if err != nil {
		h.fail(w, "ledger summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	page := shared.PageFromQuery(r.URL.Query())
	out, err := h.service.ListAccounts(r.Context(), AccountFilter{
		Search: r.URL.Query().Get("search"),
		Page:   page.Page,
		Limit:  page.Limit(),
	})
	if err != nil {
		h.fail(w, "list ledger accounts", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort, ok := ParseSortField(q.Get("sortId"))
	if !ok {
		httpx.RespondError(w, shared.NewUserError(ErrInvalidSort, "Cannot sort ledger entries by %q.", q.Get("sortId")))
		return
	}
	subID, err := httpx.QueryUUID(r, "subscriptionId")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	page := shared.PageFromQuery(q)
	out, err := h.service.ListEntries(r.Context(), EntryFilter{
		SubscriptionID: subID,
		Search:         q.Get("search"),
		Sort:           sort,
		Desc:           !strings.EqualFold(q.Get("sortDir"), "asc"),
		Page:           page.Page,
		Limit:          page.Limit(),
	})
	if err != nil {
		h.fail(w, "list ledger entries", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) monthlyReceipt(w http.ResponseWriter, r *http.Request) {
	h.receipt(w, r, h.service.MonthlyReceipt)
}

func (h *Handler) setupReceipt(w http.ResponseWriter, r *http.Request) {
	h.receipt(w, r, h.service.SetupReceipt)
}

func (h *Handler) receipt(w http.ResponseWriter, r *http.Request, load func(context.Context, uuid.UUID) (Receipt, error)) {
	id, err := httpx.URLParamUUID(r, "billID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := load(r.Context(), id)
	if err != nil {
		h.fail(w, "ledger receipt", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
