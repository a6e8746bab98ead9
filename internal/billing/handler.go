package billing

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/platform/httpx"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// Engine is the billing API the handler serves.
type Engine interface {
	ComputeMonthlyDue(ctx context.Context, subscriptionID uuid.UUID, month string) (MonthlyDue, error)
	RecordMonthlyPayment(ctx context.Context, input MonthlyPaymentInput) (MonthlyBill, error)
	RecordSetupPayment(ctx context.Context, input SetupPaymentInput) (SetupBill, error)
	MonthlyStatement(ctx context.Context, filter StatementFilter) ([]StatementRow, shared.Pagination, error)
	ListSetupBills(ctx context.Context, subscriptionID uuid.UUID) ([]SetupBill, error)
}

// Handler serves billing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Engine
	validator *validator.Validate
	rbac      rbac.Middleware
}

// NewHandler builds a billing handler.
func NewHandler(logger *slog.Logger, service Engine, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), rbac: rbac}
}

func (h *Handler) due(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out, err := h.service.ComputeMonthlyDue(r.Context(), id, r.URL.Query().Get("month"))
	if err != nil {
		h.fail(w, "compute monthly due", err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) recordMonthly(w http.ResponseWriter, r *http.Request) {
	var req MonthlyPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := req.toInput(collector(r), r.Header.Get(shared.IdempotencyHeader))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.RecordMonthlyPayment(r.Context(), input)
	if err != nil {
		h.fail(w, "record monthly payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) recordSetup(w http.ResponseWriter, r *http.Request) {
	var req SetupPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	input, err := req.toInput(collector(r), r.Header.Get(shared.IdempotencyHeader))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bill, err := h.service.RecordSetupPayment(r.Context(), input)
	if err != nil {
		h.fail(w, "record setup payment", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, bill)
}

func (h *Handler) statement(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromQuery(q)
	rows, meta, err := h.service.MonthlyStatement(r.Context(), StatementFilter{
		Month:  q.Get("month"),
		Search: q.Get("search"),
		Page:   page.Page,
		Limit:  page.Limit(),
	})
	if err != nil {
		h.fail(w, "monthly statement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": rows, "meta": meta})
}

func (h *Handler) setupBills(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.URLParamUUID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	bills, err := h.service.ListSetupBills(r.Context(), id)
	if err != nil {
		h.fail(w, "list setup bills", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": bills})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if !shared.IsClientError(err) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func collector(r *http.Request) string {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p.Name
}
