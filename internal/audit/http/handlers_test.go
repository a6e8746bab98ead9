package audithttp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/nazrul121/customer-billing/internal/audit"
	"github.com/nazrul121/customer-billing/internal/rbac"
)

type stubTimelineService struct {
	lastFilters audit.TimelineFilters
	rows        []audit.TimelineRow
}

func (s *stubTimelineService) Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return audit.Result{Rows: s.rows, Paging: audit.PagingInfo{Page: filters.Page, PageSize: filters.PageSize}}, nil
}

func (s *stubTimelineService) Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error) {
	s.lastFilters = filters
	return s.rows, nil
}

func newTestRouter(svc TimelineService) http.Handler {
	mw := rbac.Middleware{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, mw)
	h.now = func() time.Time { return time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC) }
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	h.MountRoutes(r)
	return r
}

func get(router http.Handler, target, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if role != "" {
		req.Header.Set("X-Auth-User", "auditor")
		req.Header.Set("X-Auth-Role", role)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestTimelineDefaultsToLastWeek(t *testing.T) {
	svc := &stubTimelineService{rows: []audit.TimelineRow{{Actor: "alice", Action: "billing.monthly_payment"}}}
	rec := get(newTestRouter(svc), "/audit?actor=alice", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), svc.lastFilters.From)
	require.Equal(t, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC), svc.lastFilters.To)
	require.Equal(t, "alice", svc.lastFilters.Actor)
	require.Equal(t, defaultPageSize, svc.lastFilters.PageSize)

	var body audit.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Rows, 1)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	router := newTestRouter(&stubTimelineService{})
	for _, target := range []string{
		"/audit?from=2025-03-10&to=2025-03-01",
		"/audit?from=2024-01-01&to=2025-03-01",
		"/audit?to=yesterday",
		"/audit?page=0",
		"/audit?page_size=abc",
	} {
		rec := get(router, target, "admin")
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestTimelineClampsPageSize(t *testing.T) {
	svc := &stubTimelineService{}
	rec := get(newTestRouter(svc), "/audit?page_size=200", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxPageSize, svc.lastFilters.PageSize)
}

func TestAuditRequiresAdmin(t *testing.T) {
	router := newTestRouter(&stubTimelineService{})
	require.Equal(t, http.StatusUnauthorized, get(router, "/audit", "").Code)
	require.Equal(t, http.StatusForbidden, get(router, "/audit", "user").Code)
	require.Equal(t, http.StatusForbidden, get(router, "/audit/export.csv", "guest").Code)
}

func TestExportCSV(t *testing.T) {
	svc := &stubTimelineService{rows: []audit.TimelineRow{{
		At:       time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
		Actor:    "alice",
		Action:   "billing.setup_payment",
		Entity:   "setup_bill",
		EntityID: "b1",
		Amount:   "250.00",
	}}}
	rec := get(newTestRouter(svc), "/audit/export.csv?from=2025-03-01&to=2025-03-15", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), "audit-timeline.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(), "at,actor,action"))
	require.Contains(t, rec.Body.String(), "2025-03-10T09:30:00Z,alice,billing.setup_payment,setup_bill,b1,,250.00")
}
