package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/nazrul121/customer-billing/internal/rbac"
)

type counter struct {
	n   int
	err error
}

func (c counter) CountServices(context.Context) (int, error) { return c.n, c.err }
func (c counter) Count(context.Context) (int, error)         { return c.n, c.err }

func TestStatsCombinesCounts(t *testing.T) {
	stats, err := NewService(counter{n: 4}, counter{n: 27}).Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, Stats{ActiveServices: 4, TotalCustomers: 27}, stats)

	_, err = NewService(counter{n: 4}, counter{err: errors.New("timeout")}).Stats(context.Background())
	require.ErrorContains(t, err, "count customers")
}

func TestStatsRequiresAdmin(t *testing.T) {
	mw := rbac.Middleware{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(counter{n: 2}, counter{n: 9}), mw)
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	r.Route("/api/admin", h.MountRoutes)

	get := func(role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
		req.Header.Set("X-Auth-User", "root")
		req.Header.Set("X-Auth-Role", role)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusForbidden, get("user").Code)
	rr := get("admin")
	require.Equal(t, http.StatusOK, rr.Code)
	var stats Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.Equal(t, 9, stats.TotalCustomers)
}
