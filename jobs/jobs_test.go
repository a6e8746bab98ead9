package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/nazrul121/customer-billing/internal/jobs"
)

type stubSource struct {
	month    string
	findings []Finding
	err      error
}

func (s *stubSource) Findings(_ context.Context, month string) ([]Finding, error) {
	s.month = month
	return s.findings, s.err
}

var _ asynq.Logger = (*asynqLogger)(nil)

func TestAsynqLoggerWritesThroughSlog(t *testing.T) {
	var buf bytes.Buffer
	logger := newAsynqLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	logger.Info("server started, pid=", 42)
	logger.Fatal("lost redis")

	out := buf.String()
	require.Contains(t, out, "level=INFO")
	require.Contains(t, out, `msg="server started, pid=42"`)
	require.Contains(t, out, "component=asynq")
	require.Contains(t, out, "level=ERROR")
	require.Contains(t, out, `msg="lost redis"`)
}

func TestLedgerIntegrityLogsFindings(t *testing.T) {
	sub := uuid.New()
	source := &stubSource{findings: []Finding{
		{Check: CheckMonthlyOverpaid, SubscriptionID: sub, Month: "2026-02", Detail: "paid 1200.00 exceeds 1000.00"},
		{Check: CheckDuplicateDebit, SubscriptionID: sub, Month: "2026-02", Detail: "2 debit entries"},
	}}
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	job := NewLedgerIntegrityJob(source, logger, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewLedgerIntegrityTask(LedgerIntegrityPayload{Month: "2026-02"})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, "2026-02", source.month)
	require.Contains(t, buf.String(), `"check":"monthly_overpaid"`)
	require.Contains(t, buf.String(), `"check":"duplicate_debit"`)
	require.Contains(t, buf.String(), `"findings":2`)
}

func TestLedgerIntegrityPropagatesFailure(t *testing.T) {
	boom := errors.New("db down")
	job := NewLedgerIntegrityJob(&stubSource{err: boom}, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)), nil)
	_, err := job.Run(context.Background(), LedgerIntegrityPayload{})
	require.ErrorIs(t, err, boom)
}

func TestLedgerIntegritySkipsMalformedPayload(t *testing.T) {
	job := NewLedgerIntegrityJob(&stubSource{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubCleaner struct {
	olderThan time.Duration
	removed   int64
}

func (s *stubCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.removed, nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &stubCleaner{removed: 4}
	job := &IdempotencyCleanupJob{Store: cleaner}

	task, err := NewIdempotencyCleanupTask(IdempotencyCleanupPayload{})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 72*time.Hour, cleaner.olderThan)

	task, err = NewIdempotencyCleanupTask(IdempotencyCleanupPayload{OlderThanHours: 6})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 6*time.Hour, cleaner.olderThan)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestJobsHealth(t *testing.T) {
	cases := []struct {
		name      string
		inspector QueueInspector
		status    int
		pending   int
	}{
		{name: "no inspector", status: http.StatusOK},
		{name: "queue info", inspector: stubInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}}, status: http.StatusOK, pending: 3},
		{name: "redis down", inspector: stubInspector{err: errors.New("dial")}, status: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tc.inspector, slog.Default()).MountRoutes(r)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tc.status, rr.Code)
			if tc.status != http.StatusOK {
				return
			}
			var body queueHealth
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			require.Equal(t, QueueDefault, body.Queue)
			require.Equal(t, tc.pending, body.Pending)
		})
	}
}
