package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/nazrul121/customer-billing/internal/jobs"
)

// Integrity check identifiers.
const (
	CheckMonthlyUnmirrored = "monthly_unmirrored"
	CheckSetupUnmirrored   = "setup_unmirrored"
	CheckMonthlyOverpaid   = "monthly_overpaid"
	CheckSetupOverpaid     = "setup_overpaid"
	CheckDuplicateDebit    = "duplicate_debit"
)

// Finding is a single integrity violation.
type Finding struct {
	Check          string
	SubscriptionID uuid.UUID
	Month          string
	Detail         string
}

// IntegritySource runs the integrity queries.
type IntegritySource interface {
	Findings(ctx context.Context, month string) ([]Finding, error)
}

// LedgerIntegrityJob reports drift between bills and the general ledger. It never corrects data.
type LedgerIntegrityJob struct {
	Source  IntegritySource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewLedgerIntegrityJob initialises the handler.
func NewLedgerIntegrityJob(source IntegritySource, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{
		Source:  source,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the scan.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Source == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload)
	return err
}

// Run scans and reports findings. It is shared by the worker and the CLI trigger.
func (j *LedgerIntegrityJob) Run(ctx context.Context, payload LedgerIntegrityPayload) (findings []Finding, resultErr error) {
	start := j.clock()
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("month", payload.Month))
	logger.Info("starting ledger integrity scan")

	findings, err := j.Source.Findings(ctx, payload.Month)
	if err != nil {
		logger.Error("ledger integrity scan failed", slog.Any("error", err))
		return nil, err
	}

	perCheck := make(map[string]int)
	for _, f := range findings {
		logger.Warn("ledger integrity finding",
			slog.String("check", f.Check),
			slog.String("subscription_id", f.SubscriptionID.String()),
			slog.String("bill_month", f.Month),
			slog.String("detail", f.Detail),
		)
		perCheck[f.Check]++
	}
	for check, count := range perCheck {
		j.Metrics.AddFindings(check, count)
	}

	logger.Info("completed ledger integrity scan",
		slog.Int("findings", len(findings)),
		slog.Duration("duration", j.clock().Sub(start)),
	)
	return findings, nil
}

func (j *LedgerIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

// PGIntegritySource runs the checks against Postgres.
type PGIntegritySource struct {
	pool *pgxpool.Pool
}

// NewPGIntegritySource constructs the source.
func NewPGIntegritySource(pool *pgxpool.Pool) *PGIntegritySource {
	return &PGIntegritySource{pool: pool}
}

type integrityQuery struct {
	check string
	sql   string
}

// Each query yields (subscription_id, month, detail) and filters by month when $1 is not empty.
// Setup totals are cumulative up to the requested month.
var integrityQueries = []integrityQuery{
	{CheckMonthlyUnmirrored, `
SELECT mb.subscription_id, mb.month_for, 'monthly bill ' || mb.id::text || ' has no credit entry'
FROM monthly_bills mb
WHERE ($1::text = '' OR mb.month_for = $1::text)
  AND NOT EXISTS (
    SELECT 1 FROM general_ledger_entries e
    WHERE e.monthly_bill_id = mb.id AND e.credit_amount > 0)`},
	{CheckSetupUnmirrored, `
SELECT sb.subscription_id, to_char(sb.paid_date, 'YYYY-MM'), 'setup bill ' || sb.id::text || ' has no credit entry'
FROM setup_bills sb
WHERE ($1::text = '' OR to_char(sb.paid_date, 'YYYY-MM') = $1::text)
  AND NOT EXISTS (
    SELECT 1 FROM general_ledger_entries e
    WHERE e.setup_bill_id = sb.id AND e.credit_amount > 0)`},
	{CheckMonthlyOverpaid, `
SELECT mb.subscription_id, mb.month_for, 'paid ' || SUM(mb.paid_amount)::text || ' exceeds ' || MAX(mb.mmc)::text
FROM monthly_bills mb
WHERE ($1::text = '' OR mb.month_for = $1::text)
GROUP BY mb.subscription_id, mb.month_for
HAVING SUM(mb.paid_amount) > MAX(mb.mmc)`},
	{CheckSetupOverpaid, `
SELECT s.id, '', 'paid ' || SUM(sb.paid_amount)::text || ' exceeds ' || s.init_cost::text
FROM setup_bills sb
JOIN subscriptions s ON s.id = sb.subscription_id
WHERE $1::text = '' OR to_char(sb.paid_date, 'YYYY-MM') <= $1::text
GROUP BY s.id, s.init_cost
HAVING SUM(sb.paid_amount) > s.init_cost`},
	{CheckDuplicateDebit, `
SELECT mb.subscription_id, mb.month_for, COUNT(*)::text || ' debit entries'
FROM general_ledger_entries e
JOIN monthly_bills mb ON mb.id = e.monthly_bill_id
WHERE e.debit_amount > 0 AND ($1::text = '' OR mb.month_for = $1::text)
GROUP BY mb.subscription_id, mb.month_for
HAVING COUNT(*) > 1`},
}

// Findings runs every check in order.
func (s *PGIntegritySource) Findings(ctx context.Context, month string) ([]Finding, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("ledger integrity: pool not configured")
	}
	var findings []Finding
	for _, q := range integrityQueries {
		rows, err := s.pool.Query(ctx, q.sql, month)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			f := Finding{Check: q.check}
			if err := rows.Scan(&f.SubscriptionID, &f.Month, &f.Detail); err != nil {
				rows.Close()
				return nil, err
			}
			findings = append(findings, f)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return findings, nil
}
