package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/ledger"
	"github.com/nazrul121/customer-billing/internal/platform/db"
	"github.com/nazrul121/customer-billing/internal/shared"
)

const idempotencyModule = "billing"

// Repository is the Postgres implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn in a READ COMMITTED transaction. Payment flows lock the
// subscription row first, so every later statement sees bills committed by
// the transaction that held the lock before.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{Store: ledger.NewTxStore(tx), tx: tx})
	})
}

const subscriptionColumns = `id, customer_id, service_id, init_cost, mmc, start_date, expiry_date`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.CustomerID, &s.ServiceID, &s.InitCost, &s.MMC, &s.StartDate, &s.ExpiryDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return s, err
}

// GetSubscription loads the billing view of a subscription.
func (r *Repository) GetSubscription(ctx context.Context, id uuid.UUID) (Subscription, error) {
	return scanSubscription(r.pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
}

// MonthlyPaid sums payments recorded for the month.
func (r *Repository) MonthlyPaid(ctx context.Context, subscriptionID uuid.UUID, month string) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(paid_amount), 0) FROM monthly_bills
WHERE subscription_id = $1 AND month_for = $2`, subscriptionID, month).Scan(&paid)
	return paid, err
}

// MonthlyStatement lists subscriptions running between start and end.
func (r *Repository) MonthlyStatement(ctx context.Context, filter StatementFilter, start, end time.Time) ([]StatementRow, int, error) {
	args := []any{start, end}
	conds := []string{"s.start_date <= $2", "s.expiry_date >= $1"}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(c.name ILIKE $%d OR c.phone ILIKE $%d OR c.code ILIKE $%d OR sv.name ILIKE $%d)", n, n, n, n))
	}
	joins := `
FROM subscriptions s
JOIN customers c ON c.id = s.customer_id
JOIN services sv ON sv.id = s.service_id`
	where := "\nWHERE " + strings.Join(conds, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)`+joins+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, page := filter.Limit, filter.Page
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}
	args = append(args, filter.Month, limit, (page-1)*limit)
	n := len(args)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT s.id, c.name, c.code, c.phone, sv.name, s.start_date, s.expiry_date, s.mmc,
    COALESCE(mb.paid, 0), COALESCE(mb.bills, 0)%s
LEFT JOIN (
    SELECT subscription_id, SUM(paid_amount) AS paid, COUNT(*) AS bills
    FROM monthly_bills WHERE month_for = $%d GROUP BY subscription_id
) mb ON mb.subscription_id = s.id%s
ORDER BY c.name ASC, s.id
LIMIT $%d OFFSET $%d`, joins, n-2, where, n-1, n), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []StatementRow
	for rows.Next() {
		var row StatementRow
		if err := rows.Scan(&row.SubscriptionID, &row.CustomerName, &row.CustomerCode, &row.CustomerPhone, &row.ServiceName,
			&row.StartDate, &row.ExpiryDate, &row.MMC, &row.TotalPaidSoFar, &row.Bills); err != nil {
			return nil, 0, err
		}
		row.RemainingDue = row.MMC.Sub(row.TotalPaidSoFar)
		out = append(out, row)
	}
	return out, total, rows.Err()
}

// ListSetupBills returns setup payments oldest first with their credit voucher.
func (r *Repository) ListSetupBills(ctx context.Context, subscriptionID uuid.UUID) ([]SetupBill, error) {
	rows, err := r.pool.Query(ctx, `SELECT b.id, b.subscription_id, b.paid_amount, b.paid_date, b.received_by, b.created_at,
    COALESCE(e.voucher_no, '')
FROM setup_bills b
LEFT JOIN general_ledger_entries e ON e.setup_bill_id = b.id AND e.credit_amount > 0
WHERE b.subscription_id = $1
ORDER BY b.paid_date ASC, b.created_at ASC`, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SetupBill
	for rows.Next() {
		var b SetupBill
		if err := rows.Scan(&b.ID, &b.SubscriptionID, &b.PaidAmount, &b.PaidDate, &b.ReceivedBy, &b.CreatedAt, &b.VoucherNo); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type txRepository struct {
	ledger.Store
	tx pgx.Tx
}

func (r *txRepository) ClaimIdempotencyKey(ctx context.Context, key string) error {
	if err := shared.ClaimIdempotencyKey(ctx, r.tx, key, idempotencyModule); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return shared.NewUserError(err, "This payment was already submitted.")
		}
		return err
	}
	return nil
}

func (r *txRepository) LockSubscription(ctx context.Context, id uuid.UUID) (Subscription, error) {
	return scanSubscription(r.tx.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) MonthlyTotals(ctx context.Context, subscriptionID uuid.UUID, month string) (decimal.Decimal, int, error) {
	var (
		paid  decimal.Decimal
		bills int
	)
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(paid_amount), 0), COUNT(*) FROM monthly_bills
WHERE subscription_id = $1 AND month_for = $2`, subscriptionID, month).Scan(&paid, &bills)
	return paid, bills, err
}

func (r *txRepository) SetupPaid(ctx context.Context, subscriptionID uuid.UUID) (decimal.Decimal, error) {
	var paid decimal.Decimal
	err := r.tx.QueryRow(ctx, `SELECT COALESCE(SUM(paid_amount), 0) FROM setup_bills WHERE subscription_id = $1`, subscriptionID).Scan(&paid)
	return paid, err
}

func (r *txRepository) InsertMonthlyBill(ctx context.Context, b MonthlyBill) (MonthlyBill, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO monthly_bills (id, subscription_id, month_for, mmc, paid_amount, paid_date, received_by)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING created_at`,
		b.ID, b.SubscriptionID, b.MonthFor, b.MMC, b.PaidAmount, b.PaidDate, b.ReceivedBy).Scan(&b.CreatedAt)
	return b, err
}

func (r *txRepository) InsertSetupBill(ctx context.Context, b SetupBill) (SetupBill, error) {
	err := r.tx.QueryRow(ctx, `INSERT INTO setup_bills (id, subscription_id, paid_amount, paid_date, received_by)
VALUES ($1,$2,$3,$4,$5) RETURNING created_at`,
		b.ID, b.SubscriptionID, b.PaidAmount, b.PaidDate, b.ReceivedBy).Scan(&b.CreatedAt)
	return b, err
}
