package subscriptions

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazrul121/customer-billing/internal/platform/db"
)

// UpdateGuard vets an update against the locked row and its recorded bills.
type UpdateGuard func(current Subscription, bills BillTotals) error

// Repository persists subscriptions.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Subscription, int, error)
	Get(ctx context.Context, id uuid.UUID) (Subscription, error)
	Create(ctx context.Context, sub Subscription) error
	// Update locks the stored row, hands it and its bill totals to guard and
	// writes sub only when guard accepts.
	Update(ctx context.Context, sub Subscription, guard UpdateGuard) error
	Delete(ctx context.Context, id uuid.UUID) error
	// HasOverlap reports another subscription of customer to service whose validity window meets [start, expiry].
	HasOverlap(ctx context.Context, customerID, serviceID uuid.UUID, start, expiry time.Time, exclude uuid.UUID) (bool, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const subscriptionSelect = `SELECT cs.id, cs.customer_id, c.name, cs.service_id, s.name, t.title,
	cs.init_cost, cs.mmc, cs.init_cost_dis, cs.mmc_dis, cs.agreement_date, cs.start_date, cs.expiry_date,
	cs.is_repeat, cs.created_at, cs.updated_at
FROM subscriptions cs
JOIN customers c ON c.id = cs.customer_id
JOIN services s ON s.id = cs.service_id
JOIN service_types t ON t.id = s.service_type_id`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.CustomerID, &sub.CustomerName, &sub.ServiceID, &sub.ServiceName, &sub.ServiceType,
		&sub.InitCost, &sub.MMC, &sub.InitCostDis, &sub.MMCDis, &sub.AgreementDate, &sub.StartDate, &sub.ExpiryDate,
		&sub.IsRepeat, &sub.CreatedAt, &sub.UpdatedAt)
	return sub, err
}

func (r *pgRepository) List(ctx context.Context, filter ListFilter) ([]Subscription, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filter.CustomerID.Valid {
		args = append(args, filter.CustomerID.UUID)
		where += ` AND cs.customer_id = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (c.name ILIKE $` + n + ` OR s.name ILIKE $` + n + ` OR t.title ILIKE $` + n + `)`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM subscriptions cs
JOIN customers c ON c.id = cs.customer_id
JOIN services s ON s.id = cs.service_id
JOIN service_types t ON t.id = s.service_type_id` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = sortColumns[SortCreatedAt]
	}
	dir := " ASC"
	if filter.Desc {
		dir = " DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)
	query := subscriptionSelect + where + ` ORDER BY ` + column + dir + `, cs.id LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, sub)
	}
	return out, total, rows.Err()
}

func (r *pgRepository) Get(ctx context.Context, id uuid.UUID) (Subscription, error) {
	sub, err := scanSubscription(r.pool.QueryRow(ctx, subscriptionSelect+` WHERE cs.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return sub, err
}

func (r *pgRepository) Create(ctx context.Context, sub Subscription) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO subscriptions
	(id, customer_id, service_id, init_cost, mmc, init_cost_dis, mmc_dis, agreement_date, start_date, expiry_date, is_repeat)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		sub.ID, sub.CustomerID, sub.ServiceID, sub.InitCost, sub.MMC, sub.InitCostDis, sub.MMCDis,
		sub.AgreementDate, sub.StartDate, sub.ExpiryDate, sub.IsRepeat)
	return err
}

const billTotalsQuery = `SELECT
	COALESCE((SELECT SUM(paid_amount) FROM setup_bills WHERE subscription_id = $1), 0),
	COALESCE(m.month_for::text, ''),
	COALESCE(m.paid, 0),
	(SELECT COUNT(*) FROM setup_bills WHERE subscription_id = $1) + (SELECT COUNT(*) FROM monthly_bills WHERE subscription_id = $1)
FROM (SELECT 1) AS one
LEFT JOIN LATERAL (
	SELECT month_for, SUM(paid_amount) AS paid FROM monthly_bills
	WHERE subscription_id = $1
	GROUP BY month_for
	ORDER BY paid DESC, month_for
	LIMIT 1
) m ON TRUE`

// Update takes the same row lock as payment postings, so bill totals cannot
// move between the guard and the write.
func (r *pgRepository) Update(ctx context.Context, sub Subscription, guard UpdateGuard) error {
	return db.WithTxOptions(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		current, err := scanSubscription(tx.QueryRow(ctx, subscriptionSelect+` WHERE cs.id = $1 FOR UPDATE OF cs`, sub.ID))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSubscriptionNotFound
		}
		if err != nil {
			return err
		}
		var bills BillTotals
		if err := tx.QueryRow(ctx, billTotalsQuery, sub.ID).
			Scan(&bills.SetupPaid, &bills.MaxMonth, &bills.MaxMonthPaid, &bills.Count); err != nil {
			return err
		}
		if guard != nil {
			if err := guard(current, bills); err != nil {
				return err
			}
		}
		_, err = tx.Exec(ctx, `UPDATE subscriptions SET service_id = $2, init_cost = $3, mmc = $4,
	init_cost_dis = $5, mmc_dis = $6, agreement_date = $7, start_date = $8, expiry_date = $9, is_repeat = $10,
	updated_at = NOW()
WHERE id = $1`,
			sub.ID, sub.ServiceID, sub.InitCost, sub.MMC, sub.InitCostDis, sub.MMCDis,
			sub.AgreementDate, sub.StartDate, sub.ExpiryDate, sub.IsRepeat)
		return err
	})
}

func (r *pgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrHasBills
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (r *pgRepository) HasOverlap(ctx context.Context, customerID, serviceID uuid.UUID, start, expiry time.Time, exclude uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (
	SELECT 1 FROM subscriptions
	WHERE customer_id = $1 AND service_id = $2 AND id <> $3
	  AND start_date <= $5 AND expiry_date >= $4)`,
		customerID, serviceID, exclude, start, expiry).Scan(&exists)
	return exists, err
}
