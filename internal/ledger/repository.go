package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const voucherCounter = "general_ledger"

// Repository reads the general ledger.
type Repository interface {
	SubscriptionTotals(ctx context.Context, subscriptionID uuid.UUID) (billed, paid decimal.Decimal, err error)
	VoucherSeq(ctx context.Context, voucherNo string) (int64, error)
	CreditBefore(ctx context.Context, q CreditQuery) (decimal.Decimal, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountRow, int, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]EntryRow, int, Totals, error)
	MonthlyBillCredit(ctx context.Context, billID uuid.UUID) (BillCredit, error)
	SetupBillCredit(ctx context.Context, billID uuid.UUID) (BillCredit, error)
}

// CreditQuery selects credits of one subscription and purpose issued before a
// voucher sequence. MonthFor, when set, restricts monthly credits to that month.
type CreditQuery struct {
	SubscriptionID uuid.UUID
	Purpose        Purpose
	BeforeSeq      int64
	MonthFor       string
}

// querier is satisfied by pgx.Tx and *pgxpool.Pool.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type repository struct {
	db querier
}

// NewRepository returns the Postgres backed read repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// NewTxStore binds a Store to tx.
func NewTxStore(tx pgx.Tx) Store {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) NextVoucherSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.tx.QueryRow(ctx, `INSERT INTO voucher_counters (name, value) VALUES ($1, 1)
ON CONFLICT (name) DO UPDATE SET value = voucher_counters.value + 1
RETURNING value`, voucherCounter).Scan(&seq)
	return seq, err
}

func (s *txStore) InsertEntry(ctx context.Context, e Entry) (Entry, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO general_ledger_entries
(id, subscription_id, purpose, voucher_no, voucher_seq, voucher_date, debit_amount, credit_amount, received_by, setup_bill_id, monthly_bill_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING created_at`,
		e.ID, e.SubscriptionID, string(e.Purpose), e.VoucherNo, e.VoucherSeq, e.VoucherDate,
		e.Debit, e.Credit, e.ReceivedBy, e.SetupBillID, e.MonthlyBillID).Scan(&e.CreatedAt)
	if err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (r *repository) SubscriptionTotals(ctx context.Context, subscriptionID uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	var billed, paid decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(e.debit_amount), 0), COALESCE(SUM(e.credit_amount), 0)
FROM subscriptions s
LEFT JOIN general_ledger_entries e ON e.subscription_id = s.id
WHERE s.id = $1
GROUP BY s.id`, subscriptionID).Scan(&billed, &paid)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, decimal.Zero, ErrSubscriptionNotFound
	}
	return billed, paid, err
}

func (r *repository) VoucherSeq(ctx context.Context, voucherNo string) (int64, error) {
	var seq int64
	err := r.db.QueryRow(ctx, `SELECT voucher_seq FROM general_ledger_entries WHERE voucher_no = $1`, voucherNo).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrVoucherNotFound
	}
	return seq, err
}

func (r *repository) CreditBefore(ctx context.Context, q CreditQuery) (decimal.Decimal, error) {
	sql := `SELECT COALESCE(SUM(e.credit_amount), 0)
FROM general_ledger_entries e
LEFT JOIN monthly_bills mb ON mb.id = e.monthly_bill_id
WHERE e.subscription_id = $1 AND e.purpose = $2 AND e.voucher_seq < $3 AND e.credit_amount > 0`
	args := []any{q.SubscriptionID, string(q.Purpose), q.BeforeSeq}
	if q.MonthFor != "" {
		args = append(args, q.MonthFor)
		sql += fmt.Sprintf(" AND mb.month_for = $%d", len(args))
	}
	var total decimal.Decimal
	err := r.db.QueryRow(ctx, sql, args...).Scan(&total)
	return total, err
}

func (r *repository) ListAccounts(ctx context.Context, filter AccountFilter) ([]AccountRow, int, error) {
	where, args := accountWhere(filter.Search)
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM subscriptions s
JOIN customers c ON c.id = s.customer_id
JOIN services sv ON sv.id = s.service_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	limit, offset := window(filter.Page, filter.Limit)
	args = append(args, limit, offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT s.id, c.name, c.phone, sv.name,
    COALESCE(SUM(e.debit_amount), 0), COALESCE(SUM(e.credit_amount), 0), COUNT(e.id)
FROM subscriptions s
JOIN customers c ON c.id = s.customer_id
JOIN services sv ON sv.id = s.service_id
LEFT JOIN general_ledger_entries e ON e.subscription_id = s.id%s
GROUP BY s.id, c.name, c.phone, sv.name, s.created_at
ORDER BY s.created_at DESC
LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []AccountRow
	for rows.Next() {
		var row AccountRow
		if err := rows.Scan(&row.SubscriptionID, &row.CustomerName, &row.CustomerPhone, &row.ServiceName,
			&row.TotalBilled, &row.TotalPaid, &row.EntryCount); err != nil {
			return nil, 0, err
		}
		row.Balance = row.TotalBilled.Sub(row.TotalPaid)
		out = append(out, row)
	}
	return out, total, rows.Err()
}

func accountWhere(search string) (string, []any) {
	search = strings.TrimSpace(search)
	if search == "" {
		return "", nil
	}
	return "\nWHERE (c.name ILIKE $1 OR c.phone ILIKE $1 OR sv.name ILIKE $1)", []any{"%" + search + "%"}
}

func (r *repository) ListEntries(ctx context.Context, filter EntryFilter) ([]EntryRow, int, Totals, error) {
	column, ok := sortColumns[filter.Sort]
	if !ok {
		return nil, 0, Totals{}, ErrInvalidSort
	}
	direction := "ASC"
	if filter.Desc {
		direction = "DESC"
	}
	from := `
FROM general_ledger_entries e
JOIN subscriptions s ON s.id = e.subscription_id
JOIN customers c ON c.id = s.customer_id
JOIN services sv ON sv.id = s.service_id
JOIN service_types st ON st.id = sv.service_type_id`
	var conds []string
	var args []any
	if filter.SubscriptionID.Valid {
		args = append(args, filter.SubscriptionID.UUID)
		conds = append(conds, fmt.Sprintf("e.subscription_id = $%d", len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		args = append(args, "%"+search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(e.voucher_no ILIKE $%d OR e.purpose ILIKE $%d OR c.name ILIKE $%d OR c.phone ILIKE $%d)", n, n, n, n))
	}
	if len(conds) > 0 {
		from += "\nWHERE " + strings.Join(conds, " AND ")
	}

	var (
		total         int
		debit, credit decimal.Decimal
	)
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(e.debit_amount), 0), COALESCE(SUM(e.credit_amount), 0)`+from, args...).
		Scan(&total, &debit, &credit); err != nil {
		return nil, 0, Totals{}, err
	}

	limit, offset := window(filter.Page, filter.Limit)
	args = append(args, limit, offset)
	rows, err := r.db.Query(ctx, fmt.Sprintf(`SELECT e.id, e.subscription_id, e.purpose, e.voucher_no, e.voucher_seq, e.voucher_date,
    e.debit_amount, e.credit_amount, e.received_by, e.setup_bill_id, e.monthly_bill_id, e.created_at,
    c.name, c.phone, sv.name, st.title%s
ORDER BY %s %s, e.voucher_seq %s
LIMIT $%d OFFSET $%d`, from, column, direction, direction, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, Totals{}, err
	}
	defer rows.Close()
	var out []EntryRow
	for rows.Next() {
		var row EntryRow
		var purpose string
		if err := rows.Scan(&row.ID, &row.SubscriptionID, &purpose, &row.VoucherNo, &row.VoucherSeq, &row.VoucherDate,
			&row.Debit, &row.Credit, &row.ReceivedBy, &row.SetupBillID, &row.MonthlyBillID, &row.CreatedAt,
			&row.CustomerName, &row.CustomerPhone, &row.ServiceName, &row.ServiceType); err != nil {
			return nil, 0, Totals{}, err
		}
		row.Purpose = Purpose(purpose)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, Totals{}, err
	}
	return out, total, NewTotals(debit, credit), nil
}

func (r *repository) MonthlyBillCredit(ctx context.Context, billID uuid.UUID) (BillCredit, error) {
	return r.billCredit(ctx, `SELECT b.id, b.month_for, b.mmc, b.paid_amount, b.paid_date, b.received_by,
    s.id, c.name, c.code, c.phone, sv.name, st.title, e.voucher_no, e.voucher_seq
FROM monthly_bills b
JOIN subscriptions s ON s.id = b.subscription_id
JOIN customers c ON c.id = s.customer_id
JOIN services sv ON sv.id = s.service_id
JOIN service_types st ON st.id = sv.service_type_id
LEFT JOIN general_ledger_entries e ON e.monthly_bill_id = b.id AND e.credit_amount > 0
WHERE b.id = $1`, billID)
}

func (r *repository) SetupBillCredit(ctx context.Context, billID uuid.UUID) (BillCredit, error) {
	return r.billCredit(ctx, `SELECT b.id, '', s.init_cost, b.paid_amount, b.paid_date, b.received_by,
    s.id, c.name, c.code, c.phone, sv.name, st.title, e.voucher_no, e.voucher_seq
FROM setup_bills b
JOIN subscriptions s ON s.id = b.subscription_id
JOIN customers c ON c.id = s.customer_id
JOIN services sv ON sv.id = s.service_id
JOIN service_types st ON st.id = sv.service_type_id
LEFT JOIN general_ledger_entries e ON e.setup_bill_id = b.id AND e.credit_amount > 0
WHERE b.id = $1`, billID)
}

func (r *repository) billCredit(ctx context.Context, sql string, billID uuid.UUID) (BillCredit, error) {
	var (
		bc        BillCredit
		voucherNo *string
		seq       *int64
	)
	err := r.db.QueryRow(ctx, sql, billID).Scan(&bc.BillID, &bc.MonthFor, &bc.Charge, &bc.PaidAmount, &bc.PaidDate, &bc.ReceivedBy,
		&bc.SubscriptionID, &bc.CustomerName, &bc.CustomerCode, &bc.CustomerPhone, &bc.ServiceName, &bc.ServiceType,
		&voucherNo, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return BillCredit{}, ErrBillNotFound
	}
	if err != nil {
		return BillCredit{}, err
	}
	if voucherNo != nil && seq != nil {
		bc.VoucherNo, bc.VoucherSeq, bc.HasVoucher = *voucherNo, *seq, true
	}
	return bc, nil
}

func window(page, limit int) (int, int) {
	if limit <= 0 {
		limit = 10
	}
	if page <= 0 {
		page = 1
	}
	return limit, (page - 1) * limit
}
