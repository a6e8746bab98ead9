package customers

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

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Customer, int, error)
	Get(ctx context.Context, id uuid.UUID) (Customer, error)
	Create(ctx context.Context, customer Customer) (Customer, error)
	Update(ctx context.Context, customer Customer) (Customer, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Count(ctx context.Context) (int, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const customerColumns = `id, name, code, COALESCE(email, ''), phone, COALESCE(address, ''), status, created_at, updated_at`

func scanCustomer(row pgx.Row) (Customer, error) {
	var c Customer
	err := row.Scan(&c.ID, &c.Name, &c.Code, &c.Email, &c.Phone, &c.Address, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Customer, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND (name ILIKE $1 OR email ILIKE $1 OR code ILIKE $1 OR phone ILIKE $1)`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + customerColumns + ` FROM customers` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.Limit, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	customers := make([]Customer, 0)
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, err
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	c, err := scanCustomer(r.db.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return c, err
}

func (r *repository) Create(ctx context.Context, c Customer) (Customer, error) {
	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, `INSERT INTO customers (id, name, code, email, phone, address, status, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), $7, $8, $8)`,
		c.ID, c.Name, c.Code, c.Email, c.Phone, c.Address, c.Status, now)
	if err != nil {
		return Customer{}, mapWriteError(err)
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return c, nil
}

func (r *repository) Update(ctx context.Context, c Customer) (Customer, error) {
	now := time.Now().UTC()
	tag, err := r.db.Exec(ctx, `UPDATE customers SET name = $2, code = $3, email = NULLIF($4, ''), phone = $5,
address = NULLIF($6, ''), status = $7, updated_at = $8 WHERE id = $1`,
		c.ID, c.Name, c.Code, c.Email, c.Phone, c.Address, c.Status, now)
	if err != nil {
		return Customer{}, mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return Customer{}, ErrCustomerNotFound
	}
	return r.Get(ctx, c.ID)
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

func (r *repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&n)
	return n, err
}

func mapWriteError(err error) error {
	switch {
	case db.IsUniqueViolation(err, "uq_customers_code"):
		return ErrDuplicateCode
	case db.IsForeignKeyViolation(err):
		return ErrHasSubscriptions
	}
	return err
}

var sortColumns = map[string]string{
	"name":      "name",
	"code":      "code",
	"status":    "status",
	"createdAt": "created_at",
}

func sortOrder(sortBy, sortDir string) string {
	col, ok := sortColumns[sortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if sortDir == "asc" {
		dir = "ASC"
	}
	return col + " " + dir + ", id"
}
