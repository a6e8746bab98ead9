package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nazrul121/customer-billing/internal/platform/db"
)

type Repository interface {
	ListServiceTypes(ctx context.Context, filters ListFilters) ([]ServiceType, int, error)
	GetServiceType(ctx context.Context, id uuid.UUID) (ServiceType, error)
	SaveServiceType(ctx context.Context, st ServiceType, create bool) (ServiceType, error)
	DeleteServiceType(ctx context.Context, id uuid.UUID) error

	ListServices(ctx context.Context, filters ListFilters) ([]Service, int, error)
	GetService(ctx context.Context, id uuid.UUID) (Service, error)
	SaveService(ctx context.Context, svc Service, create bool) (Service, error)
	DeleteService(ctx context.Context, id uuid.UUID) error
	CountServices(ctx context.Context) (int, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func offset(f ListFilters) int {
	if f.Page <= 1 || f.Limit <= 0 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

func limit(f ListFilters) int {
	if f.Limit <= 0 {
		return 10
	}
	return f.Limit
}

func (r *repository) ListServiceTypes(ctx context.Context, f ListFilters) ([]ServiceType, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM service_types WHERE $1::text = '' OR title ILIKE '%' || $1 || '%'`, f.Search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `SELECT id, title, description, created_at, updated_at FROM service_types
WHERE $1::text = '' OR title ILIKE '%' || $1 || '%'
ORDER BY title LIMIT $2 OFFSET $3`, f.Search, limit(f), offset(f))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]ServiceType, 0)
	for rows.Next() {
		var st ServiceType
		if err := rows.Scan(&st.ID, &st.Title, &st.Description, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, st)
	}
	return out, total, rows.Err()
}

func (r *repository) GetServiceType(ctx context.Context, id uuid.UUID) (ServiceType, error) {
	var st ServiceType
	err := r.db.QueryRow(ctx, `SELECT id, title, description, created_at, updated_at FROM service_types WHERE id = $1`, id).
		Scan(&st.ID, &st.Title, &st.Description, &st.CreatedAt, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ServiceType{}, ErrServiceTypeNotFound
	}
	return st, err
}

func (r *repository) SaveServiceType(ctx context.Context, st ServiceType, create bool) (ServiceType, error) {
	now := time.Now().UTC()
	var (
		err  error
		rows int64 = 1
	)
	if create {
		_, err = r.db.Exec(ctx, `INSERT INTO service_types (id, title, description, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)`,
			st.ID, st.Title, st.Description, now)
	} else {
		var tag pgconn.CommandTag
		tag, err = r.db.Exec(ctx, `UPDATE service_types SET title = $2, description = $3, updated_at = $4 WHERE id = $1`,
			st.ID, st.Title, st.Description, now)
		if err == nil {
			rows = tag.RowsAffected()
		}
	}
	if db.IsUniqueViolation(err, "uq_service_types_title") {
		return ServiceType{}, ErrDuplicateName
	}
	if err != nil {
		return ServiceType{}, err
	}
	if rows == 0 {
		return ServiceType{}, ErrServiceTypeNotFound
	}
	return r.GetServiceType(ctx, st.ID)
}

func (r *repository) DeleteServiceType(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM service_types WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceTypeNotFound
	}
	return nil
}

const serviceSelect = `SELECT s.id, s.name, s.service_type_id, t.title, s.init_cost, s.mmc, s.created_at, s.updated_at
FROM services s JOIN service_types t ON t.id = s.service_type_id`

func scanService(row pgx.Row) (Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Name, &s.ServiceTypeID, &s.ServiceTypeTitle, &s.InitCost, &s.MMC, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

func (r *repository) ListServices(ctx context.Context, f ListFilters) ([]Service, int, error) {
	const where = ` WHERE $1::text = '' OR s.name ILIKE '%' || $1 || '%' OR t.title ILIKE '%' || $1 || '%'`
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM services s JOIN service_types t ON t.id = s.service_type_id`+where, f.Search).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, serviceSelect+where+` ORDER BY s.name LIMIT $2 OFFSET $3`, f.Search, limit(f), offset(f))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]Service, 0)
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *repository) GetService(ctx context.Context, id uuid.UUID) (Service, error) {
	s, err := scanService(r.db.QueryRow(ctx, serviceSelect+` WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, ErrServiceNotFound
	}
	return s, err
}

func (r *repository) SaveService(ctx context.Context, s Service, create bool) (Service, error) {
	now := time.Now().UTC()
	var (
		err  error
		rows int64 = 1
	)
	if create {
		_, err = r.db.Exec(ctx, `INSERT INTO services (id, name, service_type_id, init_cost, mmc, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)`, s.ID, s.Name, s.ServiceTypeID, s.InitCost, s.MMC, now)
	} else {
		var tag pgconn.CommandTag
		tag, err = r.db.Exec(ctx, `UPDATE services SET name = $2, service_type_id = $3, init_cost = $4, mmc = $5, updated_at = $6 WHERE id = $1`,
			s.ID, s.Name, s.ServiceTypeID, s.InitCost, s.MMC, now)
		if err == nil {
			rows = tag.RowsAffected()
		}
	}
	switch {
	case db.IsUniqueViolation(err, "uq_services_name"):
		return Service{}, ErrDuplicateName
	case db.IsForeignKeyViolation(err):
		return Service{}, ErrServiceTypeNotFound
	case err != nil:
		return Service{}, err
	case rows == 0:
		return Service{}, ErrServiceNotFound
	}
	return r.GetService(ctx, s.ID)
}

func (r *repository) DeleteService(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if db.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (r *repository) CountServices(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM services`).Scan(&n)
	return n, err
}
