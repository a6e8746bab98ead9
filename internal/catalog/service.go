package catalog

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/shared"
)

// Manager validates and persists catalog entries.
type Manager struct {
	repo      Repository
	validator *validator.Validate
}

// NewManager builds the catalog manager.
func NewManager(repo Repository) *Manager {
	return &Manager{repo: repo, validator: validator.New()}
}

func (s *Manager) ListServiceTypes(ctx context.Context, f ListFilters) ([]ServiceType, shared.Pagination, error) {
	items, total, err := s.repo.ListServiceTypes(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(f.Page, f.Limit, total), nil
}

func (s *Manager) CreateServiceType(ctx context.Context, in ServiceTypeInput) (ServiceType, error) {
	return s.saveServiceType(ctx, uuid.New(), in, true)
}

func (s *Manager) UpdateServiceType(ctx context.Context, id uuid.UUID, in ServiceTypeInput) (ServiceType, error) {
	return s.saveServiceType(ctx, id, in, false)
}

func (s *Manager) saveServiceType(ctx context.Context, id uuid.UUID, in ServiceTypeInput, create bool) (ServiceType, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validator.Struct(in); err != nil {
		return ServiceType{}, err
	}
	st, err := s.repo.SaveServiceType(ctx, ServiceType{ID: id, Title: in.Title, Description: in.Description}, create)
	return st, userFacing(err, in.Title)
}

func (s *Manager) DeleteServiceType(ctx context.Context, id uuid.UUID) error {
	return userFacing(s.repo.DeleteServiceType(ctx, id), "")
}

func (s *Manager) ListServices(ctx context.Context, f ListFilters) ([]Service, shared.Pagination, error) {
	items, total, err := s.repo.ListServices(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(f.Page, f.Limit, total), nil
}

// GetService returns one catalog service with its list prices.
func (s *Manager) GetService(ctx context.Context, id uuid.UUID) (Service, error) {
	svc, err := s.repo.GetService(ctx, id)
	return svc, userFacing(err, "")
}

func (s *Manager) CreateService(ctx context.Context, in ServiceInput) (Service, error) {
	return s.saveService(ctx, uuid.New(), in, true)
}

func (s *Manager) UpdateService(ctx context.Context, id uuid.UUID, in ServiceInput) (Service, error) {
	return s.saveService(ctx, id, in, false)
}

func (s *Manager) saveService(ctx context.Context, id uuid.UUID, in ServiceInput, create bool) (Service, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validator.Struct(in); err != nil {
		return Service{}, err
	}
	if in.InitCost.IsNegative() || in.MMC.IsNegative() {
		return Service{}, shared.NewUserError(ErrInvalidPrice, "Initial cost and MMC must not be negative.")
	}
	svc, err := s.repo.SaveService(ctx, Service{
		ID:            id,
		Name:          in.Name,
		ServiceTypeID: uuid.MustParse(in.ServiceTypeID),
		InitCost:      in.InitCost,
		MMC:           in.MMC,
	}, create)
	return svc, userFacing(err, in.Name)
}

func (s *Manager) DeleteService(ctx context.Context, id uuid.UUID) error {
	return userFacing(s.repo.DeleteService(ctx, id), "")
}

// CountServices returns the number of catalog services.
func (s *Manager) CountServices(ctx context.Context) (int, error) {
	return s.repo.CountServices(ctx)
}

func userFacing(err error, name string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateName):
		return shared.NewUserError(ErrDuplicateName, "%q already exists.", name)
	case errors.Is(err, ErrInUse):
		return shared.NewUserError(ErrInUse, "This entry is still used and cannot be deleted.")
	case errors.Is(err, ErrServiceTypeNotFound):
		return shared.NewUserError(ErrServiceTypeNotFound, "Service type not found.")
	case errors.Is(err, ErrServiceNotFound):
		return shared.NewUserError(ErrServiceNotFound, "Service not found.")
	}
	return err
}
