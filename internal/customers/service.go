package customers

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/shared"
)

type Service struct {
	repo      Repository
	validator *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: newValidator()}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Customer, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filters.Page, filters.Limit, total), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, in Input) (Customer, error) {
	in, err := s.validate(in)
	if err != nil {
		return Customer{}, err
	}
	c, err := s.repo.Create(ctx, fromInput(uuid.New(), in))
	return c, userFacing(err, in)
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Customer, error) {
	in, err := s.validate(in)
	if err != nil {
		return Customer{}, err
	}
	c, err := s.repo.Update(ctx, fromInput(id, in))
	return c, userFacing(err, in)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return userFacing(s.repo.Delete(ctx, id), Input{})
}

// Count returns the number of customers.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

func fromInput(id uuid.UUID, in Input) Customer {
	return Customer{ID: id, Name: in.Name, Code: in.Code, Email: in.Email, Phone: in.Phone, Address: in.Address, Status: in.Status}
}

func userFacing(err error, in Input) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrDuplicateCode):
		return shared.NewUserError(ErrDuplicateCode, "Customer code %q is already in use.", in.Code)
	case errors.Is(err, ErrHasSubscriptions):
		return shared.NewUserError(ErrHasSubscriptions, "Customer has subscriptions and cannot be deleted.")
	case errors.Is(err, ErrCustomerNotFound):
		return shared.NewUserError(ErrCustomerNotFound, "Customer not found.")
	}
	return err
}
