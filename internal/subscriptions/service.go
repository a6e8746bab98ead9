package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/nazrul121/customer-billing/internal/billing"
	"github.com/nazrul121/customer-billing/internal/catalog"
	"github.com/nazrul121/customer-billing/internal/customers"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// PriceList resolves catalog prices.
type PriceList interface {
	GetService(ctx context.Context, id uuid.UUID) (catalog.Service, error)
}

// CustomerLookup resolves customers.
type CustomerLookup interface {
	Get(ctx context.Context, id uuid.UUID) (customers.Customer, error)
}

// SetupCollector records setup payments.
type SetupCollector interface {
	RecordSetupPayment(ctx context.Context, input billing.SetupPaymentInput) (billing.SetupBill, error)
}

// Service manages subscriptions.
type Service struct {
	repo      Repository
	prices    PriceList
	customers CustomerLookup
	billing   SetupCollector
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService wires the subscription service.
func NewService(repo Repository, prices PriceList, customers CustomerLookup, billing SetupCollector, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, prices: prices, customers: customers, billing: billing, validator: validator.New(), logger: logger}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Subscription, shared.Pagination, error) {
	if _, ok := sortColumns[filter.Sort]; !ok {
		return nil, shared.Pagination{}, shared.NewUserError(ErrInvalidSort, "Cannot sort by %q.", filter.Sort)
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (Subscription, error) {
	return s.repo.Get(ctx, id)
}

// Create stores a subscription and, when InitPayment is positive, records it as the first setup payment.
// A failed initial payment leaves the subscription in place and is reported through ErrInitialPaymentFailed.
func (s *Service) Create(ctx context.Context, in Input, collector string) (Created, error) {
	sub, err := s.build(ctx, uuid.New(), in)
	if err != nil {
		return Created{}, err
	}
	if in.InitPayment.IsNegative() || in.InitPayment.GreaterThan(sub.InitCost) {
		return Created{}, shared.NewUserError(ErrInvalidSubscription,
			"Initial payment must be between 0 and %s.", sub.InitCost.StringFixed(2))
	}
	if in.InitPayment.IsPositive() && strings.TrimSpace(collector) == "" {
		return Created{}, shared.NewUserError(ErrInvalidSubscription, "Initial payment requires a collector.")
	}
	if err := s.checkOverlap(ctx, sub); err != nil {
		return Created{}, err
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return Created{}, err
	}
	if stored, err := s.repo.Get(ctx, sub.ID); err == nil {
		sub = stored
	}
	out := Created{Subscription: sub}
	if !in.InitPayment.IsPositive() {
		return out, nil
	}

	bill, err := s.billing.RecordSetupPayment(ctx, billing.SetupPaymentInput{
		SubscriptionID: sub.ID,
		PaidAmount:     in.InitPayment,
		CollectedBy:    collector,
	})
	if err != nil {
		s.logger.Warn("initial payment failed", slog.String("subscription_id", sub.ID.String()), slog.Any("error", err))
		out.PaymentError = shared.UserSafeMessage(err)
		return out, fmt.Errorf("%w: %w", ErrInitialPaymentFailed, err)
	}
	out.InitialPayment = &bill
	return out, nil
}

// Update changes prices, dates or service. The customer is fixed for the life
// of a subscription, the service is fixed once bills exist, and prices may not
// drop below what has already been paid.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in Input) (Subscription, error) {
	sub, err := s.build(ctx, id, in)
	if err != nil {
		return Subscription{}, err
	}
	if err := s.checkOverlap(ctx, sub); err != nil {
		return Subscription{}, err
	}
	if err := s.repo.Update(ctx, sub, func(current Subscription, bills BillTotals) error {
		return checkAgainstBills(current, sub, bills)
	}); err != nil {
		return Subscription{}, err
	}
	return s.repo.Get(ctx, id)
}

func checkAgainstBills(current, next Subscription, bills BillTotals) error {
	switch {
	case next.CustomerID != current.CustomerID:
		return shared.NewUserError(ErrInvalidSubscription, "Subscription customer cannot be changed.")
	case bills.Count > 0 && next.ServiceID != current.ServiceID:
		return shared.NewUserError(ErrInvalidSubscription, "Service cannot be changed once bills are recorded.")
	case next.InitCost.LessThan(bills.SetupPaid):
		return shared.NewUserError(ErrInvalidSubscription,
			"Initial cost cannot be lower than the %s already paid.", bills.SetupPaid.StringFixed(2))
	case next.MMC.LessThan(bills.MaxMonthPaid):
		return shared.NewUserError(ErrInvalidSubscription,
			"MMC cannot be lower than the %s already paid for %s.", bills.MaxMonthPaid.StringFixed(2), billing.MonthName(bills.MaxMonth))
	}
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, ErrHasBills) {
		return shared.NewUserError(ErrHasBills, "Subscription has recorded bills and cannot be deleted.")
	}
	return err
}

func (s *Service) build(ctx context.Context, id uuid.UUID, in Input) (Subscription, error) {
	if err := s.validator.Struct(in); err != nil {
		return Subscription{}, err
	}
	agreement, _ := time.Parse(time.DateOnly, in.AgreementDate)
	start, _ := time.Parse(time.DateOnly, in.StartDate)
	expiry, _ := time.Parse(time.DateOnly, in.ExpiryDate)
	if expiry.Before(start) {
		return Subscription{}, shared.NewUserError(ErrInvalidSubscription, "Expiry date must not be before start date.")
	}
	if in.InitCost.IsNegative() || in.MMC.IsNegative() {
		return Subscription{}, shared.NewUserError(ErrInvalidSubscription, "Initial cost and MMC must not be negative.")
	}

	customer, err := s.customers.Get(ctx, uuid.MustParse(in.CustomerID))
	if err != nil {
		return Subscription{}, err
	}
	if customer.Status != customers.StatusActive {
		return Subscription{}, shared.NewUserError(ErrInvalidSubscription, "Customer %s is inactive.", customer.Name)
	}
	service, err := s.prices.GetService(ctx, uuid.MustParse(in.ServiceID))
	if err != nil {
		return Subscription{}, err
	}

	repeat := strings.ToUpper(in.IsRepeat)
	if repeat == "" {
		repeat = RepeatNo
	}
	return Subscription{
		ID:            id,
		CustomerID:    customer.ID,
		CustomerName:  customer.Name,
		ServiceID:     service.ID,
		ServiceName:   service.Name,
		ServiceType:   service.ServiceTypeTitle,
		InitCost:      in.InitCost,
		MMC:           in.MMC,
		InitCostDis:   service.InitCost.Sub(in.InitCost),
		MMCDis:        service.MMC.Sub(in.MMC),
		AgreementDate: agreement,
		StartDate:     start,
		ExpiryDate:    expiry,
		IsRepeat:      repeat,
	}, nil
}

func (s *Service) checkOverlap(ctx context.Context, sub Subscription) error {
	overlap, err := s.repo.HasOverlap(ctx, sub.CustomerID, sub.ServiceID, sub.StartDate, sub.ExpiryDate, sub.ID)
	if err != nil {
		return err
	}
	if overlap {
		return shared.NewUserError(ErrOverlap, "%s already has an active %s subscription in that period.", sub.CustomerName, sub.ServiceName)
	}
	return nil
}
