package subscriptions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nazrul121/customer-billing/internal/billing"
	"github.com/nazrul121/customer-billing/internal/catalog"
	"github.com/nazrul121/customer-billing/internal/customers"
	"github.com/nazrul121/customer-billing/internal/rbac"
	"github.com/nazrul121/customer-billing/internal/shared"
)

type memRepo struct {
	items  map[uuid.UUID]Subscription
	bills  map[uuid.UUID]BillTotals
	filter ListFilter
}

func (m *memRepo) List(_ context.Context, filter ListFilter) ([]Subscription, int, error) {
	m.filter = filter
	out := []Subscription{}
	for _, s := range m.items {
		if !filter.CustomerID.Valid || s.CustomerID == filter.CustomerID.UUID {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (m *memRepo) Get(_ context.Context, id uuid.UUID) (Subscription, error) {
	s, ok := m.items[id]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return s, nil
}

func (m *memRepo) Create(_ context.Context, sub Subscription) error {
	m.items[sub.ID] = sub
	return nil
}

func (m *memRepo) Update(_ context.Context, sub Subscription, guard UpdateGuard) error {
	current, ok := m.items[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if err := guard(current, m.bills[sub.ID]); err != nil {
		return err
	}
	m.items[sub.ID] = sub
	return nil
}

func (m *memRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.items, id)
	return nil
}

func (m *memRepo) HasOverlap(_ context.Context, customerID, serviceID uuid.UUID, start, expiry time.Time, exclude uuid.UUID) (bool, error) {
	for id, s := range m.items {
		if id == exclude || s.CustomerID != customerID || s.ServiceID != serviceID {
			continue
		}
		if !s.StartDate.After(expiry) && !s.ExpiryDate.Before(start) {
			return true, nil
		}
	}
	return false, nil
}

type stubPrices map[uuid.UUID]catalog.Service

func (p stubPrices) GetService(_ context.Context, id uuid.UUID) (catalog.Service, error) {
	s, ok := p[id]
	if !ok {
		return catalog.Service{}, catalog.ErrServiceNotFound
	}
	return s, nil
}

type stubCustomers map[uuid.UUID]customers.Customer

func (c stubCustomers) Get(_ context.Context, id uuid.UUID) (customers.Customer, error) {
	cu, ok := c[id]
	if !ok {
		return customers.Customer{}, customers.ErrCustomerNotFound
	}
	return cu, nil
}

type stubCollector struct {
	inputs []billing.SetupPaymentInput
	err    error
}

func (s *stubCollector) RecordSetupPayment(_ context.Context, in billing.SetupPaymentInput) (billing.SetupBill, error) {
	s.inputs = append(s.inputs, in)
	if s.err != nil {
		return billing.SetupBill{}, s.err
	}
	return billing.SetupBill{ID: uuid.New(), SubscriptionID: in.SubscriptionID, PaidAmount: in.PaidAmount, VoucherNo: "2026-FEB-0001"}, nil
}

type fixture struct {
	svc       *Service
	repo      *memRepo
	collector *stubCollector
	active    customers.Customer
	inactive  customers.Customer
	second    customers.Customer
	plan      catalog.Service
	other     catalog.Service
}

func newFixture() *fixture {
	f := &fixture{
		repo:      &memRepo{items: map[uuid.UUID]Subscription{}, bills: map[uuid.UUID]BillTotals{}},
		collector: &stubCollector{},
		active:    customers.Customer{ID: uuid.New(), Name: "Rahim", Status: customers.StatusActive},
		inactive:  customers.Customer{ID: uuid.New(), Name: "Karim", Status: customers.StatusInactive},
		second:    customers.Customer{ID: uuid.New(), Name: "Nadia", Status: customers.StatusActive},
		plan: catalog.Service{ID: uuid.New(), Name: "Home 20 Mbps", ServiceTypeTitle: "Internet",
			InitCost: decimal.NewFromInt(5000), MMC: decimal.NewFromInt(1000)},
		other: catalog.Service{ID: uuid.New(), Name: "IPTV Basic", ServiceTypeTitle: "IPTV",
			InitCost: decimal.NewFromInt(1500), MMC: decimal.NewFromInt(350)},
	}
	f.svc = NewService(f.repo,
		stubPrices{f.plan.ID: f.plan, f.other.ID: f.other},
		stubCustomers{f.active.ID: f.active, f.inactive.ID: f.inactive, f.second.ID: f.second},
		f.collector,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return f
}

func (f *fixture) input() Input {
	return Input{
		CustomerID:    f.active.ID.String(),
		ServiceID:     f.plan.ID.String(),
		InitCost:      decimal.NewFromInt(4500),
		MMC:           decimal.NewFromInt(900),
		AgreementDate: "2026-01-05",
		StartDate:     "2026-01-10",
		ExpiryDate:    "2026-12-31",
	}
}

func TestCreateDerivesDiscounts(t *testing.T) {
	f := newFixture()
	out, err := f.svc.Create(context.Background(), f.input(), "alice")
	require.NoError(t, err)
	sub := out.Subscription
	require.True(t, sub.InitCostDis.Equal(decimal.NewFromInt(500)))
	require.True(t, sub.MMCDis.Equal(decimal.NewFromInt(100)))
	require.Equal(t, RepeatNo, sub.IsRepeat)
	require.Nil(t, out.InitialPayment)
	require.Empty(t, f.collector.inputs)
}

func TestCreateRejectsOverlapAndInactive(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), f.input(), "alice")
	require.NoError(t, err)

	overlapping := f.input()
	overlapping.StartDate, overlapping.ExpiryDate = "2026-06-01", "2027-05-31"
	_, err = f.svc.Create(context.Background(), overlapping, "alice")
	require.ErrorIs(t, err, ErrOverlap)

	later := f.input()
	later.StartDate, later.ExpiryDate = "2027-01-01", "2027-12-31"
	_, err = f.svc.Create(context.Background(), later, "alice")
	require.NoError(t, err)

	inactive := f.input()
	inactive.CustomerID = f.inactive.ID.String()
	_, err = f.svc.Create(context.Background(), inactive, "alice")
	require.ErrorIs(t, err, ErrInvalidSubscription)

	reversed := f.input()
	reversed.StartDate, reversed.ExpiryDate = "2026-05-01", "2026-04-30"
	_, err = f.svc.Create(context.Background(), reversed, "alice")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestCreateRoutesInitialPaymentThroughBilling(t *testing.T) {
	f := newFixture()
	in := f.input()
	in.InitPayment = decimal.NewFromInt(2000)

	out, err := f.svc.Create(context.Background(), in, "alice")
	require.NoError(t, err)
	require.Len(t, f.collector.inputs, 1)
	require.Equal(t, out.Subscription.ID, f.collector.inputs[0].SubscriptionID)
	require.Equal(t, "alice", f.collector.inputs[0].CollectedBy)
	require.True(t, f.collector.inputs[0].PaidAmount.Equal(decimal.NewFromInt(2000)))
	require.NotNil(t, out.InitialPayment)
	require.Equal(t, "2026-FEB-0001", out.InitialPayment.VoucherNo)
}

func TestCreateRejectsInitialPaymentAboveCost(t *testing.T) {
	f := newFixture()
	in := f.input()
	in.InitPayment = decimal.NewFromInt(4501)
	_, err := f.svc.Create(context.Background(), in, "alice")
	require.ErrorIs(t, err, ErrInvalidSubscription)
	require.Equal(t, "Initial payment must be between 0 and 4500.00.", shared.UserSafeMessage(err))
	require.Empty(t, f.repo.items)
}

func TestFailedInitialPaymentKeepsSubscription(t *testing.T) {
	f := newFixture()
	f.collector.err = fmt.Errorf("%w: connection reset", billing.ErrStorageFailure)
	in := f.input()
	in.InitPayment = decimal.NewFromInt(1000)

	out, err := f.svc.Create(context.Background(), in, "alice")
	require.ErrorIs(t, err, ErrInitialPaymentFailed)
	require.ErrorIs(t, err, billing.ErrStorageFailure)
	require.Contains(t, f.repo.items, out.Subscription.ID)
	require.NotEmpty(t, out.PaymentError)
}

func TestUpdateKeepsCustomerAndExcludesSelf(t *testing.T) {
	f := newFixture()
	out, err := f.svc.Create(context.Background(), f.input(), "alice")
	require.NoError(t, err)

	in := f.input()
	in.MMC = decimal.NewFromInt(800)
	sub, err := f.svc.Update(context.Background(), out.Subscription.ID, in)
	require.NoError(t, err)
	require.True(t, sub.MMCDis.Equal(decimal.NewFromInt(200)))

	in.CustomerID = f.second.ID.String()
	_, err = f.svc.Update(context.Background(), out.Subscription.ID, in)
	require.ErrorIs(t, err, ErrInvalidSubscription)
	require.Equal(t, "Subscription customer cannot be changed.", shared.UserSafeMessage(err))
}

func TestUpdateKeepsPricesAbovePaidBills(t *testing.T) {
	f := newFixture()
	out, err := f.svc.Create(context.Background(), f.input(), "alice")
	require.NoError(t, err)
	id := out.Subscription.ID
	f.repo.bills[id] = BillTotals{
		SetupPaid:    decimal.NewFromInt(3000),
		MaxMonth:     "2026-03",
		MaxMonthPaid: decimal.NewFromInt(900),
		Count:        3,
	}

	cheaperSetup := f.input()
	cheaperSetup.InitCost = decimal.NewFromInt(2999)
	_, err = f.svc.Update(context.Background(), id, cheaperSetup)
	require.ErrorIs(t, err, ErrInvalidSubscription)
	require.Equal(t, "Initial cost cannot be lower than the 3000.00 already paid.", shared.UserSafeMessage(err))

	cheaperMonth := f.input()
	cheaperMonth.MMC = decimal.NewFromInt(899)
	_, err = f.svc.Update(context.Background(), id, cheaperMonth)
	require.ErrorIs(t, err, ErrInvalidSubscription)
	require.Equal(t, "MMC cannot be lower than the 900.00 already paid for March 2026.", shared.UserSafeMessage(err))

	moved := f.input()
	moved.ServiceID = f.other.ID.String()
	_, err = f.svc.Update(context.Background(), id, moved)
	require.ErrorIs(t, err, ErrInvalidSubscription)
	require.Equal(t, "Service cannot be changed once bills are recorded.", shared.UserSafeMessage(err))

	stored, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, stored.InitCost.Equal(decimal.NewFromInt(4500)))
	require.True(t, stored.MMC.Equal(decimal.NewFromInt(900)))
	require.Equal(t, f.plan.ID, stored.ServiceID)

	atPaid := f.input()
	atPaid.InitCost = decimal.NewFromInt(3000)
	atPaid.MMC = decimal.NewFromInt(900)
	sub, err := f.svc.Update(context.Background(), id, atPaid)
	require.NoError(t, err)
	require.True(t, sub.InitCost.Equal(decimal.NewFromInt(3000)))
}

func TestUpdateMovesServiceWithoutBills(t *testing.T) {
	f := newFixture()
	out, err := f.svc.Create(context.Background(), f.input(), "alice")
	require.NoError(t, err)

	moved := f.input()
	moved.ServiceID = f.other.ID.String()
	moved.InitCost, moved.MMC = decimal.NewFromInt(1500), decimal.NewFromInt(300)
	sub, err := f.svc.Update(context.Background(), out.Subscription.ID, moved)
	require.NoError(t, err)
	require.Equal(t, f.other.ID, sub.ServiceID)
	require.True(t, sub.MMCDis.Equal(decimal.NewFromInt(50)))
}

func TestUpdateUnknownSubscription(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Update(context.Background(), uuid.New(), f.input())
	require.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestListRejectsUnknownSort(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.List(context.Background(), ListFilter{Sort: "1; DROP TABLE subscriptions"})
	require.ErrorIs(t, err, ErrInvalidSort)
}

func TestHandlerCustomerListingAndCreate(t *testing.T) {
	f := newFixture()
	mw := rbac.Middleware{}
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.svc, mw)
	r := chi.NewRouter()
	r.Use(mw.Authenticate)
	r.Route("/api/subscriptions", h.MountRoutes)
	r.Route("/api/customers", h.MountCustomerRoutes)

	body, err := json.Marshal(f.input())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/", strings.NewReader(string(body)))
	req.Header.Set("X-Auth-User", "alice")
	req.Header.Set("X-Auth-Role", "user")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/customers/"+f.active.ID.String()+"/subscriptions?sortId=service&sortDir=asc", nil)
	req.Header.Set("X-Auth-User", "gina")
	req.Header.Set("X-Auth-Role", "guest")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, SortService, f.repo.filter.Sort)
	require.False(t, f.repo.filter.Desc)
	require.Equal(t, f.active.ID, f.repo.filter.CustomerID.UUID)

	req = httptest.NewRequest(http.MethodGet, "/api/subscriptions/?sortId=password", nil)
	req.Header.Set("X-Auth-User", "gina")
	req.Header.Set("X-Auth-Role", "guest")
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}
