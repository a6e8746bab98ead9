package ledger

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nazrul121/customer-billing/internal/shared"
)

type stubRepo struct {
	billed, paid decimal.Decimal
	totalsErr    error
	totalsCalls  int
	seqs         map[string]int64
	credits      []Entry
	months       map[uuid.UUID]string
	lastQuery    CreditQuery
	monthly      map[uuid.UUID]BillCredit
	setup        map[uuid.UUID]BillCredit
	entries      []EntryRow
	entryFilter  EntryFilter
}

func (s *stubRepo) SubscriptionTotals(context.Context, uuid.UUID) (decimal.Decimal, decimal.Decimal, error) {
	s.totalsCalls++
	return s.billed, s.paid, s.totalsErr
}

func (s *stubRepo) VoucherSeq(_ context.Context, voucherNo string) (int64, error) {
	seq, ok := s.seqs[voucherNo]
	if !ok {
		return 0, ErrVoucherNotFound
	}
	return seq, nil
}

func (s *stubRepo) CreditBefore(_ context.Context, q CreditQuery) (decimal.Decimal, error) {
	s.lastQuery = q
	total := decimal.Zero
	for _, e := range s.credits {
		if e.SubscriptionID != q.SubscriptionID || e.Purpose != q.Purpose || e.VoucherSeq >= q.BeforeSeq {
			continue
		}
		if q.MonthFor != "" && s.months[e.MonthlyBillID.UUID] != q.MonthFor {
			continue
		}
		total = total.Add(e.Credit)
	}
	return total, nil
}

func (s *stubRepo) ListAccounts(context.Context, AccountFilter) ([]AccountRow, int, error) {
	return nil, 0, nil
}

func (s *stubRepo) ListEntries(_ context.Context, f EntryFilter) ([]EntryRow, int, Totals, error) {
	s.entryFilter = f
	debit, credit := decimal.Zero, decimal.Zero
	for _, e := range s.entries {
		debit, credit = debit.Add(e.Debit), credit.Add(e.Credit)
	}
	return s.entries, len(s.entries), NewTotals(debit, credit), nil
}

func (s *stubRepo) MonthlyBillCredit(_ context.Context, id uuid.UUID) (BillCredit, error) {
	bc, ok := s.monthly[id]
	if !ok {
		return BillCredit{}, ErrBillNotFound
	}
	return bc, nil
}

func (s *stubRepo) SetupBillCredit(_ context.Context, id uuid.UUID) (BillCredit, error) {
	bc, ok := s.setup[id]
	if !ok {
		return BillCredit{}, ErrBillNotFound
	}
	return bc, nil
}

func newCachedService(t *testing.T, repo Repository) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, NewCache(client, time.Minute), nil), mr
}

func TestSummaryIsCachedUntilInvalidated(t *testing.T) {
	repo := &stubRepo{billed: decimal.NewFromInt(1000), paid: decimal.NewFromInt(400)}
	svc, _ := newCachedService(t, repo)
	sub := uuid.New()
	ctx := context.Background()

	first, err := svc.Summary(ctx, sub)
	require.NoError(t, err)
	require.Equal(t, StatusDue, first.Status)
	require.True(t, first.Balance.Equal(decimal.NewFromInt(600)))

	repo.paid = decimal.NewFromInt(1000)
	second, err := svc.Summary(ctx, sub)
	require.NoError(t, err)
	require.True(t, second.Balance.Equal(first.Balance))
	require.Equal(t, 1, repo.totalsCalls)

	svc.Invalidate(ctx)
	third, err := svc.Summary(ctx, sub)
	require.NoError(t, err)
	require.Equal(t, StatusSettled, third.Status)
	require.Equal(t, 2, repo.totalsCalls)
}

func TestSummaryWithoutCache(t *testing.T) {
	repo := &stubRepo{totalsErr: ErrSubscriptionNotFound}
	svc := NewService(repo, nil, nil)
	_, err := svc.Summary(context.Background(), uuid.New())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestPaidBeforeUsesIssuanceOrder(t *testing.T) {
	sub := uuid.New()
	repo := &stubRepo{
		// Sequence order disagrees with string order across the month boundary.
		seqs: map[string]int64{"2026-JAN-0001": 1, "2026-JAN-0002": 2, "2026-FEB-0003": 3},
		credits: []Entry{
			{SubscriptionID: sub, Purpose: PurposeMonthlyBill, VoucherSeq: 1, Credit: decimal.NewFromInt(400)},
			{SubscriptionID: sub, Purpose: PurposeSetupBill, VoucherSeq: 2, Credit: decimal.NewFromInt(5000)},
			{SubscriptionID: sub, Purpose: PurposeMonthlyBill, VoucherSeq: 3, Credit: decimal.NewFromInt(600)},
		},
	}
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	paid, err := svc.PaidBefore(ctx, sub, PurposeMonthlyBill, "2026-FEB-0003")
	require.NoError(t, err)
	require.True(t, paid.Equal(decimal.NewFromInt(400)), paid.String())

	paid, err = svc.PaidBefore(ctx, sub, PurposeMonthlyBill, "2026-JAN-0001")
	require.NoError(t, err)
	require.True(t, paid.IsZero())

	_, err = svc.PaidBefore(ctx, sub, PurposeMonthlyBill, "2026-DEC-9999")
	require.ErrorIs(t, err, ErrVoucherNotFound)

	_, err = svc.PaidBefore(ctx, sub, "Expense", "2026-JAN-0001")
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestMonthlyReceiptScopesPreviousPaidToMonth(t *testing.T) {
	sub := uuid.New()
	janBill, febBill, current := uuid.New(), uuid.New(), uuid.New()
	ref := func(id uuid.UUID) uuid.NullUUID { return uuid.NullUUID{UUID: id, Valid: true} }
	repo := &stubRepo{
		months: map[uuid.UUID]string{janBill: "2026-01", febBill: "2026-02", current: "2026-02"},
		credits: []Entry{
			{SubscriptionID: sub, Purpose: PurposeMonthlyBill, VoucherSeq: 2, Credit: decimal.NewFromInt(1000), MonthlyBillID: ref(janBill)},
			{SubscriptionID: sub, Purpose: PurposeMonthlyBill, VoucherSeq: 4, Credit: decimal.NewFromInt(400), MonthlyBillID: ref(febBill)},
			{SubscriptionID: sub, Purpose: PurposeMonthlyBill, VoucherSeq: 5, Credit: decimal.NewFromInt(600), MonthlyBillID: ref(current)},
		},
		monthly: map[uuid.UUID]BillCredit{
			current: {
				ReceiptParty: ReceiptParty{SubscriptionID: sub, CustomerName: "Rahim"},
				BillID:       current,
				MonthFor:     "2026-02",
				Charge:       decimal.NewFromInt(1000),
				PaidAmount:   decimal.NewFromInt(600),
				ReceivedBy:   "Alice",
				VoucherNo:    "2026-FEB-0005",
				VoucherSeq:   5,
				HasVoucher:   true,
			},
		},
	}
	svc := NewService(repo, nil, nil)

	r, err := svc.MonthlyReceipt(context.Background(), current)
	require.NoError(t, err)
	require.Equal(t, "Monthly service charge for February 2026", r.Description)
	require.Equal(t, "2026-02", repo.lastQuery.MonthFor)
	require.True(t, r.PreviousPaid.Equal(decimal.NewFromInt(400)), r.PreviousPaid.String())
	require.True(t, r.TotalPaid.Equal(decimal.NewFromInt(1000)))
	require.True(t, r.BalanceDue.IsZero())
	require.Equal(t, "Account Settled", r.StatusLabel)

	_, err = svc.MonthlyReceipt(context.Background(), uuid.New())
	require.ErrorIs(t, err, ErrBillNotFound)
}

func TestSetupReceiptBalance(t *testing.T) {
	sub, second := uuid.New(), uuid.New()
	repo := &stubRepo{
		credits: []Entry{
			{SubscriptionID: sub, Purpose: PurposeSetupBill, VoucherSeq: 1, Credit: decimal.NewFromInt(30000)},
		},
		setup: map[uuid.UUID]BillCredit{
			second: {
				ReceiptParty: ReceiptParty{SubscriptionID: sub, ServiceName: "Fiber 50"},
				BillID:       second,
				Charge:       decimal.NewFromInt(50000),
				PaidAmount:   decimal.NewFromInt(15000),
				VoucherSeq:   2,
				HasVoucher:   true,
			},
		},
	}
	r, err := NewService(repo, nil, nil).SetupReceipt(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, PurposeSetupBill, r.Purpose)
	require.Empty(t, repo.lastQuery.MonthFor)
	require.True(t, r.PreviousPaid.Equal(decimal.NewFromInt(30000)))
	require.True(t, r.BalanceDue.Equal(decimal.NewFromInt(5000)))
	require.Equal(t, StatusDue, r.Status)
}

func TestListEntriesRejectsUnknownSort(t *testing.T) {
	repo := &stubRepo{entries: []EntryRow{
		{Entry: Entry{Debit: decimal.NewFromInt(1000)}},
		{Entry: Entry{Credit: decimal.NewFromInt(250)}},
	}}
	svc := NewService(repo, nil, nil)

	_, err := svc.ListEntries(context.Background(), EntryFilter{Sort: "id; DROP TABLE customers"})
	require.ErrorIs(t, err, shared.ErrValidation)

	page, err := svc.ListEntries(context.Background(), EntryFilter{Sort: SortCustomer, Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	require.Equal(t, 2, page.Meta.Total)
	require.True(t, page.Summary.TotalBalance.Equal(decimal.NewFromInt(750)))
	require.Equal(t, StatusDue, page.Summary.Status)
	require.Equal(t, SortCustomer, repo.entryFilter.Sort)
}
