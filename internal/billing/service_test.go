package billing

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/nazrul121/customer-billing/internal/ledger"
	"github.com/nazrul121/customer-billing/internal/shared"
)

var today = time.Date(2026, time.February, 10, 11, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func newSubscription(initCost, mmc int64) Subscription {
	return Subscription{
		ID:         uuid.New(),
		CustomerID: uuid.New(),
		ServiceID:  uuid.New(),
		InitCost:   dec(initCost),
		MMC:        dec(mmc),
		StartDate:  time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC),
		ExpiryDate: time.Date(2026, time.November, 30, 0, 0, 0, 0, time.UTC),
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	recorded map[string]int
	rejected map[string]int
}

func (o *recordingObserver) PaymentRecorded(kind string, _ decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded[kind]++
}

func (o *recordingObserver) PaymentRejected(kind string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rejected[kind]++
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

func newTestService(repo RepositoryPort, opts ...Option) *Service {
	poster := ledger.NewPoster()
	poster.WithNow(func() time.Time { return today })
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	svc := NewService(repo, poster, opts...)
	svc.WithNow(func() time.Time { return today })
	return svc
}

func monthly(sub Subscription, month string, amount int64, by string) MonthlyPaymentInput {
	return MonthlyPaymentInput{SubscriptionID: sub.ID, Month: month, PaidAmount: dec(amount), PaidDate: today, CollectedBy: by}
}

func TestFirstMonthlyPaymentPostsDebitAndCredit(t *testing.T) {
	sub := newSubscription(50000, 1000)
	repo := newMemRepo(sub)
	svc := newTestService(repo)
	ctx := context.Background()

	bill, err := svc.RecordMonthlyPayment(ctx, monthly(sub, "2026-01", 1000, "Alice"))
	require.NoError(t, err)
	require.Equal(t, "2026-01", bill.MonthFor)
	require.True(t, bill.MMC.Equal(dec(1000)))

	due, err := svc.ComputeMonthlyDue(ctx, sub.ID, "2026-01")
	require.NoError(t, err)
	require.True(t, due.RemainingDue.IsZero())
	require.True(t, due.TotalPaidSoFar.Equal(dec(1000)))

	entries := repo.snapshot().entries
	require.Len(t, entries, 2)
	debit, credit := entries[0], entries[1]
	require.True(t, debit.Debit.Equal(dec(1000)))
	require.True(t, debit.Credit.IsZero())
	require.Equal(t, shared.SystemActor, debit.ReceivedBy)
	require.Equal(t, time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), debit.VoucherDate)
	require.True(t, credit.Credit.Equal(dec(1000)))
	require.Equal(t, "Alice", credit.ReceivedBy)
	for _, e := range entries {
		require.Equal(t, ledger.PurposeMonthlyBill, e.Purpose)
		require.Equal(t, bill.ID, e.MonthlyBillID.UUID)
		require.False(t, e.SetupBillID.Valid)
	}
	require.Equal(t, "2026-FEB-0001", debit.VoucherNo)
	require.Equal(t, "2026-FEB-0002", credit.VoucherNo)
}

func TestSettledMonthRejectsFurtherPayment(t *testing.T) {
	sub := newSubscription(0, 1000)
	repo := newMemRepo(sub)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.RecordMonthlyPayment(ctx, monthly(sub, "2026-01", 1000, "Alice"))
	require.NoError(t, err)
	before := repo.snapshot()

	_, err = svc.RecordMonthlyPayment(ctx, monthly(sub, "2026-01", 500, "Alice"))
	require.ErrorIs(t, err, ErrAlreadySettled)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Contains(t, err.Error(), "January 2026")
	require.Equal(t, "January 2026 is already fully paid.", shared.UserSafeMessage(err))

	after := repo.snapshot()
	require.Equal(t, before.seq, after.seq, "rejected payment must not consume a voucher")
	require.Len(t, after.monthly, 1)
}

func TestOverpaymentStatesMaximum(t *testing.T) {
	sub := newSubscription(0, 1000)
	repo := newMemRepo(sub)
	svc := newTestService(repo)

	_, err := svc.RecordMonthlyPayment(context.Background(), monthly(sub, "2026-02", 1200, "Bob"))
	require.ErrorIs(t, err, ErrExceedsRemaining)
	require.Contains(t, err.Error(), "Max allowed: 1000.00")
	require.Contains(t, err.Error(), "February 2026")

	state := repo.snapshot()
	require.Empty(t, state.monthly)
	require.Empty(t, state.entries)
	require.Zero(t, state.seq)
}

func TestPartialPaymentsDebitOnce(t *testing.T) {
	sub := newSubscription(0, 1000)
	repo := newMemRepo(sub)
	svc := newTestService(repo)
	ctx := context.Background()

	first, err := svc.RecordMonthlyPayment(ctx, monthly(sub, "2026-03", 400, "Alice"))
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	second, err := svc.RecordMonthlyPayment(ctx, monthly(sub, "2026-03", 600, "Bob"))
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	require.True(t, second.Entries[0].Credit.Equal(dec(600)))

	due, err := svc.ComputeMonthlyDue(ctx, sub.ID, "2026-03")
	require.NoError(t, err)
	require.True(t, due.RemainingDue.IsZero())

	var debits int
	for _, e := range repo.snapshot().entries {
		if e.Debit.IsPositive() {
			debits++
			require.Equal(t, shared.SystemActor, e.ReceivedBy)
		}
	}
	require.Equal(t, 1, debits)
}

func TestSetupPaymentCapsAtInitialCost(t *testing.T) {
	sub := newSubscription(50000, 1000)
	repo := newMemRepo(sub)
	svc := newTestService(repo)
	ctx := context.Background()

	bill, err := svc.RecordSetupPayment(ctx, SetupPaymentInput{SubscriptionID: sub.ID, PaidAmount: dec(30000), CollectedBy: "Alice"})
	require.NoError(t, err)
	require.Equal(t, today, bill.PaidDate)
	require.NotEmpty(t, bill.VoucherNo)

	_, err = svc.RecordSetupPayment(ctx, SetupPaymentInput{SubscriptionID: sub.ID, PaidAmount: dec(25000), CollectedBy: "Alice"})
	require.ErrorIs(t, err, ErrExceedsRemaining)
	require.Contains(t, err.Error(), "Max allowed: 20000.00")

	state := repo.snapshot()
	require.Len(t, state.setup, 1)
	require.Len(t, state.entries, 1, "setup payments post a credit only")
	entry := state.entries[0]
	require.True(t, entry.Debit.IsZero())
	require.True(t, entry.Credit.Equal(dec(30000)))
	require.Equal(t, ledger.PurposeSetupBill, entry.Purpose)
	require.Equal(t, bill.ID, entry.SetupBillID.UUID)

	history, err := svc.ListSetupBills(ctx, sub.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
}

func TestSetupPaymentRejectsNonPositive(t *testing.T) {
	sub := newSubscription(50000, 1000)
	svc := newTestService(newMemRepo(sub))
	for _, amount := range []int64{0, -5} {
		_, err := svc.RecordSetupPayment(context.Background(), SetupPaymentInput{SubscriptionID: sub.ID, PaidAmount: dec(amount), CollectedBy: "Alice"})
		require.ErrorIs(t, err, ErrExceedsRemaining)
	}
}

func TestMonthlyPaymentValidation(t *testing.T) {
	sub := newSubscription(0, 1000)
	svc := newTestService(newMemRepo(sub))
	ctx := context.Background()

	cases := []struct {
		name  string
		input MonthlyPaymentInput
		want  error
	}{
		{"zero amount", monthly(sub, "2026-01", 0, "Alice"), ErrInvalidPayment},
		{"bad month", monthly(sub, "2026-1", 100, "Alice"), ErrInvalidMonth},
		{"month thirteen", monthly(sub, "2026-13", 100, "Alice"), ErrInvalidMonth},
		{"no collector", monthly(sub, "2026-01", 100, " "), ErrInvalidPayment},
		{"unknown subscription", monthly(newSubscription(0, 1), "2026-01", 100, "Alice"), ErrSubscriptionNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.RecordMonthlyPayment(ctx, tc.input)
			require.ErrorIs(t, err, tc.want)
			require.NotErrorIs(t, err, ErrStorageFailure)
		})
	}

	_, err := svc.ComputeMonthlyDue(ctx, uuid.New(), "2026-01")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestStorageFailureRollsBackEverything(t *testing.T) {
	sub := newSubscription(0, 1000)
	repo := newMemRepo(sub)
	repo.failEntryAt = 2
	obs := &recordingObserver{recorded: map[string]int{}, rejected: map[string]int{}}
	inv := &countingInvalidator{}
	svc := newTestService(repo, WithObserver(obs), WithInvalidator(inv))

	_, err := svc.RecordMonthlyPayment(context.Background(), monthly(sub, "2026-01", 1000, "Alice"))
	require.ErrorIs(t, err, ErrStorageFailure)
	require.ErrorIs(t, err, errInjected)
	require.False(t, shared.IsClientError(err))

	state := repo.snapshot()
	require.Empty(t, state.monthly)
	require.Empty(t, state.entries)
	require.Zero(t, state.seq)
	require.Equal(t, 1, obs.rejected[KindMonthly])
	require.Zero(t, inv.calls)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	sub := newSubscription(0, 1000)
	repo := newMemRepo(sub)
	inv := &countingInvalidator{}
	svc := newTestService(repo, WithInvalidator(inv))
	ctx := context.Background()

	in := monthly(sub, "2026-01", 300, "Alice")
	in.IdempotencyKey = "req-1"
	_, err := svc.RecordMonthlyPayment(ctx, in)
	require.NoError(t, err)
	_, err = svc.RecordMonthlyPayment(ctx, in)
	require.ErrorIs(t, err, shared.ErrConflict)

	require.Len(t, repo.snapshot().monthly, 1)
	require.Equal(t, 1, inv.calls)
}

func TestComputeMonthlyDueIsIdempotent(t *testing.T) {
	sub := newSubscription(0, 1000)
	repo := newMemRepo(sub)
	svc := newTestService(repo)
	ctx := context.Background()
	_, err := svc.RecordMonthlyPayment(ctx, monthly(sub, "2026-04", 250, "Alice"))
	require.NoError(t, err)

	first, err := svc.ComputeMonthlyDue(ctx, sub.ID, "2026-04")
	require.NoError(t, err)
	for range 3 {
		again, err := svc.ComputeMonthlyDue(ctx, sub.ID, "2026-04")
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
	require.True(t, first.RemainingDue.Equal(dec(750)))

	other, err := svc.ComputeMonthlyDue(ctx, sub.ID, "2026-05")
	require.NoError(t, err)
	require.True(t, other.TotalPaidSoFar.IsZero())
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	subA := newSubscription(5000, 1000)
	subB := newSubscription(5000, 700)
	repo := newMemRepo(subA, subB)
	obs := &recordingObserver{recorded: map[string]int{}, rejected: map[string]int{}}
	svc := newTestService(repo, WithObserver(obs))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			_, _ = svc.RecordMonthlyPayment(ctx, monthly(subA, "2026-01", 300, "Alice"))
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.RecordMonthlyPayment(ctx, monthly(subB, "2026-01", 100, "Bob"))
		}()
		go func() {
			defer wg.Done()
			_, _ = svc.RecordSetupPayment(ctx, SetupPaymentInput{SubscriptionID: subA.ID, PaidAmount: dec(1500), CollectedBy: "Carol"})
		}()
	}
	wg.Wait()

	state := repo.snapshot()
	paidA, billsA := monthlyTotals(state, subA.ID, "2026-01")
	paidB, billsB := monthlyTotals(state, subB.ID, "2026-01")
	require.True(t, paidA.LessThanOrEqual(subA.MMC), paidA.String())
	require.True(t, paidB.Equal(subB.MMC), paidB.String())
	require.Equal(t, 3, billsA)
	require.Equal(t, 7, billsB)

	setupPaid := decimal.Zero
	for _, b := range state.setup {
		setupPaid = setupPaid.Add(b.PaidAmount)
	}
	require.True(t, setupPaid.LessThanOrEqual(subA.InitCost))
	require.Len(t, state.setup, 3)

	vouchers := map[string]struct{}{}
	mirrored := map[uuid.UUID]bool{}
	debits := map[uuid.UUID]int{}
	for _, e := range state.entries {
		_, dup := vouchers[e.VoucherNo]
		require.False(t, dup, "voucher %s issued twice", e.VoucherNo)
		vouchers[e.VoucherNo] = struct{}{}
		if e.MonthlyBillID.Valid {
			mirrored[e.MonthlyBillID.UUID] = true
		}
		if e.SetupBillID.Valid {
			mirrored[e.SetupBillID.UUID] = true
		}
		if e.Debit.IsPositive() {
			debits[e.SubscriptionID]++
		}
	}
	for _, b := range state.monthly {
		require.True(t, mirrored[b.ID], "monthly bill %s has no ledger entry", b.ID)
	}
	for _, b := range state.setup {
		require.True(t, mirrored[b.ID], "setup bill %s has no ledger entry", b.ID)
	}
	require.Equal(t, 1, debits[subA.ID])
	require.Equal(t, 1, debits[subB.ID])
	require.Equal(t, int64(len(state.entries)), state.seq)
	require.Equal(t, 13, obs.recorded[KindMonthly]+obs.recorded[KindSetup])
}

func TestMonthlyStatementFiltersByValidity(t *testing.T) {
	running := newSubscription(0, 1000)
	expired := newSubscription(0, 500)
	expired.ExpiryDate = time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC)
	repo := newMemRepo(running, expired)
	svc := newTestService(repo)
	ctx := context.Background()

	_, err := svc.RecordMonthlyPayment(ctx, monthly(running, "2026-01", 400, "Alice"))
	require.NoError(t, err)

	rows, meta, err := svc.MonthlyStatement(ctx, StatementFilter{Month: "2026-01", Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, 1, meta.Total)
	require.Equal(t, running.ID, rows[0].SubscriptionID)
	require.True(t, rows[0].RemainingDue.Equal(dec(600)))

	_, _, err = svc.MonthlyStatement(ctx, StatementFilter{Month: "January"})
	require.ErrorIs(t, err, ErrInvalidMonth)
}
