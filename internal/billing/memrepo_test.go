package billing

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/ledger"
	"github.com/nazrul121/customer-billing/internal/shared"
)

var errInjected = errors.New("injected storage failure")

type memState struct {
	subs    map[uuid.UUID]Subscription
	monthly []MonthlyBill
	setup   []SetupBill
	entries []ledger.Entry
	seq     int64
	keys    map[string]struct{}
}

func (s memState) clone() memState {
	return memState{
		subs:    maps.Clone(s.subs),
		monthly: slices.Clone(s.monthly),
		setup:   slices.Clone(s.setup),
		entries: slices.Clone(s.entries),
		seq:     s.seq,
		keys:    maps.Clone(s.keys),
	}
}

// memRepo serializes transactions on one mutex and commits a staged copy of
// the state only when the callback succeeds.
type memRepo struct {
	mu          sync.Mutex
	state       memState
	failEntryAt int
}

func newMemRepo(subs ...Subscription) *memRepo {
	r := &memRepo{state: memState{subs: map[uuid.UUID]Subscription{}, keys: map[string]struct{}{}}}
	for _, s := range subs {
		r.state.subs[s.ID] = s
	}
	return r
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staged := r.state.clone()
	tx := &memTx{state: &staged, failEntryAt: r.failEntryAt}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.state = staged
	return nil
}

func (r *memRepo) snapshot() memState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

func (r *memRepo) GetSubscription(_ context.Context, id uuid.UUID) (Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.state.subs[id]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (r *memRepo) MonthlyPaid(_ context.Context, id uuid.UUID, month string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	paid, _ := monthlyTotals(r.state, id, month)
	return paid, nil
}

func (r *memRepo) MonthlyStatement(_ context.Context, f StatementFilter, start, end time.Time) ([]StatementRow, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []StatementRow
	for _, sub := range r.state.subs {
		if sub.StartDate.After(end) || sub.ExpiryDate.Before(start) {
			continue
		}
		paid, bills := monthlyTotals(r.state, sub.ID, f.Month)
		out = append(out, StatementRow{SubscriptionID: sub.ID, MMC: sub.MMC, TotalPaidSoFar: paid, RemainingDue: sub.MMC.Sub(paid), Bills: bills})
	}
	return out, len(out), nil
}

func (r *memRepo) ListSetupBills(_ context.Context, id uuid.UUID) ([]SetupBill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []SetupBill
	for _, b := range r.state.setup {
		if b.SubscriptionID == id {
			out = append(out, b)
		}
	}
	return out, nil
}

func monthlyTotals(s memState, id uuid.UUID, month string) (decimal.Decimal, int) {
	paid, n := decimal.Zero, 0
	for _, b := range s.monthly {
		if b.SubscriptionID == id && b.MonthFor == month {
			paid = paid.Add(b.PaidAmount)
			n++
		}
	}
	return paid, n
}

type memTx struct {
	state       *memState
	failEntryAt int
}

func (t *memTx) NextVoucherSeq(context.Context) (int64, error) {
	t.state.seq++
	return t.state.seq, nil
}

func (t *memTx) InsertEntry(_ context.Context, e ledger.Entry) (ledger.Entry, error) {
	if t.failEntryAt > 0 && len(t.state.entries)+1 == t.failEntryAt {
		return ledger.Entry{}, errInjected
	}
	for _, existing := range t.state.entries {
		if existing.VoucherNo == e.VoucherNo {
			return ledger.Entry{}, errors.New("duplicate voucher_no")
		}
	}
	e.CreatedAt = time.Now()
	t.state.entries = append(t.state.entries, e)
	return e, nil
}

func (t *memTx) ClaimIdempotencyKey(_ context.Context, key string) error {
	if _, ok := t.state.keys[key]; ok {
		return shared.ErrIdempotencyConflict
	}
	t.state.keys[key] = struct{}{}
	return nil
}

func (t *memTx) LockSubscription(_ context.Context, id uuid.UUID) (Subscription, error) {
	sub, ok := t.state.subs[id]
	if !ok {
		return Subscription{}, ErrSubscriptionNotFound
	}
	return sub, nil
}

func (t *memTx) MonthlyTotals(_ context.Context, id uuid.UUID, month string) (decimal.Decimal, int, error) {
	paid, n := monthlyTotals(*t.state, id, month)
	return paid, n, nil
}

func (t *memTx) SetupPaid(_ context.Context, id uuid.UUID) (decimal.Decimal, error) {
	paid := decimal.Zero
	for _, b := range t.state.setup {
		if b.SubscriptionID == id {
			paid = paid.Add(b.PaidAmount)
		}
	}
	return paid, nil
}

func (t *memTx) InsertMonthlyBill(_ context.Context, b MonthlyBill) (MonthlyBill, error) {
	b.CreatedAt = time.Now()
	t.state.monthly = append(t.state.monthly, b)
	return b, nil
}

func (t *memTx) InsertSetupBill(_ context.Context, b SetupBill) (SetupBill, error) {
	b.CreatedAt = time.Now()
	t.state.setup = append(t.state.setup, b)
	return b, nil
}
