package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is the write handle the poster appends through. Implementations are
// bound to the caller's transaction so the voucher counter increment and the
// insert commit or roll back together with the originating bill row.
type Store interface {
	NextVoucherSeq(ctx context.Context) (int64, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
}

// Poster mints vouchers and appends ledger entries.
type Poster struct {
	now func() time.Time
}

// NewPoster constructs a poster using the wall clock.
func NewPoster() *Poster {
	return &Poster{now: time.Now}
}

// WithNow overrides the clock for testing.
func (p *Poster) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// NextVoucherNumber reserves the next voucher in store. Each call consumes
// one sequence value.
func (p *Poster) NextVoucherNumber(ctx context.Context, store Store) (Voucher, error) {
	seq, err := store.NextVoucherSeq(ctx)
	if err != nil {
		return Voucher{}, fmt.Errorf("ledger: next voucher: %w", err)
	}
	return Voucher{No: FormatVoucher(p.now(), seq), Seq: seq}, nil
}

// PostEntry validates input, mints a voucher and appends the entry.
func (p *Poster) PostEntry(ctx context.Context, store Store, input PostingInput) (Entry, error) {
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	voucher, err := p.NextVoucherNumber(ctx, store)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		ID:             uuid.New(),
		SubscriptionID: input.SubscriptionID,
		Purpose:        input.Purpose,
		VoucherNo:      voucher.No,
		VoucherSeq:     voucher.Seq,
		VoucherDate:    dateOnly(input.VoucherDate),
		Debit:          input.Debit,
		Credit:         input.Credit,
		ReceivedBy:     strings.TrimSpace(input.ReceivedBy),
		SetupBillID:    input.SetupBillID,
		MonthlyBillID:  input.MonthlyBillID,
	}
	inserted, err := store.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: insert entry %s: %w", voucher.No, err)
	}
	return inserted, nil
}

// Validate performs structural checks on a posting.
func (in PostingInput) Validate() error {
	if !in.Purpose.Valid() {
		return fmt.Errorf("%w: unknown purpose %q", ErrInvalidPosting, in.Purpose)
	}
	if in.SubscriptionID == uuid.Nil {
		return fmt.Errorf("%w: subscription required", ErrInvalidPosting)
	}
	if in.VoucherDate.IsZero() {
		return fmt.Errorf("%w: voucher date required", ErrInvalidPosting)
	}
	if in.Debit.IsNegative() || in.Credit.IsNegative() {
		return fmt.Errorf("%w: amounts must be non-negative", ErrInvalidPosting)
	}
	if in.Debit.IsZero() && in.Credit.IsZero() {
		return fmt.Errorf("%w: debit or credit required", ErrInvalidPosting)
	}
	if strings.TrimSpace(in.ReceivedBy) == "" {
		return fmt.Errorf("%w: received by required", ErrInvalidPosting)
	}
	if in.SetupBillID.Valid == in.MonthlyBillID.Valid {
		return fmt.Errorf("%w: exactly one originating bill required", ErrInvalidPosting)
	}
	if in.Purpose == PurposeMonthlyBill && !in.MonthlyBillID.Valid {
		return fmt.Errorf("%w: monthly posting needs a monthly bill", ErrInvalidPosting)
	}
	if in.Purpose == PurposeSetupBill && !in.SetupBillID.Valid {
		return fmt.Errorf("%w: setup posting needs a setup bill", ErrInvalidPosting)
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
