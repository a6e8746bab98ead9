package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/shared"
)

// AccountPage is one page of the ledger overview.
type AccountPage struct {
	Data []AccountRow      `json:"data"`
	Meta shared.Pagination `json:"meta"`
}

// EntryPage is one page of entries plus totals over every match.
type EntryPage struct {
	Data    []EntryRow        `json:"data"`
	Meta    shared.Pagination `json:"meta"`
	Summary Totals            `json:"summary"`
}

// Service exposes the read side of the ledger.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService constructs the ledger read service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Summary returns billed, paid, balance and status for one subscription.
func (s *Service) Summary(ctx context.Context, subscriptionID uuid.UUID) (Summary, error) {
	key, err := s.cache.Key(ctx, "summary", subscriptionID.String())
	if err != nil {
		s.logger.Warn("ledger cache key", slog.Any("error", err))
		return s.loadSummary(ctx, subscriptionID)
	}
	var out Summary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.loadSummary(ctx, subscriptionID)
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *Service) loadSummary(ctx context.Context, subscriptionID uuid.UUID) (Summary, error) {
	billed, paid, err := s.repo.SubscriptionTotals(ctx, subscriptionID)
	if err != nil {
		return Summary{}, err
	}
	return NewSummary(subscriptionID, billed, paid), nil
}

// Invalidate drops cached read models after a posting commits.
func (s *Service) Invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("ledger cache bump", slog.Any("error", err))
	}
}

// PaidBefore sums credits of purpose on the subscription issued before voucherNo.
func (s *Service) PaidBefore(ctx context.Context, subscriptionID uuid.UUID, purpose Purpose, voucherNo string) (decimal.Decimal, error) {
	if !purpose.Valid() {
		return decimal.Zero, fmt.Errorf("%w: unknown purpose %q", shared.ErrValidation, purpose)
	}
	seq, err := s.repo.VoucherSeq(ctx, strings.TrimSpace(voucherNo))
	if err != nil {
		return decimal.Zero, err
	}
	return s.repo.CreditBefore(ctx, CreditQuery{SubscriptionID: subscriptionID, Purpose: purpose, BeforeSeq: seq})
}

// ListAccounts pages through per-subscription ledger totals.
func (s *Service) ListAccounts(ctx context.Context, filter AccountFilter) (AccountPage, error) {
	rows, total, err := s.repo.ListAccounts(ctx, filter)
	if err != nil {
		return AccountPage{}, err
	}
	if rows == nil {
		rows = []AccountRow{}
	}
	return AccountPage{Data: rows, Meta: shared.NewPagination(filter.Page, filter.Limit, total)}, nil
}

// ListEntries pages through entries and totals the whole matching set.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) (EntryPage, error) {
	if _, ok := sortColumns[filter.Sort]; !ok {
		return EntryPage{}, shared.NewUserError(ErrInvalidSort, "Cannot sort ledger entries by %q.", filter.Sort)
	}
	rows, total, totals, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return EntryPage{}, err
	}
	if rows == nil {
		rows = []EntryRow{}
	}
	return EntryPage{Data: rows, Meta: shared.NewPagination(filter.Page, filter.Limit, total), Summary: totals}, nil
}

// MonthlyReceipt reconstructs the receipt of one monthly payment. Previously
// paid covers earlier credits for the same month only.
func (s *Service) MonthlyReceipt(ctx context.Context, billID uuid.UUID) (Receipt, error) {
	bc, err := s.repo.MonthlyBillCredit(ctx, billID)
	if err != nil {
		return Receipt{}, err
	}
	desc := "Monthly service charge for " + bc.MonthFor
	if t, err := time.Parse("2006-01", bc.MonthFor); err == nil {
		desc = "Monthly service charge for " + t.Format("January 2006")
	}
	return s.receipt(ctx, PurposeMonthlyBill, bc, desc)
}

// SetupReceipt reconstructs the receipt of one setup payment.
func (s *Service) SetupReceipt(ctx context.Context, billID uuid.UUID) (Receipt, error) {
	bc, err := s.repo.SetupBillCredit(ctx, billID)
	if err != nil {
		return Receipt{}, err
	}
	return s.receipt(ctx, PurposeSetupBill, bc, "Initial setup charge for "+bc.ServiceName)
}

func (s *Service) receipt(ctx context.Context, purpose Purpose, bc BillCredit, desc string) (Receipt, error) {
	previous := decimal.Zero
	if bc.HasVoucher {
		var err error
		previous, err = s.repo.CreditBefore(ctx, CreditQuery{
			SubscriptionID: bc.SubscriptionID,
			Purpose:        purpose,
			BeforeSeq:      bc.VoucherSeq,
			MonthFor:       bc.MonthFor,
		})
		if err != nil {
			return Receipt{}, err
		}
	} else {
		s.logger.Warn("bill without ledger credit", slog.String("bill_id", bc.BillID.String()), slog.String("purpose", string(purpose)))
	}
	totalPaid := previous.Add(bc.PaidAmount)
	balance := bc.Charge.Sub(totalPaid)
	status := StatusFor(balance)
	return Receipt{
		ReceiptParty:   bc.ReceiptParty,
		Purpose:        purpose,
		BillID:         bc.BillID,
		MonthFor:       bc.MonthFor,
		Description:    desc,
		VoucherNo:      bc.VoucherNo,
		PaidDate:       bc.PaidDate,
		ReceivedBy:     bc.ReceivedBy,
		Charge:         bc.Charge,
		CurrentPayment: bc.PaidAmount,
		PreviousPaid:   previous,
		TotalPaid:      totalPaid,
		BalanceDue:     balance,
		Status:         status,
		StatusLabel:    status.Label(),
	}, nil
}
