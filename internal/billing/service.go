package billing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/ledger"
	"github.com/nazrul121/customer-billing/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetSubscription(ctx context.Context, id uuid.UUID) (Subscription, error)
	MonthlyPaid(ctx context.Context, subscriptionID uuid.UUID, month string) (decimal.Decimal, error)
	MonthlyStatement(ctx context.Context, filter StatementFilter, start, end time.Time) ([]StatementRow, int, error)
	ListSetupBills(ctx context.Context, subscriptionID uuid.UUID) ([]SetupBill, error)
}

// TxRepository exposes the writes of one payment transaction. It doubles as
// the ledger store so entries commit with their bill row.
type TxRepository interface {
	ledger.Store
	ClaimIdempotencyKey(ctx context.Context, key string) error
	LockSubscription(ctx context.Context, id uuid.UUID) (Subscription, error)
	MonthlyTotals(ctx context.Context, subscriptionID uuid.UUID, month string) (decimal.Decimal, int, error)
	SetupPaid(ctx context.Context, subscriptionID uuid.UUID) (decimal.Decimal, error)
	InsertMonthlyBill(ctx context.Context, bill MonthlyBill) (MonthlyBill, error)
	InsertSetupBill(ctx context.Context, bill SetupBill) (SetupBill, error)
}

// AuditPort records billing events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Observer is told about payment outcomes after the transaction settles.
type Observer interface {
	PaymentRecorded(kind string, amount decimal.Decimal)
	PaymentRejected(kind string, err error)
}

// Invalidator drops ledger read models after a commit.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

// Payment kinds reported to observers.
const (
	KindMonthly = "monthly"
	KindSetup   = "setup"
)

// Service computes dues and records payments together with their ledger mirror.
type Service struct {
	repo        RepositoryPort
	poster      *ledger.Poster
	audit       AuditPort
	observer    Observer
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithAudit records every committed payment.
func WithAudit(a AuditPort) Option { return func(s *Service) { s.audit = a } }

// WithObserver reports payment outcomes.
func WithObserver(o Observer) Option { return func(s *Service) { s.observer = o } }

// WithInvalidator refreshes ledger read models after commits.
func WithInvalidator(i Invalidator) Option { return func(s *Service) { s.invalidator = i } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService constructs the billing engine.
func NewService(repo RepositoryPort, poster *ledger.Poster, opts ...Option) *Service {
	if poster == nil {
		poster = ledger.NewPoster()
	}
	s := &Service{repo: repo, poster: poster, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithNow overrides the clock used for default paid dates.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ComputeMonthlyDue reports mmc, paid so far and remaining due for a month.
func (s *Service) ComputeMonthlyDue(ctx context.Context, subscriptionID uuid.UUID, month string) (MonthlyDue, error) {
	if _, err := ParseMonth(month); err != nil {
		return MonthlyDue{}, err
	}
	sub, err := s.repo.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return MonthlyDue{}, storageFailure(err)
	}
	paid, err := s.repo.MonthlyPaid(ctx, subscriptionID, month)
	if err != nil {
		return MonthlyDue{}, storageFailure(err)
	}
	return newMonthlyDue(sub, month, paid), nil
}

// RecordMonthlyPayment applies a payment to one month. The first payment of a
// month also raises the month's charge as a SYSTEM debit.
func (s *Service) RecordMonthlyPayment(ctx context.Context, input MonthlyPaymentInput) (MonthlyBill, error) {
	firstDay, err := s.validateMonthly(&input)
	if err != nil {
		s.rejected(KindMonthly, err)
		return MonthlyBill{}, err
	}
	var bill MonthlyBill
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, input.IdempotencyKey); err != nil {
				return err
			}
		}
		sub, err := tx.LockSubscription(ctx, input.SubscriptionID)
		if err != nil {
			return err
		}
		paid, bills, err := tx.MonthlyTotals(ctx, sub.ID, input.Month)
		if err != nil {
			return err
		}
		remaining := sub.MMC.Sub(paid)
		if !remaining.IsPositive() {
			return shared.NewUserError(ErrAlreadySettled, "%s is already fully paid.", MonthName(input.Month))
		}
		if input.PaidAmount.GreaterThan(remaining) {
			return shared.NewUserError(ErrExceedsRemaining, "Payment exceeds remaining due for %s. Max allowed: %s",
				MonthName(input.Month), remaining.StringFixed(2))
		}

		inserted, err := tx.InsertMonthlyBill(ctx, MonthlyBill{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			MonthFor:       input.Month,
			MMC:            sub.MMC,
			PaidAmount:     input.PaidAmount,
			PaidDate:       input.PaidDate,
			ReceivedBy:     input.CollectedBy,
		})
		if err != nil {
			return err
		}
		ref := uuid.NullUUID{UUID: inserted.ID, Valid: true}
		if bills == 0 {
			debit, err := s.poster.PostEntry(ctx, tx, ledger.PostingInput{
				Purpose:        ledger.PurposeMonthlyBill,
				VoucherDate:    firstDay,
				SubscriptionID: sub.ID,
				Debit:          sub.MMC,
				ReceivedBy:     shared.SystemActor,
				MonthlyBillID:  ref,
			})
			if err != nil {
				return err
			}
			inserted.Entries = append(inserted.Entries, debit)
		}
		credit, err := s.poster.PostEntry(ctx, tx, ledger.PostingInput{
			Purpose:        ledger.PurposeMonthlyBill,
			VoucherDate:    input.PaidDate,
			SubscriptionID: sub.ID,
			Credit:         input.PaidAmount,
			ReceivedBy:     input.CollectedBy,
			MonthlyBillID:  ref,
		})
		if err != nil {
			return err
		}
		inserted.Entries = append(inserted.Entries, credit)
		bill = inserted
		return nil
	})
	if err != nil {
		err = storageFailure(err)
		s.rejected(KindMonthly, err)
		return MonthlyBill{}, err
	}
	s.committed(ctx, KindMonthly, input.CollectedBy, bill.ID, bill.SubscriptionID, input.PaidAmount, map[string]any{
		"month_for": bill.MonthFor,
		"vouchers":  voucherNos(bill.Entries),
	})
	return bill, nil
}

// RecordSetupPayment applies a payment to the subscription's initial cost.
// Setup charges are implicit in the contract, so only the credit is posted.
func (s *Service) RecordSetupPayment(ctx context.Context, input SetupPaymentInput) (SetupBill, error) {
	if err := s.validateSetup(&input); err != nil {
		s.rejected(KindSetup, err)
		return SetupBill{}, err
	}
	var bill SetupBill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if input.IdempotencyKey != "" {
			if err := tx.ClaimIdempotencyKey(ctx, input.IdempotencyKey); err != nil {
				return err
			}
		}
		sub, err := tx.LockSubscription(ctx, input.SubscriptionID)
		if err != nil {
			return err
		}
		paid, err := tx.SetupPaid(ctx, sub.ID)
		if err != nil {
			return err
		}
		remaining := sub.InitCost.Sub(paid)
		if !input.PaidAmount.IsPositive() || input.PaidAmount.GreaterThan(remaining) {
			return shared.NewUserError(ErrExceedsRemaining, "Payment exceeds remaining setup due. Max allowed: %s",
				decimal.Max(remaining, decimal.Zero).StringFixed(2))
		}
		inserted, err := tx.InsertSetupBill(ctx, SetupBill{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			PaidAmount:     input.PaidAmount,
			PaidDate:       input.PaidDate,
			ReceivedBy:     input.CollectedBy,
		})
		if err != nil {
			return err
		}
		credit, err := s.poster.PostEntry(ctx, tx, ledger.PostingInput{
			Purpose:        ledger.PurposeSetupBill,
			VoucherDate:    input.PaidDate,
			SubscriptionID: sub.ID,
			Credit:         input.PaidAmount,
			ReceivedBy:     input.CollectedBy,
			SetupBillID:    uuid.NullUUID{UUID: inserted.ID, Valid: true},
		})
		if err != nil {
			return err
		}
		inserted.VoucherNo = credit.VoucherNo
		inserted.Entries = []ledger.Entry{credit}
		bill = inserted
		return nil
	})
	if err != nil {
		err = storageFailure(err)
		s.rejected(KindSetup, err)
		return SetupBill{}, err
	}
	s.committed(ctx, KindSetup, input.CollectedBy, bill.ID, bill.SubscriptionID, input.PaidAmount, map[string]any{
		"voucher_no": bill.VoucherNo,
	})
	return bill, nil
}

// MonthlyStatement lists subscriptions running in the month with their position.
func (s *Service) MonthlyStatement(ctx context.Context, filter StatementFilter) ([]StatementRow, shared.Pagination, error) {
	start, end, err := MonthBounds(filter.Month)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	rows, total, err := s.repo.MonthlyStatement(ctx, filter, start, end)
	if err != nil {
		return nil, shared.Pagination{}, storageFailure(err)
	}
	if rows == nil {
		rows = []StatementRow{}
	}
	return rows, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// ListSetupBills returns the setup payment history of a subscription.
func (s *Service) ListSetupBills(ctx context.Context, subscriptionID uuid.UUID) ([]SetupBill, error) {
	if _, err := s.repo.GetSubscription(ctx, subscriptionID); err != nil {
		return nil, storageFailure(err)
	}
	bills, err := s.repo.ListSetupBills(ctx, subscriptionID)
	if err != nil {
		return nil, storageFailure(err)
	}
	if bills == nil {
		bills = []SetupBill{}
	}
	return bills, nil
}

func (s *Service) validateMonthly(in *MonthlyPaymentInput) (time.Time, error) {
	firstDay, err := ParseMonth(in.Month)
	if err != nil {
		return time.Time{}, err
	}
	if in.SubscriptionID == uuid.Nil {
		return time.Time{}, shared.NewUserError(ErrInvalidPayment, "Subscription is required.")
	}
	if !in.PaidAmount.IsPositive() {
		return time.Time{}, shared.NewUserError(ErrInvalidPayment, "Paid amount must be greater than zero.")
	}
	if err := s.normalizeCommon(&in.PaidDate, &in.CollectedBy, &in.IdempotencyKey); err != nil {
		return time.Time{}, err
	}
	return firstDay, nil
}

func (s *Service) validateSetup(in *SetupPaymentInput) error {
	if in.SubscriptionID == uuid.Nil {
		return shared.NewUserError(ErrInvalidPayment, "Subscription is required.")
	}
	return s.normalizeCommon(&in.PaidDate, &in.CollectedBy, &in.IdempotencyKey)
}

func (s *Service) normalizeCommon(paidDate *time.Time, collector, key *string) error {
	*collector = strings.TrimSpace(*collector)
	if *collector == "" {
		return shared.NewUserError(ErrInvalidPayment, "Collector identity is required.")
	}
	if paidDate.IsZero() {
		*paidDate = s.now()
	}
	*key = strings.TrimSpace(*key)
	return nil
}

func (s *Service) rejected(kind string, err error) {
	if s.observer != nil {
		s.observer.PaymentRejected(kind, err)
	}
	if !shared.IsClientError(err) {
		s.logger.Error("billing payment failed", slog.String("kind", kind), slog.Any("error", err))
	}
}

func (s *Service) committed(ctx context.Context, kind, actor string, billID, subID uuid.UUID, amount decimal.Decimal, meta map[string]any) {
	if s.observer != nil {
		s.observer.PaymentRecorded(kind, amount)
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx)
	}
	s.logger.Info("billing payment recorded",
		slog.String("kind", kind),
		slog.String("subscription_id", subID.String()),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("received_by", actor))
	if s.audit == nil {
		return
	}
	meta["subscription_id"] = subID.String()
	meta["amount"] = amount.StringFixed(2)
	if err := s.audit.Record(ctx, shared.AuditLog{
		Actor:    actor,
		Action:   fmt.Sprintf("billing.%s_payment", kind),
		Entity:   kind + "_bill",
		EntityID: billID.String(),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("billing audit", slog.Any("error", err))
	}
}

func voucherNos(entries []ledger.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.VoucherNo)
	}
	return out
}
