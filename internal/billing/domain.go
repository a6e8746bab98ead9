package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/ledger"
)

// Subscription is the billing view of a customer-service contract.
type Subscription struct {
	ID         uuid.UUID
	CustomerID uuid.UUID
	ServiceID  uuid.UUID
	InitCost   decimal.Decimal
	MMC        decimal.Decimal
	StartDate  time.Time
	ExpiryDate time.Time
}

// MonthlyDue answers how much of one month is still owed.
type MonthlyDue struct {
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Month          string          `json:"month"`
	MMC            decimal.Decimal `json:"mmc"`
	TotalPaidSoFar decimal.Decimal `json:"total_paid_so_far"`
	RemainingDue   decimal.Decimal `json:"remaining_due"`
}

func newMonthlyDue(sub Subscription, month string, paid decimal.Decimal) MonthlyDue {
	return MonthlyDue{
		SubscriptionID: sub.ID,
		Month:          month,
		MMC:            sub.MMC,
		TotalPaidSoFar: paid,
		RemainingDue:   sub.MMC.Sub(paid),
	}
}

// MonthlyBill is one payment against a month's recurring charge.
type MonthlyBill struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	MonthFor       string          `json:"month_for"`
	MMC            decimal.Decimal `json:"mmc"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaidDate       time.Time       `json:"paid_date"`
	ReceivedBy     string          `json:"received_by"`
	CreatedAt      time.Time       `json:"created_at"`
	Entries        []ledger.Entry  `json:"ledger_entries,omitempty"`
}

// SetupBill is one payment against a subscription's initial cost.
type SetupBill struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaidDate       time.Time       `json:"paid_date"`
	ReceivedBy     string          `json:"received_by"`
	CreatedAt      time.Time       `json:"created_at"`
	VoucherNo      string          `json:"voucher_no,omitempty"`
	Entries        []ledger.Entry  `json:"ledger_entries,omitempty"`
}

// MonthlyPaymentInput requests a payment against one month.
type MonthlyPaymentInput struct {
	SubscriptionID uuid.UUID
	Month          string
	PaidAmount     decimal.Decimal
	PaidDate       time.Time
	CollectedBy    string
	IdempotencyKey string
}

// SetupPaymentInput requests a payment against the initial cost.
type SetupPaymentInput struct {
	SubscriptionID uuid.UUID
	PaidAmount     decimal.Decimal
	PaidDate       time.Time
	CollectedBy    string
	IdempotencyKey string
}

// StatementFilter selects the subscriptions billed in a month.
type StatementFilter struct {
	Month  string
	Search string
	Page   int
	Limit  int
}

// StatementRow is one subscription's position for the statement month.
type StatementRow struct {
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	CustomerName   string          `json:"customer_name"`
	CustomerCode   string          `json:"customer_code"`
	CustomerPhone  string          `json:"customer_phone"`
	ServiceName    string          `json:"service_name"`
	StartDate      time.Time       `json:"start_date"`
	ExpiryDate     time.Time       `json:"expiry_date"`
	MMC            decimal.Decimal `json:"mmc"`
	TotalPaidSoFar decimal.Decimal `json:"total_paid_so_far"`
	RemainingDue   decimal.Decimal `json:"remaining_due"`
	Bills          int             `json:"bills"`
}
