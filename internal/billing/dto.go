package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/shared"
)

// MonthlyPaymentRequest is the JSON body of a monthly payment.
type MonthlyPaymentRequest struct {
	SubscriptionID string          `json:"subscription_id" validate:"required,uuid"`
	Month          string          `json:"month" validate:"required,len=7"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaidDate       string          `json:"paid_date" validate:"omitempty,datetime=2006-01-02"`
}

// SetupPaymentRequest is the JSON body of a setup payment.
type SetupPaymentRequest struct {
	SubscriptionID string          `json:"subscription_id" validate:"required,uuid"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	PaidDate       string          `json:"paid_date" validate:"omitempty,datetime=2006-01-02"`
}

func parseRequestDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, shared.NewUserError(ErrInvalidPayment, "Paid date %q must be YYYY-MM-DD.", raw)
	}
	return t, nil
}

func (r MonthlyPaymentRequest) toInput(collector, key string) (MonthlyPaymentInput, error) {
	paidDate, err := parseRequestDate(r.PaidDate)
	if err != nil {
		return MonthlyPaymentInput{}, err
	}
	return MonthlyPaymentInput{
		SubscriptionID: uuid.MustParse(r.SubscriptionID),
		Month:          r.Month,
		PaidAmount:     r.PaidAmount,
		PaidDate:       paidDate,
		CollectedBy:    collector,
		IdempotencyKey: key,
	}, nil
}

func (r SetupPaymentRequest) toInput(collector, key string) (SetupPaymentInput, error) {
	paidDate, err := parseRequestDate(r.PaidDate)
	if err != nil {
		return SetupPaymentInput{}, err
	}
	return SetupPaymentInput{
		SubscriptionID: uuid.MustParse(r.SubscriptionID),
		PaidAmount:     r.PaidAmount,
		PaidDate:       paidDate,
		CollectedBy:    collector,
		IdempotencyKey: key,
	}, nil
}
