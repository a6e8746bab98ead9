// Package subscriptions binds customers to catalog services at agreed prices.
package subscriptions

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nazrul121/customer-billing/internal/billing"
	"github.com/nazrul121/customer-billing/internal/shared"
)

var (
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscriptions: subscription not found", shared.ErrNotFound)
	ErrOverlap              = fmt.Errorf("%w: subscriptions: overlapping subscription", shared.ErrConflict)
	ErrHasBills             = fmt.Errorf("%w: subscriptions: subscription has bills", shared.ErrConflict)
	ErrInvalidSubscription  = fmt.Errorf("%w: subscriptions: invalid subscription", shared.ErrValidation)
	ErrInvalidSort          = fmt.Errorf("%w: subscriptions: unsupported sort field", shared.ErrValidation)
	// ErrInitialPaymentFailed marks a subscription that was created but whose initial payment did not commit.
	ErrInitialPaymentFailed = errors.New("subscriptions: initial payment failed")
)

// Repeat flags.
const (
	RepeatYes = "YES"
	RepeatNo  = "NO"
)

// Subscription is a customer's agreement for one service.
type Subscription struct {
	ID            uuid.UUID       `json:"id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	ServiceID     uuid.UUID       `json:"service_id"`
	ServiceName   string          `json:"service_name"`
	ServiceType   string          `json:"service_type"`
	InitCost      decimal.Decimal `json:"init_cost"`
	MMC           decimal.Decimal `json:"mmc"`
	InitCostDis   decimal.Decimal `json:"init_cost_dis"`
	MMCDis        decimal.Decimal `json:"mmc_dis"`
	AgreementDate time.Time       `json:"agreement_date"`
	StartDate     time.Time       `json:"start_date"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	IsRepeat      string          `json:"is_repeat"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Input is the JSON body for create and update. InitPayment is honoured on create only.
type Input struct {
	CustomerID    string          `json:"customer_id" validate:"required,uuid"`
	ServiceID     string          `json:"service_id" validate:"required,uuid"`
	InitCost      decimal.Decimal `json:"init_cost"`
	MMC           decimal.Decimal `json:"mmc"`
	AgreementDate string          `json:"agreement_date" validate:"required,datetime=2006-01-02"`
	StartDate     string          `json:"start_date" validate:"required,datetime=2006-01-02"`
	ExpiryDate    string          `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	IsRepeat      string          `json:"is_repeat" validate:"omitempty,oneof=YES NO"`
	InitPayment   decimal.Decimal `json:"init_payment"`
}

// BillTotals summarises the payments already recorded against a subscription.
// MaxMonth is the month with the highest paid total, MaxMonthPaid that total.
type BillTotals struct {
	SetupPaid    decimal.Decimal
	MaxMonth     string
	MaxMonthPaid decimal.Decimal
	Count        int
}

// Created is the result of a create, with the initial setup bill when one was paid.
type Created struct {
	Subscription   Subscription       `json:"subscription"`
	InitialPayment *billing.SetupBill `json:"initial_payment,omitempty"`
	PaymentError   string             `json:"payment_error,omitempty"`
}

// SortField is an allow-listed listing order.
type SortField string

const (
	SortCreatedAt  SortField = "createdAt"
	SortStartDate  SortField = "startDate"
	SortExpiryDate SortField = "expiryDate"
	SortCustomer   SortField = "customer"
	SortService    SortField = "service"
)

var sortColumns = map[SortField]string{
	SortCreatedAt:  "cs.created_at",
	SortStartDate:  "cs.start_date",
	SortExpiryDate: "cs.expiry_date",
	SortCustomer:   "c.name",
	SortService:    "s.name",
}

// ParseSortField maps a client sort id onto the allow-list. Empty means creation time.
func ParseSortField(raw string) (SortField, bool) {
	if raw == "" {
		return SortCreatedAt, true
	}
	f := SortField(raw)
	_, ok := sortColumns[f]
	return f, ok
}

// ListFilter narrows subscription listings.
type ListFilter struct {
	CustomerID uuid.NullUUID
	Search     string
	Sort       SortField
	Desc       bool
	Page       int
	Limit      int
}
