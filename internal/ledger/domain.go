package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Purpose tags the business event that produced an entry.
type Purpose string

const (
	PurposeMonthlyBill Purpose = "MonthlyBill"
	PurposeSetupBill   Purpose = "SetupBill"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	return p == PurposeMonthlyBill || p == PurposeSetupBill
}

// Status is the settlement state derived from a balance.
type Status string

const (
	StatusSettled Status = "Settled"
	StatusDue     Status = "Due"
)

// StatusFor classifies a balance. Zero and negative balances are settled.
func StatusFor(balance decimal.Decimal) Status {
	if balance.IsPositive() {
		return StatusDue
	}
	return StatusSettled
}

// Label returns the receipt wording for the status.
func (s Status) Label() string {
	if s == StatusDue {
		return "Payment Pending"
	}
	return "Account Settled"
}

// Voucher identifies one ledger entry for humans (No) and for ordering (Seq).
type Voucher struct {
	No  string `json:"voucher_no"`
	Seq int64  `json:"voucher_seq"`
}

// Entry is one immutable row of the general ledger.
type Entry struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	Purpose        Purpose         `json:"purpose"`
	VoucherNo      string          `json:"voucher_no"`
	VoucherSeq     int64           `json:"voucher_seq"`
	VoucherDate    time.Time       `json:"voucher_date"`
	Debit          decimal.Decimal `json:"debit_amount"`
	Credit         decimal.Decimal `json:"credit_amount"`
	ReceivedBy     string          `json:"received_by"`
	SetupBillID    uuid.NullUUID   `json:"setup_bill_id"`
	MonthlyBillID  uuid.NullUUID   `json:"monthly_bill_id"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PostingInput describes an entry to append.
type PostingInput struct {
	Purpose        Purpose
	VoucherDate    time.Time
	SubscriptionID uuid.UUID
	Debit          decimal.Decimal
	Credit         decimal.Decimal
	ReceivedBy     string
	SetupBillID    uuid.NullUUID
	MonthlyBillID  uuid.NullUUID
}

// Summary aggregates the ledger of one subscription.
type Summary struct {
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	TotalBilled    decimal.Decimal `json:"total_billed"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Balance        decimal.Decimal `json:"balance"`
	Status         Status          `json:"status"`
	StatusLabel    string          `json:"status_label"`
}

// NewSummary derives balance and status from the two totals.
func NewSummary(subscriptionID uuid.UUID, billed, paid decimal.Decimal) Summary {
	balance := billed.Sub(paid)
	status := StatusFor(balance)
	return Summary{
		SubscriptionID: subscriptionID,
		TotalBilled:    billed,
		TotalPaid:      paid,
		Balance:        balance,
		Status:         status,
		StatusLabel:    status.Label(),
	}
}

// AccountRow is one line of the general ledger overview.
type AccountRow struct {
	SubscriptionID uuid.UUID       `json:"subscription_id"`
	CustomerName   string          `json:"customer_name"`
	CustomerPhone  string          `json:"customer_phone"`
	ServiceName    string          `json:"service_name"`
	TotalBilled    decimal.Decimal `json:"total_billed"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	Balance        decimal.Decimal `json:"balance"`
	EntryCount     int             `json:"ledger_count"`
}

// AccountFilter narrows the overview.
type AccountFilter struct {
	Search string
	Page   int
	Limit  int
}

// SortField enumerates entry columns that listings may order by.
type SortField string

const (
	SortVoucherNo   SortField = "voucherNo"
	SortVoucherDate SortField = "voucherDate"
	SortPurpose     SortField = "purpose"
	SortDebit       SortField = "debitAmount"
	SortCredit      SortField = "creditAmount"
	SortCustomer    SortField = "customer"
)

var sortColumns = map[SortField]string{
	SortVoucherNo:   "e.voucher_seq",
	SortVoucherDate: "e.voucher_date",
	SortPurpose:     "e.purpose",
	SortDebit:       "e.debit_amount",
	SortCredit:      "e.credit_amount",
	SortCustomer:    "c.name",
}

// ParseSortField maps a query value onto the allow-list, defaulting to voucher order.
func ParseSortField(raw string) (SortField, bool) {
	if raw == "" {
		return SortVoucherNo, true
	}
	f := SortField(raw)
	_, ok := sortColumns[f]
	return f, ok
}

// EntryFilter narrows the entry listing.
type EntryFilter struct {
	SubscriptionID uuid.NullUUID
	Search         string
	Sort           SortField
	Desc           bool
	Page           int
	Limit          int
}

// EntryRow is an entry joined with its customer and service.
type EntryRow struct {
	Entry
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	ServiceName   string `json:"service_name"`
	ServiceType   string `json:"service_type"`
}

// Totals is the aggregate over every entry matching a filter.
type Totals struct {
	TotalDebit   decimal.Decimal `json:"total_debit"`
	TotalCredit  decimal.Decimal `json:"total_credit"`
	TotalBalance decimal.Decimal `json:"total_balance"`
	Status       Status          `json:"status"`
}

// NewTotals derives the balance and status of a debit/credit pair.
func NewTotals(debit, credit decimal.Decimal) Totals {
	balance := debit.Sub(credit)
	return Totals{TotalDebit: debit, TotalCredit: credit, TotalBalance: balance, Status: StatusFor(balance)}
}

// ReceiptParty carries the customer and service printed on a receipt.
type ReceiptParty struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	CustomerName   string    `json:"customer_name"`
	CustomerCode   string    `json:"customer_code"`
	CustomerPhone  string    `json:"customer_phone"`
	ServiceName    string    `json:"service_name"`
	ServiceType    string    `json:"service_type"`
}

// Receipt is the point-in-time view of one payment.
type Receipt struct {
	ReceiptParty
	Purpose        Purpose         `json:"purpose"`
	BillID         uuid.UUID       `json:"bill_id"`
	MonthFor       string          `json:"month_for,omitempty"`
	Description    string          `json:"description"`
	VoucherNo      string          `json:"voucher_no"`
	PaidDate       time.Time       `json:"paid_date"`
	ReceivedBy     string          `json:"received_by"`
	Charge         decimal.Decimal `json:"charge"`
	CurrentPayment decimal.Decimal `json:"current_payment"`
	PreviousPaid   decimal.Decimal `json:"previous_paid"`
	TotalPaid      decimal.Decimal `json:"total_paid"`
	BalanceDue     decimal.Decimal `json:"balance_due"`
	Status         Status          `json:"status"`
	StatusLabel    string          `json:"status_label"`
}

// BillCredit is the credit entry of a bill together with the bill's own row.
type BillCredit struct {
	ReceiptParty
	BillID     uuid.UUID
	MonthFor   string
	Charge     decimal.Decimal
	PaidAmount decimal.Decimal
	PaidDate   time.Time
	ReceivedBy string
	VoucherNo  string
	VoucherSeq int64
	HasVoucher bool
}
