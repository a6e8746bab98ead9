package ledger

import (
	"fmt"

	"github.com/nazrul121/customer-billing/internal/shared"
)

var (
	// ErrInvalidPosting indicates a malformed posting input.
	ErrInvalidPosting = fmt.Errorf("%w: ledger: invalid posting", shared.ErrValidation)
	// ErrBillNotFound indicates the receipt's bill does not exist.
	ErrBillNotFound = fmt.Errorf("%w: ledger: bill not found", shared.ErrNotFound)
	// ErrInvalidSort indicates a sort field outside the allow-list.
	ErrInvalidSort = fmt.Errorf("%w: ledger: unsupported sort field", shared.ErrValidation)
)

var (
	// ErrSubscriptionNotFound indicates the subscription has no ledger to read.
	ErrSubscriptionNotFound = fmt.Errorf("%w: ledger: subscription not found", shared.ErrNotFound)
	// ErrVoucherNotFound indicates an unknown voucher number.
	ErrVoucherNotFound = fmt.Errorf("%w: ledger: voucher not found", shared.ErrNotFound)
)
