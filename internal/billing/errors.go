package billing

import (
	"errors"
	"fmt"

	"github.com/nazrul121/customer-billing/internal/shared"
)

var (
	// ErrSubscriptionNotFound indicates the subscription does not exist.
	ErrSubscriptionNotFound = fmt.Errorf("%w: billing: subscription not found", shared.ErrNotFound)
	// ErrAlreadySettled indicates the period has no remaining due.
	ErrAlreadySettled = fmt.Errorf("%w: billing: period already settled", shared.ErrValidation)
	// ErrExceedsRemaining indicates a payment above the remaining due.
	ErrExceedsRemaining = fmt.Errorf("%w: billing: payment exceeds remaining due", shared.ErrValidation)
	// ErrInvalidMonth indicates a malformed month label.
	ErrInvalidMonth = fmt.Errorf("%w: billing: invalid month", shared.ErrValidation)
	// ErrInvalidPayment indicates a malformed payment request.
	ErrInvalidPayment = fmt.Errorf("%w: billing: invalid payment", shared.ErrValidation)
	// ErrStorageFailure marks transaction or commit failures.
	ErrStorageFailure = errors.New("billing: storage failure")
)

// storageFailure tags infrastructure errors so callers can tell them from
// rule violations. Client errors pass through untouched.
func storageFailure(err error) error {
	if err == nil || shared.IsClientError(err) || errors.Is(err, ErrStorageFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageFailure, err)
}
