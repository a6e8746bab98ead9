package billing

import (
	"time"

	"github.com/nazrul121/customer-billing/internal/shared"
)

const monthLayout = "2006-01"

// ParseMonth validates a YYYY-MM label and returns the first day of that month.
func ParseMonth(label string) (time.Time, error) {
	if len(label) != len(monthLayout) {
		return time.Time{}, shared.NewUserError(ErrInvalidMonth, "Month %q must be in YYYY-MM form.", label)
	}
	t, err := time.Parse(monthLayout, label)
	if err != nil {
		return time.Time{}, shared.NewUserError(ErrInvalidMonth, "Month %q must be in YYYY-MM form.", label)
	}
	return t, nil
}

// MonthLabel renders t as YYYY-MM.
func MonthLabel(t time.Time) string {
	return t.Format(monthLayout)
}

// MonthName renders a label for humans, e.g. "January 2026". Invalid labels
// are returned unchanged.
func MonthName(label string) string {
	t, err := ParseMonth(label)
	if err != nil {
		return label
	}
	return t.Format("January 2006")
}

// MonthBounds returns the first and last calendar day of the labelled month.
func MonthBounds(label string) (time.Time, time.Time, error) {
	start, err := ParseMonth(label)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, start.AddDate(0, 1, -1), nil
}
