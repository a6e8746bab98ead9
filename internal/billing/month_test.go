package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseMonth(t *testing.T) {
	got, err := ParseMonth("2026-02")
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC), got)
	require.Equal(t, "2026-02", MonthLabel(got))

	for _, bad := range []string{"", "2026-2", "2026/02", "26-02", "2026-00", "2026-02-01", " 2026-02"} {
		_, err := ParseMonth(bad)
		require.ErrorIs(t, err, ErrInvalidMonth, bad)
	}
}

func TestMonthName(t *testing.T) {
	require.Equal(t, "January 2026", MonthName("2026-01"))
	require.Equal(t, "December 2025", MonthName("2025-12"))
	require.Equal(t, "garbage", MonthName("garbage"))
}

func TestMonthBounds(t *testing.T) {
	start, end, err := MonthBounds("2024-02")
	require.NoError(t, err)
	require.Equal(t, 1, start.Day())
	require.Equal(t, 29, end.Day())
	require.Equal(t, time.February, end.Month())
}
