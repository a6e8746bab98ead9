package ledger

import (
	"fmt"
	"strings"
	"time"
)

// FormatVoucher renders YYYY-MON-NNNN from the issuance instant and sequence.
// Sequences above 9999 widen the numeric part rather than wrap.
func FormatVoucher(at time.Time, seq int64) string {
	mon := strings.ToUpper(at.Month().String()[:3])
	return fmt.Sprintf("%04d-%s-%04d", at.Year(), mon, seq)
}
