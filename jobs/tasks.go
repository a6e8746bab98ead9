package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity scans bills and ledger entries for drift.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskIdempotencyCleanup removes expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// LedgerIntegrityPayload scopes an integrity scan. An empty Month scans all months.
type LedgerIntegrityPayload struct {
	Month string `json:"month,omitempty"`
}

// IdempotencyCleanupPayload configures key retention.
type IdempotencyCleanupPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}

func (p IdempotencyCleanupPayload) retention() time.Duration {
	if p.OlderThanHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(p.OlderThanHours) * time.Hour
}

// NewLedgerIntegrityTask constructs the integrity scan task.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// NewIdempotencyCleanupTask constructs the key cleanup task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data, asynq.MaxRetry(1)), nil
}
