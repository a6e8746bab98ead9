package audit

import (
	"bytes"
	"encoding/csv"
	"time"
)

var csvHeader = []string{"at", "actor", "action", "entity", "entity_id", "subscription_id", "amount"}

// WriteCSV renders rows with a header line.
func WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.At.UTC().Format(time.RFC3339),
			row.Actor,
			row.Action,
			row.Entity,
			row.EntityID,
			row.SubscriptionID,
			row.Amount,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
