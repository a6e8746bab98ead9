package audit

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const timelineSelect = `SELECT occurred_at, actor, action, entity, entity_id,
	COALESCE(meta->>'subscription_id', ''), COALESCE(meta->>'amount', '')
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR action = $5)
ORDER BY occurred_at DESC, id DESC`

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres-backed audit reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) Window(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSelect+` OFFSET $6 LIMIT $7`, append(filterArgs(q), q.Offset, q.Limit)...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *pgRepository) All(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSelect, filterArgs(q)...)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func filterArgs(q Query) []any {
	return []any{toPgTime(q.From), toPgTime(q.To), optionalText(q.Actor), optionalText(q.Entity), optionalText(q.Action)}
}

func collect(rows pgx.Rows) ([]TimelineRow, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var t TimelineRow
		err := row.Scan(&t.At, &t.Actor, &t.Action, &t.Entity, &t.EntityID, &t.SubscriptionID, &t.Amount)
		return t, err
	})
}

func toPgTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}
