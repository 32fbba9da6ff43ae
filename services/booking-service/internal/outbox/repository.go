package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/photobook/libs/otel"
)

// Repository reads and writes outbox_events. Every method takes the caller's transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Insert must run in the same transaction as the booking or profile change it announces.
// The current trace context is stored so the publish span can join the request.
func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	parent, state := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, parent, state)
	return err
}

// Record is a pending outbox row.
type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
	Attempts    int
	CreatedAt   time.Time
}

// Claim locks up to limit unpublished rows that still have attempts left. Rows locked by
// another publisher are skipped, so replicas can run side by side.
func (r *Repository) Claim(ctx context.Context, tx pgx.Tx, limit, maxAttempts int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text, aggregate_id, event_type, payload,
			COALESCE(traceparent, ''), COALESCE(tracestate, ''), attempts, created_at
		FROM outbox_events
		WHERE published_at IS NULL AND attempts < $2
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit, maxAttempts)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var rec Record
		err := row.Scan(&rec.ID, &rec.EventID, &rec.AggregateID, &rec.EventType, &rec.Payload,
			&rec.Traceparent, &rec.Tracestate, &rec.Attempts, &rec.CreatedAt)
		return rec, err
	})
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now(), last_error = NULL WHERE id = ANY($1)`, ids)
	return err
}

// MarkFailed counts a failed delivery. Rows reaching the attempt cap are left for an
// operator; Backlog still reports them.
func (r *Repository) MarkFailed(ctx context.Context, tx pgx.Tx, ids []int64, cause error) error {
	if len(ids) == 0 {
		return nil
	}
	msg := cause.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = ANY($1)`, ids, msg)
	return err
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Backlog reports unpublished rows and how many of them gave up.
func (r *Repository) Backlog(ctx context.Context, q rowQuerier, maxAttempts int) (pending, stuck int, err error) {
	err = q.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE attempts < $1), count(*) FILTER (WHERE attempts >= $1)
		FROM outbox_events
		WHERE published_at IS NULL
	`, maxAttempts).Scan(&pending, &stuck)
	return pending, stuck, err
}
