package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/outbox"
)

type AuditEvent struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	ActorID   string          `json:"actor_id,omitempty"`
	Metadata  json.RawMessage `json:"metadata"`
	CreatedAt string          `json:"created_at"`
}

// RecordSessionEvent writes an audit row plus an identity.session event.
func (s *Store) RecordSessionEvent(ctx context.Context, eventType, userID string, metadata map[string]any) error {
	payload := map[string]any{"event": eventType, "user_id": userID}
	for k, v := range metadata {
		payload[k] = v
	}
	evt, err := outbox.NewEvent("identity", userID, outbox.EventIdentitySession, payload)
	if err != nil {
		return err
	}
	return s.withEvent(ctx, evt, func(tx pgx.Tx) error {
		return insertAudit(ctx, tx, "identity."+eventType, userID, metadata)
	})
}

// AuditFilter narrows ListAudit. Type matches event types by prefix ("booking." or
// "identity.SIGNED_IN"); Limit is clamped to 1..200 with 50 as default.
type AuditFilter struct {
	Type    string
	ActorID string
	Limit   int
}

func (f AuditFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 200 {
		return 50
	}
	return f.Limit
}

// ListAudit returns matching rows, newest first.
func (s *Store) ListAudit(ctx context.Context, f AuditFilter) ([]AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, event_type, COALESCE(actor_id::text, ''), metadata, created_at
		FROM audit_events
		WHERE ($1 = '' OR starts_with(event_type, $1))
		  AND ($2 = '' OR actor_id = NULLIF($2, '')::uuid)
		ORDER BY id DESC
		LIMIT $3
	`, f.Type, f.ActorID, f.limit())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditEvent, error) {
		var e AuditEvent
		var at time.Time
		err := row.Scan(&e.ID, &e.EventType, &e.ActorID, &e.Metadata, &at)
		e.CreatedAt = at.UTC().Format(time.RFC3339)
		return e, err
	})
}

func insertAudit(ctx context.Context, tx pgx.Tx, eventType, actorID string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO audit_events (event_type, actor_id, metadata)
		VALUES ($1, NULLIF($2, '')::uuid, $3)
	`, eventType, actorID, raw)
	return err
}
