package inbox

import (
	"context"

	"github.com/md-rashed-zaman/photobook/libs/db"
)

// Repository remembers which events a consumer has already handled.
type Repository struct {
	pool     *db.Pool
	consumer string
}

func NewRepository(pool *db.Pool, consumer string) *Repository {
	return &Repository{pool: pool, consumer: consumer}
}

// Record reports false when eventID was already recorded for this consumer.
func (r *Repository) Record(ctx context.Context, eventID string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO processed_events (consumer, event_id)
		VALUES ($1, $2)
	`, r.consumer, eventID)
	if err == nil {
		return true, nil
	}
	if db.PgCode(err) == db.CodeUniqueViolation {
		return false, nil
	}
	return false, err
}
