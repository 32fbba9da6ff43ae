package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/libs/db"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrSlotTaken is returned when a booking would overlap another non-cancelled booking.
	ErrSlotTaken = errors.New("slot no longer available")
	ErrDuplicate = errors.New("already exists")
)

// Store is the Postgres implementation of every repository the service needs.
type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

func (s *Store) withEvent(ctx context.Context, evt outbox.Event, fn func(pgx.Tx) error) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return s.outbox.Insert(ctx, tx, evt)
	})
}

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	switch db.PgCode(err) {
	case db.CodeExclusionViolation:
		return ErrSlotTaken
	case db.CodeUniqueViolation:
		return ErrDuplicate
	case "23503", db.CodeInvalidText:
		return ErrNotFound
	}
	return err
}
