package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/outbox"
	"github.com/shopspring/decimal"
)

// InsertBooking stores b and its booking.created event. The bookings_no_overlap
// exclusion constraint turns a concurrent double booking into ErrSlotTaken.
func (s *Store) InsertBooking(ctx context.Context, b model.Booking) error {
	evt, err := outbox.NewEvent("booking", b.ID, outbox.EventBookingCreated, map[string]any{
		"booking_id": b.ID,
		"user_id":    b.UserID,
		"package_id": b.PackageID,
		"start_time": b.StartTime.UTC().Format(time.RFC3339),
		"end_time":   b.EndTime.UTC().Format(time.RFC3339),
		"status":     string(b.Status),
	})
	if err != nil {
		return err
	}
	err = s.withEvent(ctx, evt, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, user_id, package_id, start_time, end_time, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, b.ID, b.UserID, b.PackageID, b.StartTime, b.EndTime, string(b.Status), b.CreatedAt)
		return err
	})
	return translate(err)
}

// BusyIntervals returns non-cancelled bookings intersecting [start, end).
func (s *Store) BusyIntervals(ctx context.Context, start, end time.Time) ([]availability.Interval, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE status <> 'cancelled'
			AND start_time < $2
			AND end_time > $1
		ORDER BY start_time ASC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var busy []availability.Interval
	for rows.Next() {
		var iv availability.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		busy = append(busy, iv)
	}
	return busy, rows.Err()
}

func (s *Store) ListUserBookings(ctx context.Context, userID string) ([]model.BookingView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id::text, b.user_id::text, b.package_id::text, b.start_time, b.end_time, b.status, b.created_at,
			p.name, p.price::text
		FROM bookings b
		JOIN packages p ON p.id = b.package_id
		WHERE b.user_id = $1
		ORDER BY b.start_time DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []model.BookingView
	for rows.Next() {
		var v model.BookingView
		var price string
		if err := rows.Scan(&v.ID, &v.UserID, &v.PackageID, &v.StartTime, &v.EndTime, &v.Status, &v.CreatedAt,
			&v.PackageName, &price); err != nil {
			return nil, err
		}
		if v.PackagePrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		v.ShortID = v.Booking.ShortID()
		views = append(views, v)
	}
	return views, rows.Err()
}

// ListAllBookings joins every booking with its package and owner profile. Bookings
// whose owner has no profile row are still listed, without a customer.
func (s *Store) ListAllBookings(ctx context.Context) ([]model.BookingView, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id::text, b.user_id::text, b.package_id::text, b.start_time, b.end_time, b.status, b.created_at,
			p.name, p.price::text,
			pr.id::text, COALESCE(pr.username, ''), COALESCE(pr.full_name, ''), COALESCE(pr.email, ''),
			COALESCE(pr.phone, ''), COALESCE(pr.instagram, ''), COALESCE(pr.role, 'user')
		FROM bookings b
		JOIN packages p ON p.id = b.package_id
		LEFT JOIN profiles pr ON pr.id = b.user_id
		ORDER BY b.start_time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var views []model.BookingView
	for rows.Next() {
		var v model.BookingView
		var price, role string
		var profileID *string
		var prof model.Profile
		if err := rows.Scan(&v.ID, &v.UserID, &v.PackageID, &v.StartTime, &v.EndTime, &v.Status, &v.CreatedAt,
			&v.PackageName, &price,
			&profileID, &prof.Username, &prof.FullName, &prof.Email, &prof.Phone, &prof.Instagram, &role); err != nil {
			return nil, err
		}
		if v.PackagePrice, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		if profileID != nil {
			prof.ID = *profileID
			prof.Role = model.NormalizeRole(role)
			v.Customer = &prof
		}
		v.ShortID = v.Booking.ShortID()
		views = append(views, v)
	}
	return views, rows.Err()
}

// StatusChangedPayload is the booking.status_changed event body. It carries the
// booking's start so notifications can name the session date.
func StatusChangedPayload(id, userID, packageID string, start time.Time, previous string, status model.Status, actorID string) map[string]any {
	return map[string]any{
		"booking_id":      id,
		"user_id":         userID,
		"package_id":      packageID,
		"start_time":      start.UTC().Format(time.RFC3339),
		"previous_status": previous,
		"status":          string(status),
		"changed_by":      actorID,
	}
}

// UpdateBookingStatus overwrites the status and records who changed it.
func (s *Store) UpdateBookingStatus(ctx context.Context, id string, status model.Status, actorID string) error {
	err := s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		var (
			previous  string
			userID    string
			packageID string
			start     time.Time
		)
		err := tx.QueryRow(ctx, `
			SELECT status, user_id::text, package_id::text, start_time
			FROM bookings WHERE id = $1 FOR UPDATE
		`, id).Scan(&previous, &userID, &packageID, &start)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE bookings SET status = $2 WHERE id = $1`, id, string(status)); err != nil {
			return err
		}
		evt, err := outbox.NewEvent("booking", id, outbox.EventBookingStatusChanged,
			StatusChangedPayload(id, userID, packageID, start, previous, status, actorID))
		if err != nil {
			return err
		}
		if err := s.outbox.Insert(ctx, tx, evt); err != nil {
			return err
		}
		return insertAudit(ctx, tx, "booking.status_changed", actorID, map[string]any{
			"booking_id": id,
			"from":       previous,
			"to":         string(status),
		})
	})
	return translate(err)
}
