package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
	"github.com/shopspring/decimal"
)

var ErrInvalidStatus = errors.New("invalid booking status")

type Stats struct {
	TotalEarnings decimal.Decimal `json:"total_earnings"`
	PendingCount  int             `json:"pending_count"`
	TotalBookings int             `json:"total_bookings"`
}

// Summarize sums package prices of confirmed bookings and counts pending ones.
// TotalBookings includes cancelled bookings.
func Summarize(bookings []model.BookingView) Stats {
	stats := Stats{TotalEarnings: decimal.Zero, TotalBookings: len(bookings)}
	for _, b := range bookings {
		switch b.Status {
		case model.StatusConfirmed:
			stats.TotalEarnings = stats.TotalEarnings.Add(b.PackagePrice)
		case model.StatusPending:
			stats.PendingCount++
		}
	}
	return stats
}

type ReviewStore interface {
	ListAllBookings(ctx context.Context) ([]model.BookingView, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.Status, actorID string) error
}

type Overview struct {
	Bookings []model.BookingView `json:"bookings"`
	Stats    Stats               `json:"stats"`
}

// Review backs the admin view. Callers must have checked the admin role.
type Review struct {
	store ReviewStore
}

func NewReview(store ReviewStore) *Review {
	return &Review{store: store}
}

func (r *Review) Overview(ctx context.Context) (Overview, error) {
	bookings, err := r.store.ListAllBookings(ctx)
	if err != nil {
		return Overview{}, err
	}
	if bookings == nil {
		bookings = []model.BookingView{}
	}
	return Overview{Bookings: bookings, Stats: Summarize(bookings)}, nil
}

// SetStatus overwrites the status of any booking. There is no transition guard: only
// the admin view limits actions to pending bookings.
func (r *Review) SetStatus(ctx context.Context, bookingID string, status string, actorID string) error {
	s := model.Status(status)
	if !s.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return r.store.UpdateBookingStatus(ctx, bookingID, s, actorID)
}
