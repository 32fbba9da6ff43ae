package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
)

var (
	ErrInvalidSlotLabel = errors.New("invalid slot label")
	ErrInvalidDay       = errors.New("invalid date")
	ErrInvalidPackage   = errors.New("package has no duration")
)

// DayLayout is the wire format for calendar days.
const DayLayout = "2006-01-02"

// Inserter persists a new booking. Implementations report overlapping non-cancelled
// bookings as storage.ErrSlotTaken.
type Inserter interface {
	InsertBooking(ctx context.Context, b model.Booking) error
}

type Writer struct {
	store Inserter
	now   func() time.Time
}

func NewWriter(store Inserter) *Writer {
	return &Writer{store: store, now: time.Now}
}

// Create books pkg at label on day for userID. The slot is not checked against the
// current availability grid; overlapping writes are rejected by the store.
func (w *Writer) Create(ctx context.Context, userID string, pkg model.Package, day time.Time, label string) (model.Booking, error) {
	b, err := NewBooking(userID, pkg, day, label)
	if err != nil {
		return model.Booking{}, err
	}
	b.ID = uuid.NewString()
	b.CreatedAt = w.now().UTC()
	if err := w.store.InsertBooking(ctx, b); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// NewBooking builds the pending booking for a (package, day, label) selection.
func NewBooking(userID string, pkg model.Package, day time.Time, label string) (model.Booking, error) {
	if pkg.DurationMinutes <= 0 {
		return model.Booking{}, ErrInvalidPackage
	}
	start, err := StartFromLabel(day, label)
	if err != nil {
		return model.Booking{}, err
	}
	return model.Booking{
		UserID:    userID,
		PackageID: pkg.ID,
		StartTime: start,
		EndTime:   start.Add(pkg.Duration()),
		Status:    model.StatusPending,
	}, nil
}

// ParseSlotLabel parses "HH:MM" (24h).
func ParseSlotLabel(label string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(label), ":")
	if !ok || len(h) == 0 || len(h) > 2 || len(m) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotLabel, label)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotLabel, label)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSlotLabel, label)
	}
	return hour, minute, nil
}

// StartFromLabel combines day's calendar date with label in day's location.
func StartFromLabel(day time.Time, label string) (time.Time, error) {
	hour, minute, err := ParseSlotLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, minute, 0, 0, day.Location()), nil
}

// ParseDay parses a YYYY-MM-DD day at midnight in loc.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DayLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDay, raw)
	}
	return day, nil
}
