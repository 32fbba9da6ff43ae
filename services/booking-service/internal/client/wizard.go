package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/photobook/services/booking-service/internal/model"
)

var (
	ErrWeekend         = errors.New("bookings are not available on weekends")
	ErrPastDay         = errors.New("date is in the past")
	ErrNoPackage       = errors.New("select a package first")
	ErrNoDate          = errors.New("select a date first")
	ErrSlotUnavailable = errors.New("time slot is not available")
	ErrIncomplete      = errors.New("package, date and time are required")
	ErrNotReviewing    = errors.New("booking is not ready for confirmation")
	// ErrStale means a newer slot request superseded this one; its result was dropped.
	ErrStale = errors.New("slot response superseded by a newer request")
)

type Step int

const (
	StepPackage Step = iota
	StepDateTime
	StepReview
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepPackage:
		return "package"
	case StepDateTime:
		return "datetime"
	case StepReview:
		return "review"
	case StepDone:
		return "done"
	}
	return "unknown"
}

type WizardAPI interface {
	Slots(ctx context.Context, packageID, date string) (SlotsResult, error)
	CreateBooking(ctx context.Context, packageID, date, label string) (model.Booking, error)
}

// Wizard is the package -> date/time -> review -> confirm flow. Only the response to
// the most recent slot request may update the slot grid.
type Wizard struct {
	api WizardAPI
	loc *time.Location
	now func() time.Time

	mu      sync.Mutex
	step    Step
	pkg     *model.Package
	day     time.Time
	label   string
	slots   []availability.Slot
	loading bool
	seq     uint64
	cancel  context.CancelFunc
	err     error
	booked  *model.Booking
}

// NewWizard evaluates calendar days in loc, the studio's timezone.
func NewWizard(api WizardAPI, loc *time.Location) *Wizard {
	if loc == nil {
		loc = time.UTC
	}
	return &Wizard{api: api, loc: loc, now: time.Now}
}

// WizardState is a snapshot for rendering.
type WizardState struct {
	Step    Step
	Package *model.Package
	Date    string
	Time    string
	Slots   []availability.Slot
	Loading bool
	Err     error
	Booking *model.Booking
}

func (w *Wizard) State() WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := WizardState{
		Step:    w.step,
		Package: w.pkg,
		Time:    w.label,
		Slots:   append([]availability.Slot(nil), w.slots...),
		Loading: w.loading,
		Err:     w.err,
		Booking: w.booked,
	}
	if !w.day.IsZero() {
		st.Date = w.day.Format(booking.DayLayout)
	}
	return st
}

// CheckDay applies the day-selection rules: no Saturdays, Sundays or past days.
func CheckDay(day, now time.Time, loc *time.Location) error {
	switch day.Weekday() {
	case time.Saturday, time.Sunday:
		return ErrWeekend
	}
	ny, nm, nd := now.In(loc).Date()
	today := time.Date(ny, nm, nd, 0, 0, 0, 0, loc)
	if day.Before(today) {
		return ErrPastDay
	}
	return nil
}

// SelectPackage moves to the date/time step and clears the chosen time. When a date is
// already chosen the slot grid is refetched for the new package.
func (w *Wizard) SelectPackage(ctx context.Context, pkg model.Package) error {
	w.mu.Lock()
	w.pkg = &pkg
	w.label = ""
	w.slots = nil
	w.step = StepDateTime
	w.booked = nil
	hasDay := !w.day.IsZero()
	w.mu.Unlock()

	if !hasDay {
		return nil
	}
	return w.RefreshSlots(ctx)
}

// SelectDate validates raw (YYYY-MM-DD), clears the chosen time and refetches slots.
func (w *Wizard) SelectDate(ctx context.Context, raw string) error {
	day, err := booking.ParseDay(raw, w.loc)
	if err != nil {
		return err
	}
	if err := CheckDay(day, w.now(), w.loc); err != nil {
		return err
	}

	w.mu.Lock()
	if w.pkg == nil {
		w.mu.Unlock()
		return ErrNoPackage
	}
	w.day = day
	w.label = ""
	w.slots = nil
	w.step = StepDateTime
	w.mu.Unlock()

	return w.RefreshSlots(ctx)
}

// RefreshSlots fetches the grid for the current selection. It cancels any request still
// in flight and returns ErrStale if a newer request started before this one finished.
// A failed fetch leaves an empty grid.
func (w *Wizard) RefreshSlots(ctx context.Context) error {
	w.mu.Lock()
	if w.pkg == nil {
		w.mu.Unlock()
		return ErrNoPackage
	}
	if w.day.IsZero() {
		w.mu.Unlock()
		return ErrNoDate
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.seq++
	seq := w.seq
	reqCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.loading = true
	packageID := w.pkg.ID
	date := w.day.Format(booking.DayLayout)
	w.mu.Unlock()

	res, err := w.api.Slots(reqCtx, packageID, date)

	w.mu.Lock()
	defer w.mu.Unlock()
	if seq != w.seq {
		cancel()
		return ErrStale
	}
	cancel()
	w.cancel = nil
	w.loading = false
	if err != nil {
		w.slots = nil
		w.err = err
		return err
	}
	w.slots = res.Slots
	w.err = nil
	return nil
}

// SelectTime picks an available slot from the current grid.
func (w *Wizard) SelectTime(label string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.slots {
		if s.Label == label {
			if !s.Available {
				return ErrSlotUnavailable
			}
			w.label = label
			return nil
		}
	}
	return ErrSlotUnavailable
}

func (w *Wizard) Review() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pkg == nil || w.day.IsZero() || w.label == "" {
		return ErrIncomplete
	}
	w.step = StepReview
	return nil
}

// Back returns to the previous step without losing selections.
func (w *Wizard) Back() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.step > StepPackage && w.step < StepDone {
		w.step--
	}
}

// Confirm creates the booking. On failure the wizard stays on review so the user can
// retry. When the slot was taken meanwhile it returns to the date/time step with the
// time cleared and a fresh grid.
func (w *Wizard) Confirm(ctx context.Context) (model.Booking, error) {
	w.mu.Lock()
	if w.step != StepReview {
		w.mu.Unlock()
		return model.Booking{}, ErrNotReviewing
	}
	packageID := w.pkg.ID
	date := w.day.Format(booking.DayLayout)
	label := w.label
	w.mu.Unlock()

	b, err := w.api.CreateBooking(ctx, packageID, date, label)
	if err != nil {
		w.mu.Lock()
		w.err = err
		conflict := IsConflict(err)
		if conflict {
			w.label = ""
			w.step = StepDateTime
		}
		w.mu.Unlock()
		if conflict {
			if rerr := w.RefreshSlots(ctx); rerr != nil && !errors.Is(rerr, ErrStale) {
				return model.Booking{}, errors.Join(err, rerr)
			}
			w.mu.Lock()
			w.err = err
			w.mu.Unlock()
		}
		return model.Booking{}, err
	}

	w.mu.Lock()
	w.step = StepDone
	w.booked = &b
	w.err = nil
	w.mu.Unlock()
	return b, nil
}

// Reset starts a new booking.
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.seq++
	w.step = StepPackage
	w.pkg = nil
	w.day = time.Time{}
	w.label = ""
	w.slots = nil
	w.loading = false
	w.err = nil
	w.booked = nil
}
