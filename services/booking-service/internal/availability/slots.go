package availability

import "time"

// DefaultStepMinutes is used when a WorkWindow leaves StepMinutes unset.
const DefaultStepMinutes = 30

// WorkWindow is the studio's daily bookable range, [StartHour:00, EndHour:00).
type WorkWindow struct {
	StartHour   int
	EndHour     int
	StepMinutes int
}

func (w WorkWindow) step() time.Duration {
	if w.StepMinutes <= 0 {
		return DefaultStepMinutes * time.Minute
	}
	return time.Duration(w.StepMinutes) * time.Minute
}

// Bounds returns the window start and end on day, in day's location.
func (w WorkWindow) Bounds(day time.Time) (time.Time, time.Time) {
	y, m, d := day.Date()
	loc := day.Location()
	return time.Date(y, m, d, w.StartHour, 0, 0, 0, loc), time.Date(y, m, d, w.EndHour, 0, 0, 0, loc)
}

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses half-open semantics: touching endpoints do not overlap.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

type Slot struct {
	Label     string    `json:"time"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
}

// LabelLayout formats a slot start as hour:minute.
const LabelLayout = "15:04"

// Generate returns the slot grid for one day and one package duration.
//
// Candidates start at the window start and advance by the window step. Generation stops at
// the first candidate whose end would overrun the window end. A candidate is unavailable when
// it overlaps any busy interval, or when day is the same calendar date as now and the
// candidate starts before now. busy must only hold non-cancelled bookings.
//
// day is interpreted in its own location; its time of day is ignored.
func Generate(day time.Time, durationMinutes int, busy []Interval, win WorkWindow, now time.Time) []Slot {
	if durationMinutes <= 0 {
		return nil
	}
	dayStart, dayEnd := win.Bounds(day)
	duration := time.Duration(durationMinutes) * time.Minute
	step := win.step()
	today := sameDate(day, now.In(day.Location()))

	var slots []Slot
	for start := dayStart; start.Before(dayEnd); start = start.Add(step) {
		end := start.Add(duration)
		if end.After(dayEnd) {
			break
		}
		available := !overlapsAny(start, end, busy)
		if today && start.Before(now) {
			available = false
		}
		slots = append(slots, Slot{
			Label:     start.Format(LabelLayout),
			Start:     start,
			End:       end,
			Available: available,
		})
	}
	return slots
}

// AvailableLabels filters Generate output down to the offered labels.
func AvailableLabels(slots []Slot) []string {
	var out []string
	for _, s := range slots {
		if s.Available {
			out = append(out, s.Label)
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
