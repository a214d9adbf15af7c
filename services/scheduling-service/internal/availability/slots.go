package availability

import (
	"errors"
	"time"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

var (
	ErrInvalidRange    = errors.New("to must be after from")
	ErrInvalidDuration = errors.New("slot length must be positive")
)

// Calendar is everything known about one provider's time for a range.
type Calendar struct {
	Rules    []model.WeeklyRule
	Blocks   []model.UnavailabilityBlock
	Bookings []model.Booking
}

type Query struct {
	ProviderID string
	// Location is the provider's timezone; weekly rules are read in it.
	Location *time.Location
	From     time.Time
	To       time.Time
	Length   time.Duration
	// NotBefore drops slots starting earlier; zero keeps everything.
	NotBefore time.Time
}

// Generate lists every slot of q.Length inside [q.From, q.To) that falls within
// the provider's weekly hours and clear of blocks and buffered bookings.
//
// Slots sit on a grid anchored at the start of each (merged) daily window, so
// a slot's identity does not depend on the queried range.
func Generate(q Query, cal Calendar) ([]model.Slot, error) {
	if !q.To.After(q.From) {
		return nil, ErrInvalidRange
	}
	if q.Length <= 0 {
		return nil, ErrInvalidDuration
	}
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}

	busy := busyIntervals(cal)
	bounds := Interval{Start: q.From, End: q.To}

	var slots []model.Slot
	for _, window := range RuleWindows(loc, cal.Rules, q.From, q.To) {
		if !window.Overlaps(bounds) {
			continue
		}
		free := Subtract(Clip([]Interval{window}, bounds), busy)
		if len(free) == 0 {
			continue
		}

		f := 0
		for t := window.Start; !t.Add(q.Length).After(window.End); t = t.Add(q.Length) {
			slot := Interval{Start: t, End: t.Add(q.Length)}
			if !q.NotBefore.IsZero() && slot.Start.Before(q.NotBefore) {
				continue
			}
			for f < len(free) && !free[f].End.After(slot.Start) {
				f++
			}
			if f == len(free) {
				break
			}
			if free[f].Contains(slot) {
				slots = append(slots, model.Slot{ProviderID: q.ProviderID, Start: slot.Start, End: slot.End})
			}
		}
	}
	return slots, nil
}

// RuleWindows turns weekly rules into absolute windows for every local day
// touching [from, to). Windows of the same day are merged; results are sorted.
func RuleWindows(loc *time.Location, rules []model.WeeklyRule, from, to time.Time) []Interval {
	if len(rules) == 0 {
		return nil
	}
	byDay := make(map[time.Weekday][]model.WeeklyRule, 7)
	for _, r := range rules {
		byDay[r.DayOfWeek] = append(byDay[r.DayOfWeek], r)
	}

	first := from.In(loc)
	last := to.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)
	// A window may start on the local day before from, e.g. a rule ending at 24:00.
	day = day.AddDate(0, 0, -1)
	end := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, loc)

	var out []Interval
	for ; !day.After(end); day = day.AddDate(0, 0, 1) {
		dayRules := byDay[day.Weekday()]
		if len(dayRules) == 0 {
			continue
		}
		windows := make([]Interval, 0, len(dayRules))
		for _, r := range dayRules {
			windows = append(windows, ruleWindow(loc, day, r))
		}
		out = append(out, Merge(windows)...)
	}
	return out
}

// BufferFor returns the buffer configured for the weekly window holding
// [start, end); overlapping rules contribute their largest buffer.
func BufferFor(loc *time.Location, rules []model.WeeklyRule, start, end time.Time) int {
	if loc == nil {
		loc = time.UTC
	}
	target := Interval{Start: start, End: end}
	local := start.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	buffer := 0
	for _, d := range []time.Time{day.AddDate(0, 0, -1), day} {
		for _, r := range rules {
			if r.DayOfWeek != d.Weekday() {
				continue
			}
			if ruleWindow(loc, d, r).Overlaps(target) && r.BufferMinutes > buffer {
				buffer = r.BufferMinutes
			}
		}
	}
	return buffer
}

func ruleWindow(loc *time.Location, day time.Time, r model.WeeklyRule) Interval {
	y, m, d := day.Date()
	return Interval{
		Start: time.Date(y, m, d, r.StartMinute/60, r.StartMinute%60, 0, 0, loc),
		End:   time.Date(y, m, d, r.EndMinute/60, r.EndMinute%60, 0, 0, loc),
	}
}

func busyIntervals(cal Calendar) []Interval {
	busy := make([]Interval, 0, len(cal.Blocks)+len(cal.Bookings))
	for _, b := range cal.Blocks {
		busy = append(busy, Interval{Start: b.Start, End: b.End})
	}
	for _, b := range cal.Bookings {
		if !b.Status.Occupies() {
			continue
		}
		s, e := b.Buffered()
		busy = append(busy, Interval{Start: s, End: e})
	}
	return Merge(busy)
}
