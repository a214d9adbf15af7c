package availability

import (
	"fmt"
	"math/rand"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return monday.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func mondayNineToFive() []model.WeeklyRule {
	return []model.WeeklyRule{{ProviderID: "p1", DayOfWeek: time.Monday, StartMinute: 9 * 60, EndMinute: 17 * 60}}
}

func dayQuery(length time.Duration) Query {
	return Query{ProviderID: "p1", Location: time.UTC, From: monday, To: monday.AddDate(0, 0, 1), Length: length}
}

func starts(slots []model.Slot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Start.Format("15:04")
	}
	return out
}

func mustGenerate(t *testing.T, q Query, cal Calendar) []model.Slot {
	t.Helper()
	slots, err := Generate(q, cal)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return slots
}

func assertProperties(t *testing.T, q Query, cal Calendar, slots []model.Slot) {
	t.Helper()
	windows := RuleWindows(q.Location, cal.Rules, q.From, q.To)
	for i, s := range slots {
		if s.End.Sub(s.Start) != q.Length {
			t.Fatalf("slot %d has length %s", i, s.End.Sub(s.Start))
		}
		if s.Start.Before(q.From) || s.End.After(q.To) {
			t.Fatalf("slot %d outside query range", i)
		}
		if i > 0 && s.Start.Before(slots[i-1].End) {
			t.Fatalf("slots %d and %d overlap or are out of order", i-1, i)
		}
		slot := Interval{Start: s.Start, End: s.End}
		contained := false
		for _, w := range windows {
			if w.Contains(slot) {
				contained = true
			}
		}
		if !contained {
			t.Fatalf("slot %d not inside any rule window", i)
		}
		for _, b := range cal.Blocks {
			if slot.Overlaps(Interval{Start: b.Start, End: b.End}) {
				t.Fatalf("slot %d overlaps block %s", i, b.ID)
			}
		}
		for _, b := range cal.Bookings {
			bs, be := b.Buffered()
			if b.Status.Occupies() && slot.Overlaps(Interval{Start: bs, End: be}) {
				t.Fatalf("slot %d overlaps booking %s", i, b.ID)
			}
		}
	}
}

func TestGenerateFullDay(t *testing.T) {
	q := dayQuery(30 * time.Minute)
	cal := Calendar{Rules: mondayNineToFive()}
	slots := mustGenerate(t, q, cal)

	if len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d: %v", len(slots), starts(slots))
	}
	if !slots[0].Start.Equal(at(9, 0)) || !slots[15].End.Equal(at(17, 0)) {
		t.Fatalf("unexpected bounds %v", starts(slots))
	}
	for i := 1; i < len(slots); i++ {
		if !slots[i].Start.Equal(slots[i-1].End) {
			t.Fatalf("slots not consecutive at %d", i)
		}
	}
	assertProperties(t, q, cal, slots)
}

func TestGenerateBufferedBooking(t *testing.T) {
	q := dayQuery(30 * time.Minute)
	cal := Calendar{
		Rules: mondayNineToFive(),
		Bookings: []model.Booking{{
			ID: "b1", ProviderID: "p1", Start: at(10, 0), End: at(10, 30),
			Status: model.BookingConfirmed, BufferMinutes: 15,
		}},
	}
	slots := mustGenerate(t, q, cal)

	got := starts(slots)
	want := []string{"09:00", "11:00", "11:30", "12:00", "12:30", "13:00", "13:30", "14:00", "14:30", "15:00", "15:30", "16:00", "16:30"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	assertProperties(t, q, cal, slots)
}

func TestGenerateUnavailability(t *testing.T) {
	q := dayQuery(30 * time.Minute)
	cal := Calendar{
		Rules:  mondayNineToFive(),
		Blocks: []model.UnavailabilityBlock{{ID: "u1", ProviderID: "p1", Start: at(12, 0), End: at(13, 0)}},
	}
	slots := mustGenerate(t, q, cal)

	if len(slots) != 14 {
		t.Fatalf("expected 14 slots, got %v", starts(slots))
	}
	for _, s := range slots {
		if !s.Start.Before(at(12, 0)) && s.Start.Before(at(13, 0)) {
			t.Fatalf("slot starts inside the block: %s", s.Start)
		}
	}
	resumed := false
	for _, s := range slots {
		if s.Start.Equal(at(13, 0)) {
			resumed = true
		}
	}
	if !resumed {
		t.Fatal("expected slots to resume at 13:00")
	}
	assertProperties(t, q, cal, slots)
}

func TestGenerateEmptyRules(t *testing.T) {
	slots := mustGenerate(t, dayQuery(30*time.Minute), Calendar{})
	if len(slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(slots))
	}
}

func TestGenerateCancelledBookingDoesNotBlock(t *testing.T) {
	cal := Calendar{
		Rules: mondayNineToFive(),
		Bookings: []model.Booking{{
			ID: "b1", Start: at(10, 0), End: at(10, 30), Status: model.BookingCancelled, BufferMinutes: 15,
		}},
	}
	if slots := mustGenerate(t, dayQuery(30*time.Minute), cal); len(slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(slots))
	}
}

func TestGenerateMergesOverlappingRules(t *testing.T) {
	cal := Calendar{Rules: []model.WeeklyRule{
		{DayOfWeek: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60},
		{DayOfWeek: time.Monday, StartMinute: 11 * 60, EndMinute: 13 * 60},
	}}
	q := dayQuery(60 * time.Minute)
	slots := mustGenerate(t, q, cal)
	if len(slots) != 4 {
		t.Fatalf("expected 4 hourly slots 09-13, got %v", starts(slots))
	}
	assertProperties(t, q, cal, slots)
}

func TestGenerateRangeDoesNotShiftGrid(t *testing.T) {
	cal := Calendar{Rules: mondayNineToFive()}
	q := dayQuery(30 * time.Minute)
	q.From = at(9, 10)
	q.To = at(11, 0)
	slots := mustGenerate(t, q, cal)
	got := starts(slots)
	if len(got) != 3 || got[0] != "09:30" || got[2] != "10:30" {
		t.Fatalf("expected 09:30, 10:00, 10:30, got %v", got)
	}

	// Narrow query for exactly one slot returns that slot.
	q.From, q.To = at(10, 0), at(10, 30)
	if one := mustGenerate(t, q, cal); len(one) != 1 || !one[0].Start.Equal(at(10, 0)) {
		t.Fatalf("expected single 10:00 slot, got %v", starts(one))
	}

	// Off-grid narrow query returns nothing.
	q.From, q.To = at(10, 15), at(10, 45)
	if none := mustGenerate(t, q, cal); len(none) != 0 {
		t.Fatalf("expected no off-grid slot, got %v", starts(none))
	}
}

func TestGenerateNotBefore(t *testing.T) {
	q := dayQuery(30 * time.Minute)
	q.NotBefore = at(15, 1)
	slots := mustGenerate(t, q, Calendar{Rules: mondayNineToFive()})
	if got := starts(slots); len(got) != 3 || got[0] != "15:30" {
		t.Fatalf("expected 15:30, 16:00, 16:30, got %v", got)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	cal := Calendar{
		Rules:  mondayNineToFive(),
		Blocks: []model.UnavailabilityBlock{{Start: at(9, 45), End: at(10, 5)}},
	}
	q := dayQuery(45 * time.Minute)
	first := mustGenerate(t, q, cal)
	second := mustGenerate(t, q, cal)
	if len(first) != len(second) {
		t.Fatalf("results differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("slot %d differs", i)
		}
	}
	assertProperties(t, q, cal, first)
}

func TestGenerateUsesProviderTimezoneAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	cal := Calendar{Rules: mondayNineToFive()}
	// US DST starts Sunday 2026-03-08; the weeks around it use different offsets.
	q := Query{Location: ny, From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), To: time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC), Length: 8 * time.Hour}
	slots := mustGenerate(t, q, cal)
	if len(slots) != 2 {
		t.Fatalf("expected one 8h slot per Monday, got %d", len(slots))
	}
	if want := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC); !slots[0].Start.Equal(want) {
		t.Fatalf("EST Monday should start at %s, got %s", want, slots[0].Start.UTC())
	}
	if want := time.Date(2026, 3, 9, 13, 0, 0, 0, time.UTC); !slots[1].Start.Equal(want) {
		t.Fatalf("EDT Monday should start at %s, got %s", want, slots[1].Start.UTC())
	}

	// On the transition night a 00:00-06:00 window only holds five real hours.
	night := Calendar{Rules: []model.WeeklyRule{{DayOfWeek: time.Sunday, StartMinute: 0, EndMinute: 6 * 60}}}
	q = Query{Location: ny, From: time.Date(2026, 3, 8, 0, 0, 0, 0, ny), To: time.Date(2026, 3, 9, 0, 0, 0, 0, ny), Length: time.Hour}
	if got := mustGenerate(t, q, night); len(got) != 5 {
		t.Fatalf("expected 5 hourly slots on DST night, got %d", len(got))
	}
}

func TestGenerateRuleEndingAtMidnight(t *testing.T) {
	cal := Calendar{Rules: []model.WeeklyRule{{DayOfWeek: time.Monday, StartMinute: 22 * 60, EndMinute: model.MinutesPerDay}}}
	slots := mustGenerate(t, dayQuery(time.Hour), cal)
	if got := starts(slots); len(got) != 2 || got[0] != "22:00" || got[1] != "23:00" {
		t.Fatalf("unexpected slots %v", got)
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	q := dayQuery(30 * time.Minute)
	q.To = q.From
	if _, err := Generate(q, Calendar{}); err != ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	q = dayQuery(0)
	if _, err := Generate(q, Calendar{}); err != ErrInvalidDuration {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
}

func TestBufferFor(t *testing.T) {
	rules := []model.WeeklyRule{
		{DayOfWeek: time.Monday, StartMinute: 9 * 60, EndMinute: 12 * 60, BufferMinutes: 10},
		{DayOfWeek: time.Monday, StartMinute: 12 * 60, EndMinute: 17 * 60, BufferMinutes: 20},
	}
	if got := BufferFor(time.UTC, rules, at(9, 0), at(9, 30)); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	if got := BufferFor(time.UTC, rules, at(11, 30), at(12, 30)); got != 20 {
		t.Fatalf("expected the larger buffer for a straddling slot, got %d", got)
	}
	if got := BufferFor(time.UTC, rules, at(18, 0), at(18, 30)); got != 0 {
		t.Fatalf("expected 0 outside rules, got %d", got)
	}
}

func randomCalendar(rng *rand.Rand, base time.Time) Calendar {
	var cal Calendar
	for n := 1 + rng.Intn(8); n > 0; n-- {
		// Whole hours keep every window clear of the 02:00 spring-forward gap.
		start := rng.Intn(24)
		end := start + 1 + rng.Intn(24-start)
		cal.Rules = append(cal.Rules, model.WeeklyRule{
			DayOfWeek:     time.Weekday(rng.Intn(7)),
			StartMinute:   start * 60,
			EndMinute:     end * 60,
			BufferMinutes: 5 * rng.Intn(7),
		})
	}
	span := 16 * 24 * 60 / 5
	for n := rng.Intn(5); n > 0; n-- {
		start := base.Add(time.Duration(rng.Intn(span)*5) * time.Minute)
		cal.Blocks = append(cal.Blocks, model.UnavailabilityBlock{
			ID:    fmt.Sprintf("u%d", n),
			Start: start,
			End:   start.Add(time.Duration(15+5*rng.Intn(60)) * time.Minute),
		})
	}
	statuses := []model.BookingStatus{model.BookingPending, model.BookingConfirmed, model.BookingCancelled}
	for n := rng.Intn(6); n > 0; n-- {
		start := base.Add(time.Duration(rng.Intn(span)*5) * time.Minute)
		cal.Bookings = append(cal.Bookings, model.Booking{
			ID:            fmt.Sprintf("b%d", n),
			Start:         start,
			End:           start.Add(time.Duration(15+15*rng.Intn(8)) * time.Minute),
			Status:        statuses[rng.Intn(len(statuses))],
			BufferMinutes: 5 * rng.Intn(7),
		})
	}
	return cal
}

func TestGenerateRandomizedCalendars(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// Two weeks starting Sunday 2026-03-01, spanning the spring-forward night.
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, ny)
	lengths := []time.Duration{15 * time.Minute, 30 * time.Minute, 45 * time.Minute, time.Hour, 90 * time.Minute, 2 * time.Hour}
	rng := rand.New(rand.NewSource(20260308))

	for i := 0; i < 500; i++ {
		cal := randomCalendar(rng, base)
		from := base.Add(time.Duration(rng.Intn(13*24*12)*5) * time.Minute)
		q := Query{
			ProviderID: "p1",
			Location:   ny,
			From:       from,
			To:         from.Add(time.Duration(1+rng.Intn(72)) * time.Hour),
			Length:     lengths[rng.Intn(len(lengths))],
		}
		if rng.Intn(3) == 0 {
			q.NotBefore = from.Add(time.Duration(rng.Intn(48*12)*5) * time.Minute)
		}

		slots := mustGenerate(t, q, cal)
		assertProperties(t, q, cal, slots)
		for _, s := range slots {
			if !q.NotBefore.IsZero() && s.Start.Before(q.NotBefore) {
				t.Fatalf("case %d: slot %s starts before %s", i, s.Start, q.NotBefore)
			}
			narrow := q
			narrow.From, narrow.To = s.Start, s.End
			again := mustGenerate(t, narrow, cal)
			if len(again) != 1 || again[0] != s {
				t.Fatalf("case %d: narrow query for %s-%s returned %v", i, s.Start, s.End, again)
			}
		}
	}
}
