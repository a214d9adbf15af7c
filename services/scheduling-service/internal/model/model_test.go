package model

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"09:30", 570, false},
		{"24:00", 1440, false},
		{"24:01", 0, true},
		{"9:30", 0, true},
		{"09:60", 0, true},
		{"ab:cd", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseClock(%q) = %d, %v; want %d", tc.in, got, err, tc.want)
		}
		if FormatClock(got) != tc.in {
			t.Fatalf("FormatClock(%d) = %q; want %q", got, FormatClock(got), tc.in)
		}
	}
}

func TestBookingBuffered(t *testing.T) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	b := Booking{Start: start, End: start.Add(30 * time.Minute), BufferMinutes: 15}
	s, e := b.Buffered()
	if !s.Equal(start.Add(-15*time.Minute)) || !e.Equal(start.Add(45*time.Minute)) {
		t.Fatalf("unexpected buffered interval %s - %s", s, e)
	}
	if BookingCancelled.Occupies() || !BookingPending.Occupies() || !BookingConfirmed.Occupies() {
		t.Fatal("unexpected occupancy")
	}
}
