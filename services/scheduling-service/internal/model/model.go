package model

import (
	"fmt"
	"time"
)

// WeeklyRule is a recurring open window on one weekday, in the provider's
// local wall-clock time. Minutes count from local midnight; EndMinute may be 1440.
type WeeklyRule struct {
	ProviderID    string
	DayOfWeek     time.Weekday
	StartMinute   int
	EndMinute     int
	BufferMinutes int
}

type UnavailabilityBlock struct {
	ID         string
	ProviderID string
	Start      time.Time
	End        time.Time
	Reason     string
	CreatedAt  time.Time
}

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// Occupies reports whether a booking in this status blocks the calendar.
func (s BookingStatus) Occupies() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Booking struct {
	ID            string
	ProviderID    string
	HomeownerID   string
	Start         time.Time
	End           time.Time
	Status        BookingStatus
	ServiceType   string
	Description   string
	BufferMinutes int
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}

// Buffered is the interval the booking keeps the provider busy for, including buffer on both sides.
func (b Booking) Buffered() (time.Time, time.Time) {
	buf := time.Duration(b.BufferMinutes) * time.Minute
	return b.Start.Add(-buf), b.End.Add(buf)
}

type Slot struct {
	ProviderID string
	Start      time.Time
	End        time.Time
}

type ProviderProfile struct {
	ProviderID  string
	DisplayName string
	Email       string
	Phone       string
	Timezone    string
	UpdatedAt   time.Time
}

const MinutesPerDay = 24 * 60

// ParseClock parses "HH:MM" into minutes since midnight; "24:00" is accepted.
func ParseClock(s string) (int, error) {
	var h, m int
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	if m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

func FormatClock(minute int) string {
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}
