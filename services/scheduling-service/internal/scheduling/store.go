package scheduling

import (
	"context"
	"time"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/outbox"
)

// CalendarReader is the read side the slot generator needs.
type CalendarReader interface {
	// ProviderTimezone returns the provider's IANA zone, or "" when no profile exists.
	ProviderTimezone(ctx context.Context, providerID string) (string, error)
	ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error)
	// ListBlocks returns blocks overlapping [from, to).
	ListBlocks(ctx context.Context, providerID string, from, to time.Time) ([]model.UnavailabilityBlock, error)
	// ListActiveBookings returns non-cancelled bookings whose buffered interval overlaps [from, to).
	ListActiveBookings(ctx context.Context, providerID string, from, to time.Time) ([]model.Booking, error)
}

// Tx is a unit of work holding the provider's exclusive lock.
type Tx interface {
	CalendarReader
	ReplaceWeeklyRules(ctx context.Context, providerID string, rules []model.WeeklyRule) error
	InsertBlock(ctx context.Context, b model.UnavailabilityBlock) error
	// InsertBooking returns a SlotConflict error when the interval collides with an active booking.
	InsertBooking(ctx context.Context, b model.Booking) error
	GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error)
	UpdateBooking(ctx context.Context, b model.Booking) error
	AppendEvent(ctx context.Context, evt outbox.Event) error
}

type BookingFilter struct {
	ProviderID  string
	HomeownerID string
	From        *time.Time
	To          *time.Time
	Limit       int
}

type Store interface {
	CalendarReader
	// WithProviderLock runs fn in one transaction serialized per provider.
	// An error from fn rolls back everything fn wrote.
	WithProviderLock(ctx context.Context, providerID string, fn func(Tx) error) error
	DeleteBlock(ctx context.Context, providerID, id string) error
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)
	EnsureProfile(ctx context.Context, providerID string) (model.ProviderProfile, error)
	UpdateProfile(ctx context.Context, p model.ProviderProfile) (model.ProviderProfile, error)
}
