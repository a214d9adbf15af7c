package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/availability"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/outbox"
)

// Limits bound what callers may ask for.
type Limits struct {
	SlotMinMinutes         int
	SlotMaxMinutes         int
	SlotGranularityMinutes int
	MaxRange               time.Duration
}

func DefaultLimits() Limits {
	return Limits{
		SlotMinMinutes:         15,
		SlotMaxMinutes:         480,
		SlotGranularityMinutes: 15,
		MaxRange:               62 * 24 * time.Hour,
	}
}

// Recorder receives operation outcomes; the metrics package implements it.
type Recorder interface {
	SlotsListed(count int, elapsed time.Duration)
	AdmissionOutcome(outcome string)
}

type Config struct {
	Limits   Limits
	Now      func() time.Time
	Recorder Recorder
}

type Service struct {
	store    Store
	logger   *slog.Logger
	limits   Limits
	now      func() time.Time
	recorder Recorder
}

func New(store Store, logger *slog.Logger, cfg Config) *Service {
	if cfg.Limits == (Limits{}) {
		cfg.Limits = DefaultLimits()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		store:    store,
		logger:   logger,
		limits:   cfg.Limits,
		now:      cfg.Now,
		recorder: cfg.Recorder,
	}
}

type SlotQuery struct {
	ProviderID  string
	From        time.Time
	To          time.Time
	SlotMinutes int
}

// ListSlots returns the provider's open slots in [From, To), ascending.
func (s *Service) ListSlots(ctx context.Context, q SlotQuery) ([]model.Slot, error) {
	start := s.now()
	if strings.TrimSpace(q.ProviderID) == "" {
		return nil, apperr.Validation("provider_id is required")
	}
	if err := s.validateRange(q.From, q.To); err != nil {
		return nil, err
	}
	if err := s.validateSlotMinutes(q.SlotMinutes); err != nil {
		return nil, err
	}

	pc, err := s.loadCalendar(ctx, s.store, q.ProviderID, q.From, q.To)
	if err != nil {
		return nil, err
	}
	slots, err := s.slots(q.ProviderID, pc, q.From, q.To, time.Duration(q.SlotMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}
	if s.recorder != nil {
		s.recorder.SlotsListed(len(slots), s.now().Sub(start))
	}
	return slots, nil
}

type BookingRequest struct {
	ProviderID  string
	HomeownerID string
	Start       time.Time
	End         time.Time
	ServiceType string
	Description string
}

type BookingConfirmation struct {
	Booking  model.Booking
	Provider model.ProviderProfile
}

// CreateBooking admits a booking only if [Start, End) is still one of the
// provider's open slots at commit time.
func (s *Service) CreateBooking(ctx context.Context, req BookingRequest) (BookingConfirmation, error) {
	if err := s.validateBooking(req); err != nil {
		s.recordAdmission("invalid")
		return BookingConfirmation{}, err
	}

	now := s.now()
	booking := model.Booking{
		ID:          uuid.NewString(),
		ProviderID:  req.ProviderID,
		HomeownerID: req.HomeownerID,
		Start:       req.Start.UTC(),
		End:         req.End.UTC(),
		Status:      model.BookingPending,
		ServiceType: strings.TrimSpace(req.ServiceType),
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now.UTC(),
	}

	err := s.store.WithProviderLock(ctx, req.ProviderID, func(tx Tx) error {
		pc, err := s.loadCalendar(ctx, tx, req.ProviderID, booking.Start, booking.End)
		if err != nil {
			return err
		}
		slots, err := s.slots(req.ProviderID, pc, booking.Start, booking.End, booking.End.Sub(booking.Start))
		if err != nil {
			return err
		}
		if len(slots) != 1 || !slots[0].Start.Equal(booking.Start) || !slots[0].End.Equal(booking.End) {
			return apperr.SlotConflict("requested slot is not available")
		}
		booking.BufferMinutes = availability.BufferFor(pc.loc, pc.Rules, booking.Start, booking.End)

		if err := tx.InsertBooking(ctx, booking); err != nil {
			return apperr.Store("insert booking", err)
		}
		evt, err := outbox.NewBookingEvent(outbox.EventBookingCreated, booking, now)
		if err != nil {
			return apperr.Store("build booking event", err)
		}
		return apperr.Store("append booking event", tx.AppendEvent(ctx, evt))
	})
	if err != nil {
		if errors.Is(err, apperr.ErrSlotConflict) {
			s.recordAdmission("conflict")
		} else {
			s.recordAdmission("error")
		}
		return BookingConfirmation{}, apperr.Store("create booking", err)
	}
	s.recordAdmission("created")

	provider, err := s.store.EnsureProfile(ctx, req.ProviderID)
	if err != nil {
		// The booking is committed; missing contact details are not worth failing it.
		s.logger.Warn("provider profile lookup failed", "provider_id", req.ProviderID, "err", err)
		provider = model.ProviderProfile{ProviderID: req.ProviderID}
	}
	return BookingConfirmation{Booking: booking, Provider: provider}, nil
}

type providerCalendar struct {
	loc *time.Location
	availability.Calendar
}

func (s *Service) loadCalendar(ctx context.Context, r CalendarReader, providerID string, from, to time.Time) (providerCalendar, error) {
	loc, err := s.location(ctx, r, providerID)
	if err != nil {
		return providerCalendar{}, err
	}
	pc := providerCalendar{loc: loc}
	pc.Rules, err = r.ListWeeklyRules(ctx, providerID)
	if err != nil {
		return providerCalendar{}, apperr.Store("list weekly rules", err)
	}
	if len(pc.Rules) == 0 {
		return pc, nil
	}
	pc.Blocks, err = r.ListBlocks(ctx, providerID, from, to)
	if err != nil {
		return providerCalendar{}, apperr.Store("list unavailability", err)
	}
	pc.Bookings, err = r.ListActiveBookings(ctx, providerID, from, to)
	if err != nil {
		return providerCalendar{}, apperr.Store("list bookings", err)
	}
	return pc, nil
}

func (s *Service) slots(providerID string, pc providerCalendar, from, to time.Time, length time.Duration) ([]model.Slot, error) {
	slots, err := availability.Generate(availability.Query{
		ProviderID: providerID,
		Location:   pc.loc,
		From:       from,
		To:         to,
		Length:     length,
		NotBefore:  s.now(),
	}, pc.Calendar)
	if err != nil {
		return nil, apperr.Validation("%v", err)
	}
	return slots, nil
}

// location resolves the provider's zone once per request; no profile means UTC.
func (s *Service) location(ctx context.Context, r CalendarReader, providerID string) (*time.Location, error) {
	tz, err := r.ProviderTimezone(ctx, providerID)
	if err != nil {
		return nil, apperr.Store("provider timezone", err)
	}
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.logger.Warn("invalid provider timezone, using UTC", "provider_id", providerID, "timezone", tz, "err", err)
		return time.UTC, nil
	}
	return loc, nil
}

func (s *Service) validateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return apperr.Validation("from and to are required")
	}
	if !to.After(from) {
		return apperr.Validation("to must be after from")
	}
	if to.Sub(from) > s.limits.MaxRange {
		return apperr.Validation("range must not exceed %d days", int(s.limits.MaxRange/(24*time.Hour)))
	}
	return nil
}

func (s *Service) validateSlotMinutes(minutes int) error {
	l := s.limits
	if minutes < l.SlotMinMinutes || minutes > l.SlotMaxMinutes {
		return apperr.Validation("slot_minutes must be between %d and %d", l.SlotMinMinutes, l.SlotMaxMinutes)
	}
	if l.SlotGranularityMinutes > 0 && minutes%l.SlotGranularityMinutes != 0 {
		return apperr.Validation("slot_minutes must be a multiple of %d", l.SlotGranularityMinutes)
	}
	return nil
}

func (s *Service) validateBooking(req BookingRequest) error {
	if strings.TrimSpace(req.ProviderID) == "" {
		return apperr.Validation("provider_id is required")
	}
	if strings.TrimSpace(req.HomeownerID) == "" {
		return apperr.Unauthorized("homeowner identity is required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return apperr.Validation("start_ts and end_ts are required")
	}
	if !req.End.After(req.Start) {
		return apperr.Validation("end_ts must be after start_ts")
	}
	d := req.End.Sub(req.Start)
	if d%time.Minute != 0 {
		return apperr.Validation("booking length must be whole minutes")
	}
	if err := s.validateSlotMinutes(int(d / time.Minute)); err != nil {
		return err
	}
	if req.Start.Before(s.now()) {
		return apperr.Validation("start_ts must be in the future")
	}
	serviceType := strings.TrimSpace(req.ServiceType)
	if serviceType == "" || len(serviceType) > 100 {
		return apperr.Validation("service_type is required and must be at most 100 characters")
	}
	if len(req.Description) > 2000 {
		return apperr.Validation("description must be at most 2000 characters")
	}
	return nil
}

func (s *Service) recordAdmission(outcome string) {
	if s.recorder != nil {
		s.recorder.AdmissionOutcome(outcome)
	}
}
