// Package schedulingtest provides an in-memory scheduling.Store for tests.
package schedulingtest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/outbox"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/scheduling"
)

// Store keeps everything in memory. WithProviderLock holds one global lock and
// works on a copy that is only kept when fn succeeds.
type Store struct {
	mu sync.Mutex
	st *state

	// FailReplace, when set, is returned by ReplaceWeeklyRules after the old rules were deleted.
	FailReplace error
	// BeforeInsertBooking runs inside the lock before a booking is stored.
	BeforeInsertBooking func(model.Booking)
}

type state struct {
	rules    map[string][]model.WeeklyRule
	blocks   []model.UnavailabilityBlock
	bookings []model.Booking
	events   []outbox.Event
	profiles map[string]model.ProviderProfile
}

func New() *Store {
	return &Store{st: &state{
		rules:    map[string][]model.WeeklyRule{},
		profiles: map[string]model.ProviderProfile{},
	}}
}

func (s *state) clone() *state {
	c := &state{
		rules:    make(map[string][]model.WeeklyRule, len(s.rules)),
		blocks:   append([]model.UnavailabilityBlock(nil), s.blocks...),
		bookings: append([]model.Booking(nil), s.bookings...),
		events:   append([]outbox.Event(nil), s.events...),
		profiles: make(map[string]model.ProviderProfile, len(s.profiles)),
	}
	for k, v := range s.rules {
		c.rules[k] = append([]model.WeeklyRule(nil), v...)
	}
	for k, v := range s.profiles {
		c.profiles[k] = v
	}
	return c
}

// Events returns every event appended so far.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.st.events...)
}

// Bookings returns every stored booking, cancelled ones included.
func (s *Store) Bookings() []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Booking(nil), s.st.bookings...)
}

// PutBooking stores b as-is, bypassing admission.
func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.bookings = append(s.st.bookings, b)
}

func (s *Store) PutProfile(p model.ProviderProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.profiles[p.ProviderID] = p
}

func (s *Store) WithProviderLock(ctx context.Context, providerID string, fn func(scheduling.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := &tx{store: s, st: s.st.clone()}
	if err := fn(work); err != nil {
		return err
	}
	s.st = work.st
	return nil
}

func (s *Store) ProviderTimezone(ctx context.Context, providerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.providerTimezone(providerID), nil
}

func (s *Store) ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listRules(providerID), nil
}

func (s *Store) ListBlocks(ctx context.Context, providerID string, from, to time.Time) ([]model.UnavailabilityBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listBlocks(providerID, from, to), nil
}

func (s *Store) ListActiveBookings(ctx context.Context, providerID string, from, to time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.listActiveBookings(providerID, from, to), nil
}

func (s *Store) DeleteBlock(ctx context.Context, providerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.st.blocks {
		if b.ID == id && b.ProviderID == providerID {
			s.st.blocks = append(s.st.blocks[:i], s.st.blocks[i+1:]...)
			return nil
		}
	}
	return apperr.NotFound("unavailability block")
}

func (s *Store) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.getBooking(id)
}

func (s *Store) ListBookings(ctx context.Context, f scheduling.BookingFilter) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Booking
	for _, b := range s.st.bookings {
		if f.ProviderID != "" && b.ProviderID != f.ProviderID {
			continue
		}
		if f.HomeownerID != "" && b.HomeownerID != f.HomeownerID {
			continue
		}
		if f.From != nil && !b.End.After(*f.From) {
			continue
		}
		if f.To != nil && !b.Start.Before(*f.To) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.After(out[j].Start) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) EnsureProfile(ctx context.Context, providerID string) (model.ProviderProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.profiles[providerID]
	if !ok {
		p = model.ProviderProfile{ProviderID: providerID, Timezone: "UTC", UpdatedAt: time.Now().UTC()}
		s.st.profiles[providerID] = p
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p model.ProviderProfile) (model.ProviderProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.profiles[p.ProviderID]; !ok {
		return model.ProviderProfile{}, apperr.NotFound("provider profile")
	}
	p.UpdatedAt = time.Now().UTC()
	s.st.profiles[p.ProviderID] = p
	return p, nil
}

func (s *state) providerTimezone(providerID string) string {
	return s.profiles[providerID].Timezone
}

func (s *state) listRules(providerID string) []model.WeeklyRule {
	return append([]model.WeeklyRule(nil), s.rules[providerID]...)
}

func (s *state) listBlocks(providerID string, from, to time.Time) []model.UnavailabilityBlock {
	var out []model.UnavailabilityBlock
	for _, b := range s.blocks {
		if b.ProviderID == providerID && b.Start.Before(to) && from.Before(b.End) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

func (s *state) listActiveBookings(providerID string, from, to time.Time) []model.Booking {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID != providerID || !b.Status.Occupies() {
			continue
		}
		bs, be := b.Buffered()
		if bs.Before(to) && from.Before(be) {
			out = append(out, b)
		}
	}
	return out
}

func (s *state) getBooking(id string) (model.Booking, error) {
	for _, b := range s.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, apperr.NotFound("booking")
}

type tx struct {
	store *Store
	st    *state
}

func (t *tx) ProviderTimezone(ctx context.Context, providerID string) (string, error) {
	return t.st.providerTimezone(providerID), nil
}

func (t *tx) ListWeeklyRules(ctx context.Context, providerID string) ([]model.WeeklyRule, error) {
	return t.st.listRules(providerID), nil
}

func (t *tx) ListBlocks(ctx context.Context, providerID string, from, to time.Time) ([]model.UnavailabilityBlock, error) {
	return t.st.listBlocks(providerID, from, to), nil
}

func (t *tx) ListActiveBookings(ctx context.Context, providerID string, from, to time.Time) ([]model.Booking, error) {
	return t.st.listActiveBookings(providerID, from, to), nil
}

func (t *tx) ReplaceWeeklyRules(ctx context.Context, providerID string, rules []model.WeeklyRule) error {
	delete(t.st.rules, providerID)
	if t.store.FailReplace != nil {
		return t.store.FailReplace
	}
	if len(rules) > 0 {
		t.st.rules[providerID] = append([]model.WeeklyRule(nil), rules...)
	}
	return nil
}

func (t *tx) InsertBlock(ctx context.Context, b model.UnavailabilityBlock) error {
	t.st.blocks = append(t.st.blocks, b)
	return nil
}

// InsertBooking mirrors the database exclusion constraint on raw intervals.
func (t *tx) InsertBooking(ctx context.Context, b model.Booking) error {
	if t.store.BeforeInsertBooking != nil {
		t.store.BeforeInsertBooking(b)
	}
	for _, existing := range t.st.bookings {
		if existing.ProviderID == b.ProviderID && existing.Status.Occupies() &&
			existing.Start.Before(b.End) && b.Start.Before(existing.End) {
			return apperr.SlotConflict("requested slot is not available")
		}
	}
	t.st.bookings = append(t.st.bookings, b)
	return nil
}

func (t *tx) GetBookingForUpdate(ctx context.Context, id string) (model.Booking, error) {
	return t.st.getBooking(id)
}

func (t *tx) UpdateBooking(ctx context.Context, b model.Booking) error {
	for i := range t.st.bookings {
		if t.st.bookings[i].ID == b.ID {
			t.st.bookings[i] = b
			return nil
		}
	}
	return apperr.NotFound("booking")
}

func (t *tx) AppendEvent(ctx context.Context, evt outbox.Event) error {
	t.st.events = append(t.st.events, evt)
	return nil
}

var _ scheduling.Store = (*Store)(nil)
