package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/tidyhome/scheduler/libs/auth"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/outbox"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// ConfirmBooking moves a pending booking to confirmed. Confirming twice is a no-op.
func (s *Service) ConfirmBooking(ctx context.Context, providerID, bookingID string) (model.Booking, error) {
	if strings.TrimSpace(providerID) == "" {
		return model.Booking{}, apperr.Unauthorized("provider identity is required")
	}
	if strings.TrimSpace(bookingID) == "" {
		return model.Booking{}, apperr.Validation("booking_id is required")
	}

	var out model.Booking
	err := s.store.WithProviderLock(ctx, providerID, func(tx Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.ProviderID != providerID {
			return apperr.NotFound("booking")
		}
		switch b.Status {
		case model.BookingConfirmed:
			out = b
			return nil
		case model.BookingCancelled:
			return apperr.Validation("cancelled bookings cannot be confirmed")
		}

		b.Status = model.BookingConfirmed
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		evt, err := outbox.NewBookingEvent(outbox.EventBookingConfirmed, b, s.now())
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, apperr.Store("confirm booking", err)
	}
	return out, nil
}

// CancelBooking frees the booking's interval. The owning provider, the
// booking's homeowner, or an admin may cancel; repeating it is a no-op.
func (s *Service) CancelBooking(ctx context.Context, caller auth.Identity, bookingID, reason string) (model.Booking, error) {
	if caller.Subject == "" {
		return model.Booking{}, apperr.Unauthorized("identity is required")
	}
	if strings.TrimSpace(bookingID) == "" {
		return model.Booking{}, apperr.Validation("booking_id is required")
	}
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return model.Booking{}, apperr.Validation("reason must be at most %d characters", maxReasonLength)
	}

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, apperr.Store("get booking", err)
	}
	if !mayCancel(caller, current) {
		return model.Booking{}, apperr.Forbidden("not allowed to cancel this booking")
	}

	var out model.Booking
	err = s.store.WithProviderLock(ctx, current.ProviderID, func(tx Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status == model.BookingCancelled {
			out = b
			return nil
		}

		at := s.now().UTC()
		b.Status = model.BookingCancelled
		b.CancelledAt = &at
		b.CancelReason = reason
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		evt, err := outbox.NewBookingEvent(outbox.EventBookingCancelled, b, at)
		if err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, evt); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return model.Booking{}, apperr.Store("cancel booking", err)
	}
	s.logger.Info("booking cancelled", "booking_id", out.ID, "provider_id", out.ProviderID, "by", caller.Subject)
	return out, nil
}

func mayCancel(caller auth.Identity, b model.Booking) bool {
	switch caller.Role {
	case auth.RoleAdmin:
		return true
	case auth.RoleProvider:
		return b.ProviderID == caller.Subject
	case auth.RoleHomeowner:
		return b.HomeownerID == caller.Subject
	}
	return false
}

// ListBookings returns the caller's own bookings, newest start first.
func (s *Service) ListBookings(ctx context.Context, caller auth.Identity, from, to *time.Time, limit int) ([]model.Booking, error) {
	f := BookingFilter{From: from, To: to, Limit: limit}
	switch caller.Role {
	case auth.RoleProvider:
		f.ProviderID = caller.Subject
	case auth.RoleHomeowner:
		f.HomeownerID = caller.Subject
	default:
		return nil, apperr.Forbidden("only providers and homeowners have bookings")
	}
	if caller.Subject == "" {
		return nil, apperr.Unauthorized("identity is required")
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, apperr.Validation("to must be after from")
	}
	switch {
	case f.Limit <= 0:
		f.Limit = defaultListLimit
	case f.Limit > maxListLimit:
		f.Limit = maxListLimit
	}

	bookings, err := s.store.ListBookings(ctx, f)
	if err != nil {
		return nil, apperr.Store("list bookings", err)
	}
	return bookings, nil
}
