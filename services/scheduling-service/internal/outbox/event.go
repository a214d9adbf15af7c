package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
)

// Topic names equal event types.
const (
	EventBookingCreated   = "booking.created.v1"
	EventBookingConfirmed = "booking.confirmed.v1"
	EventBookingCancelled = "booking.cancelled.v1"
)

// Event is the envelope written to the outbox table.
type Event struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type BookingPayload struct {
	EventID      string    `json:"event_id"`
	BookingID    string    `json:"booking_id"`
	ProviderID   string    `json:"provider_id"`
	HomeownerID  string    `json:"homeowner_id"`
	Status       string    `json:"status"`
	ServiceType  string    `json:"service_type"`
	StartTS      time.Time `json:"start_ts"`
	EndTS        time.Time `json:"end_ts"`
	CancelReason string    `json:"cancel_reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

func NewBookingEvent(eventType string, b model.Booking, at time.Time) (Event, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(BookingPayload{
		EventID:      id,
		BookingID:    b.ID,
		ProviderID:   b.ProviderID,
		HomeownerID:  b.HomeownerID,
		Status:       string(b.Status),
		ServiceType:  b.ServiceType,
		StartTS:      b.Start.UTC(),
		EndTS:        b.End.UTC(),
		CancelReason: b.CancelReason,
		OccurredAt:   at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		ID:            id,
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
