package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidyhome/scheduler/libs/auth"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/apperr"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/model"
	"github.com/tidyhome/scheduler/services/scheduling-service/internal/scheduling"
)

type SchedulingHandler struct {
	svc       *scheduling.Service
	logger    *slog.Logger
	validator *requestValidator
}

func NewSchedulingHandler(svc *scheduling.Service, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{svc: svc, logger: logger, validator: newRequestValidator()}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	ProviderID  string     `json:"provider_id"`
	SlotMinutes int        `json:"slot_minutes"`
	Slots       []slotItem `json:"slots"`
}

type slotsQuery struct {
	ProviderID  string `json:"provider_id" validate:"required,max=128"`
	From        string `json:"from" validate:"required,rfc3339"`
	To          string `json:"to" validate:"required,rfc3339"`
	SlotMinutes string `json:"slot_minutes" validate:"required,number"`
}

// Slots lists a provider's open slots. Anyone may call it.
func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := slotsQuery{
		ProviderID:  strings.TrimSpace(q.Get("provider_id")),
		From:        strings.TrimSpace(q.Get("from")),
		To:          strings.TrimSpace(q.Get("to")),
		SlotMinutes: strings.TrimSpace(q.Get("slot_minutes")),
	}
	if err := h.validator.Struct(in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	from, _ := time.Parse(time.RFC3339, in.From)
	to, _ := time.Parse(time.RFC3339, in.To)
	minutes, err := strconv.Atoi(in.SlotMinutes)
	if err != nil {
		writeError(w, r, h.logger, apperr.Validation("slot_minutes must be an integer"))
		return
	}

	slots, err := h.svc.ListSlots(r.Context(), scheduling.SlotQuery{
		ProviderID:  in.ProviderID,
		From:        from,
		To:          to,
		SlotMinutes: minutes,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := slotsResponse{ProviderID: in.ProviderID, SlotMinutes: minutes, Slots: make([]slotItem, 0, len(slots))}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type createBookingRequest struct {
	ProviderID  string `json:"provider_id" validate:"required,max=128"`
	StartTime   string `json:"start_time" validate:"required,rfc3339"`
	EndTime     string `json:"end_time" validate:"required,rfc3339"`
	ServiceType string `json:"service_type" validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type bookingItem struct {
	BookingID     string `json:"booking_id"`
	ProviderID    string `json:"provider_id"`
	HomeownerID   string `json:"homeowner_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	ServiceType   string `json:"service_type"`
	Description   string `json:"description,omitempty"`
	BufferMinutes int    `json:"buffer_minutes"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CancelReason  string `json:"cancel_reason,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type providerContact struct {
	ProviderID  string `json:"provider_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Timezone    string `json:"timezone"`
}

type createBookingResponse struct {
	Booking  bookingItem     `json:"booking"`
	Provider providerContact `json:"provider"`
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:     b.ID,
		ProviderID:    b.ProviderID,
		HomeownerID:   b.HomeownerID,
		StartTime:     b.Start.UTC().Format(time.RFC3339),
		EndTime:       b.End.UTC().Format(time.RFC3339),
		Status:        string(b.Status),
		ServiceType:   b.ServiceType,
		Description:   b.Description,
		BufferMinutes: b.BufferMinutes,
		CancelReason:  b.CancelReason,
		CreatedAt:     b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

func toProviderContact(p model.ProviderProfile) providerContact {
	return providerContact{
		ProviderID:  p.ProviderID,
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Phone:       p.Phone,
		Timezone:    p.Timezone,
	}
}

// CreateBooking admits a homeowner's booking for one listed slot.
func (h *SchedulingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	var req createBookingRequest
	if err := h.validator.decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	start, _ := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	end, _ := time.Parse(time.RFC3339, strings.TrimSpace(req.EndTime))

	conf, err := h.svc.CreateBooking(r.Context(), scheduling.BookingRequest{
		ProviderID:  strings.TrimSpace(req.ProviderID),
		HomeownerID: caller.Subject,
		Start:       start,
		End:         end,
		ServiceType: req.ServiceType,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, createBookingResponse{
		Booking:  toBookingItem(conf.Booking),
		Provider: toProviderContact(conf.Provider),
	})
}

type listBookingsResponse struct {
	Bookings []bookingItem `json:"bookings"`
}

func (h *SchedulingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	from, err := optionalTime(r, "from")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	to, err := optionalTime(r, "to")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, r, h.logger, apperr.Validation("limit must be a non-negative integer"))
			return
		}
	}

	bookings, err := h.svc.ListBookings(r.Context(), caller, from, to, limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	resp := listBookingsResponse{Bookings: make([]bookingItem, 0, len(bookings))}
	for _, b := range bookings {
		resp.Bookings = append(resp.Bookings, toBookingItem(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

type confirmBookingRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
}

func (h *SchedulingHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	var req confirmBookingRequest
	if err := h.validator.decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.svc.ConfirmBooking(r.Context(), caller.Subject, req.BookingID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b))
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
	Reason    string `json:"reason" validate:"max=500"`
}

func (h *SchedulingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	caller, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperr.Unauthorized("authentication required"))
		return
	}
	var req cancelBookingRequest
	if err := h.validator.decode(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	b, err := h.svc.CancelBooking(r.Context(), caller, req.BookingID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingItem(b))
}
